package evgen

import (
	"encoding/csv"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ntupleHeader is the YAML front matter of a flux record file: the exposure
// one full pass over the file represents, plus provenance.
type ntupleHeader struct {
	Exposure         float64 `yaml:"exposure"`
	DetectorLocation string  `yaml:"detector_location,omitempty"`
	BeamName         string  `yaml:"beam_name,omitempty"`
}

// ntupleRecord is one precomputed beam-simulation ray.
type ntupleRecord struct {
	ray      Ray
	exposure float64 // exposure consumed by replaying this record
}

// ntupleFrontMatterSep separates the YAML header from the CSV body.
const ntupleFrontMatterSep = "\n---\n"

// fullColumns / simpleColumns: the full format carries a decay distance,
// the simple format does not.
var (
	fullColumns   = []string{"flavor", "energy", "x", "y", "z", "dx", "dy", "dz", "weight", "decay_dist"}
	simpleColumns = []string{"flavor", "energy", "x", "y", "z", "dx", "dy", "dz", "weight"}
)

// NtupleSource replays precomputed beam-simulation ray records, cycling
// through the file set and accumulating the exposure each consumed record
// represents.
type NtupleSource struct {
	sourceType SourceType
	flavors    map[int]bool
	records    []ntupleRecord
	next       int
	used       float64
	upstreamZ  float64
	hasUpZ     bool
	cur        Ray
}

// NewNtupleSource loads the (deduplicated) file set, filtered to the
// requested flavors.
func NewNtupleSource(st SourceType, files []string, flavors []int) (*NtupleSource, error) {
	src := &NtupleSource{
		sourceType: st,
		flavors:    make(map[int]bool, len(flavors)),
	}
	for _, f := range flavors {
		src.flavors[f] = true
	}

	cols := fullColumns
	if st == SourceSimple {
		cols = simpleColumns
	}

	for _, path := range files {
		recs, err := loadNtupleFile(path, cols, src.flavors)
		if err != nil {
			return nil, err
		}
		src.records = append(src.records, recs...)
		logrus.Debugf("flux file %q contributed %d records", path, len(recs))
	}
	if len(src.records) == 0 {
		return nil, eris.Wrapf(ErrConfig,
			"flux files %v contain no records for flavors %v", files, flavors)
	}
	return src, nil
}

// SetUpstreamZ backtracks every ray origin along its direction to the given
// z plane before replay.
func (s *NtupleSource) SetUpstreamZ(z float64) {
	s.upstreamZ = z
	s.hasUpZ = true
}

func (s *NtupleSource) Advance(rng *rand.Rand) (Ray, bool) {
	rec := s.records[s.next]
	s.next = (s.next + 1) % len(s.records)
	s.used += rec.exposure

	ray := rec.ray
	if s.hasUpZ && ray.Direction.Z != 0 {
		t := (s.upstreamZ - ray.Origin.Z) / ray.Direction.Z
		ray.Origin = ray.Origin.Add(ray.Direction.Scale(t))
	}
	s.cur = ray
	return s.cur, true
}

func (s *NtupleSource) Position() Vec3 { return s.cur.Origin }

// DecayDistance is carried per record in the full format and absent in the
// simple format.
func (s *NtupleSource) DecayDistance() float64 { return s.cur.DecayDist }

// UsedExposure reports the exposure represented by all records consumed so
// far (the exposure-driven spill currency).
func (s *NtupleSource) UsedExposure() float64 { return s.used }

func (s *NtupleSource) Flavors() []int {
	out := make([]int, 0, len(s.flavors))
	for f := range s.flavors {
		out = append(out, f)
	}
	return out
}

// loadNtupleFile parses one YAML-front-matter + CSV flux record file. The
// file's exposure is spread evenly over its records (filtering by flavor
// keeps each record's share, matching how the upstream beam simulation
// accounts replayed entries).
func loadNtupleFile(path string, cols []string, want map[int]bool) ([]ntupleRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(ErrConfig, "read flux file %q: %v", path, err)
	}
	sep := strings.Index(string(data), ntupleFrontMatterSep)
	if sep < 0 {
		return nil, eris.Wrapf(ErrConfig, "flux file %q has no front-matter separator", path)
	}
	var header ntupleHeader
	if err := yaml.Unmarshal(data[:sep], &header); err != nil {
		return nil, eris.Wrapf(ErrConfig, "parse flux file header %q: %v", path, err)
	}
	if header.Exposure <= 0 {
		return nil, eris.Wrapf(ErrConfig, "flux file %q declares no exposure", path)
	}

	reader := csv.NewReader(strings.NewReader(string(data[sep+len(ntupleFrontMatterSep):])))
	headRow, err := reader.Read()
	if err != nil {
		return nil, eris.Wrapf(ErrConfig, "read CSV header of %q: %v", path, err)
	}
	if len(headRow) < len(cols) {
		return nil, eris.Wrapf(ErrConfig, "flux file %q has %d columns, expected %d",
			path, len(headRow), len(cols))
	}

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(ErrConfig, "read CSV row of %q: %v", path, err)
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	perRecord := header.Exposure / float64(len(rows))

	hasDecay := len(cols) == len(fullColumns)
	recs := make([]ntupleRecord, 0, len(rows))
	for i, row := range rows {
		vals := make([]float64, len(cols))
		for j := range cols {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[j]), 64)
			if err != nil {
				return nil, eris.Wrapf(ErrConfig, "flux file %q row %d column %s: %v",
					path, i+1, cols[j], err)
			}
			vals[j] = v
		}
		ray := Ray{
			Flavor:    int(vals[0]),
			Energy:    vals[1],
			Origin:    Vec3{vals[2], vals[3], vals[4]},
			Direction: Vec3{vals[5], vals[6], vals[7]}.Unit(),
			Weight:    vals[8],
		}
		if hasDecay {
			ray.DecayDist = vals[9]
		}
		if !want[ray.Flavor] {
			continue
		}
		recs = append(recs, ntupleRecord{ray: ray, exposure: perRecord})
	}
	return recs, nil
}
