package evgen

import (
	"math"
	"math/rand"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Spectrum is one flavor's energy spectrum: equal-width bins starting at
// EMin, flux per bin in Contents.
type Spectrum struct {
	EMin     float64   `yaml:"e_min"`
	BinWidth float64   `yaml:"bin_width"`
	Contents []float64 `yaml:"contents"`
}

// Integral sums the bin contents.
func (s *Spectrum) Integral() float64 {
	total := 0.0
	for _, c := range s.Contents {
		total += c
	}
	return total
}

// At returns the bin content at energy e, zero outside the binned range.
func (s *Spectrum) At(e float64) float64 {
	if s.BinWidth <= 0 {
		return 0
	}
	bin := int((e - s.EMin) / s.BinWidth)
	if bin < 0 || bin >= len(s.Contents) {
		return 0
	}
	return s.Contents[bin]
}

// Sample draws an energy by inverse CDF over the bins, uniform within the
// selected bin.
func (s *Spectrum) Sample(rng *rand.Rand) float64 {
	total := s.Integral()
	if total <= 0 {
		return s.EMin
	}
	u := rng.Float64() * total
	cum := 0.0
	for i, c := range s.Contents {
		cum += c
		if u <= cum {
			return s.EMin + (float64(i)+rng.Float64())*s.BinWidth
		}
	}
	return s.EMin + float64(len(s.Contents))*s.BinWidth
}

// spectrumFile is the on-disk layout of a spectrum file: one spectrum per
// flavor histogram key (nue, numubar, ...).
type spectrumFile struct {
	Spectra map[string]*Spectrum `yaml:"spectra"`
}

// HistogramSource samples energies from per-flavor spectrum histograms and
// throws rays along a fixed beam axis within a transverse radius.
type HistogramSource struct {
	flavors   []int
	spectra   map[int]*Spectrum
	totalFlux float64
	origin    Vec3
	direction Vec3
	radius    float64

	thrown float64
	cur    Ray
}

// NewHistogramSource loads one spectrum per requested flavor from the single
// input file. A flavor with no spectrum in the file is a fatal configuration
// error.
func NewHistogramSource(path string, flavors []int, origin, direction Vec3, radius float64) (*HistogramSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(ErrConfig, "read spectrum file %q: %v", path, err)
	}
	var file spectrumFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrapf(ErrConfig, "parse spectrum file %q: %v", path, err)
	}

	src := &HistogramSource{
		flavors:   flavors,
		spectra:   make(map[int]*Spectrum, len(flavors)),
		origin:    origin,
		direction: direction.Unit(),
		radius:    radius,
	}
	for _, f := range flavors {
		name, ok := flavorHistName[f]
		if !ok {
			return nil, eris.Wrapf(ErrConfig, "no histogram key for flavor %d", f)
		}
		spec, ok := file.Spectra[name]
		if !ok || len(spec.Contents) == 0 {
			return nil, eris.Wrapf(ErrConfig, "spectrum file %q has no %q histogram", path, name)
		}
		src.spectra[f] = spec
		src.totalFlux += spec.Integral()
	}
	logrus.Infof("total histogram flux over desired flavors = %g", src.totalFlux)
	return src, nil
}

// TotalFlux is the summed integral over the requested flavors, the reference
// flux for the histogram Poisson spill target.
func (s *HistogramSource) TotalFlux() float64 { return s.totalFlux }

// FluxAt returns a flavor's bin content at the given energy, zero for
// flavors this source does not carry.
func (s *HistogramSource) FluxAt(flavor int, e float64) float64 {
	spec, ok := s.spectra[flavor]
	if !ok {
		return 0
	}
	return spec.At(e)
}

func (s *HistogramSource) Advance(rng *rand.Rand) (Ray, bool) {
	if s.totalFlux <= 0 {
		return Ray{}, false
	}
	// flavor proportional to its integral
	u := rng.Float64() * s.totalFlux
	flavor := s.flavors[len(s.flavors)-1]
	cum := 0.0
	for _, f := range s.flavors {
		cum += s.spectra[f].Integral()
		if u <= cum {
			flavor = f
			break
		}
	}

	// uniform disk offset transverse to the beam axis
	r := s.radius * math.Sqrt(rng.Float64())
	phi := 2 * math.Pi * rng.Float64()
	ex, ey := transverseBasis(s.direction)
	origin := s.origin.Add(ex.Scale(r * math.Cos(phi))).Add(ey.Scale(r * math.Sin(phi)))

	s.thrown++
	s.cur = Ray{
		Flavor:    flavor,
		Energy:    s.spectra[flavor].Sample(rng),
		Origin:    origin,
		Direction: s.direction,
		Weight:    1,
	}
	return s.cur, true
}

func (s *HistogramSource) Position() Vec3 { return s.cur.Origin }

func (s *HistogramSource) DecayDistance() float64 { return 0 }

func (s *HistogramSource) UsedExposure() float64 { return s.thrown }

func (s *HistogramSource) Flavors() []int {
	out := make([]int, len(s.flavors))
	copy(out, s.flavors)
	sort.Ints(out)
	return out
}

// transverseBasis returns two unit vectors spanning the plane perpendicular
// to dir.
func transverseBasis(dir Vec3) (Vec3, Vec3) {
	d := dir.Unit()
	ref := Vec3{1, 0, 0}
	if math.Abs(d.X) > 0.9 {
		ref = Vec3{0, 1, 0}
	}
	ex := Vec3{
		d.Y*ref.Z - d.Z*ref.Y,
		d.Z*ref.X - d.X*ref.Z,
		d.X*ref.Y - d.Y*ref.X,
	}.Unit()
	ey := Vec3{
		d.Y*ex.Z - d.Z*ex.Y,
		d.Z*ex.X - d.X*ex.Z,
		d.X*ex.Y - d.Y*ex.X,
	}.Unit()
	return ex, ey
}
