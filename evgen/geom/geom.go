// Package geom provides an in-memory box-volume geometry service
// implementing evgen.GeometryService: named axis-aligned volumes inside a
// world box, selector installation, and sampled path-length scans. A real
// detector geometry replaces it behind the same interface.
package geom

import (
	"math"
	"math/rand"
	"os"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/evgen-sim/evgen-sim/evgen"
)

// VolumeSpec describes one axis-aligned box volume.
type VolumeSpec struct {
	Name string     `yaml:"name" mapstructure:"name"`
	Min  [3]float64 `yaml:"min" mapstructure:"min"`
	Max  [3]float64 `yaml:"max" mapstructure:"max"`
	Mass float64    `yaml:"mass" mapstructure:"mass"` // kg
}

// WorldSpec is the on-disk description of a world: an enclosing world box,
// the detector sub-volumes, and the master→top frame offset.
type WorldSpec struct {
	World        VolumeSpec   `yaml:"world" mapstructure:"world"`
	Volumes      []VolumeSpec `yaml:"volumes" mapstructure:"volumes"`
	TopVolume    string       `yaml:"top_volume" mapstructure:"top_volume"`
	MasterOffset [3]float64   `yaml:"master_offset" mapstructure:"master_offset"`
}

// LoadWorldSpec reads a WorldSpec from a YAML file.
func LoadWorldSpec(path string) (WorldSpec, error) {
	var spec WorldSpec
	data, err := os.ReadFile(path)
	if err != nil {
		return spec, eris.Wrapf(err, "read world spec %q", path)
	}
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return spec, eris.Wrapf(err, "parse world spec %q", path)
	}
	return spec, nil
}

// default scanner parameters, used when the scan spec leaves counts at zero
const (
	defaultScanPoints    = 200
	defaultScanRays      = 200
	defaultScanParticles = 2000
)

type box struct {
	min, max evgen.Vec3
	mass     float64
}

// World is the in-memory geometry service.
type World struct {
	worldName    string
	topName      string
	activeName   string
	volumes      map[string]box
	order        []string
	masterOffset evgen.Vec3

	selector evgen.VolumeSelector
	rock     *evgen.RockShellSelector
	table    *evgen.PathLengthTable
}

// New builds a World from its spec. The top volume must be one of the
// declared sub-volumes; every sub-volume must fit inside the world box.
func New(spec WorldSpec) (*World, error) {
	if spec.World.Name == "" {
		return nil, eris.New("world volume needs a name")
	}
	w := &World{
		worldName:  spec.World.Name,
		activeName: spec.World.Name,
		volumes:    make(map[string]box, len(spec.Volumes)+1),
	}
	w.volumes[spec.World.Name] = toBox(spec.World)
	w.order = append(w.order, spec.World.Name)

	for _, v := range spec.Volumes {
		if _, dup := w.volumes[v.Name]; dup {
			return nil, eris.Errorf("duplicate volume name %q", v.Name)
		}
		w.volumes[v.Name] = toBox(v)
		w.order = append(w.order, v.Name)
	}

	w.topName = spec.TopVolume
	if w.topName == "" && len(spec.Volumes) > 0 {
		w.topName = spec.Volumes[0].Name
	}
	if _, ok := w.volumes[w.topName]; !ok {
		return nil, eris.Errorf("top volume %q is not declared", w.topName)
	}
	w.masterOffset = evgen.Vec3{X: spec.MasterOffset[0], Y: spec.MasterOffset[1], Z: spec.MasterOffset[2]}
	return w, nil
}

func toBox(v VolumeSpec) box {
	return box{
		min:  evgen.Vec3{X: v.Min[0], Y: v.Min[1], Z: v.Min[2]},
		max:  evgen.Vec3{X: v.Max[0], Y: v.Max[1], Z: v.Max[2]},
		mass: v.Mass,
	}
}

func (w *World) TopVolumeName() string   { return w.topName }
func (w *World) WorldVolumeName() string { return w.worldName }

func (w *World) TotalMass(volume string) (float64, error) {
	b, ok := w.volumes[volume]
	if !ok {
		return 0, eris.Errorf("no volume named %q", volume)
	}
	return b.mass, nil
}

// DetectorLength is the top volume's z extent.
func (w *World) DetectorLength() float64 {
	b := w.volumes[w.topName]
	return b.max.Z - b.min.Z
}

// MasterToTop translates a master-frame point into the top-volume frame.
func (w *World) MasterToTop(p evgen.Vec3) evgen.Vec3 {
	return p.Sub(w.masterOffset)
}

// InstallVolumeSelector attaches a selector. Rock shells additionally hand
// over their wall/energy-loss parameters for the overburden estimate.
func (w *World) InstallVolumeSelector(sel evgen.VolumeSelector) {
	w.selector = sel
	if rock, ok := sel.(*evgen.RockShellSelector); ok {
		w.rock = rock
	}
	logrus.Debugf("installed volume selector: %s", sel.Describe())
}

// RockParameters returns the installed rock shell, nil when the active cut
// is not a rock shell.
func (w *World) RockParameters() *evgen.RockShellSelector { return w.rock }

// Selector returns the installed selector, nil when none is installed.
func (w *World) Selector() evgen.VolumeSelector { return w.selector }

func (w *World) SetActiveVolume(name string) error {
	if _, ok := w.volumes[name]; !ok {
		return eris.Errorf("no volume named %q", name)
	}
	w.activeName = name
	return nil
}

// ActiveVolumeName returns the currently scoped volume.
func (w *World) ActiveVolumeName() string { return w.activeName }

// MaxPathLengths returns the scan's table, nil before ConfigureScan.
func (w *World) MaxPathLengths() *evgen.PathLengthTable { return w.table }

// ConfigureScan computes (or adopts) the path-length table.
func (w *World) ConfigureScan(s evgen.ScanSettings) error {
	switch s.Method {
	case evgen.ScanFromFile:
		if s.Table == nil {
			return eris.New("file scan without a table")
		}
		w.table = s.Table
		return nil
	case evgen.ScanDefault, evgen.ScanBox:
		points, rays := s.Points, s.Rays
		if points <= 0 {
			points = defaultScanPoints
		}
		if rays <= 0 {
			rays = defaultScanRays
		}
		rng := s.RNG
		if rng == nil {
			rng = rand.New(rand.NewSource(1))
		}
		w.table = w.scanBox(points, rays, rng)
	case evgen.ScanFlux:
		if s.Flux == nil {
			return eris.New("flux scan without a flux source")
		}
		particles := s.Particles
		if particles <= 0 {
			particles = defaultScanParticles
		}
		rng := s.RNG
		if rng == nil {
			rng = rand.New(rand.NewSource(1))
		}
		w.table = w.scanFlux(s.Flux, particles, rng)
	default:
		return eris.Errorf("unknown scan method %d", s.Method)
	}
	w.table.ApplySafetyFactor(s.SafetyFactor)
	return nil
}

// scanBox throws random rays through the world box and records chord lengths
// per volume.
func (w *World) scanBox(points, rays int, rng *rand.Rand) *evgen.PathLengthTable {
	table := evgen.NewPathLengthTable()
	world := w.volumes[w.worldName]
	span := world.max.Sub(world.min)

	for i := 0; i < points; i++ {
		origin := evgen.Vec3{
			X: world.min.X + rng.Float64()*span.X,
			Y: world.min.Y + rng.Float64()*span.Y,
			Z: world.min.Z, // throw from the upstream face
		}
		for j := 0; j < rays; j++ {
			dir := randomForwardDir(rng)
			w.recordChords(table, origin, dir)
		}
	}
	return table
}

// scanFlux samples rays directly from the flux source.
func (w *World) scanFlux(flux evgen.FluxSource, particles int, rng *rand.Rand) *evgen.PathLengthTable {
	table := evgen.NewPathLengthTable()
	for i := 0; i < particles; i++ {
		ray, ok := flux.Advance(rng)
		if !ok {
			break
		}
		w.recordChords(table, ray.Origin, ray.Direction)
	}
	return table
}

// recordChords intersects one ray with every volume, honoring the selector.
func (w *World) recordChords(table *evgen.PathLengthTable, origin, dir evgen.Vec3) {
	for _, name := range w.order {
		entry, chord, ok := intersectBox(w.volumes[name], origin, dir)
		if !ok {
			continue
		}
		if w.selector != nil {
			mid := entry.Add(dir.Scale(chord / 2))
			if !w.selector.Contains(mid) {
				continue
			}
		}
		table.Record(name, chord)
	}
}

// IntersectActive intersects a ray with the active volume, honoring any
// installed selector.
func (w *World) IntersectActive(origin, dir evgen.Vec3) (evgen.Vec3, float64, bool) {
	entry, chord, ok := intersectBox(w.volumes[w.activeName], origin, dir)
	if !ok {
		return evgen.Vec3{}, 0, false
	}
	if w.selector != nil {
		mid := entry.Add(dir.Scale(chord / 2))
		if !w.selector.Contains(mid) {
			return evgen.Vec3{}, 0, false
		}
	}
	return entry, chord, true
}

// intersectBox is the slab-method ray/box intersection. Only forward (t>=0)
// chords count.
func intersectBox(b box, origin, dir evgen.Vec3) (evgen.Vec3, float64, bool) {
	tmin := math.Inf(-1)
	tmax := math.Inf(1)

	update := func(o, d, lo, hi float64) bool {
		if d == 0 {
			return o >= lo && o <= hi
		}
		t0 := (lo - o) / d
		t1 := (hi - o) / d
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		tmin = math.Max(tmin, t0)
		tmax = math.Min(tmax, t1)
		return tmin <= tmax
	}

	if !update(origin.X, dir.X, b.min.X, b.max.X) ||
		!update(origin.Y, dir.Y, b.min.Y, b.max.Y) ||
		!update(origin.Z, dir.Z, b.min.Z, b.max.Z) {
		return evgen.Vec3{}, 0, false
	}
	if tmax < 0 {
		return evgen.Vec3{}, 0, false
	}
	tmin = math.Max(tmin, 0)
	entry := origin.Add(dir.Scale(tmin))
	return entry, tmax - tmin, true
}

// randomForwardDir draws a direction biased into the +z hemisphere.
func randomForwardDir(rng *rand.Rand) evgen.Vec3 {
	cosT := rng.Float64() // +z hemisphere
	sinT := math.Sqrt(1 - cosT*cosT)
	phi := 2 * math.Pi * rng.Float64()
	return evgen.Vec3{X: sinT * math.Cos(phi), Y: sinT * math.Sin(phi), Z: cosT}
}
