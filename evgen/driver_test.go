package evgen

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/evgen-sim/evgen-sim/evgen/trace"
)

// stubGeometry is a minimal GeometryService for driver tests.
type stubGeometry struct {
	top      string
	world    string
	active   string
	masses   map[string]float64
	selector VolumeSelector
	scan     ScanSettings
	table    *PathLengthTable

	activations []string
}

func newStubGeometry() *stubGeometry {
	table := NewPathLengthTable()
	table.Record("vDet", 100)
	table.Record("vWorld", 400)
	return &stubGeometry{
		top:    "vDet",
		world:  "vWorld",
		active: "vWorld",
		masses: map[string]float64{"vDet": 5.0e7, "vWorld": 1.0e9},
		table:  table,
	}
}

func (g *stubGeometry) TopVolumeName() string   { return g.top }
func (g *stubGeometry) WorldVolumeName() string { return g.world }
func (g *stubGeometry) TotalMass(v string) (float64, error) {
	m, ok := g.masses[v]
	if !ok {
		return 0, errors.New("no such volume")
	}
	return m, nil
}
func (g *stubGeometry) DetectorLength() float64                { return 100 }
func (g *stubGeometry) MasterToTop(p Vec3) Vec3                { return p }
func (g *stubGeometry) InstallVolumeSelector(s VolumeSelector) { g.selector = s }
func (g *stubGeometry) SetActiveVolume(name string) error {
	if _, ok := g.masses[name]; !ok {
		return errors.New("no such volume")
	}
	g.active = name
	g.activations = append(g.activations, name)
	return nil
}
func (g *stubGeometry) ConfigureScan(s ScanSettings) error { g.scan = s; return nil }
func (g *stubGeometry) IntersectActive(origin, dir Vec3) (Vec3, float64, bool) {
	return Vec3{0, 0, -50}, 100, true
}
func (g *stubGeometry) MaxPathLengths() *PathLengthTable { return g.table }

// acceptAllEngine turns every flux ray into a candidate at the ray origin.
type acceptAllEngine struct {
	flux  FluxSource
	rng   *rand.Rand
	scale float64
	miss  bool
}

func (e *acceptAllEngine) Configure(geom GeometryService, flux FluxSource, rng *rand.Rand) error {
	e.flux = flux
	e.rng = rng
	if e.scale == 0 {
		e.scale = 1
	}
	return nil
}

func (e *acceptAllEngine) GenerateCandidate() *Candidate {
	ray, ok := e.flux.Advance(e.rng)
	if !ok || e.miss {
		return nil
	}
	return &Candidate{Flavor: ray.Flavor, Energy: ray.Energy, Vertex: ray.Origin, Weight: ray.Weight}
}

func (e *acceptAllEngine) CumulativeUsedExposure() float64 { return e.flux.UsedExposure() }
func (e *acceptAllEngine) GlobalProbabilityScale() float64 { return e.scale }

// withEngine swaps the engine factory for the duration of one test.
func withEngine(t *testing.T, engine GeneratorEngine) {
	t.Helper()
	prev := NewEngineFunc
	NewEngineFunc = func() GeneratorEngine { return engine }
	t.Cleanup(func() { NewEngineFunc = prev })
}

func monoConfig() Config {
	cfg := DefaultConfig()
	cfg.FluxType = "mono"
	cfg.Flavors = []int{14}
	return cfg
}

func TestDriver_MonoRun(t *testing.T) {
	withEngine(t, &acceptAllEngine{})
	geom := newStubGeometry()

	d, err := New(monoConfig(), geom)
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	if err := d.Initialize(); err != nil {
		t.Fatalf("Initialize error = %v", err)
	}

	evt, ok := d.SampleOnce()
	if !ok {
		t.Fatal("mono sample should succeed")
	}
	if evt.SourceType != SourceMono || evt.Flavor != 14 || evt.Energy != 2.0 {
		t.Errorf("event = %+v, want mono flavor 14 at 2 GeV", evt)
	}

	// mono forces a one-event spill regardless of the configured target
	if !d.EndOfSpill() {
		t.Error("one mono event should complete the spill")
	}
	d.CloseSpill()
	if d.EndOfSpill() {
		t.Error("closed spill should reopen")
	}
}

func TestDriver_ActiveVolumeScoping(t *testing.T) {
	withEngine(t, &acceptAllEngine{})
	geom := newStubGeometry()

	d, err := New(monoConfig(), geom)
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	if err := d.Initialize(); err != nil {
		t.Fatalf("Initialize error = %v", err)
	}
	geom.activations = nil

	d.SampleOnce()
	if len(geom.activations) != 2 ||
		geom.activations[0] != "vDet" || geom.activations[1] != "vWorld" {
		t.Errorf("activations = %v, want [vDet vWorld]", geom.activations)
	}
	if geom.active != "vWorld" {
		t.Errorf("active volume after sample = %q, want restored world", geom.active)
	}
}

func TestDriver_MissRecordsTrace(t *testing.T) {
	withEngine(t, &acceptAllEngine{miss: true})
	geom := newStubGeometry()

	d, err := New(monoConfig(), geom)
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	rt := trace.NewRunTrace(trace.Config{Level: trace.LevelSamples})
	d.SetTrace(rt)
	if err := d.Initialize(); err != nil {
		t.Fatalf("Initialize error = %v", err)
	}

	if _, ok := d.SampleOnce(); ok {
		t.Fatal("engine miss should surface as ok=false")
	}
	if len(rt.Samples) != 1 || rt.Samples[0].Viable {
		t.Errorf("trace = %+v, want one non-viable sample", rt.Samples)
	}
}

func TestDriver_UnusableCutIsSkipped(t *testing.T) {
	withEngine(t, &acceptAllEngine{})
	geom := newStubGeometry()

	cfg := monoConfig()
	cfg.FiducialCut = "cone:1,2,3,4" // unknown shape, not fatal
	d, err := New(cfg, geom)
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	if err := d.Initialize(); err != nil {
		t.Fatalf("unusable cut should be skipped, got %v", err)
	}
	if geom.selector != nil {
		t.Error("no selector should be installed for an unusable cut")
	}
}

func TestDriver_RockCutForcesWorldVolume(t *testing.T) {
	withEngine(t, &acceptAllEngine{})
	geom := newStubGeometry()

	cfg := monoConfig()
	cfg.FiducialCut = "rock:-5,-5,-5,5,5,5"
	d, err := New(cfg, geom)
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	if err := d.Initialize(); err != nil {
		t.Fatalf("Initialize error = %v", err)
	}
	if _, ok := geom.selector.(*RockShellSelector); !ok {
		t.Fatalf("selector = %T, want *RockShellSelector", geom.selector)
	}

	geom.activations = nil
	d.SampleOnce()
	// with a rock cut the whole run stays on the world volume
	if geom.activations[0] != "vWorld" {
		t.Errorf("first activation = %q, want vWorld", geom.activations[0])
	}
}

func TestDriver_BadRockCutIsFatal(t *testing.T) {
	withEngine(t, &acceptAllEngine{})

	cfg := monoConfig()
	cfg.FiducialCut = "rock:1,2,3"
	d, err := New(cfg, newStubGeometry())
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	if err := d.Initialize(); !errors.Is(err, ErrConfig) {
		t.Errorf("Initialize error = %v, want ErrConfig", err)
	}
}

func TestDriver_UnknownMixerDegrades(t *testing.T) {
	withEngine(t, &acceptAllEngine{})
	geom := newStubGeometry()

	cfg := monoConfig()
	cfg.MixerConfig = "warp 14:12"
	cfg.MixerBaseline = 735
	d, err := New(cfg, geom)
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	if err := d.Initialize(); err != nil {
		t.Fatalf("unknown mixer should degrade, got %v", err)
	}
	if d.adapter == nil {
		t.Fatal("adapter should wrap the source even without a mixer")
	}

	evt, ok := d.SampleOnce()
	if !ok {
		t.Fatal("sample should succeed")
	}
	if evt.Flavor != 14 {
		t.Errorf("flavor = %d, want unmixed 14", evt.Flavor)
	}
	if evt.TravelDist != 735 {
		t.Errorf("TravelDist = %g, want the baseline", evt.TravelDist)
	}
}

func TestDriver_SwapMixerRemapsFlavor(t *testing.T) {
	withEngine(t, &acceptAllEngine{})
	geom := newStubGeometry()

	cfg := monoConfig()
	cfg.MixerConfig = "swap 14:12"
	d, err := New(cfg, geom)
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	if err := d.Initialize(); err != nil {
		t.Fatalf("Initialize error = %v", err)
	}

	evt, ok := d.SampleOnce()
	if !ok {
		t.Fatal("sample should succeed")
	}
	if evt.Flavor != 12 {
		t.Errorf("flavor = %d, want swapped to 12", evt.Flavor)
	}
}

func TestDriver_NoEngineRegistered(t *testing.T) {
	prev := NewEngineFunc
	NewEngineFunc = nil
	t.Cleanup(func() { NewEngineFunc = prev })

	d, err := New(monoConfig(), newStubGeometry())
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	if err := d.Initialize(); !errors.Is(err, ErrConfig) {
		t.Errorf("Initialize error = %v, want ErrConfig", err)
	}
}

func TestDriver_TotalReferenceFluxWithoutHistogram(t *testing.T) {
	withEngine(t, &acceptAllEngine{})
	d, err := New(monoConfig(), newStubGeometry())
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	if err := d.Initialize(); err != nil {
		t.Fatalf("Initialize error = %v", err)
	}
	if got := d.TotalReferenceFlux(); got != -999. {
		t.Errorf("TotalReferenceFlux = %g, want -999", got)
	}
}

func TestDriver_ScanSettingsReachGeometry(t *testing.T) {
	withEngine(t, &acceptAllEngine{})
	geom := newStubGeometry()

	cfg := monoConfig()
	cfg.GeomScan = "box 200 300 1.5"
	d, err := New(cfg, geom)
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	if err := d.Initialize(); err != nil {
		t.Fatalf("Initialize error = %v", err)
	}
	if geom.scan.Method != ScanBox || geom.scan.Points != 200 || geom.scan.Rays != 300 {
		t.Errorf("scan settings = %+v, want box 200/300", geom.scan)
	}
	if geom.scan.SafetyFactor != 1.5 {
		t.Errorf("safety = %g, want 1.5", geom.scan.SafetyFactor)
	}
	if geom.scan.RNG == nil {
		t.Error("scan RNG should be wired")
	}
}
