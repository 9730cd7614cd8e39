package evgen

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"github.com/evgen-sim/evgen-sim/evgen/trace"
)

// MaxPathLengthFile is where the audit-requested path-length table lands at
// teardown.
const MaxPathLengthFile = "maxpathlength.yaml"

// Interaction is the usable result of one successful sample. Field-by-field
// packing of the generator's native record is out of scope; this carries the
// orchestration-level facts downstream consumers need.
type Interaction struct {
	SourceType  SourceType
	Flavor      int
	Energy      float64
	Weight      float64
	Vertex      Vec3
	RayOrigin   Vec3
	RayToVertex float64
	TravelDist  float64
	// FluxWeights carries the per-flavor flux at the generated energy in the
	// six-slot layout; populated for histogram sources only.
	FluxWeights [NumFlavorSlots]float64
}

// Driver assembles the flux source, selectors, and scan configuration, then
// drives the per-call sampling loop with spill accounting.
//
// Single-threaded by construction: one logical caller runs
// Initialize → repeated SampleOnce/EndOfSpill/CloseSpill → Close.
type Driver struct {
	cfg    Config
	source SourceType

	geom   GeometryService
	engine GeneratorEngine

	fluxReal  FluxSource     // the bare source
	fluxMixed FluxSource     // what the engine consumes (== fluxReal unless blended)
	adapter   *MixingAdapter // nil when unmixed
	histSrc   *HistogramSource
	atmoSrc   *AtmoSource

	accountant *SpillAccountant
	rng        *PartitionedRNG

	fluxFiles    []string
	topVolume    string // mutable: rock shells force the world volume
	worldVolume  string
	detectorMass float64
	auditInfo    string

	runTrace   *trace.RunTrace
	sampleSeq  int
	spillIndex int
}

// New validates the configuration and binds the driver to its geometry
// service. Initialize completes the assembly.
func New(cfg Config, geom GeometryService) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	st, err := cfg.SourceType()
	if err != nil {
		return nil, err
	}
	if geom == nil {
		return nil, eris.Wrap(ErrConfig, "no geometry service")
	}
	return &Driver{
		cfg:    cfg,
		source: st,
		geom:   geom,
		rng:    NewPartitionedRNG(NewRunKey(cfg.Seed)),
	}, nil
}

// SetTrace installs an optional run trace. Must be called before Initialize.
func (d *Driver) SetTrace(rt *trace.RunTrace) { d.runTrace = rt }

// Initialize assembles the run: fiducial selection, flux driver, mixing,
// geometry scan, engine wiring, and spill accounting. Fatal configuration
// problems return an error wrapping ErrConfig; recoverable spec problems are
// logged and skipped.
func (d *Driver) Initialize() error {
	if NewEngineFunc == nil {
		return eris.Wrap(ErrConfig, "no generator engine registered")
	}
	d.engine = NewEngineFunc()

	d.topVolume = d.cfg.TopVolume
	if d.topVolume == "" {
		d.topVolume = d.geom.TopVolumeName()
	}
	d.worldVolume = d.geom.WorldVolumeName()

	if err := d.initializeFiducialSelection(); err != nil {
		return err
	}

	files, err := d.cfg.ResolveFluxFiles()
	if err != nil {
		return err
	}
	d.fluxFiles = files

	if err := d.initializeFluxDriver(); err != nil {
		return err
	}

	mass, err := d.geom.TotalMass(d.topVolume)
	if err != nil {
		return eris.Wrapf(ErrConfig, "total mass of %q: %v", d.topVolume, err)
	}
	d.detectorMass = mass

	if err := d.configGeomScan(); err != nil {
		return err
	}

	if err := d.engine.Configure(d.geom, d.fluxMixed, d.rng.ForSubsystem(SubsystemEngine)); err != nil {
		return eris.Wrap(err, "configure generator engine")
	}

	eventsPerSpill := d.cfg.EventsPerSpill
	if d.source == SourceMono {
		eventsPerSpill = 1
	}
	d.accountant = NewSpillAccountant(d.source, eventsPerSpill, d.cfg.ExposurePerSpill,
		d.rng.ForSubsystem(SubsystemSpill).Int63())
	if d.atmoSrc != nil {
		d.accountant.SetAtmoArea(d.atmoSrc.GenerationArea())
	}
	totalRefFlux := 0.0
	if d.histSrc != nil {
		totalRefFlux = d.histSrc.TotalFlux()
	}
	d.accountant.BeginRun(d.detectorMass, d.cfg.SurroundingMass, totalRefFlux)

	if eventsPerSpill != 0 {
		logrus.Infof("generating %g events for each spill", eventsPerSpill)
	} else {
		logrus.Infof("using %g exposure for each spill", d.cfg.ExposurePerSpill)
	}
	return nil
}

// initializeFiducialSelection parses the fiducial cut and installs the
// resulting selector. Unusable specs are logged and skipped; a malformed
// rock cut is fatal.
func (d *Driver) initializeFiducialSelection() error {
	desc, err := ParseCutSpec(d.cfg.FiducialCut)
	if err != nil {
		if errors.Is(err, ErrCutSpec) {
			logrus.Warnf("skipping fiducial selection: %v", err)
			return nil
		}
		return err
	}
	if desc == nil {
		return nil
	}

	sel, err := BuildSelector(desc, d.geom.MasterToTop)
	if err != nil {
		logrus.Warnf("skipping fiducial selection: %v", err)
		return nil
	}

	if desc.Shape == CutRockShell {
		// rock-shell cuts are defined in the outer frame: force the world
		// volume active for the whole run
		d.topVolume = d.worldVolume
		if err := d.geom.SetActiveVolume(d.worldVolume); err != nil {
			return eris.Wrapf(ErrConfig, "force world volume for rock cut: %v", err)
		}
		logrus.Infof("fiducial (rock) cut: %s", sel.Describe())
	} else {
		logrus.Infof("fiducial cut: %s", sel.Describe())
		if desc.FromMasterFrame {
			logrus.Info("converted fiducial volume from master to topvol coords")
		}
		if desc.Reversed {
			logrus.Info("reversed sense of fiducial volume cut")
		}
	}

	d.geom.InstallVolumeSelector(sel)
	return nil
}

// initializeFluxDriver builds the flux source and optionally wraps it in the
// mixing adapter.
func (d *Driver) initializeFluxDriver() error {
	src, err := NewFluxSource(&d.cfg, d.fluxFiles)
	if err != nil {
		return err
	}
	d.fluxReal = src
	d.fluxMixed = src
	d.histSrc, _ = src.(*HistogramSource)
	d.atmoSrc, _ = src.(*AtmoSource)

	if d.source != SourceMono {
		logrus.Infof("generating flux with flavors %v from files %v", src.Flavors(), d.fluxFiles)
	}

	mixerCfg := strings.TrimSpace(d.cfg.MixerConfig)
	keyword := mixerCfg
	if i := strings.IndexAny(mixerCfg, " \t\n"); i >= 0 {
		keyword = mixerCfg[:i]
	}
	if keyword == "none" || keyword == "" {
		return nil
	}

	mixer, err := ResolveMixer(mixerCfg)
	if err != nil {
		if errors.Is(err, ErrMixerUnknown) {
			// degrade gracefully: wrap but do not mix
			logrus.Warnf("mixer config keyword %q did not map to a mixer; adapter in use, but no mixing", keyword)
			mixer = nil
		} else {
			return err
		}
	}

	d.adapter = NewMixingAdapter(d.fluxReal, mixer, d.cfg.MixerBaseline)
	d.fluxMixed = d.adapter
	if d.cfg.DebugFlags&DebugMixerConfig != 0 {
		if mixer != nil {
			mixer.PrintConfig()
		}
		d.adapter.PrintConfig()
	}
	return nil
}

// configGeomScan applies the geometry-scan configuration string.
func (d *Driver) configGeomScan() error {
	spec, err := ParseScanSpec(d.cfg.GeomScan)
	if err != nil {
		return err
	}
	settings := spec.Settings

	switch settings.Method {
	case ScanFromFile:
		path := d.resolveScanTable(spec.TablePath)
		table, err := LoadPathLengthTable(path)
		if err != nil {
			return err
		}
		settings.Table = table
		logrus.Infof("geometry scan loading path lengths from %q", path)
	case ScanBox:
		logrus.Infof("geometry scan using box, %d points, %d rays", settings.Points, settings.Rays)
	case ScanFlux:
		// samples directly from the flux source, which must exist by now
		settings.Flux = d.fluxReal
		logrus.Infof("geometry scan using flux, %d particles", settings.Particles)
	}
	settings.RNG = d.rng.ForSubsystem(SubsystemScan)

	if err := d.geom.ConfigureScan(settings); err != nil {
		return eris.Wrapf(ErrConfig, "configure geometry scan: %v", err)
	}
	if settings.SafetyFactor > 0 {
		logrus.Infof("geometry scan safety factor %g", settings.SafetyFactor)
	}
	if spec.WriteAudit {
		d.auditInfo = d.buildAuditInfo()
	}
	return nil
}

// resolveScanTable finds the persisted table along the search path.
func (d *Driver) resolveScanTable(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	for _, dir := range filepath.SplitList(d.cfg.SearchPath) {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return name
}

// buildAuditInfo composes the compatibility summary appended to the
// persisted path-length table.
func (d *Driver) buildAuditInfo() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "   FluxType:     %s\n", d.cfg.FluxType)
	fmt.Fprintf(&sb, "   BeamName:     %s\n", d.cfg.BeamName)
	sb.WriteString("   FluxFiles:")
	for _, f := range d.fluxFiles {
		fmt.Fprintf(&sb, "\n         %s", f)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "   DetLocation:  %s\n", d.cfg.DetectorLocation)
	fmt.Fprintf(&sb, "   WorldVolume:  %s\n", d.worldVolume)
	fmt.Fprintf(&sb, "   TopVolume:    %s\n", d.topVolume)
	fmt.Fprintf(&sb, "   FiducialCut:  %s\n", d.cfg.FiducialCut)
	fmt.Fprintf(&sb, "   GeomScan:     %s\n", d.cfg.GeomScan)
	return sb.String()
}

// SampleOnce asks the engine for one candidate. ok=false means the draw
// produced no viable interaction, not an error. Flux-side exposure
// bookkeeping still updates on a miss, so callers must not assume a failed
// sample leaves accounting untouched.
//
// The active volume is scoped to the detector sub-volume for the duration of
// the call and restored to the world volume afterward.
func (d *Driver) SampleOnce() (*Interaction, bool) {
	if err := d.geom.SetActiveVolume(d.topVolume); err != nil {
		logrus.Warnf("activate %q: %v", d.topVolume, err)
	}
	defer func() {
		if err := d.geom.SetActiveVolume(d.worldVolume); err != nil {
			logrus.Warnf("restore %q: %v", d.worldVolume, err)
		}
	}()

	d.sampleSeq++
	cand := d.engine.GenerateCandidate()

	// exposure-driven sources: book the used-exposure delta whether or not
	// the draw was viable
	if d.source.NtupleFamily() {
		scale := math.Max(d.engine.GlobalProbabilityScale(), 1.0e-100)
		d.accountant.SetSpillExposure(
			d.engine.CumulativeUsedExposure()/scale - d.accountant.TotalExposure())
	}

	if cand == nil {
		d.runTrace.RecordSample(trace.SampleRecord{Seq: d.sampleSeq, Viable: false})
		return nil, false
	}

	d.accountant.RecordEvent()

	evt := &Interaction{
		SourceType: d.source,
		Flavor:     cand.Flavor,
		Energy:     cand.Energy,
		Weight:     cand.Weight,
		Vertex:     cand.Vertex,
	}

	if d.histSrc != nil {
		for _, f := range d.histSrc.Flavors() {
			if slot := FlavorSlot(f); slot >= 0 {
				evt.FluxWeights[slot] = d.histSrc.FluxAt(f, cand.Energy)
			}
		}
	}

	rayPos := d.fluxReal.Position()
	evt.RayOrigin = rayPos
	evt.RayToVertex = cand.Vertex.Sub(rayPos).Mag()

	if d.adapter != nil {
		evt.TravelDist = d.adapter.TravelDist()
		if d.cfg.DebugFlags&DebugMixerState != 0 {
			d.adapter.PrintState()
		}
	}

	if d.cfg.DebugFlags&DebugVertexRay != 0 {
		logrus.Infof("vertex loc %g,%g,%g  flux ray start %g,%g,%g  ray2vtx = %g  travel = %g",
			evt.Vertex.X, evt.Vertex.Y, evt.Vertex.Z,
			rayPos.X, rayPos.Y, rayPos.Z, evt.RayToVertex, evt.TravelDist)
	}

	d.runTrace.RecordSample(trace.SampleRecord{
		Seq:         d.sampleSeq,
		Viable:      true,
		Flavor:      evt.Flavor,
		Energy:      evt.Energy,
		RayOrigin:   [3]float64{rayPos.X, rayPos.Y, rayPos.Z},
		Vertex:      [3]float64{evt.Vertex.X, evt.Vertex.Y, evt.Vertex.Z},
		RayToVertex: evt.RayToVertex,
		TravelDist:  evt.TravelDist,
	})
	return evt, true
}

// EndOfSpill reports whether the current spill is complete. No counters
// change until CloseSpill.
func (d *Driver) EndOfSpill() bool {
	return d.accountant.ShouldCloseSpill()
}

// CloseSpill commits the spill boundary: books exposure, resets the per-spill
// counters, and redraws the histogram target.
func (d *Driver) CloseSpill() {
	d.spillIndex++
	events := d.accountant.SpillEvents()
	exposure := d.accountant.SpillExposure()

	raw := 0.0
	if d.atmoSrc != nil {
		raw = d.atmoSrc.RawNeutrinoCount()
	}
	d.accountant.CloseSpill(raw)

	d.runTrace.RecordSpill(trace.SpillRecord{
		Index:         d.spillIndex,
		Events:        events,
		Exposure:      exposure,
		TotalExposure: d.accountant.TotalExposure(),
	})
}

// TotalExposure returns the booked exposure so far.
func (d *Driver) TotalExposure() float64 { return d.accountant.TotalExposure() }

// TotalReferenceFlux returns the histogram source's summed reference flux,
// or -999 for source types that have none.
func (d *Driver) TotalReferenceFlux() float64 {
	if d.histSrc == nil {
		return -999.
	}
	return d.histSrc.TotalFlux()
}

// Close tears the run down: persists the audit-requested path-length table
// (a failed write is reported, not fatal) and logs the exposure summary.
func (d *Driver) Close() error {
	if d.auditInfo != "" {
		if table := d.geom.MaxPathLengths(); table != nil {
			logrus.Infof("saving max path lengths as %q", MaxPathLengthFile)
			if err := table.Save(MaxPathLengthFile, d.auditInfo); err != nil {
				logrus.Warnf("could not save path-length table: %v", err)
			}
		}
	}

	probScale := 1.0
	rawUsed := 0.0
	if d.engine != nil {
		probScale = d.engine.GlobalProbabilityScale()
	}
	if d.source.NtupleFamily() && d.fluxReal != nil {
		rawUsed = d.fluxReal.UsedExposure()
	}
	logrus.Infof("total exposure %g  global prob scale %g  flux driver raw exposure %g  corrected %g",
		d.accountant.TotalExposure(), probScale, rawUsed, rawUsed/math.Max(probScale, 1.0e-100))
	return nil
}
