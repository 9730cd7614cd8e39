package evgen

import "math/rand"

// ScanMethod selects how the geometry service pre-computes maximum path
// lengths before generation starts.
type ScanMethod int

const (
	// ScanDefault leaves the geometry service's built-in parameters untouched.
	ScanDefault ScanMethod = iota
	// ScanFromFile loads a precomputed path-length table, replacing live
	// scanning entirely.
	ScanFromFile
	// ScanBox samples points and rays over the bounding box.
	ScanBox
	// ScanFlux samples rays directly from the flux source.
	ScanFlux
)

// ScanSettings carries the resolved geometry-scan configuration.
type ScanSettings struct {
	Method       ScanMethod
	Points       int     // box method: sample-point count (0 = keep default)
	Rays         int     // box method: ray count (0 = keep default)
	Particles    int     // flux method: particle count (0 = keep default)
	SafetyFactor float64 // >0: multiplicative margin on computed path lengths
	Flux         FluxSource
	Table        *PathLengthTable // ScanFromFile: the preloaded table
	RNG          *rand.Rand
}

// GeometryService is the opaque geometry collaborator. The driver mutates it
// during assembly (selector installation, scan configuration) and swaps its
// active volume around each sample; everything else about it is out of scope.
type GeometryService interface {
	TopVolumeName() string
	WorldVolumeName() string
	TotalMass(volume string) (float64, error)
	DetectorLength() float64

	// MasterToTop transforms a point from the master frame into the active
	// top-volume frame.
	MasterToTop(p Vec3) Vec3

	// InstallVolumeSelector attaches a selector that removes entries outside
	// it (or, for a rock shell, drives the overburden estimate).
	InstallVolumeSelector(sel VolumeSelector)

	// SetActiveVolume scopes subsequent path computations to the named
	// volume. SampleOnce swaps to the detector sub-volume for the duration
	// of one candidate and restores the world volume afterward.
	SetActiveVolume(name string) error

	// ConfigureScan applies the resolved scan settings.
	ConfigureScan(s ScanSettings) error

	// IntersectActive intersects a ray with the active volume, honoring any
	// installed selector. ok=false means the ray misses.
	IntersectActive(origin, dir Vec3) (entry Vec3, length float64, ok bool)

	// MaxPathLengths returns the current path-length table (computed or
	// loaded). May be nil before ConfigureScan.
	MaxPathLengths() *PathLengthTable
}

// Candidate is one interaction candidate produced by the generator engine.
type Candidate struct {
	Flavor int
	Energy float64
	Vertex Vec3
	Weight float64
}

// GeneratorEngine is the opaque generation collaborator: it consumes the
// flux source and geometry, and produces at most one candidate per call.
type GeneratorEngine interface {
	// Configure binds the engine to its collaborators. Called once, after
	// the flux source and geometry are fully assembled.
	Configure(geom GeometryService, flux FluxSource, rng *rand.Rand) error

	// GenerateCandidate returns the next candidate, or nil when the draw
	// produced no viable interaction (a RuntimeMiss, not an error).
	GenerateCandidate() *Candidate

	// CumulativeUsedExposure reports the exposure consumed so far across all
	// calls, in the flux source's native units.
	CumulativeUsedExposure() float64

	// GlobalProbabilityScale reports the engine-wide probability
	// normalization applied to every candidate.
	GlobalProbabilityScale() float64
}

// NewEngineFunc builds the generator engine. The reference implementation in
// evgen/engine registers itself here via init(); callers embedding a real
// engine overwrite it before constructing a Driver.
var NewEngineFunc func() GeneratorEngine
