package evgen

import (
	"math/rand"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// Ray is one flux candidate: a particle species on a straight path toward
// the detector.
type Ray struct {
	Flavor    int
	Energy    float64
	Origin    Vec3
	Direction Vec3
	Weight    float64
	DecayDist float64 // production-point to ray-origin distance, 0 if unknown
}

// FluxSource is the strategy that produces candidate rays. At most one real
// source is active per run, optionally nested inside one MixingAdapter.
//
// Advance draws the next candidate; Position, DecayDistance and the exposure
// report always refer to the most recent Advance.
type FluxSource interface {
	// Advance produces the next candidate ray. ok=false means the source
	// could not produce one (exhausted or empty).
	Advance(rng *rand.Rand) (Ray, bool)

	// Position returns the origin of the current ray.
	Position() Vec3

	// DecayDistance returns the production-to-origin distance of the current
	// ray, or 0 when the source cannot report one.
	DecayDistance() float64

	// UsedExposure reports the exposure consumed so far, in the source's
	// native units.
	UsedExposure() float64

	// Flavors lists the candidate species this source generates.
	Flavors() []int
}

// NewFluxSource dispatches purely on the source-type tag and constructs the
// matching strategy. files is the resolved flux file list (empty for mono).
// Atmospheric sources additionally require a 1:1 flavor/file pairing and a
// per-spill event target of exactly 1; violations are fatal.
func NewFluxSource(cfg *Config, files []string) (FluxSource, error) {
	st, err := cfg.SourceType()
	if err != nil {
		return nil, err
	}
	flavors := cfg.FlavorSet()

	switch st {
	case SourceMono:
		logrus.Infof("generating monoenergetic (%g GeV) candidates with flavors %v",
			cfg.MonoEnergy, flavors)
		return NewMonoSource(cfg.MonoEnergy, flavors, cfg.BeamCenterVec(), cfg.BeamDirectionVec()), nil

	case SourceHistogram:
		if len(files) == 0 {
			return nil, eris.Wrap(ErrConfig, "histogram flux needs one spectrum file, none resolved")
		}
		logrus.Infof("beam direction %v center %v radius %g",
			cfg.BeamDirection, cfg.BeamCenter, cfg.BeamRadius)
		return NewHistogramSource(files[0], flavors,
			cfg.BeamCenterVec(), cfg.BeamDirectionVec(), cfg.BeamRadius)

	case SourceNtuple, SourceSimple:
		src, err := NewNtupleSource(st, files, flavors)
		if err != nil {
			return nil, err
		}
		if abs(cfg.UpstreamZ) < 1.0e30 {
			src.SetUpstreamZ(cfg.UpstreamZ)
		}
		return src, nil

	case SourceAtmoFluka, SourceAtmoBartol:
		if len(flavors) != len(files) {
			return nil, eris.Wrapf(ErrConfig,
				"atmospheric generation needs one file per flavor: %d flavors, %d files",
				len(flavors), len(files))
		}
		if cfg.EventsPerSpill != 1 {
			return nil, eris.Wrapf(ErrConfig,
				"atmospheric generation needs events_per_spill = 1, got %g", cfg.EventsPerSpill)
		}
		logrus.Infof("atmospheric energy range [%g, %g] GeV, generation surface (%g, %g)",
			cfg.AtmoEMin, cfg.AtmoEMax, cfg.AtmoRadiusLong, cfg.AtmoRadiusTrans)
		return NewAtmoSource(st, flavors, files,
			cfg.AtmoEMin, cfg.AtmoEMax, cfg.AtmoRadiusLong, cfg.AtmoRadiusTrans)
	}
	return nil, eris.Wrapf(ErrConfig, "no flux source for type %q", st)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
