// Package engine provides the reference generator engine. It draws rays from
// the flux source, intersects them with the active geometry volume, and
// accepts candidates with probability proportional to the chord length. The
// engine registers itself through evgen.NewEngineFunc in init(); embedding a
// real physics generator means overwriting that hook before driver assembly.
package engine

import (
	"math/rand"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"github.com/evgen-sim/evgen-sim/evgen"
)

// interactionStrength sets the per-unit-length acceptance before the global
// probability scale is applied. Deliberately crude: the reference engine
// exists to exercise the driver loop, not to model cross sections.
const interactionStrength = 1.0

func init() {
	evgen.NewEngineFunc = func() evgen.GeneratorEngine { return New() }
}

// Engine is the reference evgen.GeneratorEngine.
type Engine struct {
	geom evgen.GeometryService
	flux evgen.FluxSource
	rng  *rand.Rand

	probScale float64
}

func New() *Engine { return &Engine{probScale: 1.0} }

// Configure binds the engine to its collaborators and derives the global
// probability scale from the scanned maximum path length, so that the
// longest possible chord maps to acceptance 1.
func (e *Engine) Configure(geom evgen.GeometryService, flux evgen.FluxSource, rng *rand.Rand) error {
	if geom == nil || flux == nil || rng == nil {
		return eris.New("engine needs geometry, flux and rng")
	}
	e.geom = geom
	e.flux = flux
	e.rng = rng

	if table := geom.MaxPathLengths(); table != nil {
		if max := table.Max(geom.TopVolumeName()); max > 0 {
			e.probScale = interactionStrength * max
		}
	}
	logrus.Debugf("engine configured, probability scale %g", e.probScale)
	return nil
}

// GenerateCandidate draws one ray and turns it into a candidate, or nil when
// the ray misses the active volume or the acceptance draw fails.
func (e *Engine) GenerateCandidate() *evgen.Candidate {
	ray, ok := e.flux.Advance(e.rng)
	if !ok {
		return nil
	}

	entry, chord, hit := e.geom.IntersectActive(ray.Origin, ray.Direction)
	if !hit || chord <= 0 {
		return nil
	}

	accept := chord * interactionStrength / e.probScale
	if accept < 1 && e.rng.Float64() >= accept {
		return nil
	}

	// vertex uniform along the chord
	vertex := entry.Add(ray.Direction.Scale(e.rng.Float64() * chord))
	return &evgen.Candidate{
		Flavor: ray.Flavor,
		Energy: ray.Energy,
		Vertex: vertex,
		Weight: ray.Weight,
	}
}

// CumulativeUsedExposure mirrors the flux source's own exposure accounting.
func (e *Engine) CumulativeUsedExposure() float64 {
	if e.flux == nil {
		return 0
	}
	return e.flux.UsedExposure()
}

func (e *Engine) GlobalProbabilityScale() float64 { return e.probScale }
