package evgen

import "math/rand"

// MonoSource generates monoenergetic candidates along a fixed beam axis,
// weighting every requested flavor equally.
type MonoSource struct {
	energy    float64
	flavors   []int
	weights   map[int]float64
	origin    Vec3
	direction Vec3

	thrown float64
	cur    Ray
}

// NewMonoSource builds the monoenergetic source. Each flavor gets weight
// 1/len(flavors).
func NewMonoSource(energy float64, flavors []int, origin, direction Vec3) *MonoSource {
	weights := make(map[int]float64, len(flavors))
	for _, f := range flavors {
		weights[f] = 1.0 / float64(len(flavors))
	}
	return &MonoSource{
		energy:    energy,
		flavors:   flavors,
		weights:   weights,
		origin:    origin,
		direction: direction.Unit(),
	}
}

func (s *MonoSource) Advance(rng *rand.Rand) (Ray, bool) {
	flavor := s.flavors[rng.Intn(len(s.flavors))]
	s.thrown++
	s.cur = Ray{
		Flavor:    flavor,
		Energy:    s.energy,
		Origin:    s.origin,
		Direction: s.direction,
		Weight:    s.weights[flavor],
	}
	return s.cur, true
}

func (s *MonoSource) Position() Vec3 { return s.cur.Origin }

// DecayDistance is unknown for a synthetic beam; the mixing adapter
// substitutes its baseline when wrapping this source.
func (s *MonoSource) DecayDistance() float64 { return 0 }

// UsedExposure counts thrown rays; mono spills are count-driven so the value
// is informational only.
func (s *MonoSource) UsedExposure() float64 { return s.thrown }

func (s *MonoSource) Flavors() []int { return s.flavors }
