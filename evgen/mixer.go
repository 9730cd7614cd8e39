package evgen

import (
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// FlavorMixer remaps a generated particle's species identity to model
// oscillation-like effects.
type FlavorMixer interface {
	// Config consumes the mixer's configuration text.
	Config(config string) error

	// Mix returns the remapped flavor for a candidate produced at the given
	// travel distance.
	Mix(flavor int, dist float64, rng *rand.Rand) int

	// PrintConfig logs the mixer's configuration.
	PrintConfig()
}

// MixerFactory builds a FlavorMixer for the registry.
type MixerFactory func() FlavorMixer

var mixerRegistry = make(map[string]MixerFactory)

// RegisterMixer adds an extension mixer under an exact name. Built-in names
// (map, swap, fixedfrac) cannot be overridden.
func RegisterMixer(name string, f MixerFactory) {
	mixerRegistry[name] = f
}

// AvailableMixers lists the registered extension mixer names.
func AvailableMixers() []string {
	names := make([]string, 0, len(mixerRegistry))
	for n := range mixerRegistry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// builtinMixerNames select the built-in remapping table.
var builtinMixerNames = map[string]bool{
	"map":       true,
	"swap":      true,
	"fixedfrac": true,
}

// ResolveMixer maps a mixer-config string to a configured FlavorMixer.
//
// The leading token names the strategy: built-in names select FlavorMap
// (which consumes the full config string, keyword included); other names are
// looked up in the registry, with the name stripped before the remainder is
// passed to the mixer's Config. Resolution failure returns ErrMixerUnknown;
// callers degrade to wrap-without-mixing.
func ResolveMixer(mixerConfig string) (FlavorMixer, error) {
	cfg := strings.TrimSpace(mixerConfig)
	keyword := cfg
	if i := strings.IndexAny(cfg, " \t\n"); i >= 0 {
		keyword = cfg[:i]
	}

	var mixer FlavorMixer
	if builtinMixerNames[keyword] {
		mixer = NewFlavorMap()
	} else if factory, ok := mixerRegistry[keyword]; ok {
		mixer = factory()
		cfg = strings.TrimSpace(strings.TrimPrefix(cfg, keyword))
	} else {
		if known := AvailableMixers(); len(known) > 0 {
			logrus.Warnf("known extension mixers: %v", known)
		}
		return nil, eris.Wrapf(ErrMixerUnknown, "keyword %q did not map to a mixer", keyword)
	}

	if err := mixer.Config(cfg); err != nil {
		return nil, err
	}
	return mixer, nil
}

// FlavorMap is the built-in mixer behind the map, swap, and fixedfrac
// keywords. map and swap install a deterministic flavor→flavor table;
// fixedfrac draws the outgoing flavor from fixed fractions regardless of the
// incoming one.
type FlavorMap struct {
	mode  string
	pairs map[int]int // map/swap: identity when absent

	fracFlavors []int // fixedfrac: outgoing flavors
	fracCum     []float64
}

// NewFlavorMap returns an unconfigured built-in mixer.
func NewFlavorMap() *FlavorMap {
	return &FlavorMap{pairs: make(map[int]int)}
}

// Config parses "map from:to ...", "swap a:b ..." (symmetric), or
// "fixedfrac flavor:fraction ..." (fractions normalized).
func (m *FlavorMap) Config(config string) error {
	fields := strings.Fields(strings.TrimSpace(config))
	if len(fields) == 0 {
		return eris.Wrap(ErrConfig, "empty flavor map config")
	}
	m.mode = fields[0]

	switch m.mode {
	case "map", "swap":
		for _, pair := range fields[1:] {
			a, b, err := parseIntPair(pair)
			if err != nil {
				return eris.Wrapf(ErrConfig, "flavor map entry %q: %v", pair, err)
			}
			m.pairs[a] = b
			if m.mode == "swap" {
				m.pairs[b] = a
			}
		}
	case "fixedfrac":
		total := 0.0
		for _, pair := range fields[1:] {
			parts := strings.SplitN(pair, ":", 2)
			if len(parts) != 2 {
				return eris.Wrapf(ErrConfig, "fixedfrac entry %q: want flavor:fraction", pair)
			}
			flavor, err := strconv.Atoi(parts[0])
			if err != nil {
				return eris.Wrapf(ErrConfig, "fixedfrac entry %q: %v", pair, err)
			}
			frac, err := strconv.ParseFloat(parts[1], 64)
			if err != nil || frac < 0 {
				return eris.Wrapf(ErrConfig, "fixedfrac entry %q: bad fraction", pair)
			}
			total += frac
			m.fracFlavors = append(m.fracFlavors, flavor)
			m.fracCum = append(m.fracCum, total)
		}
		if total <= 0 {
			return eris.Wrap(ErrConfig, "fixedfrac fractions sum to zero")
		}
		for i := range m.fracCum {
			m.fracCum[i] /= total
		}
	default:
		return eris.Wrapf(ErrConfig, "flavor map mode %q not one of map/swap/fixedfrac", m.mode)
	}
	return nil
}

func (m *FlavorMap) Mix(flavor int, dist float64, rng *rand.Rand) int {
	switch m.mode {
	case "map", "swap":
		if to, ok := m.pairs[flavor]; ok {
			return to
		}
		return flavor
	case "fixedfrac":
		u := rng.Float64()
		for i, cum := range m.fracCum {
			if u <= cum {
				return m.fracFlavors[i]
			}
		}
		return m.fracFlavors[len(m.fracFlavors)-1]
	}
	return flavor
}

func (m *FlavorMap) PrintConfig() {
	switch m.mode {
	case "map", "swap":
		logrus.Infof("flavor map mode=%s pairs=%v", m.mode, m.pairs)
	case "fixedfrac":
		logrus.Infof("flavor map mode=fixedfrac flavors=%v cum=%v", m.fracFlavors, m.fracCum)
	default:
		logrus.Info("flavor map unconfigured")
	}
}

func parseIntPair(s string) (int, int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, eris.New("want from:to")
	}
	a, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}
	b, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// MixingAdapter wraps a real flux source and applies a flavor mixer to each
// candidate. When the wrapped source cannot report a decay distance the
// adapter substitutes its fixed baseline, so distance-dependent mixers still
// get a usable input. A nil mixer wraps without mixing.
type MixingAdapter struct {
	src      FluxSource
	mixer    FlavorMixer
	baseline float64

	travelDist float64
	cur        Ray
}

// NewMixingAdapter wraps src. mixer may be nil (resolution failure degrades
// to pass-through).
func NewMixingAdapter(src FluxSource, mixer FlavorMixer, baseline float64) *MixingAdapter {
	return &MixingAdapter{src: src, mixer: mixer, baseline: baseline}
}

func (a *MixingAdapter) Advance(rng *rand.Rand) (Ray, bool) {
	ray, ok := a.src.Advance(rng)
	if !ok {
		return Ray{}, false
	}
	a.travelDist = a.src.DecayDistance()
	if a.travelDist == 0 {
		a.travelDist = a.baseline
	}
	if a.mixer != nil {
		ray.Flavor = a.mixer.Mix(ray.Flavor, a.travelDist, rng)
	}
	a.cur = ray
	return a.cur, true
}

func (a *MixingAdapter) Position() Vec3 { return a.src.Position() }

// DecayDistance reports the synthesized travel distance of the current ray.
func (a *MixingAdapter) DecayDistance() float64 { return a.travelDist }

func (a *MixingAdapter) UsedExposure() float64 { return a.src.UsedExposure() }

func (a *MixingAdapter) Flavors() []int { return a.src.Flavors() }

// TravelDist is the baseline-or-reported distance used for the last mix.
func (a *MixingAdapter) TravelDist() float64 { return a.travelDist }

// PrintConfig logs the adapter's wiring.
func (a *MixingAdapter) PrintConfig() {
	logrus.Infof("mixing adapter baseline=%g mixing=%v", a.baseline, a.mixer != nil)
}

// PrintState logs the adapter's per-sample state.
func (a *MixingAdapter) PrintState() {
	logrus.Infof("mixing adapter state: flavor=%d travel=%g", a.cur.Flavor, a.travelDist)
}
