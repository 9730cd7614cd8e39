package evgen

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// SourceType tags the flux-source strategy the driver assembles.
type SourceType string

const (
	// SourceMono generates monoenergetic candidates along a fixed beam axis.
	SourceMono SourceType = "mono"
	// SourceHistogram samples energies from per-flavor spectrum histograms.
	SourceHistogram SourceType = "histogram"
	// SourceNtuple replays full precomputed beam-simulation ray records.
	SourceNtuple SourceType = "ntuple"
	// SourceSimple replays the reduced ("simple") ray record format.
	SourceSimple SourceType = "simple_flux"
	// SourceAtmoFluka samples the FLUKA atmospheric flux tables.
	SourceAtmoFluka SourceType = "atmo_fluka"
	// SourceAtmoBartol samples the BARTOL atmospheric flux tables.
	SourceAtmoBartol SourceType = "atmo_bartol"
)

// Atmospheric reports whether the source is one of the atmospheric-model
// variants, which share special spill accounting and validation rules.
func (s SourceType) Atmospheric() bool {
	return s == SourceAtmoFluka || s == SourceAtmoBartol
}

// NtupleFamily reports whether the source replays precomputed ray records
// (full or simple format), the exposure-driven spill variants.
func (s SourceType) NtupleFamily() bool {
	return s == SourceNtuple || s == SourceSimple
}

// ParseSourceType validates a flux-type tag from configuration.
func ParseSourceType(s string) (SourceType, error) {
	switch t := SourceType(strings.ToLower(strings.TrimSpace(s))); t {
	case SourceMono, SourceHistogram, SourceNtuple, SourceSimple,
		SourceAtmoFluka, SourceAtmoBartol:
		return t, nil
	default:
		return "", eris.Wrapf(ErrConfig, "unknown flux type %q", s)
	}
}

// UpstreamZUnset is the sentinel for "no upstream-Z override". Any configured
// value with magnitude below 1e30 is treated as a real override.
const UpstreamZUnset = -2.0e30

// Debug flag bits. Each bit independently toggles one diagnostic surface.
const (
	// DebugMixerConfig prints mixer/adapter configuration at initialization.
	DebugMixerConfig = 0x01
	// DebugMixerState prints the mixing adapter's runtime state per sample.
	DebugMixerState = 0x02
	// DebugVertexRay prints a vertex/ray diagnostic per sample.
	DebugVertexRay = 0x04
)

// Config is the immutable run configuration for the driver. It is created
// once at startup (cmd/ merges the YAML config file, environment, and flags)
// and never mutated after construction.
type Config struct {
	FluxType         string  `yaml:"flux_type" mapstructure:"flux_type"`
	BeamName         string  `yaml:"beam_name" mapstructure:"beam_name"`
	TopVolume        string  `yaml:"top_volume" mapstructure:"top_volume"`
	DetectorLocation string  `yaml:"detector_location" mapstructure:"detector_location"`
	Seed             int64   `yaml:"seed" mapstructure:"seed"`
	EventsPerSpill   float64 `yaml:"events_per_spill" mapstructure:"events_per_spill"`
	ExposurePerSpill float64 `yaml:"exposure_per_spill" mapstructure:"exposure_per_spill"`

	Flavors      []int    `yaml:"flavors" mapstructure:"flavors"`
	FluxPatterns []string `yaml:"flux_files" mapstructure:"flux_files"`
	SearchPath   string   `yaml:"search_path" mapstructure:"search_path"`

	MonoEnergy      float64   `yaml:"mono_energy" mapstructure:"mono_energy"`
	BeamCenter      []float64 `yaml:"beam_center" mapstructure:"beam_center"`
	BeamDirection   []float64 `yaml:"beam_direction" mapstructure:"beam_direction"`
	BeamRadius      float64   `yaml:"beam_radius" mapstructure:"beam_radius"`
	UpstreamZ       float64   `yaml:"upstream_z" mapstructure:"upstream_z"`
	SurroundingMass float64   `yaml:"surrounding_mass" mapstructure:"surrounding_mass"`

	AtmoEMin        float64 `yaml:"atmo_emin" mapstructure:"atmo_emin"`
	AtmoEMax        float64 `yaml:"atmo_emax" mapstructure:"atmo_emax"`
	AtmoRadiusLong  float64 `yaml:"atmo_rl" mapstructure:"atmo_rl"`
	AtmoRadiusTrans float64 `yaml:"atmo_rt" mapstructure:"atmo_rt"`

	MixerConfig   string  `yaml:"mixer_config" mapstructure:"mixer_config"`
	MixerBaseline float64 `yaml:"mixer_baseline" mapstructure:"mixer_baseline"`
	FiducialCut   string  `yaml:"fiducial_cut" mapstructure:"fiducial_cut"`
	GeomScan      string  `yaml:"geom_scan" mapstructure:"geom_scan"`
	DebugFlags    uint    `yaml:"debug_flags" mapstructure:"debug_flags"`
}

// DefaultConfig returns a Config with the documented defaults filled in.
// Callers overlay their settings on top of this.
func DefaultConfig() Config {
	return Config{
		Seed:             42,
		EventsPerSpill:   0,
		ExposurePerSpill: 5.0e13,
		MonoEnergy:       2.0,
		BeamCenter:       []float64{0, 0, 0},
		BeamDirection:    []float64{0, 0, 1},
		BeamRadius:       3.0,
		UpstreamZ:        UpstreamZUnset,
		AtmoEMin:         0.1,
		AtmoEMax:         10.0,
		AtmoRadiusLong:   20.0,
		AtmoRadiusTrans:  20.0,
		MixerConfig:      "none",
		FiducialCut:      "none",
		GeomScan:         "default",
	}
}

// SourceType parses and returns the validated flux-type tag.
func (c *Config) SourceType() (SourceType, error) {
	return ParseSourceType(c.FluxType)
}

// Validate checks the parts of the configuration that every source type
// needs. Source-specific checks (atmospheric flavor/file pairing, spill
// targets) happen in the flux factory where the file set is known.
func (c *Config) Validate() error {
	if _, err := c.SourceType(); err != nil {
		return err
	}
	if len(c.Flavors) == 0 {
		return eris.Wrap(ErrConfig, "no candidate flavors configured")
	}
	if len(c.BeamCenter) != 3 || len(c.BeamDirection) != 3 {
		return eris.Wrapf(ErrConfig, "beam center/direction need 3 components, got %d/%d",
			len(c.BeamCenter), len(c.BeamDirection))
	}
	return nil
}

// BeamCenterVec returns the beam spot as a Vec3.
func (c *Config) BeamCenterVec() Vec3 {
	return Vec3{c.BeamCenter[0], c.BeamCenter[1], c.BeamCenter[2]}
}

// BeamDirectionVec returns the beam axis as a Vec3.
func (c *Config) BeamDirectionVec() Vec3 {
	return Vec3{c.BeamDirection[0], c.BeamDirection[1], c.BeamDirection[2]}
}

// FlavorSet returns the candidate flavors deduplicated and in ascending
// order. Iteration order matters for the atmospheric 1:1 file pairing, so it
// is fixed here once.
func (c *Config) FlavorSet() []int {
	seen := make(map[int]bool, len(c.Flavors))
	out := make([]int, 0, len(c.Flavors))
	for _, f := range c.Flavors {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	sort.Ints(out)
	return out
}

// flavorHistName maps a flavor code to the histogram key used in spectrum
// files and in the per-event flux slot layout.
var flavorHistName = map[int]string{
	12:  "nue",
	-12: "nuebar",
	14:  "numu",
	-14: "numubar",
	16:  "nutau",
	-16: "nutaubar",
}

// Slot indices for the six-flavor flux layout carried on interactions.
const (
	SlotNue = iota
	SlotNueBar
	SlotNuMu
	SlotNuMuBar
	SlotNuTau
	SlotNuTauBar
	NumFlavorSlots
)

// FlavorSlot returns the slot index for a flavor code, or -1 for codes
// outside the six-flavor layout.
func FlavorSlot(flavor int) int {
	switch flavor {
	case 12:
		return SlotNue
	case -12:
		return SlotNueBar
	case 14:
		return SlotNuMu
	case -14:
		return SlotNuMuBar
	case 16:
		return SlotNuTau
	case -16:
		return SlotNuTauBar
	}
	return -1
}

// ResolveFluxFiles expands the configured file patterns into a deduplicated,
// sorted list of existing paths.
//
// A single pattern containing glob metacharacters is tried against every
// alternative in the search path and the alternative yielding the most
// matches wins. Plain entries resolve to the first search-path hit; absolute
// paths pass through untouched. Ntuple-family sources require at least one
// resolved file.
func (c *Config) ResolveFluxFiles() ([]string, error) {
	dirs := filepath.SplitList(c.SearchPath)
	if len(dirs) == 0 {
		dirs = []string{""}
	}

	found := make(map[string]bool)

	if len(c.FluxPatterns) == 1 && strings.ContainsAny(c.FluxPatterns[0], "*?") {
		// glob: take the search alternative with the most matches
		var best []string
		total := 0
		for _, dir := range dirs {
			matches, err := filepath.Glob(filepath.Join(dir, c.FluxPatterns[0]))
			if err != nil {
				return nil, eris.Wrapf(ErrConfig, "bad flux file pattern %q: %v", c.FluxPatterns[0], err)
			}
			total += len(matches)
			if len(matches) > len(best) {
				best = matches
			}
		}
		if total > 0 {
			logrus.Debugf("flux pattern %q matched %d files across %d search paths",
				c.FluxPatterns[0], total, len(dirs))
		}
		for _, m := range best {
			found[m] = true
		}
	} else {
		for _, pattern := range c.FluxPatterns {
			if filepath.IsAbs(pattern) {
				found[pattern] = true
				continue
			}
			for _, dir := range dirs {
				candidate := filepath.Join(dir, pattern)
				if _, err := os.Stat(candidate); err == nil {
					found[candidate] = true
					break
				}
			}
		}
	}

	files := make([]string, 0, len(found))
	for f := range found {
		files = append(files, f)
	}
	sort.Strings(files)

	if st, err := c.SourceType(); err == nil && st.NtupleFamily() && len(files) == 0 {
		return nil, eris.Wrapf(ErrConfig,
			"flux type %q requires at least one resolved file, none found for %v using search path %q",
			c.FluxType, c.FluxPatterns, c.SearchPath)
	}
	return files, nil
}
