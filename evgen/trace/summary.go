package trace

import (
	"os"

	"gopkg.in/yaml.v3"
)

// TraceSummary aggregates statistics from a RunTrace.
type TraceSummary struct {
	TotalSamples       int         `yaml:"total_samples"`
	ViableCount        int         `yaml:"viable_count"`
	MissCount          int         `yaml:"miss_count"`
	AcceptanceFraction float64     `yaml:"acceptance_fraction"`
	SpillCount         int         `yaml:"spill_count"`
	MeanEventsPerSpill float64     `yaml:"mean_events_per_spill"`
	TotalExposure      float64     `yaml:"total_exposure"`
	FlavorCounts       map[int]int `yaml:"flavor_counts"`
}

// Summarize computes aggregate statistics from a RunTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(rt *RunTrace) *TraceSummary {
	summary := &TraceSummary{
		FlavorCounts: make(map[int]int),
	}
	if rt == nil {
		return summary
	}

	summary.TotalSamples = len(rt.Samples)
	for _, s := range rt.Samples {
		if s.Viable {
			summary.ViableCount++
			summary.FlavorCounts[s.Flavor]++
		} else {
			summary.MissCount++
		}
	}
	if summary.TotalSamples > 0 {
		summary.AcceptanceFraction = float64(summary.ViableCount) / float64(summary.TotalSamples)
	}

	summary.SpillCount = len(rt.Spills)
	if summary.SpillCount > 0 {
		totalEvents := 0
		for _, sp := range rt.Spills {
			totalEvents += sp.Events
		}
		summary.MeanEventsPerSpill = float64(totalEvents) / float64(summary.SpillCount)
		summary.TotalExposure = rt.Spills[summary.SpillCount-1].TotalExposure
	}

	return summary
}

// WriteYAML persists the trace (records plus computed summary) to a file.
func (rt *RunTrace) WriteYAML(path string) error {
	out := struct {
		Summary *TraceSummary `yaml:"summary"`
		Trace   *RunTrace     `yaml:"trace"`
	}{Summary: Summarize(rt), Trace: rt}

	data, err := yaml.Marshal(&out)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
