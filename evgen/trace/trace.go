package trace

// Level controls the verbosity of run tracing.
type Level string

const (
	// LevelNone disables tracing (zero overhead).
	LevelNone Level = "none"
	// LevelSamples captures every sample attempt and spill boundary.
	LevelSamples Level = "samples"
)

// validLevels maps accepted trace level strings.
var validLevels = map[Level]bool{
	LevelNone:    true,
	LevelSamples: true,
	"":           true, // empty defaults to none
}

// IsValidLevel returns true if the given level string is a recognized trace level.
func IsValidLevel(level string) bool {
	return validLevels[Level(level)]
}

// Config controls trace collection behavior.
type Config struct {
	Level Level
}

// RunTrace collects sample and spill records during a generation run.
type RunTrace struct {
	Config  Config         `yaml:"-"`
	Samples []SampleRecord `yaml:"samples"`
	Spills  []SpillRecord  `yaml:"spills"`
}

// NewRunTrace creates a RunTrace ready for recording.
func NewRunTrace(config Config) *RunTrace {
	return &RunTrace{
		Config:  config,
		Samples: make([]SampleRecord, 0),
		Spills:  make([]SpillRecord, 0),
	}
}

// Enabled reports whether records are being kept.
func (rt *RunTrace) Enabled() bool {
	return rt != nil && rt.Config.Level == LevelSamples
}

// RecordSample appends a sample record.
func (rt *RunTrace) RecordSample(record SampleRecord) {
	if !rt.Enabled() {
		return
	}
	rt.Samples = append(rt.Samples, record)
}

// RecordSpill appends a spill boundary record.
func (rt *RunTrace) RecordSpill(record SpillRecord) {
	if !rt.Enabled() {
		return
	}
	rt.Spills = append(rt.Spills, record)
}
