package evgen

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// PathRange is the [min,max] path length observed through one volume.
type PathRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// PathLengthTable maps volume names to the range of path lengths a ray can
// traverse through them. Computed by a geometry scan or loaded from a
// previously persisted table.
type PathLengthTable struct {
	Lengths map[string]PathRange `yaml:"path_lengths"`
}

// NewPathLengthTable returns an empty table ready for recording.
func NewPathLengthTable() *PathLengthTable {
	return &PathLengthTable{Lengths: make(map[string]PathRange)}
}

// Record folds one observed path length into the named volume's range.
func (t *PathLengthTable) Record(volume string, length float64) {
	r, ok := t.Lengths[volume]
	if !ok {
		t.Lengths[volume] = PathRange{Min: length, Max: length}
		return
	}
	if length < r.Min {
		r.Min = length
	}
	if length > r.Max {
		r.Max = length
	}
	t.Lengths[volume] = r
}

// ApplySafetyFactor scales every maximum by the given margin. Factors <= 0
// are ignored.
func (t *PathLengthTable) ApplySafetyFactor(f float64) {
	if f <= 0 {
		return
	}
	for vol, r := range t.Lengths {
		r.Max *= f
		t.Lengths[vol] = r
	}
}

// Max returns the recorded maximum for a volume, zero if never seen.
func (t *PathLengthTable) Max(volume string) float64 {
	return t.Lengths[volume].Max
}

// Save writes the table as YAML. A non-empty auditInfo is appended as a
// trailing human-readable comment block for later compatibility auditing.
func (t *PathLengthTable) Save(path, auditInfo string) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return eris.Wrap(err, "marshal path-length table")
	}
	var sb strings.Builder
	sb.Write(data)
	if auditInfo != "" {
		sb.WriteString("\n# this file is only relevant for a setup compatible with:\n")
		for _, line := range strings.Split(strings.TrimRight(auditInfo, "\n"), "\n") {
			fmt.Fprintf(&sb, "#%s\n", line)
		}
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return eris.Wrapf(err, "write path-length table %q", path)
	}
	return nil
}

// LoadPathLengthTable reads a previously saved table. Trailing audit
// comments are ignored by the YAML decoder.
func LoadPathLengthTable(path string) (*PathLengthTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(ErrConfig, "read path-length table %q: %v", path, err)
	}
	t := NewPathLengthTable()
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, eris.Wrapf(ErrConfig, "parse path-length table %q: %v", path, err)
	}
	return t, nil
}
