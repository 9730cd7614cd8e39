package evgen

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// scannerFloor: point/ray/particle counts at or below this fall back to the
// geometry service's own defaults, guarding against degenerate configuration.
const scannerFloor = 10

// ScanSpec is the parsed form of the geometry-scan configuration string.
type ScanSpec struct {
	Settings   ScanSettings
	TablePath  string // ScanFromFile: path to the persisted table (pre-resolution)
	WriteAudit bool
}

// ParseScanSpec parses the geometry-scan mini-language.
//
// "default" (or empty) leaves the geometry service untouched. Otherwise the
// spec is tokenized on whitespace and token 0 selects the method:
//
//	file <path>                       - load a persisted path-length table
//	box  <npoints> <nrays> [safety [writeaudit]]
//	flux <nparticles> [safety [writeaudit]]
//
// An unrecognized method is a fatal configuration error.
func ParseScanSpec(spec string) (*ScanSpec, error) {
	s := strings.ToLower(strings.TrimSpace(spec))
	if s == "" || strings.Contains(s, "default") {
		return &ScanSpec{Settings: ScanSettings{Method: ScanDefault}}, nil
	}

	fields := strings.Fields(s)
	method := fields[0]

	if strings.Contains(method, "file") {
		if len(fields) < 2 {
			return nil, eris.Wrapf(ErrConfig, "scan method file needs a path in %q", spec)
		}
		return &ScanSpec{
			Settings:  ScanSettings{Method: ScanFromFile},
			TablePath: fields[1],
		}, nil
	}

	// numeric tail, padded to 4 to avoid index issues
	vals := make([]float64, 0, len(fields)-1)
	for _, f := range fields[1:] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			v = 0
		}
		vals = append(vals, v)
	}
	nvals := len(vals)
	for len(vals) < 4 {
		vals = append(vals, 0)
	}

	out := &ScanSpec{}
	switch {
	case strings.Contains(method, "box"):
		out.Settings.Method = ScanBox
		out.Settings.Points = clampScannerCount(int(vals[0]))
		out.Settings.Rays = clampScannerCount(int(vals[1]))
		if nvals >= 3 {
			out.Settings.SafetyFactor = vals[2]
		}
		if nvals >= 4 {
			out.WriteAudit = vals[3] != 0
		}
	case strings.Contains(method, "flux"):
		out.Settings.Method = ScanFlux
		out.Settings.Particles = clampScannerCount(int(vals[0]))
		if nvals >= 2 {
			out.Settings.SafetyFactor = vals[1]
		}
		if nvals >= 3 {
			out.WriteAudit = vals[2] != 0
		}
	default:
		return nil, eris.Wrapf(ErrConfig, "unknown geometry scan method in %q", spec)
	}
	return out, nil
}

// clampScannerCount maps degenerate counts to zero, which the geometry
// service interprets as "use my own default".
func clampScannerCount(n int) int {
	if n <= scannerFloor {
		return 0
	}
	return n
}
