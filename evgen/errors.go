package evgen

import "github.com/rotisserie/eris"

// Error classes for the driver. Fatal conditions (ErrConfig) abort
// initialization with diagnostic context; the remaining classes are
// recoverable and only degrade the run (see the call sites for what each
// degradation means).
var (
	// ErrConfig marks a fatal configuration problem: malformed rock cut,
	// unknown scan method, unresolvable required flux file, mismatched
	// flavor/file counts for atmospheric sources.
	ErrConfig = eris.New("configuration error")

	// ErrCutSpec marks an unusable fiducial cut spec. The caller logs it and
	// runs without the selector refinement.
	ErrCutSpec = eris.New("unusable fiducial cut spec")

	// ErrMixerUnknown marks a mixer name that resolved to nothing. The caller
	// wraps the flux source but does not mix.
	ErrMixerUnknown = eris.New("unknown flavor mixer")
)
