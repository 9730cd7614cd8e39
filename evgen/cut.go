package evgen

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// CutShape enumerates the selector shapes the cut mini-language can name.
type CutShape int

const (
	CutZCylinder CutShape = iota
	CutBox
	CutZPolygon
	CutSphere
	CutRockShell
)

// String returns the shape keyword as written in a cut spec.
func (s CutShape) String() string {
	switch s {
	case CutZCylinder:
		return "zcyl"
	case CutBox:
		return "box"
	case CutZPolygon:
		return "zpoly"
	case CutSphere:
		return "sphere"
	case CutRockShell:
		return "rock"
	}
	return "unknown"
}

// cutValueBuffer is the fixed value-buffer size; rock shells consume up to
// ten values, every other shape fewer.
const cutValueBuffer = 10

// minimum argument counts per shape
var cutMinValues = map[CutShape]int{
	CutZCylinder: 5,
	CutBox:       6,
	CutZPolygon:  7,
	CutSphere:    4,
	CutRockShell: 6,
}

// CutDescriptor is the structured result of parsing a fiducial cut spec.
// Values is always padded to the fixed buffer size; NValues records how many
// were actually supplied (the rock shell's optional tail depends on it).
type CutDescriptor struct {
	Shape           CutShape
	Reversed        bool // select the complement
	FromMasterFrame bool // coordinates need a master→top frame transform
	Values          []float64
	NValues         int
}

// ParseCutSpec parses the compact fiducial cut mini-language.
//
// Grammar (case-insensitive, whitespace trimmed):
//
//	[0][m]<SHAPE>:val1,val2,...
//
// "0" reverses the cut (exclude the volume), "m" marks the coordinates as
// given in the master frame. SHAPE is one of zcyl, box, zpoly, sphere, or a
// rock-prefixed keyword. Values may be separated by commas, whitespace,
// semicolons, parentheses, braces, or brackets.
//
// Value mapping:
//
//	zcyl:x0,y0,radius,zmin,zmax           - cylinder along z at (x0,y0) capped at z's
//	box:xmin,ymin,zmin,xmax,ymax,zmax     - box w/ lower & upper corners
//	zpoly:nfaces,x0,y0,r_in,phi,zmin,zmax - nfaces-sided polygon in the x-y plane
//	sphere:x0,y0,z0,radius                - sphere of fixed radius at (x0,y0,z0)
//	rock:xmin,ymin,zmin,xmax,ymax,zmax[,rockonly[,wallmin[,dedx[,fudge]]]]
//
// An empty spec or "none" yields (nil, nil): no selector applied. Shape
// keyword matching is substring-based in the fixed probe order
// rock, zcyl, box, zpoly, sphere; a spec naming two shapes resolves to the
// first probe hit, so any keyword containing "rock" (rockbox included) is a
// rock shell.
//
// Errors wrap ErrCutSpec (caller logs and skips selector installation)
// except the rock minimum-argument violation, which wraps ErrConfig and is
// fatal.
func ParseCutSpec(spec string) (*CutDescriptor, error) {
	fidcut := strings.ToLower(strings.TrimSpace(spec))
	if fidcut == "" || fidcut == "none" {
		return nil, nil
	}

	parts := strings.SplitN(fidcut, ":", 2)
	if len(parts) != 2 {
		return nil, eris.Wrapf(ErrCutSpec, "no %q separating shape from values in %q", ":", spec)
	}
	stype, valpart := parts[0], parts[1]

	d := &CutDescriptor{
		Reversed:        strings.Contains(stype, "0"),
		FromMasterFrame: strings.Contains(stype, "m"),
	}

	// rock is probed first so "rockbox" and friends land on the rock shell;
	// after that, first substring match wins
	switch {
	case strings.Contains(stype, "rock"):
		d.Shape = CutRockShell
	case strings.Contains(stype, "zcyl"):
		d.Shape = CutZCylinder
	case strings.Contains(stype, "box"):
		d.Shape = CutBox
	case strings.Contains(stype, "zpoly"):
		d.Shape = CutZPolygon
	case strings.Contains(stype, "sphere"):
		d.Shape = CutSphere
	default:
		return nil, eris.Wrapf(ErrCutSpec, "no recognized shape keyword in %q", stype)
	}

	d.Values = parseCutValues(valpart)
	d.NValues = len(d.Values)
	for len(d.Values) < cutValueBuffer {
		d.Values = append(d.Values, 0)
	}

	if min := cutMinValues[d.Shape]; d.NValues < min {
		if d.Shape == CutRockShell {
			return nil, eris.Wrapf(ErrConfig, "rock cut needs at least %d values, found %d in %q",
				min, d.NValues, spec)
		}
		return nil, eris.Wrapf(ErrCutSpec, "%s cut needs %d values, found %d in %q",
			d.Shape, min, d.NValues, spec)
	}
	if d.Shape == CutZPolygon {
		if nfaces := int(d.Values[0]); nfaces < 3 {
			return nil, eris.Wrapf(ErrCutSpec, "zpoly needs nfaces>=3, got %d in %q", nfaces, spec)
		}
	}
	return d, nil
}

// parseCutValues splits the value list on the allowed separators and parses
// each token left-to-right. Non-numeric tokens contribute zero, matching the
// original grammar's atof semantics.
func parseCutValues(s string) []float64 {
	tokens := strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(" \t,;(){}[]", r)
	})
	vals := make([]float64, 0, len(tokens))
	for _, tok := range tokens {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			v = 0
		}
		vals = append(vals, v)
	}
	return vals
}
