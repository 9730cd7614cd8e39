package evgen

import (
	"errors"
	"testing"
)

func TestParseCutSpec_NoOpForms(t *testing.T) {
	for _, spec := range []string{"", "none", " NONE ", "  "} {
		d, err := ParseCutSpec(spec)
		if err != nil {
			t.Errorf("ParseCutSpec(%q) error = %v, want nil", spec, err)
		}
		if d != nil {
			t.Errorf("ParseCutSpec(%q) = %+v, want nil descriptor", spec, d)
		}
	}
}

func TestParseCutSpec_ValidShapes(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		shape   CutShape
		nvalues int
	}{
		{"zcyl", "zcyl:0,0,100,-50,50", CutZCylinder, 5},
		{"box", "box:-1,-2,-3,1,2,3", CutBox, 6},
		{"zpoly", "zpoly:6,0,0,100,0,-50,50", CutZPolygon, 7},
		{"sphere", "sphere:0,0,0,25", CutSphere, 4},
		{"rock minimal", "rock:-5,-5,-5,5,5,5", CutRockShell, 6},
		{"rockbox keyword", "rockbox:-5,-5,-5,5,5,5", CutRockShell, 6},
		{"rock full tail", "rock:-5,-5,-5,5,5,5,1,900,0.004,1.1", CutRockShell, 10},
		{"mixed separators", "box: -1 -2;-3 (1){2}[3]", CutBox, 6},
		{"uppercase", "ZCYL:0,0,100,-50,50", CutZCylinder, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseCutSpec(tt.spec)
			if err != nil {
				t.Fatalf("ParseCutSpec(%q) error = %v", tt.spec, err)
			}
			if d.Shape != tt.shape {
				t.Errorf("shape = %v, want %v", d.Shape, tt.shape)
			}
			if d.NValues != tt.nvalues {
				t.Errorf("NValues = %d, want %d", d.NValues, tt.nvalues)
			}
			if len(d.Values) != cutValueBuffer {
				t.Errorf("Values padded to %d, want %d", len(d.Values), cutValueBuffer)
			}
		})
	}
}

func TestParseCutSpec_Flags(t *testing.T) {
	d, err := ParseCutSpec("0mbox:-1,-2,-3,1,2,3")
	if err != nil {
		t.Fatalf("ParseCutSpec error = %v", err)
	}
	if !d.Reversed {
		t.Error("expected Reversed for leading 0")
	}
	if !d.FromMasterFrame {
		t.Error("expected FromMasterFrame for leading m")
	}

	d, err = ParseCutSpec("zcyl:0,0,100,-50,50")
	if err != nil {
		t.Fatalf("ParseCutSpec error = %v", err)
	}
	if d.Reversed || d.FromMasterFrame {
		t.Error("plain spec should set neither flag")
	}
}

func TestParseCutSpec_ProbeOrder(t *testing.T) {
	// "zcylbox" names two shapes; the fixed probe order resolves to zcyl
	d, err := ParseCutSpec("zcylbox:0,0,100,-50,50")
	if err != nil {
		t.Fatalf("ParseCutSpec error = %v", err)
	}
	if d.Shape != CutZCylinder {
		t.Errorf("shape = %v, want CutZCylinder (probe order)", d.Shape)
	}

	// the rock probe runs before the others, so "rockbox" is a rock shell,
	// not a plain box
	d, err = ParseCutSpec("rockbox:-5,-5,-5,5,5,5")
	if err != nil {
		t.Fatalf("ParseCutSpec error = %v", err)
	}
	if d.Shape != CutRockShell {
		t.Errorf("shape = %v, want CutRockShell (rock probed first)", d.Shape)
	}
}

func TestParseCutSpec_Errors(t *testing.T) {
	tests := []struct {
		name string
		spec string
		want error
	}{
		{"no separator", "box 1 2 3", ErrCutSpec},
		{"unknown shape", "cone:1,2,3,4", ErrCutSpec},
		{"zcyl short", "zcyl:0,0,100", ErrCutSpec},
		{"box short", "box:1,2,3", ErrCutSpec},
		{"zpoly few faces", "zpoly:2,0,0,100,0,-50,50", ErrCutSpec},
		{"rock short is fatal", "rock:1,2,3", ErrConfig},
		{"rockbox short is fatal", "rockbox:1,2,3", ErrConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCutSpec(tt.spec)
			if !errors.Is(err, tt.want) {
				t.Errorf("ParseCutSpec(%q) error = %v, want %v", tt.spec, err, tt.want)
			}
		})
	}
}

func TestParseCutSpec_NonNumericTokensBecomeZero(t *testing.T) {
	d, err := ParseCutSpec("sphere:bogus,0,0,25")
	if err != nil {
		t.Fatalf("ParseCutSpec error = %v", err)
	}
	if d.Values[0] != 0 {
		t.Errorf("non-numeric token parsed to %g, want 0", d.Values[0])
	}
	if d.Values[3] != 25 {
		t.Errorf("radius = %g, want 25", d.Values[3])
	}
}
