package evgen

import (
	"math"
	"testing"
)

func TestVec3_Arithmetic(t *testing.T) {
	a := Vec3{1, 2, 3}
	b := Vec3{4, -2, 1}

	if got := a.Add(b); got != (Vec3{5, 0, 4}) {
		t.Errorf("Add = %v", got)
	}
	if got := a.Sub(b); got != (Vec3{-3, 4, 2}) {
		t.Errorf("Sub = %v", got)
	}
	if got := a.Scale(2); got != (Vec3{2, 4, 6}) {
		t.Errorf("Scale = %v", got)
	}
	if got := (Vec3{3, 4, 0}).Mag(); got != 5 {
		t.Errorf("Mag = %g, want 5", got)
	}
}

func TestVec3_Unit(t *testing.T) {
	u := Vec3{0, 0, 10}.Unit()
	if u != (Vec3{0, 0, 1}) {
		t.Errorf("Unit = %v, want +z", u)
	}

	u = Vec3{1, 1, 1}.Unit()
	if math.Abs(u.Mag()-1) > 1e-12 {
		t.Errorf("Unit length = %g, want 1", u.Mag())
	}

	// degenerate direction falls back to +z
	if got := (Vec3{}).Unit(); got != (Vec3{0, 0, 1}) {
		t.Errorf("zero Unit = %v, want +z fallback", got)
	}
}
