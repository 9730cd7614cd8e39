package evgen

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
)

// VolumeSelector is a geometric inclusion rule restricting where candidate
// interactions are accepted. Implementations are pure: Contains never
// mutates state.
type VolumeSelector interface {
	Contains(p Vec3) bool
	Describe() string
}

// ZCylinderSelector selects points inside a cylinder parallel to the z axis.
type ZCylinderSelector struct {
	X0, Y0     float64
	Radius     float64
	ZMin, ZMax float64
}

func (s *ZCylinderSelector) Contains(p Vec3) bool {
	if p.Z < s.ZMin || p.Z > s.ZMax {
		return false
	}
	dx, dy := p.X-s.X0, p.Y-s.Y0
	return dx*dx+dy*dy <= s.Radius*s.Radius
}

func (s *ZCylinderSelector) Describe() string {
	return fmt.Sprintf("zcyl (%g,%g) r=%g z=[%g,%g]", s.X0, s.Y0, s.Radius, s.ZMin, s.ZMax)
}

// BoxSelector selects points inside an axis-aligned box.
type BoxSelector struct {
	Min, Max Vec3
}

func (s *BoxSelector) Contains(p Vec3) bool {
	return p.X >= s.Min.X && p.X <= s.Max.X &&
		p.Y >= s.Min.Y && p.Y <= s.Max.Y &&
		p.Z >= s.Min.Z && p.Z <= s.Max.Z
}

func (s *BoxSelector) Describe() string {
	return fmt.Sprintf("box [%g,%g,%g]-[%g,%g,%g]",
		s.Min.X, s.Min.Y, s.Min.Z, s.Max.X, s.Max.Y, s.Max.Z)
}

// ZPolygonSelector selects points inside a regular n-sided prism along z,
// described by its inscribed radius and a rotation of the first face normal.
type ZPolygonSelector struct {
	NFaces     int
	X0, Y0     float64
	RIn        float64 // inscribed (face-center) radius
	Phi        float64 // rotation of the first face normal, radians
	ZMin, ZMax float64
}

func (s *ZPolygonSelector) Contains(p Vec3) bool {
	if p.Z < s.ZMin || p.Z > s.ZMax {
		return false
	}
	dx, dy := p.X-s.X0, p.Y-s.Y0
	// inside iff the projection onto every face normal stays within the
	// inscribed radius
	for k := 0; k < s.NFaces; k++ {
		ang := s.Phi + 2*math.Pi*float64(k)/float64(s.NFaces)
		if dx*math.Cos(ang)+dy*math.Sin(ang) > s.RIn {
			return false
		}
	}
	return true
}

func (s *ZPolygonSelector) Describe() string {
	return fmt.Sprintf("zpoly n=%d (%g,%g) rin=%g phi=%g z=[%g,%g]",
		s.NFaces, s.X0, s.Y0, s.RIn, s.Phi, s.ZMin, s.ZMax)
}

// SphereSelector selects points inside a sphere.
type SphereSelector struct {
	Center Vec3
	Radius float64
}

func (s *SphereSelector) Contains(p Vec3) bool {
	d := p.Sub(s.Center)
	return d.X*d.X+d.Y*d.Y+d.Z*d.Z <= s.Radius*s.Radius
}

func (s *SphereSelector) Describe() string {
	return fmt.Sprintf("sphere (%g,%g,%g) r=%g", s.Center.X, s.Center.Y, s.Center.Z, s.Radius)
}

// Rock shell physical-loss defaults: an 8 m wall buffer and a rock-like
// dE/dx (rho=2.5 g/cm3 times 1.7e-3 GeV cm2/g), derated by a safety fudge.
const (
	DefaultRockWallMin = 800.0        // cm
	DefaultRockDeDx    = 2.5 * 1.7e-3 // GeV/cm
	DefaultRockFudge   = 1.05
)

// RockShellSelector models the bulk shielding around the fiducial volume.
// Its membership test is a minimal bounding box (rock-only mode) or a
// negligibly small exclusion sphere (otherwise); the loss parameters drive
// the geometry service's overburden energy-loss estimate.
type RockShellSelector struct {
	Min, Max Vec3
	RockOnly bool
	WallMin  float64 // minimum wall distance, cm
	DeDx     float64 // energy loss per length, GeV/cm, fudge already applied
}

func (s *RockShellSelector) Contains(p Vec3) bool {
	if s.RockOnly {
		return (&BoxSelector{Min: s.Min, Max: s.Max}).Contains(p)
	}
	// tiny exclusion bubble avoids a degenerate empty selector
	return (&SphereSelector{Radius: 1.0e-10}).Contains(p)
}

func (s *RockShellSelector) Describe() string {
	return fmt.Sprintf("rock [%g,%g,%g]-[%g,%g,%g] rockonly=%v wallmin=%g dedx=%g",
		s.Min.X, s.Min.Y, s.Min.Z, s.Max.X, s.Max.Y, s.Max.Z, s.RockOnly, s.WallMin, s.DeDx)
}

// reversedSelector negates the wrapped selector's membership test.
type reversedSelector struct {
	inner VolumeSelector
}

func (s *reversedSelector) Contains(p Vec3) bool { return !s.inner.Contains(p) }
func (s *reversedSelector) Describe() string     { return "reversed " + s.inner.Describe() }

// BuildSelector turns a parsed cut descriptor into a concrete selector.
// masterToTop is applied to the shape coordinates when the descriptor's
// FromMasterFrame flag is set; rock shells are always given in the master
// frame and never transformed here.
func BuildSelector(d *CutDescriptor, masterToTop func(Vec3) Vec3) (VolumeSelector, error) {
	if d == nil {
		return nil, eris.Wrap(ErrCutSpec, "nil cut descriptor")
	}
	v := d.Values

	xform := func(p Vec3) Vec3 { return p }
	if d.FromMasterFrame && d.Shape != CutRockShell && masterToTop != nil {
		xform = masterToTop
	}

	var sel VolumeSelector
	switch d.Shape {
	case CutZCylinder:
		lo := xform(Vec3{v[0], v[1], v[3]})
		hi := xform(Vec3{v[0], v[1], v[4]})
		sel = &ZCylinderSelector{X0: lo.X, Y0: lo.Y, Radius: v[2], ZMin: lo.Z, ZMax: hi.Z}
	case CutBox:
		sel = &BoxSelector{
			Min: xform(Vec3{v[0], v[1], v[2]}),
			Max: xform(Vec3{v[3], v[4], v[5]}),
		}
	case CutZPolygon:
		lo := xform(Vec3{v[1], v[2], v[5]})
		hi := xform(Vec3{v[1], v[2], v[6]})
		sel = &ZPolygonSelector{
			NFaces: int(v[0]),
			X0:     lo.X, Y0: lo.Y,
			RIn: v[3], Phi: v[4],
			ZMin: lo.Z, ZMax: hi.Z,
		}
	case CutSphere:
		sel = &SphereSelector{Center: xform(Vec3{v[0], v[1], v[2]}), Radius: v[3]}
	case CutRockShell:
		rock := &RockShellSelector{
			Min:      Vec3{v[0], v[1], v[2]},
			Max:      Vec3{v[3], v[4], v[5]},
			RockOnly: true,
			WallMin:  DefaultRockWallMin,
		}
		dedx := DefaultRockDeDx
		fudge := DefaultRockFudge
		if d.NValues >= 7 {
			rock.RockOnly = v[6] != 0
		}
		if d.NValues >= 8 {
			rock.WallMin = v[7]
		}
		if d.NValues >= 9 {
			dedx = v[8]
		}
		if d.NValues >= 10 {
			fudge = v[9]
		}
		rock.DeDx = dedx / fudge
		sel = rock
	default:
		return nil, eris.Wrapf(ErrCutSpec, "unhandled cut shape %v", d.Shape)
	}

	if d.Reversed {
		sel = &reversedSelector{inner: sel}
	}
	return sel, nil
}
