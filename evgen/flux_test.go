package evgen

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

func TestNewFluxSource_Mono(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FluxType = "mono"
	cfg.Flavors = []int{14}

	src, err := NewFluxSource(&cfg, nil)
	if err != nil {
		t.Fatalf("NewFluxSource error = %v", err)
	}
	if _, ok := src.(*MonoSource); !ok {
		t.Errorf("source type = %T, want *MonoSource", src)
	}
}

func TestNewFluxSource_HistogramNeedsFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FluxType = "histogram"
	cfg.Flavors = []int{14}

	if _, err := NewFluxSource(&cfg, nil); !errors.Is(err, ErrConfig) {
		t.Errorf("histogram without files error = %v, want ErrConfig", err)
	}
}

func TestNewFluxSource_AtmoPairingMismatch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FluxType = "atmo_fluka"
	cfg.Flavors = []int{14, -14}
	cfg.EventsPerSpill = 1

	if _, err := NewFluxSource(&cfg, []string{"only-one.dat"}); !errors.Is(err, ErrConfig) {
		t.Errorf("flavor/file mismatch error = %v, want ErrConfig", err)
	}
}

func TestNewFluxSource_AtmoRequiresSingleEventSpills(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FluxType = "atmo_bartol"
	cfg.Flavors = []int{14}
	cfg.EventsPerSpill = 5

	if _, err := NewFluxSource(&cfg, []string{"flux.dat"}); !errors.Is(err, ErrConfig) {
		t.Errorf("events_per_spill != 1 error = %v, want ErrConfig", err)
	}
}

func TestMonoSource_Advance(t *testing.T) {
	src := NewMonoSource(2.0, []int{14, -14}, Vec3{0, 0, -100}, Vec3{0, 0, 5})
	rng := rand.New(rand.NewSource(42))

	counts := map[int]int{}
	for i := 0; i < 1000; i++ {
		ray, ok := src.Advance(rng)
		if !ok {
			t.Fatal("mono Advance should always succeed")
		}
		if ray.Energy != 2.0 {
			t.Fatalf("energy = %g, want 2", ray.Energy)
		}
		if ray.Direction.Z != 1 {
			t.Fatalf("direction = %v, want normalized +z", ray.Direction)
		}
		if ray.Weight != 0.5 {
			t.Fatalf("weight = %g, want 1/2", ray.Weight)
		}
		counts[ray.Flavor]++
	}
	if counts[14] == 0 || counts[-14] == 0 {
		t.Errorf("both flavors should appear, got %v", counts)
	}
	if src.UsedExposure() != 1000 {
		t.Errorf("UsedExposure = %g, want the thrown count", src.UsedExposure())
	}
	if src.Position() != (Vec3{0, 0, -100}) {
		t.Errorf("Position = %v, want the beam origin", src.Position())
	}
}

const testSpectrumYAML = `spectra:
  numu:
    e_min: 0.0
    bin_width: 1.0
    contents: [0.0, 3.0, 1.0]
  numubar:
    e_min: 0.0
    bin_width: 1.0
    contents: [1.0, 0.0, 0.0]
`

func writeSpectrumFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spectra.yaml")
	if err := os.WriteFile(path, []byte(testSpectrumYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHistogramSource_LoadAndFlux(t *testing.T) {
	src, err := NewHistogramSource(writeSpectrumFile(t), []int{14, -14},
		Vec3{}, Vec3{0, 0, 1}, 3.0)
	if err != nil {
		t.Fatalf("NewHistogramSource error = %v", err)
	}
	if src.TotalFlux() != 5.0 {
		t.Errorf("TotalFlux = %g, want 5", src.TotalFlux())
	}
	if got := src.FluxAt(14, 1.5); got != 3.0 {
		t.Errorf("FluxAt(14, 1.5) = %g, want 3", got)
	}
	if got := src.FluxAt(14, 9.0); got != 0 {
		t.Errorf("FluxAt outside the binned range = %g, want 0", got)
	}
	if got := src.FluxAt(12, 1.5); got != 0 {
		t.Errorf("FluxAt for an uncarried flavor = %g, want 0", got)
	}
}

func TestHistogramSource_MissingFlavorFatal(t *testing.T) {
	_, err := NewHistogramSource(writeSpectrumFile(t), []int{12},
		Vec3{}, Vec3{0, 0, 1}, 3.0)
	if !errors.Is(err, ErrConfig) {
		t.Errorf("missing nue spectrum error = %v, want ErrConfig", err)
	}
}

func TestHistogramSource_SamplingFollowsSpectra(t *testing.T) {
	src, err := NewHistogramSource(writeSpectrumFile(t), []int{14, -14},
		Vec3{0, 0, -50}, Vec3{0, 0, 1}, 3.0)
	if err != nil {
		t.Fatalf("NewHistogramSource error = %v", err)
	}
	rng := rand.New(rand.NewSource(42))

	counts := map[int]int{}
	n := 20000
	for i := 0; i < n; i++ {
		ray, ok := src.Advance(rng)
		if !ok {
			t.Fatal("Advance should succeed")
		}
		counts[ray.Flavor]++

		// energies stay inside the binned range of the drawn flavor
		if ray.Energy < 0 || ray.Energy > 3 {
			t.Fatalf("energy = %g outside the binned range", ray.Energy)
		}
		// ray origins stay within the transverse radius
		dx, dy := ray.Origin.X, ray.Origin.Y
		if dx*dx+dy*dy > 3.0*3.0+1e-9 {
			t.Fatalf("origin (%g,%g) outside the beam radius", dx, dy)
		}
	}

	// numu carries 4/5 of the flux
	frac := float64(counts[14]) / float64(n)
	if frac < 0.77 || frac > 0.83 {
		t.Errorf("numu fraction = %g, want ~0.8", frac)
	}
}

func TestSpectrum_At(t *testing.T) {
	s := &Spectrum{EMin: 1.0, BinWidth: 0.5, Contents: []float64{2, 4, 6}}
	tests := []struct {
		e    float64
		want float64
	}{
		{1.1, 2},
		{1.6, 4},
		{2.4, 6},
		{0.5, 0},
		{3.0, 0},
	}
	for _, tt := range tests {
		if got := s.At(tt.e); got != tt.want {
			t.Errorf("At(%g) = %g, want %g", tt.e, got, tt.want)
		}
	}
}
