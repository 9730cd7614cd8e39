package evgen

import (
	"math"
	"math/rand"
	"testing"
)

// === RunKey Tests ===

func TestRunKey_Creation(t *testing.T) {
	tests := []struct {
		name string
		seed int64
	}{
		{"positive seed", 42},
		{"zero seed", 0},
		{"negative seed", -1},
		{"max int64", math.MaxInt64},
		{"min int64", math.MinInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := NewRunKey(tt.seed)
			if int64(key) != tt.seed {
				t.Errorf("NewRunKey(%d) = %d, want %d", tt.seed, key, tt.seed)
			}
		})
	}
}

// === PartitionedRNG Tests ===

func TestPartitionedRNG_DeterministicDerivation(t *testing.T) {
	// BDD: Same key+name produces same sequence
	rng1 := NewPartitionedRNG(NewRunKey(42))
	rng2 := NewPartitionedRNG(NewRunKey(42))

	for i := 0; i < 5; i++ {
		v1 := rng1.ForSubsystem(SubsystemFlux).Float64()
		v2 := rng2.ForSubsystem(SubsystemFlux).Float64()
		if v1 != v2 {
			t.Errorf("draw %d: got %v and %v, want identical", i, v1, v2)
		}
	}
}

func TestPartitionedRNG_SubsystemIsolation(t *testing.T) {
	// BDD: Drawing from subsystem A doesn't affect subsystem B
	rngA := NewPartitionedRNG(NewRunKey(42))
	rngB := NewPartitionedRNG(NewRunKey(42))

	// Perturb A's engine stream before reading its flux stream
	for i := 0; i < 100; i++ {
		rngA.ForSubsystem(SubsystemEngine).Float64()
	}

	for i := 0; i < 5; i++ {
		vA := rngA.ForSubsystem(SubsystemFlux).Float64()
		vB := rngB.ForSubsystem(SubsystemFlux).Float64()
		if vA != vB {
			t.Errorf("draw %d: engine draws perturbed the flux stream (%v vs %v)", i, vA, vB)
		}
	}
}

func TestPartitionedRNG_FluxUsesMasterSeed(t *testing.T) {
	// The flux subsystem is seeded with the master seed directly, so the ray
	// sequence matches a bare rand source with the same seed.
	p := NewPartitionedRNG(NewRunKey(7))
	direct := rand.New(rand.NewSource(7))

	for i := 0; i < 5; i++ {
		if got, want := p.ForSubsystem(SubsystemFlux).Float64(), direct.Float64(); got != want {
			t.Fatalf("draw %d: flux stream %v, bare seed stream %v", i, got, want)
		}
	}
}

func TestPartitionedRNG_CachedInstances(t *testing.T) {
	p := NewPartitionedRNG(NewRunKey(1))
	if p.ForSubsystem(SubsystemSpill) != p.ForSubsystem(SubsystemSpill) {
		t.Error("repeated ForSubsystem calls should return the same instance")
	}
}

func TestPartitionedRNG_DifferentSeedsDiffer(t *testing.T) {
	a := NewPartitionedRNG(NewRunKey(1)).ForSubsystem(SubsystemFlux)
	b := NewPartitionedRNG(NewRunKey(2)).ForSubsystem(SubsystemFlux)

	same := true
	for i := 0; i < 10; i++ {
		if a.Float64() != b.Float64() {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical streams")
	}
}
