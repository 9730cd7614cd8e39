package evgen

import (
	"hash/fnv"
	"math/rand"
)

// === RunKey ===

// RunKey uniquely identifies a reproducible generation run.
// Two runs with the same RunKey and identical configuration MUST produce
// bit-for-bit identical candidate sequences.
type RunKey int64

// NewRunKey creates a RunKey from a seed value.
func NewRunKey(seed int64) RunKey {
	return RunKey(seed)
}

// === Subsystem Constants ===

const (
	// SubsystemFlux is the RNG subsystem for flux-source candidate draws.
	// Uses the master seed directly so --seed reproduces the ray sequence.
	SubsystemFlux = "flux"

	// SubsystemSpill is the RNG subsystem for per-spill Poisson target draws.
	SubsystemSpill = "spill"

	// SubsystemEngine is the RNG subsystem for the generator engine's
	// acceptance draws.
	SubsystemEngine = "engine"

	// SubsystemScan is the RNG subsystem for geometry path-length scans.
	SubsystemScan = "scan"
)

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem,
// so that e.g. changing the scan point count never perturbs the flux ray
// sequence.
//
// Derivation formula:
//   - For SubsystemFlux: uses the master seed directly
//   - For all other subsystems: masterSeed XOR fnv1a64(subsystemName)
//
// Thread-safety: NOT thread-safe. Must be called from a single goroutine.
type PartitionedRNG struct {
	key        RunKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a RunKey.
func NewPartitionedRNG(key RunKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}

	var derivedSeed int64
	if name == SubsystemFlux {
		derivedSeed = int64(p.key)
	} else {
		derivedSeed = int64(p.key) ^ fnv1a64(name)
	}

	rng := rand.New(rand.NewSource(derivedSeed))
	p.subsystems[name] = rng
	return rng
}

// Key returns the RunKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() RunKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
