package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible simulation run.
// Two simulations with the same SimulationKey and identical configuration
// MUST produce identical arrival sequences and service-time draws.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// === Subsystem names ===

// SubsystemClient returns the RNG subsystem name for a client node.
func SubsystemClient(id string) string {
	return "client_" + id
}

// SubsystemStageOneWorker returns the RNG subsystem name for the idx-th
// stage-1 worker of a kind, counting every worker ever spawned for it.
func SubsystemStageOneWorker(kind Kind, idx int) string {
	return fmt.Sprintf("p1_%s_%d", kind, idx)
}

// SubsystemStageTwoWorker returns the RNG subsystem name for the gen-th
// stage-2 worker incarnation of a kind.
func SubsystemStageTwoWorker(kind Kind, gen int) string {
	return fmt.Sprintf("p2_%s_%d", kind, gen)
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per entity.
// A single shared generator would serialize every stochastic draw behind one
// lock; instead each client and worker owns a generator sub-seeded from the
// master seed and its own name.
//
// Derivation: masterSeed XOR fnv1a64(subsystemName).
//
// The returned *rand.Rand values are each single-goroutine; the map itself is
// guarded so pools may derive generators for workers spawned at runtime.
type PartitionedRNG struct {
	key SimulationKey

	mu         sync.Mutex
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named entity.
// The same name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	p.mu.Lock()
	defer p.mu.Unlock()

	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(p.SeedFor(name)))
	p.subsystems[name] = rng
	return rng
}

// SeedFor returns the derived seed for the named entity without constructing
// a generator. Used where a raw seed is needed, e.g. gonum distribution
// sources in the service-time oracle.
func (p *PartitionedRNG) SeedFor(name string) int64 {
	return int64(p.key) ^ fnv1a64(name)
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
