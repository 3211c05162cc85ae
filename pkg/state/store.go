// Package state holds the mutable runtime state shared by all handlers:
// global variables set by rules, hit counters, cycle positions, and
// one-shot flags. The store is injected into the engine so that tests and
// multiple engine instances can each own an isolated copy.
package state

import (
	"hash/fnv"
	"sync"
)

// shardCount is the number of lock shards. Progress for different
// identities must not serialize against each other, so entries are
// spread across independently locked shards by identity hash.
const shardCount = 64

type shard struct {
	mu       sync.Mutex
	vars     map[string]string
	counters map[string]int
	cycles   map[string]int
	once     map[string]bool
}

// Store is the process-wide state container. All operations are atomic
// read-modify-writes with respect to other operations on the same key.
// The zero value is not usable; call NewStore.
type Store struct {
	shards [shardCount]*shard
}

// NewStore creates an empty state store.
func NewStore() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = &shard{
			vars:     make(map[string]string),
			counters: make(map[string]int),
			cycles:   make(map[string]int),
			once:     make(map[string]bool),
		}
	}
	return s
}

func (s *Store) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

// SetVar sets a global variable.
func (s *Store) SetVar(name, value string) {
	sh := s.shardFor(name)
	sh.mu.Lock()
	sh.vars[name] = value
	sh.mu.Unlock()
}

// GetVar returns the value of a variable and whether it has ever been set.
func (s *Store) GetVar(name string) (string, bool) {
	sh := s.shardFor(name)
	sh.mu.Lock()
	v, ok := sh.vars[name]
	sh.mu.Unlock()
	return v, ok
}

// VarOr returns the value of a variable, or def if it has never been set.
func (s *Store) VarOr(name, def string) string {
	if v, ok := s.GetVar(name); ok {
		return v
	}
	return def
}

// NextCount increments the counter for identity and returns the new value.
// The first call for an identity returns 1.
func (s *Store) NextCount(identity string) int {
	sh := s.shardFor(identity)
	sh.mu.Lock()
	sh.counters[identity]++
	n := sh.counters[identity]
	sh.mu.Unlock()
	return n
}

// AdvanceCycle returns the current cycle position for identity and
// advances it by one. Positions grow without bound; callers reduce
// modulo their list length.
func (s *Store) AdvanceCycle(identity string) int {
	sh := s.shardFor(identity)
	sh.mu.Lock()
	pos := sh.cycles[identity]
	sh.cycles[identity] = pos + 1
	sh.mu.Unlock()
	return pos
}

// ResetCycle resets the cycle position for identity back to zero.
func (s *Store) ResetCycle(identity string) {
	sh := s.shardFor(identity)
	sh.mu.Lock()
	delete(sh.cycles, identity)
	sh.mu.Unlock()
}

// ConsumeOnce reports whether the one-shot flag for identity was still
// armed, spending it. Only the first call per identity returns true.
func (s *Store) ConsumeOnce(identity string) bool {
	sh := s.shardFor(identity)
	sh.mu.Lock()
	spent := sh.once[identity]
	sh.once[identity] = true
	sh.mu.Unlock()
	return !spent
}

// Reset clears all variables and stateful progress. Called when a new
// rule set is loaded, matching a fresh start of the configuration.
func (s *Store) Reset() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.vars = make(map[string]string)
		sh.counters = make(map[string]int)
		sh.cycles = make(map[string]int)
		sh.once = make(map[string]bool)
		sh.mu.Unlock()
	}
}
