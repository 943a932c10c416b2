package variables

import (
	"sort"
	"sync"
)

// keySeparator joins a variable name and its argument into a cache key.
const keySeparator = "\x1f"

// Key returns the cache key for (name, arg). A missing argument and the empty
// argument share one slot.
func Key(name, arg string) string {
	return name + keySeparator + arg
}

// EntryState tracks a cache entry through its lifetime.
type EntryState string

const (
	// StatePending entries are reserved but no resolver has been invoked yet.
	StatePending EntryState = "pending"
	// StateInFlight entries have a resolver running.
	StateInFlight EntryState = "in-flight"
	// StateResolved entries settled with a value (possibly nil).
	StateResolved EntryState = "resolved"
	// StateFailed entries settled with a resolver error.
	StateFailed EntryState = "failed"
)

// Settled reports whether the state is terminal.
func (s EntryState) Settled() bool {
	return s == StateResolved || s == StateFailed
}

// EntryInfo is a read-only view of one cache entry.
type EntryInfo struct {
	Key   string
	Name  string
	Arg   string
	State EntryState
}

// Cache records every resolution performed within one call tree, or across
// several top-level calls when the caller shares it deliberately. Entries are
// only ever added. A Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: map[string]*entry{}}
}

type entry struct {
	ref   Ref
	state EntryState
	value *ResolvedVariable
	err   error
	done  chan struct{}
	// waitingOn holds the entries this entry's resolver is currently blocked
	// on. Guarded by Cache.mu.
	waitingOn map[*entry]struct{}
}

func newEntry(ref Ref) *entry {
	return &entry{
		ref:       ref,
		state:     StatePending,
		done:      make(chan struct{}),
		waitingOn: map[*entry]struct{}{},
	}
}

// Len reports how many entries the cache holds.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Entries returns a snapshot of every entry sorted by key.
func (c *Cache) Entries() []EntryInfo {
	c.mu.Lock()
	out := make([]EntryInfo, 0, len(c.entries))
	for key, e := range c.entries {
		out = append(out, EntryInfo{Key: key, Name: e.ref.Name, Arg: e.ref.Arg, State: e.state})
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Lookup returns the state of the entry for (name, arg).
func (c *Cache) Lookup(name, arg string) (EntryInfo, bool) {
	key := Key(name, arg)
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return EntryInfo{}, false
	}
	return EntryInfo{Key: key, Name: e.ref.Name, Arg: e.ref.Arg, State: e.state}, true
}

// reaches reports whether from is target or transitively waits on target.
// Callers must hold c.mu.
func (c *Cache) reaches(from, target *entry) bool {
	if from == target {
		return true
	}
	visited := map[*entry]struct{}{from: {}}
	stack := []*entry{from}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for next := range current.waitingOn {
			if next == target {
				return true
			}
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			stack = append(stack, next)
		}
	}
	return false
}

func (c *Cache) settle(e *entry, value *ResolvedVariable, err error) {
	c.mu.Lock()
	if err != nil {
		e.state = StateFailed
		e.err = err
	} else {
		e.state = StateResolved
		e.value = value
	}
	c.mu.Unlock()
	close(e.done)
}

func (c *Cache) markInFlight(e *entry) {
	c.mu.Lock()
	e.state = StateInFlight
	c.mu.Unlock()
}

func (c *Cache) stopWaiting(waiter, target *entry) {
	if waiter == nil {
		return
	}
	c.mu.Lock()
	delete(waiter.waitingOn, target)
	c.mu.Unlock()
}

func (e *entry) result() (*ResolvedVariable, error) {
	return e.value, e.err
}
