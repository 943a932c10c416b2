package variables

import (
	"sort"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

const defaultSubscriberCapacity = 32

// ChangeKind describes what happened to a registry entry.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeReplaced ChangeKind = "replaced"
	ChangeRemoved  ChangeKind = "removed"
)

// Change is delivered to subscribers once per mutating registry call.
type Change struct {
	Kind ChangeKind
	Name string
}

// Handle reverses a registration. Dispose is idempotent.
type Handle struct {
	dispose func()
	once    *sync.Once
}

func newHandle(fn func()) Handle {
	return Handle{dispose: fn, once: &sync.Once{}}
}

// Dispose undoes the registration that produced the handle.
func (h Handle) Dispose() {
	if h.once == nil || h.dispose == nil {
		return
	}
	h.once.Do(h.dispose)
}

// RegistryOption customizes Registry construction.
type RegistryOption func(*Registry)

// RegistryWithLogger injects a logger for dropped notifications.
func RegistryWithLogger(logger Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// RegistryWithSubscriberCapacity overrides the buffered channel size per subscriber.
func RegistryWithSubscriberCapacity(capacity int) RegistryOption {
	return func(r *Registry) {
		if capacity > 0 {
			r.capacity = capacity
		}
	}
}

type registration struct {
	variable Variable
	seq      uint64
}

// Registry holds the catalogue of declared variables. Registering a name that
// is already declared shadows the earlier declaration; disposing the newer
// handle brings the earlier one back.
type Registry struct {
	mu          sync.RWMutex
	// entries holds every live declaration per name, newest last.
	entries     map[string][]registration
	seq         uint64
	subscribers map[*subscriber]struct{}
	capacity    int
	logger      Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		entries:     map[string][]registration{},
		subscribers: map[*subscriber]struct{}{},
		capacity:    defaultSubscriberCapacity,
		logger:      nopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Register adds or overwrites the variable keyed by its name. The returned
// handle withdraws this declaration again: if it is the visible one, the
// previous declaration of the name (if any) becomes visible.
func (r *Registry) Register(v Variable) (Handle, error) {
	if err := v.Validate(); err != nil {
		return Handle{}, err
	}
	v = v.clone()
	r.mu.Lock()
	r.seq++
	seq := r.seq
	existed := len(r.entries[v.Name]) > 0
	r.entries[v.Name] = append(r.entries[v.Name], registration{variable: v, seq: seq})
	subs := r.snapshotSubscribers()
	r.mu.Unlock()

	kind := ChangeAdded
	if existed {
		kind = ChangeReplaced
	}
	r.notify(subs, Change{Kind: kind, Name: v.Name})

	name := v.Name
	return newHandle(func() { r.remove(name, seq) }), nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(v Variable) Handle {
	h, err := r.Register(v)
	if err != nil {
		panic(err)
	}
	return h
}

// Unregister removes every declaration of name. Unknown names are ignored.
func (r *Registry) Unregister(name string) {
	r.remove(name, 0)
}

// remove withdraws the declaration with seq, or all of them when seq is 0.
// Withdrawing a shadowed declaration changes nothing visible and notifies no
// one.
func (r *Registry) remove(name string, seq uint64) {
	r.mu.Lock()
	stack := r.entries[name]
	idx := -1
	for i, reg := range stack {
		if reg.seq == seq {
			idx = i
			break
		}
	}
	var kind ChangeKind
	switch {
	case len(stack) == 0:
	case seq == 0 || len(stack) == 1 && idx == 0:
		delete(r.entries, name)
		kind = ChangeRemoved
	case idx < 0:
	default:
		remaining := make([]registration, 0, len(stack)-1)
		remaining = append(remaining, stack[:idx]...)
		remaining = append(remaining, stack[idx+1:]...)
		r.entries[name] = remaining
		if idx == len(stack)-1 {
			kind = ChangeReplaced
		}
	}
	if kind == "" {
		r.mu.Unlock()
		return
	}
	subs := r.snapshotSubscribers()
	r.mu.Unlock()
	r.notify(subs, Change{Kind: kind, Name: name})
}

// Get looks up the visible declaration of name.
func (r *Registry) Get(name string) (Variable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stack := r.entries[name]
	if len(stack) == 0 {
		return Variable{}, false
	}
	return stack[len(stack)-1].variable.clone(), true
}

// List returns a snapshot of every visible variable sorted by name.
func (r *Registry) List() []Variable {
	r.mu.RLock()
	out := make([]Variable, 0, len(r.entries))
	for _, stack := range r.entries {
		out = append(out, stack[len(stack)-1].variable.clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the sorted variable names.
func (r *Registry) Names() []string {
	vars := r.List()
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = v.Name
	}
	return names
}

// Suggest returns registered names that fuzzily match name, best match first.
func (r *Registry) Suggest(name string) []string {
	if name == "" {
		return nil
	}
	ranks := fuzzy.RankFindFold(name, r.Names())
	if len(ranks) == 0 {
		return nil
	}
	sort.Sort(ranks)
	out := make([]string, len(ranks))
	for i, rank := range ranks {
		out[i] = rank.Target
	}
	return out
}

// Subscription represents an active change subscription.
type Subscription struct {
	Events <-chan Change
	cancel func()
}

// Close terminates the subscription and closes Events.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Subscribe registers for change notifications. Each mutating call delivers
// exactly one Change; callers needing debouncing must do it themselves.
func (r *Registry) Subscribe() Subscription {
	sub := newSubscriber(r.capacity, r.logger)
	r.mu.Lock()
	r.subscribers[sub] = struct{}{}
	r.mu.Unlock()
	return Subscription{
		Events: sub.channel(),
		cancel: func() {
			r.mu.Lock()
			delete(r.subscribers, sub)
			r.mu.Unlock()
			sub.close()
		},
	}
}

func (r *Registry) snapshotSubscribers() []*subscriber {
	if len(r.subscribers) == 0 {
		return nil
	}
	items := make([]*subscriber, 0, len(r.subscribers))
	for sub := range r.subscribers {
		items = append(items, sub)
	}
	return items
}

func (r *Registry) notify(subs []*subscriber, change Change) {
	for _, sub := range subs {
		sub.deliver(change)
	}
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan Change
	logger Logger
	closed bool
}

func newSubscriber(capacity int, logger Logger) *subscriber {
	if capacity <= 0 {
		capacity = defaultSubscriberCapacity
	}
	return &subscriber{ch: make(chan Change, capacity), logger: logger}
}

func (s *subscriber) channel() <-chan Change {
	return s.ch
}

// deliver never blocks: when the buffer is full the oldest change is dropped.
func (s *subscriber) deliver(change Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- change:
		return
	default:
	}
	select {
	case oldest := <-s.ch:
		s.logger.Printf("variables: dropped %s notification for %s (queue overflow)", oldest.Kind, oldest.Name)
	default:
	}
	s.ch <- change
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
