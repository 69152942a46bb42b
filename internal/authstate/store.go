package authstate

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// defaultWriteTimeout bounds a single persistence write.
const defaultWriteTimeout = 10 * time.Second

// Persister writes an encoded blob to the instance record.
type Persister func(ctx context.Context, blob string) error

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for persistence failures.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithWriteTimeout sets the timeout applied to each persistence write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithFailureHook registers fn to be called after every failed persistence write.
func WithFailureHook(fn func(error)) Option {
	return func(s *Store) { s.onFailure = fn }
}

// Store owns one instance's State and is the only path through which the protocol client reads
// and writes key material. Every Set (and every Save) queues exactly one persistence write;
// writes run in order on a background goroutine and never block the caller. A failed write is
// logged and the in-memory state stays authoritative until the next write succeeds.
type Store struct {
	mu           sync.Mutex
	state        *State
	persist      Persister
	log          zerolog.Logger
	writeTimeout time.Duration
	onFailure    func(error)

	pending  []string
	flushing bool
	closed   bool
	wg       sync.WaitGroup
}

// NewStore wraps st. persist may be nil, in which case nothing is written.
func NewStore(st *State, persist Persister, opts ...Option) *Store {
	if st == nil {
		st = NewState(nil)
	}
	if st.Keys == nil {
		st.Keys = make(map[Category]map[string]any)
	}
	s := &Store{
		state:        st,
		persist:      persist,
		log:          zerolog.Nop(),
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the stored values of category for ids. Ids without a value are omitted.
func (s *Store) Get(category string, ids []string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(ids))
	bag := s.state.Keys[Category(category)]
	if bag == nil {
		return out
	}
	for _, id := range ids {
		if v, ok := bag[id]; ok && v != nil {
			out[id] = v
		}
	}
	return out
}

// Set merges data (category -> id -> value) into the key bag and queues a persistence write.
// A nil value removes the id.
func (s *Store) Set(data map[string]map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, entries := range data {
		cat := Category(name)
		bag := s.state.Keys[cat]
		if bag == nil {
			bag = make(map[string]any, len(entries))
			s.state.Keys[cat] = bag
		}
		for id, v := range entries {
			switch {
			case v == nil:
				delete(bag, id)
			case cat.Binary():
				bag[id] = Normalize(v)
			default:
				bag[id] = v
			}
		}
	}
	s.enqueueLocked()
}

// ViewCreds calls fn with the live credentials while holding the store lock.
// fn must not retain or modify creds.
func (s *Store) ViewCreds(fn func(Creds)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state.Creds)
}

// UpdateCreds calls fn with the live credentials while holding the store lock and normalizes
// the result. It does not persist; the protocol client signals that with a creds update event.
func (s *Store) UpdateCreds(fn func(Creds)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Creds == nil {
		s.state.Creds = Creds{}
	}
	fn(s.state.Creds)
	Normalize(s.state.Creds)
}

// Save queues a persistence write of the full state.
func (s *Store) Save() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueueLocked()
}

// Snapshot returns the encoded state.
func (s *Store) Snapshot() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Encode(s.state)
}

// Close stops queuing writes and waits until queued writes finish or ctx is done.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) enqueueLocked() {
	if s.closed || s.persist == nil {
		return
	}
	blob, err := Encode(s.state)
	if err != nil {
		s.log.Error().Err(err).Msg("authstate: encode failed, state not persisted")
		s.fail(err)
		return
	}
	s.pending = append(s.pending, blob)
	if !s.flushing {
		s.flushing = true
		s.wg.Add(1)
		go s.drain()
	}
}

func (s *Store) drain() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.flushing = false
			s.mu.Unlock()
			return
		}
		blob := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		err := s.persist(ctx, blob)
		cancel()
		if err != nil {
			s.log.Error().Err(err).Msg("authstate: persist failed")
			s.fail(err)
		}
	}
}

func (s *Store) fail(err error) {
	if s.onFailure != nil {
		s.onFailure(err)
	}
}
