// Package reconnect schedules delayed restarts of dropped connections with capped exponential
// backoff, jitter and a per-instance cooldown.
package reconnect

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultBase      = 1200 * time.Millisecond
	DefaultCap       = 15 * time.Second
	DefaultJitterMax = 800 * time.Millisecond
	DefaultCooldown  = 2 * time.Second

	// maxExponent caps the doubling at attempt 4; later attempts reuse that delay (before Cap).
	maxExponent = 3
)

// Config holds the backoff parameters. Zero fields take the defaults; a negative JitterMax or
// Cooldown disables it.
type Config struct {
	Base      time.Duration
	Cap       time.Duration
	JitterMax time.Duration
	Cooldown  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Base <= 0 {
		c.Base = DefaultBase
	}
	if c.Cap <= 0 {
		c.Cap = DefaultCap
	}
	switch {
	case c.JitterMax == 0:
		c.JitterMax = DefaultJitterMax
	case c.JitterMax < 0:
		c.JitterMax = 0
	}
	switch {
	case c.Cooldown == 0:
		c.Cooldown = DefaultCooldown
	case c.Cooldown < 0:
		c.Cooldown = 0
	}
	return c
}

// BaseDelay returns the delay before jitter for the given 1-based attempt:
// min(Cap, Base * 2^min(attempt-1, 3)).
func (c Config) BaseDelay(attempt int) time.Duration {
	c = c.withDefaults()
	exp := attempt - 1
	if exp < 0 {
		exp = 0
	}
	if exp > maxExponent {
		exp = maxExponent
	}
	d := c.Base << exp
	if d > c.Cap {
		return c.Cap
	}
	return d
}

// Acquirer claims an instance before a restart. Implemented by lease.Lease.
type Acquirer interface {
	TryAcquire(ctx context.Context, id int64) (bool, error)
}

// ErrPermanent marks a restart failure that retrying cannot fix, such as a deleted instance.
// Other restart errors re-arm the restart with the next backoff attempt.
var ErrPermanent = errors.New("reconnect: permanent failure")

// RestartFunc re-initiates the connection for id after the lease was claimed.
type RestartFunc func(ctx context.Context, id int64) error

// Hooks observe scheduler decisions. Nil fields are skipped.
type Hooks struct {
	Scheduled func(id int64, attempt int, delay time.Duration)
	Abandoned func(id int64, reason string)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithHooks sets decision hooks, typically metric counters.
func WithHooks(h Hooks) Option {
	return func(s *Scheduler) { s.hooks = h }
}

// WithClock replaces the clock used for cooldown bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.nowF = now }
}

// WithJitter replaces the jitter source. f receives JitterMax and returns a value in [0, max].
func WithJitter(f func(max time.Duration) time.Duration) Option {
	return func(s *Scheduler) { s.jitterF = f }
}

// Scheduler owns the pending restart timers of every instance.
type Scheduler struct {
	cfg     Config
	lease   Acquirer
	restart RestartFunc
	log     zerolog.Logger
	hooks   Hooks
	nowF    func() time.Time
	jitterF func(time.Duration) time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	attempts      map[int64]int
	pending       map[int64]*pendingRestart
	cooldownUntil map[int64]time.Time
	stopped       bool
	wg            sync.WaitGroup
}

// New returns a Scheduler that claims leases through lease and restarts through restart.
func New(cfg Config, lease Acquirer, restart RestartFunc, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:           cfg.withDefaults(),
		lease:         lease,
		restart:       restart,
		log:           zerolog.Nop(),
		nowF:          time.Now,
		jitterF:       randomJitter,
		ctx:           ctx,
		cancel:        cancel,
		attempts:      make(map[int64]int),
		pending:       make(map[int64]*pendingRestart),
		cooldownUntil: make(map[int64]time.Time),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max + 1)
}

// Schedule arms a restart for id. It is a no-op, returning false, while a restart for id is
// already pending or after Stop. A call within the cooldown window of the previous one is not
// dropped; its restart is pushed back to the end of the window.
func (s *Scheduler) Schedule(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if _, ok := s.pending[id]; ok {
		return false
	}
	s.attempts[id]++
	attempt := s.attempts[id]
	delay := s.cfg.BaseDelay(attempt) + s.jitterF(s.cfg.JitterMax)

	now := s.nowF()
	if until, ok := s.cooldownUntil[id]; ok {
		if wait := until.Sub(now); wait > delay {
			delay = wait
		}
	}
	s.cooldownUntil[id] = now.Add(s.cfg.Cooldown)

	p := &pendingRestart{}
	s.wg.Add(1)
	p.timer = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.fire(id, p)
	})
	s.pending[id] = p

	s.log.Info().Int64("whatsapp_id", id).Int("attempt", attempt).Dur("delay", delay).Msg("restart scheduled")
	if s.hooks.Scheduled != nil {
		s.hooks.Scheduled(id, attempt, delay)
	}
	return true
}

type pendingRestart struct {
	timer *time.Timer
}

func (s *Scheduler) fire(id int64, p *pendingRestart) {
	s.mu.Lock()
	if s.pending[id] == p {
		delete(s.pending, id)
	}
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return
	}

	ok, err := s.lease.TryAcquire(s.ctx, id)
	if err != nil {
		s.abandon(id, "lease_error")
		s.log.Error().Err(err).Int64("whatsapp_id", id).Msg("restart abandoned: lease error")
		return
	}
	if !ok {
		s.abandon(id, "lease_held")
		s.log.Info().Int64("whatsapp_id", id).Msg("restart abandoned: lease held")
		return
	}
	err = s.restart(s.ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, ErrPermanent):
		s.abandon(id, "permanent")
		s.log.Error().Err(err).Int64("whatsapp_id", id).Msg("restart abandoned")
	default:
		s.log.Error().Err(err).Int64("whatsapp_id", id).Msg("restart failed, retrying")
		s.Schedule(id)
	}
}

func (s *Scheduler) abandon(id int64, reason string) {
	if s.hooks.Abandoned != nil {
		s.hooks.Abandoned(id, reason)
	}
}

// Reset clears the attempt counter of id. Called when a connection reaches CONNECTED.
func (s *Scheduler) Reset(id int64) {
	s.mu.Lock()
	delete(s.attempts, id)
	s.mu.Unlock()
}

// Cancel drops a pending restart of id, if any.
func (s *Scheduler) Cancel(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pending[id]; ok && p.timer.Stop() {
		delete(s.pending, id)
		s.wg.Done()
	}
}

// Attempts returns the current attempt counter of id.
func (s *Scheduler) Attempts(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[id]
}

// Pending reports whether a restart of id is armed.
func (s *Scheduler) Pending(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	return ok
}

// Stop cancels all pending restarts and waits for any in-flight restart to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for id, p := range s.pending {
		if p.timer.Stop() {
			s.wg.Done()
		}
		delete(s.pending, id)
	}
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}
