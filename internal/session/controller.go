// Package session drives the connection lifecycle of every WhatsApp instance served by this
// process: it builds the auth store, constructs the protocol client, reacts to its events and
// recovers dropped connections through the lease and the reconnect scheduler.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"whatsapp-control-plane/backend/internal/authstate"
	"whatsapp-control-plane/backend/internal/notify"
	"whatsapp-control-plane/backend/internal/session/lease"
	"whatsapp-control-plane/backend/internal/session/reconnect"
	"whatsapp-control-plane/backend/internal/session/registry"
	"whatsapp-control-plane/backend/internal/telemetry"
	"whatsapp-control-plane/backend/internal/waclient"
	"whatsapp-control-plane/backend/internal/whatsapp/domain"
	"whatsapp-control-plane/backend/internal/whatsapp/repository"
)

const (
	DefaultQRMaxRetries       = 3
	DefaultStartupConcurrency = 4

	// opTimeout bounds each persistence or publish call made from the event loop.
	opTimeout      = 10 * time.Second
	versionTimeout = 10 * time.Second
)

// Forgetter purges protocol side storage of an instance whose credentials were discarded.
type Forgetter interface {
	Purge(ctx context.Context, whatsappID int64) (int64, error)
}

// Observer is told the status of every persisted transition.
type Observer interface {
	SessionStatus(whatsappID int64, status domain.Status)
}

// Config holds the lifecycle tunables. Zero fields take the defaults.
type Config struct {
	QRMaxRetries       int
	StartupConcurrency int
	LeaseStaleAfter    time.Duration
	Reconnect          reconnect.Config
}

// Deps are the collaborators of a Controller. Repo and Factory are required.
type Deps struct {
	Repo      repository.Repository
	Factory   waclient.Factory
	Publisher notify.Publisher
	Forgetter Forgetter
	Observer  Observer
	Emitter   telemetry.EventEmitter
	Metrics   *telemetry.Metrics
	Tracer    trace.Tracer
	Logger    zerolog.Logger
}

// Controller owns the live sessions of this process.
type Controller struct {
	cfg       Config
	repo      repository.Repository
	factory   waclient.Factory
	pub       notify.Publisher
	forgetter Forgetter
	observer  Observer
	emitter   telemetry.EventEmitter
	metrics   *telemetry.Metrics
	tracer    trace.Tracer
	log       zerolog.Logger

	sessions *registry.Registry[*Session]
	lease    *lease.Lease
	sched    *reconnect.Scheduler

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewController wires a controller over deps.
func NewController(cfg Config, deps Deps) *Controller {
	if cfg.QRMaxRetries <= 0 {
		cfg.QRMaxRetries = DefaultQRMaxRetries
	}
	if cfg.StartupConcurrency <= 0 {
		cfg.StartupConcurrency = DefaultStartupConcurrency
	}
	c := &Controller{
		cfg:       cfg,
		repo:      deps.Repo,
		factory:   deps.Factory,
		pub:       deps.Publisher,
		forgetter: deps.Forgetter,
		observer:  deps.Observer,
		emitter:   deps.Emitter,
		metrics:   deps.Metrics,
		tracer:    deps.Tracer,
		log:       deps.Logger.With().Str("component", "session").Logger(),
		sessions:  registry.New[*Session](),
		lease:     lease.New(deps.Repo, cfg.LeaseStaleAfter),
	}
	if c.pub == nil {
		c.pub = notify.Nop{}
	}
	if c.tracer == nil {
		c.tracer = noop.NewTracerProvider().Tracer("")
	}
	c.sched = reconnect.New(cfg.Reconnect, c.lease, c.restart,
		reconnect.WithLogger(c.log),
		reconnect.WithHooks(reconnect.Hooks{
			Scheduled: func(int64, int, time.Duration) { c.metrics.RestartScheduled(context.Background()) },
			Abandoned: func(_ int64, reason string) { c.metrics.RestartAbandoned(context.Background(), reason) },
		}),
	)
	return c
}

// Start handles an external request to start the instance. The record is moved to CONNECTING
// regardless of its current status, which re-kicks an instance whose lease went stale. If the
// instance is already registered its session is returned unchanged.
//
// Start returns once the client is constructed; use Session.Wait for the outcome.
func (c *Controller) Start(ctx context.Context, id int64) (*Session, error) {
	if c.isClosed() {
		return nil, ErrControllerClosed
	}
	if s, ok := c.sessions.Find(id); ok {
		return s, nil
	}
	w, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("session: load %d: %w", id, err)
	}
	if w == nil {
		return nil, ErrTenantNotFound
	}
	w, err = c.repo.UpdateState(ctx, id, domain.State{Status: domain.StatusConnecting, Retries: w.Retries})
	if err != nil {
		return nil, fmt.Errorf("session: mark %d connecting: %w", id, err)
	}
	if w == nil {
		return nil, ErrTenantNotFound
	}
	c.announce(ctx, w, "", telemetry.EventStarting, "", nil)
	return c.open(ctx, w)
}

// restart is run by the scheduler after it claimed the lease. A missing record is permanent;
// any other failure is retried by the scheduler.
func (c *Controller) restart(ctx context.Context, id int64) error {
	if _, ok := c.sessions.Find(id); ok {
		return nil
	}
	w, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("session: load %d: %w", id, err)
	}
	if w == nil {
		return fmt.Errorf("%w: %w", reconnect.ErrPermanent, ErrTenantNotFound)
	}
	_, err = c.open(ctx, w)
	return err
}

// open connects w, whose record is CONNECTING. On failure the record is released to DISCONNECTED.
func (c *Controller) open(ctx context.Context, w *domain.Whatsapp) (*Session, error) {
	s, err := c.connect(ctx, w)
	if err != nil {
		relCtx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if rerr := c.lease.Release(relCtx, w.ID, domain.StatusDisconnected); rerr != nil {
			c.log.Error().Err(rerr).Int64("whatsapp_id", w.ID).Msg("release lease failed")
		} else if cur, gerr := c.repo.GetByID(relCtx, w.ID); gerr == nil && cur != nil {
			c.announce(relCtx, cur, "", telemetry.EventDisconnected, "", nil)
		}
		return nil, err
	}
	return s, nil
}

func (c *Controller) connect(ctx context.Context, w *domain.Whatsapp) (*Session, error) {
	ctx, span := c.tracer.Start(ctx, "session.connect", trace.WithAttributes(
		attribute.Int64("whatsapp.id", w.ID),
		attribute.Int64("whatsapp.company_id", w.CompanyID),
	))
	defer span.End()

	st, err := authstate.Decode(w.Session, c.factory.InitAuthCreds)
	var decErr *authstate.DecodeError
	if errors.As(err, &decErr) {
		c.log.Warn().Err(err).Int64("whatsapp_id", w.ID).Msg("stored auth state unreadable, pairing from scratch")
		st, err = authstate.Fresh(c.factory.InitAuthCreds)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "auth state")
		return nil, fmt.Errorf("session: init auth state %d: %w", w.ID, err)
	}

	s := newSession(w.ID, w.CompanyID, w.Retries, c.log.With().
		Int64("whatsapp_id", w.ID).
		Int64("company_id", w.CompanyID).
		Logger())
	span.SetAttributes(attribute.String("whatsapp.attempt_id", s.AttemptID.String()))

	id := w.ID
	s.auth = authstate.NewStore(st,
		func(ctx context.Context, blob string) error { return c.repo.UpdateSession(ctx, id, blob) },
		authstate.WithLogger(s.log),
		authstate.WithFailureHook(func(error) { c.metrics.PersistFailure(context.Background()) }),
	)

	version := c.latestVersion(ctx, s.log)
	s.log.Info().Str("name", w.Name).Str("version", version.String()).Msg("starting session")

	client, err := c.factory.NewClient(ctx, waclient.Options{
		TenantID:        id,
		Auth:            s.auth,
		Version:         version,
		ShouldIgnoreJID: waclient.IsBroadcastJID,
	})
	if err != nil {
		_ = s.auth.Close(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, "construct client")
		s.log.Error().Err(err).Msg("construct client failed")
		return nil, fmt.Errorf("session: connect %d: %w", id, err)
	}
	s.client = client

	if !c.sessions.Add(id, s) {
		_ = client.Close()
		_ = s.auth.Close(ctx)
		if existing, ok := c.sessions.Find(id); ok {
			return existing, nil
		}
		return nil, ErrSessionClosed
	}
	c.wg.Add(1)
	go c.run(s)
	return s, nil
}

func (c *Controller) latestVersion(ctx context.Context, log zerolog.Logger) waclient.Version {
	vctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	v, err := c.factory.FetchLatestVersion(vctx)
	if err != nil {
		log.Warn().Err(err).Str("fallback", waclient.DefaultVersion.String()).Msg("fetch latest version failed")
		return waclient.DefaultVersion
	}
	return v
}

// Get returns the registered session of id.
func (c *Controller) Get(id int64) (*Session, error) {
	s, ok := c.sessions.Find(id)
	if !ok {
		return nil, ErrNotInitialized
	}
	return s, nil
}

// Sessions returns the ids of the registered sessions.
func (c *Controller) Sessions() []int64 {
	return c.sessions.IDs()
}

// Stop deregisters and closes the session of id without logging out or changing its status.
func (c *Controller) Stop(ctx context.Context, id int64) error {
	c.sched.Cancel(id)
	s, ok := c.sessions.Remove(id)
	if !ok {
		return ErrNotInitialized
	}
	c.teardown(ctx, s, ErrSessionClosed)
	if c.observer != nil {
		c.observer.SessionStatus(id, domain.StatusDisconnected)
	}
	return nil
}

// Logout unlinks the device: the session is deregistered and logged out remotely, the
// credentials are cleared and the record is DISCONNECTED. No restart is scheduled.
// An instance without a live session is still cleared.
func (c *Controller) Logout(ctx context.Context, id int64) error {
	c.sched.Cancel(id)
	attempt := ""
	if s, ok := c.sessions.Remove(id); ok {
		attempt = s.AttemptID.String()
		if err := s.client.Logout(ctx); err != nil {
			s.log.Warn().Err(err).Msg("remote logout failed")
		}
		c.teardown(ctx, s, ErrSessionClosed)
	}
	w, err := c.repo.ResetSession(ctx, id, domain.StatusDisconnected)
	if err != nil {
		return fmt.Errorf("session: clear %d: %w", id, err)
	}
	if w == nil {
		return ErrTenantNotFound
	}
	c.forget(ctx, id)
	c.announce(ctx, w, attempt, telemetry.EventLoggedOut, "", nil)
	return nil
}

// teardown closes the client and drains the auth store of a deregistered session.
func (c *Controller) teardown(ctx context.Context, s *Session, reason error) {
	if err := s.client.Close(); err != nil {
		s.log.Debug().Err(err).Msg("close client")
	}
	if err := s.auth.Close(ctx); err != nil {
		s.log.Warn().Err(err).Msg("auth state flush incomplete")
	}
	s.finish(reason)
}

// StartAll starts every instance except DISCONNECTED ones without credentials, at most
// StartupConcurrency at a time. Per-instance failures are logged.
func (c *Controller) StartAll(ctx context.Context) error {
	rows, err := c.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("session: list instances: %w", err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.StartupConcurrency)
	for _, w := range rows {
		if w.Status == domain.StatusDisconnected && !w.Paired() {
			continue
		}
		id := w.ID
		g.Go(func() error {
			if _, err := c.Start(gctx, id); err != nil {
				c.log.Error().Err(err).Int64("whatsapp_id", id).Msg("startup: start session failed")
			}
			return nil
		})
	}
	return g.Wait()
}

// Shutdown stops the scheduler, closes every registered session and waits for the event loops
// and auth flushes to finish or ctx to be done. Records keep their status.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.sched.Stop()
	for _, id := range c.sessions.IDs() {
		if s, ok := c.sessions.Remove(id); ok {
			c.teardown(ctx, s, ErrControllerClosed)
		}
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Controller) forget(ctx context.Context, id int64) {
	if c.forgetter == nil {
		return
	}
	if _, err := c.forgetter.Purge(ctx, id); err != nil {
		c.log.Error().Err(err).Int64("whatsapp_id", id).Msg("forget instance cache failed")
	}
}

// announce publishes w and reports it to the observer and the audit trail. Called only after w
// was persisted.
func (c *Controller) announce(ctx context.Context, w *domain.Whatsapp, attempt, eventType, reason string, meta []byte) {
	if err := notify.PublishSession(ctx, c.pub, w); err != nil {
		c.log.Error().Err(err).Int64("whatsapp_id", w.ID).Msg("publish session update failed")
	}
	if c.observer != nil {
		c.observer.SessionStatus(w.ID, w.Status)
	}
	telemetry.EmitAsync(c.emitter, ctx, &telemetry.SessionEvent{
		WhatsappID: w.ID,
		CompanyID:  w.CompanyID,
		AttemptID:  attempt,
		EventType:  eventType,
		Status:     w.Status.String(),
		Reason:     reason,
		Metadata:   meta,
		CreatedAt:  time.Now().UTC(),
	})
}
