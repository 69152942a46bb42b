package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"whatsapp-control-plane/backend/internal/authstate"
	"whatsapp-control-plane/backend/internal/notify"
	protocache "whatsapp-control-plane/backend/internal/protocache/repository"
	"whatsapp-control-plane/backend/internal/session/reconnect"
	"whatsapp-control-plane/backend/internal/waclient"
	"whatsapp-control-plane/backend/internal/whatsapp/domain"
	"whatsapp-control-plane/backend/internal/whatsapp/repository"
)

// fakeClient forwards events pushed by the test until it is closed.
type fakeClient struct {
	opts    waclient.Options
	in      chan waclient.Event
	out     chan waclient.Event
	closing chan struct{}
	once    sync.Once

	mu      sync.Mutex
	logouts int
	closes  int
}

func newFakeClient(opts waclient.Options) *fakeClient {
	c := &fakeClient{
		opts:    opts,
		in:      make(chan waclient.Event),
		out:     make(chan waclient.Event),
		closing: make(chan struct{}),
	}
	go func() {
		defer close(c.out)
		for {
			select {
			case ev := <-c.in:
				select {
				case c.out <- ev:
				case <-c.closing:
					return
				}
			case <-c.closing:
				return
			}
		}
	}()
	return c
}

func (c *fakeClient) Events() <-chan waclient.Event { return c.out }

func (c *fakeClient) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logouts++
	return nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	c.once.Do(func() { close(c.closing) })
	return nil
}

func (c *fakeClient) Closed() bool {
	select {
	case <-c.closing:
		return true
	default:
		return false
	}
}

func (c *fakeClient) Logouts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logouts
}

// emit delivers ev to the controller. It reports false when the client was already closed.
func (c *fakeClient) emit(t *testing.T, ev waclient.Event) bool {
	t.Helper()
	select {
	case c.in <- ev:
		return true
	case <-c.closing:
		return false
	case <-time.After(2 * time.Second):
		t.Fatal("event not consumed")
		return false
	}
}

type fakeFactory struct {
	mu         sync.Mutex
	clients    []*fakeClient
	newErr     error
	versionErr error
	initCalls  int
}

func (f *fakeFactory) FetchLatestVersion(ctx context.Context) (waclient.Version, error) {
	if f.versionErr != nil {
		return waclient.Version{}, f.versionErr
	}
	return waclient.Version{2, 3000, 42}, nil
}

func (f *fakeFactory) InitAuthCreds() (authstate.Creds, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	return authstate.Creds{"registrationId": 1}, nil
}

func (f *fakeFactory) NewClient(ctx context.Context, opts waclient.Options) (waclient.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.newErr != nil {
		return nil, f.newErr
	}
	c := newFakeClient(opts)
	f.clients = append(f.clients, c)
	return c, nil
}

func (f *fakeFactory) setNewErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.newErr = err
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *fakeFactory) client(i int) *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[i]
}

type published struct {
	Channel string
	Event   string
	Status  domain.Status
	QRCode  string
	// Persisted is the stored status at publish time.
	Persisted domain.Status
	// Registered reports whether the session was still registered at publish time.
	Registered bool
}

// recordingPublisher records every publish together with the persisted status at that moment.
type recordingPublisher struct {
	repo repository.Repository
	ctrl *Controller
	mu   sync.Mutex
	got  []published
}

func (p *recordingPublisher) Publish(ctx context.Context, channel, event string, payload any) error {
	upd := payload.(notify.SessionUpdate)
	cur, err := p.repo.GetByID(ctx, upd.Session.ID)
	if err != nil || cur == nil {
		return errors.New("record missing at publish")
	}
	registered := false
	if p.ctrl != nil {
		_, registered = p.ctrl.sessions.Find(upd.Session.ID)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, published{
		Channel:    channel,
		Event:      event,
		Status:     upd.Session.Status,
		QRCode:     upd.Session.QRCode,
		Persisted:  cur.Status,
		Registered: registered,
	})
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) statuses() []domain.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Status, len(p.got))
	for i, g := range p.got {
		out[i] = g.Status
	}
	return out
}

func (p *recordingPublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.got...)
}

// recordingForgetter purges the cache and records whether a restart was pending at that moment.
type recordingForgetter struct {
	cache *protocache.MemoryRepository
	ctrl  *Controller
	mu    sync.Mutex
	// pendingAtPurge records, per call, whether a restart was already armed.
	pendingAtPurge []bool
}

func (f *recordingForgetter) Purge(ctx context.Context, id int64) (int64, error) {
	pending := f.ctrl.sched.Pending(id)
	f.mu.Lock()
	f.pendingAtPurge = append(f.pendingAtPurge, pending)
	f.mu.Unlock()
	return f.cache.Purge(ctx, id)
}

func (f *recordingForgetter) calls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.pendingAtPurge...)
}

type statusObserver struct {
	mu   sync.Mutex
	last map[int64]domain.Status
}

func (o *statusObserver) SessionStatus(id int64, st domain.Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		o.last = make(map[int64]domain.Status)
	}
	o.last[id] = st
}

func (o *statusObserver) get(id int64) domain.Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last[id]
}

type harness struct {
	ctrl      *Controller
	repo      *repository.MemoryRepository
	cache     *protocache.MemoryRepository
	factory   *fakeFactory
	pub       *recordingPublisher
	forgetter *recordingForgetter
	observer  *statusObserver
}

// slowRestarts keeps scheduled restarts from firing during a test.
var slowRestarts = reconnect.Config{Base: time.Hour, Cap: time.Hour, JitterMax: -1, Cooldown: -1}

// fastRestarts fires scheduled restarts almost immediately.
var fastRestarts = reconnect.Config{Base: time.Millisecond, Cap: time.Millisecond, JitterMax: -1, Cooldown: -1}

func newHarness(t *testing.T, rc reconnect.Config) *harness {
	t.Helper()
	h := &harness{
		repo:     repository.NewMemoryRepository(),
		cache:    protocache.NewMemoryRepository(),
		factory:  &fakeFactory{},
		observer: &statusObserver{},
	}
	h.pub = &recordingPublisher{repo: h.repo}
	h.forgetter = &recordingForgetter{cache: h.cache}
	h.ctrl = NewController(Config{Reconnect: rc}, Deps{
		Repo:      h.repo,
		Factory:   h.factory,
		Publisher: h.pub,
		Forgetter: h.forgetter,
		Observer:  h.observer,
		Logger:    zerolog.Nop(),
	})
	h.forgetter.ctrl = h.ctrl
	h.pub.ctrl = h.ctrl
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.ctrl.Shutdown(ctx)
	})
	return h
}

func (h *harness) seed(t *testing.T, w *domain.Whatsapp) *domain.Whatsapp {
	t.Helper()
	if w.Name == "" {
		w.Name = "main"
	}
	if w.CompanyID == 0 {
		w.CompanyID = 10
	}
	require.NoError(t, h.repo.Create(context.Background(), w))
	return w
}

func (h *harness) record(t *testing.T, id int64) *domain.Whatsapp {
	t.Helper()
	w, err := h.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, w)
	return w
}

func (h *harness) start(t *testing.T, id int64) (*Session, *fakeClient) {
	t.Helper()
	before := h.factory.count()
	s, err := h.ctrl.Start(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, before+1, h.factory.count())
	return s, h.factory.client(before)
}

func (h *harness) waitStatus(t *testing.T, id int64, want domain.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		w, _ := h.repo.GetByID(context.Background(), id)
		return w != nil && w.Status == want
	}, 2*time.Second, time.Millisecond, "status never became %s", want)
}

func (h *harness) waitObserved(t *testing.T, id int64, want domain.Status) {
	t.Helper()
	require.Eventually(t, func() bool { return h.observer.get(id) == want }, 2*time.Second, time.Millisecond)
}

func waitDone(t *testing.T, s *Session) error {
	t.Helper()
	select {
	case <-s.Done():
		return s.Err()
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
		return nil
	}
}

func closeUpdate(code waclient.DisconnectReason) waclient.ConnectionUpdate {
	return waclient.ConnectionUpdate{
		Phase:          waclient.PhaseClose,
		LastDisconnect: &waclient.DisconnectError{StatusCode: code, Message: "closed by test"},
	}
}
