// Package bridge implements waclient over a WebSocket connection to a protocol sidecar process.
// One socket is dialled per instance; auth key reads and writes are served over the same socket
// from the instance's authstate.Store.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"whatsapp-control-plane/backend/internal/authstate"
	"whatsapp-control-plane/backend/internal/waclient"
)

const (
	handshakeTimeout = 15 * time.Second
	versionTimeout   = 10 * time.Second
)

// ErrNoBridgeURL is returned by New when the sidecar URL is empty.
var ErrNoBridgeURL = errors.New("bridge: sidecar url is required")

// Config configures a Factory.
type Config struct {
	// URL is the sidecar base URL (http, https, ws or wss).
	URL        string
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logger     zerolog.Logger
}

// Factory dials sidecar sessions. It implements waclient.Factory.
type Factory struct {
	httpBase *url.URL
	wsBase   *url.URL
	http     *http.Client
	dialer   *websocket.Dialer
	log      zerolog.Logger
}

var _ waclient.Factory = (*Factory)(nil)

// New validates cfg and returns a Factory.
func New(cfg Config) (*Factory, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, ErrNoBridgeURL
	}
	u, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("bridge: parse url: %w", err)
	}
	httpBase, wsBase := *u, *u
	switch u.Scheme {
	case "http", "ws":
		httpBase.Scheme, wsBase.Scheme = "http", "ws"
	case "https", "wss":
		httpBase.Scheme, wsBase.Scheme = "https", "wss"
	default:
		return nil, fmt.Errorf("bridge: unsupported url scheme %q", u.Scheme)
	}
	f := &Factory{
		httpBase: &httpBase,
		wsBase:   &wsBase,
		http:     cfg.HTTPClient,
		dialer:   cfg.Dialer,
		log:      cfg.Logger.With().Str("component", "wa_bridge").Logger(),
	}
	if f.http == nil {
		f.http = &http.Client{Timeout: versionTimeout}
	}
	if f.dialer == nil {
		f.dialer = &websocket.Dialer{HandshakeTimeout: handshakeTimeout, Proxy: http.ProxyFromEnvironment}
	}
	return f, nil
}

// FetchLatestVersion asks the sidecar for the protocol version it negotiated with the backend.
func (f *Factory) FetchLatestVersion(ctx context.Context) (waclient.Version, error) {
	u := *f.httpBase
	u.Path += "/version"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return waclient.Version{}, err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return waclient.Version{}, fmt.Errorf("bridge: fetch version: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return waclient.Version{}, fmt.Errorf("bridge: fetch version: status %d", resp.StatusCode)
	}
	var body versionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return waclient.Version{}, fmt.Errorf("bridge: decode version: %w", err)
	}
	if body.Version == ([3]int{}) {
		return waclient.Version{}, errors.New("bridge: empty version")
	}
	return waclient.Version(body.Version), nil
}

// InitAuthCreds returns empty credentials. The sidecar generates the identity of a never-paired
// instance and sends it back with the first creds update.
func (f *Factory) InitAuthCreds() (authstate.Creds, error) {
	return authstate.Creds{}, nil
}

// NewClient dials the sidecar session for opts.TenantID and sends the open frame.
func (f *Factory) NewClient(ctx context.Context, opts waclient.Options) (waclient.Client, error) {
	if opts.Auth == nil {
		return nil, errors.New("bridge: auth store is required")
	}
	if opts.ShouldIgnoreJID == nil {
		opts.ShouldIgnoreJID = waclient.IsBroadcastJID
	}

	var creds []byte
	var mErr error
	opts.Auth.ViewCreds(func(c authstate.Creds) {
		creds, mErr = authstate.MarshalValue(c)
	})
	if mErr != nil {
		return nil, fmt.Errorf("bridge: encode creds: %w", mErr)
	}

	u := *f.wsBase
	u.Path += "/session"
	u.RawQuery = url.Values{"id": []string{strconv.FormatInt(opts.TenantID, 10)}}.Encode()

	ws, _, err := f.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("bridge: dial %s: %w", u.Redacted(), err)
	}

	c := newClient(ws, opts, f.log.With().Int64("whatsapp_id", opts.TenantID).Logger())
	if err := c.writeJSON(openFrame{Type: frameOpen, Tenant: opts.TenantID, Version: opts.Version, Creds: creds}); err != nil {
		ws.Close()
		return nil, fmt.Errorf("bridge: send open: %w", err)
	}
	c.start()
	return c, nil
}
