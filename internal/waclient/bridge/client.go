package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"whatsapp-control-plane/backend/internal/authstate"
	"whatsapp-control-plane/backend/internal/waclient"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 15 * time.Second
	pongWait       = 30 * time.Second
	maxMessageSize = 8 << 20
	eventBuffer    = 64
)

// ErrClientClosed is returned by Logout after the connection was closed.
var ErrClientClosed = errors.New("bridge: client closed")

type client struct {
	ws     *websocket.Conn
	wsMu   sync.Mutex
	auth   *authstate.Store
	ignore waclient.IgnoreFunc
	log    zerolog.Logger

	events  chan waclient.Event
	closing chan struct{}
	done    chan struct{}
	once    sync.Once

	acksMu sync.Mutex
	acks   map[string]chan string
}

func newClient(ws *websocket.Conn, opts waclient.Options, log zerolog.Logger) *client {
	return &client{
		ws:      ws,
		auth:    opts.Auth,
		ignore:  opts.ShouldIgnoreJID,
		log:     log,
		events:  make(chan waclient.Event, eventBuffer),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
		acks:    make(map[string]chan string),
	}
}

func (c *client) start() {
	go c.readPump()
	go c.pingPump()
}

func (c *client) Events() <-chan waclient.Event { return c.events }

// Logout asks the sidecar to unlink the device and waits for its acknowledgement.
func (c *client) Logout(ctx context.Context) error {
	id := uuid.NewString()
	ack := make(chan string, 1)
	c.acksMu.Lock()
	c.acks[id] = ack
	c.acksMu.Unlock()
	defer func() {
		c.acksMu.Lock()
		delete(c.acks, id)
		c.acksMu.Unlock()
	}()

	if err := c.writeJSON(requestFrame{Type: frameLogout, ID: id}); err != nil {
		return fmt.Errorf("bridge: send logout: %w", err)
	}
	select {
	case msg := <-ack:
		if msg != "" {
			return fmt.Errorf("bridge: logout: %s", msg)
		}
		return nil
	case <-c.done:
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close severs the socket. No close update is emitted for a locally closed client.
func (c *client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closing)
		c.wsMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		c.wsMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func (c *client) writeJSON(v any) error {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

func (c *client) pingPump() {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			c.wsMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.wsMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *client) readPump() {
	defer close(c.done)
	defer close(c.events)
	defer c.ws.Close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.closing:
				return
			default:
			}
			c.log.Warn().Err(err).Msg("sidecar socket read failed")
			c.emit(waclient.ConnectionUpdate{
				Phase:          waclient.PhaseClose,
				LastDisconnect: &waclient.DisconnectError{StatusCode: waclient.ReasonConnectionLost, Message: err.Error()},
			})
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		var f inbound
		if err := json.Unmarshal(msg, &f); err != nil {
			c.log.Warn().Err(err).Msg("ignoring malformed sidecar frame")
			continue
		}
		if final := c.handle(f); final {
			return
		}
	}
}

// handle dispatches one frame and reports whether it ended the connection.
func (c *client) handle(f inbound) bool {
	switch f.Type {
	case frameConnectionUpdate:
		u := waclient.ConnectionUpdate{Phase: waclient.Phase(f.Connection), QR: f.QR}
		if f.LastDisconnect != nil {
			u.LastDisconnect = &waclient.DisconnectError{
				StatusCode: waclient.DisconnectReason(f.LastDisconnect.StatusCode),
				Message:    f.LastDisconnect.Message,
			}
		}
		c.emit(u)
		return u.Phase == waclient.PhaseClose
	case frameCredsUpdate:
		if err := c.updateCreds(f.Creds); err != nil {
			c.log.Warn().Err(err).Msg("ignoring malformed creds update")
			return false
		}
		c.emit(waclient.CredsUpdate{})
	case frameKeysGet:
		c.serveKeysGet(f)
	case frameKeysSet:
		if err := c.applyKeysSet(f.Data); err != nil {
			c.log.Warn().Err(err).Msg("ignoring malformed keys set")
		}
	case frameJIDIgnore:
		if err := c.writeJSON(jidIgnoreResultFrame{Type: frameJIDIgnoreResult, ID: f.ID, Ignore: c.ignore(f.JID)}); err != nil {
			c.log.Warn().Err(err).Msg("send jid ignore result failed")
		}
	case frameAck:
		c.acksMu.Lock()
		ch, ok := c.acks[f.ID]
		c.acksMu.Unlock()
		if ok {
			select {
			case ch <- f.Error:
			default:
			}
		}
	default:
		c.log.Debug().Str("type", f.Type).Msg("ignoring unknown sidecar frame")
	}
	return false
}

func (c *client) emit(ev waclient.Event) {
	select {
	case c.events <- ev:
	case <-c.closing:
	}
}

func (c *client) updateCreds(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	v, err := authstate.UnmarshalValue(raw)
	if err != nil {
		return err
	}
	patch, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("creds update is %T, want object", v)
	}
	c.auth.UpdateCreds(func(creds authstate.Creds) {
		for k, val := range patch {
			creds[k] = val
		}
	})
	return nil
}

func (c *client) serveKeysGet(f inbound) {
	values := c.auth.Get(f.Category, f.IDs)
	raw, err := authstate.MarshalValue(values)
	if err != nil {
		c.log.Error().Err(err).Str("category", f.Category).Msg("encode keys failed")
		raw = []byte("{}")
	}
	if err := c.writeJSON(keysResultFrame{Type: frameKeysResult, ID: f.ID, Values: raw}); err != nil {
		c.log.Warn().Err(err).Msg("send keys result failed")
	}
}

// applyKeysSet forwards a key patch to the store. App-state categories keep their raw JSON.
func (c *client) applyKeysSet(data map[string]map[string]json.RawMessage) error {
	if len(data) == 0 {
		return nil
	}
	patch := make(map[string]map[string]any, len(data))
	for cat, entries := range data {
		out := make(map[string]any, len(entries))
		binary := authstate.Category(cat).Binary()
		for id, raw := range entries {
			switch {
			case isNull(raw):
				out[id] = nil
			case binary:
				v, err := authstate.UnmarshalValue(raw)
				if err != nil {
					return fmt.Errorf("%s.%s: %w", cat, id, err)
				}
				out[id] = v
			default:
				out[id] = append(json.RawMessage(nil), raw...)
			}
		}
		patch[cat] = out
	}
	c.auth.Set(patch)
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
