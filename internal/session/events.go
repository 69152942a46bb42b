package session

import (
	"context"
	"encoding/json"
	"fmt"

	"whatsapp-control-plane/backend/internal/telemetry"
	"whatsapp-control-plane/backend/internal/waclient"
	"whatsapp-control-plane/backend/internal/whatsapp/domain"
)

// run consumes the events of s in emission order until a terminal transition or until the client
// stops emitting. Events that arrive after s was deregistered are dropped.
func (c *Controller) run(s *Session) {
	defer c.wg.Done()
	for ev := range s.client.Events() {
		if !c.sessions.Is(s.TenantID, s) {
			continue
		}
		switch e := ev.(type) {
		case waclient.ConnectionUpdate:
			if c.onConnectionUpdate(s, e) {
				return
			}
		case waclient.CredsUpdate:
			s.auth.Save()
		}
	}
	s.finish(ErrSessionClosed)
}

// onConnectionUpdate applies one update and reports whether it ended the session.
func (c *Controller) onConnectionUpdate(s *Session, u waclient.ConnectionUpdate) bool {
	s.log.Debug().Str("phase", string(u.Phase)).Bool("qr", u.QR != "").Msg("connection update")
	switch {
	case u.Phase == waclient.PhaseClose:
		c.onClose(s, u.LastDisconnect)
		return true
	case u.Phase == waclient.PhaseOpen:
		c.onOpen(s)
		return false
	case u.QR != "":
		return c.onQR(s, u.QR)
	}
	return false
}

func (c *Controller) onQR(s *Session, qr string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if s.qrRetries >= c.cfg.QRMaxRetries {
		s.log.Warn().Int("retries", s.qrRetries).Msg("pairing code not scanned, giving up")
		if err := s.auth.Close(ctx); err != nil {
			s.log.Warn().Err(err).Msg("auth state flush incomplete")
		}
		w, err := c.repo.ResetSession(ctx, s.TenantID, domain.StatusDisconnected)
		if err != nil {
			s.log.Error().Err(err).Msg("persist qr exhaustion failed")
		}
		c.forget(ctx, s.TenantID)
		c.sessions.RemoveIf(s.TenantID, s)
		if w != nil {
			c.announce(ctx, w, s.AttemptID.String(), telemetry.EventQRExhausted, "", nil)
		}
		if err := s.client.Close(); err != nil {
			s.log.Debug().Err(err).Msg("close client")
		}
		s.finish(ErrQRExhausted)
		return true
	}

	s.qrRetries++
	c.persist(ctx, s, domain.State{Status: domain.StatusQRCode, QRCode: qr, Retries: s.qrRetries}, telemetry.EventQRIssued, "")
	c.metrics.QRIssued(ctx)
	return false
}

func (c *Controller) onOpen(s *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	s.qrRetries = 0
	c.sched.Reset(s.TenantID)
	if err := c.lease.Release(ctx, s.TenantID, domain.StatusConnected); err != nil {
		s.log.Error().Err(err).Msg("release lease failed")
	}
	c.persist(ctx, s, domain.State{Status: domain.StatusConnected}, telemetry.EventConnected, "")
	c.metrics.Connected(ctx)
	s.log.Info().Msg("session connected")
	s.markReady()
}

func (c *Controller) onClose(s *Session, cause *waclient.DisconnectError) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	kind := Classify(cause)
	c.metrics.Disconnected(ctx, kind.String())
	logEv := s.log.Info().Str("kind", kind.String())
	if cause != nil {
		logEv = logEv.Err(cause)
	}
	logEv.Msg("connection closed")

	// The store is drained before the record changes so a late flush cannot overwrite it.
	if err := s.auth.Close(ctx); err != nil {
		s.log.Warn().Err(err).Msg("auth state flush incomplete")
	}

	switch kind {
	case AuthInvalidated:
		w, err := c.repo.ResetSession(ctx, s.TenantID, domain.StatusPending)
		if err != nil {
			s.log.Error().Err(err).Msg("clear invalidated credentials failed")
		}
		c.forget(ctx, s.TenantID)
		c.sessions.RemoveIf(s.TenantID, s)
		if w != nil {
			c.announceClose(ctx, s, w, telemetry.EventAuthInvalidated, cause)
		}
		s.finish(fmt.Errorf("%w: %v", ErrAuthInvalidated, cause))
	default:
		// Deregistering after the write keeps a concurrent Start from being overwritten.
		w, err := c.repo.UpdateState(ctx, s.TenantID, domain.State{Status: domain.StatusDisconnected, Retries: s.qrRetries})
		if err != nil {
			s.log.Error().Err(err).Msg("persist disconnect failed")
		}
		if w != nil {
			c.announceClose(ctx, s, w, telemetry.EventDisconnected, cause)
		}
		c.sessions.RemoveIf(s.TenantID, s)
		if cause != nil {
			s.finish(cause)
		} else {
			s.finish(ErrSessionClosed)
		}
	}
	if err := s.client.Close(); err != nil {
		s.log.Debug().Err(err).Msg("close client")
	}
	c.sched.Schedule(s.TenantID)
}

// persist writes st and announces the result. A failed write is logged and not announced.
func (c *Controller) persist(ctx context.Context, s *Session, st domain.State, eventType, reason string) {
	w, err := c.repo.UpdateState(ctx, s.TenantID, st)
	if err != nil {
		s.log.Error().Err(err).Str("status", st.Status.String()).Msg("persist status failed")
		return
	}
	if w == nil {
		s.log.Warn().Msg("instance record disappeared")
		return
	}
	c.announce(ctx, w, s.AttemptID.String(), eventType, reason, nil)
}

func (c *Controller) announceClose(ctx context.Context, s *Session, w *domain.Whatsapp, eventType string, cause *waclient.DisconnectError) {
	if cause == nil {
		c.announce(ctx, w, s.AttemptID.String(), eventType, "", nil)
		return
	}
	meta, err := json.Marshal(struct {
		StatusCode int    `json:"statusCode"`
		Message    string `json:"message,omitempty"`
	}{int(cause.StatusCode), cause.Message})
	if err != nil {
		meta = nil
	}
	c.announce(ctx, w, s.AttemptID.String(), eventType, cause.Reason().String(), meta)
}
