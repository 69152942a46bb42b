// Package loki pushes archived session notifications to Grafana Loki.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// PushRequest is the Loki push API request body (v1).
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is a single stream with labels and log entries.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // each entry is [timestamp_ns, log_line]
}

// labelSanitize replaces characters that are invalid in Loki label values.
var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// envelopeFields is the part of a notify.Envelope used for labels and timestamp.
type envelopeFields struct {
	Channel   string `json:"channel"`
	Event     string `json:"event"`
	CreatedAt string `json:"createdAt"`
	Payload   struct {
		Action  string `json:"action"`
		Session struct {
			ID     int64  `json:"id"`
			Status string `json:"status"`
		} `json:"session"`
	} `json:"payload"`
}

// Client pushes to one Loki base URL.
type Client struct {
	baseURL string
	job     string
	http    *http.Client
}

// New returns a Client for baseURL (e.g. http://localhost:3100). job is the stream's job label.
func New(baseURL, job string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	if job == "" {
		job = "whatsapp-control-plane"
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), job: job, http: hc}
}

// PushEnvelopeJSON parses the envelope JSON (Kafka message value), extracts timestamp and labels, and pushes to Loki.
// If parsing fails, the raw line is pushed with current time and no extra labels.
func (c *Client) PushEnvelopeJSON(ctx context.Context, rawJSON []byte) error {
	labels := map[string]string{}
	ts := time.Now().UTC()
	var f envelopeFields
	if err := json.Unmarshal(rawJSON, &f); err == nil {
		if f.Channel != "" {
			labels["channel"] = f.Channel
		}
		if f.Payload.Session.Status != "" {
			labels["status"] = f.Payload.Session.Status
		}
		if f.CreatedAt != "" {
			if t, err := time.Parse(time.RFC3339Nano, f.CreatedAt); err == nil {
				ts = t
			}
		}
	}
	return c.Push(ctx, ts, string(rawJSON), labels)
}

// Push sends a single log line. labels are sanitized and added to the stream next to job.
// Returns an error if the HTTP request fails or Loki returns non-2xx.
func (c *Client) Push(ctx context.Context, timestamp time.Time, line string, labels map[string]string) error {
	if c.baseURL == "" {
		return fmt.Errorf("loki: base URL is empty")
	}
	streamLabels := make(map[string]string, len(labels)+1)
	streamLabels["job"] = c.job
	for k, v := range labels {
		sanitized := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_")
		if sanitized != "" {
			streamLabels[k] = sanitized
		}
	}
	body := PushRequest{
		Streams: []Stream{{
			Stream: streamLabels,
			Values: [][]string{{fmt.Sprintf("%d", timestamp.UnixNano()), line}},
		}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/loki/api/v1/push", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}
