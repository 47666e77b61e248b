// Package notify pushes an alert when the agent finishes or fails.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/zsprackett/agent-pulse/internal/activity"
)

// Config holds notification settings.
type Config struct {
	Enabled bool   `json:"enabled"`
	Webhook string `json:"webhook"`
	NtfyURL string `json:"ntfy"`
}

// Notifier posts to a webhook and/or an ntfy topic when the mode enters
// celebrate or error. Sends happen in the background so Notify never blocks
// the state machine.
type Notifier struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
	wg     sync.WaitGroup
}

func New(cfg Config, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

// Notify is a monitor.Handler. Modes other than celebrate and error are
// ignored.
func (n *Notifier) Notify(msg activity.StateMessage) {
	if !n.cfg.Enabled || !msg.Mode.Feedback() {
		return
	}
	if n.cfg.Webhook != "" {
		n.send("webhook", n.cfg.Webhook, webhookPayload{
			Mode:      string(msg.Mode),
			Timestamp: time.UnixMilli(msg.Timestamp).UTC().Format(time.RFC3339),
		})
	}
	if n.cfg.NtfyURL != "" {
		n.send("ntfy", n.cfg.NtfyURL, ntfyFor(msg.Mode))
	}
}

// Wait blocks until in-flight sends finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

type webhookPayload struct {
	Mode      string `json:"mode"`
	Timestamp string `json:"timestamp"`
}

type ntfyPayload struct {
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Priority int      `json:"priority"`
	Tags     []string `json:"tags"`
}

func ntfyFor(mode activity.Mode) ntfyPayload {
	if mode == activity.ModeError {
		return ntfyPayload{
			Title:    "Agent hit an error",
			Message:  "A tool call failed",
			Priority: 4,
			Tags:     []string{"rotating_light"},
		}
	}
	return ntfyPayload{
		Title:    "Agent finished",
		Message:  "The agent stopped and is waiting for you",
		Priority: 3,
		Tags:     []string{"tada"},
	}
}

func (n *Notifier) send(kind, url string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.post(url, data); err != nil {
			n.logger.Warn("notify: send failed", "kind", kind, "err", err)
		}
	}()
}

func (n *Notifier) post(url string, data []byte) error {
	resp, err := n.client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}
