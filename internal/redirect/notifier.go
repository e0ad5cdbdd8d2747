package redirect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/harborwallet/walletkit-backend/internal/session"
)

// Reason tells the paired app why it is being brought back to the foreground.
type Reason string

const (
	ReasonRequestFulfilled Reason = "request_fulfilled"
)

// Notifier hands control back to the dApp after a deep-linked request is
// answered. Implementations must be best-effort: a failed redirect never
// fails the request itself.
type Notifier interface {
	Notify(ctx context.Context, sess session.Session, reason Reason) error
}

// NopNotifier is used when no redirect channel is configured.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, session.Session, Reason) error { return nil }

type event struct {
	Topic   string `json:"topic"`
	PeerURL string `json:"peerUrl,omitempty"`
	Reason  Reason `json:"reason"`
}

// WebhookNotifier POSTs redirect events to the companion service that owns
// the actual OS deep-link hop.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *zap.SugaredLogger
}

func NewWebhookNotifier(url string, timeout time.Duration, logger *zap.SugaredLogger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, sess session.Session, reason Reason) error {
	body, err := json.Marshal(event{
		Topic:   sess.Topic,
		PeerURL: sess.Peer.URL,
		Reason:  reason,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warnw("Redirect webhook failed", "topic", sess.Topic, "error", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		err := fmt.Errorf("redirect: webhook returned %d", resp.StatusCode)
		n.logger.Warnw("Redirect webhook rejected event", "topic", sess.Topic, "status", resp.StatusCode)
		return err
	}

	n.logger.Infow("Redirect delivered", "topic", sess.Topic, "reason", reason)
	return nil
}
