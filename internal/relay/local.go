package relay

import (
	"context"
	"sync"

	"github.com/harborwallet/walletkit-backend/internal/session"
)

// TopicResponse pairs a relayed response with its topic.
type TopicResponse struct {
	Topic    string
	Response Response
}

// LocalBus is an in-process session transport. It stands in for the remote
// relay in tests and in embedded deployments where the pairing layer runs in
// the same process.
type LocalBus struct {
	mu        sync.RWMutex
	handler   Handler
	responses map[string][]Response
	notify    chan TopicResponse
}

func NewLocalBus() *LocalBus {
	return &LocalBus{
		responses: make(map[string][]Response),
		notify:    make(chan TopicResponse, 64),
	}
}

// Subscribe installs the handler inbound requests are delivered to.
func (b *LocalBus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

// Deliver hands an inbound session request to the subscribed handler in the
// caller's goroutine. Requests delivered before Subscribe are dropped.
func (b *LocalBus) Deliver(ctx context.Context, req session.Request) {
	b.mu.RLock()
	h := b.handler
	b.mu.RUnlock()

	if h != nil {
		h(ctx, req)
	}
}

// RespondSessionRequest records the response for its topic and notifies any
// listener. It never fails.
func (b *LocalBus) RespondSessionRequest(ctx context.Context, topic string, resp Response) error {
	b.mu.Lock()
	b.responses[topic] = append(b.responses[topic], resp)
	b.mu.Unlock()

	// Non-blocking notify; the buffer is for tests that await responses.
	select {
	case b.notify <- TopicResponse{Topic: topic, Response: resp}:
	default:
	}
	return nil
}

// Responses returns a copy of everything relayed on a topic so far.
func (b *LocalBus) Responses(topic string) []Response {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Response, len(b.responses[topic]))
	copy(out, b.responses[topic])
	return out
}

// Notifications exposes the response stream for callers that want to block
// until a response is relayed.
func (b *LocalBus) Notifications() <-chan TopicResponse {
	return b.notify
}
