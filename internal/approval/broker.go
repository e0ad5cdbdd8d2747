package approval

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harborwallet/walletkit-backend/internal/chains"
	"github.com/harborwallet/walletkit-backend/internal/session"
)

var (
	ErrDecisionTimeout = errors.New("approval: decision timed out")
	ErrUnknownRef      = errors.New("approval: unknown reference")
	ErrAlreadyDecided  = errors.New("approval: already decided")
)

// PendingApproval is everything the approval surface needs to render a
// decision screen for one session request.
type PendingApproval struct {
	Ref           string                      `json:"ref"`
	RequestID     int64                       `json:"requestId"`
	Topic         string                      `json:"topic"`
	Peer          session.Peer                `json:"peer"`
	Verify        session.VerifyContext       `json:"verify"`
	NetworkID     string                      `json:"networkId"`
	Method        string                      `json:"method"`
	Permissions   []string                    `json:"permissions,omitempty"`
	IsTransaction bool                        `json:"isTransaction"`
	Definitions   chains.DefinitionList       `json:"definitions,omitempty"`
	Prepared      *chains.PreparedTransaction `json:"prepared,omitempty"`
	Warning       *chains.Warning             `json:"warning,omitempty"`
	CreatedAt     time.Time                   `json:"createdAt"`
}

// Gauge tracks how many approvals are waiting on a decision.
type Gauge interface {
	IncrementPendingApprovals(ctx context.Context)
	DecrementPendingApprovals(ctx context.Context)
}

type nopGauge struct{}

func (nopGauge) IncrementPendingApprovals(context.Context) {}
func (nopGauge) DecrementPendingApprovals(context.Context) {}

type pending struct {
	approval PendingApproval
	decision chan bool
	decided  bool
}

// Broker parks session requests until a human decides. RequestApproval blocks
// the dispatching goroutine; Decide is called from the approval surface.
type Broker struct {
	mu              sync.Mutex
	waiting         map[string]*pending
	decisionTimeout time.Duration
	gauge           Gauge
}

func NewBroker(decisionTimeout time.Duration, gauge Gauge) *Broker {
	if gauge == nil {
		gauge = nopGauge{}
	}
	return &Broker{
		waiting:         make(map[string]*pending),
		decisionTimeout: decisionTimeout,
		gauge:           gauge,
	}
}

// RequestApproval registers the approval and blocks until a decision, the
// timeout, or context cancellation. A timeout or cancellation counts as a
// rejection so the request can still be answered.
func (b *Broker) RequestApproval(ctx context.Context, a PendingApproval) (bool, error) {
	if a.Ref == "" {
		a.Ref = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	p := &pending{approval: a, decision: make(chan bool, 1)}

	b.mu.Lock()
	b.waiting[a.Ref] = p
	b.mu.Unlock()
	b.gauge.IncrementPendingApprovals(ctx)

	defer func() {
		b.mu.Lock()
		delete(b.waiting, a.Ref)
		b.mu.Unlock()
		b.gauge.DecrementPendingApprovals(ctx)
	}()

	// Zero disables the timeout; the request then waits for an explicit
	// decision or context cancellation.
	var timeoutC <-chan time.Time
	if b.decisionTimeout > 0 {
		timer := time.NewTimer(b.decisionTimeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case approved := <-p.decision:
		return approved, nil
	case <-timeoutC:
		return false, ErrDecisionTimeout
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Decide resolves a pending approval by reference.
func (b *Broker) Decide(ref string, approved bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.waiting[ref]
	if !ok {
		return ErrUnknownRef
	}
	if p.decided {
		return ErrAlreadyDecided
	}
	p.decided = true
	p.decision <- approved
	return nil
}

// Pending returns a snapshot of waiting approvals, oldest first.
func (b *Broker) Pending() []PendingApproval {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]PendingApproval, 0, len(b.waiting))
	for _, p := range b.waiting {
		out = append(out, p.approval)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
