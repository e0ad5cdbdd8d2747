package approval

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGauge struct {
	pending atomic.Int64
}

func (g *countingGauge) IncrementPendingApprovals(context.Context) { g.pending.Add(1) }
func (g *countingGauge) DecrementPendingApprovals(context.Context) { g.pending.Add(-1) }

func waitForPending(t *testing.T, b *Broker, n int) []PendingApproval {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p := b.Pending(); len(p) == n {
			return p
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("never saw %d pending approvals", n)
	return nil
}

func TestBrokerApprove(t *testing.T) {
	b := NewBroker(5*time.Second, nil)

	result := make(chan bool, 1)
	go func() {
		approved, err := b.RequestApproval(context.Background(), PendingApproval{RequestID: 42, Topic: "t1"})
		require.NoError(t, err)
		result <- approved
	}()

	pending := waitForPending(t, b, 1)
	assert.Equal(t, int64(42), pending[0].RequestID)
	assert.NotEmpty(t, pending[0].Ref)

	require.NoError(t, b.Decide(pending[0].Ref, true))
	assert.True(t, <-result)

	waitForPending(t, b, 0)
}

func TestBrokerReject(t *testing.T) {
	b := NewBroker(5*time.Second, nil)

	result := make(chan bool, 1)
	go func() {
		approved, err := b.RequestApproval(context.Background(), PendingApproval{Topic: "t1"})
		require.NoError(t, err)
		result <- approved
	}()

	pending := waitForPending(t, b, 1)
	require.NoError(t, b.Decide(pending[0].Ref, false))
	assert.False(t, <-result)
}

func TestBrokerDecisionTimeout(t *testing.T) {
	b := NewBroker(20*time.Millisecond, nil)

	approved, err := b.RequestApproval(context.Background(), PendingApproval{Topic: "t1"})
	assert.ErrorIs(t, err, ErrDecisionTimeout)
	assert.False(t, approved)
	assert.Empty(t, b.Pending())
}

func TestBrokerZeroTimeoutWaitsForDecision(t *testing.T) {
	b := NewBroker(0, nil)

	result := make(chan bool, 1)
	go func() {
		approved, err := b.RequestApproval(context.Background(), PendingApproval{Topic: "t1"})
		require.NoError(t, err)
		result <- approved
	}()

	pending := waitForPending(t, b, 1)

	// With the timeout disabled the request is still pending after the
	// zero-duration window would have elapsed.
	time.Sleep(50 * time.Millisecond)
	require.Len(t, b.Pending(), 1)

	require.NoError(t, b.Decide(pending[0].Ref, true))
	assert.True(t, <-result)
}

func TestBrokerContextCancel(t *testing.T) {
	b := NewBroker(time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := b.RequestApproval(ctx, PendingApproval{Topic: "t1"})
		result <- err
	}()

	waitForPending(t, b, 1)
	cancel()
	assert.ErrorIs(t, <-result, context.Canceled)
}

func TestBrokerUnknownRef(t *testing.T) {
	b := NewBroker(time.Minute, nil)
	assert.ErrorIs(t, b.Decide("no-such-ref", true), ErrUnknownRef)
}

func TestBrokerDoubleDecide(t *testing.T) {
	b := NewBroker(time.Minute, nil)

	go func() {
		_, _ = b.RequestApproval(context.Background(), PendingApproval{Topic: "t1"})
	}()

	pending := waitForPending(t, b, 1)
	require.NoError(t, b.Decide(pending[0].Ref, true))
	assert.ErrorIs(t, b.Decide(pending[0].Ref, false), ErrAlreadyDecided)
}

func TestBrokerPendingOrderedByAge(t *testing.T) {
	b := NewBroker(time.Minute, nil)

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		a := PendingApproval{Topic: "t1", RequestID: int64(i), CreatedAt: base.Add(time.Duration(-i) * time.Second)}
		go func() { _, _ = b.RequestApproval(context.Background(), a) }()
	}

	pending := waitForPending(t, b, 3)
	assert.Equal(t, int64(2), pending[0].RequestID)
	assert.Equal(t, int64(0), pending[2].RequestID)

	for _, p := range pending {
		require.NoError(t, b.Decide(p.Ref, false))
	}
}

func TestBrokerGauge(t *testing.T) {
	gauge := &countingGauge{}
	b := NewBroker(time.Minute, gauge)

	go func() {
		_, _ = b.RequestApproval(context.Background(), PendingApproval{Topic: "t1"})
	}()

	pending := waitForPending(t, b, 1)
	assert.Equal(t, int64(1), gauge.pending.Load())

	require.NoError(t, b.Decide(pending[0].Ref, true))
	waitForPending(t, b, 0)

	deadline := time.Now().Add(time.Second)
	for gauge.pending.Load() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, int64(0), gauge.pending.Load())
}
