package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harborwallet/walletkit-backend/internal/approval"
	"github.com/harborwallet/walletkit-backend/internal/chains"
	"github.com/harborwallet/walletkit-backend/internal/redirect"
	"github.com/harborwallet/walletkit-backend/internal/relay"
	"github.com/harborwallet/walletkit-backend/internal/seedvault"
	"github.com/harborwallet/walletkit-backend/internal/session"
	"github.com/harborwallet/walletkit-backend/internal/telemetry"
)

const (
	testTopic   = "topic-1"
	testNetwork = "eip155:1"
	testReqID   = int64(42)
)

// --- fakes ---

type fakeNetwork struct{}

func (fakeNetwork) ID() string                 { return testNetwork }
func (fakeNetwork) Name() string               { return "Testnet" }
func (fakeNetwork) NativeTokenSymbol() string  { return "TST" }
func (fakeNetwork) NativeTokenDecimals() int32 { return 18 }

type fakePreparer struct {
	prepared *chains.PreparedTransaction
	err      error
	panics   bool
}

func (f *fakePreparer) Prepare(context.Context, chains.Wallet, chains.PrepareRequest) (*chains.PreparedTransaction, error) {
	if f.panics {
		panic("preparer exploded")
	}
	return f.prepared, f.err
}

type fakeSigner struct {
	signed *chains.SignedTransaction
	err    error
	calls  int
}

func (f *fakeSigner) Sign(context.Context, chains.Wallet, []byte, json.RawMessage) (*chains.SignedTransaction, error) {
	f.calls++
	return f.signed, f.err
}

type fakeDescriber struct {
	list chains.DefinitionList
	err  error
}

func (f *fakeDescriber) Describe(json.RawMessage) (chains.DefinitionList, error) {
	return f.list, f.err
}

type fakeSessions struct {
	sessions   map[string]session.Session
	deepLinked map[string]bool
}

func (f *fakeSessions) Get(_ context.Context, topic string) (session.Session, error) {
	s, ok := f.sessions[topic]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	return s, nil
}

func (f *fakeSessions) IsDeepLinked(_ context.Context, topic string) (bool, error) {
	return f.deepLinked[topic], nil
}

type fakeApprovals struct {
	approved bool
	err      error
	received *approval.PendingApproval
}

func (f *fakeApprovals) RequestApproval(_ context.Context, a approval.PendingApproval) (bool, error) {
	f.received = &a
	return f.approved, f.err
}

type fakeSeeds struct {
	seed []byte
	err  error
}

func (f *fakeSeeds) GetSeed(context.Context, seedvault.Intent) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]byte, len(f.seed))
	copy(out, f.seed)
	return out, nil
}

type recordingReporter struct {
	mu      sync.Mutex
	reports []struct {
		err error
		p   telemetry.Presentation
	}
}

func (r *recordingReporter) Report(_ context.Context, err error, _ telemetry.ErrorContext, p telemetry.Presentation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, struct {
		err error
		p   telemetry.Presentation
	}{err, p})
}

type recordingRedirects struct {
	mu      sync.Mutex
	reasons []redirect.Reason
}

func (r *recordingRedirects) Notify(_ context.Context, _ session.Session, reason redirect.Reason) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
	return nil
}

type recordingMetrics struct {
	mu            sync.Mutex
	outcomes      []string
	relayFailures int
}

func (m *recordingMetrics) RecordSessionRequest(_ context.Context, _, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recordingMetrics) RecordRelayFailure(context.Context, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relayFailures++
}

func (m *recordingMetrics) IncrementInflight(context.Context) {}
func (m *recordingMetrics) DecrementInflight(context.Context) {}

type failingResponder struct {
	bus      *relay.LocalBus
	failOnce bool
	calls    int
}

func (f *failingResponder) RespondSessionRequest(ctx context.Context, topic string, resp relay.Response) error {
	f.calls++
	if f.failOnce && f.calls == 1 {
		return errors.New("socket closed")
	}
	return f.bus.RespondSessionRequest(ctx, topic, resp)
}

// --- fixture ---

type fixture struct {
	dispatcher *Dispatcher
	bus        *relay.LocalBus
	preparer   *fakePreparer
	signer     *fakeSigner
	describer  *fakeDescriber
	sessions   *fakeSessions
	approvals  *fakeApprovals
	seeds      *fakeSeeds
	reporter   *recordingReporter
	redirects  *recordingRedirects
	metrics    *recordingMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		bus: relay.NewLocalBus(),
		preparer: &fakePreparer{
			prepared: &chains.PreparedTransaction{Data: json.RawMessage(`{"nonce":"0x1"}`)},
		},
		signer: &fakeSigner{
			signed: &chains.SignedTransaction{Payload: json.RawMessage(`"0xsigned"`), Hash: "0xhash"},
		},
		describer: &fakeDescriber{list: chains.DefinitionList{{Title: "Amount", Description: "1"}}},
		sessions: &fakeSessions{
			sessions: map[string]session.Session{
				testTopic: {
					Topic:     testTopic,
					Peer:      session.Peer{Name: "dApp"},
					NetworkID: testNetwork,
					Wallet:    chains.Wallet{ID: "w1", Address: "0xabc"},
				},
			},
			deepLinked: map[string]bool{},
		},
		approvals: &fakeApprovals{approved: true},
		seeds:     &fakeSeeds{seed: []byte("seed")},
		reporter:  &recordingReporter{},
		redirects: &recordingRedirects{},
		metrics:   &recordingMetrics{},
	}

	registry := chains.NewRegistry()
	require.NoError(t, registry.Register(chains.Capabilities{
		Network:   fakeNetwork{},
		Preparer:  f.preparer,
		Signer:    f.signer,
		Describer: f.describer,
	}))

	f.dispatcher = New(Options{
		Registry:  registry,
		Sessions:  f.sessions,
		Approvals: f.approvals,
		Seeds:     f.seeds,
		Responder: f.bus,
		Redirects: f.redirects,
		Reporter:  f.reporter,
		Logger:    zap.NewNop().Sugar(),
		Metrics:   f.metrics,
	})
	return f
}

func testRequest() session.Request {
	return session.Request{
		ID:        testReqID,
		Topic:     testTopic,
		Method:    "eth_sendTransaction",
		NetworkID: testNetwork,
		Params:    json.RawMessage(`[{"from":"0xabc"}]`),
	}
}

func (f *fixture) handle(req session.Request) []relay.Response {
	f.dispatcher.HandleSessionRequest(context.Background(), req)
	return f.bus.Responses(req.Topic)
}

func requireSingleRejection(t *testing.T, responses []relay.Response) {
	t.Helper()
	require.Len(t, responses, 1)
	require.True(t, responses[0].IsError())
	assert.Equal(t, testReqID, responses[0].ID)
	assert.Equal(t, relay.CodeUserRejected, responses[0].Error.Code)
	assert.Equal(t, "User rejected.", responses[0].Error.Message)
}

// --- scenarios ---

func TestHappyPath(t *testing.T) {
	f := newFixture(t)
	f.sessions.deepLinked[testTopic] = true

	responses := f.handle(testRequest())

	require.Len(t, responses, 1)
	assert.False(t, responses[0].IsError())
	assert.Equal(t, testReqID, responses[0].ID)
	assert.JSONEq(t, `"0xsigned"`, string(responses[0].Result))

	require.Len(t, f.redirects.reasons, 1)
	assert.Equal(t, redirect.ReasonRequestFulfilled, f.redirects.reasons[0])
	assert.Equal(t, []string{OutcomeFulfilled}, f.metrics.outcomes)
	assert.Empty(t, f.reporter.reports)
}

func TestHappyPathWithoutDeepLink(t *testing.T) {
	f := newFixture(t)

	responses := f.handle(testRequest())

	require.Len(t, responses, 1)
	assert.False(t, responses[0].IsError())
	assert.Empty(t, f.redirects.reasons)
}

func TestApprovalScreenSeesRequest(t *testing.T) {
	f := newFixture(t)
	f.preparer.prepared.PreventativeAction = chains.ActionWarn
	f.preparer.prepared.Warnings = []chains.Warning{{Severity: chains.SeverityWarning, Message: "careful"}}

	f.handle(testRequest())

	a := f.approvals.received
	require.NotNil(t, a)
	assert.Equal(t, testReqID, a.RequestID)
	assert.Equal(t, "dApp", a.Peer.Name)
	assert.True(t, a.IsTransaction)
	require.NotNil(t, a.Warning)
	assert.Equal(t, "careful", a.Warning.Message)
	require.Len(t, a.Definitions, 1)
}

func TestPrepareFailure(t *testing.T) {
	f := newFixture(t)
	cause := errors.New("node unreachable")
	f.preparer.prepared = nil
	f.preparer.err = cause

	requireSingleRejection(t, f.handle(testRequest()))
	assert.Equal(t, []string{OutcomePrepareFailed}, f.metrics.outcomes)

	// The preparer's own error survives into telemetry.
	require.Len(t, f.reporter.reports, 1)
	assert.ErrorIs(t, f.reporter.reports[0].err, cause)

	// A failed preparation never reaches the approval screen.
	assert.Nil(t, f.approvals.received)
	assert.Zero(t, f.signer.calls)
	assert.Empty(t, f.redirects.reasons)
}

func TestPrepareReturnsNothing(t *testing.T) {
	f := newFixture(t)
	f.preparer.prepared = nil
	f.preparer.err = nil

	requireSingleRejection(t, f.handle(testRequest()))
	assert.Equal(t, []string{OutcomePrepareFailed}, f.metrics.outcomes)
	require.Len(t, f.reporter.reports, 1)
	assert.Nil(t, f.approvals.received)
	assert.Zero(t, f.signer.calls)
}

func TestPreparePanic(t *testing.T) {
	f := newFixture(t)
	f.preparer.panics = true

	requireSingleRejection(t, f.handle(testRequest()))
	assert.Equal(t, []string{OutcomePrepareFailed}, f.metrics.outcomes)
}

func TestUserRejects(t *testing.T) {
	f := newFixture(t)
	f.approvals.approved = false

	requireSingleRejection(t, f.handle(testRequest()))
	assert.Equal(t, []string{OutcomeUserRejected}, f.metrics.outcomes)

	// Declines are expected outcomes, not faults.
	require.Len(t, f.reporter.reports, 1)
	assert.Equal(t, telemetry.SeverityWarning, f.reporter.reports[0].p.Severity)
	assert.Zero(t, f.signer.calls)
	assert.Empty(t, f.redirects.reasons)
}

func TestApprovalTimeoutCountsAsRejection(t *testing.T) {
	f := newFixture(t)
	f.approvals.approved = false
	f.approvals.err = approval.ErrDecisionTimeout

	requireSingleRejection(t, f.handle(testRequest()))
	assert.Equal(t, []string{OutcomeUserRejected}, f.metrics.outcomes)
}

func TestSeedMissing(t *testing.T) {
	f := newFixture(t)
	f.seeds.err = seedvault.ErrAccessDenied

	requireSingleRejection(t, f.handle(testRequest()))
	assert.Equal(t, []string{OutcomeSeedMissing}, f.metrics.outcomes)
	assert.Zero(t, f.signer.calls)
}

func TestEmptySeedCountsAsMissing(t *testing.T) {
	f := newFixture(t)
	f.seeds.seed = nil

	requireSingleRejection(t, f.handle(testRequest()))
	assert.Equal(t, []string{OutcomeSeedMissing}, f.metrics.outcomes)
	assert.Zero(t, f.signer.calls)
}

func TestSignFailure(t *testing.T) {
	f := newFixture(t)
	f.signer.signed = nil
	f.signer.err = errors.New("derivation mismatch")

	requireSingleRejection(t, f.handle(testRequest()))
	assert.Equal(t, []string{OutcomeSignFailed}, f.metrics.outcomes)
}

func TestUnknownSession(t *testing.T) {
	f := newFixture(t)

	req := testRequest()
	req.Topic = "no-such-topic"
	f.dispatcher.HandleSessionRequest(context.Background(), req)

	responses := f.bus.Responses("no-such-topic")
	require.Len(t, responses, 1)
	assert.True(t, responses[0].IsError())
	assert.Equal(t, []string{OutcomeUnknownSession}, f.metrics.outcomes)
}

func TestUnsupportedNetwork(t *testing.T) {
	f := newFixture(t)

	req := testRequest()
	req.NetworkID = "eip155:999"
	requireSingleRejection(t, f.handle(req))
	assert.Equal(t, []string{OutcomeUnsupportedNetwork}, f.metrics.outcomes)
}

func TestUnsupportedMethod(t *testing.T) {
	f := newFixture(t)

	req := testRequest()
	req.Method = "eth_signTypedData_v4"
	requireSingleRejection(t, f.handle(req))
	assert.Equal(t, []string{OutcomeUnsupportedMethod}, f.metrics.outcomes)
}

func TestInvalidRequest(t *testing.T) {
	f := newFixture(t)

	req := testRequest()
	req.Params = nil
	requireSingleRejection(t, f.handle(req))
	assert.Equal(t, []string{OutcomeInvalidRequest}, f.metrics.outcomes)
}

func TestNetworkFallsBackToSession(t *testing.T) {
	f := newFixture(t)

	req := testRequest()
	req.NetworkID = ""
	responses := f.handle(req)

	require.Len(t, responses, 1)
	assert.False(t, responses[0].IsError())
}

func TestDescribeFailureDoesNotBlockSigning(t *testing.T) {
	f := newFixture(t)
	f.describer.list = nil
	f.describer.err = errors.New("unparseable")

	responses := f.handle(testRequest())

	require.Len(t, responses, 1)
	assert.False(t, responses[0].IsError())
	require.NotNil(t, f.approvals.received)
	assert.Nil(t, f.approvals.received.Definitions)
	// The describe failure is still reported.
	require.Len(t, f.reporter.reports, 1)
}

func TestResultRelayFailureIsRecorded(t *testing.T) {
	f := newFixture(t)

	responder := &failingResponder{bus: f.bus, failOnce: true}
	f.dispatcher.responder = responder

	f.dispatcher.HandleSessionRequest(context.Background(), testRequest())

	assert.Equal(t, []string{OutcomeRelayFailed}, f.metrics.outcomes)
	assert.Equal(t, 1, f.metrics.relayFailures)
	assert.Empty(t, f.redirects.reasons)
}
