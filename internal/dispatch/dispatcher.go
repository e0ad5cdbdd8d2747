package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/harborwallet/walletkit-backend/internal/approval"
	"github.com/harborwallet/walletkit-backend/internal/chains"
	"github.com/harborwallet/walletkit-backend/internal/redirect"
	"github.com/harborwallet/walletkit-backend/internal/relay"
	"github.com/harborwallet/walletkit-backend/internal/risk"
	"github.com/harborwallet/walletkit-backend/internal/seedvault"
	"github.com/harborwallet/walletkit-backend/internal/session"
	"github.com/harborwallet/walletkit-backend/internal/telemetry"
)

// Outcome labels for one handled session request. Every request ends in
// exactly one of these.
const (
	OutcomeFulfilled          = "fulfilled"
	OutcomePrepareFailed      = "prepare_failed"
	OutcomeUserRejected       = "user_rejected"
	OutcomeSeedMissing        = "seed_missing"
	OutcomeSignFailed         = "sign_failed"
	OutcomeRelayFailed        = "relay_failed"
	OutcomeUnknownSession     = "unknown_session"
	OutcomeInvalidRequest     = "invalid_request"
	OutcomeUnsupportedNetwork = "unsupported_network"
	OutcomeUnsupportedMethod  = "unsupported_method"
)

const flowSessionRequest = "session_request"

// SessionReader is the slice of the session store the dispatcher needs.
type SessionReader interface {
	Get(ctx context.Context, topic string) (session.Session, error)
	IsDeepLinked(ctx context.Context, topic string) (bool, error)
}

// ApprovalGateway parks a request until a human decides.
type ApprovalGateway interface {
	RequestApproval(ctx context.Context, a approval.PendingApproval) (bool, error)
}

// RequestMetrics receives per-request instrumentation.
type RequestMetrics interface {
	RecordSessionRequest(ctx context.Context, network, outcome string, duration time.Duration)
	RecordRelayFailure(ctx context.Context, network string)
	IncrementInflight(ctx context.Context)
	DecrementInflight(ctx context.Context)
}

type nopMetrics struct{}

func (nopMetrics) RecordSessionRequest(context.Context, string, string, time.Duration) {}
func (nopMetrics) RecordRelayFailure(context.Context, string)                          {}
func (nopMetrics) IncrementInflight(context.Context)                                   {}
func (nopMetrics) DecrementInflight(context.Context)                                   {}

var defaultTransactionMethods = map[string]bool{
	"eth_sendTransaction": true,
	"eth_signTransaction": true,
}

// Dispatcher runs the full lifecycle of one inbound session request:
// prepare, risk check, approval, signing, and exactly one relayed response.
type Dispatcher struct {
	registry  *chains.Registry
	sessions  SessionReader
	approvals ApprovalGateway
	seeds     seedvault.Store
	responder relay.Responder
	redirects redirect.Notifier
	reporter  telemetry.Reporter
	logger    *zap.SugaredLogger
	metrics   RequestMetrics

	txMethods map[string]bool
}

type Options struct {
	Registry  *chains.Registry
	Sessions  SessionReader
	Approvals ApprovalGateway
	Seeds     seedvault.Store
	Responder relay.Responder
	Redirects redirect.Notifier
	Reporter  telemetry.Reporter
	Logger    *zap.SugaredLogger
	Metrics   RequestMetrics

	// TransactionMethods overrides the RPC methods treated as transactions.
	TransactionMethods []string
}

func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		registry:  opts.Registry,
		sessions:  opts.Sessions,
		approvals: opts.Approvals,
		seeds:     opts.Seeds,
		responder: opts.Responder,
		redirects: opts.Redirects,
		reporter:  opts.Reporter,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		txMethods: defaultTransactionMethods,
	}
	if d.redirects == nil {
		d.redirects = redirect.NopNotifier{}
	}
	if d.metrics == nil {
		d.metrics = nopMetrics{}
	}
	if len(opts.TransactionMethods) > 0 {
		d.txMethods = make(map[string]bool, len(opts.TransactionMethods))
		for _, m := range opts.TransactionMethods {
			d.txMethods[m] = true
		}
	}
	return d
}

// HandleSessionRequest processes one inbound request end to end. It never
// returns an error: every failure mode resolves into a relayed rejection and
// a telemetry report.
func (d *Dispatcher) HandleSessionRequest(ctx context.Context, req session.Request) {
	start := time.Now()
	d.metrics.IncrementInflight(ctx)
	defer d.metrics.DecrementInflight(ctx)

	outcome := d.handle(ctx, req)
	d.metrics.RecordSessionRequest(ctx, req.NetworkID, outcome, time.Since(start))
	d.logger.Infow("Session request handled",
		"topic", req.Topic,
		"requestId", req.ID,
		"method", req.Method,
		"outcome", outcome,
	)
}

func (d *Dispatcher) handle(ctx context.Context, req session.Request) string {
	ec := telemetry.ErrorContext{
		Flow:      flowSessionRequest,
		Topic:     req.Topic,
		RequestID: req.ID,
		Network:   req.NetworkID,
	}

	if err := req.Validate(); err != nil {
		d.reject(ctx, req, ec)
		d.reporter.Report(ctx, err, ec, telemetry.Generic())
		return OutcomeInvalidRequest
	}

	sess, err := d.sessions.Get(ctx, req.Topic)
	if err != nil {
		d.reject(ctx, req, ec)
		d.reporter.Report(ctx, fmt.Errorf("look up session: %w", err), ec, telemetry.Generic())
		return OutcomeUnknownSession
	}

	networkID := req.NetworkID
	if networkID == "" {
		networkID = sess.NetworkID
	}
	ec.Network = networkID

	caps, err := d.registry.Resolve(networkID)
	if err != nil {
		d.reject(ctx, req, ec)
		d.reporter.Report(ctx, err, ec, telemetry.Generic())
		return OutcomeUnsupportedNetwork
	}

	if !d.txMethods[req.Method] {
		d.reject(ctx, req, ec)
		d.reporter.Report(ctx, fmt.Errorf("unsupported method %q", req.Method), ec, telemetry.Generic())
		return OutcomeUnsupportedMethod
	}

	prepared, err := d.prepare(ctx, caps.Preparer, sess, req)
	if err != nil || prepared == nil {
		// A preparer yielding neither a result nor an error is a prepare
		// failure like any other.
		if err == nil {
			err = errors.New("preparer returned no result")
		}
		d.reject(ctx, req, ec)
		d.reporter.Report(ctx, err, ec, telemetry.Generic())
		return OutcomePrepareFailed
	}

	warning := risk.Evaluate(prepared.PreventativeAction, prepared.Warnings)

	// The preview list is presentation only; a describe failure must not
	// abort an otherwise signable request.
	definitions, err := caps.Describer.Describe(prepared.Data)
	if err != nil {
		d.reporter.Report(ctx, fmt.Errorf("describe transaction: %w", err), ec, telemetry.Generic())
		definitions = nil
	}

	approved, err := d.approvals.RequestApproval(ctx, approval.PendingApproval{
		RequestID:     req.ID,
		Topic:         req.Topic,
		Peer:          sess.Peer,
		Verify:        sess.Verify,
		NetworkID:     networkID,
		Method:        req.Method,
		Permissions:   sess.Permissions,
		IsTransaction: true,
		Definitions:   definitions,
		Prepared:      prepared,
		Warning:       warning,
	})
	if err != nil && !errors.Is(err, approval.ErrDecisionTimeout) {
		d.reject(ctx, req, ec)
		d.reporter.Report(ctx, err, ec, telemetry.Generic())
		return OutcomeUserRejected
	}
	if err != nil || !approved {
		// A timed-out decision is treated as a decline so the dApp is
		// never left hanging.
		d.reject(ctx, req, ec)
		d.reporter.Report(ctx, errors.New("user rejected session request"), ec,
			telemetry.Expected("warning", "Transaction was declined."))
		return OutcomeUserRejected
	}

	seed, err := d.seeds.GetSeed(ctx, seedvault.IntentSign)
	if err != nil || len(seed) == 0 {
		if err == nil {
			err = errors.New("seed store returned no seed")
		}
		d.reject(ctx, req, ec)
		d.reporter.Report(ctx, fmt.Errorf("obtain seed: %w", err), ec, telemetry.Generic())
		return OutcomeSeedMissing
	}
	defer seedvault.Zero(seed)

	signed, err := caps.Signer.Sign(ctx, sess.Wallet, seed, prepared.Data)
	if err != nil {
		d.reject(ctx, req, ec)
		d.reporter.Report(ctx, fmt.Errorf("sign transaction: %w", err), ec, telemetry.Generic())
		return OutcomeSignFailed
	}

	if err := d.responder.RespondSessionRequest(ctx, req.Topic, relay.Result(req.ID, signed.Payload)); err != nil {
		d.metrics.RecordRelayFailure(ctx, networkID)
		d.reporter.Report(ctx, fmt.Errorf("relay result: %w", err), ec, telemetry.Generic())
		return OutcomeRelayFailed
	}

	d.notifyRedirect(ctx, sess, ec)
	return OutcomeFulfilled
}

// prepare shields the pipeline from a panicking chain integration.
func (d *Dispatcher) prepare(ctx context.Context, preparer chains.Preparer, sess session.Session, req session.Request) (prepared *chains.PreparedTransaction, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("prepare panicked: %v", r)
		}
	}()
	return preparer.Prepare(ctx, sess.Wallet, chains.PrepareRequest{
		Transaction: req.Params,
		DAppOrigin:  sess.Verify.Origin,
	})
}

// reject relays the rejection response. A relay failure here is terminal for
// this request; it is recorded but not retried.
func (d *Dispatcher) reject(ctx context.Context, req session.Request, ec telemetry.ErrorContext) {
	if err := d.responder.RespondSessionRequest(ctx, req.Topic, relay.Rejected(req.ID)); err != nil {
		d.metrics.RecordRelayFailure(ctx, ec.Network)
		d.reporter.Report(ctx, fmt.Errorf("relay rejection: %w", err), ec, telemetry.Generic())
	}
}

// notifyRedirect bounces the user back to the dApp when the session came in
// through a deep link. Best-effort on every path.
func (d *Dispatcher) notifyRedirect(ctx context.Context, sess session.Session, ec telemetry.ErrorContext) {
	deepLinked, err := d.sessions.IsDeepLinked(ctx, sess.Topic)
	if err != nil {
		d.logger.Warnw("Deep-link lookup failed", "topic", sess.Topic, "error", err)
		return
	}
	if !deepLinked {
		return
	}
	if err := d.redirects.Notify(ctx, sess, redirect.ReasonRequestFulfilled); err != nil {
		d.logger.Warnw("Redirect notification failed", "topic", sess.Topic, "error", err)
	}
}
