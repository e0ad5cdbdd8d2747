package chains

import (
	"context"
	"encoding/json"
)

// Network describes one supported chain. The ID is a CAIP-2 identifier
// ("eip155:1") and is the registry key.
type Network interface {
	ID() string
	Name() string
	NativeTokenSymbol() string
	NativeTokenDecimals() int32
}

// Wallet is the identity an approved request is signed for. It carries no
// secret material; the seed is fetched separately and only for the signing call.
type Wallet struct {
	ID           string `json:"id"`
	Address      string `json:"address"`
	AccountIndex uint32 `json:"accountIndex"`
}

// Severity classifies a simulation warning.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Warning is one finding from transaction simulation.
type Warning struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// PreventativeAction is the preparer's verdict on whether the user should be
// allowed to continue.
type PreventativeAction string

const (
	ActionNone  PreventativeAction = "none"
	ActionWarn  PreventativeAction = "warn"
	ActionBlock PreventativeAction = "block"
)

// PrepareRequest is the raw inbound transaction plus the dApp origin the
// request was verified against.
type PrepareRequest struct {
	Transaction json.RawMessage
	DAppOrigin  string
}

// PreparedTransaction is the preparer's output: the simulation-ready
// transaction data the signer consumes, plus risk findings. It lives only for
// the duration of one session request.
type PreparedTransaction struct {
	Data               json.RawMessage
	PreventativeAction PreventativeAction
	Warnings           []Warning
}

// SignedTransaction carries the RPC-ready result value for the relay response
// and the transaction hash for logging.
type SignedTransaction struct {
	Payload json.RawMessage
	Hash    string
}

// Entry is one row of a transaction preview.
type Entry struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// DefinitionList is the ordered preview of a transaction shown at approval
// time. Order is a display contract.
type DefinitionList []Entry

// Preparer validates, fee-estimates and simulates a raw transaction before
// signing. Implementations are per-network.
type Preparer interface {
	Prepare(ctx context.Context, wallet Wallet, req PrepareRequest) (*PreparedTransaction, error)
}

// Signer produces the signed transaction for previously prepared data.
// The seed is borrowed for the duration of the call only.
type Signer interface {
	Sign(ctx context.Context, wallet Wallet, seed []byte, data json.RawMessage) (*SignedTransaction, error)
}

// Describer projects a raw transaction into the preview definition list.
type Describer interface {
	Describe(transaction json.RawMessage) (DefinitionList, error)
}
