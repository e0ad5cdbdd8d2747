package relay

import "encoding/json"

// Version is the fixed JSON-RPC envelope version.
const Version = "2.0"

// WalletConnect SDK error codes surfaced to dApps. A rejection looks the same
// on the wire regardless of its root cause; richer detail goes to telemetry only.
const (
	CodeUserRejected = 5000
)

// Error is the JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Response is the JSON-RPC 2.0 response envelope relayed back over a session.
// Exactly one of Result and Error is set.
type Response struct {
	ID      int64           `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// IsError reports whether the response is a rejection envelope.
func (r Response) IsError() bool {
	return r.Error != nil
}

// Rejected builds the rejection envelope for a request id.
func Rejected(id int64) Response {
	return Response{
		ID:      id,
		JSONRPC: Version,
		Error: &Error{
			Code:    CodeUserRejected,
			Message: "User rejected.",
		},
	}
}

// Result builds the success envelope for a request id.
func Result(id int64, result json.RawMessage) Response {
	return Response{
		ID:      id,
		JSONRPC: Version,
		Result:  result,
	}
}
