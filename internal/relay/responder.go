package relay

import (
	"context"

	"github.com/harborwallet/walletkit-backend/internal/session"
)

// Responder relays a JSON-RPC response back through the session transport.
// Every session request is answered through exactly one call to this.
type Responder interface {
	RespondSessionRequest(ctx context.Context, topic string, resp Response) error
}

// Handler consumes inbound session requests delivered by a transport.
type Handler func(ctx context.Context, req session.Request)
