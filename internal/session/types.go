package session

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/harborwallet/walletkit-backend/internal/chains"
)

// Peer is the dApp metadata recorded at pairing time.
type Peer struct {
	Name  string   `json:"name"`
	URL   string   `json:"url"`
	Icons []string `json:"icons,omitempty"`
}

// Icon returns the first icon URL, or empty when the dApp published none.
func (p Peer) Icon() string {
	if len(p.Icons) == 0 {
		return ""
	}
	return p.Icons[0]
}

// Verification is the trust signal attached to a session by the relay's
// verify API.
type Verification string

const (
	Verified   Verification = "verified"
	Unverified Verification = "unverified"
	Invalid    Verification = "invalid"
)

// VerifyContext records where a session request claims to originate and how
// trustworthy that claim is.
type VerifyContext struct {
	Origin string       `json:"origin"`
	Status Verification `json:"status"`
}

// Session is an established WalletConnect pairing. It is created and destroyed
// by the pairing layer; the request pipeline only reads it.
type Session struct {
	Topic     string        `json:"topic"`
	Peer      Peer          `json:"peer"`
	Verify    VerifyContext `json:"verify"`
	NetworkID string        `json:"networkId"`
	Wallet    chains.Wallet `json:"wallet"`
	// Permissions are the RPC methods granted to the dApp at pairing time.
	Permissions []string  `json:"permissions,omitempty"`
	DeepLinked  bool      `json:"deepLinked"`
	CreatedAt   time.Time `json:"createdAt"`
}

var (
	ErrEmptyTopic     = errors.New("session: empty topic")
	ErrEmptyNetworkID = errors.New("session: empty network id")
	ErrEmptyWallet    = errors.New("session: empty wallet address")
)

func (s *Session) Validate() error {
	if s.Topic == "" {
		return ErrEmptyTopic
	}
	if s.NetworkID == "" {
		return ErrEmptyNetworkID
	}
	if s.Wallet.Address == "" {
		return ErrEmptyWallet
	}
	return nil
}

// Request is one inbound RPC call scoped to a session. Immutable once
// received; the dispatcher answers it exactly once.
type Request struct {
	ID        int64           `json:"id"`
	Topic     string          `json:"topic"`
	Method    string          `json:"method"`
	NetworkID string          `json:"networkId"`
	Params    json.RawMessage `json:"params"`
}

var (
	ErrRequestEmptyTopic  = errors.New("session request: empty topic")
	ErrRequestEmptyMethod = errors.New("session request: empty method")
	ErrRequestNoParams    = errors.New("session request: missing params")
)

func (r *Request) Validate() error {
	if r.Topic == "" {
		return ErrRequestEmptyTopic
	}
	if r.Method == "" {
		return ErrRequestEmptyMethod
	}
	if len(r.Params) == 0 {
		return ErrRequestNoParams
	}
	return nil
}
