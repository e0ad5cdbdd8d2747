package evm

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// txParams is the transaction object as dApps send it over WalletConnect:
// all quantities are 0x-prefixed hex strings, optional fields may be empty.
type txParams struct {
	From                 string `json:"from"`
	To                   string `json:"to,omitempty"`
	Gas                  string `json:"gas,omitempty"`
	MaxFeePerGas         string `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas,omitempty"`
	Value                string `json:"value,omitempty"`
	Nonce                string `json:"nonce,omitempty"`
	Data                 string `json:"data,omitempty"`
}

// parseParams accepts either the JSON-RPC params array (the transaction is
// the first element) or a bare transaction object.
func parseParams(raw json.RawMessage) (*txParams, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("evm: decode params array: %w", err)
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("evm: empty params array")
		}
		raw = list[0]
	}

	var p txParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("evm: decode transaction object: %w", err)
	}
	if p.From == "" {
		return nil, fmt.Errorf("evm: transaction has no sender")
	}
	if !common.IsHexAddress(p.From) {
		return nil, fmt.Errorf("evm: invalid sender address %q", p.From)
	}
	if p.To != "" && !common.IsHexAddress(p.To) {
		return nil, fmt.Errorf("evm: invalid recipient address %q", p.To)
	}
	return &p, nil
}

func hexToBig(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	return hexutil.DecodeBig(s)
}

func hexToUint64(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return hexutil.DecodeUint64(s)
}
