package display

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/harborwallet/walletkit-backend/internal/chains"
)

// TxObject is the subset of an EVM transaction request that the preview shows.
// Quantity fields are hex strings as they arrive on the wire.
type TxObject struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"`
	Nonce string `json:"nonce"`
	Data  string `json:"data,omitempty"`
}

// Preview labels, in display order.
const (
	labelAmount = "Amount"
	labelTo     = "To"
	labelFrom   = "From"
	labelNonce  = "Nonce"
)

// Adapt projects a transaction into the ordered four-entry preview list:
// amount, destination, source, nonce. Pure function of its inputs.
func Adapt(tx TxObject, network chains.Network) chains.DefinitionList {
	amount := hexToDecimal(tx.Value)
	amountDisplay := toTokenUnit(amount, network.NativeTokenDecimals())

	return chains.DefinitionList{
		{Title: labelAmount, Description: amountDisplay},
		{Title: labelTo, Description: tx.To},
		{Title: labelFrom, Description: tx.From},
		{Title: labelNonce, Description: hexToDecimal(tx.Nonce)},
	}
}

// hexToDecimal converts a 0x-prefixed hex quantity to its decimal string.
// Malformed input passes through unchanged so the token-unit conversion can
// fall back to it instead of rendering a NaN-like value.
func hexToDecimal(hex string) string {
	trimmed := strings.TrimPrefix(strings.TrimSpace(hex), "0x")
	if trimmed == "" {
		return "0"
	}
	n, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return hex
	}
	return n.String()
}

// toTokenUnit rescales a base-unit amount to the network's native token unit.
// If the amount does not parse as a number, the raw decimal string is shown
// instead; the preview must never display a NaN.
func toTokenUnit(amount string, decimals int32) string {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return amount
	}
	return d.Shift(-decimals).String()
}
