package evm

import (
	"encoding/json"

	"github.com/harborwallet/walletkit-backend/internal/chains"
	"github.com/harborwallet/walletkit-backend/internal/display"
)

// Describer turns a transaction object into the definition list the approval
// screen renders.
type Describer struct {
	network *Network
}

func NewDescriber(network *Network) *Describer {
	return &Describer{network: network}
}

func (d *Describer) Describe(tx json.RawMessage) (chains.DefinitionList, error) {
	params, err := parseParams(tx)
	if err != nil {
		return nil, err
	}
	obj := display.TxObject{
		From:  params.From,
		To:    params.To,
		Value: params.Value,
		Nonce: params.Nonce,
		Data:  params.Data,
	}
	return display.Adapt(obj, d.network), nil
}
