package evm

import (
	"fmt"
	"math/big"
)

// knownNames maps chain ids to display names for the networks the wallet
// ships with. Anything else falls back to a generic label.
var knownNames = map[uint64]string{
	1:        "Ethereum",
	10:       "Optimism",
	56:       "BNB Smart Chain",
	137:      "Polygon",
	8453:     "Base",
	42161:    "Arbitrum One",
	11155111: "Sepolia",
}

// Network describes one EVM chain, addressed by its CAIP-2 id ("eip155:1").
type Network struct {
	id      string
	name    string
	chainID *big.Int
}

func NewNetwork(id string, chainID *big.Int) *Network {
	name, ok := knownNames[chainID.Uint64()]
	if !ok {
		name = fmt.Sprintf("EVM chain %d", chainID)
	}
	return &Network{id: id, name: name, chainID: new(big.Int).Set(chainID)}
}

func (n *Network) ID() string   { return n.id }
func (n *Network) Name() string { return n.name }

func (n *Network) NativeTokenSymbol() string { return "ETH" }

func (n *Network) NativeTokenDecimals() int32 { return 18 }

func (n *Network) ChainID() *big.Int { return new(big.Int).Set(n.chainID) }
