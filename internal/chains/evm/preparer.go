package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/harborwallet/walletkit-backend/internal/chains"
)

// nodeClient is the slice of ethclient.Client the preparer needs.
type nodeClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Simulator inspects a fully populated transaction before it reaches the
// approval screen and can warn about or block it.
type Simulator interface {
	Simulate(ctx context.Context, network *Network, tx *txParams) (chains.PreventativeAction, []chains.Warning, error)
}

// NoSimulator passes everything through untouched.
type NoSimulator struct{}

func (NoSimulator) Simulate(context.Context, *Network, *txParams) (chains.PreventativeAction, []chains.Warning, error) {
	return chains.ActionNone, nil, nil
}

// Preparer fills in the fields dApps routinely omit (nonce, gas limit, fee
// caps) and runs the simulation pass.
type Preparer struct {
	network   *Network
	client    nodeClient
	simulator Simulator
}

func NewPreparer(network *Network, client nodeClient, simulator Simulator) *Preparer {
	if simulator == nil {
		simulator = NoSimulator{}
	}
	return &Preparer{network: network, client: client, simulator: simulator}
}

func (p *Preparer) Prepare(ctx context.Context, wallet chains.Wallet, req chains.PrepareRequest) (*chains.PreparedTransaction, error) {
	params, err := parseParams(req.Transaction)
	if err != nil {
		return nil, err
	}

	if err := p.fillDefaults(ctx, params); err != nil {
		return nil, err
	}

	action, warnings, err := p.simulator.Simulate(ctx, p.network, params)
	if err != nil {
		return nil, fmt.Errorf("evm: simulate: %w", err)
	}

	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return &chains.PreparedTransaction{
		Data:               data,
		PreventativeAction: action,
		Warnings:           warnings,
	}, nil
}

func (p *Preparer) fillDefaults(ctx context.Context, params *txParams) error {
	from := common.HexToAddress(params.From)

	if params.Nonce == "" {
		nonce, err := p.client.PendingNonceAt(ctx, from)
		if err != nil {
			return fmt.Errorf("evm: fetch nonce: %w", err)
		}
		params.Nonce = hexutil.EncodeUint64(nonce)
	}

	if params.MaxFeePerGas == "" || params.MaxPriorityFeePerGas == "" {
		tip, err := p.client.SuggestGasTipCap(ctx)
		if err != nil {
			return fmt.Errorf("evm: fetch gas tip: %w", err)
		}
		head, err := p.client.HeaderByNumber(ctx, nil)
		if err != nil {
			return fmt.Errorf("evm: fetch head: %w", err)
		}
		// feeCap = 2*baseFee + tip, the usual headroom for base fee drift.
		feeCap := new(big.Int).Add(
			new(big.Int).Mul(head.BaseFee, big.NewInt(2)),
			tip,
		)
		if params.MaxPriorityFeePerGas == "" {
			params.MaxPriorityFeePerGas = hexutil.EncodeBig(tip)
		}
		if params.MaxFeePerGas == "" {
			params.MaxFeePerGas = hexutil.EncodeBig(feeCap)
		}
	}

	if params.Gas == "" {
		value, err := hexToBig(params.Value)
		if err != nil {
			return fmt.Errorf("evm: decode value: %w", err)
		}
		var data []byte
		if params.Data != "" {
			if data, err = hexutil.Decode(params.Data); err != nil {
				return fmt.Errorf("evm: decode calldata: %w", err)
			}
		}
		call := ethereum.CallMsg{From: from, Value: value, Data: data}
		if params.To != "" {
			to := common.HexToAddress(params.To)
			call.To = &to
		}
		gas, err := p.client.EstimateGas(ctx, call)
		if err != nil {
			return fmt.Errorf("evm: estimate gas: %w", err)
		}
		params.Gas = hexutil.EncodeUint64(gas)
	}

	return nil
}
