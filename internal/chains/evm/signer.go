package evm

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/harborwallet/walletkit-backend/internal/chains"
)

// Signer derives the wallet key from seed material on every call and signs
// EIP-1559 transactions. Keys never outlive a single Sign call.
type Signer struct {
	network *Network
}

func NewSigner(network *Network) *Signer {
	return &Signer{network: network}
}

func (s *Signer) Sign(ctx context.Context, wallet chains.Wallet, seed []byte, data json.RawMessage) (*chains.SignedTransaction, error) {
	var params txParams
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("evm: decode prepared transaction: %w", err)
	}

	key, err := deriveKey(seed, wallet.AccountIndex)
	if err != nil {
		return nil, err
	}
	defer zeroKey(key)

	derived := crypto.PubkeyToAddress(key.PublicKey)
	if !strings.EqualFold(derived.Hex(), wallet.Address) {
		return nil, fmt.Errorf("evm: derived address %s does not match wallet %s", derived.Hex(), wallet.Address)
	}

	tx, err := buildTx(s.network.ChainID(), &params)
	if err != nil {
		return nil, err
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.network.ChainID()), key)
	if err != nil {
		return nil, fmt.Errorf("evm: sign transaction: %w", err)
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(hexutil.Encode(raw))
	if err != nil {
		return nil, err
	}
	return &chains.SignedTransaction{
		Payload: payload,
		Hash:    signed.Hash().Hex(),
	}, nil
}

func buildTx(chainID *big.Int, params *txParams) (*types.Transaction, error) {
	nonce, err := hexToUint64(params.Nonce)
	if err != nil {
		return nil, fmt.Errorf("evm: decode nonce: %w", err)
	}
	gas, err := hexToUint64(params.Gas)
	if err != nil {
		return nil, fmt.Errorf("evm: decode gas: %w", err)
	}
	value, err := hexToBig(params.Value)
	if err != nil {
		return nil, fmt.Errorf("evm: decode value: %w", err)
	}
	feeCap, err := hexToBig(params.MaxFeePerGas)
	if err != nil {
		return nil, fmt.Errorf("evm: decode fee cap: %w", err)
	}
	tipCap, err := hexToBig(params.MaxPriorityFeePerGas)
	if err != nil {
		return nil, fmt.Errorf("evm: decode tip cap: %w", err)
	}
	var calldata []byte
	if params.Data != "" {
		if calldata, err = hexutil.Decode(params.Data); err != nil {
			return nil, fmt.Errorf("evm: decode calldata: %w", err)
		}
	}

	inner := &types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gas,
		Value:     value,
		Data:      calldata,
	}
	if params.To != "" {
		to := common.HexToAddress(params.To)
		inner.To = &to
	}
	return types.NewTx(inner), nil
}

// deriveKey walks the standard Ethereum path m/44'/60'/0'/0/index.
func deriveKey(seed []byte, index uint32) (*ecdsa.PrivateKey, error) {
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("evm: derive master key: %w", err)
	}

	path := []uint32{
		hdkeychain.HardenedKeyStart + 44,
		hdkeychain.HardenedKeyStart + 60,
		hdkeychain.HardenedKeyStart + 0,
		0,
		index,
	}
	node := master
	for _, step := range path {
		if node, err = node.Derive(step); err != nil {
			return nil, fmt.Errorf("evm: derive child key: %w", err)
		}
	}

	priv, err := node.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("evm: extract private key: %w", err)
	}
	return priv.ToECDSA(), nil
}

// DeriveAddress returns the address at the given account index. Used at boot
// to register wallets against the vault seed.
func DeriveAddress(seed []byte, index uint32) (string, error) {
	key, err := deriveKey(seed, index)
	if err != nil {
		return "", err
	}
	defer zeroKey(key)
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

func zeroKey(key *ecdsa.PrivateKey) {
	key.D.SetInt64(0)
}
