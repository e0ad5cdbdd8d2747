package evm

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborwallet/walletkit-backend/internal/chains"
)

// BIP-39 seed for "abandon abandon ... about" with an empty passphrase. The
// first account on m/44'/60'/0'/0 is a published derivation vector.
const (
	testSeedHex  = "5eb00bbddcf069084889a8ab9155568165f5c453ccb85e70811aaed6f6da5fc19a5ac40b389cd370d086206dec8aa6c43daea6690f20ad3d8d48b2d2ce9e38e4"
	testAddress0 = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"
)

func testSeed(t *testing.T) []byte {
	t.Helper()
	seed, err := hex.DecodeString(testSeedHex)
	require.NoError(t, err)
	return seed
}

func mainnet() *Network {
	return NewNetwork("eip155:1", big.NewInt(1))
}

func TestNetworkMetadata(t *testing.T) {
	n := mainnet()
	assert.Equal(t, "eip155:1", n.ID())
	assert.Equal(t, "Ethereum", n.Name())
	assert.Equal(t, "ETH", n.NativeTokenSymbol())
	assert.Equal(t, int32(18), n.NativeTokenDecimals())

	unknown := NewNetwork("eip155:99999", big.NewInt(99999))
	assert.Equal(t, "EVM chain 99999", unknown.Name())
}

func TestDeriveAddressVector(t *testing.T) {
	addr, err := DeriveAddress(testSeed(t), 0)
	require.NoError(t, err)
	assert.Equal(t, testAddress0, addr)
}

func TestSignerProducesValidTransaction(t *testing.T) {
	seed := testSeed(t)
	wallet := chains.Wallet{ID: "w1", Address: testAddress0, AccountIndex: 0}

	prepared, err := json.Marshal(txParams{
		From:                 testAddress0,
		To:                   "0x000000000000000000000000000000000000dEaD",
		Gas:                  "0x5208",
		MaxFeePerGas:         "0x77359400",
		MaxPriorityFeePerGas: "0x3b9aca00",
		Value:                "0xde0b6b3a7640000",
		Nonce:                "0x2a",
	})
	require.NoError(t, err)

	signer := NewSigner(mainnet())
	signed, err := signer.Sign(context.Background(), wallet, seed, prepared)
	require.NoError(t, err)
	assert.NotEmpty(t, signed.Hash)

	// Payload is a JSON string holding the raw signed transaction.
	var rawHex string
	require.NoError(t, json.Unmarshal(signed.Payload, &rawHex))

	var tx types.Transaction
	raw, err := hex.DecodeString(rawHex[2:])
	require.NoError(t, err)
	require.NoError(t, tx.UnmarshalBinary(raw))

	assert.Equal(t, uint64(42), tx.Nonce())
	assert.Equal(t, uint64(21000), tx.Gas())
	assert.Equal(t, "1000000000000000000", tx.Value().String())

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1)), &tx)
	require.NoError(t, err)
	assert.Equal(t, testAddress0, from.Hex())
}

func TestSignerRejectsForeignWallet(t *testing.T) {
	wallet := chains.Wallet{ID: "w1", Address: "0x000000000000000000000000000000000000dEaD", AccountIndex: 0}
	prepared, _ := json.Marshal(txParams{From: testAddress0, Nonce: "0x0", Gas: "0x5208", MaxFeePerGas: "0x1", MaxPriorityFeePerGas: "0x1"})

	signer := NewSigner(mainnet())
	_, err := signer.Sign(context.Background(), wallet, testSeed(t), prepared)
	assert.ErrorContains(t, err, "does not match wallet")
}

type fakeNode struct {
	nonce   uint64
	gas     uint64
	tip     *big.Int
	baseFee *big.Int
}

func (f *fakeNode) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeNode) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return f.gas, nil
}

func (f *fakeNode) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return f.tip, nil
}

func (f *fakeNode) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: f.baseFee}, nil
}

type stubSimulator struct {
	action   chains.PreventativeAction
	warnings []chains.Warning
}

func (s *stubSimulator) Simulate(context.Context, *Network, *txParams) (chains.PreventativeAction, []chains.Warning, error) {
	return s.action, s.warnings, nil
}

func TestPreparerFillsDefaults(t *testing.T) {
	node := &fakeNode{nonce: 7, gas: 21000, tip: big.NewInt(1_000_000_000), baseFee: big.NewInt(10_000_000_000)}
	p := NewPreparer(mainnet(), node, nil)

	req := chains.PrepareRequest{
		Transaction: json.RawMessage(`[{"from":"` + testAddress0 + `","to":"0x000000000000000000000000000000000000dEaD","value":"0x1"}]`),
	}
	prepared, err := p.Prepare(context.Background(), chains.Wallet{Address: testAddress0}, req)
	require.NoError(t, err)
	assert.Equal(t, chains.ActionNone, prepared.PreventativeAction)
	assert.Empty(t, prepared.Warnings)

	var out txParams
	require.NoError(t, json.Unmarshal(prepared.Data, &out))
	assert.Equal(t, "0x7", out.Nonce)
	assert.Equal(t, "0x5208", out.Gas)
	assert.Equal(t, "0x3b9aca00", out.MaxPriorityFeePerGas)
	// 2*10 gwei + 1 gwei = 21 gwei.
	assert.Equal(t, "0x4e3b29200", out.MaxFeePerGas)
}

func TestPreparerKeepsProvidedFields(t *testing.T) {
	node := &fakeNode{nonce: 7, gas: 21000, tip: big.NewInt(1), baseFee: big.NewInt(1)}
	p := NewPreparer(mainnet(), node, nil)

	req := chains.PrepareRequest{
		Transaction: json.RawMessage(`{"from":"` + testAddress0 + `","nonce":"0x2a","gas":"0x9c40","maxFeePerGas":"0x5","maxPriorityFeePerGas":"0x2"}`),
	}
	prepared, err := p.Prepare(context.Background(), chains.Wallet{Address: testAddress0}, req)
	require.NoError(t, err)

	var out txParams
	require.NoError(t, json.Unmarshal(prepared.Data, &out))
	assert.Equal(t, "0x2a", out.Nonce)
	assert.Equal(t, "0x9c40", out.Gas)
	assert.Equal(t, "0x5", out.MaxFeePerGas)
	assert.Equal(t, "0x2", out.MaxPriorityFeePerGas)
}

func TestPreparerSurfacesSimulation(t *testing.T) {
	node := &fakeNode{tip: big.NewInt(1), baseFee: big.NewInt(1)}
	sim := &stubSimulator{
		action:   chains.ActionBlock,
		warnings: []chains.Warning{{Severity: chains.SeverityCritical, Message: "drains the account"}},
	}
	p := NewPreparer(mainnet(), node, sim)

	req := chains.PrepareRequest{
		Transaction: json.RawMessage(`{"from":"` + testAddress0 + `","nonce":"0x0","gas":"0x5208","maxFeePerGas":"0x1","maxPriorityFeePerGas":"0x1"}`),
	}
	prepared, err := p.Prepare(context.Background(), chains.Wallet{Address: testAddress0}, req)
	require.NoError(t, err)
	assert.Equal(t, chains.ActionBlock, prepared.PreventativeAction)
	require.Len(t, prepared.Warnings, 1)
	assert.Equal(t, "drains the account", prepared.Warnings[0].Message)
}

func TestPreparerRejectsBadParams(t *testing.T) {
	p := NewPreparer(mainnet(), &fakeNode{}, nil)

	for name, raw := range map[string]string{
		"empty array":  `[]`,
		"no sender":    `{"to":"0x000000000000000000000000000000000000dEaD"}`,
		"bad sender":   `{"from":"not-an-address"}`,
		"bad receiver": `{"from":"` + testAddress0 + `","to":"nope"}`,
		"not json":     `wat`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := p.Prepare(context.Background(), chains.Wallet{}, chains.PrepareRequest{Transaction: json.RawMessage(raw)})
			assert.Error(t, err)
		})
	}
}

func TestDescriberBuildsDefinitionList(t *testing.T) {
	d := NewDescriber(mainnet())

	list, err := d.Describe(json.RawMessage(`[{"from":"` + testAddress0 + `","to":"0x000000000000000000000000000000000000dEaD","value":"0xde0b6b3a7640000","nonce":"0x2a"}]`))
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, "Amount", list[0].Title)
	assert.Equal(t, "1", list[0].Description)
	assert.Equal(t, "Nonce", list[3].Title)
	assert.Equal(t, "42", list[3].Description)
}
