package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ownerKey struct {
	token common.Address
	owner common.Address
}

type nftKey struct {
	token common.Address
	id    string
}

// fakeCaller answers ERC20/ERC721 read calls from in-memory tables
type fakeCaller struct {
	erc20      abi.ABI
	erc721     abi.ABI
	nft        map[common.Address]bool
	balances   map[ownerKey]*big.Int
	allowances map[ownerKey]*big.Int
	owners     map[nftKey]common.Address
	approved   map[nftKey]common.Address
	calls      int
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		erc20:      GetERC20ABI(),
		erc721:     GetERC721ABI(),
		nft:        make(map[common.Address]bool),
		balances:   make(map[ownerKey]*big.Int),
		allowances: make(map[ownerKey]*big.Int),
		owners:     make(map[nftKey]common.Address),
		approved:   make(map[nftKey]common.Address),
	}
}

func (f *fakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.calls++
	token := *msg.To

	method, err := f.erc721.MethodById(msg.Data[:4])
	if err != nil {
		method, err = f.erc20.MethodById(msg.Data[:4])
		if err != nil {
			return nil, err
		}
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "supportsInterface":
		if !f.nft[token] {
			return nil, errors.New("execution reverted")
		}
		return method.Outputs.Pack(true)
	case "balanceOf":
		return method.Outputs.Pack(f.lookup(f.balances, ownerKey{token, args[0].(common.Address)}))
	case "allowance":
		return method.Outputs.Pack(f.lookup(f.allowances, ownerKey{token, args[0].(common.Address)}))
	case "ownerOf":
		return method.Outputs.Pack(f.owners[nftKey{token, args[0].(*big.Int).String()}])
	case "getApproved":
		return method.Outputs.Pack(f.approved[nftKey{token, args[0].(*big.Int).String()}])
	case "isApprovedForAll":
		return method.Outputs.Pack(false)
	}
	return nil, errors.New("unsupported method " + method.Name)
}

func (f *fakeCaller) lookup(table map[ownerKey]*big.Int, key ownerKey) *big.Int {
	if v, ok := table[key]; ok {
		return v
	}
	return new(big.Int)
}

func TestAssetReaderReads(t *testing.T) {
	caller := newFakeCaller()
	alice := common.HexToAddress("0xa11ce")
	ticket := common.HexToAddress("0x71c4e7")
	caller.balances[ownerKey{testAST, alice}] = big.NewInt(1000)
	caller.allowances[ownerKey{testAST, alice}] = big.NewInt(200)
	caller.nft[ticket] = true
	caller.owners[nftKey{ticket, "12345"}] = alice
	caller.approved[nftKey{ticket, "12345"}] = testContract

	reader := NewAssetReader(caller)
	ctx := context.Background()

	balance, err := reader.BalanceOf(ctx, testAST, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance.Int64())

	allowance, err := reader.Allowance(ctx, testAST, alice, testContract)
	require.NoError(t, err)
	assert.Equal(t, int64(200), allowance.Int64())

	owner, err := reader.OwnerOf(ctx, ticket, big.NewInt(12345))
	require.NoError(t, err)
	assert.Equal(t, alice, owner)

	approved, err := reader.GetApproved(ctx, ticket, big.NewInt(12345))
	require.NoError(t, err)
	assert.Equal(t, testContract, approved)

	assert.True(t, reader.IsNonFungible(ctx, ticket))
	assert.False(t, reader.IsNonFungible(ctx, testAST))

	calls := caller.calls
	assert.True(t, reader.IsNonFungible(ctx, ticket))
	assert.Equal(t, calls, caller.calls, "kind lookups are cached")
}

func TestAssetReaderPreflight(t *testing.T) {
	alice := common.HexToAddress("0xa11ce")
	bob := common.HexToAddress("0xb0b")
	carol := common.HexToAddress("0xca201")

	order := &Order{
		ID:        big.NewInt(1),
		Expiry:    1900000000,
		Signer:    alice,
		Maker:     Party{Wallet: alice, Token: testAST, Param: big.NewInt(200)},
		Taker:     Party{Wallet: bob, Token: testDAI, Param: big.NewInt(50)},
		Affiliate: Party{Wallet: carol, Token: testAST, Param: big.NewInt(50)},
	}

	t.Run("passes with funds and allowances", func(t *testing.T) {
		caller := newFakeCaller()
		caller.balances[ownerKey{testAST, alice}] = big.NewInt(250)
		caller.allowances[ownerKey{testAST, alice}] = big.NewInt(250)
		caller.balances[ownerKey{testDAI, bob}] = big.NewInt(50)
		caller.allowances[ownerKey{testDAI, bob}] = big.NewInt(50)

		assert.NoError(t, NewAssetReader(caller).Preflight(context.Background(), order, testContract))
	})

	t.Run("affiliate fee counts toward maker allowance", func(t *testing.T) {
		caller := newFakeCaller()
		caller.balances[ownerKey{testAST, alice}] = big.NewInt(250)
		caller.allowances[ownerKey{testAST, alice}] = big.NewInt(200)
		caller.balances[ownerKey{testDAI, bob}] = big.NewInt(50)
		caller.allowances[ownerKey{testDAI, bob}] = big.NewInt(50)

		err := NewAssetReader(caller).Preflight(context.Background(), order, testContract)
		assert.ErrorIs(t, err, ErrInsufficientAllowance)
	})

	t.Run("taker balance", func(t *testing.T) {
		caller := newFakeCaller()
		caller.balances[ownerKey{testAST, alice}] = big.NewInt(250)
		caller.allowances[ownerKey{testAST, alice}] = big.NewInt(250)
		caller.balances[ownerKey{testDAI, bob}] = big.NewInt(10)
		caller.allowances[ownerKey{testDAI, bob}] = big.NewInt(50)

		err := NewAssetReader(caller).Preflight(context.Background(), order, testContract)
		assert.ErrorIs(t, err, ErrInsufficientBalance)
	})

	t.Run("non-fungible approval", func(t *testing.T) {
		ticket := common.HexToAddress("0x71c4e7")
		nftOrder := &Order{
			ID:     big.NewInt(2),
			Expiry: 1900000000,
			Signer: alice,
			Maker:  Party{Wallet: alice, Token: ticket, Param: big.NewInt(12345)},
			Taker:  Party{Wallet: bob, Token: testDAI, Param: big.NewInt(0)},
		}
		caller := newFakeCaller()
		caller.nft[ticket] = true
		caller.owners[nftKey{ticket, "12345"}] = alice

		reader := NewAssetReader(caller)
		err := reader.Preflight(context.Background(), nftOrder, testContract)
		assert.ErrorIs(t, err, ErrInsufficientAllowance)

		caller.approved[nftKey{ticket, "12345"}] = testContract
		assert.NoError(t, reader.Preflight(context.Background(), nftOrder, testContract))

		caller.owners[nftKey{ticket, "12345"}] = carol
		err = reader.Preflight(context.Background(), nftOrder, testContract)
		assert.ErrorIs(t, err, ErrInsufficientBalance)
	})
}
