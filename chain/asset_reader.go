package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// AssetReader reads token balances, allowances and ownership from deployed
// asset contracts. It never sends transactions.
type AssetReader struct {
	caller    ethereum.ContractCaller
	client    *ethclient.Client
	erc20ABI  abi.ABI
	erc721ABI abi.ABI
	kindCache map[common.Address]bool
	cacheMu   sync.RWMutex
}

// DialAssetReader connects to an RPC endpoint and returns a reader over it
func DialAssetReader(ctx context.Context, rpcURL string) (*AssetReader, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	reader := NewAssetReader(client)
	reader.client = client
	return reader, nil
}

// NewAssetReader creates a reader over any contract caller
func NewAssetReader(caller ethereum.ContractCaller) *AssetReader {
	return &AssetReader{
		caller:    caller,
		erc20ABI:  GetERC20ABI(),
		erc721ABI: GetERC721ABI(),
		kindCache: make(map[common.Address]bool),
	}
}

// BalanceOf returns the ERC20 balance of account
func (r *AssetReader) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	out, err := r.call(ctx, r.erc20ABI, token, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// Allowance returns the ERC20 allowance for owner to spender
func (r *AssetReader) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := r.call(ctx, r.erc20ABI, token, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// OwnerOf returns the owner of an ERC721 token id
func (r *AssetReader) OwnerOf(ctx context.Context, token common.Address, id *big.Int) (common.Address, error) {
	out, err := r.call(ctx, r.erc721ABI, token, "ownerOf", id)
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// GetApproved returns the approved operator of an ERC721 token id
func (r *AssetReader) GetApproved(ctx context.Context, token common.Address, id *big.Int) (common.Address, error) {
	out, err := r.call(ctx, r.erc721ABI, token, "getApproved", id)
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// IsApprovedForAll checks if an operator is approved for all of owner's tokens
func (r *AssetReader) IsApprovedForAll(ctx context.Context, token, owner, operator common.Address) (bool, error) {
	out, err := r.call(ctx, r.erc721ABI, token, "isApprovedForAll", owner, operator)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// SupportsInterface performs an ERC-165 probe
func (r *AssetReader) SupportsInterface(ctx context.Context, token common.Address, interfaceID [4]byte) (bool, error) {
	out, err := r.call(ctx, r.erc721ABI, token, "supportsInterface", interfaceID)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// IsNonFungible reports whether token implements ERC721. Contracts that
// revert on the ERC-165 probe are treated as fungible. Results are cached.
func (r *AssetReader) IsNonFungible(ctx context.Context, token common.Address) bool {
	r.cacheMu.RLock()
	known, ok := r.kindCache[token]
	r.cacheMu.RUnlock()
	if ok {
		return known
	}

	supported, err := r.SupportsInterface(ctx, token, InterfaceIDERC721)
	if err != nil {
		supported = false
	}

	r.cacheMu.Lock()
	r.kindCache[token] = supported
	r.cacheMu.Unlock()
	return supported
}

type requirement struct {
	owner common.Address
	token common.Address
}

type preflightLeg struct {
	from  common.Address
	party Party
}

// Preflight checks that every token leg of order could settle with spender
// as the settling contract. Native legs are checked only when the reader is
// backed by a full RPC client.
func (r *AssetReader) Preflight(ctx context.Context, order *Order, spender common.Address) error {
	legs := []preflightLeg{
		{order.Maker.Wallet, order.Maker},
		{order.Taker.Wallet, order.Taker},
	}
	if !order.Affiliate.IsNull() {
		legs = append(legs, preflightLeg{order.Maker.Wallet, order.Affiliate})
	}

	fungible := make(map[requirement]*big.Int)
	var keys []requirement
	for _, leg := range legs {
		if leg.from == NullAddress {
			continue
		}
		p := leg.party
		if p.IsNative() {
			if err := r.checkNative(ctx, leg.from, p.Amount()); err != nil {
				return err
			}
			continue
		}
		if r.IsNonFungible(ctx, p.Token) {
			if err := r.checkNonFungible(ctx, leg.from, p.Token, p.Amount(), spender); err != nil {
				return err
			}
			continue
		}
		key := requirement{owner: leg.from, token: p.Token}
		if _, ok := fungible[key]; !ok {
			fungible[key] = new(big.Int)
			keys = append(keys, key)
		}
		fungible[key].Add(fungible[key], p.Amount())
	}

	for _, key := range keys {
		need := fungible[key]
		balance, err := r.BalanceOf(ctx, key.token, key.owner)
		if err != nil {
			return fmt.Errorf("failed to get balance of %s: %w", key.owner.Hex(), err)
		}
		if balance.Cmp(need) < 0 {
			return fmt.Errorf("%w: %s holds %s of %s, needs %s",
				ErrInsufficientBalance, key.owner.Hex(), balance, key.token.Hex(), need)
		}
		allowance, err := r.Allowance(ctx, key.token, key.owner, spender)
		if err != nil {
			return fmt.Errorf("failed to get allowance of %s: %w", key.owner.Hex(), err)
		}
		if allowance.Cmp(need) < 0 {
			return fmt.Errorf("%w: %s allows %s of %s, needs %s",
				ErrInsufficientAllowance, key.owner.Hex(), allowance, key.token.Hex(), need)
		}
	}

	return nil
}

func (r *AssetReader) checkNonFungible(ctx context.Context, owner, token common.Address, id *big.Int, spender common.Address) error {
	current, err := r.OwnerOf(ctx, token, id)
	if err != nil {
		return fmt.Errorf("failed to get owner of %s #%s: %w", token.Hex(), id, err)
	}
	if current != owner {
		return fmt.Errorf("%w: %s does not own %s #%s", ErrInsufficientBalance, owner.Hex(), token.Hex(), id)
	}
	approved, err := r.GetApproved(ctx, token, id)
	if err != nil {
		return fmt.Errorf("failed to get approval of %s #%s: %w", token.Hex(), id, err)
	}
	if approved == spender {
		return nil
	}
	all, err := r.IsApprovedForAll(ctx, token, owner, spender)
	if err != nil {
		return fmt.Errorf("failed to check operator approval: %w", err)
	}
	if !all {
		return fmt.Errorf("%w: %s #%s is not approved for %s", ErrInsufficientAllowance, token.Hex(), id, spender.Hex())
	}
	return nil
}

func (r *AssetReader) checkNative(ctx context.Context, owner common.Address, need *big.Int) error {
	if r.client == nil || need.Sign() == 0 {
		return nil
	}
	balance, err := r.client.BalanceAt(ctx, owner, nil)
	if err != nil {
		return fmt.Errorf("failed to get balance: %w", err)
	}
	if balance.Cmp(need) < 0 {
		return fmt.Errorf("%w: %s holds %s native, needs %s", ErrInsufficientBalance, owner.Hex(), balance, need)
	}
	return nil
}

func (r *AssetReader) call(ctx context.Context, parsed abi.ABI, token common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	result, err := r.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: data,
	}, nil)
	if err != nil {
		return nil, err
	}

	out, err := parsed.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty result from %s", method)
	}
	return out, nil
}

// Close closes the Ethereum client connection
func (r *AssetReader) Close() {
	if r.client != nil {
		r.client.Close()
	}
}
