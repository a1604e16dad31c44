package swap

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kaifufi/p2p-swap-go/chain"
)

// Kind is the closed set of asset kinds a transfer leg can move
type Kind int

const (
	KindUnknown Kind = iota
	KindNative
	KindFungible
	KindNonFungible
)

func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindFungible:
		return "fungible"
	case KindNonFungible:
		return "non-fungible"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Fungible is a token whose param is an amount. The engine acts as spender.
type Fungible interface {
	BalanceOf(ctx context.Context, wallet common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	TransferFrom(ctx context.Context, spender, from, to common.Address, amount *big.Int) error
}

// NonFungible is a token whose param is an item id
type NonFungible interface {
	OwnerOf(ctx context.Context, id *big.Int) (common.Address, error)
	GetApproved(ctx context.Context, id *big.Int) (common.Address, error)
	TransferFrom(ctx context.Context, spender, from, to common.Address, id *big.Int) error
}

// Native is the ledger of the native currency. It is addressed by the null token.
type Native interface {
	BalanceOf(ctx context.Context, wallet common.Address) (*big.Int, error)
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error
}

// InterfaceSupporter is implemented by tokens that answer ERC-165 probes
type InterfaceSupporter interface {
	SupportsInterface(ctx context.Context, id [4]byte) bool
}

type asset struct {
	kind        Kind
	fungible    Fungible
	nonFungible NonFungible
}

// AssetDirectory maps token addresses to their capabilities
type AssetDirectory struct {
	mu     sync.RWMutex
	assets map[common.Address]asset
}

// NewAssetDirectory creates an empty directory
func NewAssetDirectory() *AssetDirectory {
	return &AssetDirectory{assets: make(map[common.Address]asset)}
}

// RegisterFungible declares token as fungible
func (d *AssetDirectory) RegisterFungible(token common.Address, f Fungible) error {
	if err := d.checkToken(token, f); err != nil {
		return err
	}
	d.put(token, asset{kind: KindFungible, fungible: f})
	return nil
}

// RegisterNonFungible declares token as non-fungible
func (d *AssetDirectory) RegisterNonFungible(token common.Address, nf NonFungible) error {
	if err := d.checkToken(token, nf); err != nil {
		return err
	}
	d.put(token, asset{kind: KindNonFungible, nonFungible: nf})
	return nil
}

// Register infers the kind of impl. An ERC-721 interface probe wins, then
// the Go capability set decides.
func (d *AssetDirectory) Register(ctx context.Context, token common.Address, impl any) (Kind, error) {
	if err := d.checkToken(token, impl); err != nil {
		return KindUnknown, err
	}

	nf, isNonFungible := impl.(NonFungible)
	if s, ok := impl.(InterfaceSupporter); ok && isNonFungible && s.SupportsInterface(ctx, chain.InterfaceIDERC721) {
		d.put(token, asset{kind: KindNonFungible, nonFungible: nf})
		return KindNonFungible, nil
	}
	if isNonFungible {
		d.put(token, asset{kind: KindNonFungible, nonFungible: nf})
		return KindNonFungible, nil
	}
	if f, ok := impl.(Fungible); ok {
		d.put(token, asset{kind: KindFungible, fungible: f})
		return KindFungible, nil
	}
	return KindUnknown, &InvalidParamError{Message: fmt.Sprintf("token %s implements no asset capability", token.Hex())}
}

// Kind returns the kind of token. The null token is always native.
func (d *AssetDirectory) Kind(token common.Address) Kind {
	if token == NullAddress {
		return KindNative
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.assets[token].kind
}

func (d *AssetDirectory) lookup(token common.Address) (asset, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.assets[token]
	return a, ok
}

func (d *AssetDirectory) put(token common.Address, a asset) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.assets[token] = a
}

func (d *AssetDirectory) checkToken(token common.Address, impl any) error {
	if token == NullAddress {
		return &InvalidParamError{Message: "the null token is reserved for the native currency"}
	}
	if impl == nil {
		return &InvalidParamError{Message: "asset implementation is required"}
	}
	return nil
}
