package memory

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	swap "github.com/kaifufi/p2p-swap-go"
	"github.com/kaifufi/p2p-swap-go/chain"
)

type operatorKey struct {
	owner    common.Address
	operator common.Address
}

// Collectible is a non-fungible token with per-item and operator approvals
type Collectible struct {
	Symbol string

	mu        sync.Mutex
	owners    map[string]common.Address
	approved  map[string]common.Address
	operators map[operatorKey]bool
}

// NewCollectible creates an empty collection
func NewCollectible(symbol string) *Collectible {
	return &Collectible{
		Symbol:    symbol,
		owners:    make(map[string]common.Address),
		approved:  make(map[string]common.Address),
		operators: make(map[operatorKey]bool),
	}
}

// Mint assigns item id to owner
func (c *Collectible) Mint(owner common.Address, id *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owners[id.String()] = owner
}

// Approve lets spender move a single item
func (c *Collectible) Approve(spender common.Address, id *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.approved[id.String()] = spender
}

// SetApprovalForAll lets operator move every item owner holds
func (c *Collectible) SetApprovalForAll(owner, operator common.Address, approved bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.operators[operatorKey{owner, operator}] = approved
}

// SupportsInterface answers the ERC-721 probe
func (c *Collectible) SupportsInterface(_ context.Context, id [4]byte) bool {
	return id == chain.InterfaceIDERC721
}

func (c *Collectible) OwnerOf(_ context.Context, id *big.Int) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	owner, ok := c.owners[id.String()]
	if !ok {
		return common.Address{}, fmt.Errorf("%s #%s does not exist", c.Symbol, id)
	}
	return owner, nil
}

func (c *Collectible) GetApproved(_ context.Context, id *big.Int) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.approved[id.String()], nil
}

// BalanceOf counts the items wallet holds
func (c *Collectible) BalanceOf(_ context.Context, wallet common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := int64(0)
	for _, owner := range c.owners {
		if owner == wallet {
			n++
		}
	}
	return big.NewInt(n), nil
}

// TransferFrom moves item id. The spender must be approved for the item or
// be an operator for its owner.
func (c *Collectible) TransferFrom(ctx context.Context, spender, from, to common.Address, id *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := id.String()
	owner, ok := c.owners[key]
	if !ok || owner != from {
		return fmt.Errorf("%w: %s #%s not held by %s", swap.ErrInsufficientBalance, c.Symbol, key, from.Hex())
	}
	approved, hadApproval := c.approved[key]
	if approved != spender && !c.operators[operatorKey{from, spender}] {
		return fmt.Errorf("%w: %s #%s not approved for %s", swap.ErrInsufficientAllowance, c.Symbol, key, spender.Hex())
	}

	c.owners[key] = to
	delete(c.approved, key)

	swap.OnRollback(ctx, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.owners[key] = owner
		if hadApproval {
			c.approved[key] = approved
		}
	})
	return nil
}
