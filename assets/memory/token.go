// Package memory provides in-process asset collaborators for simulations and
// tests. Every mutation made inside an engine call registers its own
// compensation with swap.OnRollback.
package memory

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	swap "github.com/kaifufi/p2p-swap-go"
)

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// Token is a fungible token with balances and spender allowances
type Token struct {
	Symbol string

	mu         sync.Mutex
	balances   map[common.Address]*big.Int
	allowances map[allowanceKey]*big.Int
}

// NewToken creates an empty token
func NewToken(symbol string) *Token {
	return &Token{
		Symbol:     symbol,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
	}
}

// Mint credits amount to wallet
func (t *Token) Mint(wallet common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[wallet] = new(big.Int).Add(t.balance(wallet), amount)
}

// Approve sets the amount spender may move for owner
func (t *Token) Approve(owner, spender common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allowances[allowanceKey{owner, spender}] = new(big.Int).Set(amount)
}

func (t *Token) BalanceOf(_ context.Context, wallet common.Address) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.balance(wallet)), nil
}

func (t *Token) Allowance(_ context.Context, owner, spender common.Address) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.allowance(owner, spender)), nil
}

// TransferFrom moves amount from one wallet to another, spending the
// spender's allowance
func (t *Token) TransferFrom(ctx context.Context, spender, from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := allowanceKey{from, spender}
	allowance := t.allowance(from, spender)
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s allowance %s < %s", swap.ErrInsufficientAllowance, t.Symbol, allowance, amount)
	}
	fromBalance := t.balance(from)
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s balance %s < %s", swap.ErrInsufficientBalance, t.Symbol, fromBalance, amount)
	}

	toBalance := t.balance(to)
	t.allowances[key] = new(big.Int).Sub(allowance, amount)
	t.balances[from] = new(big.Int).Sub(fromBalance, amount)
	t.balances[to] = new(big.Int).Add(t.balance(to), amount)

	swap.OnRollback(ctx, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.allowances[key] = allowance
		t.balances[to] = toBalance
		t.balances[from] = fromBalance
	})
	return nil
}

func (t *Token) balance(wallet common.Address) *big.Int {
	if b, ok := t.balances[wallet]; ok {
		return b
	}
	return new(big.Int)
}

func (t *Token) allowance(owner, spender common.Address) *big.Int {
	if a, ok := t.allowances[allowanceKey{owner, spender}]; ok {
		return a
	}
	return new(big.Int)
}
