package memory

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	swap "github.com/kaifufi/p2p-swap-go"
)

// NativeLedger holds native currency balances
type NativeLedger struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
}

func NewNativeLedger() *NativeLedger {
	return &NativeLedger{balances: make(map[common.Address]*big.Int)}
}

// Fund credits amount to wallet
func (n *NativeLedger) Fund(wallet common.Address, amount *big.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.balances[wallet] = new(big.Int).Add(n.balance(wallet), amount)
}

func (n *NativeLedger) BalanceOf(_ context.Context, wallet common.Address) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return new(big.Int).Set(n.balance(wallet)), nil
}

func (n *NativeLedger) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	fromBalance := n.balance(from)
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: native balance %s < %s", swap.ErrInsufficientBalance, fromBalance, amount)
	}
	toBalance := n.balance(to)

	n.balances[from] = new(big.Int).Sub(fromBalance, amount)
	n.balances[to] = new(big.Int).Add(n.balance(to), amount)

	swap.OnRollback(ctx, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.balances[to] = toBalance
		n.balances[from] = fromBalance
	})
	return nil
}

func (n *NativeLedger) balance(wallet common.Address) *big.Int {
	if b, ok := n.balances[wallet]; ok {
		return b
	}
	return new(big.Int)
}
