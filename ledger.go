package swap

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type orderKey struct {
	maker common.Address
	id    string
}

func newOrderKey(maker common.Address, id *big.Int) orderKey {
	return orderKey{maker: maker, id: bigOrZero(id).String()}
}

// Ledger tracks per-maker order id status. Ids never seen are open.
// Callers serialize access.
type Ledger struct {
	statuses map[orderKey]Status
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{statuses: make(map[orderKey]Status)}
}

// StatusOf returns the status of maker's order id
func (l *Ledger) StatusOf(maker common.Address, id *big.Int) Status {
	return l.statuses[newOrderKey(maker, id)]
}

func (l *Ledger) checkOpen(maker common.Address, id *big.Int) error {
	switch l.StatusOf(maker, id) {
	case StatusFilled:
		return ErrOrderAlreadyFilled
	case StatusCanceled:
		return ErrOrderAlreadyCanceled
	}
	return nil
}

func (l *Ledger) markFilled(ctx context.Context, maker common.Address, id *big.Int) error {
	if err := l.checkOpen(maker, id); err != nil {
		return err
	}
	l.transition(ctx, maker, id, StatusFilled)
	return nil
}

// cancel reports whether id moved from open to canceled
func (l *Ledger) cancel(ctx context.Context, maker common.Address, id *big.Int) bool {
	if l.StatusOf(maker, id) != StatusOpen {
		return false
	}
	l.transition(ctx, maker, id, StatusCanceled)
	return true
}

func (l *Ledger) transition(ctx context.Context, maker common.Address, id *big.Int, status Status) {
	key := newOrderKey(maker, id)
	l.statuses[key] = status
	OnRollback(ctx, func() { delete(l.statuses, key) })

	if u := unitOfWorkFrom(ctx); u != nil {
		u.changes.Statuses = append(u.changes.Statuses, StatusChange{
			Maker:  maker,
			ID:     new(big.Int).Set(bigOrZero(id)),
			Status: status,
		})
	}
}

func (l *Ledger) restore(changes []StatusChange) {
	for _, c := range changes {
		if c.Status == StatusOpen {
			continue
		}
		l.statuses[newOrderKey(c.Maker, c.ID)] = c.Status
	}
}
