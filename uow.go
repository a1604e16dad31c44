package swap

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// StatusChange records an order id leaving the open state
type StatusChange struct {
	Maker  common.Address
	ID     *big.Int
	Status Status
}

// GrantKey identifies an authorization
type GrantKey struct {
	Approver common.Address
	Delegate common.Address
}

// Changeset is the durable state written by one committed call
type Changeset struct {
	Statuses []StatusChange
	Grants   []Authorization
	Revoked  []GrantKey
}

// Empty reports whether the changeset carries no writes
func (c Changeset) Empty() bool {
	return len(c.Statuses) == 0 && len(c.Grants) == 0 && len(c.Revoked) == 0
}

// Snapshot is the durable state an engine is restored from
type Snapshot struct {
	Statuses []StatusChange
	Grants   []Authorization
}

// Persister stores committed changesets. An Apply error aborts the call.
type Persister interface {
	Apply(ctx context.Context, cs Changeset) error
}

type uowKey struct{}

type unitOfWork struct {
	rollbacks []func()
	events    []Event
	changes   Changeset
}

func withUnitOfWork(ctx context.Context) (context.Context, *unitOfWork) {
	u := &unitOfWork{}
	return context.WithValue(ctx, uowKey{}, u), u
}

func unitOfWorkFrom(ctx context.Context) *unitOfWork {
	u, _ := ctx.Value(uowKey{}).(*unitOfWork)
	return u
}

// OnRollback registers fn to run if the call carried by ctx fails.
// Compensations run in reverse registration order. Outside a call it is a no-op.
func OnRollback(ctx context.Context, fn func()) {
	if u := unitOfWorkFrom(ctx); u != nil {
		u.rollbacks = append(u.rollbacks, fn)
	}
}

func (u *unitOfWork) emit(e Event) {
	u.events = append(u.events, e)
}

func (u *unitOfWork) rollback() {
	for i := len(u.rollbacks) - 1; i >= 0; i-- {
		u.rollbacks[i]()
	}
	u.rollbacks = nil
	u.events = nil
	u.changes = Changeset{}
}
