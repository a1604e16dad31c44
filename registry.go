package swap

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Registry holds at most one authorization per (approver, delegate).
// Callers serialize access.
type Registry struct {
	grants map[GrantKey]uint64
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{grants: make(map[GrantKey]uint64)}
}

// IsAuthorized reports whether a grant exists and now is before its expiry
func (r *Registry) IsAuthorized(approver, delegate common.Address, now uint64) bool {
	expiry, ok := r.grants[GrantKey{Approver: approver, Delegate: delegate}]
	return ok && now < expiry
}

// Authorization returns the stored grant, expired or not
func (r *Registry) Authorization(approver, delegate common.Address) (Authorization, bool) {
	expiry, ok := r.grants[GrantKey{Approver: approver, Delegate: delegate}]
	if !ok {
		return Authorization{}, false
	}
	return Authorization{Approver: approver, Delegate: delegate, Expiry: expiry}, true
}

func (r *Registry) put(ctx context.Context, a Authorization) {
	key := GrantKey{Approver: a.Approver, Delegate: a.Delegate}
	prev, existed := r.grants[key]
	r.grants[key] = a.Expiry
	OnRollback(ctx, func() {
		if existed {
			r.grants[key] = prev
			return
		}
		delete(r.grants, key)
	})

	if u := unitOfWorkFrom(ctx); u != nil {
		u.changes.Grants = append(u.changes.Grants, a)
	}
}

// remove reports whether a grant was deleted
func (r *Registry) remove(ctx context.Context, approver, delegate common.Address) bool {
	key := GrantKey{Approver: approver, Delegate: delegate}
	prev, ok := r.grants[key]
	if !ok {
		return false
	}
	delete(r.grants, key)
	OnRollback(ctx, func() { r.grants[key] = prev })

	if u := unitOfWorkFrom(ctx); u != nil {
		u.changes.Revoked = append(u.changes.Revoked, key)
	}
	return true
}

func (r *Registry) restore(grants []Authorization) {
	for _, g := range grants {
		r.grants[GrantKey{Approver: g.Approver, Delegate: g.Delegate}] = g.Expiry
	}
}
