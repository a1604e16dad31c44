package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kaifufi/p2p-swap-go/chain"
	"go.uber.org/zap"
)

// Swap settles a signed order on behalf of call.Sender
func (e *Engine) Swap(ctx context.Context, call Call, order *Order, sig Signature) (*Settlement, error) {
	started := time.Now()

	var settlement *Settlement
	err := e.run(ctx, func(ctx context.Context) error {
		s, err := e.swap(ctx, call, order, sig)
		settlement = s
		return err
	})
	e.metrics.observeSettlement(EntrySwap, started, err)

	if err != nil {
		err = e.orderError(order, err)
		e.logRejected(EntrySwap, call, err)
		return nil, err
	}
	e.logSettled(EntrySwap, settlement)
	return settlement, nil
}

// SwapSimple settles a legacy order. Only the taker may call it and only
// intended-validator signatures are accepted.
func (e *Engine) SwapSimple(ctx context.Context, call Call, order *LegacyOrder, sig Signature) (*Settlement, error) {
	started := time.Now()

	var settlement *Settlement
	err := e.run(ctx, func(ctx context.Context) error {
		s, err := e.swapSimple(ctx, call, order, sig)
		settlement = s
		return err
	})
	e.metrics.observeSettlement(EntrySwapSimple, started, err)

	if err != nil {
		if order != nil {
			full := order.Order()
			err = e.orderError(&full, err)
		}
		e.logRejected(EntrySwapSimple, call, err)
		return nil, err
	}
	e.logSettled(EntrySwapSimple, settlement)
	return settlement, nil
}

func (e *Engine) swap(ctx context.Context, call Call, order *Order, sig Signature) (*Settlement, error) {
	if err := validateOrderParams(order); err != nil {
		return nil, err
	}
	now := e.now()

	// Expired orders fail regardless of who calls or how they are signed
	if order.Expiry <= now {
		return nil, ErrOrderExpired
	}

	// Sender
	if call.Sender != order.Taker.Wallet && !e.registry.IsAuthorized(order.Taker.Wallet, call.Sender, now) {
		return nil, ErrSenderNotAuthorized
	}

	// Signer
	claimed := sig.Signer
	if claimed == NullAddress {
		claimed = order.Maker.Wallet
	}
	if claimed != order.Maker.Wallet && !e.registry.IsAuthorized(order.Maker.Wallet, claimed, now) {
		return nil, ErrSignerNotAuthorized
	}
	if order.Signer != claimed {
		return nil, ErrInvalidDelegateSignature
	}

	// Signature
	if sig.Version == SignatureVersionIntendedValidator {
		return nil, ErrInvalidSignatureVersion
	}
	recovered, err := chain.RecoverSigner(e.domain, order, sig)
	if err != nil {
		return nil, signatureError(err)
	}
	if recovered != claimed {
		return nil, ErrInvalidMakerSignature
	}

	if err := e.ledger.checkOpen(order.Maker.Wallet, order.ID); err != nil {
		return nil, err
	}

	legs, err := e.settle(ctx, call, order)
	if err != nil {
		return nil, err
	}

	if err := e.ledger.markFilled(ctx, order.Maker.Wallet, order.ID); err != nil {
		return nil, err
	}

	settlement := &Settlement{Order: *order, Signer: claimed, Sender: call.Sender, Legs: legs}
	unitOfWorkFrom(ctx).emit(SwapEvent{Order: *order, Signer: claimed, Sender: call.Sender})
	return settlement, nil
}

func (e *Engine) swapSimple(ctx context.Context, call Call, legacy *LegacyOrder, sig Signature) (*Settlement, error) {
	if legacy == nil {
		return nil, &InvalidParamError{Message: "order is required"}
	}
	order := legacy.Order()
	if err := validateOrderParams(&order); err != nil {
		return nil, err
	}

	if order.Expiry <= e.now() {
		return nil, ErrOrderExpired
	}
	if call.Sender != legacy.TakerWallet {
		return nil, ErrSenderNotAuthorized
	}

	if sig.Version != SignatureVersionIntendedValidator {
		return nil, ErrInvalidSignatureVersion
	}
	recovered, err := chain.RecoverLegacySigner(e.address, legacy, sig)
	if err != nil {
		return nil, signatureError(err)
	}
	if recovered != legacy.MakerWallet {
		return nil, ErrInvalidMakerSignature
	}

	if err := e.ledger.checkOpen(legacy.MakerWallet, legacy.ID); err != nil {
		return nil, err
	}

	legs, err := e.settle(ctx, call, &order)
	if err != nil {
		return nil, err
	}

	if err := e.ledger.markFilled(ctx, legacy.MakerWallet, legacy.ID); err != nil {
		return nil, err
	}

	settlement := &Settlement{Order: order, Signer: legacy.MakerWallet, Sender: call.Sender, Legs: legs}
	unitOfWorkFrom(ctx).emit(SwapEvent{Order: order, Signer: legacy.MakerWallet, Sender: call.Sender})
	return settlement, nil
}

// settle checks the attached value and moves every leg of order
func (e *Engine) settle(ctx context.Context, call Call, order *Order) ([]Transfer, error) {
	value := bigOrZero(call.Value)
	if value.Sign() < 0 {
		return nil, &InvalidParamError{Message: "attached value must not be negative"}
	}

	if order.Taker.IsNative() {
		if value.Cmp(order.Taker.Amount()) != 0 {
			return nil, ErrValueMustBeSent
		}
	} else if value.Sign() != 0 {
		return nil, ErrValueMustBeZero
	}
	if order.Maker.IsNative() && order.Taker.IsNative() {
		return nil, ErrNativeOnBothSides
	}

	// Attached value is held by the engine until the taker leg forwards it
	var held *big.Int
	if value.Sign() > 0 {
		if e.native == nil {
			return nil, ErrNativeUnsupported
		}
		balance, err := e.native.BalanceOf(ctx, e.address)
		if err != nil {
			return nil, err
		}
		held = balance
		if err := e.native.Transfer(ctx, call.Sender, e.address, value); err != nil {
			return nil, err
		}
	}

	var legs []Transfer
	move := func(from, to common.Address, p Party) error {
		leg, err := e.transfer(ctx, from, to, p)
		if err != nil {
			return err
		}
		if leg != nil {
			legs = append(legs, *leg)
		}
		return nil
	}

	if !order.Maker.IsNull() {
		if err := move(order.Maker.Wallet, order.Taker.Wallet, order.Maker); err != nil {
			return nil, err
		}
	}
	if !order.Taker.IsNull() {
		from := order.Taker.Wallet
		if order.Taker.IsNative() {
			from = e.address
		}
		if err := move(from, order.Maker.Wallet, order.Taker); err != nil {
			return nil, err
		}
	}
	if !order.Affiliate.IsNull() {
		if err := move(order.Maker.Wallet, order.Affiliate.Wallet, order.Affiliate); err != nil {
			return nil, err
		}
	}

	if held != nil {
		if err := e.sweep(ctx, call.Sender, held); err != nil {
			return nil, err
		}
	}
	return legs, nil
}

// sweep returns anything above the engine's starting native balance to sender
func (e *Engine) sweep(ctx context.Context, sender common.Address, held *big.Int) error {
	balance, err := e.native.BalanceOf(ctx, e.address)
	if err != nil {
		return err
	}
	residual := new(big.Int).Sub(balance, held)
	if residual.Sign() <= 0 {
		return nil
	}
	return e.native.Transfer(ctx, e.address, sender, residual)
}

// transfer moves one leg, dispatching on the token's kind. Zero native
// legs are skipped.
func (e *Engine) transfer(ctx context.Context, from, to common.Address, p Party) (*Transfer, error) {
	amount := p.Amount()
	leg := &Transfer{Token: p.Token, From: from, To: to, Amount: new(big.Int).Set(amount)}

	if p.IsNative() {
		if amount.Sign() == 0 {
			return nil, nil
		}
		if e.native == nil {
			return nil, ErrNativeUnsupported
		}
		leg.Kind = KindNative
		return leg, e.native.Transfer(ctx, from, to, amount)
	}

	a, ok := e.assets.lookup(p.Token)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, p.Token.Hex())
	}
	leg.Kind = a.kind

	switch a.kind {
	case KindFungible:
		return leg, a.fungible.TransferFrom(ctx, e.address, from, to, amount)
	case KindNonFungible:
		return leg, a.nonFungible.TransferFrom(ctx, e.address, from, to, amount)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, p.Token.Hex())
	}
}

// Cancel cancels the caller's open order ids and returns those actually
// canceled. Ids that are not open are skipped.
func (e *Engine) Cancel(ctx context.Context, caller common.Address, ids []*big.Int) ([]*big.Int, error) {
	for _, id := range ids {
		if err := ValidateParam("order id", id); err != nil {
			return nil, err
		}
	}

	var canceled []*big.Int
	err := e.run(ctx, func(ctx context.Context) error {
		canceled = nil
		u := unitOfWorkFrom(ctx)
		for _, id := range ids {
			if !e.ledger.cancel(ctx, caller, id) {
				continue
			}
			id = new(big.Int).Set(bigOrZero(id))
			canceled = append(canceled, id)
			u.emit(CancelEvent{Maker: caller, ID: id})
		}
		return nil
	})
	if err != nil {
		e.log.Warn("cancel failed", zap.String("maker", caller.Hex()), zap.Error(err))
		return nil, err
	}

	e.metrics.Cancellations.Add(float64(len(canceled)))
	e.log.Info("orders canceled",
		zap.String("maker", caller.Hex()),
		zap.Int("requested", len(ids)),
		zap.Int("canceled", len(canceled)),
	)
	return canceled, nil
}

// Authorize lets delegate act for caller until expiry, replacing any prior grant
func (e *Engine) Authorize(ctx context.Context, caller, delegate common.Address, expiry uint64) (Authorization, error) {
	grant := Authorization{Approver: caller, Delegate: delegate, Expiry: expiry}

	err := e.run(ctx, func(ctx context.Context) error {
		if expiry <= e.now() {
			return ErrInvalidExpiry
		}
		e.registry.put(ctx, grant)
		unitOfWorkFrom(ctx).emit(AuthorizationEvent{Approver: caller, Delegate: delegate, Expiry: expiry})
		return nil
	})
	if err != nil {
		e.log.Warn("authorize rejected",
			zap.String("approver", caller.Hex()),
			zap.String("delegate", delegate.Hex()),
			zap.String("code", ErrorCode(err)),
		)
		return Authorization{}, err
	}

	e.metrics.Authorizations.WithLabelValues("authorize").Inc()
	e.log.Info("delegate authorized",
		zap.String("approver", caller.Hex()),
		zap.String("delegate", delegate.Hex()),
		zap.Uint64("expiry", expiry),
	)
	return grant, nil
}

// Revoke removes caller's grant to delegate. Revoking a missing grant is a no-op.
func (e *Engine) Revoke(ctx context.Context, caller, delegate common.Address) error {
	var revoked bool
	err := e.run(ctx, func(ctx context.Context) error {
		revoked = e.registry.remove(ctx, caller, delegate)
		if revoked {
			unitOfWorkFrom(ctx).emit(RevocationEvent{Approver: caller, Delegate: delegate})
		}
		return nil
	})
	if err != nil {
		return err
	}

	if revoked {
		e.metrics.Authorizations.WithLabelValues("revoke").Inc()
		e.log.Info("delegate revoked", zap.String("approver", caller.Hex()), zap.String("delegate", delegate.Hex()))
	}
	return nil
}

func (e *Engine) orderError(order *Order, err error) error {
	if order == nil {
		return err
	}
	var paramErr *InvalidParamError
	if errors.As(err, &paramErr) {
		return err
	}
	return &OrderError{Maker: order.Maker.Wallet, ID: order.ID, Err: err}
}

func (e *Engine) logSettled(entry string, s *Settlement) {
	e.log.Info("order settled",
		zap.String("entry", entry),
		zap.String("maker", s.Order.Maker.Wallet.Hex()),
		zap.String("id", bigOrZero(s.Order.ID).String()),
		zap.String("signer", s.Signer.Hex()),
		zap.String("sender", s.Sender.Hex()),
		zap.Int("legs", len(s.Legs)),
	)
}

func (e *Engine) logRejected(entry string, call Call, err error) {
	e.log.Warn("settlement rejected",
		zap.String("entry", entry),
		zap.String("sender", call.Sender.Hex()),
		zap.String("code", ErrorCode(err)),
		zap.Error(err),
	)
}

// signatureError maps recovery failures onto the engine's signature errors
func signatureError(err error) error {
	if errors.Is(err, ErrInvalidSignatureVersion) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrInvalidMakerSignature, err)
}
