package swap

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kaifufi/p2p-swap-go/chain"
)

var (
	// ErrSenderNotAuthorized is returned when the caller is neither the taker nor its delegate
	ErrSenderNotAuthorized = errors.New("sender not authorized")

	// ErrSignerNotAuthorized is returned when the claimed signer holds no grant from the maker
	ErrSignerNotAuthorized = errors.New("signer not authorized")

	// ErrInvalidExpiry is returned when an authorization expiry is not in the future
	ErrInvalidExpiry = errors.New("invalid expiry")

	// ErrInvalidMakerSignature is returned when the recovered signer differs from the claimed one
	ErrInvalidMakerSignature = errors.New("invalid maker signature")

	// ErrInvalidDelegateSignature is returned when the order's signer field differs from the claimed signer
	ErrInvalidDelegateSignature = errors.New("invalid delegate signature")

	ErrOrderExpired         = errors.New("order expired")
	ErrOrderAlreadyFilled   = errors.New("order already filled")
	ErrOrderAlreadyCanceled = errors.New("order already canceled")

	// ErrValueMustBeZero is returned when native value is attached to an order whose taker leg is not native
	ErrValueMustBeZero = errors.New("value must be zero")

	// ErrValueMustBeSent is returned when the attached value differs from a native taker leg
	ErrValueMustBeSent = errors.New("value must be sent")

	// ErrNativeOnBothSides is returned when maker and taker both trade the native currency
	ErrNativeOnBothSides = errors.New("native currency on both sides")

	// ErrUnknownAsset is returned when a leg references a token with no registered capability
	ErrUnknownAsset = errors.New("unknown asset")

	// ErrNativeUnsupported is returned when a native leg is settled by an engine without a native ledger
	ErrNativeUnsupported = errors.New("native currency not supported")
)

// Re-exported from the chain package so callers only import swap.
var (
	ErrInvalidSignature        = chain.ErrInvalidSignature
	ErrInvalidSignatureVersion = chain.ErrInvalidSignatureVersion
	ErrInsufficientBalance     = chain.ErrInsufficientBalance
	ErrInsufficientAllowance   = chain.ErrInsufficientAllowance
)

// InvalidParamError represents an invalid parameter error with context
type InvalidParamError struct {
	Message string
}

func (e *InvalidParamError) Error() string {
	return e.Message
}

// OrderError ties a settlement failure to the order it was raised for
type OrderError struct {
	Maker common.Address
	ID    *big.Int
	Err   error
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("order %s/%s: %v", e.Maker.Hex(), bigOrZero(e.ID).String(), e.Err)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrSenderNotAuthorized, "SENDER_UNAUTHORIZED"},
	{ErrSignerNotAuthorized, "SIGNER_UNAUTHORIZED"},
	{ErrInvalidExpiry, "INVALID_EXPIRY"},
	{ErrInvalidMakerSignature, "INVALID_MAKER_SIGNATURE"},
	{ErrInvalidDelegateSignature, "INVALID_DELEGATE_SIGNATURE"},
	{ErrInvalidSignatureVersion, "INVALID_SIGNATURE_VERSION"},
	{ErrInvalidSignature, "INVALID_SIGNATURE"},
	{ErrOrderExpired, "ORDER_EXPIRED"},
	{ErrOrderAlreadyFilled, "ORDER_TAKEN"},
	{ErrOrderAlreadyCanceled, "ORDER_CANCELED"},
	{ErrValueMustBeZero, "VALUE_MUST_BE_ZERO"},
	{ErrValueMustBeSent, "VALUE_MUST_BE_SENT"},
	{ErrNativeOnBothSides, "NATIVE_ON_BOTH_SIDES"},
	{ErrInsufficientBalance, "INSUFFICIENT_BALANCE"},
	{ErrInsufficientAllowance, "INSUFFICIENT_ALLOWANCE"},
	{ErrUnknownAsset, "UNKNOWN_ASSET"},
	{ErrNativeUnsupported, "NATIVE_UNSUPPORTED"},
}

// ErrorCode maps an error to a stable upper-snake code. nil maps to "OK".
func ErrorCode(err error) string {
	if err == nil {
		return "OK"
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	var paramErr *InvalidParamError
	if errors.As(err, &paramErr) {
		return "INVALID_PARAM"
	}
	return "INTERNAL"
}
