package swap

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kaifufi/p2p-swap-go/chain"
)

type (
	Order            = chain.Order
	Party            = chain.Party
	LegacyOrder      = chain.LegacyOrder
	Signature        = chain.Signature
	SignatureVersion = chain.SignatureVersion
)

const (
	SignatureVersionIntendedValidator = chain.SignatureVersionIntendedValidator
	SignatureVersionTypedData         = chain.SignatureVersionTypedData
	SignatureVersionPersonalSign      = chain.SignatureVersionPersonalSign
)

// NullAddress marks an absent wallet or the native token
var NullAddress = chain.NullAddress

// Status represents the lifecycle state of an order id
type Status int

const (
	StatusOpen Status = iota
	StatusFilled
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusFilled:
		return "filled"
	case StatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// ParseStatus is the inverse of Status.String
func ParseStatus(s string) (Status, error) {
	switch s {
	case "open":
		return StatusOpen, nil
	case "filled":
		return StatusFilled, nil
	case "canceled":
		return StatusCanceled, nil
	}
	return 0, &InvalidParamError{Message: "unknown order status: " + s}
}

// Authorization is a time-boxed grant from an approver to a delegate
type Authorization struct {
	Approver common.Address `json:"approver"`
	Delegate common.Address `json:"delegate"`
	Expiry   uint64         `json:"expiry"`
}

// Call identifies the caller of an entry point and the native value attached to it
type Call struct {
	Sender common.Address
	Value  *big.Int
}

// Settlement describes a filled order
type Settlement struct {
	Order  Order          `json:"order"`
	Signer common.Address `json:"signer"`
	Sender common.Address `json:"sender"`
	Legs   []Transfer     `json:"legs"`
}

// Transfer is one executed leg of a settlement
type Transfer struct {
	Kind   Kind           `json:"kind"`
	Token  common.Address `json:"token"`
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
