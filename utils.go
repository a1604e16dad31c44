package swap

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ValidateParam checks that a party param fits in an unsigned 256-bit word
func ValidateParam(name string, v *big.Int) error {
	if v == nil {
		return nil
	}
	if v.Sign() < 0 {
		return &InvalidParamError{Message: fmt.Sprintf("%s must not be negative, got: %s", name, v.String())}
	}
	if v.Cmp(maxUint256) > 0 {
		return &InvalidParamError{Message: fmt.Sprintf("%s too large for uint256: %s", name, v.String())}
	}
	return nil
}

// ParseParam parses a decimal or 0x-prefixed hex amount or token id
func ParseParam(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, &InvalidParamError{Message: "empty numeric value"}
	}
	v, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, &InvalidParamError{Message: fmt.Sprintf("invalid numeric value: %q", s)}
	}
	if err := ValidateParam("value", v); err != nil {
		return nil, err
	}
	return v, nil
}

// ParseAddress parses a hex address, rejecting malformed input
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, &InvalidParamError{Message: fmt.Sprintf("invalid address: %q", s)}
	}
	return common.HexToAddress(s), nil
}

func validateOrderParams(order *Order) error {
	if order == nil {
		return &InvalidParamError{Message: "order is required"}
	}
	if err := ValidateParam("order id", order.ID); err != nil {
		return err
	}
	if err := ValidateParam("maker param", order.Maker.Param); err != nil {
		return err
	}
	if err := ValidateParam("taker param", order.Taker.Param); err != nil {
		return err
	}
	return ValidateParam("affiliate param", order.Affiliate.Param)
}
