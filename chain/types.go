package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// NullAddress is the zero address. A NULL wallet marks an absent leg and a
// NULL token marks the native currency.
var NullAddress = common.Address{}

// SignatureVersion selects the digest scheme a signature was produced over
type SignatureVersion byte

const (
	// SignatureVersionIntendedValidator is the legacy flat-field hash
	// (EIP-191 version 0x00, bound to the verifying contract).
	SignatureVersionIntendedValidator SignatureVersion = 0x00
	// SignatureVersionTypedData is an EIP-712 structured data signature.
	SignatureVersionTypedData SignatureVersion = 0x01
	// SignatureVersionPersonalSign is an EIP-712 digest signed through
	// personal_sign / eth_sign, which prefixes the message.
	SignatureVersionPersonalSign SignatureVersion = 0x45
)

func (v SignatureVersion) String() string {
	switch v {
	case SignatureVersionIntendedValidator:
		return "intended-validator"
	case SignatureVersionTypedData:
		return "typed-data"
	case SignatureVersionPersonalSign:
		return "personal-sign"
	default:
		return "unknown"
	}
}

// Party is one side of a value transfer
type Party struct {
	Wallet common.Address `json:"wallet"`
	Token  common.Address `json:"token"`
	Param  *big.Int       `json:"param"`
}

// IsNull reports whether the party produces no transfer leg
func (p Party) IsNull() bool {
	return p.Wallet == NullAddress
}

// IsNative reports whether the party moves the native currency
func (p Party) IsNative() bool {
	return p.Token == NullAddress
}

// Amount returns the party's param, treating nil as zero
func (p Party) Amount() *big.Int {
	return bigOrZero(p.Param)
}

// Order is a signed offer to trade. Orders are never mutated; their status
// is tracked by (Maker.Wallet, ID).
type Order struct {
	ID        *big.Int       `json:"id"`
	Expiry    uint64         `json:"expiry"`
	Signer    common.Address `json:"signer"`
	Maker     Party          `json:"maker"`
	Taker     Party          `json:"taker"`
	Affiliate Party          `json:"affiliate"`
}

// LegacyOrder is the flattened, affiliate-less order accepted by the legacy
// entry point.
type LegacyOrder struct {
	ID          *big.Int       `json:"id"`
	Expiry      uint64         `json:"expiry"`
	MakerWallet common.Address `json:"makerWallet"`
	MakerParam  *big.Int       `json:"makerParam"`
	MakerToken  common.Address `json:"makerToken"`
	TakerWallet common.Address `json:"takerWallet"`
	TakerParam  *big.Int       `json:"takerParam"`
	TakerToken  common.Address `json:"takerToken"`
}

// Legacy flattens an order into the legacy shape. Signer and affiliate are dropped.
func (o *Order) Legacy() LegacyOrder {
	return LegacyOrder{
		ID:          o.ID,
		Expiry:      o.Expiry,
		MakerWallet: o.Maker.Wallet,
		MakerParam:  o.Maker.Param,
		MakerToken:  o.Maker.Token,
		TakerWallet: o.Taker.Wallet,
		TakerParam:  o.Taker.Param,
		TakerToken:  o.Taker.Token,
	}
}

// Order expands a legacy order into the full shape with the maker as signer
// and no affiliate.
func (o *LegacyOrder) Order() Order {
	return Order{
		ID:     o.ID,
		Expiry: o.Expiry,
		Signer: o.MakerWallet,
		Maker:  Party{Wallet: o.MakerWallet, Token: o.MakerToken, Param: o.MakerParam},
		Taker:  Party{Wallet: o.TakerWallet, Token: o.TakerToken, Param: o.TakerParam},
	}
}

// Signature is an ECDSA signature over an order digest
type Signature struct {
	Signer  common.Address   `json:"signer"`
	V       uint8            `json:"v"`
	R       common.Hash      `json:"r"`
	S       common.Hash      `json:"s"`
	Version SignatureVersion `json:"version"`
}

// SignedOrder represents an order with its signature
type SignedOrder struct {
	Order     *Order
	Signature Signature
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// InterfaceIDERC721 is the ERC-165 identifier of the ERC-721 interface.
var InterfaceIDERC721 = [4]byte{0x80, 0xac, 0x58, 0xcd}

// ERC20 ABI JSON for the read calls used by the asset reader
const erc20ABIJSON = `[
	{
		"constant": true,
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "spender", "type": "address"}
		],
		"name": "allowance",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [
			{"name": "account", "type": "address"}
		],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	}
]`

// ERC721 ABI JSON for ownership and approval reads, including ERC-165
const erc721ABIJSON = `[
	{
		"constant": true,
		"inputs": [
			{"name": "tokenId", "type": "uint256"}
		],
		"name": "ownerOf",
		"outputs": [{"name": "", "type": "address"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [
			{"name": "tokenId", "type": "uint256"}
		],
		"name": "getApproved",
		"outputs": [{"name": "", "type": "address"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "operator", "type": "address"}
		],
		"name": "isApprovedForAll",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [
			{"name": "interfaceId", "type": "bytes4"}
		],
		"name": "supportsInterface",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	}
]`

// GetERC20ABI returns the parsed ERC20 ABI
func GetERC20ABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic("failed to parse ERC20 ABI: " + err.Error())
	}
	return parsed
}

// GetERC721ABI returns the parsed ERC721 ABI
func GetERC721ABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc721ABIJSON))
	if err != nil {
		panic("failed to parse ERC721 ABI: " + err.Error())
	}
	return parsed
}
