package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// EIP712 Domain defaults
const (
	EIP712DomainName    = "SWAP"
	EIP712DomainVersion = "2"
)

const (
	partyType = "Party(address wallet,address token,uint256 param)"
	orderType = "Order(uint256 id,uint256 expiry,address signer,Party maker,Party taker,Party affiliate)"
)

// Pre-computed type hashes using keccak256
var (
	// EIP712Domain(string name,string version,address verifyingContract)
	EIP712DomainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,address verifyingContract)",
	))

	// Party(address wallet,address token,uint256 param)
	PartyTypeHash = crypto.Keccak256Hash([]byte(partyType))

	// Referenced struct types are appended after the primary type
	OrderTypeHash = crypto.Keccak256Hash([]byte(orderType + partyType))
)

var (
	bytes32Type, _ = abi.NewType("bytes32", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)
	addressType, _ = abi.NewType("address", "", nil)
)

// EIP712Domain represents the EIP712 domain separator data
type EIP712Domain struct {
	Name              string
	Version           string
	VerifyingContract common.Address
}

// NewEIP712Domain creates a new EIP712Domain with the standard values
func NewEIP712Domain(verifyingContract common.Address) *EIP712Domain {
	return &EIP712Domain{
		Name:              EIP712DomainName,
		Version:           EIP712DomainVersion,
		VerifyingContract: verifyingContract,
	}
}

// Hash computes the EIP712 domain separator hash
func (d *EIP712Domain) Hash() common.Hash {
	arguments := abi.Arguments{
		{Type: bytes32Type}, // typeHash
		{Type: bytes32Type}, // nameHash
		{Type: bytes32Type}, // versionHash
		{Type: addressType}, // verifyingContract
	}

	encoded, err := arguments.Pack(
		EIP712DomainTypeHash,
		crypto.Keccak256Hash([]byte(d.Name)),
		crypto.Keccak256Hash([]byte(d.Version)),
		d.VerifyingContract,
	)
	if err != nil {
		panic("failed to encode domain separator: " + err.Error())
	}

	return crypto.Keccak256Hash(encoded)
}

// HashParty computes the struct hash of a party
func HashParty(p Party) common.Hash {
	arguments := abi.Arguments{
		{Type: bytes32Type}, // typeHash
		{Type: addressType}, // wallet
		{Type: addressType}, // token
		{Type: uint256Type}, // param
	}

	encoded, err := arguments.Pack(PartyTypeHash, p.Wallet, p.Token, p.Amount())
	if err != nil {
		panic("failed to encode party struct: " + err.Error())
	}

	return crypto.Keccak256Hash(encoded)
}

// HashOrder computes the struct hash for the order. Nested parties are
// encoded as their own struct hashes.
func HashOrder(o *Order) common.Hash {
	arguments := abi.Arguments{
		{Type: bytes32Type}, // typeHash
		{Type: uint256Type}, // id
		{Type: uint256Type}, // expiry
		{Type: addressType}, // signer
		{Type: bytes32Type}, // maker
		{Type: bytes32Type}, // taker
		{Type: bytes32Type}, // affiliate
	}

	encoded, err := arguments.Pack(
		OrderTypeHash,
		bigOrZero(o.ID),
		new(big.Int).SetUint64(o.Expiry),
		o.Signer,
		HashParty(o.Maker),
		HashParty(o.Taker),
		HashParty(o.Affiliate),
	)
	if err != nil {
		panic("failed to encode order struct: " + err.Error())
	}

	return crypto.Keccak256Hash(encoded)
}

// CreateOrderSignHash creates the final EIP712 hash to be signed
// keccak256("\x19\x01" ++ domainSeparator ++ structHash)
func CreateOrderSignHash(domain *EIP712Domain, order *Order) common.Hash {
	domainSeparator := domain.Hash()
	structHash := HashOrder(order)

	data := make([]byte, 0, 2+32+32)
	data = append(data, 0x19, 0x01)
	data = append(data, domainSeparator.Bytes()...)
	data = append(data, structHash.Bytes()...)

	return crypto.Keccak256Hash(data)
}

// CreatePersonalSignHash wraps the EIP712 hash in the personal message prefix
// that wallet-level personal_sign applies before signing.
func CreatePersonalSignHash(domain *EIP712Domain, order *Order) common.Hash {
	return common.BytesToHash(accounts.TextHash(CreateOrderSignHash(domain, order).Bytes()))
}

// CreateLegacySignHash hashes the flat legacy field tuple bound to the
// validator address: keccak256(0x19 0x00 ++ validator ++ fields).
func CreateLegacySignHash(validator common.Address, order *LegacyOrder) common.Hash {
	packed := make([]byte, 0, 2+20*5+32*4)
	packed = append(packed, 0x19, 0x00)
	packed = append(packed, validator.Bytes()...)
	packed = append(packed, order.MakerWallet.Bytes()...)
	packed = append(packed, common.LeftPadBytes(bigOrZero(order.MakerParam).Bytes(), 32)...)
	packed = append(packed, order.MakerToken.Bytes()...)
	packed = append(packed, order.TakerWallet.Bytes()...)
	packed = append(packed, common.LeftPadBytes(bigOrZero(order.TakerParam).Bytes(), 32)...)
	packed = append(packed, order.TakerToken.Bytes()...)
	packed = append(packed, common.LeftPadBytes(new(big.Int).SetUint64(order.Expiry).Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(bigOrZero(order.ID).Bytes(), 32)...)

	return crypto.Keccak256Hash(packed)
}

// OrderDigest returns the digest an order signature of the given version
// was produced over.
func OrderDigest(domain *EIP712Domain, order *Order, version SignatureVersion) (common.Hash, error) {
	switch version {
	case SignatureVersionTypedData:
		return CreateOrderSignHash(domain, order), nil
	case SignatureVersionPersonalSign:
		return CreatePersonalSignHash(domain, order), nil
	case SignatureVersionIntendedValidator:
		legacy := order.Legacy()
		return CreateLegacySignHash(domain.VerifyingContract, &legacy), nil
	default:
		return common.Hash{}, ErrInvalidSignatureVersion
	}
}
