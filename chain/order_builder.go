package chain

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultOrderTTL is the lifetime given to orders built without an expiry
const DefaultOrderTTL = time.Minute

var maxOrderID = new(big.Int).Lsh(big.NewInt(1), 64)

// OrderData represents the data for building an order
type OrderData struct {
	ID        *big.Int
	Expiry    uint64
	Signer    common.Address
	Maker     Party
	Taker     Party
	Affiliate Party
}

// OrderBuilder builds and signs orders
type OrderBuilder struct {
	domain  *EIP712Domain
	signer  *ecdsa.PrivateKey
	address common.Address
	ttl     time.Duration
	now     func() time.Time
}

// NewOrderBuilder creates a new OrderBuilder signing for the given verifying contract
func NewOrderBuilder(domain *EIP712Domain, signer *ecdsa.PrivateKey) (*OrderBuilder, error) {
	if domain == nil {
		return nil, fmt.Errorf("domain is required")
	}
	if signer == nil {
		return nil, fmt.Errorf("signer key is required")
	}
	return &OrderBuilder{
		domain:  domain,
		signer:  signer,
		address: crypto.PubkeyToAddress(signer.PublicKey),
		ttl:     DefaultOrderTTL,
		now:     time.Now,
	}, nil
}

// WithTTL sets the lifetime of orders built without an explicit expiry
func (ob *OrderBuilder) WithTTL(ttl time.Duration) *OrderBuilder {
	ob.ttl = ttl
	return ob
}

// Address returns the address of the signing key
func (ob *OrderBuilder) Address() common.Address {
	return ob.address
}

// BuildOrder builds an order from OrderData
func (ob *OrderBuilder) BuildOrder(data *OrderData) (*Order, error) {
	if err := ob.validateInputs(data); err != nil {
		return nil, err
	}

	id := data.ID
	if id == nil {
		generated, err := ob.generateID()
		if err != nil {
			return nil, err
		}
		id = generated
	}

	expiry := data.Expiry
	if expiry == 0 {
		expiry = uint64(ob.now().Add(ob.ttl).Unix())
	}

	maker := normalizeParty(data.Maker)
	if maker.IsNull() {
		maker.Wallet = ob.address
	}

	signer := data.Signer
	if signer == NullAddress {
		signer = ob.address
	}

	return &Order{
		ID:        new(big.Int).Set(id),
		Expiry:    expiry,
		Signer:    signer,
		Maker:     maker,
		Taker:     normalizeParty(data.Taker),
		Affiliate: normalizeParty(data.Affiliate),
	}, nil
}

// BuildSignedOrder builds and signs an order
func (ob *OrderBuilder) BuildSignedOrder(data *OrderData, version SignatureVersion) (*SignedOrder, error) {
	order, err := ob.BuildOrder(data)
	if err != nil {
		return nil, err
	}

	signature, err := ob.SignOrder(order, version)
	if err != nil {
		return nil, err
	}

	return &SignedOrder{
		Order:     order,
		Signature: signature,
	}, nil
}

// SignOrder signs an order using the digest scheme selected by version
func (ob *OrderBuilder) SignOrder(order *Order, version SignatureVersion) (Signature, error) {
	digest, err := OrderDigest(ob.domain, order, version)
	if err != nil {
		return Signature{}, err
	}

	sig, err := signDigest(digest, ob.sign)
	if err != nil {
		return Signature{}, fmt.Errorf("failed to sign order: %w", err)
	}
	sig.Signer = ob.address
	sig.Version = version

	return sig, nil
}

// SignLegacyOrder signs a flattened order for the legacy entry point
func (ob *OrderBuilder) SignLegacyOrder(order *LegacyOrder) (Signature, error) {
	sig, err := signDigest(CreateLegacySignHash(ob.domain.VerifyingContract, order), ob.sign)
	if err != nil {
		return Signature{}, fmt.Errorf("failed to sign legacy order: %w", err)
	}
	sig.Signer = ob.address
	sig.Version = SignatureVersionIntendedValidator

	return sig, nil
}

func (ob *OrderBuilder) sign(digest []byte) ([]byte, error) {
	return crypto.Sign(digest, ob.signer)
}

func (ob *OrderBuilder) validateInputs(data *OrderData) error {
	if data == nil {
		return fmt.Errorf("order data is required")
	}
	if data.Taker.IsNull() {
		return fmt.Errorf("taker wallet is required")
	}
	for name, p := range map[string]Party{"maker": data.Maker, "taker": data.Taker, "affiliate": data.Affiliate} {
		if p.Param != nil && p.Param.Sign() < 0 {
			return fmt.Errorf("%s param must not be negative", name)
		}
	}
	if data.ID != nil && data.ID.Sign() < 0 {
		return fmt.Errorf("order id must not be negative")
	}
	return nil
}

func (ob *OrderBuilder) generateID() (*big.Int, error) {
	id, err := rand.Int(rand.Reader, maxOrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate order id: %w", err)
	}
	return id, nil
}

func normalizeParty(p Party) Party {
	return Party{
		Wallet: p.Wallet,
		Token:  p.Token,
		Param:  new(big.Int).Set(p.Amount()),
	}
}
