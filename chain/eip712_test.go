package chain

import (
	"crypto/ecdsa"
	"math/big"
	"strconv"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testContract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	testAST      = common.HexToAddress("0x00000000000000000000000000000000000a5701")
	testDAI      = common.HexToAddress("0x00000000000000000000000000000000000da101")
)

func testKey(t *testing.T, hexKey string) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.HexToECDSA(hexKey)
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func sampleOrder(maker, taker common.Address) *Order {
	return &Order{
		ID:     big.NewInt(12345),
		Expiry: 1900000000,
		Signer: maker,
		Maker:  Party{Wallet: maker, Token: testAST, Param: big.NewInt(200)},
		Taker:  Party{Wallet: taker, Token: testDAI, Param: big.NewInt(50)},
		Affiliate: Party{
			Param: big.NewInt(0),
		},
	}
}

func typedDataFor(domain *EIP712Domain, o *Order) apitypes.TypedData {
	party := func(p Party) map[string]interface{} {
		return map[string]interface{}{
			"wallet": p.Wallet.Hex(),
			"token":  p.Token.Hex(),
			"param":  p.Amount().String(),
		}
	}
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Order": {
				{Name: "id", Type: "uint256"},
				{Name: "expiry", Type: "uint256"},
				{Name: "signer", Type: "address"},
				{Name: "maker", Type: "Party"},
				{Name: "taker", Type: "Party"},
				{Name: "affiliate", Type: "Party"},
			},
			"Party": {
				{Name: "wallet", Type: "address"},
				{Name: "token", Type: "address"},
				{Name: "param", Type: "uint256"},
			},
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"id":        o.ID.String(),
			"expiry":    strconv.FormatUint(o.Expiry, 10),
			"signer":    o.Signer.Hex(),
			"maker":     party(o.Maker),
			"taker":     party(o.Taker),
			"affiliate": party(o.Affiliate),
		},
	}
}

func TestEIP712MatchesTypedDataEncoder(t *testing.T) {
	_, alice := testKey(t, "4934d4ff925f39f91e3729fbce52ef12f25fdf93e014e291350f7d314c1a096b")
	bob := common.HexToAddress("0x9d2fB0BCC90C6F3Fa3a98D2C760623a4F6Ee59b4")
	domain := NewEIP712Domain(testContract)
	order := sampleOrder(alice, bob)
	order.Affiliate = Party{Wallet: bob, Token: testAST, Param: big.NewInt(7)}

	td := typedDataFor(domain, order)

	encodedType := td.EncodeType("Order")
	assert.Equal(t, orderType+partyType, string(encodedType))

	domainHash, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	require.NoError(t, err)
	assert.Equal(t, common.BytesToHash(domainHash), domain.Hash())

	orderHash, err := td.HashStruct("Order", td.Message)
	require.NoError(t, err)
	assert.Equal(t, common.BytesToHash(orderHash), HashOrder(order))
}

func TestRecoverSignerAllVersions(t *testing.T) {
	key, maker := testKey(t, "4934d4ff925f39f91e3729fbce52ef12f25fdf93e014e291350f7d314c1a096b")
	taker := common.HexToAddress("0x00000000000000000000000000000000000b0b00")
	domain := NewEIP712Domain(testContract)
	builder, err := NewOrderBuilder(domain, key)
	require.NoError(t, err)

	order := sampleOrder(maker, taker)

	versions := []SignatureVersion{
		SignatureVersionTypedData,
		SignatureVersionPersonalSign,
		SignatureVersionIntendedValidator,
	}
	for _, version := range versions {
		t.Run(version.String(), func(t *testing.T) {
			sig, err := builder.SignOrder(order, version)
			require.NoError(t, err)
			assert.Equal(t, version, sig.Version)
			assert.Contains(t, []uint8{27, 28}, sig.V)

			recovered, err := RecoverSigner(domain, order, sig)
			require.NoError(t, err)
			assert.Equal(t, maker, recovered)
		})
	}
}

func TestSchemesProduceDistinctDigests(t *testing.T) {
	_, maker := testKey(t, "4934d4ff925f39f91e3729fbce52ef12f25fdf93e014e291350f7d314c1a096b")
	domain := NewEIP712Domain(testContract)
	order := sampleOrder(maker, common.HexToAddress("0x01"))

	typed, err := OrderDigest(domain, order, SignatureVersionTypedData)
	require.NoError(t, err)
	personal, err := OrderDigest(domain, order, SignatureVersionPersonalSign)
	require.NoError(t, err)
	legacy, err := OrderDigest(domain, order, SignatureVersionIntendedValidator)
	require.NoError(t, err)

	assert.NotEqual(t, typed, personal)
	assert.NotEqual(t, typed, legacy)
	assert.NotEqual(t, personal, legacy)
}

func TestRecoverSignerRejectsUnknownVersion(t *testing.T) {
	key, maker := testKey(t, "4934d4ff925f39f91e3729fbce52ef12f25fdf93e014e291350f7d314c1a096b")
	domain := NewEIP712Domain(testContract)
	builder, err := NewOrderBuilder(domain, key)
	require.NoError(t, err)

	order := sampleOrder(maker, common.HexToAddress("0x01"))
	sig, err := builder.SignOrder(order, SignatureVersionTypedData)
	require.NoError(t, err)

	sig.Version = 0x02
	_, err = RecoverSigner(domain, order, sig)
	assert.ErrorIs(t, err, ErrInvalidSignatureVersion)

	_, err = builder.SignOrder(order, 0x7f)
	assert.ErrorIs(t, err, ErrInvalidSignatureVersion)
}

func TestRecoverSignerDetectsTampering(t *testing.T) {
	key, maker := testKey(t, "4934d4ff925f39f91e3729fbce52ef12f25fdf93e014e291350f7d314c1a096b")
	domain := NewEIP712Domain(testContract)
	builder, err := NewOrderBuilder(domain, key)
	require.NoError(t, err)

	order := sampleOrder(maker, common.HexToAddress("0x01"))
	sig, err := builder.SignOrder(order, SignatureVersionTypedData)
	require.NoError(t, err)

	tampered := *order
	tampered.Maker.Param = big.NewInt(201)
	recovered, err := RecoverSigner(domain, &tampered, sig)
	require.NoError(t, err)
	assert.NotEqual(t, maker, recovered)

	otherDomain := NewEIP712Domain(common.HexToAddress("0x02"))
	recovered, err = RecoverSigner(otherDomain, order, sig)
	require.NoError(t, err)
	assert.NotEqual(t, maker, recovered)
}

func TestRecoverSignerNormalisesV(t *testing.T) {
	key, maker := testKey(t, "4934d4ff925f39f91e3729fbce52ef12f25fdf93e014e291350f7d314c1a096b")
	domain := NewEIP712Domain(testContract)
	builder, err := NewOrderBuilder(domain, key)
	require.NoError(t, err)

	order := sampleOrder(maker, common.HexToAddress("0x01"))
	sig, err := builder.SignOrder(order, SignatureVersionTypedData)
	require.NoError(t, err)

	sig.V -= 27
	recovered, err := RecoverSigner(domain, order, sig)
	require.NoError(t, err)
	assert.Equal(t, maker, recovered)

	sig.V = 30
	_, err = RecoverSigner(domain, order, sig)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestRecoverSignerRejectsEmptySignature(t *testing.T) {
	domain := NewEIP712Domain(testContract)
	order := sampleOrder(common.HexToAddress("0x01"), common.HexToAddress("0x02"))

	_, err := RecoverSigner(domain, order, Signature{V: 27, Version: SignatureVersionTypedData})
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestRecoverLegacySigner(t *testing.T) {
	key, maker := testKey(t, "4934d4ff925f39f91e3729fbce52ef12f25fdf93e014e291350f7d314c1a096b")
	domain := NewEIP712Domain(testContract)
	builder, err := NewOrderBuilder(domain, key)
	require.NoError(t, err)

	legacy := sampleOrder(maker, common.HexToAddress("0x01")).Legacy()
	sig, err := builder.SignLegacyOrder(&legacy)
	require.NoError(t, err)

	recovered, err := RecoverLegacySigner(testContract, &legacy, sig)
	require.NoError(t, err)
	assert.Equal(t, maker, recovered)

	sig.Version = SignatureVersionTypedData
	_, err = RecoverLegacySigner(testContract, &legacy, sig)
	assert.ErrorIs(t, err, ErrInvalidSignatureVersion)
}

func TestLegacyRoundTrip(t *testing.T) {
	order := sampleOrder(common.HexToAddress("0x01"), common.HexToAddress("0x02"))
	legacy := order.Legacy()
	expanded := legacy.Order()

	assert.Equal(t, order.ID, expanded.ID)
	assert.Equal(t, order.Expiry, expanded.Expiry)
	assert.Equal(t, order.Maker, expanded.Maker)
	assert.Equal(t, order.Taker, expanded.Taker)
	assert.True(t, expanded.Affiliate.IsNull())
	assert.Equal(t, order.Maker.Wallet, expanded.Signer)
}
