package chain

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signature and transfer errors shared with the settlement engine
var (
	ErrInvalidSignature        = errors.New("invalid signature")
	ErrInvalidSignatureVersion = errors.New("invalid signature version")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrInsufficientAllowance   = errors.New("insufficient allowance")
)

// RecoverSigner recovers the address that produced sig over order within the
// given domain. The digest is selected by sig.Version.
func RecoverSigner(domain *EIP712Domain, order *Order, sig Signature) (common.Address, error) {
	digest, err := OrderDigest(domain, order, sig.Version)
	if err != nil {
		return common.Address{}, err
	}
	return recoverAddress(digest, sig)
}

// RecoverLegacySigner recovers the signer of a legacy order. Only the
// intended-validator version is accepted.
func RecoverLegacySigner(validator common.Address, order *LegacyOrder, sig Signature) (common.Address, error) {
	if sig.Version != SignatureVersionIntendedValidator {
		return common.Address{}, ErrInvalidSignatureVersion
	}
	return recoverAddress(CreateLegacySignHash(validator, order), sig)
}

func recoverAddress(digest common.Hash, sig Signature) (common.Address, error) {
	v := sig.V
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return common.Address{}, ErrInvalidSignature
	}

	raw := make([]byte, crypto.SignatureLength)
	copy(raw[:32], sig.R.Bytes())
	copy(raw[32:64], sig.S.Bytes())
	raw[64] = v

	pub, err := crypto.SigToPub(digest.Bytes(), raw)
	if err != nil {
		return common.Address{}, ErrInvalidSignature
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// signDigest produces a signature with v in {27, 28}
func signDigest(digest common.Hash, sign func([]byte) ([]byte, error)) (Signature, error) {
	raw, err := sign(digest.Bytes())
	if err != nil {
		return Signature{}, err
	}
	var sig Signature
	copy(sig.R[:], raw[:32])
	copy(sig.S[:], raw[32:64])
	sig.V = raw[64] + 27
	return sig, nil
}
