package safe

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the size of one packed r||s||v owner signature.
const SignatureLength = crypto.SignatureLength

var (
	// ErrSignature is matched by every signature normalization failure.
	ErrSignature = errors.New("invalid signature")

	// ErrHashMismatch is returned when the contract reports a transaction
	// hash that differs from the locally computed one.
	ErrHashMismatch = errors.New("safe transaction hash mismatch")
)

// SignatureError reports an eth_sign signature whose recovery byte is not
// 27 or 28.
type SignatureError struct {
	V byte
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("unexpected signature v 0x%02x", e.V)
}

func (e *SignatureError) Is(target error) bool {
	return target == ErrSignature
}

// SignHash signs hash with the eth_sign message prefix and returns the
// signature in the form the Safe accepts for prefixed owner signatures.
func SignHash(key *ecdsa.PrivateKey, hash common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(hash.Bytes()), key)
	if err != nil {
		return nil, fmt.Errorf("sign safe transaction: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return NormalizeSignature(sig)
}

// NormalizeSignature shifts the recovery byte of an eth_sign signature
// from 27/28 to 31/32, marking it as prefixed for the Safe.
func NormalizeSignature(sig []byte) ([]byte, error) {
	if len(sig) != SignatureLength {
		return nil, fmt.Errorf("%w: length %d", ErrSignature, len(sig))
	}
	out := make([]byte, len(sig))
	copy(out, sig)

	switch v := out[crypto.RecoveryIDOffset]; v {
	case 0x1b:
		out[crypto.RecoveryIDOffset] = 0x1f
	case 0x1c:
		out[crypto.RecoveryIDOffset] = 0x20
	default:
		return nil, &SignatureError{V: v}
	}
	return out, nil
}

// RecoverSigner returns the owner address that produced a normalized
// signature over hash.
func RecoverSigner(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrSignature, len(sig))
	}
	raw := make([]byte, len(sig))
	copy(raw, sig)

	v := raw[crypto.RecoveryIDOffset]
	if v != 0x1f && v != 0x20 {
		return common.Address{}, &SignatureError{V: v}
	}
	raw[crypto.RecoveryIDOffset] = v - 31

	pub, err := crypto.SigToPub(accounts.TextHash(hash.Bytes()), raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
