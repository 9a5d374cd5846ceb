package crypto

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer manages a secp256k1 key pair for signing order ids.
// Signatures use the personal-message scheme: the 32-byte order id is
// prefixed with "\x19Ethereum Signed Message:\n32" and keccak-hashed
// before signing, which is what the settlement contract recovers against.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// GenerateKey creates a new random secp256k1 key pair
func GenerateKey() (*Signer, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return fromKey(privateKey), nil
}

// FromPrivateKeyHex creates a Signer from a hex-encoded private key
// Format: "1234..." (64 hex chars, no 0x prefix)
func FromPrivateKeyHex(hexKey string) (*Signer, error) {
	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return fromKey(privateKey), nil
}

func fromKey(privateKey *ecdsa.PrivateKey) *Signer {
	return &Signer{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}
}

// Address returns the Ethereum address derived from the public key
func (s *Signer) Address() common.Address {
	return s.address
}

// PrivateKeyHex returns the private key as hex string (WITHOUT 0x prefix)
// WARNING: Keep this secret! Never expose to users or logs
func (s *Signer) PrivateKeyHex() string {
	return fmt.Sprintf("%x", crypto.FromECDSA(s.privateKey))
}

// ECDSA exposes the raw key for transaction signing.
func (s *Signer) ECDSA() *ecdsa.PrivateKey {
	return s.privateKey
}

// SignOrderID signs an order id under the personal-message scheme.
// Returns a 65-byte [R || S || V] signature with V in {27, 28}.
func (s *Signer) SignOrderID(orderID common.Hash) ([]byte, error) {
	signature, err := crypto.Sign(PersonalHash(orderID).Bytes(), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign order id: %w", err)
	}
	signature[64] += 27
	return signature, nil
}

// PersonalHash prefixes a 32-byte hash with the Ethereum signed-message
// header and keccak-hashes the result.
func PersonalHash(hash common.Hash) common.Hash {
	return crypto.Keccak256Hash(
		[]byte("\x19Ethereum Signed Message:\n32"),
		hash.Bytes(),
	)
}

// RecoverOrderSigner recovers the address that signed an order id.
// Accepts both V in {0, 1} and the Ethereum-style {27, 28}.
func RecoverOrderSigner(orderID common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(signature))
	}
	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	publicKeyBytes, err := crypto.Ecrecover(PersonalHash(orderID).Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	publicKey, err := crypto.UnmarshalPubkey(publicKeyBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to unmarshal public key: %w", err)
	}
	return crypto.PubkeyToAddress(*publicKey), nil
}
