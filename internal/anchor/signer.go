package anchor

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// MessagePrefix is prepended to every commitment hash before signing.
// It namespaces AgriNova signatures so a signature over a ledger commitment
// can never be replayed as a signature over arbitrary data.
const MessagePrefix = "AgriNova Transaction"

// ErrSigningUnavailable is returned by Sign when no private key is
// configured. This is not a failure: the ledger degrades to simulated mode
// and records entries with verified=false.
var ErrSigningUnavailable = errors.New("signing key not configured")

// Signer holds the anchoring key material. A Signer without a key is valid
// and reports Available() == false.
type Signer struct {
	key *ecdsa.PrivateKey
}

// NewSigner builds a signer from a hex-encoded P-256 private scalar.
// An empty key string yields a signer in simulated mode.
func NewSigner(hexKey string) (*Signer, error) {
	if hexKey == "" {
		return &Signer{}, nil
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signing key encoding: %w", err)
	}

	curve := elliptic.P256()
	d := new(big.Int).SetBytes(raw)
	if d.Sign() == 0 || d.Cmp(curve.Params().N) >= 0 {
		return nil, fmt.Errorf("signing key is out of range for P-256")
	}

	priv := &ecdsa.PrivateKey{D: d}
	priv.PublicKey.Curve = curve
	priv.PublicKey.X, priv.PublicKey.Y = curve.ScalarBaseMult(raw)

	return &Signer{key: priv}, nil
}

// Available reports whether a signing key is configured
func (s *Signer) Available() bool {
	return s.key != nil
}

// PublicKey returns the anchoring public key, or nil in simulated mode
func (s *Signer) PublicKey() *ecdsa.PublicKey {
	if s.key == nil {
		return nil
	}
	return &s.key.PublicKey
}

// Address returns the EIP-55 checksummed anchor address derived from the
// signing key, or the empty string in simulated mode.
func (s *Signer) Address() string {
	if s.key == nil {
		return ""
	}
	addr, err := AddressFromPublicKey(&s.key.PublicKey)
	if err != nil {
		return ""
	}
	return addr
}

// Sign produces an ASN.1 DER signature (hex, 0x-prefixed) over the prefixed
// commitment hash. Returns ErrSigningUnavailable in simulated mode.
func (s *Signer) Sign(hash string) (string, error) {
	if s.key == nil {
		return "", ErrSigningUnavailable
	}

	sig, err := ecdsa.SignASN1(rand.Reader, s.key, signingDigest(hash))
	if err != nil {
		return "", fmt.Errorf("failed to sign commitment: %w", err)
	}

	return HashPrefix + hex.EncodeToString(sig), nil
}

// Verify checks a signature against a commitment hash and a public key.
// A well-formed but non-matching signature yields false, never an error.
func Verify(hash, signature string, pub *ecdsa.PublicKey) bool {
	if pub == nil || signature == "" {
		return false
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(signature, HashPrefix))
	if err != nil {
		return false
	}

	return ecdsa.VerifyASN1(pub, signingDigest(hash), sig)
}

// signingDigest hashes the prefixed message the way both Sign and Verify
// expect it: SHA-256 over "<prefix>: <hash>".
func signingDigest(hash string) []byte {
	sum := sha256.Sum256([]byte(MessagePrefix + ": " + hash))
	return sum[:]
}
