package anchor

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Anchor addresses follow the EVM convention: 0x plus 40 hex characters,
// derived from the Keccak-256 hash of the uncompressed public key.

var addressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

var (
	ErrMissingAddress  = errors.New("address is required")
	ErrInvalidAddress  = errors.New("invalid address format")
	ErrInvalidChecksum = errors.New("address checksum mismatch")
)

// GenerateAddress creates a fresh keypair and returns the checksummed
// address with the hex-encoded private scalar. Assigned to every account at
// registration.
func GenerateAddress() (address string, privateKeyHex string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate keypair: %w", err)
	}

	address, err = AddressFromPublicKey(&key.PublicKey)
	if err != nil {
		return "", "", err
	}

	return address, hex.EncodeToString(key.D.Bytes()), nil
}

// AddressFromPublicKey derives the anchor address for a public key:
// the last 20 bytes of Keccak-256 over the uncompressed point, checksummed.
func AddressFromPublicKey(pub *ecdsa.PublicKey) (string, error) {
	if pub == nil {
		return "", errors.New("public key is required")
	}

	ecdhPub, err := pub.ECDH()
	if err != nil {
		return "", fmt.Errorf("unsupported public key: %w", err)
	}

	// Bytes() yields the uncompressed point 0x04 || X || Y; the hash covers
	// only the coordinates.
	hash := keccak256(ecdhPub.Bytes()[1:])
	return ToChecksumAddress("0x" + hex.EncodeToString(hash[len(hash)-20:])), nil
}

// ValidateAddress validates an anchor address and returns the EIP-55
// checksummed version. Returns an error if the address is invalid.
func ValidateAddress(address string) (string, error) {
	if address == "" {
		return "", ErrMissingAddress
	}

	if !addressRegex.MatchString(address) {
		return "", ErrInvalidAddress
	}

	checksummed := ToChecksumAddress(address)

	// If the input carried a checksum, it has to be the right one
	if isChecksummed(address) && address != checksummed {
		return "", ErrInvalidChecksum
	}

	return checksummed, nil
}

// ToChecksumAddress converts an address to EIP-55 checksummed format.
// https://eips.ethereum.org/EIPS/eip-55
func ToChecksumAddress(address string) string {
	addr := strings.ToLower(strings.TrimPrefix(address, "0x"))
	hash := keccak256([]byte(addr))

	var result strings.Builder
	result.WriteString("0x")

	for i, c := range addr {
		if c >= '0' && c <= '9' {
			result.WriteRune(c)
			continue
		}

		hashByte := hash[i/2]
		var nibble byte
		if i%2 == 0 {
			nibble = hashByte >> 4
		} else {
			nibble = hashByte & 0x0F
		}

		if nibble >= 8 {
			result.WriteRune(c - 32) // uppercase
		} else {
			result.WriteRune(c)
		}
	}

	return result.String()
}

// AddressesEqual compares two anchor addresses case-insensitively
func AddressesEqual(a, b string) bool {
	return strings.EqualFold(
		strings.TrimPrefix(a, "0x"),
		strings.TrimPrefix(b, "0x"),
	)
}

// isChecksummed checks if an address appears to carry a checksum (mixed case)
func isChecksummed(address string) bool {
	addr := strings.TrimPrefix(address, "0x")
	hasUpper := false
	hasLower := false

	for _, c := range addr {
		if c >= 'A' && c <= 'F' {
			hasUpper = true
		}
		if c >= 'a' && c <= 'f' {
			hasLower = true
		}
	}

	return hasUpper && hasLower
}

// keccak256 computes the Keccak-256 hash
func keccak256(data []byte) []byte {
	hash := sha3.NewLegacyKeccak256()
	hash.Write(data)
	return hash.Sum(nil)
}
