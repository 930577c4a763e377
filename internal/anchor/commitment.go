package anchor

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// HashPrefix marks the commitment scheme on every stored digest.
	HashPrefix = "0x"

	// nonceSize is the number of random bytes mixed into every commitment.
	nonceSize = 16

	// timestampLayout is ISO-8601 with millisecond precision, always UTC.
	// It is part of the commitment contract: changing it would invalidate
	// every historical hash.
	timestampLayout = "2006-01-02T15:04:05.000Z"
)

// Commitment binds a transaction's fields to a content-derived digest.
// The nonce is stored alongside the entry so the digest can be recomputed
// during verification.
type Commitment struct {
	Hash  string
	Nonce string
}

// commitmentPayload is the canonical serialization of a commitment.
// Field order is fixed forever; json.Marshal emits struct fields in
// declaration order, which makes the encoding reproducible.
type commitmentPayload struct {
	AccountID string `json:"accountId"`
	Amount    int64  `json:"amount"`
	Kind      string `json:"kind"`
	Timestamp string `json:"timestamp"`
	Nonce     string `json:"nonce"`
}

// Commit computes a fresh commitment over the normalized transaction fields.
// A new 16-byte random nonce is drawn for every call, so two commitments
// over identical fields never collide.
func Commit(accountID string, amount int64, kind string, ts time.Time) (Commitment, error) {
	nonceBytes := make([]byte, nonceSize)
	if _, err := rand.Read(nonceBytes); err != nil {
		return Commitment{}, fmt.Errorf("failed to generate nonce: %w", err)
	}
	nonce := hex.EncodeToString(nonceBytes)

	hash, err := digest(accountID, amount, kind, ts, nonce)
	if err != nil {
		return Commitment{}, err
	}

	return Commitment{Hash: hash, Nonce: nonce}, nil
}

// Recompute re-derives the commitment hash from stored fields. It must
// reproduce the digest Commit returned for the same inputs; anything else
// means the entry was tampered with.
func Recompute(accountID string, amount int64, kind string, ts time.Time, nonce string) (string, error) {
	if nonce == "" {
		return "", fmt.Errorf("nonce is required to recompute a commitment")
	}
	return digest(accountID, amount, kind, ts, nonce)
}

func digest(accountID string, amount int64, kind string, ts time.Time, nonce string) (string, error) {
	payload := commitmentPayload{
		AccountID: accountID,
		Amount:    amount,
		Kind:      kind,
		Timestamp: ts.UTC().Format(timestampLayout),
		Nonce:     nonce,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to serialize commitment payload: %w", err)
	}

	sum := sha256.Sum256(data)
	return HashPrefix + hex.EncodeToString(sum[:]), nil
}
