package anchor

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hashFormat = regexp.MustCompile(`^0x[a-f0-9]{64}$`)

func TestCommit_Format(t *testing.T) {
	c, err := Commit("acct-1", 150050, "expense", time.Now())
	require.NoError(t, err)

	assert.Regexp(t, hashFormat, c.Hash)
	assert.Len(t, c.Nonce, nonceSize*2)
}

func TestCommit_FreshNoncePerCall(t *testing.T) {
	ts := time.Now()

	first, err := Commit("acct-1", 100, "income", ts)
	require.NoError(t, err)
	second, err := Commit("acct-1", 100, "income", ts)
	require.NoError(t, err)

	assert.NotEqual(t, first.Nonce, second.Nonce)
	assert.NotEqual(t, first.Hash, second.Hash, "identical fields with fresh nonces must not collide")
}

func TestRecompute_ReproducesCommit(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC)

	c, err := Commit("acct-1", 200000, "income", ts)
	require.NoError(t, err)

	recomputed, err := Recompute("acct-1", 200000, "income", ts, c.Nonce)
	require.NoError(t, err)
	assert.Equal(t, c.Hash, recomputed)
}

func TestRecompute_SensitiveToEveryField(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC)
	const nonce = "00112233445566778899aabbccddeeff"

	base, err := Recompute("acct-1", 200000, "income", ts, nonce)
	require.NoError(t, err)

	tests := []struct {
		name      string
		accountID string
		amount    int64
		kind      string
		ts        time.Time
		nonce     string
	}{
		{name: "account changed", accountID: "acct-2", amount: 200000, kind: "income", ts: ts, nonce: nonce},
		{name: "amount changed", accountID: "acct-1", amount: 200001, kind: "income", ts: ts, nonce: nonce},
		{name: "kind changed", accountID: "acct-1", amount: 200000, kind: "expense", ts: ts, nonce: nonce},
		{name: "timestamp changed", accountID: "acct-1", amount: 200000, kind: "income", ts: ts.Add(time.Millisecond), nonce: nonce},
		{name: "nonce changed", accountID: "acct-1", amount: 200000, kind: "income", ts: ts, nonce: "ff112233445566778899aabbccddeeff"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Recompute(tt.accountID, tt.amount, tt.kind, tt.ts, tt.nonce)
			require.NoError(t, err)
			assert.NotEqual(t, base, got)
		})
	}
}

func TestRecompute_NormalizesToUTCMilliseconds(t *testing.T) {
	const nonce = "00112233445566778899aabbccddeeff"

	loc := time.FixedZone("EAT", 3*60*60)
	local := time.Date(2025, 3, 14, 12, 26, 53, 589_000_000, loc)
	utc := time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC)

	a, err := Recompute("acct-1", 100, "income", local, nonce)
	require.NoError(t, err)
	b, err := Recompute("acct-1", 100, "income", utc, nonce)
	require.NoError(t, err)
	assert.Equal(t, a, b, "timezone representation must not change the digest")

	// Sub-millisecond precision is truncated away
	c, err := Recompute("acct-1", 100, "income", utc.Add(500*time.Microsecond), nonce)
	require.NoError(t, err)
	assert.Equal(t, a, c)
}

func TestRecompute_RequiresNonce(t *testing.T) {
	_, err := Recompute("acct-1", 100, "income", time.Now(), "")
	require.Error(t, err)
}
