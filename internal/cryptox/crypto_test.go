package cryptox

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	secret := []byte("secret-password")
	salt := []byte("fixed-salt")

	key1 := DeriveKey(secret, salt)
	key2 := DeriveKey(secret, salt)

	if !bytes.Equal(key1, key2) {
		t.Errorf("expected same result for same inputs, got different")
	}

	expectedHex := "34f7a1c64df63ab1ad5b5ee06e64db5713b35f81839823304db63e8e5e6a6a39"
	if hex.EncodeToString(key1) != expectedHex {
		t.Errorf("expected %s, got %s", expectedHex, hex.EncodeToString(key1))
	}
}

func TestDeriveKey_DifferentSalts(t *testing.T) {
	secret := []byte("secret-password")

	key1 := DeriveKey(secret, []byte("salt-1"))
	key2 := DeriveKey(secret, []byte("salt-2"))

	if bytes.Equal(key1, key2) {
		t.Errorf("expected different results for different salts, got same")
	}
	assert.Len(t, key1, KeySize)
}

func newTestBox(t *testing.T, fill byte) *Box {
	t.Helper()
	b, err := NewBox(bytes.Repeat([]byte{fill}, KeySize))
	require.NoError(t, err)
	return b
}

func TestBox_RoundTrip(t *testing.T) {
	b := newTestBox(t, 7)

	sealed, err := b.Seal("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "JBSWY3DPEHPK3PXP")

	got, err := b.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", got)
}

func TestBox_FreshNonce(t *testing.T) {
	b := newTestBox(t, 7)

	s1, err := b.Seal("same")
	require.NoError(t, err)
	s2, err := b.Seal("same")
	require.NoError(t, err)
	assert.NotEqual(t, s1, s2)
}

func TestBox_OpenRejects(t *testing.T) {
	b := newTestBox(t, 7)
	sealed, err := b.Seal("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	raw, err := base64.RawStdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.RawStdEncoding.EncodeToString(raw)

	otherKey, err := newTestBox(t, 9).Seal("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	tests := []struct {
		name   string
		sealed string
	}{
		{name: "not base64", sealed: "***"},
		{name: "too short", sealed: base64.RawStdEncoding.EncodeToString([]byte("short"))},
		{name: "tampered", sealed: tampered},
		{name: "other key", sealed: otherKey},
		{name: "plaintext seed", sealed: "JBSWY3DPEHPK3PXP"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := b.Open(tc.sealed)
			assert.ErrorIs(t, err, common.ErrEncoding)
		})
	}
}

func TestNewBox_BadKey(t *testing.T) {
	_, err := NewBox([]byte("short"))
	assert.ErrorIs(t, err, common.ErrConfiguration)
}
