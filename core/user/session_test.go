package user

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestIssueToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := IssueToken()
		require.NoError(t, err)
		assert.Len(t, token, 64)
		_, err = hex.DecodeString(token)
		assert.NoError(t, err)
		assert.False(t, seen[token], "duplicate token")
		seen[token] = true
	}
}

func TestIssueToken_readFailure(t *testing.T) {
	defer SetRandReader(failingReader{})()

	token, err := IssueToken()
	assert.Error(t, err)
	assert.Empty(t, token)
}

func TestIssueToken_deterministicSource(t *testing.T) {
	defer SetRandReader(bytes.NewReader(bytes.Repeat([]byte{0xab}, sessionTokenSize)))()

	token, err := IssueToken()
	require.NoError(t, err)
	assert.Equal(t, string(bytes.Repeat([]byte("ab"), sessionTokenSize)), token)
}

func TestDigestToken(t *testing.T) {
	token, err := IssueToken()
	require.NoError(t, err)

	digest := digestToken(token)
	assert.Len(t, digest, 64)
	assert.NotEqual(t, token, digest)
	assert.Equal(t, digest, digestToken(token))
}

func TestValidTokenFormat(t *testing.T) {
	token, err := IssueToken()
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{name: "issued", token: token, want: true},
		{name: "empty", token: ""},
		{name: "short", token: token[:63]},
		{name: "long", token: token + "0"},
		{name: "not hex", token: "zz" + token[2:]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, validTokenFormat(tt.token))
		})
	}
}

func TestSessionNeedsRefresh(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	lifetime := 24 * time.Hour

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{name: "fresh", expiresAt: now.Add(lifetime)},
		{name: "just over half", expiresAt: now.Add(13 * time.Hour)},
		{name: "exactly half", expiresAt: now.Add(12 * time.Hour)},
		{name: "under half", expiresAt: now.Add(11 * time.Hour), want: true},
		{name: "about to expire", expiresAt: now.Add(time.Second), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sessionNeedsRefresh(tt.expiresAt, lifetime, now))
		})
	}
}
