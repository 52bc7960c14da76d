package security

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func newTestGenerator(t *testing.T) *Generator {
	t.Helper()
	g, err := NewGenerator(DefaultConfig())
	require.NoError(t, err)
	return g
}

func TestNewGeneratorRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing credential prefix", Config{PasswordLength: 8, RolePrefix: "role-"}},
		{"missing role prefix", Config{CredentialPrefix: "U-", PasswordLength: 8}},
		{"zero password length", Config{CredentialPrefix: "U-", RolePrefix: "role-"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGenerator(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestGeneratePassword(t *testing.T) {
	g := newTestGenerator(t)

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		password, err := g.GeneratePassword()
		require.NoError(t, err)
		require.Len(t, password, 32)
		for _, r := range password {
			require.True(t, strings.ContainsRune(PasswordAlphabet, r), "unexpected character %q", r)
		}
		seen[password] = true
	}
	assert.Len(t, seen, 1000)
}

func TestGeneratePasswordCustomLength(t *testing.T) {
	g, err := NewGenerator(Config{CredentialPrefix: "U-", PasswordLength: 64, RolePrefix: "role-"})
	require.NoError(t, err)

	password, err := g.GeneratePassword()
	require.NoError(t, err)
	assert.Len(t, password, 64)
}

func TestGeneratePasswordPropagatesEntropyFailure(t *testing.T) {
	g, err := newGenerator(DefaultConfig(), failingReader{})
	require.NoError(t, err)

	_, err = g.GeneratePassword()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entropy exhausted")

	_, err = g.GenerateUsername("orders")
	assert.Error(t, err)

	_, err = g.GenerateCredentials("orders")
	assert.Error(t, err)
}

func TestGenerateUsername(t *testing.T) {
	g := newTestGenerator(t)

	t.Run("with identifier", func(t *testing.T) {
		username, err := g.GenerateUsername("orders")
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(username, "U-orders-"))

		_, err = uuid.Parse(strings.TrimPrefix(username, "U-orders-"))
		assert.NoError(t, err)
		assert.True(t, g.IsValidUsername(username))
	})

	t.Run("without identifier", func(t *testing.T) {
		username, err := g.GenerateUsername("")
		require.NoError(t, err)

		_, err = uuid.Parse(strings.TrimPrefix(username, "U-"))
		assert.NoError(t, err)
	})

	t.Run("unique", func(t *testing.T) {
		a, err := g.GenerateUsername("x")
		require.NoError(t, err)
		b, err := g.GenerateUsername("x")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})
}

func TestExtractIdentifierFromUsername(t *testing.T) {
	g := newTestGenerator(t)

	for _, id := range []string{"orders", "multi-part-name", "a"} {
		username, err := g.GenerateUsername(id)
		require.NoError(t, err)

		got, ok := g.ExtractIdentifierFromUsername(username)
		require.True(t, ok, username)
		assert.Equal(t, id, got)
	}

	anonymous, err := g.GenerateUsername("")
	require.NoError(t, err)

	tests := []struct {
		name     string
		username string
	}{
		{"no identifier", anonymous},
		{"wrong prefix", "X-orders-" + uuid.NewString()},
		{"prefix only", "U-"},
		{"no suffix", "U-orders"},
		{"bad suffix", "U-orders-" + strings.Repeat("z", 36)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := g.ExtractIdentifierFromUsername(tt.username)
			assert.False(t, ok)
		})
	}
}

func TestGenerateRole(t *testing.T) {
	g := newTestGenerator(t)

	role, err := g.GenerateRole("orders")
	require.NoError(t, err)
	assert.Equal(t, "role-orders", role)
	assert.True(t, g.IsValidRole(role))

	id, ok := g.ExtractIdentifierFromRole(role)
	require.True(t, ok)
	assert.Equal(t, "orders", id)

	anonymous, err := g.GenerateRole("")
	require.NoError(t, err)
	_, err = uuid.Parse(strings.TrimPrefix(anonymous, "role-"))
	assert.NoError(t, err)

	assert.False(t, g.IsValidRole("role-"))
	assert.False(t, g.IsValidRole("admin"))
	_, ok = g.ExtractIdentifierFromRole("admin")
	assert.False(t, ok)
}

func TestGenerateAPIKey(t *testing.T) {
	g := newTestGenerator(t)

	key, err := g.GenerateAPIKey()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(key, "key_"))

	hex := strings.TrimPrefix(key, "key_")
	assert.Len(t, hex, 32)
	assert.NotContains(t, hex, "-")
}

func TestRotateCredentials(t *testing.T) {
	g := newTestGenerator(t)

	old, err := g.GenerateCredentials("orders")
	require.NoError(t, err)
	rotated, err := g.RotateCredentials(old, "orders")
	require.NoError(t, err)

	assert.NotEqual(t, old.Username, rotated.Username)
	assert.NotEqual(t, old.Password, rotated.Password)
	id, ok := g.ExtractIdentifierFromUsername(rotated.Username)
	require.True(t, ok)
	assert.Equal(t, "orders", id)
}

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		password string
		want     bool
	}{
		{"Abcdefg1", true},
		{"Abc1", false},
		{"abcdefg1", false},
		{"ABCDEFG1", false},
		{"Abcdefgh", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidatePasswordStrength(tt.password))
		})
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-Password")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-Password", hash)

	assert.NoError(t, VerifyPassword(hash, "s3cret-Password"))
	assert.Error(t, VerifyPassword(hash, "wrong"))

	_, err = HashPassword("")
	assert.Error(t, err)
}

func TestBasicAuth(t *testing.T) {
	header := BasicAuth(Credentials{Username: "U-x", Password: "p:w"})
	require.True(t, strings.HasPrefix(header, "Basic "))

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
	require.NoError(t, err)
	assert.Equal(t, "U-x:p:w", string(decoded))
}
