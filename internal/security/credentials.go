package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// PasswordAlphabet is the 64-character set passwords are drawn from.
const PasswordAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

const (
	apiKeyPrefix = "key_"

	// MinPasswordStrengthLength is the minimum length accepted by ValidatePasswordStrength.
	MinPasswordStrengthLength = 8

	bcryptCost = 12
)

// Config holds the credential format settings.
type Config struct {
	CredentialPrefix string
	PasswordLength   int
	RolePrefix       string
}

// DefaultConfig returns the default credential format.
func DefaultConfig() Config {
	return Config{
		CredentialPrefix: "U-",
		PasswordLength:   32,
		RolePrefix:       "role-",
	}
}

// Credentials is a freshly generated username/password pair.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Generator produces credentials. It is safe for concurrent use.
type Generator struct {
	cfg    Config
	random io.Reader
}

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator(cfg Config) (*Generator, error) {
	return newGenerator(cfg, rand.Reader)
}

func newGenerator(cfg Config, random io.Reader) (*Generator, error) {
	if cfg.CredentialPrefix == "" {
		return nil, errors.New("credential prefix is required")
	}
	if cfg.RolePrefix == "" {
		return nil, errors.New("role prefix is required")
	}
	if cfg.PasswordLength < 1 {
		return nil, fmt.Errorf("password length must be positive, got %d", cfg.PasswordLength)
	}
	return &Generator{cfg: cfg, random: random}, nil
}

// Config returns the generator's format settings.
func (g *Generator) Config() Config {
	return g.cfg
}

// GenerateCredentials returns a new username and password. An empty
// identifier produces a username without one.
func (g *Generator) GenerateCredentials(identifier string) (Credentials, error) {
	username, err := g.GenerateUsername(identifier)
	if err != nil {
		return Credentials{}, err
	}
	password, err := g.GeneratePassword()
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{Username: username, Password: password}, nil
}

// RotateCredentials issues a replacement pair. The current credentials are
// not consulted; rotation is plain regeneration.
func (g *Generator) RotateCredentials(_ Credentials, identifier string) (Credentials, error) {
	return g.GenerateCredentials(identifier)
}

// GenerateUsername returns prefix+identifier+"-"+uuid, or prefix+uuid when
// identifier is empty.
func (g *Generator) GenerateUsername(identifier string) (string, error) {
	suffix, err := g.uniqueSuffix()
	if err != nil {
		return "", err
	}
	if identifier != "" {
		return g.cfg.CredentialPrefix + identifier + "-" + suffix, nil
	}
	return g.cfg.CredentialPrefix + suffix, nil
}

// GeneratePassword returns PasswordLength characters drawn independently and
// uniformly from PasswordAlphabet.
func (g *Generator) GeneratePassword() (string, error) {
	buf := make([]byte, g.cfg.PasswordLength)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", fmt.Errorf("could not generate password: %w", err)
	}
	// 256 is a multiple of 64, so masking keeps the distribution uniform.
	for i, b := range buf {
		buf[i] = PasswordAlphabet[b&63]
	}
	return string(buf), nil
}

// GenerateRole returns prefix+identifier, or prefix+uuid when identifier is
// empty. Roles derived from the same identifier are stable.
func (g *Generator) GenerateRole(identifier string) (string, error) {
	if identifier != "" {
		return g.cfg.RolePrefix + identifier, nil
	}
	suffix, err := g.uniqueSuffix()
	if err != nil {
		return "", err
	}
	return g.cfg.RolePrefix + suffix, nil
}

// GenerateAPIKey returns "key_" followed by 32 hex characters.
func (g *Generator) GenerateAPIKey() (string, error) {
	suffix, err := g.uniqueSuffix()
	if err != nil {
		return "", err
	}
	return apiKeyPrefix + strings.ReplaceAll(suffix, "-", ""), nil
}

func (g *Generator) uniqueSuffix() (string, error) {
	id, err := uuid.NewRandomFromReader(g.random)
	if err != nil {
		return "", fmt.Errorf("could not generate unique suffix: %w", err)
	}
	return id.String(), nil
}

// IsValidUsername checks the prefix and that something follows it.
func (g *Generator) IsValidUsername(username string) bool {
	return strings.HasPrefix(username, g.cfg.CredentialPrefix) && len(username) > len(g.cfg.CredentialPrefix)
}

// IsValidRole checks the prefix and that something follows it.
func (g *Generator) IsValidRole(role string) bool {
	return strings.HasPrefix(role, g.cfg.RolePrefix) && len(role) > len(g.cfg.RolePrefix)
}

// ExtractIdentifierFromUsername recovers the identifier a username was
// generated for. It strips the prefix and a trailing "-<uuid>" suffix; the
// identifier may itself contain "-". Usernames generated without an
// identifier, or not ending in a generated suffix, report false.
func (g *Generator) ExtractIdentifierFromUsername(username string) (string, bool) {
	if !g.IsValidUsername(username) {
		return "", false
	}
	rest := strings.TrimPrefix(username, g.cfg.CredentialPrefix)

	const suffixLen = 36
	if len(rest) < suffixLen+2 {
		return "", false
	}
	sep := len(rest) - suffixLen - 1
	if rest[sep] != '-' {
		return "", false
	}
	if _, err := uuid.Parse(rest[sep+1:]); err != nil {
		return "", false
	}
	return rest[:sep], true
}

// ExtractIdentifierFromRole strips the role prefix.
func (g *Generator) ExtractIdentifierFromRole(role string) (string, bool) {
	if !g.IsValidRole(role) {
		return "", false
	}
	return strings.TrimPrefix(role, g.cfg.RolePrefix), true
}

// ValidatePasswordStrength is a format check: at least 8 characters with an
// upper-case letter, a lower-case letter and a digit.
func ValidatePasswordStrength(password string) bool {
	if len(password) < MinPasswordStrengthLength {
		return false
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	return upper && lower && digit
}

// HashPassword returns a bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("could not hash password: %w", err)
	}
	return string(hashed), nil
}

// VerifyPassword returns nil if password matches hash.
func VerifyPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// BasicAuth formats credentials as the value of an HTTP Basic Authorization header.
func BasicAuth(c Credentials) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.Username+":"+c.Password))
}
