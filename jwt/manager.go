package jwt

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Algorithm names the single HMAC algorithm a Manager accepts.
type Algorithm string

const (
	// HS256 is HMAC-SHA-256, the default.
	HS256 Algorithm = "HS256"
	// HS384 is HMAC-SHA-384.
	HS384 Algorithm = "HS384"
	// HS512 is HMAC-SHA-512.
	HS512 Algorithm = "HS512"
)

// MinSecretLength is the shortest accepted signing secret, in bytes.
const MinSecretLength = 32

// Config configures a Manager. The secret is copied by NewManager.
type Config struct {
	Secret    []byte
	Algorithm Algorithm
	Issuer    string
	// Now overrides the clock used for iat/exp and expiry checks.
	Now func() time.Time
}

// Claims is the access token claim set.
type Claims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	TenantID string   `json:"tid,omitempty"`
	jwt.RegisteredClaims
}

// Remaining reports how long the token stays valid after now.
func (c *Claims) Remaining(now time.Time) time.Duration {
	if c == nil || c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Time.Sub(now)
}

// Manager signs and verifies HMAC access tokens with one allow-listed algorithm.
//
// A Manager is immutable after NewManager and safe for concurrent use.
type Manager struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = HS256
	}
	method, err := methodFor(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(now),
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	return &Manager{
		secret: secret,
		method: method,
		issuer: cfg.Issuer,
		now:    now,
		parser: jwt.NewParser(options...),
	}, nil
}

// Algorithm returns the configured algorithm name.
func (m *Manager) Algorithm() Algorithm {
	return Algorithm(m.method.Alg())
}

// Issue signs a new access token for subject that expires ttl after its
// issued-at instant. Both instants are truncated to whole seconds, so
// exp - iat == ttl for whole-second TTLs.
func (m *Manager) Issue(subject, username, tenantID string, roles []string, ttl time.Duration) (string, *Claims, error) {
	if subject == "" {
		return "", nil, errors.New("jwt subject is required")
	}
	if ttl <= 0 {
		return "", nil, errors.New("jwt ttl must be positive")
	}

	issuedAt := m.now().Truncate(time.Second)
	claimRoles := make([]string, len(roles))
	copy(claimRoles, roles)

	claims := &Claims{
		Username: username,
		Roles:    claimRoles,
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(m.method, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign access token: %w", err)
	}
	return signed, claims, nil
}

// Verify checks structure, algorithm and signature before it decodes any
// claim, then enforces expiry. Every failure is a *DecodeError; claims are
// only returned when the token is fully valid.
func (m *Manager) Verify(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return nil, newDecodeError(ErrMalformed, errors.New("token must have three segments"))
	}

	alg, err := headerAlgorithm(parts[0])
	if err != nil {
		return nil, newDecodeError(ErrMalformed, err)
	}
	if alg != m.method.Alg() {
		return nil, newDecodeError(ErrWrongAlgorithm, fmt.Errorf("got %q, want %q", alg, m.method.Alg()))
	}

	sig, err := base64.RawURLEncoding.Strict().DecodeString(parts[2])
	if err != nil || len(sig) == 0 {
		return nil, newDecodeError(ErrBadSignature, err)
	}
	if err := m.method.Verify(parts[0]+"."+parts[1], sig, m.secret); err != nil {
		return nil, newDecodeError(ErrBadSignature, err)
	}

	claims := &Claims{}
	parsed, err := m.parser.ParseWithClaims(token, claims, m.keyFunc)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, newDecodeError(ErrExpired, err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, newDecodeError(ErrBadSignature, err)
		default:
			return nil, newDecodeError(ErrMalformed, err)
		}
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, newDecodeError(ErrMalformed, errors.New("token has no subject"))
	}

	return claims, nil
}

func (m *Manager) keyFunc(t *jwt.Token) (any, error) {
	if t.Method.Alg() != m.method.Alg() {
		return nil, ErrWrongAlgorithm
	}
	return m.secret, nil
}

func headerAlgorithm(segment string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return "", fmt.Errorf("decode header: %w", err)
	}
	var header struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		return "", fmt.Errorf("decode header: %w", err)
	}
	if header.Alg == "" {
		return "", errors.New("header has no alg")
	}
	return header.Alg, nil
}

func methodFor(alg Algorithm) (*jwt.SigningMethodHMAC, error) {
	switch Algorithm(strings.ToUpper(string(alg))) {
	case HS256:
		return jwt.SigningMethodHS256, nil
	case HS384:
		return jwt.SigningMethodHS384, nil
	case HS512:
		return jwt.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported jwt algorithm %q", alg)
	}
}
