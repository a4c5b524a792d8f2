package security

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
)

var (
	// ErrKeyIDMissing indicates a token header carries no kid.
	ErrKeyIDMissing = errors.New("jwt: missing key identifier")
	// ErrTokenExpired indicates the token is past its exp claim.
	ErrTokenExpired = errors.New("jwt: token expired")
	// ErrTokenInvalid covers every other verification failure.
	ErrTokenInvalid = errors.New("jwt: token invalid")
)

// AccessTokenClaims carries the user, role names, and the refresh record the token was derived from.
type AccessTokenClaims struct {
	UserID    string   `json:"uid"`
	Roles     []string `json:"roles,omitempty"`
	RefreshID string   `json:"rti,omitempty"`
	jwt.RegisteredClaims
}

// AccessTokenOptions configures creation of access token claims.
type AccessTokenOptions struct {
	UserID    string
	Roles     []string
	RefreshID string
	Issuer    string
	Audience  []string
	TTL       time.Duration
	IssuedAt  time.Time
	JTI       string
}

const defaultAccessTokenTTL = 15 * time.Second

// NewAccessTokenClaims constructs standardized access token claims.
func NewAccessTokenClaims(opts AccessTokenOptions) (*AccessTokenClaims, error) {
	userID := strings.TrimSpace(opts.UserID)
	if userID == "" {
		return nil, fmt.Errorf("jwt: user id is required")
	}
	issuer := strings.TrimSpace(opts.Issuer)
	if issuer == "" {
		return nil, fmt.Errorf("jwt: issuer is required")
	}

	now := opts.IssuedAt.UTC()
	if opts.IssuedAt.IsZero() {
		now = time.Now().UTC()
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultAccessTokenTTL
	}

	jti := strings.TrimSpace(opts.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}

	return &AccessTokenClaims{
		UserID:    userID,
		Roles:     normalizeRoles(opts.Roles),
		RefreshID: strings.TrimSpace(opts.RefreshID),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			Audience:  opts.Audience,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	}, nil
}

// JWTManager signs and verifies RS256 access tokens and publishes the JWKS.
type JWTManager struct {
	provider KeyProvider
	now      func() time.Time
}

// NewJWTManager constructs a JWTManager for the supplied key provider.
func NewJWTManager(provider KeyProvider) *JWTManager {
	return &JWTManager{provider: provider, now: time.Now}
}

// WithClock overrides the time source used when validating exp and nbf.
func (m *JWTManager) WithClock(now func() time.Time) *JWTManager {
	if now != nil {
		m.now = now
	}
	return m
}

// Sign signs claims with the active key and stamps its kid into the header.
func (m *JWTManager) Sign(claims *AccessTokenClaims) (string, error) {
	if claims == nil {
		return "", fmt.Errorf("jwt: access token claims required")
	}

	kid, key, err := m.provider.SigningKey()
	if err != nil {
		return "", fmt.Errorf("jwt: get signing key: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature, issuer, audience and time claims of an access token.
func (m *JWTManager) Parse(raw, issuer string, audience []string) (*AccessTokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
	}
	for _, aud := range audience {
		opts = append(opts, jwt.WithAudience(aud))
	}

	claims := &AccessTokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if strings.TrimSpace(kid) == "" {
			return nil, ErrKeyIDMissing
		}
		return m.provider.VerificationKey(kid)
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.UserID == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing uid or jti", ErrTokenInvalid)
	}

	return claims, nil
}

// JWKS produces the JSON Web Key Set for every verification key.
func (m *JWTManager) JWKS() ([]byte, error) {
	keys := m.provider.VerificationKeys()

	kids := make([]string, 0, len(keys))
	for kid := range keys {
		kids = append(kids, kid)
	}
	sort.Strings(kids)

	set := make([]map[string]string, 0, len(kids))
	for _, kid := range kids {
		if keys[kid] == nil {
			continue
		}
		set = append(set, buildJWK(kid, keys[kid]))
	}

	return json.Marshal(map[string]any{"keys": set})
}

func buildJWK(kid string, key *rsa.PublicKey) map[string]string {
	return map[string]string{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}

func normalizeRoles(input []string) []string {
	if len(input) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(input))
	result := make([]string, 0, len(input))
	for _, role := range input {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if _, exists := seen[role]; exists {
			continue
		}
		seen[role] = struct{}{}
		result = append(result, role)
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
