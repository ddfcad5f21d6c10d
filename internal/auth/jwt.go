// Package auth verifies the bearer tokens issued by the campus identity
// provider. Token issuance, refresh, and revocation live there, not here;
// this service only validates and extracts the subject and role.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenExpiry is how long access tokens are valid. Short expiry
// limits exposure if a token is compromised.
const AccessTokenExpiry = 1 * time.Hour

// Role claims carried by access tokens.
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// Predefined JWT errors.
var (
	ErrInvalidAccessToken = errors.New("invalid access token")
	ErrAccessTokenExpired = errors.New("access token has expired")
)

// JWTClaims represents the claims in our API access tokens.
type JWTClaims struct {
	jwt.RegisteredClaims

	// SubjectID is the authenticated principal's ID (student or admin).
	SubjectID string `json:"uid"`

	// Role is the principal's role claim.
	Role string `json:"role"`
}

// JWTService handles JWT validation, and creation for tests and local
// tooling.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
}

// JWTConfig holds configuration for the JWT service.
type JWTConfig struct {
	// SigningKey is the secret key used to verify JWTs. Must match the
	// identity provider's signing key.
	SigningKey string

	// Issuer is the expected issuer claim.
	Issuer string

	// Audience is the expected audience claim.
	Audience string
}

// NewJWTService creates a new JWT service.
func NewJWTService(cfg JWTConfig) *JWTService {
	return &JWTService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
	}
}

// GenerateAccessToken creates a new access token for the given subject and
// role.
func (s *JWTService) GenerateAccessToken(subjectID, role string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(AccessTokenExpiry)

	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subjectID,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        generateTokenID(),
		},
		SubjectID: subjectID,
		Role:      role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateAccessToken validates an access token and returns the claims.
func (s *JWTService) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrAccessTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidAccessToken, err.Error())
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidAccessToken
	}

	return claims, nil
}

// generateTokenID generates a unique token ID.
func generateTokenID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}
