package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sapira-ai/pharo-backend/pkg/config"
)

// Audience is stamped on every access token; tokens minted for other
// audiences under the same secret are rejected.
const Audience = "pharo-app"

var hs256 = jwt.SigningMethodHS256

var (
	// ErrRoleWithoutOrganization means the role and the organization it
	// belongs to were not set together.
	ErrRoleWithoutOrganization = errors.New("role and active organization must be set together")
	ErrSubjectMismatch         = errors.New("token subject does not match user_id")
)

// MintAccessToken signs an HS256 access token for payload. The role is only
// meaningful inside an organization, so both are present or both absent.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", fmt.Errorf("jwt secret is required")
	case cfg.Issuer == "":
		return "", fmt.Errorf("jwt issuer is required")
	case cfg.AccessTokenTTL() <= 0:
		return "", fmt.Errorf("jwt expiration minutes must be positive")
	case payload.UserID == uuid.Nil:
		return "", fmt.Errorf("user id is required")
	case (payload.Role == nil) != (payload.ActiveOrganizationID == nil):
		return "", ErrRoleWithoutOrganization
	case payload.Role != nil && !payload.Role.IsValid():
		return "", fmt.Errorf("invalid role %q", *payload.Role)
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	claims := AccessTokenClaims{
		UserID:               payload.UserID,
		Email:                strings.ToLower(strings.TrimSpace(payload.Email)),
		ActiveOrganizationID: payload.ActiveOrganizationID,
		Role:                 payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.AccessTokenTTL())),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(hs256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer, audience and expiry.
func ParseAccessToken(cfg config.JWTConfig, tokenString string) (*AccessTokenClaims, error) {
	return parseAccessToken(cfg, tokenString, true)
}

// ParseAccessTokenAllowExpired skips the time checks so refresh and logout
// can still read the session id of a lapsed token. Signature, issuer and
// audience are still enforced.
func ParseAccessTokenAllowExpired(cfg config.JWTConfig, tokenString string) (*AccessTokenClaims, error) {
	return parseAccessToken(cfg, tokenString, false)
}

func parseAccessToken(cfg config.JWTConfig, tokenString string, checkTime bool) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{hs256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
	}
	if checkTime {
		opts = append(opts, jwt.WithAudience(Audience), jwt.WithExpirationRequired())
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &AccessTokenClaims{}
	if _, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}); err != nil {
		return nil, err
	}

	// WithoutClaimsValidation drops the issuer and audience checks too.
	if !checkTime {
		if claims.Issuer != cfg.Issuer {
			return nil, jwt.ErrTokenInvalidIssuer
		}
		if !hasAudience(claims.Audience) {
			return nil, jwt.ErrTokenInvalidAudience
		}
	}
	if claims.Subject != claims.UserID.String() {
		return nil, ErrSubjectMismatch
	}
	if (claims.Role == nil) != (claims.ActiveOrganizationID == nil) {
		return nil, ErrRoleWithoutOrganization
	}
	return claims, nil
}

func hasAudience(aud jwt.ClaimStrings) bool {
	for _, a := range aud {
		if a == Audience {
			return true
		}
	}
	return false
}
