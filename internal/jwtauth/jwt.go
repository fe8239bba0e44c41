// Package jwtauth validates access tokens minted by the external auth
// provider. This service never issues end-user tokens itself; GenerateToken
// exists for tooling and tests.
package jwtauth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"kta/internal/platform/middleware"
	dErrors "kta/pkg/domain-errors"
	"kta/pkg/requestcontext"
)

// Claims carries the caller's role and region affiliation.
type Claims struct {
	UserID     string `json:"user_id"`
	Role       string `json:"role"`
	RegionCode string `json:"region_code,omitempty"`
	jwt.RegisteredClaims
}

// Service handles JWT validation (and creation, for tooling).
type Service struct {
	signingKey []byte
	issuer     string
}

func NewService(signingKey string, issuer string) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
	}
}

// GenerateToken mints a signed token. Regional callers must carry a region
// code; central callers must not.
func (s *Service) GenerateToken(userID string, role requestcontext.Role, regionCode string, expiresIn time.Duration) (string, error) {
	switch role {
	case requestcontext.RoleCentral:
		regionCode = ""
	case requestcontext.RoleRegional:
		if regionCode == "" {
			return "", dErrors.New(dErrors.CodeValidation, "regional token requires a region code")
		}
	default:
		return "", dErrors.New(dErrors.CodeValidation, "unknown role")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:     userID,
		Role:       string(role),
		RegionCode: regionCode,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

// ValidateToken parses and verifies a token, returning middleware claims.
func (s *Service) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	role := requestcontext.Role(claims.Role)
	if role != requestcontext.RoleCentral && role != requestcontext.RoleRegional {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "unknown role claim")
	}
	if role == requestcontext.RoleRegional && claims.RegionCode == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "regional token missing region claim")
	}

	return &middleware.JWTClaims{
		UserID:     claims.UserID,
		Role:       role,
		RegionCode: claims.RegionCode,
	}, nil
}
