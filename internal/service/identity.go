package service

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/templui/picsellart/internal/model"
	"github.com/templui/picsellart/internal/validation"
)

// IdentityService verifies tokens issued by the identity provider.
type IdentityService struct {
	secret []byte
	issuer string
}

func NewIdentityService(secret, issuer string) *IdentityService {
	return &IdentityService{secret: []byte(secret), issuer: issuer}
}

type identityClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verify parses an HS256 bearer token into an Identity.
func (s *IdentityService) Verify(tokenString string) (model.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &identityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return model.Identity{}, fmt.Errorf("invalid identity token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return model.Identity{}, errors.New("invalid identity token: missing subject")
	}

	// the email claim only addresses receipts, a bad one is dropped
	email, err := validation.NormalizeEmail(claims.Email)
	if err != nil {
		slog.Warn("ignoring invalid email claim", "uid", claims.Subject, "error", err)
	}

	return model.Identity{UID: claims.Subject, Email: email}, nil
}

// Issue signs a token for identity. Used by the dev CLI and tests; in
// production tokens come from the identity provider.
func (s *IdentityService) Issue(identity model.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := identityClaims{
		Email: identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}
