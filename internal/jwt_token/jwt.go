// Package jwttoken verifies the HS256 access tokens the marketplace identity
// service hands to providers.
package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "onboarding-gateway/pkg/domain"
	dErrors "onboarding-gateway/pkg/domain-errors"
)

// Claims carries the provider the token was issued for next to the
// registered claims.
type Claims struct {
	ProviderID string `json:"provider_id"`
	jwt.RegisteredClaims
}

type Service struct {
	key      []byte
	issuer   string
	audience string
	parser   *jwt.Parser
}

func New(signingKey, issuer, audience string) *Service {
	return &Service{
		key:      []byte(signingKey),
		issuer:   issuer,
		audience: audience,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithAudience(audience),
			jwt.WithExpirationRequired(),
		),
	}
}

// Issue signs a token for providerID. Production tokens come from the
// identity service; local tooling and tests mint their own here.
func (s *Service) Issue(providerID id.ProviderID, ttl time.Duration) (string, error) {
	issued := time.Now()
	claims := Claims{
		ProviderID: providerID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   providerID.String(),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Parse checks signature, issuer, audience and expiry. Every failure is an
// unauthorized domain error.
func (s *Service) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	if _, err := s.parser.ParseWithClaims(raw, claims, s.keyFunc); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return claims, nil
}

// VerifyProvider lets the auth middleware accept a Service directly.
func (s *Service) VerifyProvider(raw string) (id.ProviderID, error) {
	claims, err := s.Parse(raw)
	if err != nil {
		return id.ProviderID{}, err
	}
	providerID, err := id.ParseProviderID(claims.ProviderID)
	if err != nil {
		return id.ProviderID{}, dErrors.New(dErrors.CodeUnauthorized, "token is not bound to a provider")
	}
	return providerID, nil
}

func (s *Service) keyFunc(*jwt.Token) (any, error) {
	return s.key, nil
}
