package sns

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	stateIssuer   = "wava-builder"
	stateAudience = "sns-oauth"
	stateTTL      = 10 * time.Minute
)

// StateClaims bind an OAuth round trip to the platform it started for, so a
// callback cannot be replayed against a different connect flow.
type StateClaims struct {
	jwt.RegisteredClaims
	Platform string `json:"platform"`
}

// StateSigner issues and verifies the signed state parameter carried through
// the OAuth consent redirect.
type StateSigner struct {
	Key []byte
	Now func() time.Time
}

func NewStateSigner(secret string) *StateSigner {
	return &StateSigner{Key: []byte(secret), Now: time.Now}
}

// Sign returns a signed state token for the given platform.
func (s *StateSigner) Sign(platform string) (string, error) {
	if s == nil || len(s.Key) == 0 {
		return "", fmt.Errorf("state secret not configured")
	}
	now := s.now()
	claims := StateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    stateIssuer,
			Audience:  jwt.ClaimStrings{stateAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		},
		Platform: platform,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.Key)
	if err != nil {
		return "", fmt.Errorf("sign state: %w", err)
	}
	return signed, nil
}

// Verify parses a state token and returns the platform it was issued for.
func (s *StateSigner) Verify(state string) (string, error) {
	if s == nil || len(s.Key) == 0 {
		return "", fmt.Errorf("state secret not configured")
	}
	claims := &StateClaims{}
	_, err := jwt.ParseWithClaims(state, claims,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return s.Key, nil
		},
		jwt.WithIssuer(stateIssuer),
		jwt.WithAudience(stateAudience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("verify state: %w", err)
	}
	if claims.Platform == "" {
		return "", fmt.Errorf("state missing platform")
	}
	return claims.Platform, nil
}

func (s *StateSigner) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
