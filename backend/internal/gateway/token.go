package gateway

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"lms_core/backend/internal/policy"
	"lms_core/backend/internal/shared"
)

// Claims carried by identity tokens: the subject is the user id
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for a directory user. The core only
// verifies tokens; this is used by the seeder and by tests.
func IssueToken(secret, userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken verifies the signature and expiry and returns the caller
func ParseToken(secret, tokenString string) (policy.Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return policy.Principal{}, err
	}
	if claims.Subject == "" {
		return policy.Principal{}, errors.New("token has no subject")
	}
	if !shared.IsValidRole(claims.Role) {
		return policy.Principal{}, fmt.Errorf("token has unknown role %q", claims.Role)
	}
	return policy.Principal{ID: claims.Subject, Role: claims.Role}, nil
}
