package jwt

import (
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	apiError "github.com/swiftcab/chat-service/errors"
)

// ValidateAndGetClaims parses and verifies an HMAC-signed access token and
// returns its claims.
func ValidateAndGetClaims(tokenString, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, apiError.New("invalid token", http.StatusUnauthorized)
	}
	return claims, nil
}

// TokenVerifier resolves opaque access tokens to user identities. It is the
// gateway's seam to the identity provider: token issuance happens elsewhere,
// this only verifies and extracts the subject.
type TokenVerifier struct {
	Secret string
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{Secret: secret}
}

// ResolveToken returns the user id carried in the token's "id" claim.
func (v *TokenVerifier) ResolveToken(token string) (uuid.UUID, error) {
	claims, err := ValidateAndGetClaims(token, v.Secret)
	if err != nil {
		return uuid.Nil, apiError.New("invalid or expired token", http.StatusUnauthorized)
	}

	idClaim, ok := claims["id"].(string)
	if !ok {
		return uuid.Nil, apiError.New("token has no user id", http.StatusUnauthorized)
	}
	userID, err := uuid.Parse(idClaim)
	if err != nil {
		return uuid.Nil, apiError.New("invalid user id in token", http.StatusUnauthorized)
	}
	return userID, nil
}

// GenerateToken mints an access token for userID. Used by tests and local
// tooling; production tokens come from the identity service.
func GenerateToken(userID uuid.UUID, secret string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id": userID.String(),
	})
	return token.SignedString([]byte(secret))
}
