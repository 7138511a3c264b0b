package verification

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const tokenValidity = 24 * time.Hour

// TokenIssuer mints the signed token a client receives after verifying its
// email. The token is informational for the frontend; verification state
// itself stays in the store and is always checked there.
type TokenIssuer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewTokenIssuer(secret []byte, issuer string) *TokenIssuer {
	return &TokenIssuer{secret: secret, issuer: issuer, now: time.Now}
}

func (ti *TokenIssuer) Issue(emailHash string) (string, error) {
	now := ti.now()
	claims := jwt.MapClaims{
		"iss":        ti.issuer,
		"sub":        emailHash,
		"email_hash": emailHash,
		"verified":   true,
		"iat":        now.Unix(),
		"exp":        now.Add(tokenValidity).Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("failed to create jwt: %w", err)
	}
	return token, nil
}

// Parse validates the signature and expiry and returns the email hash the
// token was issued for.
func (ti *TokenIssuer) Parse(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ti.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse jwt: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	emailHash, _ := claims["email_hash"].(string)
	if emailHash == "" {
		return "", fmt.Errorf("token missing email hash")
	}
	return emailHash, nil
}
