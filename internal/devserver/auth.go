package devserver

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenLifetime = time.Hour

// tokenIssuer signs and verifies session tokens.
type tokenIssuer struct {
	secret []byte
}

// issue creates a signed session token for the given user.
func (t tokenIssuer) issue(email, name string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  email,
		"name": name,
		"iat":  now.Unix(),
		"exp":  now.Add(tokenLifetime).Unix(),
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// verify parses and validates a session token, returning the user's email
// and display name.
func (t tokenIssuer) verify(tokenString string) (email, name string, err error) {
	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", "", fmt.Errorf("parse token: %w", err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", "", fmt.Errorf("token missing subject")
	}
	if n, ok := claims["name"].(string); ok {
		name = n
	}
	return sub, name, nil
}

// displayName derives the creator display name shown on posts from the
// login email.
func displayName(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
