package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const AccessTokenCookie = "access_token"

var ErrInvalidToken = errors.New("invalid access token")

// Claims is the identity carried by access tokens issued by the accounts service.
type Claims struct {
	UserID uint
	Email  string
	Role   string
}

func ExtractAccessToken(r *http.Request) string {
	// cookie first, Authorization header as fallback
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return ""
}

// ParseToken validates an HMAC-signed token and extracts its claims.
func ParseToken(tokenStr string, secret []byte) (*Claims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	uid, ok := mc["user_id"].(float64)
	if !ok || uid <= 0 {
		return nil, ErrInvalidToken
	}

	claims := &Claims{UserID: uint(uid)}
	claims.Email, _ = mc["email"].(string)
	claims.Role, _ = mc["role"].(string)
	return claims, nil
}
