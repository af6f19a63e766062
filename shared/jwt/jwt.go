package jwt

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/itchan-dev/starter/shared/domain"
	internal_errors "github.com/itchan-dev/starter/shared/errors"
)

// Claims is what the frontend needs to know about a session token.
type Claims struct {
	User      domain.User
	ExpiresAt time.Time // zero when the token carries no exp claim
}

// Inspector reads session tokens issued by the backend. Without a secret it
// only decodes claims; with one it also verifies the HMAC signature.
type Inspector struct {
	secretKey string
	parser    *jwt.Parser
}

func New(secretKey string) *Inspector {
	return &Inspector{
		secretKey: secretKey,
		parser:    jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

func (i *Inspector) Inspect(jwtStr string) (*Claims, error) {
	if jwtStr == "" {
		return nil, &internal_errors.ErrorWithStatusCode{Message: "Missing access token", StatusCode: http.StatusUnauthorized}
	}

	claims := jwt.MapClaims{}
	var err error
	if i.secretKey == "" {
		_, _, err = i.parser.ParseUnverified(jwtStr, claims)
	} else {
		var token *jwt.Token
		token, err = i.parser.ParseWithClaims(jwtStr, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(i.secretKey), nil
		})
		if err == nil && !token.Valid {
			err = errors.New("token is not valid")
		}
	}
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &internal_errors.ErrorWithStatusCode{Message: "Access token expired", StatusCode: http.StatusUnauthorized}
		}
		return nil, &internal_errors.ErrorWithStatusCode{Message: "Invalid access token", StatusCode: http.StatusUnauthorized}
	}

	out := &Claims{}
	if uid, ok := claims["uid"].(float64); ok {
		out.User.Id = int64(uid)
	}
	out.User.Email, _ = claims["email"].(string)
	out.User.Admin, _ = claims["admin"].(bool)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// Expired reports whether the token is unusable: missing, malformed, badly
// signed or past its exp claim.
func (i *Inspector) Expired(jwtStr string, now time.Time) bool {
	claims, err := i.Inspect(jwtStr)
	if err != nil {
		return true
	}
	return !claims.ExpiresAt.IsZero() && !now.Before(claims.ExpiresAt)
}

// Sign issues an HS256 token in the backend's claim layout. A zero ttl issues
// a token without expiry (fixtures use those).
func Sign(secretKey string, user domain.User, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"uid":   user.Id,
		"email": user.Email,
		"admin": user.Admin,
	}
	if ttl != 0 {
		claims["exp"] = time.Now().Add(ttl).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", fmt.Errorf("can't sign token: %w", err)
	}
	return tokenString, nil
}
