package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"halwakitchen/internal/models"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
)

const operatorKey = "operator"

// Middleware resolves the acting operator from a Bearer token. The engine
// trusts the identity provider: the token's subject claim becomes the
// operator recorded on every mutating call. No resolvable identity aborts
// the request with 401.
func Middleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			reject(c)
			return
		}

		token, err := jwt.Parse(strings.TrimPrefix(header, "Bearer "), func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			reject(c)
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			reject(c)
			return
		}
		sub, _ := claims["sub"].(string)
		if sub == "" {
			reject(c)
			return
		}

		c.Set(operatorKey, sub)
		c.Next()
	}
}

// Operator returns the operator resolved by the middleware, or "" when the
// request carried no identity.
func Operator(c *gin.Context) string {
	v, ok := c.Get(operatorKey)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// NewToken mints a signed operator token. Used by tests and provisioning
// tooling; production tokens come from the external identity provider.
func NewToken(secret, operator string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": operator,
		"exp": time.Now().Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}

func reject(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": models.ErrAuthenticationRequired.Error()})
}
