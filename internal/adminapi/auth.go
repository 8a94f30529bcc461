// Package adminapi is a small read-mostly HTTP surface over the
// Task Store and Concurrency Governor, for operators who want to look
// at pipeline state without going through the database directly.
// Grounded on the teacher's internal/http/router.go (gin.Engine +
// route groups split into public/protected), middleware/auth.go
// (bearer-token extraction + AbortWithStatusJSON on failure), and
// middleware/cors.go (gin-contrib/cors with an explicit origin
// allowlist). Unlike the teacher's service, there is no login endpoint
// here: tokens are minted out-of-band by an operator tool and verified
// against a single shared secret.
package adminapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/logger"
)

// Claims is the minimal JWT payload this API trusts: just the
// registered claims, following the teacher's JWTClaims shape without
// the refresh-token bookkeeping this read-only surface doesn't need.
type Claims struct {
	jwt.RegisteredClaims
}

type authMiddleware struct {
	log    *logger.Logger
	secret []byte
}

func newAuthMiddleware(log *logger.Logger, secret string) *authMiddleware {
	return &authMiddleware{log: log.With("component", "AdminAPIAuth"), secret: []byte(secret)}
}

func (a *authMiddleware) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims := &Claims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			return a.secret, nil
		})
		if err != nil || !parsed.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if q := c.Query("token"); q != "" {
		return q
	}
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return h[7:]
	}
	return ""
}

// IssueToken mints an operator token for out-of-band distribution
// (CLI script, not this API itself).
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
}
