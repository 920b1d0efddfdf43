package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	actorKey     = "actor_id"
	userIDHeader = "X-User-ID"
)

// AuthConfig controls how the caller's identity is established
type AuthConfig struct {
	// Enabled requires an HS256 bearer token whose subject is the user id.
	// When disabled the X-User-ID header is trusted.
	Enabled bool
	Secret  string
	Issuer  string
}

var errMissingToken = errors.New("missing bearer token")

// IssueToken signs an HS256 token for userID
func IssueToken(cfg AuthConfig, userID string, ttl time.Duration) (string, error) {
	if cfg.Secret == "" {
		return "", fmt.Errorf("jwt secret is not configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
}

func parseToken(cfg AuthConfig, header string) (string, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return "", errMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return claims.Subject, nil
}

// authMiddleware puts the caller's user id on the context or rejects the request
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var actor string
		if s.auth.Enabled {
			sub, err := parseToken(s.auth, c.GetHeader("Authorization"))
			if err != nil {
				s.logger.Info("Rejected token", "error", err, "path", c.Request.URL.Path)
				c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
					Success: false,
					Error:   "invalid or missing bearer token",
				})
				return
			}
			actor = sub
		} else {
			actor = strings.TrimSpace(c.GetHeader(userIDHeader))
		}

		if actor == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "caller identity required",
			})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func actorOf(c *gin.Context) string {
	return c.GetString(actorKey)
}
