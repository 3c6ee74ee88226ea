package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-service-admin/pkg/config"
)

// contextKey is used for type-safe context keys
type contextKey string

const (
	// AuthenticatedKey is the context key for authentication status
	AuthenticatedKey contextKey = "authenticated"
	// SubjectKey is the context key for the authenticated token subject
	SubjectKey contextKey = "subject"
)

// GenerateAdminToken generates a secure random token for admin API authentication
func GenerateAdminToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// AdminAuthMiddleware validates bearer tokens for the admin API
func AdminAuthMiddleware(token string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		providedToken, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		// Constant-time comparison to prevent timing attacks
		if subtle.ConstantTimeCompare([]byte(providedToken), []byte(token)) != 1 {
			logger.Warn("Invalid admin token attempt", zap.String("client_ip", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RegistrationAuthMiddleware validates HMAC-signed JWTs presented by registering
// instances. Without require_auth, requests without a valid token continue
// as unauthenticated.
func RegistrationAuthMiddleware(cfg config.RegistrationAuthConfig, logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("registration-auth")

	reject := func(c *gin.Context, message string) bool {
		if !cfg.RequireAuth {
			return false
		}
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": message,
		})
		c.Abort()
		return true
	}

	return func(c *gin.Context) {
		// Default to unauthenticated
		c.Set(string(AuthenticatedKey), false)

		if c.GetHeader("Authorization") == "" {
			if !reject(c, "Authorization header required") {
				c.Next()
			}
			return
		}

		tokenString, ok := bearerToken(c)
		if !ok {
			if !reject(c, "Invalid authorization header format") {
				c.Next()
			}
			return
		}

		// Reject validation if secret is empty (prevents empty-key HMAC attacks)
		if cfg.Secret == "" {
			logger.Debug("JWT secret is empty, rejecting token")
			if !reject(c, "Authentication not configured") {
				c.Next()
			}
			return
		}

		opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
		if cfg.Issuer != "" {
			opts = append(opts, jwt.WithIssuer(cfg.Issuer))
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(cfg.Secret), nil
		}, opts...)

		if err != nil || !token.Valid {
			logger.Debug("JWT validation failed", zap.Error(err))
			if !reject(c, "Invalid or expired token") {
				c.Next()
			}
			return
		}

		c.Set(string(AuthenticatedKey), true)
		c.Set(string(SubjectKey), claims.Subject)
		c.Next()
	}
}

// IsAuthenticated checks if the request carried a valid registration token
func IsAuthenticated(c *gin.Context) bool {
	val, exists := c.Get(string(AuthenticatedKey))
	if !exists {
		return false
	}
	authenticated, ok := val.(bool)
	return ok && authenticated
}

// Logger returns a gin middleware for logging
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
