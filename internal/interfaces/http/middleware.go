package http

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"reqforge/internal/entities"
	"reqforge/internal/infrastructure"
	"reqforge/internal/repository"
)

type Middleware struct {
	jwtSecret []byte
	users     *repository.UserRepository
	limiter   *infrastructure.RateLimiter
	appOrigin string
	log       *zap.Logger
}

func NewMiddleware(secret string, users *repository.UserRepository, limiter *infrastructure.RateLimiter, appURL string, log *zap.Logger) *Middleware {
	return &Middleware{
		jwtSecret: []byte(secret),
		users:     users,
		limiter:   limiter,
		appOrigin: originOf(appURL),
		log:       log,
	}
}

func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return rawURL
	}
	return u.Scheme + "://" + u.Host
}

// AuthRequired validates the bearer token and resolves the user row from the
// email claim, creating it on first sight. Handlers read the user via
// CurrentUser.
func (m *Middleware) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		email, _ := claims["email"].(string)
		if email == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		name, _ := claims["name"].(string)

		user, err := m.users.EnsureByEmail(c.Request.Context(), email, name, "")
		if err != nil {
			m.log.Error("auth: failed to resolve user", zap.String("email", email), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve user"})
			return
		}

		c.Set("user", user)
		c.Set("user_id", user.ID)
		c.Next()
	}
}

// CurrentUser returns the authenticated user set by AuthRequired.
func CurrentUser(c *gin.Context) (*entities.User, bool) {
	v, exists := c.Get("user")
	if !exists {
		return nil, false
	}
	user, ok := v.(*entities.User)
	return user, ok
}

// TrustedOrigin rejects mutating browser requests whose Origin does not match
// the app. Requests without an Origin header (curl, server-to-server) pass.
func (m *Middleware) TrustedOrigin() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			c.Next()
			return
		}

		origin := c.GetHeader("Origin")
		if origin == "" || origin == "null" {
			c.Next()
			return
		}
		if originOf(origin) != m.appOrigin {
			m.log.Warn("request from untrusted origin",
				zap.String("origin", origin), zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Origin not allowed"})
			return
		}
		c.Next()
	}
}

// RateLimitByIP admits requests per client address. Denials carry Retry-After.
func (m *Middleware) RateLimitByIP(scope string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "rl:" + scope + ":ip:" + infrastructure.ClientIP(c.Request)
		m.consume(c, key, limit, window)
	}
}

// RateLimitByUser admits requests per authenticated user; must follow
// AuthRequired.
func (m *Middleware) RateLimitByUser(scope string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User identity not found for rate limiting"})
			return
		}
		key := "rl:" + scope + ":user:" + userID
		m.consume(c, key, limit, window)
	}
}

func (m *Middleware) consume(c *gin.Context, key string, limit int, window time.Duration) {
	result := m.limiter.Consume(c.Request.Context(), key, limit, window)
	if !result.OK {
		c.Header("Retry-After", strconv.Itoa(result.RetryAfterSeconds))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "Too many requests",
			"retry_after": result.RetryAfterSeconds,
		})
		return
	}
	c.Next()
}

// CORSMiddleware allows cross-origin requests from the app origin.
func (m *Middleware) CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", m.appOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// SecurityHeaders adds security headers to prevent common attacks
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		c.Writer.Header().Set("X-Frame-Options", "DENY")
		c.Writer.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// RequestSizeLimiter limits request body size to prevent DoS
func RequestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
