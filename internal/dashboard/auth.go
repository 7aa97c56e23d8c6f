package dashboard

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/life-stream-dev/afk-bridge/internal/session"
)

const (
	tokenIssuer     = "afk-bridge"
	operatorKey     = "operator"
	DefaultTokenTTL = 30 * 24 * time.Hour
)

var (
	ErrNoSecret     = errors.New("dashboard.jwt_secret is not set")
	ErrInvalidToken = errors.New("invalid token")
)

// TokenManager signs and verifies operator tokens with HMAC-SHA256.
type TokenManager struct {
	secret []byte
}

func NewTokenManager(secret string) (*TokenManager, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &TokenManager{secret: []byte(secret)}, nil
}

// Issue mints a token whose subject is operator. ttl <= 0 means no expiry.
func (m *TokenManager) Issue(operator string, ttl time.Duration) (string, error) {
	if operator == "" || strings.ContainsAny(operator, " \t") {
		return "", session.InvalidArgument("invalid operator %q", operator)
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   operator,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify returns the operator a token was issued to.
func (m *TokenManager) Verify(tokenString string) (session.Operator, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return session.Operator(claims.Subject), nil
}

// IssueToken is the one-shot form used by the CLI.
func IssueToken(secret, operator string, ttl time.Duration) (string, error) {
	m, err := NewTokenManager(secret)
	if err != nil {
		return "", err
	}
	return m.Issue(operator, ttl)
}

// AuthMiddleware requires "Authorization: Bearer <token>" and stores the operator.
func AuthMiddleware(m *TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}

		operator, err := m.Verify(strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(operatorKey, operator)
		c.Next()
	}
}

func operatorFrom(c *gin.Context) (session.Operator, bool) {
	v, ok := c.Get(operatorKey)
	if !ok {
		return "", false
	}
	op, ok := v.(session.Operator)
	return op, ok
}
