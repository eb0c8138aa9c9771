package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleBettor = "bettor"
	RoleAdmin  = "admin"
)

// Claims represents the JWT claims
type Claims struct {
	BettorID string `json:"bettor_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the token may resolve markets
func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// TokenManager signs and verifies HS256 tokens
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// GenerateToken generates a new JWT token for a bettor
func (m *TokenManager) GenerateToken(bettorID, role string) (string, error) {
	if len(m.secret) == 0 {
		return "", fmt.Errorf("JWT secret not initialized")
	}
	if bettorID == "" {
		return "", fmt.Errorf("bettor id is required")
	}
	if role == "" {
		role = RoleBettor
	}

	now := m.now()
	claims := &Claims{
		BettorID: bettorID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   bettorID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken validates a JWT token and returns the claims
func (m *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	if len(m.secret) == 0 {
		return nil, fmt.Errorf("JWT secret not initialized")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.BettorID == "" {
		return nil, fmt.Errorf("token has no bettor id")
	}
	return claims, nil
}
