package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoCompany    = errors.New("user is not linked to a company")
)

// ActingUser is the employee a request acts for; every query is scoped by CompanyID
type ActingUser struct {
	UserID    int64  `json:"user_id"`
	CompanyID int64  `json:"company_id"`
	Role      string `json:"role,omitempty"`
}

// Claims are the custom payload in the JWT
type Claims struct {
	UserID    int64  `json:"user_id"`
	CompanyID int64  `json:"company_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed token for user valid for ttl
func GenerateToken(secret string, user ActingUser, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:    user.UserID,
		CompanyID: user.CompanyID,
		Role:      user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates an HS256 token and returns the user it carries
func ParseToken(secret, tokenString string) (ActingUser, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return ActingUser{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.UserID <= 0 {
		return ActingUser{}, ErrInvalidToken
	}
	if claims.CompanyID <= 0 {
		return ActingUser{}, ErrNoCompany
	}

	return ActingUser{UserID: claims.UserID, CompanyID: claims.CompanyID, Role: claims.Role}, nil
}

// unexported type prevents collisions in context
type ctxKey int

const userKey ctxKey = iota

// WithUser stores the acting user in ctx
func WithUser(ctx context.Context, user ActingUser) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// FromContext returns the acting user stored by WithUser
func FromContext(ctx context.Context) (ActingUser, bool) {
	user, ok := ctx.Value(userKey).(ActingUser)
	return user, ok
}
