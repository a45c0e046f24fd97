package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Principal identifies the caller behind a token. Admin principals carry no
// device.
type Principal struct {
	DeviceID   int64
	DeviceUUID uuid.UUID
	BranchID   int64
	Role       string
}

type Claims struct {
	DeviceID   int64     `json:"device_id,omitempty"`
	DeviceUUID uuid.UUID `json:"device_uuid,omitempty"`
	BranchID   int64     `json:"branch_id"`
	Role       string    `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) Principal() Principal {
	return Principal{
		DeviceID:   c.DeviceID,
		DeviceUUID: c.DeviceUUID,
		BranchID:   c.BranchID,
		Role:       c.Role,
	}
}

func GenerateToken(secret string, p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		DeviceID:   p.DeviceID,
		DeviceUUID: p.DeviceUUID,
		BranchID:   p.BranchID,
		Role:       p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if p.DeviceUUID != uuid.Nil {
		claims.Subject = p.DeviceUUID.String()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
