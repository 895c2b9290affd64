package security

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	JWTExpirationTime = time.Hour * 24
)

// UserClaims 由账号服务签发，这里只做校验
type UserClaims struct {
	UserID uint64   `json:"user_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}
