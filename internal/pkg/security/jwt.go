package security

import (
	"Parley/internal/api/config"
	"Parley/internal/pkg/consts"
	"Parley/internal/pkg/redis"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrSecretMissing = errors.New("jwt secret 未配置")
	ErrTokenRevoked  = errors.New("token 已注销")
)

func jwtConfig() (config.JWTConfig, error) {
	if config.Cfg == nil || config.Cfg.JWT.Secret == "" {
		return config.JWTConfig{}, ErrSecretMissing
	}
	return config.Cfg.JWT, nil
}

// GenerateToken 生成一个新的 JWT Token
func GenerateToken(userID uint64, roles []string) (string, error) {
	cfg, err := jwtConfig()
	if err != nil {
		return "", err
	}
	expirationTime := time.Now().Add(JWTExpirationTime)

	claims := &UserClaims{
		UserID: userID,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    cfg.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("签名 Token 失败: %w", err)
	}

	return tokenString, nil
}

// ValidateToken 验证 Token 字符串并解析出 Claims
func ValidateToken(tokenString string) (*UserClaims, error) {
	cfg, err := jwtConfig()
	if err != nil {
		return nil, err
	}
	claims := &UserClaims{}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, opts...)

	if err != nil {
		return nil, fmt.Errorf("token 解析失败: %w", err)
	}

	if !token.Valid || claims.UserID == 0 {
		return nil, errors.New("token 无效或已过期")
	}

	return claims, nil
}

// ExtractSignature 从 Token 字符串中提取签名
func ExtractSignature(tokenString string) (string, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return "", errors.New("token 格式不正确")
	}
	return parts[2], nil
}

// Authenticate 校验签名并检查注销黑名单，HTTP 与 WebSocket 入口共用
func Authenticate(ctx context.Context, tokenString string) (*UserClaims, error) {
	signature, err := ExtractSignature(tokenString)
	if err != nil {
		return nil, err
	}

	revoked, err := redis.GetValue(ctx, consts.TokenBlacklistKey+signature)
	if err != nil {
		return nil, err
	}
	if revoked != "" {
		return nil, ErrTokenRevoked
	}

	return ValidateToken(tokenString)
}
