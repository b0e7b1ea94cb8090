package service

import (
	"strings"
	"time"

	"github.com/gateflow/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// MerchantAuthService 商户认证服务
type MerchantAuthService struct {
	cfg      config.MerchantConfig
	accounts map[string]string
}

// NewMerchantAuthService 创建商户认证服务
func NewMerchantAuthService(cfg config.MerchantConfig) *MerchantAuthService {
	accounts := make(map[string]string, len(cfg.Accounts))
	for _, account := range cfg.Accounts {
		name := strings.TrimSpace(account.Name)
		if name == "" || strings.TrimSpace(account.SecretHash) == "" {
			continue
		}
		accounts[name] = account.SecretHash
	}
	return &MerchantAuthService{cfg: cfg, accounts: accounts}
}

// HashSecret 使用 bcrypt 加密商户密钥
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// MerchantClaims 商户 JWT 声明
type MerchantClaims struct {
	Merchant string `json:"merchant"`
	jwt.RegisteredClaims
}

// Login 校验商户凭证并签发 token
func (s *MerchantAuthService) Login(name, secret string) (string, time.Time, error) {
	hash, ok := s.accounts[strings.TrimSpace(name)]
	if !ok {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return s.GenerateJWT(strings.TrimSpace(name))
}

// GenerateJWT 生成商户 token
func (s *MerchantAuthService) GenerateJWT(merchant string) (string, time.Time, error) {
	hours := s.cfg.ExpireHours
	if hours <= 0 {
		hours = 24
	}
	now := time.Now()
	expiresAt := now.Add(time.Duration(hours) * time.Hour)
	claims := MerchantClaims{
		Merchant: merchant,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   merchant,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseJWT 解析商户 token，商户已从配置移除时视为无效
func (s *MerchantAuthService) ParseJWT(tokenString string) (*MerchantClaims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(tokenString, &MerchantClaims{}, func(*jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*MerchantClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if _, known := s.accounts[claims.Merchant]; !known {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
