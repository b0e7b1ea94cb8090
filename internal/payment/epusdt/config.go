package epusdt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfigInvalid    = errors.New("epusdt config invalid")
	ErrRequestFailed    = errors.New("epusdt request failed")
	ErrResponseInvalid  = errors.New("epusdt response invalid")
	ErrSignatureInvalid = errors.New("epusdt signature invalid")
)

// 订单状态
const (
	StatusWaiting = 1
	StatusSuccess = 2
	StatusExpired = 3
)

// Config BEpusdt 配置，来自 gateways.epusdt.options
type Config struct {
	GatewayURL     string `json:"gateway_url"` // 如 https://usdt.example.com
	AuthToken      string `json:"auth_token"`
	TradeType      string `json:"trade_type"` // 如 usdt.trc20
	Fiat           string `json:"fiat"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ParseConfig 解析并校验配置
func ParseConfig(raw map[string]interface{}) (*Config, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty config", ErrConfigInvalid)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal config failed", ErrConfigInvalid)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config failed", ErrConfigInvalid)
	}
	cfg.normalize()
	if cfg.GatewayURL == "" {
		return nil, fmt.Errorf("%w: gateway_url is required", ErrConfigInvalid)
	}
	if cfg.AuthToken == "" {
		return nil, fmt.Errorf("%w: auth_token is required", ErrConfigInvalid)
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.GatewayURL = strings.TrimRight(strings.TrimSpace(c.GatewayURL), "/")
	c.AuthToken = strings.TrimSpace(c.AuthToken)
	c.TradeType = strings.ToLower(strings.TrimSpace(c.TradeType))
	if c.TradeType == "" {
		c.TradeType = "usdt.trc20"
	}
	c.Fiat = strings.ToUpper(strings.TrimSpace(c.Fiat))
	if c.Fiat == "" {
		c.Fiat = "CNY"
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 15
	}
}
