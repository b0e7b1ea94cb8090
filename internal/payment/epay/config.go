package epay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	VersionV1 = "v1"
	VersionV2 = "v2"
)

var (
	ErrConfigInvalid     = errors.New("epay config invalid")
	ErrRequestFailed     = errors.New("epay request failed")
	ErrResponseInvalid   = errors.New("epay response invalid")
	ErrSignatureGenerate = errors.New("epay signature generate failed")
	ErrSignatureInvalid  = errors.New("epay signature invalid")
)

// Config 易支付配置，来自 gateways.epay.options
type Config struct {
	GatewayURL     string `json:"gateway_url"`         // 网关地址
	EpayVersion    string `json:"epay_version"`        // 版本（v1/v2）
	MerchantID     string `json:"merchant_id"`         // 商户号
	MerchantKey    string `json:"merchant_key"`        // 商户密钥（v1）
	PrivateKey     string `json:"private_key"`         // 商户私钥（v2）
	PublicKey      string `json:"platform_public_key"` // 平台公钥（v2）
	SignType       string `json:"sign_type"`
	APIPath        string `json:"api_path"`
	PayType        string `json:"pay_type"` // alipay / wxpay / qqpay
	Method         string `json:"method"`   // v2 method
	Device         string `json:"device"`   // v1 device
	ClientIP       string `json:"client_ip"`
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
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.EpayVersion = strings.ToLower(strings.TrimSpace(c.EpayVersion))
	if c.EpayVersion != VersionV2 {
		c.EpayVersion = VersionV1
	}
	c.SignType = strings.TrimSpace(c.SignType)
	c.APIPath = strings.TrimSpace(c.APIPath)
	if c.EpayVersion == VersionV2 {
		c.SignType = pickFirstNonEmpty(c.SignType, "RSA")
		c.APIPath = pickFirstNonEmpty(c.APIPath, "/api/pay/create")
	} else {
		c.SignType = pickFirstNonEmpty(c.SignType, "MD5")
		c.APIPath = pickFirstNonEmpty(c.APIPath, "/mapi.php")
	}
	c.PayType = pickFirstNonEmpty(strings.ToLower(c.PayType), "alipay")
	c.Method = pickFirstNonEmpty(c.Method, "web")
	c.Device = pickFirstNonEmpty(c.Device, "pc")
	c.ClientIP = pickFirstNonEmpty(c.ClientIP, "127.0.0.1")
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 10
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.GatewayURL) == "" {
		return fmt.Errorf("%w: gateway_url is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(c.MerchantID) == "" {
		return fmt.Errorf("%w: merchant_id is required", ErrConfigInvalid)
	}
	switch c.PayType {
	case "alipay", "wxpay", "qqpay":
	default:
		return fmt.Errorf("%w: unsupported pay_type %s", ErrConfigInvalid, c.PayType)
	}
	if c.EpayVersion == VersionV2 {
		if strings.TrimSpace(c.PrivateKey) == "" || strings.TrimSpace(c.PublicKey) == "" {
			return fmt.Errorf("%w: private_key and platform_public_key are required for v2", ErrConfigInvalid)
		}
		return nil
	}
	if strings.TrimSpace(c.MerchantKey) == "" {
		return fmt.Errorf("%w: merchant_key is required for v1", ErrConfigInvalid)
	}
	return nil
}

func (c *Config) endpoint() string {
	base := strings.TrimRight(strings.TrimSpace(c.GatewayURL), "/")
	return base + "/" + strings.TrimLeft(c.APIPath, "/")
}

func pickFirstNonEmpty(values ...string) string {
	for _, val := range values {
		if trimmed := strings.TrimSpace(val); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
