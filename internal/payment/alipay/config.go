package alipay

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrConfigInvalid    = errors.New("alipay config invalid")
	ErrSignGenerate     = errors.New("alipay sign generate failed")
	ErrRequestFailed    = errors.New("alipay request failed")
	ErrResponseInvalid  = errors.New("alipay response invalid")
	ErrSignatureInvalid = errors.New("alipay signature invalid")
)

const (
	defaultGatewayURL = "https://openapi.alipay.com/gateway.do"

	ModeQR   = "qr"
	ModeWAP  = "wap"
	ModePage = "page"
)

// Config 支付宝开放平台配置，来自 gateways.alipay.options
type Config struct {
	AppID            string `json:"app_id"`
	PrivateKey       string `json:"private_key"`
	AlipayPublicKey  string `json:"alipay_public_key"`
	GatewayURL       string `json:"gateway_url"`
	SignType         string `json:"sign_type"`
	Mode             string `json:"mode"` // qr / wap / page
	QuitURL          string `json:"quit_url"`
	TimeoutExpress   string `json:"timeout_express"`
	AppCertSN        string `json:"app_cert_sn"`
	AlipayRootCertSN string `json:"alipay_root_cert_sn"`
	TimeoutSeconds   int    `json:"timeout_seconds"`
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
	c.AppID = strings.TrimSpace(c.AppID)
	c.PrivateKey = strings.TrimSpace(c.PrivateKey)
	c.AlipayPublicKey = strings.TrimSpace(c.AlipayPublicKey)
	c.GatewayURL = strings.TrimSpace(c.GatewayURL)
	if c.GatewayURL == "" {
		c.GatewayURL = defaultGatewayURL
	}
	c.SignType = strings.ToUpper(strings.TrimSpace(c.SignType))
	if c.SignType == "" {
		c.SignType = "RSA2"
	}
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if c.Mode == "" {
		c.Mode = ModePage
	}
	c.QuitURL = strings.TrimSpace(c.QuitURL)
	c.TimeoutExpress = strings.TrimSpace(c.TimeoutExpress)
	c.AppCertSN = strings.TrimSpace(c.AppCertSN)
	c.AlipayRootCertSN = strings.TrimSpace(c.AlipayRootCertSN)
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 12
	}
}

func (c *Config) validate() error {
	if c.AppID == "" {
		return fmt.Errorf("%w: app_id is required", ErrConfigInvalid)
	}
	if c.SignType != "RSA2" && c.SignType != "RSA" {
		return fmt.Errorf("%w: sign_type is invalid", ErrConfigInvalid)
	}
	switch c.Mode {
	case ModeQR, ModeWAP, ModePage:
	default:
		return fmt.Errorf("%w: mode %s is not supported", ErrConfigInvalid, c.Mode)
	}
	if _, err := url.ParseRequestURI(c.GatewayURL); err != nil {
		return fmt.Errorf("%w: gateway_url is invalid", ErrConfigInvalid)
	}
	if _, err := parsePrivateKey(c.PrivateKey); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	if _, err := parsePublicKey(c.AlipayPublicKey); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	return nil
}

// method 下单接口名
func (c *Config) method() string {
	switch c.Mode {
	case ModeQR:
		return "alipay.trade.precreate"
	case ModeWAP:
		return "alipay.trade.wap.pay"
	default:
		return "alipay.trade.page.pay"
	}
}

func (c *Config) productCode() string {
	switch c.Mode {
	case ModeQR:
		return "FACE_TO_FACE_PAYMENT"
	case ModeWAP:
		return "QUICK_WAP_WAY"
	default:
		return "FAST_INSTANT_TRADE_PAY"
	}
}
