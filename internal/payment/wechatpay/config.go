package wechatpay

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	defaultBaseURL  = "https://api.mch.weixin.qq.com"
	defaultCurrency = "CNY"

	ModeNative = "native"
	ModeH5     = "h5"
)

var (
	ErrConfigInvalid   = errors.New("wechatpay config invalid")
	ErrRequestFailed   = errors.New("wechatpay request failed")
	ErrResponseInvalid = errors.New("wechatpay response invalid")
)

// Config 微信支付 APIv3 配置，来自 gateways.wechatpay.options
type Config struct {
	AppID              string `json:"appid"`
	MerchantID         string `json:"mchid"`
	MerchantSerialNo   string `json:"merchant_serial_no"`
	MerchantPrivateKey string `json:"merchant_private_key"`
	APIV3Key           string `json:"api_v3_key"`
	Mode               string `json:"mode"` // native / h5
	H5RedirectURL      string `json:"h5_redirect_url"`
	H5Type             string `json:"h5_type"`
	H5WapURL           string `json:"h5_wap_url"`
	H5WapName          string `json:"h5_wap_name"`
	ClientIP           string `json:"client_ip"`
	Description        string `json:"description"`
	BaseURL            string `json:"base_url"`
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
	c.MerchantID = strings.TrimSpace(c.MerchantID)
	c.MerchantSerialNo = strings.TrimSpace(c.MerchantSerialNo)
	c.MerchantPrivateKey = strings.TrimSpace(c.MerchantPrivateKey)
	c.APIV3Key = strings.TrimSpace(c.APIV3Key)
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if c.Mode == "" {
		c.Mode = ModeNative
	}
	c.H5RedirectURL = strings.TrimSpace(c.H5RedirectURL)
	c.H5Type = strings.ToUpper(strings.TrimSpace(c.H5Type))
	if c.H5Type == "" {
		c.H5Type = "WAP"
	}
	c.H5WapURL = strings.TrimSpace(c.H5WapURL)
	c.H5WapName = strings.TrimSpace(c.H5WapName)
	c.ClientIP = strings.TrimSpace(c.ClientIP)
	c.Description = strings.TrimSpace(c.Description)
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
}

func (c *Config) validate() error {
	switch {
	case c.AppID == "":
		return fmt.Errorf("%w: appid is required", ErrConfigInvalid)
	case c.MerchantID == "":
		return fmt.Errorf("%w: mchid is required", ErrConfigInvalid)
	case c.MerchantSerialNo == "":
		return fmt.Errorf("%w: merchant_serial_no is required", ErrConfigInvalid)
	case len(c.APIV3Key) != 32:
		return fmt.Errorf("%w: api_v3_key must be 32 chars", ErrConfigInvalid)
	}
	switch c.Mode {
	case ModeNative, ModeH5:
	default:
		return fmt.Errorf("%w: mode %s is not supported", ErrConfigInvalid, c.Mode)
	}
	switch c.H5Type {
	case "WAP", "IOS", "ANDROID":
	default:
		return fmt.Errorf("%w: h5_type is invalid", ErrConfigInvalid)
	}
	for name, value := range map[string]string{
		"base_url":        c.BaseURL,
		"h5_redirect_url": c.H5RedirectURL,
		"h5_wap_url":      c.H5WapURL,
	} {
		if value == "" {
			continue
		}
		if _, err := url.ParseRequestURI(value); err != nil {
			return fmt.Errorf("%w: %s is invalid", ErrConfigInvalid, name)
		}
	}
	if _, err := parsePrivateKey(c.MerchantPrivateKey); err != nil {
		return err
	}
	return nil
}

func (c *Config) endpoint(path string) string {
	return c.BaseURL + path
}
