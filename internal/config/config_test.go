package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestDecodeDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg, err := decode(v)
	if err != nil {
		t.Fatalf("decode defaults failed: %v", err)
	}
	if cfg.Payment.MinTrackingNumber != 1000 {
		t.Fatalf("min tracking number want 1000 got %d", cfg.Payment.MinTrackingNumber)
	}
	if cfg.Payment.TokenQueryName != "paymentToken" {
		t.Fatalf("token query name want paymentToken got %s", cfg.Payment.TokenQueryName)
	}
	if cfg.Payment.Virtual.GatewayPath != "/virtual-gateway" {
		t.Fatalf("virtual gateway path want /virtual-gateway got %s", cfg.Payment.Virtual.GatewayPath)
	}
	if cfg.Gateways == nil {
		t.Fatalf("gateways map should not be nil")
	}
	if cfg.Queue.Queues["critical"] != 5 {
		t.Fatalf("critical queue weight want 5 got %d", cfg.Queue.Queues["critical"])
	}
}

func TestDecodeGatewaysFromYAML(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	raw := `
gateways:
  epay:
    enabled: true
    account: shop-main
    options:
      gateway_url: https://pay.example.com
      merchant_id: "1001"
      merchant_key: secret
merchant:
  accounts:
    - name: shop
      secret_hash: "$2a$10$abc"
`
	if err := v.ReadConfig(strings.NewReader(raw)); err != nil {
		t.Fatalf("read config failed: %v", err)
	}
	cfg, err := decode(v)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	gw, ok := cfg.Gateways["epay"]
	if !ok || !gw.Enabled {
		t.Fatalf("epay gateway should be enabled: %+v", cfg.Gateways)
	}
	if gw.Account != "shop-main" {
		t.Fatalf("account want shop-main got %s", gw.Account)
	}
	if gw.Options["merchant_id"] != "1001" {
		t.Fatalf("merchant_id option want 1001 got %v", gw.Options["merchant_id"])
	}
	if len(cfg.Merchant.Accounts) != 1 || cfg.Merchant.Accounts[0].Name != "shop" {
		t.Fatalf("merchant accounts not decoded: %+v", cfg.Merchant.Accounts)
	}
}
