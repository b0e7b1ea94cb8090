package wechatpay

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gateflow/internal/constants"
	"github.com/gateflow/internal/models"
	"github.com/gateflow/internal/payment"
)

const testCallbackURL = "https://gateflow.example.com/api/v1/payments/callback?paymentToken=abc"

func testOptions(baseURL string) map[string]interface{} {
	return map[string]interface{}{
		"appid":                "wx1234567890",
		"mchid":                "1900000109",
		"merchant_serial_no":   "ABC123456789",
		"merchant_private_key": buildTestPrivateKey(),
		"api_v3_key":           "12345678901234567890123456789012",
		"base_url":             baseURL,
	}
}

func newTestGateway(t *testing.T, options map[string]interface{}) *Gateway {
	t.Helper()
	gw, err := New(context.Background(), options, payment.DefaultMessages())
	if err != nil {
		t.Fatalf("new gateway failed: %v", err)
	}
	return gw
}

func testPayment(t *testing.T) models.Payment {
	t.Helper()
	amount, err := models.ParseMoney("10.50")
	if err != nil {
		t.Fatalf("parse money failed: %v", err)
	}
	return models.Payment{ID: 1, TrackingNumber: 1234, Amount: amount, GatewayName: Name}
}

func TestParseConfigDefaultsAndValidation(t *testing.T) {
	cfg, err := ParseConfig(testOptions(""))
	if err != nil {
		t.Fatalf("parse config failed: %v", err)
	}
	if cfg.BaseURL != defaultBaseURL {
		t.Fatalf("base url should fallback to default, got: %s", cfg.BaseURL)
	}
	if cfg.Mode != ModeNative || cfg.H5Type != "WAP" {
		t.Fatalf("unexpected defaults: mode=%s h5_type=%s", cfg.Mode, cfg.H5Type)
	}

	shortKey := testOptions("")
	shortKey["api_v3_key"] = "short-key"
	if _, err := ParseConfig(shortKey); err == nil {
		t.Fatalf("expected invalid api_v3_key length error")
	}

	badMode := testOptions("")
	badMode["mode"] = "jsapi"
	if _, err := ParseConfig(badMode); err == nil {
		t.Fatalf("expected unsupported mode error")
	}

	badKey := testOptions("")
	badKey["merchant_private_key"] = "not-a-key"
	if _, err := ParseConfig(badKey); err == nil {
		t.Fatalf("expected private key error")
	}
}

func TestRequestNativeReturnsCodeURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v3/pay/transactions/native" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode body failed: %v", err)
		}
		if payload["out_trade_no"] != "1234" {
			t.Errorf("unexpected out_trade_no: %v", payload["out_trade_no"])
		}
		if payload["notify_url"] != testCallbackURL {
			t.Errorf("unexpected notify_url: %v", payload["notify_url"])
		}
		amount, _ := payload["amount"].(map[string]interface{})
		if amount["total"] != float64(1050) || amount["currency"] != "CNY" {
			t.Errorf("unexpected amount: %v", amount)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code_url":"weixin://wxpay/bizpayurl?pr=mocked"}`))
	}))
	defer server.Close()

	gw := newTestGateway(t, testOptions(server.URL))
	record := testPayment(t)
	result, err := gw.Request(context.Background(), payment.Invoice{
		TrackingNumber:     record.TrackingNumber,
		Amount:             record.Amount,
		GatewayName:        Name,
		CallbackURL:        testCallbackURL,
		GatewayAccountName: "default",
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if !result.IsSucceed() {
		t.Fatalf("request should succeed: %+v", result)
	}
	if result.Transporter.Method != constants.TransporterGet || result.Transporter.URL != "weixin://wxpay/bizpayurl?pr=mocked" {
		t.Fatalf("unexpected transporter: %+v", result.Transporter)
	}
	if result.AdditionalData["code_url"] == "" || result.AdditionalData["mode"] != ModeNative {
		t.Fatalf("unexpected additional data: %v", result.AdditionalData)
	}
}

func TestRequestH5RedirectsBackToCallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/pay/transactions/h5" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var payload map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		sceneInfo, _ := payload["scene_info"].(map[string]interface{})
		h5Info, _ := sceneInfo["h5_info"].(map[string]interface{})
		if h5Info["type"] != "WAP" {
			t.Errorf("unexpected h5 info: %v", sceneInfo)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"h5_url":"https://wx.tenpay.com/cgi-bin/mmpayweb-bin/checkmweb?prepay_id=wx123"}`))
	}))
	defer server.Close()

	options := testOptions(server.URL)
	options["mode"] = "H5"
	gw := newTestGateway(t, options)
	record := testPayment(t)
	result, err := gw.Request(context.Background(), payment.Invoice{
		TrackingNumber: record.TrackingNumber,
		Amount:         record.Amount,
		CallbackURL:    testCallbackURL,
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	parsed, err := url.Parse(result.Transporter.URL)
	if err != nil {
		t.Fatalf("parse pay url failed: %v", err)
	}
	if parsed.Query().Get("prepay_id") != "wx123" {
		t.Fatalf("missing prepay_id: %s", result.Transporter.URL)
	}
	if parsed.Query().Get("redirect_url") != testCallbackURL {
		t.Fatalf("redirect_url should default to callback url, got %s", parsed.Query().Get("redirect_url"))
	}
}

func TestRequestBusinessErrorReturnsFailedResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"PARAM_ERROR","message":"out_trade_no is invalid"}`))
	}))
	defer server.Close()

	gw := newTestGateway(t, testOptions(server.URL))
	record := testPayment(t)
	result, err := gw.Request(context.Background(), payment.Invoice{
		TrackingNumber: record.TrackingNumber,
		Amount:         record.Amount,
		CallbackURL:    testCallbackURL,
	})
	if err != nil {
		t.Fatalf("business error should not be returned as error: %v", err)
	}
	if result.IsSucceed() || result.Message != "out_trade_no is invalid" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func newQueryServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v3/pay/transactions/out-trade-no/1234" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("mchid") != "1900000109" {
			t.Errorf("unexpected mchid: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func TestVerifyQueriesOrder(t *testing.T) {
	server := newQueryServer(t, `{"out_trade_no":"1234","transaction_id":"420000001","trade_state":"SUCCESS","success_time":"2026-01-02T15:04:05+08:00","amount":{"total":1050,"currency":"CNY"}}`)
	defer server.Close()

	gw := newTestGateway(t, testOptions(server.URL))
	result, err := gw.Verify(context.Background(), payment.InvoiceContext{Payment: testPayment(t)})
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !result.IsSucceed() || result.TransactionCode != "420000001" {
		t.Fatalf("unexpected verify result: %+v", result)
	}
	if result.AdditionalData["success_time"] == "" {
		t.Fatalf("success_time should be kept")
	}
}

func TestVerifyRejectsUnpaidOrMismatchedOrder(t *testing.T) {
	messages := payment.DefaultMessages()
	cases := []struct {
		name    string
		body    string
		message string
	}{
		{"not paid", `{"out_trade_no":"1234","trade_state":"NOTPAY","amount":{"total":1050}}`, messages.PaymentFailed},
		{"amount mismatch", `{"out_trade_no":"1234","transaction_id":"420000001","trade_state":"SUCCESS","amount":{"total":1}}`, messages.InvalidDataReceivedFromGateway},
		{"unknown state", `{"out_trade_no":"1234","transaction_id":"420000001","trade_state":"WHAT","amount":{"total":1050}}`, messages.InvalidDataReceivedFromGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := newQueryServer(t, tc.body)
			defer server.Close()

			gw := newTestGateway(t, testOptions(server.URL))
			result, err := gw.Verify(context.Background(), payment.InvoiceContext{Payment: testPayment(t)})
			if err != nil {
				t.Fatalf("verify failed: %v", err)
			}
			if result.IsSucceed() || result.Message != tc.message {
				t.Fatalf("unexpected verify result: %+v", result)
			}
		})
	}
}

func TestFetchReturnsQueriedState(t *testing.T) {
	server := newQueryServer(t, `{"out_trade_no":"1234","transaction_id":"420000001","trade_state":"SUCCESS","amount":{"total":1050}}`)
	defer server.Close()

	gw := newTestGateway(t, testOptions(server.URL))
	result, err := gw.Fetch(context.Background(), payment.InvoiceContext{Payment: testPayment(t)})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if !result.IsSucceed() {
		t.Fatalf("fetch should be ready: %+v", result)
	}
	if result.CallbackResult["transaction_id"] != "420000001" || result.CallbackResult["total"] != "1050" {
		t.Fatalf("unexpected callback result: %v", result.CallbackResult)
	}
}

func TestRefundUsesTransactionIDAndSequence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v3/refund/domestic/refunds" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var payload map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["transaction_id"] != "420000001" {
			t.Errorf("unexpected transaction_id: %v", payload["transaction_id"])
		}
		if _, ok := payload["out_trade_no"]; ok {
			t.Errorf("out_trade_no should be omitted when transaction_id is known")
		}
		if payload["out_refund_no"] != "1234-R2" {
			t.Errorf("unexpected out_refund_no: %v", payload["out_refund_no"])
		}
		amount, _ := payload["amount"].(map[string]interface{})
		if amount["refund"] != float64(400) || amount["total"] != float64(1050) {
			t.Errorf("unexpected amount: %v", amount)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"refund_id":"50000001","status":"PROCESSING"}`))
	}))
	defer server.Close()

	gw := newTestGateway(t, testOptions(server.URL))
	record := testPayment(t)
	record.TransactionCode = "420000001"
	invoiceCtx := payment.InvoiceContext{
		Payment: record,
		Transactions: []models.Transaction{
			{Type: constants.TransactionTypeRequest},
			{Type: constants.TransactionTypeVerify},
			{Type: constants.TransactionTypeRefund},
		},
	}
	result, err := gw.Refund(context.Background(), invoiceCtx, models.NewMoney(4))
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if !result.IsSucceed() {
		t.Fatalf("refund should succeed: %+v", result)
	}
}

func TestRefundClosedStatusFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"refund_id":"50000001","status":"CLOSED"}`))
	}))
	defer server.Close()

	gw := newTestGateway(t, testOptions(server.URL))
	result, err := gw.Refund(context.Background(), payment.InvoiceContext{Payment: testPayment(t)}, models.NewMoney(1))
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if result.IsSucceed() {
		t.Fatalf("closed refund should fail")
	}
}

func buildTestPrivateKey() string {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		panic(err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}
