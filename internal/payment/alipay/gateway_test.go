package alipay

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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCallbackURL = "https://gateflow.example.com/api/v1/payments/callback?paymentToken=abc"

type keyPair struct {
	private string
	public  string
}

func newKeyPair(t *testing.T) keyPair {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	privateDER, err := x509.MarshalPKCS8PrivateKey(privateKey)
	require.NoError(t, err)
	publicDER, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	require.NoError(t, err)
	return keyPair{
		private: string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privateDER})),
		public:  string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})),
	}
}

type fixture struct {
	gateway  *Gateway
	merchant keyPair
	platform keyPair
}

func newFixture(t *testing.T, gatewayURL, mode string) fixture {
	t.Helper()
	merchant := newKeyPair(t)
	platform := newKeyPair(t)
	gw, err := New(map[string]interface{}{
		"app_id":            "2026000000000000",
		"private_key":       merchant.private,
		"alipay_public_key": platform.public,
		"gateway_url":       gatewayURL,
		"mode":              mode,
	}, payment.DefaultMessages(), "paymentToken")
	require.NoError(t, err)
	return fixture{gateway: gw, merchant: merchant, platform: platform}
}

func testPayment(t *testing.T) models.Payment {
	t.Helper()
	amount, err := models.ParseMoney("10.50")
	require.NoError(t, err)
	return models.Payment{ID: 1, TrackingNumber: 1234, Amount: amount, GatewayName: Name}
}

func formParams(t *testing.T, r *http.Request) map[string]string {
	t.Helper()
	require.NoError(t, r.ParseForm())
	params := map[string]string{}
	for key := range r.PostForm {
		params[key] = r.PostForm.Get(key)
	}
	return params
}

func bizContent(t *testing.T, params map[string]string) map[string]interface{} {
	t.Helper()
	var biz map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(params["biz_content"]), &biz))
	return biz
}

func TestParseConfigValidation(t *testing.T) {
	keys := newKeyPair(t)
	cfg, err := ParseConfig(map[string]interface{}{
		"app_id":            "2026000000000000",
		"private_key":       keys.private,
		"alipay_public_key": keys.public,
		"sign_type":         "rsa2",
	})
	require.NoError(t, err)
	assert.Equal(t, "RSA2", cfg.SignType)
	assert.Equal(t, ModePage, cfg.Mode)
	assert.Equal(t, defaultGatewayURL, cfg.GatewayURL)

	_, err = ParseConfig(map[string]interface{}{
		"app_id":            "2026000000000000",
		"private_key":       keys.private,
		"alipay_public_key": keys.public,
		"mode":              "app",
	})
	require.ErrorIs(t, err, ErrConfigInvalid)

	_, err = ParseConfig(map[string]interface{}{"app_id": "2026000000000000", "private_key": "k", "alipay_public_key": "p"})
	require.ErrorIs(t, err, ErrConfigInvalid)
}

func TestRequestPageBuildsSignedURL(t *testing.T) {
	f := newFixture(t, "https://openapi.alipay.com/gateway.do", ModePage)
	record := testPayment(t)
	result, err := f.gateway.Request(context.Background(), payment.Invoice{
		TrackingNumber:     record.TrackingNumber,
		Amount:             record.Amount,
		CallbackURL:        testCallbackURL,
		GatewayAccountName: "default",
	})
	require.NoError(t, err)
	require.True(t, result.IsSucceed())
	assert.Equal(t, constants.TransporterGet, result.Transporter.Method)

	parsed, err := url.Parse(result.Transporter.URL)
	require.NoError(t, err)
	query := parsed.Query()
	assert.Equal(t, "alipay.trade.page.pay", query.Get("method"))
	assert.Equal(t, testCallbackURL, query.Get("return_url"))
	assert.Equal(t, testCallbackURL, query.Get("notify_url"))

	params := map[string]string{}
	for key := range query {
		params[key] = query.Get(key)
	}
	biz := bizContent(t, params)
	assert.Equal(t, "1234", biz["out_trade_no"])
	assert.Equal(t, "10.50", biz["total_amount"])
	require.NoError(t, verifyContent(buildSignContent(params), params["sign"], f.merchant.public, "RSA2"))
}

func TestRequestQRUsesPrecreate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := formParams(t, r)
		assert.Equal(t, "alipay.trade.precreate", params["method"])
		assert.Equal(t, "FACE_TO_FACE_PAYMENT", bizContent(t, params)["product_code"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"alipay_trade_precreate_response":{"code":"10000","msg":"Success","out_trade_no":"1234","qr_code":"https://qr.alipay.com/bax1234"},"sign":"x"}`))
	}))
	defer server.Close()

	f := newFixture(t, server.URL, ModeQR)
	record := testPayment(t)
	result, err := f.gateway.Request(context.Background(), payment.Invoice{TrackingNumber: 1234, Amount: record.Amount, CallbackURL: testCallbackURL})
	require.NoError(t, err)
	require.True(t, result.IsSucceed())
	assert.Equal(t, "https://qr.alipay.com/bax1234", result.Transporter.URL)
	assert.Equal(t, "https://qr.alipay.com/bax1234", result.AdditionalData["qr_code"])
}

func TestRequestQRBusinessError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"alipay_trade_precreate_response":{"code":"40004","msg":"Business Failed","sub_code":"ACQ.INVALID_PARAMETER","sub_msg":"参数无效"}}`))
	}))
	defer server.Close()

	f := newFixture(t, server.URL, ModeQR)
	record := testPayment(t)
	result, err := f.gateway.Request(context.Background(), payment.Invoice{TrackingNumber: 1234, Amount: record.Amount})
	require.NoError(t, err)
	assert.False(t, result.IsSucceed())
	assert.Equal(t, "参数无效", result.Message)
}

func signedNotify(t *testing.T, f fixture, status string) payment.Callback {
	t.Helper()
	params := map[string]string{
		"notify_id":    "notify-1",
		"notify_type":  "trade_status_sync",
		"out_trade_no": "1234",
		"trade_no":     "2026010222001",
		"trade_status": status,
		"total_amount": "10.50",
	}
	sign, err := signContent(buildSignContent(params), f.platform.private, "RSA2")
	require.NoError(t, err)
	cb := payment.Callback{"sign": sign, "sign_type": "RSA2", "paymentToken": "abc"}
	for key, value := range params {
		cb[key] = value
	}
	return cb
}

func TestFetchVerifiesNotifySignature(t *testing.T) {
	f := newFixture(t, "https://openapi.alipay.com/gateway.do", ModePage)
	invoiceCtx := payment.InvoiceContext{Payment: testPayment(t)}
	messages := payment.DefaultMessages()

	result, err := f.gateway.Fetch(payment.WithCallback(context.Background(), signedNotify(t, f, tradeStatusSuccess)), invoiceCtx)
	require.NoError(t, err)
	assert.True(t, result.IsSucceed(), result.Message)

	tampered := signedNotify(t, f, tradeStatusSuccess)
	tampered["total_amount"] = "0.01"
	result, err = f.gateway.Fetch(payment.WithCallback(context.Background(), tampered), invoiceCtx)
	require.NoError(t, err)
	assert.Equal(t, messages.InvalidDataReceivedFromGateway, result.Message)

	waiting := signedNotify(t, f, "WAIT_BUYER_PAY")
	result, err = f.gateway.Fetch(payment.WithCallback(context.Background(), waiting), invoiceCtx)
	require.NoError(t, err)
	assert.Equal(t, messages.PaymentFailed, result.Message)
}

func newQueryServer(t *testing.T, node string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := formParams(t, r)
		assert.Equal(t, "alipay.trade.query", params["method"])
		assert.Equal(t, "1234", bizContent(t, params)["out_trade_no"])
		_, _ = w.Write([]byte(`{"alipay_trade_query_response":` + node + `}`))
	}))
}

func TestVerifyQueriesTrade(t *testing.T) {
	server := newQueryServer(t, `{"code":"10000","out_trade_no":"1234","trade_no":"2026010222001","trade_status":"TRADE_SUCCESS","total_amount":"10.50"}`)
	defer server.Close()

	f := newFixture(t, server.URL, ModePage)
	result, err := f.gateway.Verify(context.Background(), payment.InvoiceContext{Payment: testPayment(t)})
	require.NoError(t, err)
	require.True(t, result.IsSucceed())
	assert.Equal(t, "2026010222001", result.TransactionCode)
}

func TestVerifyRejectsMismatchedAmount(t *testing.T) {
	server := newQueryServer(t, `{"code":"10000","out_trade_no":"1234","trade_no":"2026010222001","trade_status":"TRADE_SUCCESS","total_amount":"1.00"}`)
	defer server.Close()

	f := newFixture(t, server.URL, ModePage)
	result, err := f.gateway.Verify(context.Background(), payment.InvoiceContext{Payment: testPayment(t)})
	require.NoError(t, err)
	assert.False(t, result.IsSucceed())
	assert.Equal(t, payment.DefaultMessages().InvalidDataReceivedFromGateway, result.Message)
}

func TestVerifyTradeNotExist(t *testing.T) {
	server := newQueryServer(t, `{"code":"40004","sub_code":"ACQ.TRADE_NOT_EXIST","sub_msg":"交易不存在"}`)
	defer server.Close()

	f := newFixture(t, server.URL, ModePage)
	result, err := f.gateway.Verify(context.Background(), payment.InvoiceContext{Payment: testPayment(t)})
	require.NoError(t, err)
	assert.False(t, result.IsSucceed())
	assert.Equal(t, "交易不存在", result.Message)
}

func TestRefundSendsRequestNumber(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := formParams(t, r)
		assert.Equal(t, "alipay.trade.refund", params["method"])
		biz := bizContent(t, params)
		assert.Equal(t, "4.00", biz["refund_amount"])
		assert.Equal(t, "1234-R1", biz["out_request_no"])
		_, _ = w.Write([]byte(`{"alipay_trade_refund_response":{"code":"10000","fund_change":"Y","refund_fee":"4.00"}}`))
	}))
	defer server.Close()

	f := newFixture(t, server.URL, ModePage)
	result, err := f.gateway.Refund(context.Background(), payment.InvoiceContext{Payment: testPayment(t)}, models.NewMoney(4))
	require.NoError(t, err)
	assert.True(t, result.IsSucceed())
}
