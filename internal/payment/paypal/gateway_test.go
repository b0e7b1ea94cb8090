package paypal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/gateflow/internal/constants"
	"github.com/gateflow/internal/models"
	"github.com/gateflow/internal/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testCallbackURL = "https://gateflow.example.com/api/v1/payments/callback?paymentToken=abc"
	testOrderID     = "5O190127TN364715T"
)

type mockPayPal struct {
	*httptest.Server
	tokenCalls atomic.Int32
	mux        *http.ServeMux
}

func newMockPayPal(t *testing.T) *mockPayPal {
	t.Helper()
	m := &mockPayPal{mux: http.NewServeMux()}
	m.mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		m.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)
		_, _ = w.Write([]byte(`{"access_token":"A21AA","token_type":"Bearer","expires_in":32400}`))
	})
	m.Server = httptest.NewServer(m.mux)
	t.Cleanup(m.Close)
	return m
}

func (m *mockPayPal) handle(pattern string, status int, body string) {
	m.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer A21AA" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func newTestGateway(t *testing.T, baseURL string) *Gateway {
	t.Helper()
	gw, err := New(map[string]interface{}{
		"client_id":     "client-id",
		"client_secret": "client-secret",
		"base_url":      baseURL,
	}, payment.DefaultMessages())
	require.NoError(t, err)
	return gw
}

func testInvoiceContext(t *testing.T) payment.InvoiceContext {
	t.Helper()
	amount, err := models.ParseMoney("10.50")
	require.NoError(t, err)
	return payment.InvoiceContext{
		Payment: models.Payment{ID: 1, TrackingNumber: 1234, Amount: amount, GatewayName: Name},
		Transactions: []models.Transaction{
			{Type: constants.TransactionTypeRequest, AdditionalData: `{"status":"succeed","additional_data":{"order_id":"` + testOrderID + `"}}`},
		},
	}
}

const capturedOrder = `{"id":"` + testOrderID + `","status":"COMPLETED","payer":{"payer_id":"QYR5Z8XDVJNXQ"},
"purchase_units":[{"payments":{"captures":[{"id":"3C679366HH908993F","status":"COMPLETED","amount":{"currency_code":"USD","value":"10.50"}}]}}]}`

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig(map[string]interface{}{"client_id": "id", "client_secret": "secret"})
	require.NoError(t, err)
	assert.Equal(t, defaultSandboxBaseURL, cfg.BaseURL)
	assert.Equal(t, "USD", cfg.Currency)
	assert.Equal(t, "PAY_NOW", cfg.UserAction)

	_, err = ParseConfig(map[string]interface{}{"client_id": "id"})
	require.ErrorIs(t, err, ErrConfigInvalid)
}

func TestRequestCreatesOrder(t *testing.T) {
	m := newMockPayPal(t)
	m.mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "CAPTURE", payload["intent"])
		appCtx, _ := payload["application_context"].(map[string]interface{})
		assert.Equal(t, testCallbackURL, appCtx["return_url"])
		cancelURL, err := url.Parse(appCtx["cancel_url"].(string))
		require.NoError(t, err)
		assert.Equal(t, "true", cancelURL.Query().Get(cancelParam))
		assert.Equal(t, "abc", cancelURL.Query().Get("paymentToken"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"` + testOrderID + `","status":"CREATED","links":[{"href":"https://www.sandbox.paypal.com/checkoutnow?token=` + testOrderID + `","rel":"approve","method":"GET"}]}`))
	})

	gw := newTestGateway(t, m.URL)
	invoiceCtx := testInvoiceContext(t)
	result, err := gw.Request(context.Background(), payment.Invoice{
		TrackingNumber: 1234,
		Amount:         invoiceCtx.Payment.Amount,
		CallbackURL:    testCallbackURL,
	})
	require.NoError(t, err)
	require.True(t, result.IsSucceed())
	assert.Contains(t, result.Transporter.URL, "checkoutnow?token="+testOrderID)
	assert.Equal(t, testOrderID, result.AdditionalData["order_id"])
}

func TestFetchMatchesApprovedOrder(t *testing.T) {
	gw := newTestGateway(t, "https://api-m.sandbox.paypal.com")
	invoiceCtx := testInvoiceContext(t)
	messages := payment.DefaultMessages()

	approved := payment.WithCallback(context.Background(), payment.Callback{"token": testOrderID, "PayerID": "QYR5Z8XDVJNXQ", "paymentToken": "abc"})
	result, err := gw.Fetch(approved, invoiceCtx)
	require.NoError(t, err)
	assert.True(t, result.IsSucceed())
	assert.Equal(t, "QYR5Z8XDVJNXQ", result.CallbackResult["payer_id"])

	other := payment.WithCallback(context.Background(), payment.Callback{"token": "OTHER"})
	result, err = gw.Fetch(other, invoiceCtx)
	require.NoError(t, err)
	assert.Equal(t, messages.InvalidDataReceivedFromGateway, result.Message)

	canceled := payment.WithCallback(context.Background(), payment.Callback{"token": testOrderID, cancelParam: "true"})
	result, err = gw.Fetch(canceled, invoiceCtx)
	require.NoError(t, err)
	assert.Equal(t, messages.PaymentFailed, result.Message)
}

func TestVerifyCapturesOrderAndCachesToken(t *testing.T) {
	m := newMockPayPal(t)
	m.handle("/v2/checkout/orders/"+testOrderID+"/capture", http.StatusCreated, capturedOrder)

	gw := newTestGateway(t, m.URL)
	for i := 0; i < 2; i++ {
		result, err := gw.Verify(context.Background(), testInvoiceContext(t))
		require.NoError(t, err)
		require.True(t, result.IsSucceed(), result.Message)
		assert.Equal(t, "3C679366HH908993F", result.TransactionCode)
		assert.Equal(t, "QYR5Z8XDVJNXQ", result.AdditionalData["payer_id"])
	}
	assert.Equal(t, int32(1), m.tokenCalls.Load())
}

func TestVerifyAlreadyCapturedFallsBackToOrderDetails(t *testing.T) {
	m := newMockPayPal(t)
	m.handle("/v2/checkout/orders/"+testOrderID+"/capture", http.StatusUnprocessableEntity,
		`{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"ORDER_ALREADY_CAPTURED"}],"message":"The requested action could not be performed"}`)
	m.handle("/v2/checkout/orders/"+testOrderID, http.StatusOK, capturedOrder)

	gw := newTestGateway(t, m.URL)
	result, err := gw.Verify(context.Background(), testInvoiceContext(t))
	require.NoError(t, err)
	require.True(t, result.IsSucceed(), result.Message)
	assert.Equal(t, "3C679366HH908993F", result.TransactionCode)
}

func TestVerifyRejectsUnapprovedOrder(t *testing.T) {
	m := newMockPayPal(t)
	m.handle("/v2/checkout/orders/"+testOrderID+"/capture", http.StatusUnprocessableEntity,
		`{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"ORDER_NOT_APPROVED"}]}`)

	gw := newTestGateway(t, m.URL)
	result, err := gw.Verify(context.Background(), testInvoiceContext(t))
	require.NoError(t, err)
	assert.False(t, result.IsSucceed())
	assert.Equal(t, "ORDER_NOT_APPROVED", result.Message)
}

func TestVerifyRejectsAmountMismatch(t *testing.T) {
	m := newMockPayPal(t)
	m.handle("/v2/checkout/orders/"+testOrderID+"/capture", http.StatusCreated,
		`{"id":"`+testOrderID+`","status":"COMPLETED","purchase_units":[{"payments":{"captures":[{"id":"C1","status":"COMPLETED","amount":{"currency_code":"USD","value":"1.00"}}]}}]}`)

	gw := newTestGateway(t, m.URL)
	result, err := gw.Verify(context.Background(), testInvoiceContext(t))
	require.NoError(t, err)
	assert.Equal(t, payment.DefaultMessages().InvalidDataReceivedFromGateway, result.Message)
}

func TestRefundCapture(t *testing.T) {
	m := newMockPayPal(t)
	m.mux.HandleFunc("/v2/payments/captures/3C679366HH908993F/refund", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		amount, _ := payload["amount"].(map[string]interface{})
		assert.Equal(t, "4.00", amount["value"])
		assert.Equal(t, "1234-R1", payload["invoice_id"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"1JU08902781691411","status":"COMPLETED"}`))
	})

	gw := newTestGateway(t, m.URL)
	invoiceCtx := testInvoiceContext(t)
	invoiceCtx.Payment.TransactionCode = "3C679366HH908993F"
	result, err := gw.Refund(context.Background(), invoiceCtx, models.NewMoney(4))
	require.NoError(t, err)
	assert.True(t, result.IsSucceed())

	invoiceCtx.Payment.TransactionCode = ""
	result, err = gw.Refund(context.Background(), invoiceCtx, models.NewMoney(4))
	require.NoError(t, err)
	assert.False(t, result.IsSucceed())
}
