package epusdt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gateflow/internal/constants"
	"github.com/gateflow/internal/models"
	"github.com/gateflow/internal/payment"
)

// Name BEpusdt 网关名称
const Name = constants.GatewayEpusdt

// Gateway BEpusdt 加密货币收款网关
type Gateway struct {
	cfg      *Config
	messages payment.Messages
	client   *http.Client
}

// New 根据网关选项创建 BEpusdt 网关
func New(raw map[string]interface{}, messages payment.Messages) (*Gateway, error) {
	cfg, err := ParseConfig(raw)
	if err != nil {
		return nil, err
	}
	return &Gateway{
		cfg:      cfg,
		messages: messages,
		client:   &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}, nil
}

// Name 网关名称
func (g *Gateway) Name() string { return Name }

type createResponse struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Data       struct {
		TradeID        string `json:"trade_id"`
		OrderID        string `json:"order_id"`
		Amount         string `json:"amount"`
		ActualAmount   string `json:"actual_amount"`
		Token          string `json:"token"`
		ExpirationTime int64  `json:"expiration_time"`
		PaymentURL     string `json:"payment_url"`
	} `json:"data"`
}

// Request 创建收款订单，异步通知与同步跳转都指向回调地址
func (g *Gateway) Request(ctx context.Context, invoice payment.Invoice) (*payment.RequestResult, error) {
	trackingNumber := strconv.FormatInt(invoice.TrackingNumber, 10)
	params := map[string]interface{}{
		"order_id":     trackingNumber,
		"amount":       invoice.Amount.InexactFloat64(),
		"notify_url":   invoice.CallbackURL,
		"redirect_url": invoice.CallbackURL,
		"trade_type":   g.cfg.TradeType,
		"fiat":         g.cfg.Fiat,
		"name":         "Payment " + trackingNumber,
	}
	params["signature"] = Sign(params, g.cfg.AuthToken)

	var resp createResponse
	if err := g.postJSON(ctx, "/api/v1/order/create-transaction", params, &resp); err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		message := strings.TrimSpace(resp.Message)
		if message == "" {
			message = g.messages.PaymentFailed
		}
		return payment.RequestFailedWith(message, invoice.GatewayAccountName), nil
	}
	if resp.Data.PaymentURL == "" {
		return payment.RequestFailedWith(g.messages.InvalidDataReceivedFromGateway, invoice.GatewayAccountName), nil
	}

	result := payment.RequestSucceedWithRedirect(invoice.GatewayAccountName, resp.Data.PaymentURL)
	result.AdditionalData = map[string]string{
		"trade_id":      resp.Data.TradeID,
		"actual_amount": resp.Data.ActualAmount,
		"token":         resp.Data.Token,
	}
	return result, nil
}

func (g *Gateway) postJSON(ctx context.Context, path string, params map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.GatewayURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: http status %d", ErrRequestFailed, resp.StatusCode)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	return nil
}

// Fetch 校验异步通知签名与订单状态
func (g *Gateway) Fetch(ctx context.Context, invoiceCtx payment.InvoiceContext) (*payment.FetchResult, error) {
	params, message := g.checkCallback(ctx, invoiceCtx)
	if message != "" {
		return payment.FetchFailedWith(params, message), nil
	}
	return payment.FetchReady(params), nil
}

// Verify 通知校验通过即视为到账，流水号优先取链上交易哈希
func (g *Gateway) Verify(ctx context.Context, invoiceCtx payment.InvoiceContext) (*payment.VerifyResult, error) {
	params, message := g.checkCallback(ctx, invoiceCtx)
	if message != "" {
		return payment.VerifyFailedWith(message), nil
	}
	code := params["block_transaction_id"]
	if code == "" {
		code = params["trade_id"]
	}
	result := payment.VerifySucceedWith(code, g.messages.PaymentSucceed)
	result.AdditionalData = map[string]string{
		"trade_id":      params["trade_id"],
		"actual_amount": params["actual_amount"],
	}
	return result, nil
}

// Refund 链上收款无法原路退回
func (g *Gateway) Refund(_ context.Context, _ payment.InvoiceContext, _ models.Money) (*payment.RefundResult, error) {
	return payment.RefundFailedWith("epusdt does not support refund"), nil
}

var callbackKeys = []string{
	"trade_id", "order_id", "amount", "actual_amount", "token", "block_transaction_id", "status", "signature",
}

// signedCallback 优先使用带签名的入站通知，付款人同步跳转回来时回退到已保存的通知
func signedCallback(ctx context.Context, invoiceCtx payment.InvoiceContext) (payment.Callback, bool) {
	if cb, ok := payment.CallbackFrom(ctx); ok {
		if signature, _ := cb.Get("signature"); strings.TrimSpace(signature) != "" {
			return cb, true
		}
	}
	return payment.StoredCallback(invoiceCtx)
}

func (g *Gateway) checkCallback(ctx context.Context, invoiceCtx payment.InvoiceContext) (map[string]string, string) {
	cb, ok := signedCallback(ctx, invoiceCtx)
	if !ok {
		return nil, g.messages.InvalidDataReceivedFromGateway
	}
	params := make(map[string]string, len(callbackKeys))
	for _, key := range callbackKeys {
		if value, found := cb.Get(key); found {
			params[key] = strings.TrimSpace(value)
		}
	}

	status, err := strconv.Atoi(params["status"])
	if err != nil {
		return params, g.messages.InvalidDataReceivedFromGateway
	}
	amount, err := strconv.ParseFloat(params["amount"], 64)
	if err != nil {
		return params, g.messages.InvalidDataReceivedFromGateway
	}
	actualAmount, _ := strconv.ParseFloat(params["actual_amount"], 64)
	expected := Sign(map[string]interface{}{
		"trade_id":             params["trade_id"],
		"order_id":             params["order_id"],
		"amount":               amount,
		"actual_amount":        actualAmount,
		"token":                params["token"],
		"block_transaction_id": params["block_transaction_id"],
		"status":               status,
	}, g.cfg.AuthToken)
	if !strings.EqualFold(expected, params["signature"]) {
		return params, g.messages.InvalidDataReceivedFromGateway
	}

	if status != StatusSuccess {
		return params, g.messages.PaymentFailed
	}
	if params["order_id"] != strconv.FormatInt(invoiceCtx.Payment.TrackingNumber, 10) {
		return params, g.messages.InvalidDataReceivedFromGateway
	}
	paid, err := models.ParseMoney(params["amount"])
	if err != nil || !paid.Equal(invoiceCtx.Payment.Amount) {
		return params, g.messages.InvalidDataReceivedFromGateway
	}
	return params, ""
}
