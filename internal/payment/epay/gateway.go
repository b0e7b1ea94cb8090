package epay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gateflow/internal/constants"
	"github.com/gateflow/internal/models"
	"github.com/gateflow/internal/payment"
)

// Name 易支付网关名称
const Name = constants.GatewayEpay

const tradeStatusSuccess = "TRADE_SUCCESS"

// callbackKeys 易支付回调参与签名的字段，其余参数（如支付令牌）不参与校验
var callbackKeys = []string{
	"pid", "trade_no", "out_trade_no", "api_trade_no", "type", "name",
	"money", "trade_status", "param", "buyer", "timestamp", "sign", "sign_type",
}

// Gateway 易支付网关
type Gateway struct {
	cfg      *Config
	messages payment.Messages
	client   *http.Client
}

// New 根据网关选项创建易支付网关
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
	Code    json.Number `json:"code"`
	Msg     string      `json:"msg"`
	TradeNo string      `json:"trade_no"`
	PayURL  string      `json:"payurl"`
	QRCode  string      `json:"qrcode"`
	PayInfo string      `json:"pay_info"`
}

// Request 调用易支付下单接口，返回跳转地址
func (g *Gateway) Request(ctx context.Context, invoice payment.Invoice) (*payment.RequestResult, error) {
	params := g.createParams(invoice)
	sign, err := g.cfg.sign(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureGenerate, err)
	}
	params["sign"] = sign
	params["sign_type"] = g.cfg.SignType

	resp, err := g.postForm(ctx, params)
	if err != nil {
		return nil, err
	}
	if code := resp.Code.String(); code != "1" && code != "0" {
		return payment.RequestFailedWith(pickFirstNonEmpty(resp.Msg, g.messages.PaymentFailed), invoice.GatewayAccountName), nil
	}
	target := pickFirstNonEmpty(resp.PayURL, resp.PayInfo, resp.QRCode)
	if target == "" {
		return payment.RequestFailedWith(g.messages.InvalidDataReceivedFromGateway, invoice.GatewayAccountName), nil
	}

	result := payment.RequestSucceedWithRedirect(invoice.GatewayAccountName, target)
	result.AdditionalData = map[string]string{"trade_no": resp.TradeNo}
	if resp.QRCode != "" {
		result.AdditionalData["qrcode"] = resp.QRCode
	}
	return result, nil
}

func (g *Gateway) createParams(invoice payment.Invoice) map[string]string {
	trackingNumber := strconv.FormatInt(invoice.TrackingNumber, 10)
	params := map[string]string{
		"out_trade_no": trackingNumber,
		"notify_url":   invoice.CallbackURL,
		"return_url":   invoice.CallbackURL,
		"name":         "Payment " + trackingNumber,
		"money":        invoice.Amount.StringFixed(2),
		"clientip":     g.cfg.ClientIP,
		"type":         g.cfg.PayType,
		"pid":          g.cfg.MerchantID,
	}
	if g.cfg.EpayVersion == VersionV2 {
		params["method"] = g.cfg.Method
		params["timestamp"] = strconv.FormatInt(time.Now().Unix(), 10)
	} else {
		params["device"] = g.cfg.Device
	}
	return params
}

func (g *Gateway) postForm(ctx context.Context, params map[string]string) (*createResponse, error) {
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.endpoint(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: http status %d", ErrRequestFailed, resp.StatusCode)
	}
	var parsed createResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	return &parsed, nil
}

// Fetch 校验回调签名与交易状态
func (g *Gateway) Fetch(ctx context.Context, invoiceCtx payment.InvoiceContext) (*payment.FetchResult, error) {
	params, message := g.checkCallback(ctx, invoiceCtx)
	if message != "" {
		return payment.FetchFailedWith(params, message), nil
	}
	return payment.FetchReady(params), nil
}

// Verify 回调校验通过即视为支付成功，流水号取 trade_no
func (g *Gateway) Verify(ctx context.Context, invoiceCtx payment.InvoiceContext) (*payment.VerifyResult, error) {
	params, message := g.checkCallback(ctx, invoiceCtx)
	if message != "" {
		return payment.VerifyFailedWith(message), nil
	}
	result := payment.VerifySucceedWith(params["trade_no"], g.messages.PaymentSucceed)
	result.AdditionalData = map[string]string{"type": params["type"]}
	return result, nil
}

// Refund 易支付标准接口不提供退款
func (g *Gateway) Refund(_ context.Context, _ payment.InvoiceContext, _ models.Money) (*payment.RefundResult, error) {
	return payment.RefundFailedWith("epay does not support refund"), nil
}

func (g *Gateway) checkCallback(ctx context.Context, invoiceCtx payment.InvoiceContext) (map[string]string, string) {
	cb, ok := payment.ResolveCallback(ctx, invoiceCtx, "sign", "trade_status")
	if !ok {
		return nil, g.messages.InvalidDataReceivedFromGateway
	}
	params := make(map[string]string, len(callbackKeys))
	for _, key := range callbackKeys {
		if value, found := cb.Get(key); found {
			params[key] = value
		}
	}
	if err := g.cfg.verify(params); err != nil {
		return params, g.messages.InvalidDataReceivedFromGateway
	}
	if params["trade_status"] != tradeStatusSuccess {
		return params, g.messages.PaymentFailed
	}
	if params["out_trade_no"] != strconv.FormatInt(invoiceCtx.Payment.TrackingNumber, 10) {
		return params, g.messages.InvalidDataReceivedFromGateway
	}
	paid, err := models.ParseMoney(params["money"])
	if err != nil || !paid.Equal(invoiceCtx.Payment.Amount) {
		return params, g.messages.InvalidDataReceivedFromGateway
	}
	return params, ""
}
