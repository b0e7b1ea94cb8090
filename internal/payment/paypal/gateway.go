package paypal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gateflow/internal/constants"
	"github.com/gateflow/internal/models"
	"github.com/gateflow/internal/payment"
)

// Name PayPal 网关名称
const Name = constants.GatewayPaypal

const (
	cancelParam          = "paypal_cancel"
	issueAlreadyCaptured = "ORDER_ALREADY_CAPTURED"
	statusCompleted      = "COMPLETED"
	statusPending        = "PENDING"
)

// Gateway PayPal Orders v2 网关，付款人批准后在核验阶段完成扣款
type Gateway struct {
	cfg      *Config
	messages payment.Messages
	client   *http.Client
	now      func() time.Time

	mu             sync.Mutex
	token          string
	tokenExpiresAt time.Time
}

// New 根据网关选项创建 PayPal 网关
func New(raw map[string]interface{}, messages payment.Messages) (*Gateway, error) {
	cfg, err := ParseConfig(raw)
	if err != nil {
		return nil, err
	}
	return &Gateway{
		cfg:      cfg,
		messages: messages,
		client:   &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		now:      time.Now,
	}, nil
}

// Name 网关名称
func (g *Gateway) Name() string { return Name }

// Request 创建订单，批准与取消都跳回回调地址
func (g *Gateway) Request(ctx context.Context, invoice payment.Invoice) (*payment.RequestResult, error) {
	trackingNumber := strconv.FormatInt(invoice.TrackingNumber, 10)
	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"invoice_id": trackingNumber,
				"amount": map[string]string{
					"currency_code": g.cfg.Currency,
					"value":         invoice.Amount.String(),
				},
				"description": "Payment " + trackingNumber,
			},
		},
		"application_context": g.cfg.applicationContext(invoice.CallbackURL, withQuery(invoice.CallbackURL, cancelParam, "true")),
	}
	raw, err := g.doJSON(ctx, http.MethodPost, "/v2/checkout/orders", payload)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			return payment.RequestFailedWith(apiErr.describe(), invoice.GatewayAccountName), nil
		}
		return nil, err
	}
	orderID := readString(raw, "id")
	approveURL := approveLink(raw)
	if orderID == "" || approveURL == "" {
		return payment.RequestFailedWith(g.messages.InvalidDataReceivedFromGateway, invoice.GatewayAccountName), nil
	}
	result := payment.RequestSucceedWithRedirect(invoice.GatewayAccountName, approveURL)
	result.AdditionalData = map[string]string{
		"order_id": orderID,
		"status":   readString(raw, "status"),
	}
	return result, nil
}

// Fetch 付款人跳回时携带 token=订单号，取消时携带取消标记
func (g *Gateway) Fetch(ctx context.Context, invoiceCtx payment.InvoiceContext) (*payment.FetchResult, error) {
	cb, ok := payment.ResolveCallback(ctx, invoiceCtx, "token", cancelParam)
	if !ok {
		return payment.FetchFailedWith(nil, g.messages.InvalidDataReceivedFromGateway), nil
	}
	orderID := invoiceCtx.RequestData()["order_id"]
	token, _ := cb.Get("token")
	payerID, _ := cb.Get("PayerID")
	params := map[string]string{"order_id": orderID, "token": token, "payer_id": payerID}

	if canceled, _ := cb.Get(cancelParam); strings.EqualFold(canceled, "true") {
		params[cancelParam] = "true"
		return payment.FetchFailedWith(params, g.messages.PaymentFailed), nil
	}
	if orderID == "" || token != orderID {
		return payment.FetchFailedWith(params, g.messages.InvalidDataReceivedFromGateway), nil
	}
	return payment.FetchReady(params), nil
}

// Verify 扣款并核对金额，已扣款的订单改为查询订单详情
func (g *Gateway) Verify(ctx context.Context, invoiceCtx payment.InvoiceContext) (*payment.VerifyResult, error) {
	orderID := invoiceCtx.RequestData()["order_id"]
	if orderID == "" {
		return payment.VerifyFailedWith(g.messages.InvalidDataReceivedFromGateway), nil
	}
	path := "/v2/checkout/orders/" + url.PathEscape(orderID)
	raw, err := g.doJSON(ctx, http.MethodPost, path+"/capture", struct{}{})
	if err != nil {
		var apiErr *apiError
		if !errors.As(err, &apiErr) {
			return nil, err
		}
		if apiErr.Issue != issueAlreadyCaptured {
			return payment.VerifyFailedWith(apiErr.describe()), nil
		}
		if raw, err = g.doJSON(ctx, http.MethodGet, path, nil); err != nil {
			return nil, err
		}
	}

	capture := "purchase_units.0.payments.captures.0."
	captureID := readPath(raw, capture+"id")
	status := strings.ToUpper(readPath(raw, capture+"status"))
	if status != statusCompleted {
		return payment.VerifyFailedWith(g.messages.PaymentFailed), nil
	}
	paid, err := models.ParseMoney(readPath(raw, capture+"amount.value"))
	if err != nil || !paid.Equal(invoiceCtx.Payment.Amount) ||
		!strings.EqualFold(readPath(raw, capture+"amount.currency_code"), g.cfg.Currency) || captureID == "" {
		return payment.VerifyFailedWith(g.messages.InvalidDataReceivedFromGateway), nil
	}
	result := payment.VerifySucceedWith(captureID, g.messages.PaymentSucceed)
	result.AdditionalData = map[string]string{
		"order_id": orderID,
		"payer_id": readString(raw, "payer", "payer_id"),
	}
	return result, nil
}

// Refund 按扣款单号退款
func (g *Gateway) Refund(ctx context.Context, invoiceCtx payment.InvoiceContext, amount models.Money) (*payment.RefundResult, error) {
	captureID := strings.TrimSpace(invoiceCtx.Payment.TransactionCode)
	if captureID == "" {
		return payment.RefundFailedWith(g.messages.InvalidDataReceivedFromGateway), nil
	}
	payload := map[string]interface{}{
		"amount": map[string]string{
			"value":         amount.String(),
			"currency_code": g.cfg.Currency,
		},
		"invoice_id": fmt.Sprintf("%d-R%d", invoiceCtx.Payment.TrackingNumber, invoiceCtx.CountTransactions(constants.TransactionTypeRefund)+1),
	}
	raw, err := g.doJSON(ctx, http.MethodPost, "/v2/payments/captures/"+url.PathEscape(captureID)+"/refund", payload)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			return payment.RefundFailedWith(apiErr.describe()), nil
		}
		return nil, err
	}
	switch status := strings.ToUpper(readString(raw, "status")); status {
	case statusCompleted, statusPending:
		return payment.RefundSucceedWith(g.messages.PaymentSucceed), nil
	default:
		return payment.RefundFailedWith(fmt.Sprintf("paypal refund status %s", status)), nil
	}
}

func readPath(raw map[string]interface{}, path string) string {
	return readString(raw, strings.Split(path, ".")...)
}

func withQuery(rawURL, key, value string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	query := parsed.Query()
	query.Set(key, value)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
