package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gateflow/internal/constants"
	"github.com/gateflow/internal/models"
	"github.com/gateflow/internal/payment"
)

// Name Stripe 网关名称
const Name = constants.GatewayStripe

// cancelParam 付款人取消时 cancel_url 上携带的标记
const cancelParam = "stripe_cancel"

// Gateway Stripe Checkout 网关，支付结论以查询 Checkout Session 为准
type Gateway struct {
	cfg      *Config
	messages payment.Messages
	client   *http.Client
}

// New 根据网关选项创建 Stripe 网关
func New(raw map[string]interface{}, messages payment.Messages) (*Gateway, error) {
	cfg, err := ParseConfig(raw)
	if err != nil {
		return nil, err
	}
	return &Gateway{cfg: cfg, messages: messages, client: newHTTPClient(cfg.TimeoutSeconds)}, nil
}

// Name 网关名称
func (g *Gateway) Name() string { return Name }

// Request 创建 Checkout Session 并引导付款人跳转到收银台
func (g *Gateway) Request(ctx context.Context, invoice payment.Invoice) (*payment.RequestResult, error) {
	minor, err := toMinorAmount(invoice.Amount.Decimal, g.cfg.Currency)
	if err != nil {
		return payment.RequestFailedWith(err.Error(), invoice.GatewayAccountName), nil
	}
	trackingNumber := strconv.FormatInt(invoice.TrackingNumber, 10)
	productName := g.cfg.ProductName
	if productName == "" {
		productName = "Payment " + trackingNumber
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", invoice.CallbackURL)
	form.Set("cancel_url", withQuery(invoice.CallbackURL, cancelParam, "true"))
	form.Set("client_reference_id", trackingNumber)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(g.cfg.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(minor, 10))
	form.Set("line_items[0][price_data][product_data][name]", productName)
	form.Set("metadata[tracking_number]", trackingNumber)
	form.Set("payment_intent_data[metadata][tracking_number]", trackingNumber)
	for _, pmType := range g.cfg.PaymentMethodTypes {
		form.Add("payment_method_types[]", pmType)
	}

	raw, err := g.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, "")
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			return payment.RequestFailedWith(apiErr.describe(), invoice.GatewayAccountName), nil
		}
		return nil, err
	}
	sessionID := readString(raw, "id")
	checkoutURL := readString(raw, "url")
	if sessionID == "" || checkoutURL == "" {
		return payment.RequestFailedWith(g.messages.InvalidDataReceivedFromGateway, invoice.GatewayAccountName), nil
	}
	result := payment.RequestSucceedWithRedirect(invoice.GatewayAccountName, checkoutURL)
	result.AdditionalData = map[string]string{
		"session_id": sessionID,
		"status":     readString(raw, "status"),
	}
	return result, nil
}

// Fetch 付款人跳回或 webhook 到达后查询 Session，未付款视为失败
func (g *Gateway) Fetch(ctx context.Context, invoiceCtx payment.InvoiceContext) (*payment.FetchResult, error) {
	if cb, ok := payment.ResolveCallback(ctx, invoiceCtx, cancelParam); ok {
		if canceled, _ := cb.Get(cancelParam); strings.EqualFold(canceled, "true") {
			return payment.FetchFailedWith(map[string]string{cancelParam: "true"}, g.messages.PaymentFailed), nil
		}
	}
	sessionID := invoiceCtx.RequestData()["session_id"]
	if sessionID == "" {
		return payment.FetchFailedWith(nil, g.messages.InvalidDataReceivedFromGateway), nil
	}
	session, err := g.retrieveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	params := session.callbackResult()
	if message := g.checkSession(session, invoiceCtx.Payment, false); message != "" {
		return payment.FetchFailedWith(params, message), nil
	}
	return payment.FetchReady(params), nil
}

// Verify 查询 Session 确认已付款且金额币种一致，流水号取 PaymentIntent
func (g *Gateway) Verify(ctx context.Context, invoiceCtx payment.InvoiceContext) (*payment.VerifyResult, error) {
	sessionID := invoiceCtx.RequestData()["session_id"]
	if sessionID == "" {
		return payment.VerifyFailedWith(g.messages.InvalidDataReceivedFromGateway), nil
	}
	session, err := g.retrieveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if message := g.checkSession(session, invoiceCtx.Payment, true); message != "" {
		return payment.VerifyFailedWith(message), nil
	}
	transactionCode := session.PaymentIntentID
	if transactionCode == "" {
		transactionCode = session.ID
	}
	result := payment.VerifySucceedWith(transactionCode, g.messages.PaymentSucceed)
	result.AdditionalData = map[string]string{
		"session_id":     session.ID,
		"payment_status": session.PaymentStatus,
	}
	return result, nil
}

// Refund 按 PaymentIntent 退款，退款序号同时作为幂等键
func (g *Gateway) Refund(ctx context.Context, invoiceCtx payment.InvoiceContext, amount models.Money) (*payment.RefundResult, error) {
	paymentIntentID := strings.TrimSpace(invoiceCtx.Payment.TransactionCode)
	if !strings.HasPrefix(paymentIntentID, "pi_") {
		return payment.RefundFailedWith(g.messages.InvalidDataReceivedFromGateway), nil
	}
	minor, err := toMinorAmount(amount.Decimal, g.cfg.Currency)
	if err != nil {
		return payment.RefundFailedWith(err.Error()), nil
	}
	refundNo := fmt.Sprintf("%d-R%d", invoiceCtx.Payment.TrackingNumber, invoiceCtx.CountTransactions(constants.TransactionTypeRefund)+1)
	form := url.Values{}
	form.Set("payment_intent", paymentIntentID)
	form.Set("amount", strconv.FormatInt(minor, 10))
	form.Set("metadata[refund_no]", refundNo)

	raw, err := g.do(ctx, http.MethodPost, "/v1/refunds", form, refundNo)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			return payment.RefundFailedWith(apiErr.describe()), nil
		}
		return nil, err
	}
	switch status := strings.ToLower(readString(raw, "status")); status {
	case "succeeded", "pending":
		return payment.RefundSucceedWith(g.messages.PaymentSucceed), nil
	default:
		return payment.RefundFailedWith(fmt.Sprintf("stripe refund status %s", status)), nil
	}
}

// session Checkout Session 中编排需要的字段
type session struct {
	ID                string
	Status            string
	PaymentStatus     string
	ClientReferenceID string
	PaymentIntentID   string
	Currency          string
	AmountTotal       int64
	HasAmount         bool
}

func (s *session) callbackResult() map[string]string {
	params := map[string]string{
		"session_id":     s.ID,
		"status":         s.Status,
		"payment_status": s.PaymentStatus,
	}
	if s.PaymentIntentID != "" {
		params["payment_intent"] = s.PaymentIntentID
	}
	return params
}

func (g *Gateway) retrieveSession(ctx context.Context, sessionID string) (*session, error) {
	raw, err := g.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(sessionID), nil, "")
	if err != nil {
		return nil, err
	}
	amount, hasAmount := readInt64(raw, "amount_total")
	return &session{
		ID:                readString(raw, "id"),
		Status:            strings.ToLower(readString(raw, "status")),
		PaymentStatus:     strings.ToLower(readString(raw, "payment_status")),
		ClientReferenceID: readString(raw, "client_reference_id"),
		PaymentIntentID:   readPaymentIntentID(raw),
		Currency:          readString(raw, "currency"),
		AmountTotal:       amount,
		HasAmount:         hasAmount,
	}, nil
}

func (g *Gateway) checkSession(s *session, record models.Payment, checkAmount bool) string {
	if s.ClientReferenceID != strconv.FormatInt(record.TrackingNumber, 10) {
		return g.messages.InvalidDataReceivedFromGateway
	}
	if s.PaymentStatus != "paid" {
		return g.messages.PaymentFailed
	}
	if !checkAmount {
		return ""
	}
	expected, err := toMinorAmount(record.Amount.Decimal, g.cfg.Currency)
	if err != nil || !s.HasAmount || s.AmountTotal != expected || !strings.EqualFold(s.Currency, g.cfg.Currency) {
		return g.messages.InvalidDataReceivedFromGateway
	}
	return ""
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
