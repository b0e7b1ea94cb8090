package wechatpay

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/gateflow/internal/constants"
	"github.com/gateflow/internal/models"
	"github.com/gateflow/internal/payment"

	"github.com/wechatpay-apiv3/wechatpay-go/core"
)

// Name 微信支付网关名称
const Name = constants.GatewayWechat

// Gateway 微信支付 APIv3 网关，支付结论以主动查单为准
type Gateway struct {
	cfg      *Config
	messages payment.Messages
	client   *core.Client
}

// New 根据网关选项创建微信支付网关
func New(ctx context.Context, raw map[string]interface{}, messages payment.Messages) (*Gateway, error) {
	cfg, err := ParseConfig(raw)
	if err != nil {
		return nil, err
	}
	client, err := newAPIClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Gateway{cfg: cfg, messages: messages, client: client}, nil
}

// Name 网关名称
func (g *Gateway) Name() string { return Name }

// Request 创建 native 或 h5 订单，out_trade_no 使用追踪号
func (g *Gateway) Request(ctx context.Context, invoice payment.Invoice) (*payment.RequestResult, error) {
	total, err := toFen(invoice.Amount.Decimal)
	if err != nil {
		return payment.RequestFailedWith(err.Error(), invoice.GatewayAccountName), nil
	}
	outTradeNo := strconv.FormatInt(invoice.TrackingNumber, 10)
	payload := map[string]interface{}{
		"appid":        g.cfg.AppID,
		"mchid":        g.cfg.MerchantID,
		"description":  g.description(outTradeNo),
		"out_trade_no": outTradeNo,
		"notify_url":   invoice.CallbackURL,
		"amount": map[string]interface{}{
			"total":    total,
			"currency": defaultCurrency,
		},
	}

	path := "/v3/pay/transactions/native"
	sceneInfo := map[string]interface{}{"payer_client_ip": normalizeClientIP(g.cfg.ClientIP)}
	if g.cfg.Mode == ModeH5 {
		path = "/v3/pay/transactions/h5"
		h5Info := map[string]interface{}{"type": g.cfg.H5Type}
		if g.cfg.H5WapName != "" {
			h5Info["app_name"] = g.cfg.H5WapName
		}
		if g.cfg.H5WapURL != "" {
			h5Info["app_url"] = g.cfg.H5WapURL
		}
		sceneInfo["h5_info"] = h5Info
	}
	payload["scene_info"] = sceneInfo

	raw, err := doPostJSON(ctx, g.client, g.cfg.endpoint(path), payload)
	if err != nil {
		if message, ok := businessMessage(err); ok {
			return payment.RequestFailedWith(message, invoice.GatewayAccountName), nil
		}
		return nil, err
	}

	additional := map[string]string{"mode": g.cfg.Mode}
	if prepayID := readString(raw, "prepay_id"); prepayID != "" {
		additional["prepay_id"] = prepayID
	}
	var target string
	if g.cfg.Mode == ModeH5 {
		redirect := g.cfg.H5RedirectURL
		if redirect == "" {
			redirect = invoice.CallbackURL
		}
		target = appendRedirectURL(readString(raw, "h5_url"), redirect)
	} else {
		target = readString(raw, "code_url")
		additional["code_url"] = target
	}
	if target == "" {
		return payment.RequestFailedWith(g.messages.InvalidDataReceivedFromGateway, invoice.GatewayAccountName), nil
	}

	result := payment.RequestSucceedWithRedirect(invoice.GatewayAccountName, target)
	result.AdditionalData = additional
	return result, nil
}

// Fetch 回调只作为触发信号，通过查单确认交易状态
func (g *Gateway) Fetch(ctx context.Context, invoiceCtx payment.InvoiceContext) (*payment.FetchResult, error) {
	order, err := g.queryOrder(ctx, invoiceCtx.Payment.TrackingNumber)
	if err != nil {
		return nil, err
	}
	params := order.callbackResult()
	if message := g.checkOrder(order, invoiceCtx.Payment); message != "" {
		return payment.FetchFailedWith(params, message), nil
	}
	return payment.FetchReady(params), nil
}

// Verify 查单确认已支付且金额一致，流水号取 transaction_id
func (g *Gateway) Verify(ctx context.Context, invoiceCtx payment.InvoiceContext) (*payment.VerifyResult, error) {
	order, err := g.queryOrder(ctx, invoiceCtx.Payment.TrackingNumber)
	if err != nil {
		return nil, err
	}
	if message := g.checkOrder(order, invoiceCtx.Payment); message != "" {
		return payment.VerifyFailedWith(message), nil
	}
	result := payment.VerifySucceedWith(order.TransactionID, g.messages.PaymentSucceed)
	result.AdditionalData = map[string]string{"trade_state": order.TradeState}
	if order.SuccessTime != "" {
		result.AdditionalData["success_time"] = order.SuccessTime
	}
	return result, nil
}

// Refund 申请退款，out_refund_no 由追踪号与退款序号组成
func (g *Gateway) Refund(ctx context.Context, invoiceCtx payment.InvoiceContext, amount models.Money) (*payment.RefundResult, error) {
	refundFen, err := toFen(amount.Decimal)
	if err != nil {
		return payment.RefundFailedWith(err.Error()), nil
	}
	totalFen, err := toFen(invoiceCtx.Payment.Amount.Decimal)
	if err != nil {
		return payment.RefundFailedWith(err.Error()), nil
	}
	trackingNumber := strconv.FormatInt(invoiceCtx.Payment.TrackingNumber, 10)
	payload := map[string]interface{}{
		"out_trade_no":  trackingNumber,
		"out_refund_no": fmt.Sprintf("%s-R%d", trackingNumber, invoiceCtx.CountTransactions(constants.TransactionTypeRefund)+1),
		"amount": map[string]interface{}{
			"refund":   refundFen,
			"total":    totalFen,
			"currency": defaultCurrency,
		},
	}
	if invoiceCtx.Payment.TransactionCode != "" {
		payload["transaction_id"] = invoiceCtx.Payment.TransactionCode
		delete(payload, "out_trade_no")
	}

	raw, err := doPostJSON(ctx, g.client, g.cfg.endpoint("/v3/refund/domestic/refunds"), payload)
	if err != nil {
		if message, ok := businessMessage(err); ok {
			return payment.RefundFailedWith(message), nil
		}
		return nil, err
	}
	switch status := strings.ToUpper(readString(raw, "status")); status {
	case "SUCCESS", "PROCESSING":
		return payment.RefundSucceedWith(g.messages.PaymentSucceed), nil
	default:
		return payment.RefundFailedWith(fmt.Sprintf("wechatpay refund status %s", status)), nil
	}
}

// order 查单结果中编排需要的字段
type order struct {
	OutTradeNo    string
	TransactionID string
	TradeState    string
	TotalFen      int64
	HasTotal      bool
	SuccessTime   string
}

func (o *order) callbackResult() map[string]string {
	params := map[string]string{
		"out_trade_no":   o.OutTradeNo,
		"transaction_id": o.TransactionID,
		"trade_state":    o.TradeState,
	}
	if o.HasTotal {
		params["total"] = strconv.FormatInt(o.TotalFen, 10)
	}
	return params
}

func (g *Gateway) queryOrder(ctx context.Context, trackingNumber int64) (*order, error) {
	outTradeNo := strconv.FormatInt(trackingNumber, 10)
	requestURL := g.cfg.endpoint("/v3/pay/transactions/out-trade-no/"+url.PathEscape(outTradeNo)) +
		"?mchid=" + url.QueryEscape(g.cfg.MerchantID)
	raw, err := doGetJSON(ctx, g.client, requestURL)
	if err != nil {
		return nil, err
	}
	total, hasTotal := readInt64(raw, "amount", "total")
	return &order{
		OutTradeNo:    readString(raw, "out_trade_no"),
		TransactionID: readString(raw, "transaction_id"),
		TradeState:    strings.ToUpper(readString(raw, "trade_state")),
		TotalFen:      total,
		HasTotal:      hasTotal,
		SuccessTime:   readString(raw, "success_time"),
	}, nil
}

func (g *Gateway) checkOrder(o *order, record models.Payment) string {
	switch o.TradeState {
	case "SUCCESS", "REFUND":
	case "NOTPAY", "USERPAYING", "CLOSED", "REVOKED", "PAYERROR":
		return g.messages.PaymentFailed
	default:
		return g.messages.InvalidDataReceivedFromGateway
	}
	if o.OutTradeNo != strconv.FormatInt(record.TrackingNumber, 10) || o.TransactionID == "" {
		return g.messages.InvalidDataReceivedFromGateway
	}
	expected, err := toFen(record.Amount.Decimal)
	if err != nil || !o.HasTotal || o.TotalFen != expected {
		return g.messages.InvalidDataReceivedFromGateway
	}
	return ""
}

func (g *Gateway) description(outTradeNo string) string {
	if g.cfg.Description != "" {
		return g.cfg.Description
	}
	return "Payment " + outTradeNo
}

func businessMessage(err error) (string, bool) {
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		return "", false
	}
	if apiErr.Message != "" {
		return apiErr.Message, true
	}
	return apiErr.Code, true
}
