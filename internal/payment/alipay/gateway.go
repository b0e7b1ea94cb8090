package alipay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gateflow/internal/constants"
	"github.com/gateflow/internal/models"
	"github.com/gateflow/internal/payment"
)

// Name 支付宝网关名称
const Name = constants.GatewayAlipay

const (
	tradeStatusSuccess  = "TRADE_SUCCESS"
	tradeStatusFinished = "TRADE_FINISHED"
)

// Gateway 支付宝开放平台网关
type Gateway struct {
	cfg      *Config
	messages payment.Messages
	client   *http.Client
	// ignored 回调地址上由本系统追加的参数，不参与验签
	ignored []string
	now     func() time.Time
}

// New 根据网关选项创建支付宝网关，ignoredParams 为回调地址上附加的非支付宝参数
func New(raw map[string]interface{}, messages payment.Messages, ignoredParams ...string) (*Gateway, error) {
	cfg, err := ParseConfig(raw)
	if err != nil {
		return nil, err
	}
	return &Gateway{
		cfg:      cfg,
		messages: messages,
		client:   newHTTPClient(cfg.TimeoutSeconds),
		ignored:  append([]string{"sign_type"}, ignoredParams...),
		now:      time.Now,
	}, nil
}

// Name 网关名称
func (g *Gateway) Name() string { return Name }

// Request 扫码模式调用预下单取二维码，网页模式返回签名后的收银台地址
func (g *Gateway) Request(ctx context.Context, invoice payment.Invoice) (*payment.RequestResult, error) {
	if !invoice.Amount.IsPositive() {
		return payment.RequestFailedWith("amount must be greater than zero", invoice.GatewayAccountName), nil
	}
	outTradeNo := strconv.FormatInt(invoice.TrackingNumber, 10)
	bizContent := map[string]interface{}{
		"out_trade_no": outTradeNo,
		"total_amount": invoice.Amount.String(),
		"subject":      "Payment " + outTradeNo,
		"product_code": g.cfg.productCode(),
	}
	if g.cfg.TimeoutExpress != "" {
		bizContent["timeout_express"] = g.cfg.TimeoutExpress
	}
	if g.cfg.Mode == ModeWAP && g.cfg.QuitURL != "" {
		bizContent["quit_url"] = g.cfg.QuitURL
	}
	extra := map[string]string{"notify_url": invoice.CallbackURL}

	if g.cfg.Mode != ModeQR {
		extra["return_url"] = invoice.CallbackURL
		params, err := g.signedParams(g.cfg.method(), bizContent, extra)
		if err != nil {
			return nil, err
		}
		result := payment.RequestSucceedWithRedirect(invoice.GatewayAccountName, g.payURL(params))
		result.AdditionalData = map[string]string{"method": g.cfg.method()}
		return result, nil
	}

	node, err := g.call(ctx, g.cfg.method(), bizContent, extra)
	if err != nil {
		if message, ok := businessMessage(err); ok {
			return payment.RequestFailedWith(message, invoice.GatewayAccountName), nil
		}
		return nil, err
	}
	qrCode := readString(node, "qr_code")
	if qrCode == "" {
		return payment.RequestFailedWith(g.messages.InvalidDataReceivedFromGateway, invoice.GatewayAccountName), nil
	}
	result := payment.RequestSucceedWithRedirect(invoice.GatewayAccountName, qrCode)
	result.AdditionalData = map[string]string{"method": g.cfg.method(), "qr_code": qrCode}
	return result, nil
}

// Fetch 校验同步跳转或异步通知的签名，通知明确失败时直接返回失败
func (g *Gateway) Fetch(ctx context.Context, invoiceCtx payment.InvoiceContext) (*payment.FetchResult, error) {
	cb, ok := payment.ResolveCallback(ctx, invoiceCtx, "sign", "out_trade_no")
	if !ok {
		return payment.FetchFailedWith(nil, g.messages.InvalidDataReceivedFromGateway), nil
	}
	params := map[string]string(cb)
	sign, _ := cb.Get("sign")
	signType, _ := cb.Get("sign_type")
	if signType == "" {
		signType = g.cfg.SignType
	}
	if err := verifyContent(buildSignContent(params, g.ignored...), sign, g.cfg.AlipayPublicKey, signType); err != nil {
		return payment.FetchFailedWith(params, g.messages.InvalidDataReceivedFromGateway), nil
	}
	if outTradeNo, _ := cb.Get("out_trade_no"); outTradeNo != strconv.FormatInt(invoiceCtx.Payment.TrackingNumber, 10) {
		return payment.FetchFailedWith(params, g.messages.InvalidDataReceivedFromGateway), nil
	}
	if status, found := cb.Get("trade_status"); found && !isPaidStatus(status) {
		return payment.FetchFailedWith(params, g.messages.PaymentFailed), nil
	}
	return payment.FetchReady(params), nil
}

// Verify 以交易查询结果为准，要求已支付且金额一致
func (g *Gateway) Verify(ctx context.Context, invoiceCtx payment.InvoiceContext) (*payment.VerifyResult, error) {
	outTradeNo := strconv.FormatInt(invoiceCtx.Payment.TrackingNumber, 10)
	node, err := g.call(ctx, "alipay.trade.query", map[string]interface{}{"out_trade_no": outTradeNo}, nil)
	if err != nil {
		if message, ok := businessMessage(err); ok {
			return payment.VerifyFailedWith(message), nil
		}
		return nil, err
	}
	if !isPaidStatus(readString(node, "trade_status")) {
		return payment.VerifyFailedWith(g.messages.PaymentFailed), nil
	}
	paid, err := models.ParseMoney(readString(node, "total_amount"))
	if err != nil || !paid.Equal(invoiceCtx.Payment.Amount) || readString(node, "out_trade_no") != outTradeNo {
		return payment.VerifyFailedWith(g.messages.InvalidDataReceivedFromGateway), nil
	}
	result := payment.VerifySucceedWith(readString(node, "trade_no"), g.messages.PaymentSucceed)
	result.AdditionalData = map[string]string{
		"trade_status":   readString(node, "trade_status"),
		"buyer_logon_id": readString(node, "buyer_logon_id"),
	}
	return result, nil
}

// Refund 调用统一退款接口，out_request_no 由追踪号与退款序号组成
func (g *Gateway) Refund(ctx context.Context, invoiceCtx payment.InvoiceContext, amount models.Money) (*payment.RefundResult, error) {
	trackingNumber := strconv.FormatInt(invoiceCtx.Payment.TrackingNumber, 10)
	bizContent := map[string]interface{}{
		"out_trade_no":   trackingNumber,
		"refund_amount":  amount.String(),
		"out_request_no": fmt.Sprintf("%s-R%d", trackingNumber, invoiceCtx.CountTransactions(constants.TransactionTypeRefund)+1),
	}
	if _, err := g.call(ctx, "alipay.trade.refund", bizContent, nil); err != nil {
		if message, ok := businessMessage(err); ok {
			return payment.RefundFailedWith(message), nil
		}
		return nil, err
	}
	return payment.RefundSucceedWith(g.messages.PaymentSucceed), nil
}

func isPaidStatus(status string) bool {
	status = strings.ToUpper(strings.TrimSpace(status))
	return status == tradeStatusSuccess || status == tradeStatusFinished
}

func businessMessage(err error) (string, bool) {
	var bizErr *businessError
	if !errors.As(err, &bizErr) {
		return "", false
	}
	if bizErr.Message != "" {
		return bizErr.Message, true
	}
	return "code=" + bizErr.Code, true
}
