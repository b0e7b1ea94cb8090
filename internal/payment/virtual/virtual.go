package virtual

import (
	"context"
	"strconv"
	"strings"

	"github.com/gateflow/internal/constants"
	"github.com/gateflow/internal/models"
	"github.com/gateflow/internal/payment"
)

// Name 虚拟网关名称
const Name = constants.GatewayVirtual

// Config 虚拟网关配置
type Config struct {
	// BaseURL 服务对外地址，例如 https://pay.example.com
	BaseURL string
	// GatewayPath 模拟银行页面的路径
	GatewayPath string
}

// Gateway 本地模拟网关，不访问外部网络
type Gateway struct {
	cfg      Config
	messages payment.Messages
}

// New 创建虚拟网关
func New(cfg Config, messages payment.Messages) *Gateway {
	if strings.TrimSpace(cfg.GatewayPath) == "" {
		cfg.GatewayPath = "/virtual-gateway"
	}
	return &Gateway{cfg: cfg, messages: messages}
}

// Name 网关名称
func (g *Gateway) Name() string { return Name }

// URL 模拟银行页面地址
func (g *Gateway) URL() string {
	return strings.TrimRight(strings.TrimSpace(g.cfg.BaseURL), "/") + "/" + strings.TrimLeft(g.cfg.GatewayPath, "/")
}

// Request 返回跳转到模拟银行页面的 POST 表单
func (g *Gateway) Request(_ context.Context, invoice payment.Invoice) (*payment.RequestResult, error) {
	return payment.RequestSucceedWithPost(invoice.GatewayAccountName, g.URL(), map[string]string{
		"CommandType":    constants.VirtualCommandRequest,
		"trackingNumber": strconv.FormatInt(invoice.TrackingNumber, 10),
		"amount":         invoice.Amount.String(),
		"redirectUrl":    invoice.CallbackURL,
	}), nil
}

// Fetch 读取回调中的 result 参数
func (g *Gateway) Fetch(ctx context.Context, invoiceCtx payment.InvoiceContext) (*payment.FetchResult, error) {
	cb, succeed, message := g.callbackResult(ctx, invoiceCtx)
	if succeed {
		return payment.FetchReady(cb), nil
	}
	return payment.FetchFailedWith(cb, message), nil
}

// Verify 回调成功即视为支付成功，流水号取自 TransactionCode 参数
func (g *Gateway) Verify(ctx context.Context, invoiceCtx payment.InvoiceContext) (*payment.VerifyResult, error) {
	cb, succeed, message := g.callbackResult(ctx, invoiceCtx)
	if !succeed {
		return payment.VerifyFailedWith(message), nil
	}
	transactionCode, _ := cb.Get(constants.CallbackParamTransactionCode)
	return payment.VerifySucceedWith(strings.TrimSpace(transactionCode), g.messages.PaymentSucceed), nil
}

// Refund 虚拟网关退款总是成功
func (g *Gateway) Refund(_ context.Context, _ payment.InvoiceContext, _ models.Money) (*payment.RefundResult, error) {
	return payment.RefundSucceedWith(g.messages.PaymentSucceed), nil
}

func (g *Gateway) callbackResult(ctx context.Context, invoiceCtx payment.InvoiceContext) (payment.Callback, bool, string) {
	cb, _ := payment.ResolveCallback(ctx, invoiceCtx, constants.CallbackParamResult, constants.CallbackParamTransactionCode)
	result, _ := cb.Get(constants.CallbackParamResult)
	succeed := strings.EqualFold(strings.TrimSpace(result), "true")

	// 只保留网关自身关心的字段，避免把令牌等参数写入流水
	kept := payment.Callback{constants.CallbackParamResult: strconv.FormatBool(succeed)}
	if code, ok := cb.Get(constants.CallbackParamTransactionCode); ok {
		kept[constants.CallbackParamTransactionCode] = code
	}
	if succeed {
		return kept, true, g.messages.PaymentSucceed
	}
	return kept, false, g.messages.PaymentFailed
}
