package service

import "errors"

var (
	// ErrInvoiceNotFound 追踪号或令牌对应的支付不存在
	ErrInvoiceNotFound = errors.New("invoice not found")
	// ErrPaymentTokenProvider 令牌为空、冲突或回调未携带令牌
	ErrPaymentTokenProvider = errors.New("payment token provider error")
	// ErrGatewayNilResult 网关返回了空结果
	ErrGatewayNilResult = errors.New("gateway returned nil result")
	// ErrInvalidInvoice 发起参数不合法
	ErrInvalidInvoice = errors.New("invalid invoice")
	// ErrInvalidCredentials 商户凭证错误
	ErrInvalidCredentials = errors.New("invalid merchant credentials")
	// ErrInvalidToken 商户 token 无效
	ErrInvalidToken = errors.New("invalid merchant token")
)
