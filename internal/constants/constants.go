package constants

// 交易流水类型常量
const (
	TransactionTypeRequest  = "request"
	TransactionTypeCallback = "callback"
	TransactionTypeVerify   = "verify"
	TransactionTypeCanceled = "canceled"
	TransactionTypeRefund   = "refund"
)

// 内置网关名称
const (
	GatewayVirtual = "ParbadVirtual"
	GatewayEpay    = "epay"
	GatewayEpusdt  = "epusdt"
	GatewayWechat  = "wechatpay"
	GatewayAlipay  = "alipay"
	GatewayPaypal  = "paypal"
	GatewayStripe  = "stripe"
)

// 网关跳转方式
const (
	TransporterGet  = "GET"
	TransporterPost = "POST"
)

// 虚拟网关命令类型
const (
	VirtualCommandRequest = "request"
	VirtualCommandPay     = "pay"
	VirtualCommandCancel  = "cancel"
)

// 回调参数名
const (
	CallbackParamResult          = "result"
	CallbackParamTransactionCode = "TransactionCode"
)

// 锁 key 前缀
const (
	LockKeyPaymentCreate = "payment:create"
	LockKeyPaymentFinish = "payment:finish"
)

// 异步队列
const (
	QueueDefault      = "default"
	QueueCritical     = "critical"
	TaskPaymentVerify = "payment:verify"
)

// gin 上下文 key
const (
	ContextKeyRequestID = "request_id"
	ContextKeyMerchant  = "merchant"
)

// 异步通知应答
const (
	EpayCallbackSuccess   = "success"
	EpayCallbackFail      = "fail"
	EpusdtCallbackSuccess = "ok"
)
