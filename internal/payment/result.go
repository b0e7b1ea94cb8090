package payment

import (
	"github.com/gateflow/internal/constants"
	"github.com/gateflow/internal/models"
)

// RequestStatus 发起支付结果状态
type RequestStatus string

const (
	RequestSucceed                     RequestStatus = "succeed"
	RequestFailed                      RequestStatus = "failed"
	RequestTrackingNumberAlreadyExists RequestStatus = "tracking_number_already_exists"
)

// FetchStatus 回调解析结果状态
type FetchStatus string

const (
	FetchReadyForVerifying FetchStatus = "ready_for_verifying"
	FetchFailed            FetchStatus = "failed"
	FetchAlreadyProcessed  FetchStatus = "already_processed"
)

// VerifyStatus 核验结果状态
type VerifyStatus string

const (
	VerifySucceed         VerifyStatus = "succeed"
	VerifyFailed          VerifyStatus = "failed"
	VerifyAlreadyVerified VerifyStatus = "already_verified"
)

// RefundStatus 退款结果状态
type RefundStatus string

const (
	RefundSucceed                 RefundStatus = "succeed"
	RefundFailed                  RefundStatus = "failed"
	RefundAmountExceedsPaidAmount RefundStatus = "refund_amount_exceeds_paid_amount"
)

// Summary 各类结果共有的支付信息
type Summary struct {
	TrackingNumber     int64        `json:"tracking_number"`
	Amount             models.Money `json:"amount"`
	GatewayName        string       `json:"gateway_name"`
	GatewayAccountName string       `json:"gateway_account_name"`
	Message            string       `json:"message"`
}

// Decorate 用支付记录填充共有字段
func (s *Summary) Decorate(payment models.Payment) {
	s.TrackingNumber = payment.TrackingNumber
	s.Amount = payment.Amount
	s.GatewayName = payment.GatewayName
	s.GatewayAccountName = payment.GatewayAccountName
}

// Transporter 引导付款人跳转到网关的指令
type Transporter struct {
	Method string            `json:"method"` // GET / POST
	URL    string            `json:"url"`
	Form   map[string]string `json:"form,omitempty"`
}

// RequestResult 发起支付结果
type RequestResult struct {
	Summary
	Status      RequestStatus `json:"status"`
	Transporter *Transporter  `json:"transporter,omitempty"`
	// AdditionalData 网关附加数据，随 request 流水保存
	AdditionalData map[string]string `json:"additional_data,omitempty"`
}

// IsSucceed 是否成功
func (r *RequestResult) IsSucceed() bool { return r.Status == RequestSucceed }

// RequestSucceedWithPost 表单 POST 跳转
func RequestSucceedWithPost(accountName, url string, form map[string]string) *RequestResult {
	return &RequestResult{
		Summary:     Summary{GatewayAccountName: accountName},
		Status:      RequestSucceed,
		Transporter: &Transporter{Method: constants.TransporterPost, URL: url, Form: form},
	}
}

// RequestSucceedWithRedirect GET 跳转
func RequestSucceedWithRedirect(accountName, url string) *RequestResult {
	return &RequestResult{
		Summary:     Summary{GatewayAccountName: accountName},
		Status:      RequestSucceed,
		Transporter: &Transporter{Method: constants.TransporterGet, URL: url},
	}
}

// RequestFailedWith 发起失败
func RequestFailedWith(message, accountName string) *RequestResult {
	return &RequestResult{
		Summary: Summary{Message: message, GatewayAccountName: accountName},
		Status:  RequestFailed,
	}
}

// FetchResult 回调解析结果
type FetchResult struct {
	Summary
	Status            FetchStatus `json:"status"`
	IsAlreadyVerified bool        `json:"is_already_verified"`
	// CallbackResult 网关解析出的回调数据，FetchAndStore 时写入 callback 流水
	CallbackResult map[string]string `json:"callback_result,omitempty"`
}

// IsSucceed 是否可进入核验
func (r *FetchResult) IsSucceed() bool { return r.Status == FetchReadyForVerifying }

// FetchReady 可进入核验
func FetchReady(callback map[string]string) *FetchResult {
	return &FetchResult{Status: FetchReadyForVerifying, CallbackResult: callback}
}

// FetchFailedWith 回调显示失败
func FetchFailedWith(callback map[string]string, message string) *FetchResult {
	return &FetchResult{Summary: Summary{Message: message}, Status: FetchFailed, CallbackResult: callback}
}

// VerifyResult 核验结果
type VerifyResult struct {
	Summary
	Status          VerifyStatus      `json:"status"`
	TransactionCode string            `json:"transaction_code,omitempty"`
	AdditionalData  map[string]string `json:"additional_data,omitempty"`
}

// IsSucceed 是否核验成功
func (r *VerifyResult) IsSucceed() bool { return r.Status == VerifySucceed }

// VerifySucceedWith 核验成功
func VerifySucceedWith(transactionCode, message string) *VerifyResult {
	return &VerifyResult{Summary: Summary{Message: message}, Status: VerifySucceed, TransactionCode: transactionCode}
}

// VerifyFailedWith 核验失败
func VerifyFailedWith(message string) *VerifyResult {
	return &VerifyResult{Summary: Summary{Message: message}, Status: VerifyFailed}
}

// CancelResult 取消结果
type CancelResult struct {
	Summary
	IsSucceed bool `json:"is_succeed"`
}

// RefundResult 退款结果
type RefundResult struct {
	Summary
	Status RefundStatus `json:"status"`
}

// IsSucceed 是否退款成功
func (r *RefundResult) IsSucceed() bool { return r.Status == RefundSucceed }

// RefundSucceedWith 退款成功
func RefundSucceedWith(message string) *RefundResult {
	return &RefundResult{Summary: Summary{Message: message}, Status: RefundSucceed}
}

// RefundFailedWith 退款失败
func RefundFailedWith(message string) *RefundResult {
	return &RefundResult{Summary: Summary{Message: message}, Status: RefundFailed}
}
