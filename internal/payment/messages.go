package payment

import "github.com/gateflow/internal/config"

// Messages 结果提示文案
type Messages struct {
	PaymentSucceed                    string
	PaymentFailed                     string
	PaymentIsAlreadyProcessedBefore   string
	PaymentCanceledProgrammatically   string
	OnlyCompletedPaymentCanBeRefunded string
	DuplicateTrackingNumber           string
	RefundAmountExceedsPaidAmount     string
	InvalidDataReceivedFromGateway    string
}

// DefaultMessages 默认文案
func DefaultMessages() Messages {
	return Messages{
		PaymentSucceed:                    "Payment is succeed.",
		PaymentFailed:                     "Payment is failed.",
		PaymentIsAlreadyProcessedBefore:   "The requested payment is already processed before.",
		PaymentCanceledProgrammatically:   "Payment canceled programmatically.",
		OnlyCompletedPaymentCanBeRefunded: "Only a completed payment can be refunded.",
		DuplicateTrackingNumber:           "The tracking number is already used.",
		RefundAmountExceedsPaidAmount:     "The refund amount exceeds the refundable amount of the payment.",
		InvalidDataReceivedFromGateway:    "Invalid data is received from the gateway.",
	}
}

// MessagesFromConfig 使用配置覆盖默认文案，空值保留默认
func MessagesFromConfig(cfg config.MessagesConfig) Messages {
	m := DefaultMessages()
	override(&m.PaymentSucceed, cfg.PaymentSucceed)
	override(&m.PaymentFailed, cfg.PaymentFailed)
	override(&m.PaymentIsAlreadyProcessedBefore, cfg.PaymentIsAlreadyProcessedBefore)
	override(&m.PaymentCanceledProgrammatically, cfg.PaymentCanceledProgrammatically)
	override(&m.OnlyCompletedPaymentCanBeRefunded, cfg.OnlyCompletedPaymentCanBeRefunded)
	override(&m.DuplicateTrackingNumber, cfg.DuplicateTrackingNumber)
	override(&m.RefundAmountExceedsPaidAmount, cfg.RefundAmountExceedsPaidAmount)
	override(&m.InvalidDataReceivedFromGateway, cfg.InvalidDataReceivedFromGateway)
	return m
}

func override(target *string, value string) {
	if value != "" {
		*target = value
	}
}
