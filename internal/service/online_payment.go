package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gateflow/internal/cache"
	"github.com/gateflow/internal/constants"
	"github.com/gateflow/internal/logger"
	"github.com/gateflow/internal/models"
	"github.com/gateflow/internal/payment"
	"github.com/gateflow/internal/repository"

	"go.uber.org/zap"
)

const maxTrackingNumberAttempts = 5

// Locker 按键互斥
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// TrackingNumberGenerator 自动追踪号生成器
type TrackingNumberGenerator interface {
	Next() (int64, error)
}

// OnlinePaymentOptions 编排器依赖
type OnlinePaymentOptions struct {
	Payments        repository.PaymentRepository
	Transactions    repository.TransactionRepository
	Registry        *payment.Registry
	Tokens          payment.TokenProvider
	TrackingNumbers TrackingNumberGenerator
	Locker          Locker
	Messages        payment.Messages
	Logger          *zap.SugaredLogger
}

// OnlinePayment 支付编排器，驱动 Request → Fetch → Verify / Cancel / Refund
type OnlinePayment struct {
	payments        repository.PaymentRepository
	transactions    repository.TransactionRepository
	registry        *payment.Registry
	tokens          payment.TokenProvider
	trackingNumbers TrackingNumberGenerator
	locker          Locker
	messages        payment.Messages
	log             *zap.SugaredLogger
}

// NewOnlinePayment 创建支付编排器
func NewOnlinePayment(opts OnlinePaymentOptions) *OnlinePayment {
	locker := opts.Locker
	if locker == nil {
		locker = cache.NewLocalLocker()
	}
	log := opts.Logger
	if log == nil {
		log = logger.Named("online_payment")
	}
	messages := opts.Messages
	if messages == (payment.Messages{}) {
		messages = payment.DefaultMessages()
	}
	return &OnlinePayment{
		payments:        opts.Payments,
		transactions:    opts.Transactions,
		registry:        opts.Registry,
		tokens:          opts.Tokens,
		trackingNumbers: opts.TrackingNumbers,
		locker:          locker,
		messages:        messages,
		log:             log,
	}
}

func (s *OnlinePayment) scoped(ctx context.Context, kv ...interface{}) *zap.SugaredLogger {
	l := logger.FromContext(ctx, s.log)
	if len(kv) > 0 {
		l = l.With(kv...)
	}
	return l
}

// Request 创建支付记录并调用网关发起支付
func (s *OnlinePayment) Request(ctx context.Context, invoice payment.Invoice) (*payment.RequestResult, error) {
	if !invoice.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInvoice)
	}
	reg, err := s.registry.Resolve(invoice.GatewayName)
	if err != nil {
		return nil, err
	}
	invoice.GatewayName = reg.Gateway.Name()
	invoice.GatewayAccountName = reg.AccountName

	if invoice.TrackingNumber == 0 {
		trackingNumber, err := s.nextTrackingNumber(ctx)
		if err != nil {
			return nil, err
		}
		invoice.TrackingNumber = trackingNumber
	}

	log := s.scoped(ctx, "tracking_number", invoice.TrackingNumber, "gateway", invoice.GatewayName)
	log.Infow("payment_request_start")

	unlock, err := s.locker.Lock(ctx, fmt.Sprintf("%s:%d", constants.LockKeyPaymentCreate, invoice.TrackingNumber))
	if err != nil {
		return nil, err
	}
	created, duplicated, err := s.createPayment(ctx, &invoice)
	unlock()
	if err != nil {
		log.Errorw("payment_request_create_failed", "error", err)
		return nil, err
	}
	if duplicated {
		log.Infow("payment_request_duplicate_tracking_number")
		result := &payment.RequestResult{Status: payment.RequestTrackingNumberAlreadyExists}
		result.TrackingNumber = invoice.TrackingNumber
		result.Amount = invoice.Amount
		result.GatewayName = invoice.GatewayName
		result.Message = s.messages.DuplicateTrackingNumber
		return result, nil
	}

	result, gatewayErr := reg.Gateway.Request(ctx, invoice)
	if gatewayErr != nil {
		// 发起失败视为未发生资金变动，直接终结
		log.Errorw("payment_request_gateway_failed", "error", gatewayErr)
		created.IsCompleted = true
		created.IsPaid = false
		result = payment.RequestFailedWith(gatewayErr.Error(), reg.AccountName)
	} else if result == nil {
		log.Errorw("payment_request_gateway_nil_result")
		return nil, fmt.Errorf("%w: %s request", ErrGatewayNilResult, invoice.GatewayName)
	}

	result.TrackingNumber = invoice.TrackingNumber
	result.Amount = invoice.Amount
	result.GatewayName = invoice.GatewayName
	if strings.TrimSpace(result.GatewayAccountName) == "" {
		result.GatewayAccountName = reg.AccountName
	}

	created.GatewayAccountName = result.GatewayAccountName
	if err := s.payments.Update(ctx, created); err != nil {
		return nil, err
	}
	if err := s.appendTransaction(ctx, created.ID, constants.TransactionTypeRequest, invoice.Amount, result.IsSucceed(), result.Message, result); err != nil {
		return nil, err
	}

	log.Infow("payment_request_finished", "status", result.Status, "payment_id", created.ID)
	return result, nil
}

// createPayment 写入新支付记录，追踪号已存在时 duplicated 为 true
func (s *OnlinePayment) createPayment(ctx context.Context, invoice *payment.Invoice) (*models.Payment, bool, error) {
	exists, err := s.payments.ExistsByTrackingNumber(ctx, invoice.TrackingNumber)
	if err != nil {
		return nil, false, err
	}
	if exists {
		return nil, true, nil
	}

	token, err := s.tokens.ProvideToken(ctx, invoice)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrPaymentTokenProvider, err)
	}
	if strings.TrimSpace(token) == "" {
		return nil, false, fmt.Errorf("%w: no token is provided", ErrPaymentTokenProvider)
	}
	taken, err := s.payments.ExistsByToken(ctx, token)
	if err != nil {
		return nil, false, err
	}
	if taken {
		return nil, false, fmt.Errorf("%w: token already exists", ErrPaymentTokenProvider)
	}

	record := &models.Payment{
		TrackingNumber:     invoice.TrackingNumber,
		Amount:             invoice.Amount,
		Token:              token,
		GatewayName:        invoice.GatewayName,
		GatewayAccountName: invoice.GatewayAccountName,
	}
	if err := s.payments.Create(ctx, record); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateTrackingNumber):
			return nil, true, nil
		case errors.Is(err, repository.ErrDuplicateToken):
			return nil, false, fmt.Errorf("%w: token already exists", ErrPaymentTokenProvider)
		}
		return nil, false, err
	}
	return record, false, nil
}

func (s *OnlinePayment) nextTrackingNumber(ctx context.Context) (int64, error) {
	if s.trackingNumbers == nil {
		return 0, fmt.Errorf("%w: tracking number is required", ErrInvalidInvoice)
	}
	for i := 0; i < maxTrackingNumberAttempts; i++ {
		candidate, err := s.trackingNumbers.Next()
		if err != nil {
			return 0, err
		}
		exists, err := s.payments.ExistsByTrackingNumber(ctx, candidate)
		if err != nil {
			return 0, err
		}
		if !exists {
			return candidate, nil
		}
	}
	return 0, fmt.Errorf("%w: could not allocate a free tracking number", ErrInvalidInvoice)
}

// Fetch 按追踪号读取网关回调结论，不改变支付状态
func (s *OnlinePayment) Fetch(ctx context.Context, trackingNumber int64) (*payment.FetchResult, error) {
	record, err := s.mustGetByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}
	return s.fetch(ctx, record)
}

// FetchAndStore 从入站回调取回令牌，读取回调结论并写入 callback 流水
func (s *OnlinePayment) FetchAndStore(ctx context.Context) (*payment.FetchResult, error) {
	token, err := s.tokens.RetrieveToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentTokenProvider, err)
	}
	if strings.TrimSpace(token) == "" {
		s.scoped(ctx).Warnw("payment_fetch_no_token")
		return nil, fmt.Errorf("%w: no token is received", ErrPaymentTokenProvider)
	}
	record, err := s.payments.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if record == nil {
		s.scoped(ctx).Warnw("payment_fetch_unknown_token")
		return nil, fmt.Errorf("%w: token %s", ErrInvoiceNotFound, token)
	}

	result, err := s.fetch(ctx, record)
	if err != nil {
		return nil, err
	}
	var data interface{}
	if len(result.CallbackResult) > 0 {
		data = result.CallbackResult
	}
	if err := s.appendTransaction(ctx, record.ID, constants.TransactionTypeCallback, record.Amount, result.IsSucceed(), result.Message, data); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *OnlinePayment) fetch(ctx context.Context, record *models.Payment) (*payment.FetchResult, error) {
	log := s.scoped(ctx, "tracking_number", record.TrackingNumber, "gateway", record.GatewayName)
	result := &payment.FetchResult{IsAlreadyVerified: record.IsPaid}
	result.Decorate(*record)

	if record.IsCompleted {
		result.Status = payment.FetchAlreadyProcessed
		result.Message = s.messages.PaymentIsAlreadyProcessedBefore
		return result, nil
	}

	reg, err := s.registry.Resolve(record.GatewayName)
	if err != nil {
		return nil, err
	}
	invoiceCtx, err := s.invoiceContext(ctx, record)
	if err != nil {
		return nil, err
	}
	fetched, err := reg.Gateway.Fetch(ctx, invoiceCtx)
	if err != nil {
		log.Errorw("payment_fetch_gateway_failed", "error", err)
		return nil, err
	}
	if fetched == nil {
		return nil, fmt.Errorf("%w: %s fetch", ErrGatewayNilResult, record.GatewayName)
	}

	result.Status = fetched.Status
	result.CallbackResult = fetched.CallbackResult
	if fetched.Status != payment.FetchReadyForVerifying {
		result.Message = fetched.Message
		if result.Message == "" {
			result.Message = s.messages.PaymentFailed
		}
	}
	log.Infow("payment_fetch_finished", "status", result.Status)
	return result, nil
}

// Verify 向网关核验支付结果，成功后支付终结
func (s *OnlinePayment) Verify(ctx context.Context, trackingNumber int64) (*payment.VerifyResult, error) {
	log := s.scoped(ctx, "tracking_number", trackingNumber)
	log.Infow("payment_verify_start")

	unlock, err := s.lockFinish(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}
	defer unlock()

	record, err := s.mustGetByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}
	if record.IsCompleted {
		log.Infow("payment_verify_already_processed", "is_paid", record.IsPaid)
		result := &payment.VerifyResult{Status: payment.VerifyFailed, TransactionCode: record.TransactionCode}
		if record.IsPaid {
			result.Status = payment.VerifyAlreadyVerified
		}
		result.Decorate(*record)
		result.Message = s.messages.PaymentIsAlreadyProcessedBefore
		return result, nil
	}

	reg, err := s.registry.Resolve(record.GatewayName)
	if err != nil {
		return nil, err
	}
	invoiceCtx, err := s.invoiceContext(ctx, record)
	if err != nil {
		return nil, err
	}
	result, err := reg.Gateway.Verify(ctx, invoiceCtx)
	if err != nil {
		// 核验异常时资金可能已变动，不改变支付状态
		log.Errorw("payment_verify_gateway_failed", "error", err)
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("%w: %s verify", ErrGatewayNilResult, record.GatewayName)
	}
	result.Decorate(*record)

	record.IsCompleted = true
	record.IsPaid = result.IsSucceed()
	record.TransactionCode = result.TransactionCode
	if err := s.payments.Update(ctx, record); err != nil {
		return nil, err
	}
	if err := s.appendTransaction(ctx, record.ID, constants.TransactionTypeVerify, record.Amount, result.IsSucceed(), result.Message, result); err != nil {
		return nil, err
	}

	log.Infow("payment_verify_finished", "status", result.Status, "transaction_code", result.TransactionCode)
	return result, nil
}

// Cancel 本地取消未终结的支付，不调用网关
func (s *OnlinePayment) Cancel(ctx context.Context, trackingNumber int64, reason string) (*payment.CancelResult, error) {
	log := s.scoped(ctx, "tracking_number", trackingNumber)

	unlock, err := s.lockFinish(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}
	defer unlock()

	record, err := s.mustGetByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}
	result := &payment.CancelResult{}
	result.Decorate(*record)
	if record.IsCompleted {
		result.Message = s.messages.PaymentIsAlreadyProcessedBefore
		return result, nil
	}

	message := strings.TrimSpace(reason)
	if message == "" {
		message = s.messages.PaymentCanceledProgrammatically
	}
	record.IsCompleted = true
	record.IsPaid = false
	if err := s.payments.Update(ctx, record); err != nil {
		return nil, err
	}
	if err := s.appendTransaction(ctx, record.ID, constants.TransactionTypeCanceled, record.Amount, false, message, nil); err != nil {
		return nil, err
	}

	log.Infow("payment_canceled", "reason", message)
	result.IsSucceed = true
	result.Message = message
	return result, nil
}

// Refund 对已终结的记录退款，累计退款不得超过支付金额
func (s *OnlinePayment) Refund(ctx context.Context, invoice payment.RefundInvoice) (*payment.RefundResult, error) {
	log := s.scoped(ctx, "tracking_number", invoice.TrackingNumber)
	log.Infow("payment_refund_start", "amount", invoice.Amount.String())

	unlock, err := s.lockFinish(ctx, invoice.TrackingNumber)
	if err != nil {
		return nil, err
	}
	defer unlock()

	record, err := s.mustGetByTrackingNumber(ctx, invoice.TrackingNumber)
	if err != nil {
		return nil, err
	}
	if !record.IsCompleted {
		message := fmt.Sprintf("%s Tracking number: %d.", s.messages.OnlyCompletedPaymentCanBeRefunded, record.TrackingNumber)
		log.Infow("payment_refund_rejected", "is_completed", record.IsCompleted, "is_paid", record.IsPaid)
		result := payment.RefundFailedWith(message)
		result.Decorate(*record)
		return result, nil
	}
	if invoice.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: refund amount must not be negative", ErrInvalidInvoice)
	}

	transactions, err := s.transactions.ListByPaymentID(ctx, record.ID)
	if err != nil {
		return nil, err
	}
	remaining := record.Amount.Sub(refundedAmount(transactions))
	amount := invoice.Amount
	if amount.IsZero() {
		amount = remaining
	}
	if !amount.IsPositive() || amount.GreaterThan(remaining) {
		log.Warnw("payment_refund_exceeds_paid_amount", "requested", amount.String(), "remaining", remaining.String())
		result := &payment.RefundResult{Status: payment.RefundAmountExceedsPaidAmount}
		result.Decorate(*record)
		result.Amount = amount
		result.Message = s.messages.RefundAmountExceedsPaidAmount
		return result, nil
	}

	reg, err := s.registry.Resolve(record.GatewayName)
	if err != nil {
		return nil, err
	}
	result, err := reg.Gateway.Refund(ctx, payment.InvoiceContext{Payment: *record, Transactions: transactions}, amount)
	if err != nil {
		log.Errorw("payment_refund_gateway_failed", "error", err)
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("%w: %s refund", ErrGatewayNilResult, record.GatewayName)
	}
	result.Decorate(*record)
	result.Amount = amount

	if err := s.appendTransaction(ctx, record.ID, constants.TransactionTypeRefund, amount, result.IsSucceed(), result.Message, result); err != nil {
		return nil, err
	}
	log.Infow("payment_refund_finished", "status", result.Status, "amount", amount.String())
	return result, nil
}

// List 支付列表
func (s *OnlinePayment) List(ctx context.Context, filter repository.PaymentListFilter) ([]models.Payment, int64, error) {
	return s.payments.List(ctx, filter)
}

// History 返回支付记录与全部流水
func (s *OnlinePayment) History(ctx context.Context, trackingNumber int64) (*payment.InvoiceContext, error) {
	record, err := s.mustGetByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}
	invoiceCtx, err := s.invoiceContext(ctx, record)
	if err != nil {
		return nil, err
	}
	return &invoiceCtx, nil
}

func refundedAmount(transactions []models.Transaction) models.Money {
	total := models.NewMoney(0)
	for _, txn := range transactions {
		if txn.Type == constants.TransactionTypeRefund && txn.IsSucceed {
			total = total.Add(txn.Amount)
		}
	}
	return total
}

func (s *OnlinePayment) lockFinish(ctx context.Context, trackingNumber int64) (func(), error) {
	return s.locker.Lock(ctx, fmt.Sprintf("%s:%d", constants.LockKeyPaymentFinish, trackingNumber))
}

func (s *OnlinePayment) mustGetByTrackingNumber(ctx context.Context, trackingNumber int64) (*models.Payment, error) {
	record, err := s.payments.GetByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: tracking number %d", ErrInvoiceNotFound, trackingNumber)
	}
	return record, nil
}

func (s *OnlinePayment) invoiceContext(ctx context.Context, record *models.Payment) (payment.InvoiceContext, error) {
	transactions, err := s.transactions.ListByPaymentID(ctx, record.ID)
	if err != nil {
		return payment.InvoiceContext{}, err
	}
	return payment.InvoiceContext{Payment: *record, Transactions: transactions}, nil
}

func (s *OnlinePayment) appendTransaction(ctx context.Context, paymentID uint, typ string, amount models.Money, succeed bool, message string, data interface{}) error {
	txn := &models.Transaction{
		PaymentID: paymentID,
		Type:      typ,
		Amount:    amount,
		IsSucceed: succeed,
		Message:   message,
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		txn.AdditionalData = string(raw)
	}
	return s.transactions.Create(ctx, txn)
}
