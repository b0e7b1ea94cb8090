package worker

import (
	"context"
	"errors"

	"github.com/gateflow/internal/logger"
	"github.com/gateflow/internal/payment"
	"github.com/gateflow/internal/queue"
	"github.com/gateflow/internal/service"

	"github.com/hibiken/asynq"
)

// PaymentVerifier 执行支付核验
type PaymentVerifier interface {
	Verify(ctx context.Context, trackingNumber int64) (*payment.VerifyResult, error)
}

// Consumer 异步任务消费者
type Consumer struct {
	verifier PaymentVerifier
}

// NewConsumer 创建消费者
func NewConsumer(verifier PaymentVerifier) *Consumer {
	return &Consumer{verifier: verifier}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskPaymentVerify, c.handlePaymentVerify)
}

func (c *Consumer) handlePaymentVerify(ctx context.Context, task *asynq.Task) error {
	if c == nil || c.verifier == nil || task == nil {
		logger.Debugw("worker_payment_verify_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.ParsePaymentVerifyPayload(task)
	if err != nil {
		logger.Warnw("worker_payment_verify_invalid_payload", "error", err)
		// 载荷损坏时重试没有意义
		return errors.Join(err, asynq.SkipRetry)
	}
	ctx = logger.WithRequestID(ctx, payload.RequestID)

	result, err := c.verifier.Verify(ctx, payload.TrackingNumber)
	if err != nil {
		if errors.Is(err, service.ErrInvoiceNotFound) {
			logger.Debugw("worker_payment_verify_skip_not_found", "tracking_number", payload.TrackingNumber)
			return nil
		}
		logger.Warnw("worker_payment_verify_failed",
			"tracking_number", payload.TrackingNumber,
			"request_id", payload.RequestID,
			"error", err,
		)
		return err
	}
	logger.Infow("worker_payment_verify_done",
		"tracking_number", payload.TrackingNumber,
		"status", result.Status,
	)
	return nil
}
