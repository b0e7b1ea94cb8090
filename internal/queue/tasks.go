package queue

import (
	"encoding/json"
	"errors"

	"github.com/gateflow/internal/constants"

	"github.com/hibiken/asynq"
)

// TaskPaymentVerify 回调就绪后的异步核验任务
const TaskPaymentVerify = constants.TaskPaymentVerify

// ErrInvalidPayload 任务载荷不合法
var ErrInvalidPayload = errors.New("invalid task payload")

// PaymentVerifyPayload 核验任务载荷
type PaymentVerifyPayload struct {
	TrackingNumber int64  `json:"tracking_number"`
	RequestID      string `json:"request_id,omitempty"`
}

// NewPaymentVerifyTask 创建核验任务
func NewPaymentVerifyTask(payload PaymentVerifyPayload) (*asynq.Task, error) {
	if payload.TrackingNumber == 0 {
		return nil, ErrInvalidPayload
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentVerify, body), nil
}

// ParsePaymentVerifyPayload 解析核验任务载荷
func ParsePaymentVerifyPayload(task *asynq.Task) (PaymentVerifyPayload, error) {
	var payload PaymentVerifyPayload
	if task == nil {
		return payload, ErrInvalidPayload
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, err
	}
	if payload.TrackingNumber == 0 {
		return payload, ErrInvalidPayload
	}
	return payload, nil
}
