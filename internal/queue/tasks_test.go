package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/gateflow/internal/config"
)

func TestNewPaymentVerifyTaskRejectsEmptyTrackingNumber(t *testing.T) {
	if _, err := NewPaymentVerifyTask(PaymentVerifyPayload{}); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("want ErrInvalidPayload, got %v", err)
	}
}

func TestPaymentVerifyPayloadParse(t *testing.T) {
	task, err := NewPaymentVerifyTask(PaymentVerifyPayload{TrackingNumber: 77, RequestID: "r"})
	if err != nil {
		t.Fatalf("new task failed: %v", err)
	}
	if task.Type() != TaskPaymentVerify {
		t.Fatalf("unexpected task type %s", task.Type())
	}
	payload, err := ParsePaymentVerifyPayload(task)
	if err != nil || payload.TrackingNumber != 77 || payload.RequestID != "r" {
		t.Fatalf("unexpected payload %+v err=%v", payload, err)
	}
}

func TestDisabledClientRejectsEnqueue(t *testing.T) {
	client, err := NewClient(&config.QueueConfig{Enabled: false})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if client.Enabled() {
		t.Fatalf("client should be disabled")
	}
	if err := client.EnqueuePaymentVerify(context.Background(), PaymentVerifyPayload{TrackingNumber: 1}); !errors.Is(err, ErrQueueDisabled) {
		t.Fatalf("want ErrQueueDisabled, got %v", err)
	}
}

func TestBuildServerConfigDefaults(t *testing.T) {
	opt, cfg := BuildServerConfig(&config.QueueConfig{Host: "redis", Port: 6380, DB: 2})
	if opt.Addr != "redis:6380" || opt.DB != 2 {
		t.Fatalf("unexpected redis opt %+v", opt)
	}
	if cfg.Concurrency != 10 || cfg.Queues[DefaultQueue] == 0 {
		t.Fatalf("unexpected server config %+v", cfg)
	}
}
