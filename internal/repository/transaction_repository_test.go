package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/gateflow/internal/constants"
	"github.com/gateflow/internal/models"
)

func TestTransactionRepositoryAppendOnly(t *testing.T) {
	db := setupRepositoryTest(t)
	payments := NewPaymentRepository(db)
	transactions := NewTransactionRepository(db)
	ctx := context.Background()

	payment := newTestPayment(800, "token-800")
	if err := payments.Create(ctx, payment); err != nil {
		t.Fatalf("create payment failed: %v", err)
	}

	for _, typ := range []string{constants.TransactionTypeRequest, constants.TransactionTypeCallback, constants.TransactionTypeVerify} {
		txn := &models.Transaction{
			PaymentID: payment.ID,
			Type:      typ,
			Amount:    payment.Amount,
			IsSucceed: true,
		}
		if err := transactions.Create(ctx, txn); err != nil {
			t.Fatalf("create %s transaction failed: %v", typ, err)
		}
	}

	list, err := transactions.ListByPaymentID(ctx, payment.ID)
	if err != nil {
		t.Fatalf("list transactions failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("transactions want 3 got %d", len(list))
	}
	if list[0].Type != constants.TransactionTypeRequest || list[2].Type != constants.TransactionTypeVerify {
		t.Fatalf("transactions should keep write order: %s, %s", list[0].Type, list[2].Type)
	}

	first := list[0]
	first.Message = "changed"
	if err := db.Save(&first).Error; !errors.Is(err, models.ErrTransactionImmutable) {
		t.Fatalf("save transaction want ErrTransactionImmutable got %v", err)
	}
	if err := db.Delete(&first).Error; !errors.Is(err, models.ErrTransactionImmutable) {
		t.Fatalf("delete transaction want ErrTransactionImmutable got %v", err)
	}

	other, err := transactions.ListByPaymentID(ctx, payment.ID+100)
	if err != nil {
		t.Fatalf("list empty transactions failed: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("unknown payment should have no transactions")
	}
}
