package payment

import (
	"context"
	"net/url"
	"testing"

	"github.com/gateflow/internal/constants"
	"github.com/gateflow/internal/models"
)

func TestCallbackFromValues(t *testing.T) {
	values := url.Values{}
	values.Add("result", "")
	values.Add("result", "true")
	values.Add("paymentToken", "abc")
	values.Add("empty", "")

	cb := CallbackFromValues(values)
	if cb["result"] != "true" {
		t.Fatalf("result want true got %q", cb["result"])
	}
	if value, ok := cb.Get("PAYMENTTOKEN"); !ok || value != "abc" {
		t.Fatalf("case-insensitive lookup failed: %q %v", value, ok)
	}
	if value, ok := cb.Get("empty"); !ok || value != "" {
		t.Fatalf("empty param should exist with blank value")
	}
	if _, ok := cb.Get("missing"); ok {
		t.Fatalf("missing param should not exist")
	}
}

func TestResolveCallbackPrefersLiveSignal(t *testing.T) {
	invoiceCtx := InvoiceContext{
		Payment: models.Payment{ID: 1},
		Transactions: []models.Transaction{
			{Type: constants.TransactionTypeRequest, AdditionalData: `{"x":"1"}`},
			{Type: constants.TransactionTypeCallback, AdditionalData: `{"result":"false"}`},
			{Type: constants.TransactionTypeCallback, AdditionalData: `{"result":"true","TransactionCode":"T-1"}`},
		},
	}

	stored, ok := ResolveCallback(context.Background(), invoiceCtx)
	if !ok || stored["TransactionCode"] != "T-1" {
		t.Fatalf("stored callback should come from the latest callback transaction: %v", stored)
	}

	ctx := WithCallback(context.Background(), Callback{"result": "false"})
	live, ok := ResolveCallback(ctx, invoiceCtx)
	if !ok || live["result"] != "false" {
		t.Fatalf("live callback should win: %v", live)
	}

	if _, ok := ResolveCallback(context.Background(), InvoiceContext{}); ok {
		t.Fatalf("no callback should be resolved without transactions")
	}
}

func TestStoredCallbackPrefersLatestSucceeded(t *testing.T) {
	invoiceCtx := InvoiceContext{
		Payment: models.Payment{ID: 1},
		Transactions: []models.Transaction{
			{Type: constants.TransactionTypeCallback, IsSucceed: true, AdditionalData: `{"result":"true","TransactionCode":"TX-1"}`},
			{Type: constants.TransactionTypeCallback, IsSucceed: false, AdditionalData: `{"result":"false"}`},
		},
	}
	stored, ok := StoredCallback(invoiceCtx)
	if !ok || stored["TransactionCode"] != "TX-1" {
		t.Fatalf("succeeded callback should win over a later failed one: %v", stored)
	}
}

func TestResolveCallbackIgnoresLiveSignalWithoutGatewayFields(t *testing.T) {
	invoiceCtx := InvoiceContext{
		Payment: models.Payment{ID: 1},
		Transactions: []models.Transaction{
			{Type: constants.TransactionTypeCallback, IsSucceed: true, AdditionalData: `{"result":"true","TransactionCode":"TX-1"}`},
		},
	}
	ctx := WithCallback(context.Background(), Callback{"paymentToken": "abc"})
	cb, ok := ResolveCallback(ctx, invoiceCtx, "result", "TransactionCode")
	if !ok || cb["TransactionCode"] != "TX-1" {
		t.Fatalf("token-only callback should fall back to stored one: %v", cb)
	}

	ctx = WithCallback(context.Background(), Callback{"paymentToken": "abc", "RESULT": "false"})
	cb, ok = ResolveCallback(ctx, invoiceCtx, "result", "TransactionCode")
	if !ok || cb["RESULT"] != "false" {
		t.Fatalf("callback carrying gateway fields should win: %v", cb)
	}
}

func TestCallbackFromJSONFlattensScalars(t *testing.T) {
	cb, err := CallbackFromJSON([]byte(`{"amount":10.50,"status":2,"paid":true,"memo":null,"resource":{"id":"r1"},"name":"x"}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	want := map[string]string{
		"amount":   "10.50",
		"status":   "2",
		"paid":     "true",
		"memo":     "",
		"resource": `{"id":"r1"}`,
		"name":     "x",
	}
	for key, value := range want {
		if cb[key] != value {
			t.Fatalf("%s want %q got %q", key, value, cb[key])
		}
	}
	if _, err := CallbackFromJSON([]byte(`[1,2]`)); err == nil {
		t.Fatalf("non-object json should fail")
	}
}

func TestCallbackMergeKeepsExistingValues(t *testing.T) {
	merged := Callback{"paymentToken": "abc", "empty": ""}.Merge(Callback{"paymentToken": "evil", "empty": "filled", "new": "1"})
	if merged["paymentToken"] != "abc" || merged["empty"] != "filled" || merged["new"] != "1" {
		t.Fatalf("unexpected merge result %v", merged)
	}

	var nilCallback Callback
	if got := nilCallback.Merge(Callback{"a": "1"}); got["a"] != "1" {
		t.Fatalf("nil receiver should still merge: %v", got)
	}
}

func TestInvoiceContextRequestData(t *testing.T) {
	invoiceCtx := InvoiceContext{
		Transactions: []models.Transaction{
			{Type: constants.TransactionTypeRequest, AdditionalData: `{"status":"succeed","additional_data":{"order_id":"5O190127TN364715T"}}`},
			{Type: constants.TransactionTypeRefund},
			{Type: constants.TransactionTypeRefund},
		},
	}
	if got := invoiceCtx.RequestData()["order_id"]; got != "5O190127TN364715T" {
		t.Fatalf("order_id want 5O190127TN364715T got %q", got)
	}
	if invoiceCtx.CountTransactions(constants.TransactionTypeRefund) != 2 {
		t.Fatalf("refund count want 2")
	}
	if len((InvoiceContext{}).RequestData()) != 0 {
		t.Fatalf("missing request transaction should give empty data")
	}
}
