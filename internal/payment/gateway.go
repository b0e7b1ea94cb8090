package payment

import (
	"context"
	"encoding/json"

	"github.com/gateflow/internal/constants"
	"github.com/gateflow/internal/models"
)

// Gateway 支付网关适配器，每个支付通道一个实现
//
// 任一方法返回 (nil, nil) 视为违反契约，由编排器按致命错误处理。
type Gateway interface {
	Name() string
	Request(ctx context.Context, invoice Invoice) (*RequestResult, error)
	Fetch(ctx context.Context, invoiceCtx InvoiceContext) (*FetchResult, error)
	Verify(ctx context.Context, invoiceCtx InvoiceContext) (*VerifyResult, error)
	Refund(ctx context.Context, invoiceCtx InvoiceContext, amount models.Money) (*RefundResult, error)
}

// Invoice 发起支付的输入
type Invoice struct {
	TrackingNumber int64        `json:"tracking_number"`
	Amount         models.Money `json:"amount"`
	GatewayName    string       `json:"gateway_name"`
	CallbackURL    string       `json:"callback_url"`
	// GatewayAccountName 由编排器按注册表填充
	GatewayAccountName string `json:"gateway_account_name,omitempty"`
}

// RefundInvoice 退款输入，Amount 为零表示退还剩余可退金额
type RefundInvoice struct {
	TrackingNumber int64        `json:"tracking_number"`
	Amount         models.Money `json:"amount"`
}

// InvoiceContext 支付记录与其全部流水的只读视图
type InvoiceContext struct {
	Payment      models.Payment
	Transactions []models.Transaction
}

// LastTransaction 返回指定类型的最近一条流水
func (c InvoiceContext) LastTransaction(typ string) (models.Transaction, bool) {
	for i := len(c.Transactions) - 1; i >= 0; i-- {
		if c.Transactions[i].Type == typ {
			return c.Transactions[i], true
		}
	}
	return models.Transaction{}, false
}

// CountTransactions 指定类型的流水条数
func (c InvoiceContext) CountTransactions(typ string) int {
	count := 0
	for _, txn := range c.Transactions {
		if txn.Type == typ {
			count++
		}
	}
	return count
}

// RequestData 读取发起支付时网关返回的附加数据
func (c InvoiceContext) RequestData() map[string]string {
	txn, ok := c.LastTransaction(constants.TransactionTypeRequest)
	if !ok || txn.AdditionalData == "" {
		return map[string]string{}
	}
	var stored struct {
		AdditionalData map[string]string `json:"additional_data"`
	}
	if err := json.Unmarshal([]byte(txn.AdditionalData), &stored); err != nil || stored.AdditionalData == nil {
		return map[string]string{}
	}
	return stored.AdditionalData
}

// TokenProvider 为新发起的支付生成关联令牌，并从入站回调中取回令牌
type TokenProvider interface {
	// ProvideToken 生成令牌，可改写 invoice.CallbackURL 以便回调携带令牌
	ProvideToken(ctx context.Context, invoice *Invoice) (string, error)
	// RetrieveToken 从 context 中的入站回调取回令牌，取不到时返回空串
	RetrieveToken(ctx context.Context) (string, error)
}
