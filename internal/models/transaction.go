package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrTransactionImmutable 交易流水只允许追加
var ErrTransactionImmutable = errors.New("payment transaction is append-only")

// Transaction 支付交易流水
type Transaction struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	PaymentID      uint      `gorm:"index;not null" json:"payment_id"`
	Type           string    `gorm:"type:varchar(16);not null" json:"type"` // request/callback/verify/canceled/refund
	Amount         Money     `gorm:"type:decimal(20,2);not null" json:"amount"`
	IsSucceed      bool      `gorm:"not null;default:false" json:"is_succeed"`
	Message        string    `gorm:"type:text" json:"message"`
	AdditionalData string    `gorm:"type:text" json:"additional_data,omitempty"` // 网关相关的序列化数据
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

// TableName 指定表名
func (Transaction) TableName() string {
	return "payment_transactions"
}

// BeforeUpdate 禁止修改
func (t *Transaction) BeforeUpdate(tx *gorm.DB) error {
	return ErrTransactionImmutable
}

// BeforeDelete 禁止删除
func (t *Transaction) BeforeDelete(tx *gorm.DB) error {
	return ErrTransactionImmutable
}
