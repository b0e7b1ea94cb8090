package repository

import (
	"context"

	"github.com/gateflow/internal/models"

	"gorm.io/gorm"
)

// TransactionRepository 交易流水数据访问接口，只允许追加
type TransactionRepository interface {
	Create(ctx context.Context, transaction *models.Transaction) error
	ListByPaymentID(ctx context.Context, paymentID uint) ([]models.Transaction, error)
}

// GormTransactionRepository GORM 实现
type GormTransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository 创建交易流水仓库
func NewTransactionRepository(db *gorm.DB) *GormTransactionRepository {
	return &GormTransactionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormTransactionRepository) WithTx(tx *gorm.DB) *GormTransactionRepository {
	if tx == nil {
		return r
	}
	return &GormTransactionRepository{db: tx}
}

// Create 追加交易流水
func (r *GormTransactionRepository) Create(ctx context.Context, transaction *models.Transaction) error {
	return r.db.WithContext(ctx).Create(transaction).Error
}

// ListByPaymentID 按写入顺序返回支付的全部流水
func (r *GormTransactionRepository) ListByPaymentID(ctx context.Context, paymentID uint) ([]models.Transaction, error) {
	var transactions []models.Transaction
	if err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("id asc").
		Find(&transactions).Error; err != nil {
		return nil, err
	}
	return transactions, nil
}
