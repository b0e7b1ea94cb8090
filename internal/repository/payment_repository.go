package repository

import (
	"context"
	"errors"

	"github.com/gateflow/internal/models"

	"gorm.io/gorm"
)

// PaymentRepository 支付数据访问接口
type PaymentRepository interface {
	ExistsByTrackingNumber(ctx context.Context, trackingNumber int64) (bool, error)
	ExistsByToken(ctx context.Context, token string) (bool, error)
	Create(ctx context.Context, payment *models.Payment) error
	Update(ctx context.Context, payment *models.Payment) error
	GetByToken(ctx context.Context, token string) (*models.Payment, error)
	GetByTrackingNumber(ctx context.Context, trackingNumber int64) (*models.Payment, error)
	List(ctx context.Context, filter PaymentListFilter) ([]models.Payment, int64, error)
}

// GormPaymentRepository GORM 实现
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository 创建支付仓库
func NewPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPaymentRepository) WithTx(tx *gorm.DB) *GormPaymentRepository {
	if tx == nil {
		return r
	}
	return &GormPaymentRepository{db: tx}
}

// ExistsByTrackingNumber 追踪号是否已存在
func (r *GormPaymentRepository) ExistsByTrackingNumber(ctx context.Context, trackingNumber int64) (bool, error) {
	return r.exists(ctx, "tracking_number = ?", trackingNumber)
}

// ExistsByToken 令牌是否已存在
func (r *GormPaymentRepository) ExistsByToken(ctx context.Context, token string) (bool, error) {
	return r.exists(ctx, "token = ?", token)
}

func (r *GormPaymentRepository) exists(ctx context.Context, cond string, arg interface{}) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Payment{}).Where(cond, arg).Limit(1).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create 创建支付记录，唯一约束冲突转换为 ErrDuplicateTrackingNumber / ErrDuplicateToken
func (r *GormPaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	err := r.db.WithContext(ctx).Create(payment).Error
	if err == nil {
		return nil
	}
	duplicated, column := uniqueViolationColumn(err)
	if !duplicated {
		return err
	}
	switch column {
	case "tracking_number":
		return ErrDuplicateTrackingNumber
	case "token":
		return ErrDuplicateToken
	}
	// 驱动未给出冲突列时按追踪号优先判定
	exists, lookupErr := r.ExistsByTrackingNumber(ctx, payment.TrackingNumber)
	if lookupErr == nil && !exists {
		return ErrDuplicateToken
	}
	return ErrDuplicateTrackingNumber
}

// Update 更新未终结的支付记录，记录已终结时返回 ErrPaymentCompleted
func (r *GormPaymentRepository) Update(ctx context.Context, payment *models.Payment) error {
	result := r.db.WithContext(ctx).
		Model(payment).
		Where("is_completed = ?", false).
		Select("gateway_account_name", "is_completed", "is_paid", "transaction_code", "updated_at").
		Updates(payment)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPaymentCompleted
	}
	return nil
}

// GetByToken 根据令牌获取支付记录
func (r *GormPaymentRepository) GetByToken(ctx context.Context, token string) (*models.Payment, error) {
	return r.first(ctx, "token = ?", token)
}

// GetByTrackingNumber 根据追踪号获取支付记录
func (r *GormPaymentRepository) GetByTrackingNumber(ctx context.Context, trackingNumber int64) (*models.Payment, error) {
	return r.first(ctx, "tracking_number = ?", trackingNumber)
}

func (r *GormPaymentRepository) first(ctx context.Context, cond string, arg interface{}) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where(cond, arg).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// List 支付列表
func (r *GormPaymentRepository) List(ctx context.Context, filter PaymentListFilter) ([]models.Payment, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Payment{})
	if filter.GatewayName != "" {
		query = query.Where("gateway_name = ?", filter.GatewayName)
	}
	if filter.IsCompleted != nil {
		query = query.Where("is_completed = ?", *filter.IsCompleted)
	}
	if filter.IsPaid != nil {
		query = query.Where("is_paid = ?", *filter.IsPaid)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var payments []models.Payment
	query = applyPagination(query, filter.Page, filter.PageSize)
	if err := query.Order("id desc").Find(&payments).Error; err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}
