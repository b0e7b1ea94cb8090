package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrPaidWithoutCompletion 已支付的记录必须已完成
var ErrPaidWithoutCompletion = errors.New("payment cannot be paid before it is completed")

// Payment 支付记录，由编排器创建与变更
type Payment struct {
	ID                 uint      `gorm:"primarykey" json:"id"`                                // 主键
	TrackingNumber     int64     `gorm:"uniqueIndex;not null" json:"tracking_number"`         // 业务追踪号，全局唯一
	Amount             Money     `gorm:"type:decimal(20,2);not null" json:"amount"`           // 支付金额
	Token              string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`      // 回调关联令牌，全局唯一
	GatewayName        string    `gorm:"type:varchar(64);index;not null" json:"gateway_name"` // 网关名称
	GatewayAccountName string    `gorm:"type:varchar(64)" json:"gateway_account_name"`        // 网关账号
	IsCompleted        bool      `gorm:"not null;default:false;index" json:"is_completed"`    // 是否已终结
	IsPaid             bool      `gorm:"not null;default:false" json:"is_paid"`               // 是否已支付
	TransactionCode    string    `gorm:"type:varchar(128)" json:"transaction_code,omitempty"` // 网关流水号，核验成功后写入
	CreatedAt          time.Time `gorm:"index" json:"created_at"`                             // 创建时间
	UpdatedAt          time.Time `json:"updated_at"`                                          // 更新时间
}

// TableName 指定表名
func (Payment) TableName() string {
	return "payments"
}

// BeforeSave 校验支付状态组合
func (p *Payment) BeforeSave(tx *gorm.DB) error {
	if p.IsPaid && !p.IsCompleted {
		return ErrPaidWithoutCompletion
	}
	return nil
}
