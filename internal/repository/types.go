package repository

import "time"

// PaymentListFilter 查询支付列表的过滤条件
type PaymentListFilter struct {
	Page        int
	PageSize    int
	GatewayName string
	IsCompleted *bool
	IsPaid      *bool
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}
