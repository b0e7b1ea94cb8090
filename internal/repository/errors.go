package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrDuplicateTrackingNumber 追踪号唯一约束冲突
	ErrDuplicateTrackingNumber = errors.New("payment tracking number already exists")
	// ErrDuplicateToken 令牌唯一约束冲突
	ErrDuplicateToken = errors.New("payment token already exists")
	// ErrPaymentCompleted 支付已终结，拒绝再次变更
	ErrPaymentCompleted = errors.New("payment is already completed")
)

const pgUniqueViolation = "23505"

// uniqueViolationColumn 判断是否唯一约束冲突，并尽量给出冲突列
func uniqueViolationColumn(err error) (bool, string) {
	if err == nil {
		return false, ""
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return false, ""
		}
		return true, columnFromText(pgErr.ConstraintName + " " + pgErr.Detail)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true, ""
	}
	msg := strings.ToLower(err.Error())
	// sqlite: UNIQUE constraint failed: payments.token
	if strings.Contains(msg, "unique constraint failed") || strings.Contains(msg, "duplicate key value") {
		return true, columnFromText(msg)
	}
	return false, ""
}

func columnFromText(text string) string {
	text = strings.ToLower(text)
	switch {
	case strings.Contains(text, "tracking_number"):
		return "tracking_number"
	case strings.Contains(text, "token"):
		return "token"
	default:
		return ""
	}
}
