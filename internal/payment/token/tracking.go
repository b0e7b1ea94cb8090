package token

import (
	"crypto/rand"
	"errors"
	"math"
	"math/big"
)

// DefaultMinimumTrackingNumber 自动追踪号下限
const DefaultMinimumTrackingNumber int64 = 1000

// ErrInvalidTrackingRange 下限不合法
var ErrInvalidTrackingRange = errors.New("tracking number minimum must be positive")

// RandomTrackingNumber 生成不小于下限的随机追踪号
type RandomTrackingNumber struct {
	Minimum int64
}

// NewRandomTrackingNumber 创建随机追踪号生成器，minimum 非正时取默认值
func NewRandomTrackingNumber(minimum int64) *RandomTrackingNumber {
	if minimum <= 0 {
		minimum = DefaultMinimumTrackingNumber
	}
	return &RandomTrackingNumber{Minimum: minimum}
}

// Next 生成追踪号
func (g *RandomTrackingNumber) Next() (int64, error) {
	minimum := g.Minimum
	if minimum <= 0 {
		return 0, ErrInvalidTrackingRange
	}
	n, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64-minimum))
	if err != nil {
		return 0, err
	}
	return minimum + n.Int64(), nil
}
