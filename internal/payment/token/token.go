package token

import (
	"context"
	"net/url"
	"strings"

	"github.com/gateflow/internal/payment"

	"github.com/google/uuid"
)

// DefaultQueryName 回调地址中携带令牌的参数名
const DefaultQueryName = "paymentToken"

// QueryProvider 生成 uuid 令牌并追加到回调地址的 query 中
type QueryProvider struct {
	queryName string
	newToken  func() string
}

// NewQueryProvider 创建令牌提供者
func NewQueryProvider(queryName string) *QueryProvider {
	queryName = strings.TrimSpace(queryName)
	if queryName == "" {
		queryName = DefaultQueryName
	}
	return &QueryProvider{
		queryName: queryName,
		newToken: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")
		},
	}
}

// QueryName 令牌参数名
func (p *QueryProvider) QueryName() string {
	return p.queryName
}

// ProvideToken 生成令牌并写入 invoice.CallbackURL
func (p *QueryProvider) ProvideToken(_ context.Context, invoice *payment.Invoice) (string, error) {
	token := p.newToken()
	if invoice != nil {
		invoice.CallbackURL = appendURLQuery(invoice.CallbackURL, map[string]string{p.queryName: token})
	}
	return token, nil
}

// RetrieveToken 从入站回调读取令牌
func (p *QueryProvider) RetrieveToken(ctx context.Context) (string, error) {
	cb, ok := payment.CallbackFrom(ctx)
	if !ok {
		return "", nil
	}
	value, _ := cb.Get(p.queryName)
	return strings.TrimSpace(value), nil
}

func appendURLQuery(rawURL string, params map[string]string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	query := parsed.Query()
	for key, value := range params {
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		query.Set(key, value)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
