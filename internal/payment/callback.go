package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/gateflow/internal/constants"
)

// Callback 网关回调携带的参数（query 与 form 合并）
type Callback map[string]string

type callbackKey struct{}

// CallbackFromValues 从 url.Values 构建回调参数，同名参数取第一个非空值
func CallbackFromValues(values url.Values) Callback {
	cb := make(Callback, len(values))
	for key, items := range values {
		for _, item := range items {
			if strings.TrimSpace(item) != "" {
				cb[key] = item
				break
			}
		}
		if _, ok := cb[key]; !ok {
			cb[key] = ""
		}
	}
	return cb
}

// CallbackFromJSON 把 JSON 对象的顶层字段展开为回调参数，嵌套对象保留为 JSON 文本
func CallbackFromJSON(body []byte) (Callback, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var raw map[string]interface{}
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode callback json: %w", err)
	}
	cb := make(Callback, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case nil:
			cb[key] = ""
		case string:
			cb[key] = v
		case json.Number:
			cb[key] = v.String()
		case bool:
			if v {
				cb[key] = "true"
			} else {
				cb[key] = "false"
			}
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encode callback field %s: %w", key, err)
			}
			cb[key] = string(encoded)
		}
	}
	return cb, nil
}

// Merge 合并回调参数，已有的非空值不被覆盖
func (c Callback) Merge(other Callback) Callback {
	if c == nil {
		c = make(Callback, len(other))
	}
	for key, value := range other {
		if existing, ok := c[key]; ok && strings.TrimSpace(existing) != "" {
			continue
		}
		c[key] = value
	}
	return c
}

// Get 按名称读取参数，找不到时忽略大小写再找一次
func (c Callback) Get(name string) (string, bool) {
	if c == nil {
		return "", false
	}
	if value, ok := c[name]; ok {
		return value, true
	}
	for key, value := range c {
		if strings.EqualFold(key, name) {
			return value, true
		}
	}
	return "", false
}

// WithCallback 把当前入站回调放入 context
func WithCallback(ctx context.Context, cb Callback) context.Context {
	return context.WithValue(ctx, callbackKey{}, cb)
}

// CallbackFrom 读取 context 中的入站回调
func CallbackFrom(ctx context.Context) (Callback, bool) {
	if ctx == nil {
		return nil, false
	}
	cb, ok := ctx.Value(callbackKey{}).(Callback)
	return cb, ok && cb != nil
}

// StoredCallback 还原已保存的 callback 流水，优先取最近一条成功的记录
func StoredCallback(invoiceCtx InvoiceContext) (Callback, bool) {
	var fallback Callback
	for i := len(invoiceCtx.Transactions) - 1; i >= 0; i-- {
		txn := invoiceCtx.Transactions[i]
		if txn.Type != constants.TransactionTypeCallback || strings.TrimSpace(txn.AdditionalData) == "" {
			continue
		}
		var cb Callback
		if err := json.Unmarshal([]byte(txn.AdditionalData), &cb); err != nil || len(cb) == 0 {
			continue
		}
		if txn.IsSucceed {
			return cb, true
		}
		if fallback == nil {
			fallback = cb
		}
	}
	return fallback, fallback != nil
}

// ResolveCallback 当前入站回调带有 fields 中任一字段时使用它，否则回退到已保存的 callback 流水。
// fields 为空时只要入站回调非空即使用。
func ResolveCallback(ctx context.Context, invoiceCtx InvoiceContext, fields ...string) (Callback, bool) {
	if cb, ok := CallbackFrom(ctx); ok && cb.hasAny(fields) {
		return cb, true
	}
	return StoredCallback(invoiceCtx)
}

func (c Callback) hasAny(fields []string) bool {
	if len(fields) == 0 {
		return len(c) > 0
	}
	for _, field := range fields {
		if value, ok := c.Get(field); ok && strings.TrimSpace(value) != "" {
			return true
		}
	}
	return false
}
