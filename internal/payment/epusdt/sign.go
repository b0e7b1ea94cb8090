package epusdt

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Sign 非空参数按键名排序拼接 key=value，末尾追加 AuthToken 后取 md5 小写
func Sign(params map[string]interface{}, authToken string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if k == "signature" || isEmptyValue(v) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, params[k]))
	}
	sum := md5.Sum([]byte(strings.Join(pairs, "&") + authToken))
	return hex.EncodeToString(sum[:])
}

func isEmptyValue(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
