package alipay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const codeSuccess = "10000"

// businessError 网关接口返回非 10000 的业务码
type businessError struct {
	Code    string
	SubCode string
	Message string
}

func (e *businessError) Error() string {
	return fmt.Sprintf("alipay business error %s %s: %s", e.Code, e.SubCode, e.Message)
}

// signedParams 组装公共参数并签名
func (g *Gateway) signedParams(method string, bizContent map[string]interface{}, extra map[string]string) (map[string]string, error) {
	biz, err := json.Marshal(bizContent)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal biz_content failed", ErrSignGenerate)
	}
	params := map[string]string{
		"app_id":      g.cfg.AppID,
		"method":      method,
		"format":      "JSON",
		"charset":     "utf-8",
		"sign_type":   g.cfg.SignType,
		"timestamp":   g.now().Format("2006-01-02 15:04:05"),
		"version":     "1.0",
		"biz_content": string(biz),
	}
	if g.cfg.AppCertSN != "" {
		params["app_cert_sn"] = g.cfg.AppCertSN
	}
	if g.cfg.AlipayRootCertSN != "" {
		params["alipay_root_cert_sn"] = g.cfg.AlipayRootCertSN
	}
	for key, value := range extra {
		if strings.TrimSpace(value) != "" {
			params[key] = value
		}
	}
	sign, err := signContent(buildSignContent(params), g.cfg.PrivateKey, g.cfg.SignType)
	if err != nil {
		return nil, err
	}
	params["sign"] = sign
	return params, nil
}

// call 调用开放平台接口，返回 <method>_response 节点
func (g *Gateway) call(ctx context.Context, method string, bizContent map[string]interface{}, extra map[string]string) (map[string]interface{}, error) {
	params, err := g.signedParams(method, bizContent, extra)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.GatewayURL, strings.NewReader(encodeParams(params)))
	if err != nil {
		return nil, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response failed", ErrRequestFailed)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrResponseInvalid, resp.StatusCode)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}
	responseKey := strings.ReplaceAll(method, ".", "_") + "_response"
	node, ok := raw[responseKey].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s not found", ErrResponseInvalid, responseKey)
	}
	if code := readString(node, "code"); code != codeSuccess {
		message := readString(node, "sub_msg")
		if message == "" {
			message = readString(node, "msg")
		}
		return nil, &businessError{Code: code, SubCode: readString(node, "sub_code"), Message: message}
	}
	return node, nil
}

// payURL 页面支付直接拼接带签名的网关地址
func (g *Gateway) payURL(params map[string]string) string {
	parsed, err := url.Parse(g.cfg.GatewayURL)
	if err != nil {
		return g.cfg.GatewayURL + "?" + encodeParams(params)
	}
	parsed.RawQuery = encodeParams(params)
	return parsed.String()
}

func encodeParams(params map[string]string) string {
	form := url.Values{}
	for key, value := range params {
		if strings.TrimSpace(key) == "" || strings.TrimSpace(value) == "" {
			continue
		}
		form.Set(key, value)
	}
	return form.Encode()
}

func readString(raw map[string]interface{}, key string) string {
	value, ok := raw[key]
	if !ok || value == nil {
		return ""
	}
	if str, ok := value.(string); ok {
		return strings.TrimSpace(str)
	}
	return strings.TrimSpace(fmt.Sprintf("%v", value))
}

func newHTTPClient(timeoutSeconds int) *http.Client {
	return &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second}
}
