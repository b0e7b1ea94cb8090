package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// tokenExpiryMargin 提前刷新访问令牌的余量
const tokenExpiryMargin = time.Minute

// apiError PayPal 返回的 4xx 业务错误
type apiError struct {
	StatusCode int
	Name       string
	Issue      string
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("paypal api error %d %s %s: %s", e.StatusCode, e.Name, e.Issue, e.Message)
}

func (e *apiError) describe() string {
	if e.Issue != "" {
		return e.Issue
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Name
}

func (g *Gateway) accessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.token != "" && g.now().Before(g.tokenExpiresAt) {
		return g.token, nil
	}

	values := url.Values{}
	values.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(values.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: build token request failed", ErrAuthFailed)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(g.cfg.ClientID, g.cfg.ClientSecret)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: request token failed", ErrAuthFailed)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read token response failed", ErrAuthFailed)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: token status %d", ErrAuthFailed, resp.StatusCode)
	}
	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode token response failed", ErrAuthFailed)
	}
	if strings.TrimSpace(parsed.AccessToken) == "" {
		return "", fmt.Errorf("%w: access_token is empty", ErrAuthFailed)
	}
	g.token = strings.TrimSpace(parsed.AccessToken)
	g.tokenExpiresAt = g.now().Add(time.Duration(parsed.ExpiresIn)*time.Second - tokenExpiryMargin)
	return g.token, nil
}

// doJSON 携带访问令牌调用 REST 接口，4xx 转为 *apiError
func (g *Gateway) doJSON(ctx context.Context, method, path string, payload interface{}) (map[string]interface{}, error) {
	token, err := g.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal request failed", ErrRequestFailed)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response failed", ErrRequestFailed)
	}

	raw := map[string]interface{}{}
	if len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, &raw); err != nil {
			return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
		}
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return raw, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusUnauthorized:
		return nil, &apiError{
			StatusCode: resp.StatusCode,
			Name:       readString(raw, "name"),
			Issue:      readString(raw, "details", "0", "issue"),
			Message:    readString(raw, "message"),
		}
	default:
		return nil, fmt.Errorf("%w: status %d", ErrResponseInvalid, resp.StatusCode)
	}
}

func approveLink(raw map[string]interface{}) string {
	links, _ := raw["links"].([]interface{})
	for _, item := range links {
		link, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		rel := strings.ToLower(readString(link, "rel"))
		if rel == "approve" || rel == "payer-action" {
			return readString(link, "href")
		}
	}
	return ""
}

// readString 按路径读取字符串，数字段表示数组下标
func readString(raw map[string]interface{}, path ...string) string {
	var current interface{} = raw
	for _, seg := range path {
		if idx, err := strconv.Atoi(seg); err == nil {
			arr, ok := current.([]interface{})
			if !ok || idx < 0 || idx >= len(arr) {
				return ""
			}
			current = arr[idx]
			continue
		}
		node, ok := current.(map[string]interface{})
		if !ok {
			return ""
		}
		current = node[seg]
	}
	switch v := current.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}
