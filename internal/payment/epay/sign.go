package epay

import (
	"crypto"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"sort"
	"strings"
)

// sign 按配置的版本对参数签名
func (c *Config) sign(params map[string]string) (string, error) {
	content := buildSignContent(params)
	if c.EpayVersion == VersionV2 {
		key, err := parseRSAPrivateKey(c.PrivateKey)
		if err != nil {
			return "", err
		}
		hashed := sha256.Sum256([]byte(content))
		signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hashed[:])
		if err != nil {
			return "", err
		}
		return base64.StdEncoding.EncodeToString(signature), nil
	}
	return signMD5(content + c.MerchantKey), nil
}

// verify 校验回调签名
func (c *Config) verify(params map[string]string) error {
	signature := strings.TrimSpace(params["sign"])
	if signature == "" {
		return ErrSignatureInvalid
	}
	content := buildSignContent(params)
	if c.EpayVersion == VersionV2 {
		key, err := parseRSAPublicKey(c.PublicKey)
		if err != nil {
			return ErrSignatureInvalid
		}
		raw, err := base64.StdEncoding.DecodeString(signature)
		if err != nil {
			return ErrSignatureInvalid
		}
		hashed := sha256.Sum256([]byte(content))
		if rsa.VerifyPKCS1v15(key, crypto.SHA256, hashed[:], raw) != nil {
			return ErrSignatureInvalid
		}
		return nil
	}
	if !strings.EqualFold(signMD5(content+c.MerchantKey), signature) {
		return ErrSignatureInvalid
	}
	return nil
}

// buildSignContent 去掉空值与签名字段后按 key 排序拼接
func buildSignContent(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" || k == "sign" || k == "sign_type" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	return strings.Join(pairs, "&")
}

func signMD5(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

func parseRSAPrivateKey(raw string) (*rsa.PrivateKey, error) {
	for _, der := range keyCandidates(raw) {
		if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
			if rsaKey, ok := key.(*rsa.PrivateKey); ok {
				return rsaKey, nil
			}
		}
		if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
			return key, nil
		}
	}
	return nil, ErrConfigInvalid
}

func parseRSAPublicKey(raw string) (*rsa.PublicKey, error) {
	for _, der := range keyCandidates(raw) {
		if key, err := x509.ParsePKIXPublicKey(der); err == nil {
			if rsaKey, ok := key.(*rsa.PublicKey); ok {
				return rsaKey, nil
			}
		}
		if key, err := x509.ParsePKCS1PublicKey(der); err == nil {
			return key, nil
		}
	}
	return nil, ErrConfigInvalid
}

// keyCandidates 同时支持 PEM 与去掉头尾的 base64 密钥正文
func keyCandidates(raw string) [][]byte {
	normalized := strings.ReplaceAll(strings.TrimSpace(raw), "\\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r\n", "\n")

	var out [][]byte
	if block, _ := pem.Decode([]byte(normalized)); block != nil {
		out = append(out, block.Bytes)
	}
	var body strings.Builder
	for _, line := range strings.Split(normalized, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-----") {
			continue
		}
		body.WriteString(line)
	}
	if decoded, err := base64.StdEncoding.DecodeString(body.String()); err == nil && len(decoded) > 0 {
		out = append(out, decoded)
	}
	return out
}
