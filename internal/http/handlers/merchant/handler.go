package merchant

import "github.com/gateflow/internal/provider"

// Handler 商户接口处理器
// 说明：登录之外的接口都要求商户 JWT。
type Handler struct {
	*provider.Container
}

// New 创建商户处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
