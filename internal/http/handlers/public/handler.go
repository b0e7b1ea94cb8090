package public

import "github.com/gateflow/internal/provider"

// Handler 公开接口处理器
// 说明：回调、虚拟网关页面与健康检查不需要鉴权。
type Handler struct {
	*provider.Container
}

// New 创建公开接口处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
