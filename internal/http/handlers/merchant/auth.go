package merchant

import (
	"strings"

	"github.com/gateflow/internal/http/handlers/shared"
	"github.com/gateflow/internal/http/response"

	"github.com/gin-gonic/gin"
)

// LoginRequest 商户登录请求
type LoginRequest struct {
	Name   string `json:"name" binding:"required"`
	Secret string `json:"secret" binding:"required"`
}

// Login 商户登录
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		shared.RespondError(c, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	token, expiresAt, err := h.MerchantAuthService.Login(strings.TrimSpace(req.Name), req.Secret)
	if err != nil {
		shared.RequestLog(c).Warnw("merchant_login_failed", "merchant", req.Name)
		shared.RespondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{
		"token":      token,
		"expires_at": expiresAt,
	})
}
