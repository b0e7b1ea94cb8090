package shared

import (
	"strconv"
	"strings"

	"github.com/gateflow/internal/constants"
	"github.com/gateflow/internal/http/response"

	"github.com/gin-gonic/gin"
)

// MerchantFromContext 读取鉴权中间件写入的商户名
func MerchantFromContext(c *gin.Context) (string, bool) {
	value, exists := c.Get(constants.ContextKeyMerchant)
	if !exists {
		RespondError(c, response.CodeUnauthorized, "unauthorized", nil)
		return "", false
	}
	merchant, ok := value.(string)
	if !ok || strings.TrimSpace(merchant) == "" {
		RespondError(c, response.CodeUnauthorized, "unauthorized", nil)
		return "", false
	}
	return merchant, true
}

// ParseTrackingNumber 读取路径中的追踪号
func ParseTrackingNumber(c *gin.Context) (int64, bool) {
	raw := strings.TrimSpace(c.Param("tracking_number"))
	trackingNumber, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || trackingNumber <= 0 {
		RespondError(c, response.CodeBadRequest, "invalid tracking number", nil)
		return 0, false
	}
	return trackingNumber, true
}
