package shared

import (
	"github.com/gateflow/internal/cache"
	"github.com/gateflow/internal/http/response"
	"github.com/gateflow/internal/logger"
	"github.com/gateflow/internal/payment"
	"github.com/gateflow/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var serviceErrorMappings = []response.ErrorMapping{
	{Target: service.ErrInvoiceNotFound, Code: response.CodeNotFound, Message: "invoice not found"},
	{Target: service.ErrInvalidInvoice, Code: response.CodeBadRequest},
	{Target: service.ErrPaymentTokenProvider, Code: response.CodeBadRequest, Message: "payment token is missing or invalid"},
	{Target: payment.ErrGatewayNotRegistered, Code: response.CodeBadRequest, Message: "gateway is not registered"},
	{Target: service.ErrInvalidCredentials, Code: response.CodeUnauthorized, Message: "invalid merchant credentials"},
	{Target: service.ErrInvalidToken, Code: response.CodeUnauthorized, Message: "invalid merchant token"},
	{Target: cache.ErrLockTimeout, Code: response.CodeConflict, Message: "payment is being processed, retry later"},
	{Target: service.ErrGatewayNilResult, Code: response.CodeBadGateway, Message: "gateway returned an empty result"},
}

// RequestLog 提供携带 request_id 的日志实例
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil || c.Request == nil {
		return logger.S()
	}
	return logger.FromContext(c.Request.Context(), logger.S())
}

// RespondError 返回错误响应，并在有原始错误时记录日志
func RespondError(c *gin.Context, code int, msg string, err error) {
	appErr := response.WrapError(code, msg, err)
	if err != nil {
		RequestLog(c).Errorw("handler_error",
			"code", appErr.Code,
			"message", appErr.Message,
			"error", err,
		)
	}
	response.Error(c, appErr.Code, appErr.Message)
}

// RespondServiceError 按服务层哨兵错误映射业务码
func RespondServiceError(c *gin.Context, err error) {
	code, msg := response.Resolve(err, serviceErrorMappings...)
	if code >= response.CodeInternal {
		RequestLog(c).Errorw("handler_service_error", "code", code, "error", err)
	} else {
		RequestLog(c).Warnw("handler_service_rejected", "code", code, "error", err)
	}
	response.Error(c, code, msg)
}
