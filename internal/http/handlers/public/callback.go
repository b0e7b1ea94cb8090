package public

import (
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/gateflow/internal/constants"
	"github.com/gateflow/internal/http/handlers/shared"
	"github.com/gateflow/internal/http/response"
	"github.com/gateflow/internal/logger"
	"github.com/gateflow/internal/payment"
	"github.com/gateflow/internal/queue"

	"github.com/gin-gonic/gin"
)

const (
	callbackLogValueLimit = 256
	callbackBodyLimit     = 1 << 20
)

var maskedCallbackKeys = map[string]struct{}{"sign": {}, "signature": {}}

// PaymentCallback 网关回调入口：解析并保存回调，随后同步核验或投递异步核验
func (h *Handler) PaymentCallback(c *gin.Context) {
	log := shared.RequestLog(c)
	cb, err := readCallback(c)
	if err != nil {
		log.Warnw("payment_callback_parse_failed", "error", err)
		shared.RespondError(c, response.CodeBadRequest, "invalid callback payload", nil)
		return
	}
	log.Infow("payment_callback_received",
		"method", c.Request.Method,
		"client_ip", c.ClientIP(),
		"params", callbackParamsForLog(cb),
	)

	ctx := payment.WithCallback(c.Request.Context(), cb)
	fetched, err := h.OnlinePayment.FetchAndStore(ctx)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	if !fetched.IsSucceed() {
		log.Infow("payment_callback_not_ready",
			"tracking_number", fetched.TrackingNumber,
			"status", fetched.Status,
		)
		h.respondCallback(c, fetched, nil, false)
		return
	}

	if h.Config.Queue.AutoVerify && h.QueueClient.Enabled() {
		err := h.QueueClient.EnqueuePaymentVerify(ctx, queue.PaymentVerifyPayload{
			TrackingNumber: fetched.TrackingNumber,
			RequestID:      logger.RequestID(ctx),
		})
		if err == nil {
			log.Infow("payment_callback_verify_enqueued", "tracking_number", fetched.TrackingNumber)
			h.respondCallback(c, fetched, nil, true)
			return
		}
		if !errors.Is(err, queue.ErrQueueDisabled) {
			log.Warnw("payment_callback_enqueue_failed_fallback_inline",
				"tracking_number", fetched.TrackingNumber,
				"error", err,
			)
		}
	}

	verified, err := h.OnlinePayment.Verify(ctx, fetched.TrackingNumber)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	h.respondCallback(c, fetched, verified, false)
}

// readCallback 合并 query、表单与 JSON 请求体中的回调参数
func readCallback(c *gin.Context) (payment.Callback, error) {
	if err := c.Request.ParseForm(); err != nil {
		return nil, err
	}
	cb := payment.CallbackFromValues(c.Request.Form)
	if c.ContentType() != gin.MIMEJSON || c.Request.Body == nil {
		return cb, nil
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, callbackBodyLimit))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return cb, nil
	}
	fromBody, err := payment.CallbackFromJSON(body)
	if err != nil {
		return nil, err
	}
	return cb.Merge(fromBody), nil
}

func (h *Handler) respondCallback(c *gin.Context, fetched *payment.FetchResult, verified *payment.VerifyResult, queued bool) {
	// epay 与支付宝异步通知只认纯文本应答
	if textAckGateway(fetched.GatewayName, c.Request.Method) {
		if queued || (verified != nil && verified.Status != payment.VerifyFailed) || fetched.Status == payment.FetchAlreadyProcessed {
			c.String(http.StatusOK, constants.EpayCallbackSuccess)
			return
		}
		c.String(http.StatusOK, constants.EpayCallbackFail)
		return
	}
	// BEpusdt 通知以 ok 作为确认
	if strings.EqualFold(fetched.GatewayName, constants.GatewayEpusdt) && c.ContentType() == gin.MIMEJSON {
		if queued || verified != nil || fetched.Status == payment.FetchAlreadyProcessed {
			c.String(http.StatusOK, constants.EpusdtCallbackSuccess)
			return
		}
		c.String(http.StatusOK, constants.EpayCallbackFail)
		return
	}
	data := gin.H{
		"fetch":  fetched,
		"queued": queued,
	}
	if verified != nil {
		data["verify"] = verified
	}
	response.Success(c, data)
}

func textAckGateway(name, method string) bool {
	if strings.EqualFold(name, constants.GatewayEpay) {
		return true
	}
	// 支付宝同步跳转为 GET，异步通知为 POST
	return strings.EqualFold(name, constants.GatewayAlipay) && method == http.MethodPost
}

func callbackParamsForLog(cb payment.Callback) string {
	keys := make([]string, 0, len(cb))
	for key := range cb {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		value := cb[key]
		if _, ok := maskedCallbackKeys[strings.ToLower(key)]; ok {
			value = "***"
		}
		parts = append(parts, key+"="+value)
	}
	raw := strings.Join(parts, "&")
	if len(raw) <= callbackLogValueLimit {
		return raw
	}
	return raw[:callbackLogValueLimit] + "...(truncated)"
}
