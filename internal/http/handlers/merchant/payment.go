package merchant

import (
	"strconv"
	"strings"
	"time"

	"github.com/gateflow/internal/http/handlers/shared"
	"github.com/gateflow/internal/http/response"
	"github.com/gateflow/internal/models"
	"github.com/gateflow/internal/payment"
	"github.com/gateflow/internal/repository"

	"github.com/gin-gonic/gin"
)

// CreatePaymentRequest 发起支付请求，tracking_number 为空时自动分配
type CreatePaymentRequest struct {
	TrackingNumber int64        `json:"tracking_number"`
	Amount         models.Money `json:"amount"`
	Gateway        string       `json:"gateway" binding:"required"`
}

// CancelPaymentRequest 取消支付请求
type CancelPaymentRequest struct {
	Reason string `json:"reason"`
}

// RefundPaymentRequest 退款请求，amount 为空表示退还剩余金额
type RefundPaymentRequest struct {
	Amount models.Money `json:"amount"`
}

// CreatePayment 发起支付
func (h *Handler) CreatePayment(c *gin.Context) {
	merchant, ok := shared.MerchantFromContext(c)
	if !ok {
		return
	}
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		shared.RespondError(c, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	if req.TrackingNumber < 0 {
		shared.RespondError(c, response.CodeBadRequest, "invalid tracking number", nil)
		return
	}

	result, err := h.OnlinePayment.Request(c.Request.Context(), payment.Invoice{
		TrackingNumber: req.TrackingNumber,
		Amount:         req.Amount,
		GatewayName:    strings.TrimSpace(req.Gateway),
		CallbackURL:    h.callbackURL(),
	})
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	shared.RequestLog(c).Infow("merchant_payment_requested",
		"merchant", merchant,
		"tracking_number", result.TrackingNumber,
		"status", result.Status,
	)
	response.Success(c, result)
}

// ListPayments 支付列表
func (h *Handler) ListPayments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = shared.NormalizePagination(page, pageSize)

	filter := repository.PaymentListFilter{
		Page:        page,
		PageSize:    pageSize,
		GatewayName: strings.TrimSpace(c.Query("gateway")),
		IsCompleted: parseOptionalBool(c.Query("is_completed")),
		IsPaid:      parseOptionalBool(c.Query("is_paid")),
		CreatedFrom: parseOptionalTime(c.Query("created_from")),
		CreatedTo:   parseOptionalTime(c.Query("created_to")),
	}
	payments, total, err := h.OnlinePayment.List(c.Request.Context(), filter)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, payments, response.NewPagination(page, pageSize, total))
}

// FetchPayment 读取网关对支付的当前结论
func (h *Handler) FetchPayment(c *gin.Context) {
	trackingNumber, ok := shared.ParseTrackingNumber(c)
	if !ok {
		return
	}
	result, err := h.OnlinePayment.Fetch(c.Request.Context(), trackingNumber)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.Success(c, result)
}

// PaymentHistory 支付记录与流水
func (h *Handler) PaymentHistory(c *gin.Context) {
	trackingNumber, ok := shared.ParseTrackingNumber(c)
	if !ok {
		return
	}
	history, err := h.OnlinePayment.History(c.Request.Context(), trackingNumber)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{
		"payment":      history.Payment,
		"transactions": history.Transactions,
	})
}

// VerifyPayment 核验支付
func (h *Handler) VerifyPayment(c *gin.Context) {
	trackingNumber, ok := shared.ParseTrackingNumber(c)
	if !ok {
		return
	}
	result, err := h.OnlinePayment.Verify(c.Request.Context(), trackingNumber)
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.Success(c, result)
}

// CancelPayment 取消支付
func (h *Handler) CancelPayment(c *gin.Context) {
	trackingNumber, ok := shared.ParseTrackingNumber(c)
	if !ok {
		return
	}
	var req CancelPaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			shared.RespondError(c, response.CodeBadRequest, "invalid request body", nil)
			return
		}
	}
	result, err := h.OnlinePayment.Cancel(c.Request.Context(), trackingNumber, strings.TrimSpace(req.Reason))
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.Success(c, result)
}

// RefundPayment 退款
func (h *Handler) RefundPayment(c *gin.Context) {
	trackingNumber, ok := shared.ParseTrackingNumber(c)
	if !ok {
		return
	}
	var req RefundPaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			shared.RespondError(c, response.CodeBadRequest, "invalid request body", nil)
			return
		}
	}
	result, err := h.OnlinePayment.Refund(c.Request.Context(), payment.RefundInvoice{
		TrackingNumber: trackingNumber,
		Amount:         req.Amount,
	})
	if err != nil {
		shared.RespondServiceError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *Handler) callbackURL() string {
	base := strings.TrimRight(strings.TrimSpace(h.Config.Server.PublicBaseURL), "/")
	return base + "/" + strings.TrimLeft(strings.TrimSpace(h.Config.Payment.CallbackPath), "/")
}

func parseOptionalBool(raw string) *bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &value
}

func parseOptionalTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &value
}
