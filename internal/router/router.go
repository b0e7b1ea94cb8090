package router

import (
	"strings"

	"github.com/gateflow/internal/cache"
	"github.com/gateflow/internal/config"
	merchanthandlers "github.com/gateflow/internal/http/handlers/merchant"
	publichandlers "github.com/gateflow/internal/http/handlers/public"
	"github.com/gateflow/internal/http/response"
	"github.com/gateflow/internal/logger"
	"github.com/gateflow/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	r := gin.New()

	// 初始化 Handler（商户接口与公开接口分组）
	publicHandler := publichandlers.New(c)
	merchantHandler := merchanthandlers.New(c)
	redisClient := cache.Client()
	loginRule := RateLimitRule{
		Prefix:        "rate:merchant_login",
		WindowSeconds: cfg.RateLimit.Login.WindowSeconds,
		MaxRequests:   cfg.RateLimit.Login.MaxRequests,
		Message:       "too many login attempts, retry later",
	}
	callbackRule := RateLimitRule{
		Prefix:        "rate:payment_callback",
		WindowSeconds: cfg.RateLimit.Callback.WindowSeconds,
		MaxRequests:   cfg.RateLimit.Callback.MaxRequests,
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(logger.Z()))
	r.Use(CORSMiddleware(cfg.CORS))

	// 网关回调，路径可配置
	callbackPath := normalizePath(cfg.Payment.CallbackPath, "/api/v1/payments/callback")
	callbackLimiter := RateLimitMiddleware(redisClient, callbackRule, KeyByIP)
	r.GET(callbackPath, callbackLimiter, publicHandler.PaymentCallback)
	r.POST(callbackPath, callbackLimiter, publicHandler.PaymentCallback)

	// 虚拟网关模拟银行页面
	if c.VirtualGateway != nil {
		gatewayPath := normalizePath(cfg.Payment.Virtual.GatewayPath, "/virtual-gateway")
		r.SetHTMLTemplate(publichandlers.VirtualGatewayTemplate())
		r.GET(gatewayPath, publicHandler.VirtualGateway)
		r.POST(gatewayPath, publicHandler.VirtualGateway)
	}

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/merchant/login", RateLimitMiddleware(redisClient, loginRule, KeyByIPAndJSONField("name")), merchantHandler.Login)

		authorized := apiV1.Group("/payments")
		authorized.Use(MerchantJWTMiddleware(c.MerchantAuthService), MerchantAuthzMiddleware(c.Authz))
		{
			authorized.GET("", merchantHandler.ListPayments)
			authorized.POST("", merchantHandler.CreatePayment)
			authorized.GET("/:tracking_number", merchantHandler.FetchPayment)
			authorized.GET("/:tracking_number/transactions", merchantHandler.PaymentHistory)
			authorized.POST("/:tracking_number/verify", merchantHandler.VerifyPayment)
			authorized.POST("/:tracking_number/cancel", merchantHandler.CancelPayment)
			authorized.POST("/:tracking_number/refund", merchantHandler.RefundPayment)
		}
	}

	// 健康检查
	r.GET("/health", publicHandler.Health)

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "route not found")
	})

	return r
}

func normalizePath(path, fallback string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		path = fallback
	}
	return "/" + strings.TrimLeft(path, "/")
}
