package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gateflow/internal/authz"
	"github.com/gateflow/internal/cache"
	"github.com/gateflow/internal/config"
	"github.com/gateflow/internal/logger"
	"github.com/gateflow/internal/models"
	"github.com/gateflow/internal/payment"
	"github.com/gateflow/internal/payment/alipay"
	"github.com/gateflow/internal/payment/epay"
	"github.com/gateflow/internal/payment/epusdt"
	"github.com/gateflow/internal/payment/paypal"
	"github.com/gateflow/internal/payment/stripe"
	"github.com/gateflow/internal/payment/token"
	"github.com/gateflow/internal/payment/virtual"
	"github.com/gateflow/internal/payment/wechatpay"
	"github.com/gateflow/internal/queue"
	"github.com/gateflow/internal/repository"
	"github.com/gateflow/internal/service"

	"gorm.io/gorm"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	PaymentRepo     repository.PaymentRepository
	TransactionRepo repository.TransactionRepository

	// Payment
	Registry       *payment.Registry
	TokenProvider  *token.QueryProvider
	VirtualGateway *virtual.Gateway
	Messages       payment.Messages

	// Authz 商户接口授权
	Authz *authz.Service

	// Services
	OnlinePayment       *service.OnlinePayment
	MerchantAuthService *service.MerchantAuthService
}

// NewContainer 初始化容器，网关配置错误时直接失败
func NewContainer(cfg *config.Config) (*Container, error) {
	return NewContainerWithDB(cfg, models.DB)
}

// NewContainerWithDB 使用指定数据库初始化容器
func NewContainerWithDB(cfg *config.Config, db *gorm.DB) (*Container, error) {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	queueClient, err := queue.NewClient(&cfg.Queue)
	if err != nil {
		logger.Errorw("provider_init_queue_client_failed", "error", err)
		return nil, err
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
		Messages:    payment.MessagesFromConfig(cfg.Payment.Messages),
	}

	// 1. 初始化 Repositories
	c.PaymentRepo = repository.NewPaymentRepository(db)
	c.TransactionRepo = repository.NewTransactionRepository(db)

	// 2. 初始化网关
	if err := c.initGateways(); err != nil {
		return nil, err
	}

	// 3. 初始化商户授权
	if err := c.initAuthz(db); err != nil {
		return nil, err
	}

	// 4. 初始化 Services
	c.initServices()
	return c, nil
}

func (c *Container) initGateways() error {
	c.Registry = payment.NewRegistry()
	c.TokenProvider = token.NewQueryProvider(c.Config.Payment.TokenQueryName)

	if c.Config.Payment.Virtual.Enabled {
		c.VirtualGateway = virtual.New(virtual.Config{
			BaseURL:     c.Config.Server.PublicBaseURL,
			GatewayPath: c.Config.Payment.Virtual.GatewayPath,
		}, c.Messages)
		if err := c.Registry.Register(c.VirtualGateway, ""); err != nil {
			return err
		}
	}

	for name, gatewayCfg := range c.Config.Gateways {
		if !gatewayCfg.Enabled {
			continue
		}
		gateway, err := c.buildGateway(context.Background(), name, gatewayCfg)
		if err != nil {
			logger.Errorw("provider_init_gateway_failed", "gateway", name, "error", err)
			return err
		}
		if err := c.Registry.Register(gateway, gatewayCfg.Account); err != nil {
			return err
		}
	}
	logger.Infow("provider_gateways_registered", "gateways", c.Registry.Names())
	return nil
}

// buildGateway 按名称创建网关，支付宝验签需忽略回调地址上的令牌参数
func (c *Container) buildGateway(ctx context.Context, name string, cfg config.GatewayConfig) (payment.Gateway, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case epay.Name:
		return epay.New(cfg.Options, c.Messages)
	case epusdt.Name:
		return epusdt.New(cfg.Options, c.Messages)
	case alipay.Name:
		return alipay.New(cfg.Options, c.Messages, c.Config.Payment.TokenQueryName)
	case wechatpay.Name:
		return wechatpay.New(ctx, cfg.Options, c.Messages)
	case paypal.Name:
		return paypal.New(cfg.Options, c.Messages)
	case stripe.Name:
		return stripe.New(cfg.Options, c.Messages)
	default:
		return nil, fmt.Errorf("%w: unsupported gateway %s", payment.ErrGatewayNotRegistered, name)
	}
}

func (c *Container) initAuthz(db *gorm.DB) error {
	svc, err := authz.NewService(db)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		return err
	}
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		return err
	}
	items := make([]authz.MerchantRoles, 0, len(c.Config.Merchant.Accounts))
	for _, account := range c.Config.Merchant.Accounts {
		items = append(items, authz.MerchantRoles{Merchant: account.Name, Roles: account.Roles})
	}
	if err := svc.SyncMerchantRoles(items); err != nil {
		return err
	}
	c.Authz = svc
	return nil
}

func (c *Container) initServices() {
	ttl := time.Duration(c.Config.Payment.LockTTLSeconds) * time.Second
	c.OnlinePayment = service.NewOnlinePayment(service.OnlinePaymentOptions{
		Payments:        c.PaymentRepo,
		Transactions:    c.TransactionRepo,
		Registry:        c.Registry,
		Tokens:          c.TokenProvider,
		TrackingNumbers: token.NewRandomTrackingNumber(c.Config.Payment.MinTrackingNumber),
		Locker:          cache.NewLocker(ttl),
		Messages:        c.Messages,
		Logger:          logger.Named("online_payment"),
	})
	c.MerchantAuthService = service.NewMerchantAuthService(c.Config.Merchant)
}

// Close 释放外部连接
func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	if err := c.QueueClient.Close(); err != nil {
		return err
	}
	return cache.Close()
}
