package payment

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrGatewayNotRegistered 网关未注册
	ErrGatewayNotRegistered = errors.New("payment gateway is not registered")
	// ErrGatewayAlreadyRegistered 网关重复注册
	ErrGatewayAlreadyRegistered = errors.New("payment gateway is already registered")
)

// Registration 注册表条目
type Registration struct {
	Gateway     Gateway
	AccountName string
}

// Registry 网关注册表，启动时写入，运行期只读
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]Registration
}

// NewRegistry 创建网关注册表
func NewRegistry() *Registry {
	return &Registry{gateways: make(map[string]Registration)}
}

// Register 注册网关，名称大小写不敏感
func (r *Registry) Register(gateway Gateway, accountName string) error {
	if gateway == nil {
		return fmt.Errorf("%w: nil gateway", ErrGatewayNotRegistered)
	}
	key := normalizeName(gateway.Name())
	if key == "" {
		return fmt.Errorf("%w: empty gateway name", ErrGatewayNotRegistered)
	}
	if strings.TrimSpace(accountName) == "" {
		accountName = "default"
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.gateways[key]; ok {
		return fmt.Errorf("%w: %s", ErrGatewayAlreadyRegistered, gateway.Name())
	}
	r.gateways[key] = Registration{Gateway: gateway, AccountName: accountName}
	return nil
}

// Resolve 按名称查找网关
func (r *Registry) Resolve(name string) (Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.gateways[normalizeName(name)]
	if !ok {
		return Registration{}, fmt.Errorf("%w: %s", ErrGatewayNotRegistered, name)
	}
	return reg, nil
}

// Names 已注册网关名称
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.gateways))
	for _, reg := range r.gateways {
		names = append(names, reg.Gateway.Name())
	}
	sort.Strings(names)
	return names
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
