package authz

import (
	"fmt"
	"strings"
)

// DefaultMerchantRole 未配置角色的商户拥有全部商户接口权限
const DefaultMerchantRole = "owner"

// RoleSeed 预置角色定义
type RoleSeed struct {
	Role     string
	Inherits []string
	Policies []Policy
}

// BuiltinRoleSeeds 商户预置角色矩阵
func BuiltinRoleSeeds() []RoleSeed {
	return []RoleSeed{
		{
			Role: "viewer",
			Policies: []Policy{
				{Object: "/payments", Action: "GET"},
				{Object: "/payments/:tracking_number", Action: "GET"},
				{Object: "/payments/:tracking_number/transactions", Action: "GET"},
			},
		},
		{
			Role:     "operator",
			Inherits: []string{"viewer"},
			Policies: []Policy{
				{Object: "/payments", Action: "POST"},
				{Object: "/payments/:tracking_number/verify", Action: "POST"},
				{Object: "/payments/:tracking_number/cancel", Action: "POST"},
			},
		},
		{
			Role:     "finance",
			Inherits: []string{"viewer"},
			Policies: []Policy{
				{Object: "/payments/:tracking_number/refund", Action: "POST"},
			},
		},
		{
			Role:     DefaultMerchantRole,
			Inherits: []string{"operator", "finance"},
		},
	}
}

// BootstrapBuiltinRoles 初始化预置角色与默认策略
func (s *Service) BootstrapBuiltinRoles() error {
	if s == nil || s.enforcer == nil {
		return fmt.Errorf("authz service unavailable")
	}
	for _, seed := range BuiltinRoleSeeds() {
		role, err := s.EnsureRole(seed.Role)
		if err != nil {
			return err
		}
		for _, parent := range seed.Inherits {
			parentRole, err := NormalizeRole(parent)
			if err != nil {
				return err
			}
			if _, err := s.enforcer.AddNamedGroupingPolicy("g", role, parentRole); err != nil {
				return fmt.Errorf("link role inheritance failed: %w", err)
			}
		}
		for _, policy := range seed.Policies {
			if err := s.GrantRolePolicy(role, policy.Object, policy.Action); err != nil {
				return fmt.Errorf("add builtin policy failed: %w", err)
			}
		}
	}
	return nil
}

// MerchantRoles 商户名与角色列表
type MerchantRoles struct {
	Merchant string
	Roles    []string
}

// SyncMerchantRoles 以配置为准覆盖商户角色
func (s *Service) SyncMerchantRoles(items []MerchantRoles) error {
	for _, item := range items {
		name := strings.TrimSpace(item.Merchant)
		if name == "" {
			continue
		}
		roles := item.Roles
		if len(roles) == 0 {
			roles = []string{DefaultMerchantRole}
		}
		if err := s.SetMerchantRoles(name, roles); err != nil {
			return fmt.Errorf("sync merchant %s roles failed: %w", name, err)
		}
	}
	return nil
}
