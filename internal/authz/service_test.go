package authz

import (
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupAuthzServiceTest(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	svc, err := NewService(db)
	if err != nil {
		t.Fatalf("new authz service failed: %v", err)
	}
	return svc
}

func TestEnforceMerchantWithRolePolicy(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.GrantRolePolicy("ops", "/payments/:tracking_number", "GET"); err != nil {
		t.Fatalf("grant role policy failed: %v", err)
	}
	if err := svc.SetMerchantRoles("shop", []string{"ops"}); err != nil {
		t.Fatalf("set merchant roles failed: %v", err)
	}

	allow, err := svc.EnforceMerchant("shop", "/api/v1/payments/1234", "get")
	if err != nil {
		t.Fatalf("enforce allow failed: %v", err)
	}
	if !allow {
		t.Fatalf("expected allow=true")
	}

	allow, err = svc.EnforceMerchant("shop", "/api/v1/payments/1234/refund", "POST")
	if err != nil {
		t.Fatalf("enforce deny failed: %v", err)
	}
	if allow {
		t.Fatalf("expected allow=false")
	}
}

func TestSetMerchantRolesOverride(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.SetMerchantRoles("shop", []string{"ops"}); err != nil {
		t.Fatalf("set first role failed: %v", err)
	}
	if err := svc.SetMerchantRoles("shop", []string{"finance"}); err != nil {
		t.Fatalf("set second role failed: %v", err)
	}
	roles, err := svc.GetMerchantRoles("shop")
	if err != nil {
		t.Fatalf("get roles failed: %v", err)
	}
	if len(roles) != 1 || roles[0] != "role:finance" {
		t.Fatalf("roles want [role:finance], got=%v", roles)
	}
}

func TestBuiltinRolesAndSync(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap builtin roles failed: %v", err)
	}
	// 重复初始化不报错
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap builtin roles again failed: %v", err)
	}
	if err := svc.SyncMerchantRoles([]MerchantRoles{
		{Merchant: "shop"},
		{Merchant: "audit", Roles: []string{"viewer"}},
		{Merchant: "books", Roles: []string{"finance"}},
	}); err != nil {
		t.Fatalf("sync merchant roles failed: %v", err)
	}

	cases := []struct {
		merchant string
		object   string
		action   string
		want     bool
	}{
		{"shop", "/api/v1/payments", "POST", true},
		{"shop", "/api/v1/payments/1001/refund", "POST", true},
		{"audit", "/api/v1/payments/1001/transactions", "GET", true},
		{"audit", "/api/v1/payments", "POST", false},
		{"books", "/api/v1/payments/1001/refund", "POST", true},
		{"books", "/api/v1/payments/1001/verify", "POST", false},
		{"stranger", "/api/v1/payments", "GET", false},
	}
	for _, tc := range cases {
		allow, err := svc.EnforceMerchant(tc.merchant, tc.object, tc.action)
		if err != nil {
			t.Fatalf("enforce %s %s %s failed: %v", tc.merchant, tc.action, tc.object, err)
		}
		if allow != tc.want {
			t.Fatalf("enforce %s %s %s want %v got %v", tc.merchant, tc.action, tc.object, tc.want, allow)
		}
	}
}

func TestNormalizeHelpers(t *testing.T) {
	if got, _ := NormalizeRole(" finance team "); got != "role:finance_team" {
		t.Fatalf("unexpected role: %s", got)
	}
	if _, err := NormalizeRole("role:"); err == nil {
		t.Fatalf("empty role should fail")
	}
	if got := NormalizeObject("/api/v1/payments"); got != "/payments" {
		t.Fatalf("unexpected object: %s", got)
	}
	if got := NormalizeObject("api/v1"); got != "/" {
		t.Fatalf("unexpected object: %s", got)
	}
}
