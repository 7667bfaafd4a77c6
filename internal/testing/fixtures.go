package testing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/imamik/leasehold/internal/model"
	"github.com/imamik/leasehold/internal/store"
)

// SeedAccount inserts a user account with the given balance.
func SeedAccount(t *testing.T, st *store.Store, balance string) *model.Account {
	t.Helper()
	return SeedAccountWithRole(t, st, balance, model.RoleUser)
}

// SeedAccountWithRole inserts an account with the given balance and role.
func SeedAccountWithRole(t *testing.T, st *store.Store, balance string, role model.Role) *model.Account {
	t.Helper()
	id := uuid.NewString()
	acct := &model.Account{
		ID:      id,
		Email:   id[:8] + "@example.test",
		Name:    "Tenant " + id[:4],
		Role:    role,
		Balance: decimal.RequireFromString(balance),
	}
	if err := st.CreateAccount(context.Background(), acct); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return acct
}

// ResourceOption customizes a seeded resource.
type ResourceOption func(*model.Resource)

// WithIP sets the resource address.
func WithIP(ip string) ResourceOption {
	return func(r *model.Resource) { r.IPAddress = ip }
}

// WithVPNConfig sets the stored VPN client configuration.
func WithVPNConfig(cfg string) ResourceOption {
	return func(r *model.Resource) { r.VPNConfig = cfg }
}

// WithDailyCost sets the daily point cost.
func WithDailyCost(cost int64) ResourceOption {
	return func(r *model.Resource) { r.DailyCost = decimal.NewFromInt(cost) }
}

// SeedResource inserts a resource owned by owner.
func SeedResource(t *testing.T, st *store.Store, owner *model.Account, status model.ResourceStatus, hypervisorID int, opts ...ResourceOption) *model.Resource {
	t.Helper()
	r := &model.Resource{
		OwnerID:      owner.ID,
		Name:         "box",
		Template:     "small",
		Capacity:     datatypes.NewJSONType(model.Capacity{Cores: 1, MemoryMB: 1024, DiskGB: 10}),
		DailyCost:    decimal.NewFromInt(1440),
		Status:       status,
		HypervisorID: hypervisorID,
		RootPassword: "root-secret",
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := st.CreateResource(context.Background(), r); err != nil {
		t.Fatalf("seed resource: %v", err)
	}
	return r
}

// SeedBinding inserts an ingress binding without quota checks.
func SeedBinding(t *testing.T, st *store.Store, resource *model.Resource, hostname string, paid bool) *model.IngressBinding {
	t.Helper()
	b := &model.IngressBinding{ResourceID: resource.ID, Hostname: hostname, Port: 8080, Paid: paid}
	if err := st.CreateIngressBinding(context.Background(), b, 1<<30); err != nil {
		t.Fatalf("seed binding: %v", err)
	}
	return b
}
