package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/imamik/leasehold/internal/model"
)

// BillableAccount is a non-exempt account with its online resources.
type BillableAccount struct {
	Account   model.Account
	Resources []model.Resource
	// PaidIngress counts paid bindings attached to the online resources.
	PaidIngress int
}

// BillableAccounts returns every non-exempt account that has at least one
// online resource.
func (s *Store) BillableAccounts(ctx context.Context) ([]BillableAccount, error) {
	db := s.db.WithContext(ctx)

	billable := db.Model(&model.Account{}).Select("id").Where("role <> ?", model.RoleAdmin)

	var resources []model.Resource
	if err := db.Where("status = ? AND owner_id IN (?)", model.StatusOnline, billable).
		Order("owner_id, created_at").Find(&resources).Error; err != nil {
		return nil, err
	}
	if len(resources) == 0 {
		return nil, nil
	}

	byOwner := make(map[string][]model.Resource)
	var ownerIDs []string
	for _, r := range resources {
		if _, seen := byOwner[r.OwnerID]; !seen {
			ownerIDs = append(ownerIDs, r.OwnerID)
		}
		byOwner[r.OwnerID] = append(byOwner[r.OwnerID], r)
	}

	var accounts []model.Account
	if err := db.Where("id IN ?", ownerIDs).Find(&accounts).Error; err != nil {
		return nil, err
	}

	var paid []struct {
		OwnerID string
		Count   int
	}
	if err := db.Table("ingress_bindings").
		Select("resources.owner_id AS owner_id, COUNT(*) AS count").
		Joins("JOIN resources ON resources.id = ingress_bindings.resource_id").
		Where("ingress_bindings.paid = ? AND resources.status = ? AND resources.owner_id IN ?", true, model.StatusOnline, ownerIDs).
		Group("resources.owner_id").
		Scan(&paid).Error; err != nil {
		return nil, err
	}
	paidByOwner := make(map[string]int, len(paid))
	for _, p := range paid {
		paidByOwner[p.OwnerID] = p.Count
	}

	out := make([]BillableAccount, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, BillableAccount{
			Account:     a,
			Resources:   byOwner[a.ID],
			PaidIngress: paidByOwner[a.ID],
		})
	}
	return out, nil
}

// IdleResource is a resource that has been stopped long enough to warrant a
// reminder, with its owner.
type IdleResource struct {
	Resource model.Resource
	Owner    model.Account
}

// IdleResources returns stopped resources whose status last changed before
// stoppedBefore and that were not reminded about since notifiedBefore.
func (s *Store) IdleResources(ctx context.Context, stoppedBefore, notifiedBefore time.Time) ([]IdleResource, error) {
	db := s.db.WithContext(ctx)

	var resources []model.Resource
	if err := db.Where("status = ? AND status_changed_at < ?", model.StatusStopped, stoppedBefore).
		Where("last_idle_notified_at IS NULL OR last_idle_notified_at < ?", notifiedBefore).
		Order("owner_id, created_at").Find(&resources).Error; err != nil {
		return nil, err
	}
	if len(resources) == 0 {
		return nil, nil
	}

	ownerIDs := make([]string, 0, len(resources))
	for _, r := range resources {
		ownerIDs = append(ownerIDs, r.OwnerID)
	}
	var accounts []model.Account
	if err := db.Where("id IN ?", ownerIDs).Find(&accounts).Error; err != nil {
		return nil, err
	}
	owners := make(map[string]model.Account, len(accounts))
	for _, a := range accounts {
		owners[a.ID] = a
	}

	out := make([]IdleResource, 0, len(resources))
	for _, r := range resources {
		owner, ok := owners[r.OwnerID]
		if !ok {
			continue
		}
		out = append(out, IdleResource{Resource: r, Owner: owner})
	}
	return out, nil
}

// Stats is a datastore-wide aggregate.
type Stats struct {
	Accounts     int64                          `json:"accounts"`
	Resources    map[model.ResourceStatus]int64 `json:"resources"`
	Bindings     int64                          `json:"ingress_bindings"`
	Snapshots    int64                          `json:"snapshots"`
	Backups      int64                          `json:"backups"`
	TotalBalance decimal.Decimal                `json:"total_balance"`
}

// Stats aggregates platform-wide counters.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	db := s.db.WithContext(ctx)
	st := Stats{Resources: make(map[model.ResourceStatus]int64)}

	counts := []struct {
		model any
		dst   *int64
	}{
		{&model.Account{}, &st.Accounts},
		{&model.IngressBinding{}, &st.Bindings},
		{&model.SnapshotRecord{}, &st.Snapshots},
		{&model.BackupRecord{}, &st.Backups},
	}
	for _, c := range counts {
		if err := db.Model(c.model).Count(c.dst).Error; err != nil {
			return st, err
		}
	}

	var byStatus []struct {
		Status model.ResourceStatus
		Count  int64
	}
	if err := db.Model(&model.Resource{}).Select("status, COUNT(*) AS count").
		Group("status").Scan(&byStatus).Error; err != nil {
		return st, err
	}
	for _, row := range byStatus {
		st.Resources[row.Status] = row.Count
	}

	var total decimal.NullDecimal
	if err := db.Model(&model.Account{}).Select("SUM(balance)").Row().Scan(&total); err != nil {
		return st, err
	}
	if total.Valid {
		st.TotalBalance = total.Decimal
	}
	return st, nil
}
