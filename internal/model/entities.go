package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrLedgerImmutable is returned when an update of a ledger entry is attempted.
var ErrLedgerImmutable = errors.New("ledger entries are append-only")

// Role of an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Account is a tenant with a points balance.
type Account struct {
	ID        string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	Email     string          `gorm:"not null;uniqueIndex" json:"email"`
	Name      string          `gorm:"not null" json:"name"`
	Role      Role            `gorm:"type:varchar(16);not null;default:user" json:"role"`
	Banned    bool            `gorm:"not null;default:false" json:"banned"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (Account) TableName() string { return "accounts" }

func (a *Account) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Exempt reports whether the account is excluded from metering.
func (a *Account) Exempt() bool {
	return a.Role == RoleAdmin
}

// Capacity describes the compute shape of a resource.
type Capacity struct {
	Cores    int `json:"cores"`
	MemoryMB int `json:"memory_mb"`
	DiskGB   int `json:"disk_gb"`
}

// Resource is a leased container.
type Resource struct {
	ID                 string                       `gorm:"type:varchar(36);primaryKey" json:"id"`
	OwnerID            string                       `gorm:"type:varchar(36);not null;index" json:"owner_id"`
	Name               string                       `gorm:"not null" json:"name"`
	Template           string                       `gorm:"not null" json:"template"`
	Capacity           datatypes.JSONType[Capacity] `json:"capacity"`
	DailyCost          decimal.Decimal              `gorm:"type:numeric(20,8);not null" json:"daily_cost"`
	Status             ResourceStatus               `gorm:"type:varchar(16);not null;index" json:"status"`
	StatusChangedAt    time.Time                    `gorm:"not null" json:"status_changed_at"`
	HypervisorID       int                          `gorm:"not null;uniqueIndex" json:"hypervisor_id"`
	Hostname           string                       `json:"hostname"`
	IPAddress          string                       `json:"ip_address,omitempty"`
	RootPassword       string                       `gorm:"not null" json:"-"`
	VPNConfig          string                       `gorm:"type:text" json:"-"`
	LastIdleNotifiedAt *time.Time                   `json:"last_idle_notified_at,omitempty"`
	CreatedAt          time.Time                    `json:"created_at"`
	UpdatedAt          time.Time                    `json:"updated_at"`
}

func (Resource) TableName() string { return "resources" }

func (r *Resource) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.StatusChangedAt.IsZero() {
		r.StatusChangedAt = time.Now().UTC()
	}
	return nil
}

// LedgerType classifies a balance change.
type LedgerType string

const (
	LedgerConsumption LedgerType = "consumption"
	LedgerTopUp       LedgerType = "top_up"
)

// LedgerEntry is an append-only record of a balance change. Amount is signed.
type LedgerEntry struct {
	ID           string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	AccountID    string          `gorm:"type:varchar(36);not null;index:idx_ledger_account_created,priority:1" json:"account_id"`
	Type         LedgerType      `gorm:"type:varchar(16);not null" json:"type"`
	Amount       decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"amount"`
	BalanceAfter decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"balance_after"`
	Description  string          `json:"description"`
	Metadata     datatypes.JSON  `json:"metadata,omitempty"`
	CreatedAt    time.Time       `gorm:"not null;index:idx_ledger_account_created,priority:2" json:"created_at"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (e *LedgerEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

func (*LedgerEntry) BeforeUpdate(*gorm.DB) error {
	return ErrLedgerImmutable
}

// IngressBinding routes a public hostname to a port of a resource.
type IngressBinding struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ResourceID string    `gorm:"type:varchar(36);not null;index" json:"resource_id"`
	Hostname   string    `gorm:"not null;uniqueIndex" json:"hostname"`
	Port       int       `gorm:"not null" json:"port"`
	Paid       bool      `gorm:"not null;default:false" json:"paid"`
	CreatedAt  time.Time `json:"created_at"`
}

func (IngressBinding) TableName() string { return "ingress_bindings" }

func (b *IngressBinding) BeforeCreate(*gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// SnapshotRecord mirrors a hypervisor snapshot. Name is the hypervisor-side id.
type SnapshotRecord struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ResourceID  string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_snapshot_resource_name,priority:1" json:"resource_id"`
	Name        string    `gorm:"not null;uniqueIndex:idx_snapshot_resource_name,priority:2" json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

func (SnapshotRecord) TableName() string { return "snapshot_records" }

func (s *SnapshotRecord) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// BackupRecord mirrors a hypervisor backup volume.
type BackupRecord struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ResourceID string    `gorm:"type:varchar(36);not null;index" json:"resource_id"`
	VolumeID   string    `gorm:"not null;uniqueIndex" json:"volume_id"`
	SizeBytes  int64     `json:"size_bytes"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (BackupRecord) TableName() string { return "backup_records" }

func (b *BackupRecord) BeforeCreate(*gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// StatusEvent is one entry in a resource's status history.
type StatusEvent struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	ResourceID string         `gorm:"type:varchar(36);not null;index" json:"resource_id"`
	AccountID  string         `gorm:"type:varchar(36);not null;index" json:"account_id"`
	From       ResourceStatus `gorm:"type:varchar(16)" json:"from"`
	To         ResourceStatus `gorm:"type:varchar(16);not null" json:"to"`
	Reason     string         `json:"reason"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (StatusEvent) TableName() string { return "status_events" }

// All lists every entity for migrations.
func All() []any {
	return []any{
		&Account{},
		&Resource{},
		&LedgerEntry{},
		&IngressBinding{},
		&SnapshotRecord{},
		&BackupRecord{},
		&StatusEvent{},
	}
}
