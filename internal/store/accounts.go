package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/imamik/leasehold/internal/model"
)

// ChargeResult reports the outcome of a metered charge.
type ChargeResult struct {
	// Charged is the amount actually deducted after clamping.
	Charged decimal.Decimal
	Balance decimal.Decimal
	// Depleted is true when the balance is zero after the charge.
	Depleted bool
}

// CreateAccount inserts a new account.
func (s *Store) CreateAccount(ctx context.Context, a *model.Account) error {
	if a.Role == "" {
		a.Role = model.RoleUser
	}
	return s.db.WithContext(ctx).Create(a).Error
}

// GetAccount loads an account by id.
func (s *Store) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	var a model.Account
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, notFound(err, "account "+id)
	}
	return &a, nil
}

// ChargeAccount deducts amount from the account balance, clamped at zero, and
// appends a ledger entry for the deducted part, all in one transaction. No
// ledger entry is written when nothing could be deducted.
func (s *Store) ChargeAccount(ctx context.Context, accountID string, amount decimal.Decimal, description string) (ChargeResult, error) {
	var result ChargeResult
	if amount.IsNegative() {
		return result, fmt.Errorf("charge amount cannot be negative: %s", amount)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a model.Account
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", accountID).First(&a).Error; err != nil {
			return notFound(err, "account "+accountID)
		}

		charged := decimal.Min(amount, a.Balance)
		if charged.IsNegative() {
			charged = decimal.Zero
		}
		balance := a.Balance.Sub(charged)

		result = ChargeResult{Charged: charged, Balance: balance, Depleted: !balance.IsPositive()}
		if !charged.IsPositive() {
			return nil
		}

		if err := tx.Model(&model.Account{}).Where("id = ?", accountID).
			Update("balance", balance).Error; err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		return tx.Create(&model.LedgerEntry{
			AccountID:    accountID,
			Type:         model.LedgerConsumption,
			Amount:       charged.Neg(),
			BalanceAfter: balance,
			Description:  description,
		}).Error
	})
	return result, err
}

// Credit adds amount to the account balance and appends a top-up ledger entry.
func (s *Store) Credit(ctx context.Context, accountID string, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("credit amount must be positive: %s", amount)
	}

	var balance decimal.Decimal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a model.Account
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", accountID).First(&a).Error; err != nil {
			return notFound(err, "account "+accountID)
		}
		balance = a.Balance.Add(amount)
		if err := tx.Model(&model.Account{}).Where("id = ?", accountID).
			Update("balance", balance).Error; err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		return tx.Create(&model.LedgerEntry{
			AccountID:    accountID,
			Type:         model.LedgerTopUp,
			Amount:       amount,
			BalanceAfter: balance,
			Description:  description,
		}).Error
	})
	return balance, err
}

// LedgerEntries returns the ledger of an account, oldest first.
func (s *Store) LedgerEntries(ctx context.Context, accountID string) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	err := s.db.WithContext(ctx).Where("account_id = ?", accountID).
		Order("created_at ASC").Find(&entries).Error
	return entries, err
}

// DeleteAccountCascade removes an account and everything that hangs off it:
// snapshot, backup and ingress rows of its resources, the resources, the
// ledger and the status history.
func (s *Store) DeleteAccountCascade(ctx context.Context, accountID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owned := tx.Model(&model.Resource{}).Select("id").Where("owner_id = ?", accountID)

		steps := []struct {
			name  string
			model any
			where string
			arg   any
		}{
			{"snapshot records", &model.SnapshotRecord{}, "resource_id IN (?)", owned},
			{"backup records", &model.BackupRecord{}, "resource_id IN (?)", owned},
			{"ingress bindings", &model.IngressBinding{}, "resource_id IN (?)", owned},
			{"status events", &model.StatusEvent{}, "account_id = ?", accountID},
			{"resources", &model.Resource{}, "owner_id = ?", accountID},
			{"ledger entries", &model.LedgerEntry{}, "account_id = ?", accountID},
			{"account", &model.Account{}, "id = ?", accountID},
		}
		for _, step := range steps {
			if err := tx.Where(step.where, step.arg).Delete(step.model).Error; err != nil {
				return fmt.Errorf("delete %s: %w", step.name, err)
			}
		}
		return nil
	})
}
