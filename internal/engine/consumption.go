package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/leasehold/internal/model"
	"github.com/imamik/leasehold/internal/platform/notify"
	"github.com/imamik/leasehold/internal/store"
)

var minutesPerDay = decimal.NewFromInt(24 * 60)

// SweepResult summarizes one consumption tick.
type SweepResult struct {
	Accounts int
	Charged  decimal.Decimal
	// Depleted lists accounts whose balance reached zero during the tick.
	Depleted []string
	Stopped  int
}

// MinuteCost returns the per-minute charge of an account: the daily rate of
// every online resource plus the paid ingress surcharge, divided by the
// minutes of a day.
func (e *Engine) MinuteCost(acct store.BillableAccount) decimal.Decimal {
	daily := decimal.Zero
	for _, r := range acct.Resources {
		daily = daily.Add(r.DailyCost)
	}
	surcharge := e.cfg.Billing.PaidIngressDailyCost.Mul(decimal.NewFromInt(int64(acct.PaidIngress)))
	return daily.Add(surcharge).DivRound(minutesPerDay, 8)
}

// Sweep charges one minute of consumption to every billable account. The
// balance update and its ledger entry are written atomically and the balance
// never goes below zero. Accounts that reach zero have their online resources
// stopped. A failing account does not stop the sweep.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	defer func() { sweepDuration.Observe(time.Since(start).Seconds()) }()

	ctx, cancel := context.WithTimeout(ctx, e.timeouts.Sweep)
	defer cancel()
	logger := log.FromContext(ctx)

	result := SweepResult{Charged: decimal.Zero}
	billable, err := e.store.BillableAccounts(ctx)
	if err != nil {
		return result, fmt.Errorf("list billable accounts: %w", err)
	}

	var errs []error
	for _, acct := range billable {
		cost := e.MinuteCost(acct)
		charge, err := e.store.ChargeAccount(ctx, acct.Account.ID, cost, "consumption")
		if err != nil {
			errs = append(errs, fmt.Errorf("charge account %s: %w", acct.Account.ID, err))
			continue
		}
		result.Accounts++
		result.Charged = result.Charged.Add(charge.Charged)
		sweepCharged.Add(charge.Charged.InexactFloat64())

		if !charge.Depleted {
			continue
		}
		result.Depleted = append(result.Depleted, acct.Account.ID)
		stopped, err := e.enforceZeroBalance(ctx, &acct.Account)
		result.Stopped += stopped
		if err != nil {
			errs = append(errs, fmt.Errorf("stop resources of account %s: %w", acct.Account.ID, err))
		}
	}

	logger.V(1).Info("consumption sweep finished",
		"accounts", result.Accounts, "charged", result.Charged.String(), "depleted", len(result.Depleted))
	return result, errors.Join(errs...)
}

// enforceZeroBalance stops every online resource of an account, at the
// hypervisor first (best-effort) and then in the datastore.
func (e *Engine) enforceZeroBalance(ctx context.Context, acct *model.Account) (int, error) {
	logger := log.FromContext(ctx).WithValues("account", acct.ID)
	accountsDepleted.Inc()

	online, err := e.store.OnlineResourcesByOwner(ctx, acct.ID)
	if err != nil {
		return 0, err
	}

	ids := make([]string, 0, len(online))
	names := make([]string, 0, len(online))
	for _, r := range online {
		if err := e.stopContainer(ctx, r.HypervisorID); err != nil {
			logger.Error(err, "failed to stop resource at hypervisor", "resource", r.ID, "hypervisorID", r.HypervisorID)
		}
		ids = append(ids, r.ID)
		names = append(names, r.Name)
	}

	n, err := e.store.BulkSetStatus(ctx, ids, model.StatusOnline, model.StatusStopped, "balance depleted")
	if err != nil {
		return 0, err
	}
	logger.Info("balance depleted, resources stopped", "stopped", n)

	if e.notifier != nil && n > 0 {
		to := notify.Recipient{Email: acct.Email, Name: acct.Name}
		if err := e.notifier.BalanceDepleted(ctx, to, names); err != nil {
			logger.Error(err, "failed to publish balance depleted notification")
		}
	}
	return int(n), nil
}
