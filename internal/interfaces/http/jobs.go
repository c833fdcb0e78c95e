package http

import (
	"context"
	"fmt"

	paymentUsecases "github.com/micropaywall/paygate/internal/application/payment/usecases"
	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
	"github.com/micropaywall/paygate/internal/infrastructure/scheduler"
	sharedConfig "github.com/micropaywall/paygate/internal/shared/config"
)

func (c *Container) initScheduler() error {
	manager, err := scheduler.NewSchedulerManager(c.log)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	c.schedulerManager = manager

	sc := c.cfg.Scheduler
	jobs := []scheduler.JobSpec{
		{
			Name:     "expire-intents",
			Interval: sc.ExpireInterval,
			Job: scheduler.BatchJobFunc(func(ctx context.Context) (int, error) {
				n, err := c.ucs.expireIntents.Execute(ctx)
				return int(n), err
			}),
		},
		{
			Name:     "reconcile-payments",
			Interval: sc.ReconcileInterval,
			Job: scheduler.BatchJobFunc(func(ctx context.Context) (int, error) {
				res, err := c.ucs.reconcilePayments.Execute(ctx)
				if res == nil {
					return 0, err
				}
				return res.Reversed, err
			}),
		},
	}
	for _, job := range jobs {
		if err := manager.Register(job); err != nil {
			return err
		}
	}
	return nil
}

// chainDirectory indexes the configured chains for payment-request building.
// Names were validated when the config was loaded.
func chainDirectory(chains []sharedConfig.ChainConfig) paymentUsecases.ChainDirectory {
	dir := make(paymentUsecases.ChainDirectory, len(chains))
	for _, cc := range chains {
		chain, err := vo.NewChain(cc.Name)
		if err != nil {
			continue
		}
		chainID := cc.ChainID
		if chainID == 0 {
			chainID = vo.KnownEVMChainIDs[chain]
		}
		dir[chain] = paymentUsecases.ChainSettings{
			Kind:     vo.ChainKind(cc.Kind),
			Currency: cc.Currency,
			Decimals: cc.Decimals,
			ChainID:  chainID,
		}
	}
	return dir
}
