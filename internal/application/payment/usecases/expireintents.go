package usecases

import (
	"context"
	"fmt"

	"github.com/micropaywall/paygate/internal/domain/payment"
	"github.com/micropaywall/paygate/internal/infrastructure/metrics"
	"github.com/micropaywall/paygate/internal/shared/biztime"
	"github.com/micropaywall/paygate/internal/shared/logger"
)

const defaultSweepBatch = 200

// ExpireIntentsUseCase moves pending intents past their window to expired.
// Confirmed intents are never touched, so running it twice is harmless.
type ExpireIntentsUseCase struct {
	intents   payment.IntentRepository
	batchSize int
	recorder  metrics.Recorder
	clock     biztime.Clock
	logger    logger.Interface
}

func NewExpireIntentsUseCase(
	intents payment.IntentRepository,
	batchSize int,
	recorder metrics.Recorder,
	clock biztime.Clock,
	logger logger.Interface,
) *ExpireIntentsUseCase {
	if batchSize <= 0 {
		batchSize = defaultSweepBatch
	}
	return &ExpireIntentsUseCase{
		intents:   intents,
		batchSize: batchSize,
		recorder:  metrics.OrNoop(recorder),
		clock:     biztime.OrDefault(clock),
		logger:    logger,
	}
}

// Execute expires in batches until a batch comes back short and returns the
// number of intents expired.
func (uc *ExpireIntentsUseCase) Execute(ctx context.Context) (int64, error) {
	now := uc.clock()
	var total int64

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := uc.intents.ExpirePending(ctx, now, uc.batchSize)
		if err != nil {
			uc.logger.Errorw("failed to expire payment intents", "expired_so_far", total, "error", err)
			return total, fmt.Errorf("failed to expire payment intents: %w", err)
		}
		total += n
		if n < int64(uc.batchSize) {
			break
		}
	}

	uc.recorder.IncCounter(metrics.SweepRun, map[string]string{metrics.LabelReason: "expire"})
	if total > 0 {
		uc.logger.Infow("expired payment intents processed", "expired", total)
	}
	return total, nil
}
