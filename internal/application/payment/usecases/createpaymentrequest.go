package usecases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/micropaywall/paygate/internal/application/payment/blockchain"
	"github.com/micropaywall/paygate/internal/domain/catalog"
	"github.com/micropaywall/paygate/internal/domain/payment"
	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
	"github.com/micropaywall/paygate/internal/shared/biztime"
	"github.com/micropaywall/paygate/internal/shared/errors"
	"github.com/micropaywall/paygate/internal/shared/logger"
)

type CreatePaymentRequestCommand struct {
	MerchantID string
	ContentID  string
	// Price, Currency and Duration override the content defaults when set.
	Price    *uint64
	Currency string
	Duration time.Duration
}

type CreatePaymentRequestResult struct {
	IntentID          string
	Chain             vo.Chain
	ExpectedRecipient string
	Amount            uint64
	DisplayAmount     string
	Currency          string
	Reference         string
	PaymentURL        string
	ExpiresAt         time.Time
}

// CreatePaymentRequestUseCase opens a pending intent for one content item. The
// merchant payout address is copied into the intent so later changes to the
// merchant do not redirect it.
type CreatePaymentRequestUseCase struct {
	intents   payment.IntentRepository
	catalog   catalog.Lookup
	verifiers blockchain.Resolver
	chains    ChainDirectory
	policy    IntentPolicy
	clock     biztime.Clock
	logger    logger.Interface
}

func NewCreatePaymentRequestUseCase(
	intents payment.IntentRepository,
	lookup catalog.Lookup,
	verifiers blockchain.Resolver,
	chains ChainDirectory,
	policy IntentPolicy,
	clock biztime.Clock,
	logger logger.Interface,
) *CreatePaymentRequestUseCase {
	return &CreatePaymentRequestUseCase{
		intents:   intents,
		catalog:   lookup,
		verifiers: verifiers,
		chains:    chains,
		policy:    policy,
		clock:     biztime.OrDefault(clock),
		logger:    logger,
	}
}

func (uc *CreatePaymentRequestUseCase) Execute(ctx context.Context, cmd CreatePaymentRequestCommand) (*CreatePaymentRequestResult, error) {
	if cmd.Duration < 0 {
		return nil, errors.NewValidationError("duration cannot be negative")
	}

	merchant, err := uc.catalog.GetMerchant(ctx, cmd.MerchantID)
	if err != nil {
		return nil, err
	}
	if merchant == nil {
		return nil, errors.ErrMerchantNotFound.Wrapf("merchant %s", cmd.MerchantID)
	}

	content, err := uc.catalog.GetContent(ctx, cmd.MerchantID, cmd.ContentID)
	if err != nil {
		return nil, err
	}
	if content == nil {
		return nil, errors.ErrContentNotFound.Wrapf("content %s", cmd.ContentID)
	}

	price := content.Price
	if cmd.Price != nil {
		price = *cmd.Price
	}
	if price == 0 {
		return nil, errors.ErrInvalidPrice
	}

	settings, ok := uc.chains[content.Chain]
	if !ok {
		return nil, errors.ErrChainUnsupported.Wrapf("chain %s", content.Chain)
	}
	currency := content.Currency
	if currency == "" {
		currency = settings.Currency
	}
	if cmd.Currency != "" && !strings.EqualFold(cmd.Currency, currency) {
		return nil, errors.NewValidationError("currency does not match the content chain", fmt.Sprintf("expected %s", currency))
	}

	recipient, ok := merchant.PayoutAddress(content.Chain)
	if !ok {
		return nil, errors.NewValidationError("merchant has no payout address for chain", content.Chain.String())
	}
	recipient = settings.Kind.NormalizeAddress(recipient)

	verifier, err := uc.verifiers.Get(content.Chain)
	if err != nil {
		return nil, err
	}
	reference, err := verifier.NewReference()
	if err != nil {
		return nil, fmt.Errorf("failed to generate payment reference: %w", err)
	}

	intent, err := payment.NewPaymentIntent(payment.NewIntentParams{
		MerchantID:        merchant.ID,
		ContentID:         content.ID,
		Chain:             content.Chain,
		ExpectedRecipient: recipient,
		Amount:            price,
		Currency:          currency,
		Reference:         reference,
		TTL:               uc.policy.ttl(cmd.Duration),
		Now:               uc.clock(),
	})
	if err != nil {
		return nil, err
	}

	if err := uc.intents.Create(ctx, intent); err != nil {
		uc.logger.Errorw("failed to create payment intent", "merchant_id", merchant.ID, "content_id", content.ID, "error", err)
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	uc.logger.Infow("payment intent created",
		"intent_id", intent.ID(),
		"merchant_id", merchant.ID,
		"content_id", content.ID,
		"chain", content.Chain,
		"amount", price,
		"expires_at", intent.ExpiresAt(),
	)

	return &CreatePaymentRequestResult{
		IntentID:          intent.ID(),
		Chain:             intent.Chain(),
		ExpectedRecipient: intent.ExpectedRecipient(),
		Amount:            intent.Amount(),
		DisplayAmount:     displayAmount(price, settings.Decimals).String(),
		Currency:          currency,
		Reference:         reference,
		PaymentURL:        buildPaymentURL(settings, recipient, price, reference, content.Title),
		ExpiresAt:         intent.ExpiresAt(),
	}, nil
}
