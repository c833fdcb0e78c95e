package payment

import (
	"fmt"
	"time"

	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
	"github.com/micropaywall/paygate/internal/shared/errors"
	"github.com/micropaywall/paygate/internal/shared/id"
)

// PaymentIntent is an offer to pay a merchant for one content item. It is
// immutable once its status leaves Pending.
type PaymentIntent struct {
	id                string
	merchantID        string
	contentID         string
	chain             vo.Chain
	expectedRecipient string
	amount            uint64
	currency          string
	reference         string
	status            vo.IntentStatus
	createdAt         time.Time
	expiresAt         time.Time
	confirmedAt       *time.Time
	updatedAt         time.Time
}

// NewIntentParams holds everything needed to open a payment intent.
type NewIntentParams struct {
	MerchantID        string
	ContentID         string
	Chain             vo.Chain
	ExpectedRecipient string
	Amount            uint64
	Currency          string
	Reference         string
	TTL               time.Duration
	Now               time.Time
}

func NewPaymentIntent(p NewIntentParams) (*PaymentIntent, error) {
	if p.MerchantID == "" {
		return nil, errors.NewValidationError("merchant ID is required")
	}
	if p.ContentID == "" {
		return nil, errors.NewValidationError("content ID is required")
	}
	if p.Amount == 0 {
		return nil, errors.ErrInvalidPrice
	}
	if p.ExpectedRecipient == "" {
		return nil, errors.NewValidationError("expected recipient is required")
	}
	if p.Reference == "" {
		return nil, errors.NewValidationError("reference is required")
	}
	if p.TTL <= 0 {
		return nil, errors.NewValidationError("intent TTL must be positive")
	}

	intentID, err := id.NewPaymentIntentID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate intent ID: %w", err)
	}

	now := p.Now.UTC()
	return &PaymentIntent{
		id:                intentID,
		merchantID:        p.MerchantID,
		contentID:         p.ContentID,
		chain:             p.Chain,
		expectedRecipient: p.ExpectedRecipient,
		amount:            p.Amount,
		currency:          p.Currency,
		reference:         p.Reference,
		status:            vo.IntentStatusPending,
		createdAt:         now,
		expiresAt:         now.Add(p.TTL),
		updatedAt:         now,
	}, nil
}

// IsExpiredAt reports whether the intent window has closed at now.
// The boundary is inclusive: an intent is still open at exactly expiresAt.
func (i *PaymentIntent) IsExpiredAt(now time.Time) bool {
	return now.After(i.expiresAt)
}

// MarkConfirmed moves a pending intent to Confirmed.
func (i *PaymentIntent) MarkConfirmed(at time.Time) error {
	if i.status != vo.IntentStatusPending {
		return fmt.Errorf("cannot confirm intent with status %s", i.status)
	}
	at = at.UTC()
	i.status = vo.IntentStatusConfirmed
	i.confirmedAt = &at
	i.updatedAt = at
	return nil
}

// MarkExpired moves a pending intent to Expired. It is a no-op for any other status.
func (i *PaymentIntent) MarkExpired(at time.Time) {
	if i.status != vo.IntentStatusPending {
		return
	}
	i.status = vo.IntentStatusExpired
	i.updatedAt = at.UTC()
}

// Cancel withdraws a pending intent.
func (i *PaymentIntent) Cancel(at time.Time) error {
	if i.status != vo.IntentStatusPending {
		return fmt.Errorf("cannot cancel intent with status %s", i.status)
	}
	i.status = vo.IntentStatusCancelled
	i.updatedAt = at.UTC()
	return nil
}

// Matches reports whether the intent belongs to the merchant/content pair.
func (i *PaymentIntent) Matches(merchantID, contentID string) bool {
	return i.merchantID == merchantID && i.contentID == contentID
}

func (i *PaymentIntent) ID() string                  { return i.id }
func (i *PaymentIntent) MerchantID() string          { return i.merchantID }
func (i *PaymentIntent) ContentID() string           { return i.contentID }
func (i *PaymentIntent) Chain() vo.Chain             { return i.chain }
func (i *PaymentIntent) ExpectedRecipient() string   { return i.expectedRecipient }
func (i *PaymentIntent) Amount() uint64              { return i.amount }
func (i *PaymentIntent) Currency() string            { return i.currency }
func (i *PaymentIntent) Reference() string           { return i.reference }
func (i *PaymentIntent) Status() vo.IntentStatus     { return i.status }
func (i *PaymentIntent) CreatedAt() time.Time        { return i.createdAt }
func (i *PaymentIntent) ExpiresAt() time.Time        { return i.expiresAt }
func (i *PaymentIntent) ConfirmedAt() *time.Time     { return i.confirmedAt }
func (i *PaymentIntent) UpdatedAt() time.Time        { return i.updatedAt }

// IntentReconstructParams carries persisted intent state.
type IntentReconstructParams struct {
	ID                string
	MerchantID        string
	ContentID         string
	Chain             vo.Chain
	ExpectedRecipient string
	Amount            uint64
	Currency          string
	Reference         string
	Status            vo.IntentStatus
	CreatedAt         time.Time
	ExpiresAt         time.Time
	ConfirmedAt       *time.Time
	UpdatedAt         time.Time
}

// ReconstructPaymentIntent rebuilds an intent from persistence without validation.
func ReconstructPaymentIntent(p IntentReconstructParams) *PaymentIntent {
	return &PaymentIntent{
		id:                p.ID,
		merchantID:        p.MerchantID,
		contentID:         p.ContentID,
		chain:             p.Chain,
		expectedRecipient: p.ExpectedRecipient,
		amount:            p.Amount,
		currency:          p.Currency,
		reference:         p.Reference,
		status:            p.Status,
		createdAt:         p.CreatedAt,
		expiresAt:         p.ExpiresAt,
		confirmedAt:       p.ConfirmedAt,
		updatedAt:         p.UpdatedAt,
	}
}
