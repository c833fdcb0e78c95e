package payment

import (
	"context"
	"time"

	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
)

// IntentRepository persists payment intents. Getters return (nil, nil) when
// no row matches.
type IntentRepository interface {
	Create(ctx context.Context, intent *PaymentIntent) error
	GetByID(ctx context.Context, id string) (*PaymentIntent, error)
	GetByReference(ctx context.Context, reference string) (*PaymentIntent, error)
	// MarkConfirmed moves the intent to confirmed only while it is still pending.
	// It reports whether a row changed.
	MarkConfirmed(ctx context.Context, id string, at time.Time) (bool, error)
	// ExpirePending flips up to limit pending intents whose window closed before now.
	ExpirePending(ctx context.Context, now time.Time, limit int) (int64, error)
}

// PaymentRepository persists committed payments. Getters return (nil, nil)
// when no row matches.
type PaymentRepository interface {
	// CreateIfAbsent inserts the payment unless its transaction signature or
	// intent is already recorded, and reports whether it was inserted.
	CreateIfAbsent(ctx context.Context, payment *Payment) (bool, error)
	GetBySignature(ctx context.Context, txSignature string) (*Payment, error)
	GetByIntentID(ctx context.Context, intentID string) (*Payment, error)
	ListByPayer(ctx context.Context, payer string, offset, limit int) ([]*Payment, int64, error)
	// ListConfirmed pages through confirmed payments ordered by
	// (confirmed_at, id).
	ListConfirmed(ctx context.Context, query ConfirmedQuery) ([]*Payment, error)
	MarkReversed(ctx context.Context, id string, at time.Time) error
	// RecordMiss counts one more consecutive check that could not find the
	// payment's transaction and returns the new count.
	RecordMiss(ctx context.Context, id string, at time.Time) (int, error)
	// ClearMisses resets the miss count after the transaction was seen again.
	ClearMisses(ctx context.Context, id string) error
}

// ConfirmedQuery selects confirmed payments on Chains confirmed at or after
// Since. A non-nil After resumes strictly past that position.
type ConfirmedQuery struct {
	Chains []vo.Chain
	Since  time.Time
	After  *ConfirmedCursor
	Limit  int
}

// ConfirmedCursor is a position in the (confirmed_at, id) order.
type ConfirmedCursor struct {
	ConfirmedAt time.Time
	ID          string
}

// AttemptRepository records verification attempts that did not commit.
type AttemptRepository interface {
	// Record inserts the attempt or, for a known signature, bumps its counter
	// and overwrites outcome, reason and details.
	Record(ctx context.Context, attempt *VerificationAttempt) error
	GetBySignature(ctx context.Context, txSignature string) (*VerificationAttempt, error)
}
