package payment

import (
	"fmt"
	"time"

	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
	"github.com/micropaywall/paygate/internal/shared/errors"
	"github.com/micropaywall/paygate/internal/shared/id"
)

// Payment is the ledger record of an on-chain transaction that satisfied an
// intent. A transaction signature is recorded at most once.
type Payment struct {
	id          string
	intentID    string
	merchantID  string
	contentID   string
	chain       vo.Chain
	txSignature string
	payer       string
	recipient   string
	amount      uint64
	slot        uint64
	blockTime   *time.Time
	status      vo.PaymentStatus
	confirmedAt time.Time
	reversedAt  *time.Time

	// reconcileMisses counts consecutive reconcile checks that did not see
	// the transaction succeed.
	reconcileMisses int
}

// NewPaymentParams describes a verified transaction ready to be recorded.
type NewPaymentParams struct {
	Intent      *PaymentIntent
	TxSignature string
	Payer       string
	Recipient   string
	Amount      uint64
	Slot        uint64
	BlockTime   *time.Time
	ConfirmedAt time.Time
}

func NewPayment(p NewPaymentParams) (*Payment, error) {
	if p.Intent == nil {
		return nil, errors.NewValidationError("payment intent is required")
	}
	if p.TxSignature == "" {
		return nil, errors.NewValidationError("transaction signature is required")
	}
	if p.Payer == "" {
		return nil, errors.ErrPayerInvalid
	}

	paymentID, err := id.NewPaymentID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate payment ID: %w", err)
	}

	return &Payment{
		id:          paymentID,
		intentID:    p.Intent.ID(),
		merchantID:  p.Intent.MerchantID(),
		contentID:   p.Intent.ContentID(),
		chain:       p.Intent.Chain(),
		txSignature: p.TxSignature,
		payer:       p.Payer,
		recipient:   p.Recipient,
		amount:      p.Amount,
		slot:        p.Slot,
		blockTime:   p.BlockTime,
		status:      vo.PaymentStatusConfirmed,
		confirmedAt: p.ConfirmedAt.UTC(),
	}, nil
}

// MarkReversed flags a payment whose transaction disappeared from the canonical chain.
func (p *Payment) MarkReversed(at time.Time) error {
	if p.status == vo.PaymentStatusReversed {
		return fmt.Errorf("payment %s already reversed", p.id)
	}
	at = at.UTC()
	p.status = vo.PaymentStatusReversed
	p.reversedAt = &at
	return nil
}

// SameScope reports whether the payment was made for the merchant/content pair.
func (p *Payment) SameScope(merchantID, contentID string) bool {
	return p.merchantID == merchantID && p.contentID == contentID
}

func (p *Payment) ID() string               { return p.id }
func (p *Payment) IntentID() string         { return p.intentID }
func (p *Payment) MerchantID() string       { return p.merchantID }
func (p *Payment) ContentID() string        { return p.contentID }
func (p *Payment) Chain() vo.Chain          { return p.chain }
func (p *Payment) TxSignature() string      { return p.txSignature }
func (p *Payment) Payer() string            { return p.payer }
func (p *Payment) Recipient() string        { return p.recipient }
func (p *Payment) Amount() uint64           { return p.amount }
func (p *Payment) Slot() uint64             { return p.slot }
func (p *Payment) BlockTime() *time.Time    { return p.blockTime }
func (p *Payment) Status() vo.PaymentStatus { return p.status }
func (p *Payment) ConfirmedAt() time.Time   { return p.confirmedAt }
func (p *Payment) ReversedAt() *time.Time   { return p.reversedAt }

func (p *Payment) ReconcileMisses() int { return p.reconcileMisses }

// PaymentReconstructParams carries persisted payment state.
type PaymentReconstructParams struct {
	ID          string
	IntentID    string
	MerchantID  string
	ContentID   string
	Chain       vo.Chain
	TxSignature string
	Payer       string
	Recipient   string
	Amount      uint64
	Slot        uint64
	BlockTime   *time.Time
	Status      vo.PaymentStatus
	ConfirmedAt time.Time
	ReversedAt  *time.Time

	ReconcileMisses int
}

func ReconstructPayment(p PaymentReconstructParams) *Payment {
	return &Payment{
		id:          p.ID,
		intentID:    p.IntentID,
		merchantID:  p.MerchantID,
		contentID:   p.ContentID,
		chain:       p.Chain,
		txSignature: p.TxSignature,
		payer:       p.Payer,
		recipient:   p.Recipient,
		amount:      p.Amount,
		slot:        p.Slot,
		blockTime:   p.BlockTime,
		status:      p.Status,
		confirmedAt: p.ConfirmedAt,
		reversedAt:  p.ReversedAt,

		reconcileMisses: p.ReconcileMisses,
	}
}
