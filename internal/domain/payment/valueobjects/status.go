package valueobjects

// IntentStatus is the lifecycle state of a payment intent.
type IntentStatus string

const (
	IntentStatusPending   IntentStatus = "pending"
	IntentStatusConfirmed IntentStatus = "confirmed"
	IntentStatusExpired   IntentStatus = "expired"
	IntentStatusCancelled IntentStatus = "cancelled"
)

func (s IntentStatus) IsValid() bool {
	switch s {
	case IntentStatusPending, IntentStatusConfirmed, IntentStatusExpired, IntentStatusCancelled:
		return true
	default:
		return false
	}
}

func (s IntentStatus) IsPending() bool {
	return s == IntentStatusPending
}

// IsFinal reports whether the intent can no longer change.
func (s IntentStatus) IsFinal() bool {
	return s != IntentStatusPending
}

func (s IntentStatus) String() string {
	return string(s)
}

// PaymentStatus is the state of a committed payment.
type PaymentStatus string

const (
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	// PaymentStatusReversed marks a payment whose transaction disappeared or
	// failed after a reorganization.
	PaymentStatusReversed PaymentStatus = "reversed"
)

func (s PaymentStatus) IsValid() bool {
	return s == PaymentStatusConfirmed || s == PaymentStatusReversed
}

func (s PaymentStatus) String() string {
	return string(s)
}

// AttemptOutcome is the recorded result of a verification that did not commit.
type AttemptOutcome string

const (
	AttemptOutcomePending  AttemptOutcome = "pending"
	AttemptOutcomeRejected AttemptOutcome = "rejected"
)

func (o AttemptOutcome) IsValid() bool {
	return o == AttemptOutcomePending || o == AttemptOutcomeRejected
}

func (o AttemptOutcome) String() string {
	return string(o)
}

// SettlementStatus is what payment-status reports for a transaction signature.
type SettlementStatus string

const (
	SettlementUnknown   SettlementStatus = "unknown"
	SettlementPending   SettlementStatus = "pending"
	SettlementConfirmed SettlementStatus = "confirmed"
	SettlementRejected  SettlementStatus = "rejected"
)
