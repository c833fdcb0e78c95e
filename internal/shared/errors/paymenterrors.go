package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Reason is the stable, client-visible failure reason of a payment or token operation.
type Reason string

const (
	ReasonMerchantNotFound       Reason = "merchant_not_found"
	ReasonContentNotFound        Reason = "content_not_found"
	ReasonInvalidPrice           Reason = "invalid_price"
	ReasonIntentExpired          Reason = "intent_expired"
	ReasonIntentNotFound         Reason = "intent_not_found"
	ReasonIntentAlreadyConfirmed Reason = "intent_already_confirmed"
	ReasonTransactionNotFound    Reason = "transaction_not_found"
	ReasonPendingConfirmation    Reason = "pending_confirmation"
	ReasonTransactionFailed      Reason = "transaction_failed"
	ReasonAmountMismatch         Reason = "amount_mismatch"
	ReasonRecipientMismatch      Reason = "recipient_mismatch"
	ReasonReferenceMismatch      Reason = "reference_mismatch"
	ReasonReferenceUnverifiable  Reason = "reference_unverifiable"
	ReasonPayerInvalid           Reason = "payer_invalid"
	ReasonRPCUnavailable         Reason = "rpc_unavailable"
	ReasonChainUnsupported       Reason = "chain_unsupported"
	ReasonInvalidToken           Reason = "invalid_token"
	ReasonTokenExpired           Reason = "token_expired"
	ReasonAlreadyRedeemed        Reason = "already_redeemed"
)

type reasonSpec struct {
	message   string
	code      int
	retryable bool
}

var reasonSpecs = map[Reason]reasonSpec{
	ReasonMerchantNotFound:       {"Merchant not found", http.StatusNotFound, false},
	ReasonContentNotFound:        {"Content not found", http.StatusNotFound, false},
	ReasonInvalidPrice:           {"Price must be greater than zero", http.StatusBadRequest, false},
	ReasonIntentExpired:          {"Payment intent has expired", http.StatusGone, false},
	ReasonIntentNotFound:         {"Payment intent not found", http.StatusNotFound, false},
	ReasonIntentAlreadyConfirmed: {"Payment intent already confirmed by a different transaction", http.StatusConflict, false},
	ReasonTransactionNotFound:    {"Transaction not found on chain yet", http.StatusNotFound, true},
	ReasonPendingConfirmation:    {"Transaction has not reached the required confirmation depth", http.StatusAccepted, true},
	ReasonTransactionFailed:      {"Transaction failed on chain", http.StatusUnprocessableEntity, false},
	ReasonAmountMismatch:         {"Transferred amount is below the price", http.StatusUnprocessableEntity, false},
	ReasonRecipientMismatch:      {"No transfer to the expected recipient", http.StatusUnprocessableEntity, false},
	ReasonReferenceMismatch:      {"Transaction reference does not match the payment intent", http.StatusUnprocessableEntity, false},
	ReasonReferenceUnverifiable:  {"Chain adapter cannot verify payment references", http.StatusUnprocessableEntity, false},
	ReasonPayerInvalid:           {"Payer address is missing or equals the recipient", http.StatusUnprocessableEntity, false},
	ReasonRPCUnavailable:         {"Blockchain RPC is unavailable", http.StatusServiceUnavailable, true},
	ReasonChainUnsupported:       {"Chain is not supported", http.StatusBadRequest, false},
	ReasonInvalidToken:           {"Access token is invalid", http.StatusUnauthorized, false},
	ReasonTokenExpired:           {"Access token has expired", http.StatusUnauthorized, false},
	ReasonAlreadyRedeemed:        {"Access token has already been redeemed", http.StatusConflict, false},
}

// PaymentError is an AppError tagged with a stable Reason and a retry hint.
// Two PaymentErrors are equal under errors.Is when their reasons match, so the
// package-level sentinels can be compared against errors carrying details.
type PaymentError struct {
	*AppError
	Reason    Reason
	Retryable bool
}

// Error implements the error interface
func (e *PaymentError) Error() string {
	return e.AppError.Error()
}

// Unwrap allows errors.As to reach the embedded AppError
func (e *PaymentError) Unwrap() error {
	return e.AppError
}

// Is reports whether target is a PaymentError with the same reason.
func (e *PaymentError) Is(target error) bool {
	t, ok := target.(*PaymentError)
	return ok && t.Reason == e.Reason
}

// NewPaymentError creates a PaymentError for the given reason.
func NewPaymentError(reason Reason, details ...string) *PaymentError {
	spec, ok := reasonSpecs[reason]
	if !ok {
		spec = reasonSpec{message: string(reason), code: http.StatusInternalServerError}
	}
	return &PaymentError{
		AppError:  newAppError(ErrorType(reason), spec.code, spec.message, details),
		Reason:    reason,
		Retryable: spec.retryable,
	}
}

// Wrapf returns a copy of a sentinel PaymentError with formatted details.
func (e *PaymentError) Wrapf(format string, args ...any) *PaymentError {
	return NewPaymentError(e.Reason, fmt.Sprintf(format, args...))
}

var (
	ErrMerchantNotFound       = NewPaymentError(ReasonMerchantNotFound)
	ErrContentNotFound        = NewPaymentError(ReasonContentNotFound)
	ErrInvalidPrice           = NewPaymentError(ReasonInvalidPrice)
	ErrIntentExpired          = NewPaymentError(ReasonIntentExpired)
	ErrIntentNotFound         = NewPaymentError(ReasonIntentNotFound)
	ErrIntentAlreadyConfirmed = NewPaymentError(ReasonIntentAlreadyConfirmed)
	ErrTransactionNotFound    = NewPaymentError(ReasonTransactionNotFound)
	ErrPendingConfirmation    = NewPaymentError(ReasonPendingConfirmation)
	ErrTransactionFailed      = NewPaymentError(ReasonTransactionFailed)
	ErrAmountMismatch         = NewPaymentError(ReasonAmountMismatch)
	ErrRecipientMismatch      = NewPaymentError(ReasonRecipientMismatch)
	ErrReferenceMismatch      = NewPaymentError(ReasonReferenceMismatch)
	ErrReferenceUnverifiable  = NewPaymentError(ReasonReferenceUnverifiable)
	ErrPayerInvalid           = NewPaymentError(ReasonPayerInvalid)
	ErrRPCUnavailable         = NewPaymentError(ReasonRPCUnavailable)
	ErrChainUnsupported       = NewPaymentError(ReasonChainUnsupported)
	ErrInvalidToken           = NewPaymentError(ReasonInvalidToken)
	ErrTokenExpired           = NewPaymentError(ReasonTokenExpired)
	ErrAlreadyRedeemed        = NewPaymentError(ReasonAlreadyRedeemed)
)

// GetPaymentError extracts a PaymentError from an error chain.
func GetPaymentError(err error) *PaymentError {
	var payErr *PaymentError
	if stderrors.As(err, &payErr) {
		return payErr
	}
	return nil
}

// IsRetryable reports whether err is a payment failure the client should retry later.
func IsRetryable(err error) bool {
	payErr := GetPaymentError(err)
	return payErr != nil && payErr.Retryable
}

// ReasonOf returns the payment reason carried by err, or an empty reason.
func ReasonOf(err error) Reason {
	if payErr := GetPaymentError(err); payErr != nil {
		return payErr.Reason
	}
	return ""
}
