package blockchain

import (
	"github.com/micropaywall/paygate/internal/domain/payment"
	"github.com/micropaywall/paygate/internal/shared/errors"
)

// Evaluate decides whether tx pays for intent. The checks run in a fixed
// order: finality, execution result, recipient and amount, reference, payer.
// It never touches persistence or intent status.
func Evaluate(tx *Transaction, intent *payment.PaymentIntent, supportsReference bool) (*Outcome, error) {
	if tx == nil {
		return nil, errors.ErrTransactionNotFound
	}
	if !tx.Final {
		return nil, errors.ErrPendingConfirmation.Wrapf("%d confirmations", tx.Confirmations)
	}
	if !tx.Succeeded {
		return nil, errors.ErrTransactionFailed
	}

	recipient := intent.ExpectedRecipient()
	var best *Transfer
	for i := range tx.Transfers {
		tr := &tx.Transfers[i]
		if tr.To != recipient {
			continue
		}
		if best == nil || tr.Amount > best.Amount {
			best = tr
		}
	}
	if best == nil {
		return nil, errors.ErrRecipientMismatch.Wrapf("no transfer to %s", recipient)
	}
	if best.Amount < intent.Amount() {
		return nil, errors.ErrAmountMismatch.Wrapf("expected at least %d, got %d", intent.Amount(), best.Amount)
	}

	if !supportsReference {
		return nil, errors.ErrReferenceUnverifiable.Wrapf("chain %s", tx.Chain)
	}
	if !tx.HasReference(intent.Reference()) {
		return nil, errors.ErrReferenceMismatch
	}

	payer := best.From
	if payer == "" {
		payer = tx.Payer
	}
	if payer == "" || payer == recipient {
		return nil, errors.ErrPayerInvalid
	}

	return &Outcome{
		Signature: tx.Signature,
		Chain:     tx.Chain,
		Payer:     payer,
		Recipient: recipient,
		Amount:    best.Amount,
		Slot:      tx.Slot,
		BlockTime: tx.BlockTime,
	}, nil
}
