package usecases

import (
	"fmt"
	"math/big"
	"net/url"

	"github.com/shopspring/decimal"

	vo "github.com/micropaywall/paygate/internal/domain/payment/valueobjects"
)

// displayAmount converts an amount in the smallest unit to whole units.
func displayAmount(amount uint64, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -decimals)
}

// buildPaymentURL returns a wallet deep link for the intent: a Solana Pay
// transfer request on Solana and an EIP-681 URL on EVM chains.
func buildPaymentURL(settings ChainSettings, recipient string, amount uint64, reference, label string) string {
	switch settings.Kind {
	case vo.ChainKindSolana:
		q := url.Values{}
		q.Set("amount", displayAmount(amount, settings.Decimals).String())
		q.Set("reference", reference)
		q.Set("memo", reference)
		if label != "" {
			q.Set("label", label)
		}
		return "solana:" + recipient + "?" + q.Encode()
	case vo.ChainKindEVM:
		return fmt.Sprintf("ethereum:%s@%d?value=%d", recipient, settings.ChainID, amount)
	default:
		return ""
	}
}
