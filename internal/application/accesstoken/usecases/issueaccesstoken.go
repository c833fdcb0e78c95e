package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/micropaywall/paygate/internal/domain/accesstoken"
	"github.com/micropaywall/paygate/internal/domain/catalog"
	"github.com/micropaywall/paygate/internal/domain/payment"
	"github.com/micropaywall/paygate/internal/shared/biztime"
	"github.com/micropaywall/paygate/internal/shared/errors"
	"github.com/micropaywall/paygate/internal/shared/logger"
)

type IssueAccessTokenCommand struct {
	Payment *payment.Payment
	// Content supplies the access policy. Nil falls back to the platform defaults.
	Content *catalog.Content
}

// IssueAccessTokenUseCase mints the single token owned by a payment. Calling it
// again for the same payment returns the stored token.
type IssueAccessTokenUseCase struct {
	tokenRepo accesstoken.Repository
	signer    TokenSigner
	policy    TokenPolicy
	clock     biztime.Clock
	logger    logger.Interface
}

func NewIssueAccessTokenUseCase(
	tokenRepo accesstoken.Repository,
	signer TokenSigner,
	policy TokenPolicy,
	clock biztime.Clock,
	logger logger.Interface,
) *IssueAccessTokenUseCase {
	return &IssueAccessTokenUseCase{
		tokenRepo: tokenRepo,
		signer:    signer,
		policy:    policy,
		clock:     biztime.OrDefault(clock),
		logger:    logger,
	}
}

func (uc *IssueAccessTokenUseCase) Execute(ctx context.Context, cmd IssueAccessTokenCommand) (*accesstoken.AccessToken, error) {
	if cmd.Payment == nil {
		return nil, errors.NewValidationError("payment is required")
	}
	paymentID := cmd.Payment.ID()

	existing, err := uc.tokenRepo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	// JWT timestamps have second precision; truncate so stored and signed claims agree.
	now := uc.clock().UTC().Truncate(time.Second)
	claims := accesstoken.Claims{
		ID:         uuid.NewString(),
		MerchantID: cmd.Payment.MerchantID(),
		ContentID:  cmd.Payment.ContentID(),
		PaymentID:  paymentID,
		SingleUse:  uc.singleUse(cmd.Content),
		IssuedAt:   now,
		ExpiresAt:  now.Add(uc.ttl(cmd.Content)),
	}

	signed, err := uc.signer.Sign(claims)
	if err != nil {
		uc.logger.Errorw("failed to sign access token", "payment_id", paymentID, "error", err)
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	token, err := accesstoken.NewAccessToken(claims, signed)
	if err != nil {
		return nil, err
	}

	stored, err := uc.tokenRepo.CreateIfAbsent(ctx, token)
	if err != nil {
		return nil, err
	}
	if !stored {
		// a concurrent issue for the same payment won
		winner, err := uc.tokenRepo.GetByPaymentID(ctx, paymentID)
		if err != nil {
			return nil, err
		}
		if winner == nil {
			return nil, errors.NewInternalError("access token vanished after conflict", paymentID)
		}
		return winner, nil
	}

	uc.logger.Infow("access token issued",
		"payment_id", paymentID,
		"content_id", claims.ContentID,
		"single_use", claims.SingleUse,
		"expires_at", claims.ExpiresAt,
	)
	return token, nil
}

func (uc *IssueAccessTokenUseCase) ttl(content *catalog.Content) time.Duration {
	switch {
	case content == nil:
		return uc.policy.DefaultTTL
	case content.Permanent:
		return uc.policy.PermanentTTL
	case content.AccessDuration > 0:
		return content.AccessDuration
	default:
		return uc.policy.DefaultTTL
	}
}

func (uc *IssueAccessTokenUseCase) singleUse(content *catalog.Content) bool {
	if content == nil {
		return uc.policy.SingleUseDefault
	}
	return content.ResolveSingleUse(uc.policy.SingleUseDefault)
}
