package usecases

import (
	"context"
	"time"

	"github.com/micropaywall/paygate/internal/domain/accesstoken"
	"github.com/micropaywall/paygate/internal/domain/catalog"
	"github.com/micropaywall/paygate/internal/shared/biztime"
	"github.com/micropaywall/paygate/internal/shared/errors"
	"github.com/micropaywall/paygate/internal/shared/logger"
)

type RedeemAccessTokenCommand struct {
	Token string
	// MerchantID and ContentID, when set, must match the token scope.
	MerchantID string
	ContentID  string
}

type RedeemAccessTokenResult struct {
	Granted    bool
	MerchantID string
	ContentID  string
	PaymentID  string
	SingleUse  bool
	ExpiresAt  time.Time
}

// RedeemAccessTokenUseCase is the redemption gate. Multi-use tokens are
// checked without touching storage; single-use tokens are consumed with a
// compare-and-set so exactly one caller is granted.
type RedeemAccessTokenUseCase struct {
	tokenRepo accesstoken.Repository
	catalog   catalog.Lookup
	signer    TokenSigner
	clock     biztime.Clock
	logger    logger.Interface
}

func NewRedeemAccessTokenUseCase(
	tokenRepo accesstoken.Repository,
	lookup catalog.Lookup,
	signer TokenSigner,
	clock biztime.Clock,
	logger logger.Interface,
) *RedeemAccessTokenUseCase {
	return &RedeemAccessTokenUseCase{
		tokenRepo: tokenRepo,
		catalog:   lookup,
		signer:    signer,
		clock:     biztime.OrDefault(clock),
		logger:    logger,
	}
}

func (uc *RedeemAccessTokenUseCase) Execute(ctx context.Context, cmd RedeemAccessTokenCommand) (*RedeemAccessTokenResult, error) {
	if cmd.Token == "" {
		return nil, errors.ErrInvalidToken.Wrapf("token is required")
	}

	claims, err := uc.signer.Parse(cmd.Token)
	if err != nil {
		return nil, err
	}

	if (cmd.MerchantID != "" && cmd.MerchantID != claims.MerchantID) ||
		(cmd.ContentID != "" && cmd.ContentID != claims.ContentID) {
		return nil, errors.ErrInvalidToken.Wrapf("scope mismatch")
	}

	content, err := uc.catalog.GetContent(ctx, claims.MerchantID, claims.ContentID)
	if err != nil {
		return nil, err
	}
	if content == nil {
		return nil, errors.ErrInvalidToken.Wrapf("content %s is no longer available", claims.ContentID)
	}

	if claims.SingleUse {
		if err := uc.consume(ctx, claims); err != nil {
			return nil, err
		}
	}

	return &RedeemAccessTokenResult{
		Granted:    true,
		MerchantID: claims.MerchantID,
		ContentID:  claims.ContentID,
		PaymentID:  claims.PaymentID,
		SingleUse:  claims.SingleUse,
		ExpiresAt:  claims.ExpiresAt,
	}, nil
}

func (uc *RedeemAccessTokenUseCase) consume(ctx context.Context, claims accesstoken.Claims) error {
	won, err := uc.tokenRepo.MarkRedeemed(ctx, claims.ID, uc.clock())
	if err != nil {
		return err
	}
	if won {
		uc.logger.Infow("single-use token redeemed", "payment_id", claims.PaymentID, "content_id", claims.ContentID)
		return nil
	}

	stored, err := uc.tokenRepo.GetByJTI(ctx, claims.ID)
	if err != nil {
		return err
	}
	switch {
	case stored == nil:
		uc.logger.Warnw("validly signed token has no issuance record", "jti", claims.ID, "payment_id", claims.PaymentID)
		return errors.ErrInvalidToken.Wrapf("unknown token")
	case stored.IsRevoked():
		return errors.ErrInvalidToken.Wrapf("token revoked")
	default:
		return errors.ErrAlreadyRedeemed
	}
}
