package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	tokenusecases "github.com/micropaywall/paygate/internal/application/accesstoken/usecases"
	"github.com/micropaywall/paygate/internal/shared/errors"
	"github.com/micropaywall/paygate/internal/shared/logger"
	"github.com/micropaywall/paygate/internal/shared/utils"
)

type redeemAccessTokenUseCase interface {
	Execute(ctx context.Context, cmd tokenusecases.RedeemAccessTokenCommand) (*tokenusecases.RedeemAccessTokenResult, error)
}

// AccessHandler fronts the redemption gate used by merchants to check a
// buyer's access token before serving content.
type AccessHandler struct {
	redeemUC redeemAccessTokenUseCase
	logger   logger.Interface
}

func NewAccessHandler(redeemUC redeemAccessTokenUseCase, logger logger.Interface) *AccessHandler {
	return &AccessHandler{redeemUC: redeemUC, logger: logger}
}

type RedeemAccessTokenRequest struct {
	// Token may also be sent as a bearer Authorization header.
	Token      string `json:"token"`
	MerchantID string `json:"merchant_id,omitempty"`
	ContentID  string `json:"content_id,omitempty"`
}

type RedeemAccessTokenResponse struct {
	Granted    bool   `json:"granted"`
	MerchantID string `json:"merchant_id"`
	ContentID  string `json:"content_id"`
	PaymentID  string `json:"payment_id"`
	SingleUse  bool   `json:"single_use"`
	ExpiresAt  string `json:"expires_at"`
}

// @Summary		Redeem access token
// @Description	Check an access token and consume it when it is single-use
// @Tags			access
// @Accept			json
// @Produce		json
// @Param			request	body		RedeemAccessTokenRequest							true	"Token to redeem"
// @Success		200		{object}	utils.APIResponse{data=RedeemAccessTokenResponse}	"Access granted"
// @Failure		401		{object}	utils.APIResponse									"Invalid or expired token"
// @Failure		409		{object}	utils.APIResponse									"Token already redeemed"
// @Router			/api/v1/access/redeem [post]
func (h *AccessHandler) Redeem(c *gin.Context) {
	var req RedeemAccessTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponseWithError(c, errors.NewValidationError("invalid request", err.Error()))
		return
	}
	if req.Token == "" {
		req.Token = bearerToken(c)
	}
	if req.Token == "" {
		utils.ErrorResponseWithError(c, errors.NewValidationError("token is required"))
		return
	}

	result, err := h.redeemUC.Execute(c.Request.Context(), tokenusecases.RedeemAccessTokenCommand{
		Token:      req.Token,
		MerchantID: req.MerchantID,
		ContentID:  req.ContentID,
	})
	if err != nil {
		if errors.GetPaymentError(err) == nil && !errors.IsValidationError(err) {
			h.logger.Errorw("failed to redeem access token", "error", err)
		}
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "access granted", RedeemAccessTokenResponse{
		Granted:    result.Granted,
		MerchantID: result.MerchantID,
		ContentID:  result.ContentID,
		PaymentID:  result.PaymentID,
		SingleUse:  result.SingleUse,
		ExpiresAt:  result.ExpiresAt.Format(time.RFC3339),
	})
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
