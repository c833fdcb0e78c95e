package handlers

import (
	"context"
	"encoding/json"
	"math"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/micropaywall/paygate/internal/application/payment/usecases"
	"github.com/micropaywall/paygate/internal/shared/errors"
	"github.com/micropaywall/paygate/internal/shared/logger"
	"github.com/micropaywall/paygate/internal/shared/utils"
)

type createPaymentRequestUseCase interface {
	Execute(ctx context.Context, cmd usecases.CreatePaymentRequestCommand) (*usecases.CreatePaymentRequestResult, error)
}

type verifyPaymentUseCase interface {
	Execute(ctx context.Context, cmd usecases.VerifyPaymentCommand) (*usecases.VerifyPaymentResult, error)
}

type paymentStatusUseCase interface {
	Execute(ctx context.Context, txSignature string) (*usecases.PaymentStatusResult, error)
}

type listPayerPaymentsUseCase interface {
	Execute(ctx context.Context, query usecases.ListPayerPaymentsQuery) (*usecases.ListPayerPaymentsResult, error)
}

type PaymentHandler struct {
	createUC createPaymentRequestUseCase
	verifyUC verifyPaymentUseCase
	statusUC paymentStatusUseCase
	listUC   listPayerPaymentsUseCase
	logger   logger.Interface
}

func NewPaymentHandler(
	createUC createPaymentRequestUseCase,
	verifyUC verifyPaymentUseCase,
	statusUC paymentStatusUseCase,
	listUC listPayerPaymentsUseCase,
	logger logger.Interface,
) *PaymentHandler {
	return &PaymentHandler{
		createUC: createUC,
		verifyUC: verifyUC,
		statusUC: statusUC,
		listUC:   listUC,
		logger:   logger,
	}
}

type CreatePaymentRequestRequest struct {
	MerchantID string `json:"merchant_id" binding:"required"`
	ContentID  string `json:"content_id" binding:"required"`
	// Price is in minor units of the chain currency. It is bound as a
	// number literal so that zero and negative overrides reach the price
	// rules instead of failing JSON decoding.
	Price           json.Number `json:"price,omitempty"`
	Currency        string      `json:"currency,omitempty"`
	DurationSeconds int64       `json:"duration_seconds,omitempty" binding:"gte=0"`
}

var maxAmount = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)

// parsePrice turns an optional price override into minor units. Zero is
// passed through so the use case rejects it with the other price rules.
func parsePrice(n json.Number) (*uint64, error) {
	if n == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return nil, errors.ErrInvalidPrice.Wrapf("price %q is not a number", n)
	}
	switch {
	case d.IsNegative():
		return nil, errors.ErrInvalidPrice.Wrapf("price %s is negative", n)
	case !d.Equal(d.Truncate(0)):
		return nil, errors.ErrInvalidPrice.Wrapf("price %s is not in minor units", n)
	case d.GreaterThan(maxAmount):
		return nil, errors.ErrInvalidPrice.Wrapf("price %s is out of range", n)
	}
	price := d.BigInt().Uint64()
	return &price, nil
}

type CreatePaymentRequestResponse struct {
	IntentID          string `json:"intent_id"`
	Chain             string `json:"chain"`
	ExpectedRecipient string `json:"expected_recipient"`
	Amount            uint64 `json:"amount"`
	DisplayAmount     string `json:"display_amount"`
	Currency          string `json:"currency"`
	Reference         string `json:"reference"`
	PaymentURL        string `json:"payment_url,omitempty"`
	ExpiresAt         string `json:"expires_at"`
}

type VerifyPaymentRequest struct {
	TxSignature string `json:"tx_signature" binding:"required"`
	MerchantID  string `json:"merchant_id" binding:"required"`
	ContentID   string `json:"content_id" binding:"required"`
	IntentID    string `json:"intent_id,omitempty"`
}

type VerifyPaymentResponse struct {
	Success        bool   `json:"success"`
	Duplicate      bool   `json:"duplicate"`
	PaymentID      string `json:"payment_id"`
	IntentID       string `json:"intent_id"`
	AccessToken    string `json:"access_token"`
	TokenExpiresAt string `json:"token_expires_at"`
	SingleUse      bool   `json:"single_use"`
}

type PaymentStatusResponse struct {
	TxSignature string `json:"tx_signature"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
	PaymentID   string `json:"payment_id,omitempty"`
	IntentID    string `json:"intent_id,omitempty"`
	Chain       string `json:"chain,omitempty"`
	Attempts    int    `json:"attempts,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

type PaymentSummaryResponse struct {
	PaymentID   string `json:"payment_id"`
	IntentID    string `json:"intent_id"`
	MerchantID  string `json:"merchant_id"`
	ContentID   string `json:"content_id"`
	Chain       string `json:"chain"`
	TxSignature string `json:"tx_signature"`
	Amount      uint64 `json:"amount"`
	Status      string `json:"status"`
	ConfirmedAt string `json:"confirmed_at"`
}

// @Summary		Create payment request
// @Description	Open a payment intent for one content item
// @Tags			payments
// @Accept			json
// @Produce		json
// @Param			request	body		CreatePaymentRequestRequest							true	"Payment request"
// @Success		201		{object}	utils.APIResponse{data=CreatePaymentRequestResponse}	"Payment intent created"
// @Failure		400		{object}	utils.APIResponse									"Bad request"
// @Failure		404		{object}	utils.APIResponse									"Merchant or content not found"
// @Failure		429		{object}	utils.APIResponse									"Rate limit exceeded"
// @Router			/api/v1/payment-requests [post]
func (h *PaymentHandler) CreatePaymentRequest(c *gin.Context) {
	var req CreatePaymentRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warnw("invalid payment request body", "error", err)
		utils.ErrorResponseWithError(c, errors.NewValidationError("invalid request", err.Error()))
		return
	}

	price, err := parsePrice(req.Price)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	result, err := h.createUC.Execute(c.Request.Context(), usecases.CreatePaymentRequestCommand{
		MerchantID: req.MerchantID,
		ContentID:  req.ContentID,
		Price:      price,
		Currency:   req.Currency,
		Duration:   time.Duration(req.DurationSeconds) * time.Second,
	})
	if err != nil {
		h.logger.Warnw("failed to create payment request", "error", err,
			"merchant_id", req.MerchantID, "content_id", req.ContentID)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.CreatedResponse(c, CreatePaymentRequestResponse{
		IntentID:          result.IntentID,
		Chain:             result.Chain.String(),
		ExpectedRecipient: result.ExpectedRecipient,
		Amount:            result.Amount,
		DisplayAmount:     result.DisplayAmount,
		Currency:          result.Currency,
		Reference:         result.Reference,
		PaymentURL:        result.PaymentURL,
		ExpiresAt:         result.ExpiresAt.Format(time.RFC3339),
	}, "payment intent created")
}

// @Summary		Verify payment
// @Description	Verify an on-chain transaction and issue an access token
// @Tags			payments
// @Accept			json
// @Produce		json
// @Param			request	body		VerifyPaymentRequest							true	"Transaction to verify"
// @Success		200		{object}	utils.APIResponse{data=VerifyPaymentResponse}	"Payment confirmed"
// @Failure		202		{object}	utils.APIResponse								"Pending confirmation, retry later"
// @Failure		422		{object}	utils.APIResponse								"Payment rejected"
// @Failure		429		{object}	utils.APIResponse								"Rate limit exceeded"
// @Router			/api/v1/payments/verify [post]
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warnw("invalid verify request body", "error", err)
		utils.ErrorResponseWithError(c, errors.NewValidationError("invalid request", err.Error()))
		return
	}

	result, err := h.verifyUC.Execute(c.Request.Context(), usecases.VerifyPaymentCommand{
		TxSignature: strings.TrimSpace(req.TxSignature),
		MerchantID:  req.MerchantID,
		ContentID:   req.ContentID,
		IntentID:    req.IntentID,
	})
	if err != nil {
		if errors.GetPaymentError(err) == nil && !errors.IsValidationError(err) {
			h.logger.Errorw("failed to verify payment", "error", err, "tx_signature", req.TxSignature)
		}
		utils.ErrorResponseWithError(c, err)
		return
	}

	resp := VerifyPaymentResponse{
		Success:   result.Success,
		Duplicate: result.Duplicate,
		PaymentID: result.PaymentID,
		IntentID:  result.IntentID,
	}
	if t := result.AccessToken; t != nil {
		resp.AccessToken = t.Token()
		resp.TokenExpiresAt = t.ExpiresAt().Format(time.RFC3339)
		resp.SingleUse = t.SingleUse()
	}

	message := "payment verified"
	if result.Duplicate {
		message = "payment already verified"
	}
	utils.SuccessResponse(c, http.StatusOK, message, resp)
}

// @Summary		Get payment status
// @Description	Report how far a submitted transaction got
// @Tags			payments
// @Produce		json
// @Param			signature	path		string											true	"Transaction signature"
// @Success		200			{object}	utils.APIResponse{data=PaymentStatusResponse}	"Status"
// @Router			/api/v1/payments/status/{signature} [get]
func (h *PaymentHandler) GetPaymentStatus(c *gin.Context) {
	result, err := h.statusUC.Execute(c.Request.Context(), c.Param("signature"))
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	resp := PaymentStatusResponse{
		TxSignature: result.TxSignature,
		Status:      string(result.Status),
		Reason:      result.Reason,
		PaymentID:   result.PaymentID,
		IntentID:    result.IntentID,
		Chain:       result.Chain.String(),
		Attempts:    result.Attempts,
	}
	if result.UpdatedAt != nil {
		resp.UpdatedAt = result.UpdatedAt.Format(time.RFC3339)
	}

	utils.SuccessResponse(c, http.StatusOK, "", resp)
}

// @Summary		List payer payments
// @Description	List confirmed payments made by one payer address
// @Tags			payments
// @Produce		json
// @Param			payer		query		string	true	"Payer address"
// @Param			page		query		int		false	"Page number"
// @Param			page_size	query		int		false	"Page size"
// @Success		200			{object}	utils.APIResponse{data=utils.ListResponse}	"Payments"
// @Router			/api/v1/payments [get]
func (h *PaymentHandler) ListPayerPayments(c *gin.Context) {
	p := utils.ParsePagination(c)

	result, err := h.listUC.Execute(c.Request.Context(), usecases.ListPayerPaymentsQuery{
		Payer:  c.Query("payer"),
		Offset: p.Offset(),
		Limit:  p.PageSize,
	})
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	items := make([]PaymentSummaryResponse, 0, len(result.Payments))
	for _, s := range result.Payments {
		items = append(items, PaymentSummaryResponse{
			PaymentID:   s.PaymentID,
			IntentID:    s.IntentID,
			MerchantID:  s.MerchantID,
			ContentID:   s.ContentID,
			Chain:       s.Chain.String(),
			TxSignature: s.TxSignature,
			Amount:      s.Amount,
			Status:      string(s.Status),
			ConfirmedAt: s.ConfirmedAt.Format(time.RFC3339),
		})
	}

	utils.ListSuccessResponse(c, items, result.Total, p.Page, p.PageSize)
}
