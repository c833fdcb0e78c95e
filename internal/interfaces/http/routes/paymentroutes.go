package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/micropaywall/paygate/internal/interfaces/http/handlers"
	"github.com/micropaywall/paygate/internal/interfaces/http/middleware"
)

// PaymentRouteConfig holds dependencies for payment routes.
type PaymentRouteConfig struct {
	PaymentHandler *handlers.PaymentHandler
	AccessHandler  *handlers.AccessHandler
	CreateLimiter  *middleware.RateLimiter
	VerifyLimiter  *middleware.RateLimiter
	// WebhookSigner is nil when no webhook secret is configured, which
	// leaves the webhook route unregistered.
	WebhookSigner *middleware.WebhookSigner
}

// SetupPaymentRoutes configures payment, access and webhook routes.
func SetupPaymentRoutes(engine *gin.Engine, cfg *PaymentRouteConfig) {
	v1 := engine.Group("/api/v1")
	{
		v1.POST("/payment-requests", cfg.CreateLimiter.Limit(), cfg.PaymentHandler.CreatePaymentRequest)

		payments := v1.Group("/payments")
		{
			payments.GET("", cfg.PaymentHandler.ListPayerPayments)
			payments.POST("/verify", cfg.VerifyLimiter.Limit(), cfg.PaymentHandler.VerifyPayment)
			payments.GET("/status/:signature", cfg.PaymentHandler.GetPaymentStatus)
		}

		v1.POST("/access/redeem", cfg.AccessHandler.Redeem)
	}

	if cfg.WebhookSigner != nil {
		webhooks := engine.Group("/webhooks")
		webhooks.POST("/verify", cfg.WebhookSigner.RequireSignature(), cfg.PaymentHandler.VerifyPayment)
	}
}
