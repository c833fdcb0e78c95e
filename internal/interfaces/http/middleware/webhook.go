package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/micropaywall/paygate/internal/shared/logger"
	"github.com/micropaywall/paygate/internal/shared/utils"
)

const (
	WebhookSignatureHeader = "X-Paygate-Signature"
	webhookSignaturePrefix = "sha256="
	maxWebhookBodyBytes    = 64 << 10
)

// WebhookSigner signs and verifies webhook bodies with HMAC-SHA256.
type WebhookSigner struct {
	secret []byte
	logger logger.Interface
}

func NewWebhookSigner(secret string, logger logger.Interface) *WebhookSigner {
	return &WebhookSigner{secret: []byte(secret), logger: logger}
}

// Sign returns the header value for body.
func (s *WebhookSigner) Sign(body []byte) string {
	return webhookSignaturePrefix + hex.EncodeToString(s.mac(body))
}

// Verify reports whether header carries the signature of body.
func (s *WebhookSigner) Verify(body []byte, header string) bool {
	if len(s.secret) == 0 || !strings.HasPrefix(header, webhookSignaturePrefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, webhookSignaturePrefix))
	if err != nil {
		return false
	}
	// Use constant-time comparison to prevent timing attacks
	return hmac.Equal(got, s.mac(body))
}

func (s *WebhookSigner) mac(body []byte) []byte {
	m := hmac.New(sha256.New, s.secret)
	m.Write(body)
	return m.Sum(nil)
}

// RequireSignature rejects requests whose body is not signed with the
// webhook secret. The body is restored for the next handler.
func (s *WebhookSigner) RequireSignature() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes+1))
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "failed to read request body")
			c.Abort()
			return
		}
		if len(body) > maxWebhookBodyBytes {
			utils.ErrorResponse(c, http.StatusRequestEntityTooLarge, "request body too large")
			c.Abort()
			return
		}

		if !s.Verify(body, c.GetHeader(WebhookSignatureHeader)) {
			s.logger.Warnw("webhook signature rejected",
				"ip", c.ClientIP(),
				"path", c.Request.URL.Path,
			)
			utils.ErrorResponse(c, http.StatusUnauthorized, "invalid webhook signature")
			c.Abort()
			return
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}
