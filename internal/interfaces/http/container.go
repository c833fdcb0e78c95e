package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	tokenUsecases "github.com/micropaywall/paygate/internal/application/accesstoken/usecases"
	"github.com/micropaywall/paygate/internal/application/payment/ledger"
	paymentUsecases "github.com/micropaywall/paygate/internal/application/payment/usecases"
	infraBlockchain "github.com/micropaywall/paygate/internal/infrastructure/blockchain"
	"github.com/micropaywall/paygate/internal/infrastructure/config"
	"github.com/micropaywall/paygate/internal/infrastructure/metrics"
	"github.com/micropaywall/paygate/internal/infrastructure/ratelimit"
	"github.com/micropaywall/paygate/internal/infrastructure/repository"
	"github.com/micropaywall/paygate/internal/infrastructure/scheduler"
	"github.com/micropaywall/paygate/internal/infrastructure/token"
	"github.com/micropaywall/paygate/internal/interfaces/http/handlers"
	"github.com/micropaywall/paygate/internal/interfaces/http/middleware"
	"github.com/micropaywall/paygate/internal/shared/biztime"
	"github.com/micropaywall/paygate/internal/shared/db"
	"github.com/micropaywall/paygate/internal/shared/logger"
)

// Container holds every component of the service and wires them together.
// Shutdown releases them in reverse order.
type Container struct {
	// Core infrastructure
	engine *gin.Engine
	db     *gorm.DB
	cfg    *config.Config
	log    logger.Interface
	clock  biztime.Clock
	redis  *redis.Client

	recorder       metrics.Recorder
	metricsHandler http.Handler
	verifiers      *infraBlockchain.Registry
	closeVerifiers func()

	repos *repositories
	ucs   *allUseCases
	hdlrs *allHandlers

	// Middlewares
	createLimiter *middleware.RateLimiter
	verifyLimiter *middleware.RateLimiter
	webhookSigner *middleware.WebhookSigner

	schedulerManager *scheduler.SchedulerManager
}

type repositories struct {
	intents  *repository.PaymentIntentRepository
	payments *repository.PaymentRepository
	attempts *repository.VerificationAttemptRepository
	tokens   *repository.AccessTokenRepository
	catalog  *repository.CatalogLookup
}

type allUseCases struct {
	createPaymentRequest *paymentUsecases.CreatePaymentRequestUseCase
	verifyPayment        *paymentUsecases.VerifyPaymentUseCase
	paymentStatus        *paymentUsecases.GetPaymentStatusUseCase
	listPayerPayments    *paymentUsecases.ListPayerPaymentsUseCase
	expireIntents        *paymentUsecases.ExpireIntentsUseCase
	reconcilePayments    *paymentUsecases.ReconcilePaymentsUseCase
	issueAccessToken     *tokenUsecases.IssueAccessTokenUseCase
	redeemAccessToken    *tokenUsecases.RedeemAccessTokenUseCase
}

type allHandlers struct {
	payment *handlers.PaymentHandler
	access  *handlers.AccessHandler
	health  *handlers.HealthHandler
}

// NewContainer dials the configured chains, loads the token signing key and
// builds the use cases, handlers and background jobs. Nothing runs until Start.
func NewContainer(ctx context.Context, db *gorm.DB, cfg *config.Config, log logger.Interface) (*Container, error) {
	c := &Container{
		engine: gin.New(),
		db:     db,
		cfg:    cfg,
		log:    log,
		clock:  biztime.NowUTC,
	}

	// Section 1: Infrastructure - Redis, metrics, chain verifiers, repositories
	if err := c.initInfrastructure(ctx); err != nil {
		c.Shutdown(ctx)
		return nil, err
	}

	// Section 2: Access tokens - key material, signer, issuer, redemption gate
	if err := c.initTokens(ctx); err != nil {
		c.Shutdown(ctx)
		return nil, err
	}

	// Section 3: Payments - ledger and payment use cases
	c.initPayments()

	// Section 4: Scheduler jobs - intent expiry and reconciliation
	if err := c.initScheduler(); err != nil {
		c.Shutdown(ctx)
		return nil, err
	}

	// Section 5: Handlers and middlewares
	c.initHandlers()

	return c, nil
}

func (c *Container) initInfrastructure(ctx context.Context) error {
	c.recorder = metrics.NoopRecorder{}
	if c.cfg.Metrics.Enabled {
		prom := metrics.NewPrometheusRecorder()
		c.recorder = prom
		c.metricsHandler = prom.Handler()
	}

	if c.cfg.RateLimit.Enabled {
		c.redis = redis.NewClient(&redis.Options{
			Addr:     c.cfg.Redis.GetAddr(),
			Password: c.cfg.Redis.Password,
			DB:       c.cfg.Redis.DB,
		})
		if err := c.redis.Ping(ctx).Err(); err != nil {
			// Requests are let through until Redis comes back.
			c.log.Warnw("redis unreachable, rate limiting fails open", "addr", c.cfg.Redis.GetAddr(), "error", err)
		}
	}

	verifiers, closeVerifiers, err := infraBlockchain.NewRegistryFromConfig(ctx, c.cfg.Chains, c.cfg.RPC, c.recorder, c.log)
	if err != nil {
		return fmt.Errorf("failed to build chain verifiers: %w", err)
	}
	c.verifiers = verifiers
	c.closeVerifiers = closeVerifiers

	c.repos = &repositories{
		intents:  repository.NewPaymentIntentRepository(c.db),
		payments: repository.NewPaymentRepository(c.db),
		attempts: repository.NewVerificationAttemptRepository(c.db),
		tokens:   repository.NewAccessTokenRepository(c.db),
		catalog:  repository.NewCatalogLookup(c.db),
	}
	return nil
}

func (c *Container) initTokens(ctx context.Context) error {
	tc := c.cfg.Token

	var provider token.KeyProvider
	switch tc.KeySource {
	case "aws_secrets_manager":
		p, err := token.NewAWSSecretsKeyProviderFromEnv(ctx, tc.AWSRegion, tc.SecretARN, tc.Algorithm)
		if err != nil {
			return err
		}
		provider = p
	default:
		provider = token.NewStaticKeyProvider(tc.Algorithm, tc.Secret)
	}

	key, err := provider.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load token signing key: %w", err)
	}
	signer, err := token.NewJWTSigner(key, tc.Issuer, c.clock)
	if err != nil {
		return err
	}

	c.ucs = &allUseCases{
		issueAccessToken: tokenUsecases.NewIssueAccessTokenUseCase(c.repos.tokens, signer, tokenUsecases.TokenPolicy{
			DefaultTTL:       tc.DefaultTTL,
			PermanentTTL:     tc.PermanentTTL,
			SingleUseDefault: tc.SingleUseDefault,
		}, c.clock, c.log.Named("token")),
		redeemAccessToken: tokenUsecases.NewRedeemAccessTokenUseCase(c.repos.tokens, c.repos.catalog, signer, c.clock, c.log.Named("redeem")),
	}
	return nil
}

func (c *Container) initPayments() {
	r := c.repos
	log := c.log.Named("payment")

	l := ledger.NewLedger(r.intents, r.payments, db.NewTransactionManager(c.db), c.clock, log)

	c.ucs.createPaymentRequest = paymentUsecases.NewCreatePaymentRequestUseCase(
		r.intents, r.catalog, c.verifiers, chainDirectory(c.cfg.Chains),
		paymentUsecases.IntentPolicy{DefaultTTL: c.cfg.Intent.DefaultTTL, MaxTTL: c.cfg.Intent.MaxTTL},
		c.clock, log,
	)
	c.ucs.verifyPayment = paymentUsecases.NewVerifyPaymentUseCase(
		r.intents, r.payments, r.attempts, r.catalog, c.verifiers,
		l, c.ucs.issueAccessToken, c.recorder, c.clock, log,
	)
	c.ucs.paymentStatus = paymentUsecases.NewGetPaymentStatusUseCase(r.payments, r.attempts)
	c.ucs.listPayerPayments = paymentUsecases.NewListPayerPaymentsUseCase(r.payments)
	c.ucs.expireIntents = paymentUsecases.NewExpireIntentsUseCase(
		r.intents, c.cfg.Scheduler.BatchSize, c.recorder, c.clock, log.Named("expire"),
	)
	c.ucs.reconcilePayments = paymentUsecases.NewReconcilePaymentsUseCase(
		r.payments, r.tokens, c.verifiers,
		paymentUsecases.ReconcilePolicy{
			Lookback:      c.cfg.Scheduler.ReconcileLookback,
			BatchSize:     c.cfg.Scheduler.BatchSize,
			MissThreshold: c.cfg.Scheduler.ReconcileMissThreshold,
		},
		c.recorder, c.clock, log.Named("reconcile"),
	)
}

func (c *Container) initHandlers() {
	c.hdlrs = &allHandlers{
		payment: handlers.NewPaymentHandler(
			c.ucs.createPaymentRequest, c.ucs.verifyPayment, c.ucs.paymentStatus, c.ucs.listPayerPayments,
			c.log.Named("http.payment"),
		),
		access: handlers.NewAccessHandler(c.ucs.redeemAccessToken, c.log.Named("http.access")),
	}
	if sqlDB, err := c.db.DB(); err == nil {
		c.hdlrs.health = handlers.NewHealthHandler(sqlDB)
	} else {
		c.hdlrs.health = handlers.NewHealthHandler(nil)
	}

	var limiter ratelimit.RateLimiter
	if c.redis != nil {
		limiter = ratelimit.NewRedisRateLimiter(c.redis, c.clock)
	}
	limitLog := c.log.Named("ratelimit")
	c.createLimiter = middleware.NewRateLimiter(limiter, "create", ratelimit.PerMinute(c.cfg.RateLimit.CreatePerMinute), limitLog)
	c.verifyLimiter = middleware.NewRateLimiter(limiter, "verify", ratelimit.PerMinute(c.cfg.RateLimit.VerifyPerMinute), limitLog)

	if c.cfg.Webhook.Secret != "" {
		c.webhookSigner = middleware.NewWebhookSigner(c.cfg.Webhook.Secret, c.log.Named("webhook"))
	}
}

// Start launches the background jobs.
func (c *Container) Start() {
	c.schedulerManager.Start()
}

// Shutdown stops background jobs and releases connections. It is safe to call
// on a partially built container.
func (c *Container) Shutdown(_ context.Context) error {
	var errs []error
	if c.schedulerManager != nil {
		if err := c.schedulerManager.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("scheduler: %w", err))
		}
	}
	if c.closeVerifiers != nil {
		c.closeVerifiers()
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
