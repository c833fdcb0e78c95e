package http

import (
	"github.com/gin-gonic/gin"

	"github.com/micropaywall/paygate/internal/interfaces/http/middleware"
	"github.com/micropaywall/paygate/internal/interfaces/http/routes"
)

type Router struct {
	engine    *gin.Engine
	container *Container
}

func NewRouter(container *Container) *Router {
	return &Router{engine: container.engine, container: container}
}

// SetupRoutes configures all HTTP routes
func (r *Router) SetupRoutes() {
	c := r.container

	r.engine.Use(middleware.Logger(c.log.Named("http")))
	r.engine.Use(middleware.Recovery(c.log.Named("http")))
	r.engine.Use(middleware.CORS(c.cfg.Server.AllowedOrigins))

	r.engine.GET("/health", c.hdlrs.health.Health)

	if c.metricsHandler != nil {
		path := c.cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, gin.WrapH(c.metricsHandler))
	}

	routes.SetupPaymentRoutes(r.engine, &routes.PaymentRouteConfig{
		PaymentHandler: c.hdlrs.payment,
		AccessHandler:  c.hdlrs.access,
		CreateLimiter:  c.createLimiter,
		VerifyLimiter:  c.verifyLimiter,
		WebhookSigner:  c.webhookSigner,
	})
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
