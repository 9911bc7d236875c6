package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jmehdipour/wa-relay/internal/config"
	"github.com/jmehdipour/wa-relay/internal/http/middleware"
	"github.com/jmehdipour/wa-relay/internal/metrics"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps are the components the HTTP surface routes to.
type Deps struct {
	Inbound  Inbound
	Outbound Outbound
	Media    Media
	Reports  AuditReports  // nil disables /v1/reports
	Redis    *redis.Client // nil disables rate limiting
	Log      *zap.Logger
}

type Server struct {
	e   *echo.Echo
	log *zap.Logger
}

func NewServer(cfg config.Config, deps Deps) *Server {
	lg := deps.Log
	if lg == nil {
		lg = zap.NewNop()
	}

	// echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(echoLevel(cfg.Log.Level))
	e.Use(echoMid.Recover(), echoMid.RequestID(), echoMid.Logger())
	if cfg.HTTP.BodyLimit != "" {
		e.Use(echoMid.BodyLimit(cfg.HTTP.BodyLimit))
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/", rootHandler)
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// platform webhook
	webhookLog := lg.Named("webhook")
	e.GET("/webhook", verifyWebhookHandler(deps.Inbound, webhookLog))
	e.POST("/webhook", receiveWebhookHandler(deps.Inbound, webhookLog))

	// tenant send path
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          deps.Redis,
		RPS:            cfg.RateLimit.RPS,
		KeyPrefix:      "rl:pn:",
		Window:         time.Second,
		RetryAfterHint: true,
		KeyFunc:        middleware.RoutingKeyFromBody,
		Log:            lg.Named("ratelimit"),
	})
	outLog := lg.Named("outbound")
	e.POST("/send", sendHandler(deps.Outbound, outLog), rlMW)
	e.POST("/send-media", sendMediaHandler(deps.Outbound, outLog), rlMW)

	// media proxy
	mediaLog := lg.Named("media")
	e.GET("/media/:mediaId", mediaURLHandler(deps.Media, mediaLog))
	e.GET("/download", downloadHandler(deps.Media, cfg.Platform.MediaHosts, mediaLog))

	// operator reports
	if deps.Reports != nil {
		v1 := e.Group("/v1", middleware.APIKeyMiddleware(cfg.Reports.APIKey))
		v1.GET("/reports/audit", listAuditHandler(deps.Reports, lg.Named("reports")))
	}

	return &Server{e: e, log: lg}
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.e }

func (s *Server) Start(addr string) error {
	s.log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

func echoLevel(level string) log.Lvl {
	switch strings.ToLower(level) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	default:
		return log.INFO
	}
}
