package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/opencraft/opencraft/internal/auth"
	"github.com/opencraft/opencraft/internal/compute"
	"github.com/opencraft/opencraft/internal/events"
	"github.com/opencraft/opencraft/internal/lock"
	"github.com/opencraft/opencraft/internal/metrics"
	"github.com/opencraft/opencraft/internal/reconciler"
)

// PowerController is implemented by *reconciler.Reconciler.
type PowerController interface {
	PowerOn(ctx context.Context) (*compute.Ack, error)
	PowerOff(ctx context.Context) (*compute.Ack, error)
	Status(ctx context.Context) (*reconciler.Status, error)
}

// ServerOpts holds optional dependencies.
type ServerOpts struct {
	APIKey    string
	JWTIssuer *auth.JWTIssuer
	Locker    lock.Locker // nil disables cross-replica serialization
	Events    events.Sink // nil disables event publishing
	Logger    *zap.Logger

	// OperationTimeout bounds a power operation. The operation is detached from
	// the HTTP request so a dropped client does not abort a half-issued command.
	OperationTimeout time.Duration
}

// Server holds the API server dependencies.
type Server struct {
	echo       *echo.Echo
	controller PowerController
	locker     lock.Locker
	events     events.Sink
	issuer     *auth.JWTIssuer
	logger     *zap.Logger
	opTimeout  time.Duration
}

// NewServer creates a new API server with all routes configured.
func NewServer(controller PowerController, opts *ServerOpts) *Server {
	if opts == nil {
		opts = &ServerOpts{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	opTimeout := opts.OperationTimeout
	if opTimeout <= 0 {
		opTimeout = 10 * time.Minute
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:       e,
		controller: controller,
		locker:     opts.Locker,
		events:     opts.Events,
		issuer:     opts.JWTIssuer,
		logger:     logger,
		opTimeout:  opTimeout,
	}

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))
	e.Use(metrics.EchoMiddleware())

	// Health check and metrics (no auth)
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	e.POST("/power/on", s.powerOn, auth.RequireScope(opts.APIKey, opts.JWTIssuer, auth.ScopePowerOn))
	e.POST("/power/off", s.powerOff, auth.RequireScope(opts.APIKey, opts.JWTIssuer, auth.ScopePowerOff))
	e.GET("/status", s.getStatus, auth.RequireScope(opts.APIKey, opts.JWTIssuer, auth.ScopeStatus))

	// Only the API key may mint tokens.
	e.POST("/tokens", s.issueToken, auth.RequireAPIKey(opts.APIKey))

	return s
}

// ServeHTTP lets the server be used as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				logger.Warn("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("request", fields...)
			return nil
		},
	})
}
