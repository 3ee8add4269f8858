package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"zalo-hub/config"
	"zalo-hub/internal/handler"
	"zalo-hub/internal/metrics"
	"zalo-hub/internal/middleware"
	"zalo-hub/internal/transport/httpdto"
	"zalo-hub/internal/websocket"
	"zalo-hub/pkg/logger"

	"github.com/gin-gonic/gin"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

const shutdownTimeout = 5 * time.Second

type Handlers struct {
	Socket    *handler.SocketHandler
	Zalo      *handler.ZaloHandler
	WebSocket *websocket.Handler
}

// HealthCheck reports a failing dependency. Each named check runs on
// GET /health.
type HealthCheck func(ctx context.Context) error

type Options struct {
	Limiter middleware.AdminLimiter
	Health  map[string]HealthCheck
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.MaxMultipartMemory = 32 << 20

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.AppPort),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) SetupRoutes(handlers *Handlers, opts Options) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		for name, check := range opts.Health {
			if err := check(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(name+": "+err.Error(), "UNHEALTHY"))
				return
			}
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
	})

	s.engine.GET("/metrics", metrics.Handler())

	if handlers.WebSocket != nil {
		s.engine.GET("/ws", handlers.WebSocket.Connect)
	}

	limit := middleware.RateLimitMiddleware(opts.Limiter)

	if h := handlers.Socket; h != nil {
		socket := s.engine.Group("/socket", limit)
		{
			socket.GET("/stats", h.Stats)
			socket.GET("/connected-accounts", h.ConnectedAccounts)
			socket.GET("/account/:id/status", h.AccountStatus)
			socket.GET("/account/:id/history", h.AccountHistory)
			socket.POST("/accounts/:id/disconnect", h.DisconnectAccount)
			socket.GET("/user/:id/accounts", h.UserAccounts)
			socket.POST("/users/:id/disconnect", h.DisconnectUser)
			socket.GET("/connections/count", h.ConnectionCount)
			socket.GET("/all-connections", h.AllConnections)
		}
	}

	if h := handlers.Zalo; h != nil {
		zalo := s.engine.Group("/zalo", limit)
		{
			zalo.POST("/send-message", h.SendMessage)
			zalo.POST("/send-message-with-attachments", h.SendMessageWithAttachments)
			zalo.GET("/sessions", h.Sessions)
			zalo.POST("/accounts/:id/disconnect", h.DisconnectAccount)
			zalo.POST("/accounts/:id/reconnect", h.ReconnectAccount)
			zalo.GET("/accounts/:id/send-quota", h.SendQuota)
			zalo.DELETE("/accounts/:id/send-quota", h.ResetSendQuota)
		}
	}
}

// Run serves until ctx is done, then shuts the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			if s.logger != nil {
				s.logger.Errorf("Error in starting the server: %s", err)
			}
			return err
		}
		return nil
	case <-ctx.Done():
	}

	if s.logger != nil {
		s.logger.Infof("Quitting signal received.. Shutting down within %s", shutdownTimeout)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		if s.logger != nil {
			s.logger.Infof("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}
	return nil
}
