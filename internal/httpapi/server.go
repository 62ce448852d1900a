package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tvwebhook/internal/config"
	"tvwebhook/internal/service"
)

// Server exposes the webhook over HTTP.
type Server struct {
	svc     *service.Service
	name    string
	cfg     config.ServerConfig
	router  *gin.Engine
	logger  zerolog.Logger
	nowFunc func() time.Time
}

// NewServer builds the router and registers every route.
func NewServer(cfg config.ServerConfig, name string, svc *service.Service, logger zerolog.Logger) *Server {
	router := gin.New()

	s := &Server{
		svc:     svc,
		name:    name,
		cfg:     cfg,
		router:  router,
		logger:  logger.With().Str("component", "http").Logger(),
		nowFunc: func() time.Time { return time.Now().UTC() },
	}

	router.Use(gin.Recovery(), requestID(), accessLog(s.logger))

	router.GET("/", s.handleIndex)
	router.GET("/healthz", s.handleHealth)

	tv := router.Group("/tv")
	{
		tv.POST("", s.handleWebhook)
		tv.GET("/example", s.handleExample)
		tv.GET("/selftest", s.handleSelfTest)
	}
	router.GET("/last", s.handleLast)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody("not found"))
	})

	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run listens until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info().Msg("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
