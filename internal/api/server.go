package api

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"github.com/safa0/google-rangerz/internal/messaging"
	"github.com/safa0/google-rangerz/internal/metrics"
	"github.com/safa0/google-rangerz/internal/repository"
)

// StoryCanceller отмена истории перед следующим ходом.
type StoryCanceller interface {
	Cancel(ctx context.Context, storyID int64) error
}

// Deps зависимости HTTP API. Tasks nil - POST /stories отвечает 503.
type Deps struct {
	Stories repository.StoryRepository
	Cancels StoryCanceller
	Tasks   messaging.TaskPublisher
	Metrics *metrics.Metrics

	DefaultTotalSteps int
	AllowedOrigins    []string
	Debug             bool
}

// NewRouter собирает gin роутер служебного API.
func NewRouter(deps Deps, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if deps.Debug {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.RedirectTrailingSlash = true
	router.Use(ZapLogger(logger.Named("HTTP")))
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(deps.AllowedOrigins)))

	// Метрики HTTP в реестре по умолчанию, метрики генерации - на /metrics.
	p := ginprometheus.NewPrometheus("storygen_http")
	p.MetricsPath = "/metrics/http"

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	h := NewStoryHandler(deps, logger)
	h.RegisterRoutes(router)

	p.Use(router)
	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	cfg.AllowMethods = []string{"GET", "POST", "HEAD", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", requestIDHeader}
	cfg.MaxAge = 12 * time.Hour
	return cfg
}

// Server HTTP сервер с плавной остановкой.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

func NewServer(port string, handler http.Handler, logger *zap.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         ":" + port,
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.Named("HTTPServer"),
	}
}

// Start запускает сервер в горутине. Ошибка запуска отправляется в errCh.
func (s *Server) Start(errCh chan<- error) {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.srv.Addr))
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server listen error", zap.Error(err))
			errCh <- err
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.srv.Shutdown(ctx)
}
