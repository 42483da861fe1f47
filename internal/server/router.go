package server

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	logx "github.com/Chative-support-agent/server/pkg/logger"
)

type RouterConfig struct {
	ChatHandler       *ChatHandler
	EvaluationHandler *EvaluationHandler

	AllowedOrigins []string
	OriginPattern  *regexp.Regexp
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger())
	r.Use(Metrics())
	r.Use(CORS(cfg.AllowedOrigins, cfg.OriginPattern))

	r.GET("/health", Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.ChatHandler != nil {
		r.POST("/chat", cfg.ChatHandler.Chat)
	}
	if cfg.EvaluationHandler != nil {
		r.POST("/feedback", cfg.EvaluationHandler.Feedback)
		r.POST("/evaluate", cfg.EvaluationHandler.Evaluate)
		r.GET("/evaluations", cfg.EvaluationHandler.List)
		r.GET("/evaluations/:conversation_id", cfg.EvaluationHandler.Get)
	}
	return r
}

type Server struct {
	http *http.Server
}

func NewServer(addr string, cfg RouterConfig) *Server {
	return &Server{http: &http.Server{
		Addr:              addr,
		Handler:           NewRouter(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logx.Info().Str("addr", s.http.Addr).Msg("HTTP server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	logx.Info().Msg("Shutting down HTTP server")
	return s.http.Shutdown(shutdownCtx)
}
