// Package api exposes rounds, claims, scores and notifications over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/23skdu/field/internal/claim"
	"github.com/23skdu/field/internal/core"
	"github.com/23skdu/field/internal/health"
	"github.com/23skdu/field/internal/limiter"
	"github.com/23skdu/field/internal/pubsub"
	"github.com/23skdu/field/internal/round"
	"github.com/23skdu/field/internal/score"
	"github.com/23skdu/field/internal/security"
)

// UserHeader carries the caller identity. Authentication happens upstream.
const UserHeader = "X-User-ID"

// Rounds creates and resolves rounds.
type Rounds interface {
	Create(ctx context.Context, cfg round.Config) (round.Config, error)
	Get(ctx context.Context, id string) (round.Config, error)
	Current(ctx context.Context) (round.Config, error)
}

type Claimer interface {
	Claim(ctx context.Context, userID, roundID string, coords []core.XY) ([]core.Delta, error)
}

type Settler interface {
	Settle(ctx context.Context, userID string, cfg round.Config, deltas []core.Delta) (claim.Outcome, error)
}

type Scorer interface {
	Fast(ctx context.Context, cfg round.Config) (score.Snapshot, error)
	Precise(ctx context.Context, cfg round.Config) (score.Snapshot, error)
}

// Sequences reads the per-partition publication counters.
type Sequences interface {
	Counter(ctx context.Context, key string) (int64, error)
}

// Deps wires the server. Blobs, Health, Limiter and Audit are optional.
type Deps struct {
	Rounds    Rounds
	Claims    Claimer
	Settler   Settler
	Scores    Scorer
	Sequences Sequences
	WS        *pubsub.WSHandler
	Blobs     http.Handler
	Health    *health.HealthManager
	Limiter   *limiter.RateLimiter
	Audit     *security.AuditLogger
	Logger    zerolog.Logger
}

// Server is the HTTP front of the daemon.
type Server struct {
	d      Deps
	engine *gin.Engine
}

func NewServer(d Deps) *Server {
	s := &Server{d: d}
	s.engine = s.routes()
	return s
}

// Handler returns the routed gin engine.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.d.Logger), security.Headers())

	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if s.d.Blobs != nil {
		r.GET("/blobs/*path", gin.WrapH(http.StripPrefix("/blobs", s.d.Blobs)))
		r.HEAD("/blobs/*path", gin.WrapH(http.StripPrefix("/blobs", s.d.Blobs)))
	}

	v1 := r.Group("/v1")
	v1.POST("/rounds", s.createRound)
	v1.GET("/rounds/:round", s.getRound)
	v1.GET("/rounds/:round/score", s.getScore)
	v1.GET("/rounds/:round/ws", s.notifications)

	claims := []gin.HandlerFunc{requireUser}
	if s.d.Limiter != nil {
		claims = append(claims, s.d.Limiter.Middleware(func(c *gin.Context) string {
			return c.GetString(userKey)
		}))
	}
	claims = append(claims, s.claim)
	v1.POST("/rounds/:round/claims", claims...)
	return r
}

// ListenAndServe serves addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		ev := logger.Debug()
		if status >= http.StatusInternalServerError {
			ev = logger.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}
