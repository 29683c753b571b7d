// Package httpapi serves the operator endpoints: health, metrics and a view
// of running games.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"telegram-casino-bot/internal/game"
	"telegram-casino-bot/internal/model"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// Pinger is a dependency /healthz checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// History reads the transaction journal.
type History interface {
	Recent(ctx context.Context, userID int64, limit int) ([]model.Transaction, error)
}

// Dependencies wires the router. History may be nil.
type Dependencies struct {
	Table   *game.Table
	Checks  map[string]Pinger
	History History
	Now     func() time.Time
}

type gameView struct {
	ID           string           `json:"id"`
	Type         model.GameType   `json:"type"`
	ChatID       int64            `json:"chat_id"`
	Status       model.GameStatus `json:"status"`
	Bet          int64            `json:"bet"`
	Score        int64            `json:"score"`
	Participants int              `json:"participants"`
	AgeSeconds   int64            `json:"age_seconds"`
}

// NewRouter builds the gin engine.
func NewRouter(deps Dependencies) *gin.Engine {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		names := make([]string, 0, len(deps.Checks))
		for name := range deps.Checks {
			names = append(names, name)
		}
		sort.Strings(names)

		status := http.StatusOK
		checks := gin.H{}
		for _, name := range names {
			if err := deps.Checks[name].Ping(c.Request.Context()); err != nil {
				status = http.StatusServiceUnavailable
				checks[name] = err.Error()
				continue
			}
			checks[name] = "ok"
		}

		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{"status": state, "checks": checks})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/games", func(c *gin.Context) {
		now := deps.Now()
		sessions := deps.Table.List()
		views := make([]gameView, 0, len(sessions))
		for _, s := range sessions {
			views = append(views, gameView{
				ID:           s.ID,
				Type:         s.Type,
				ChatID:       s.ChatID,
				Status:       s.Status,
				Bet:          s.Bet,
				Score:        s.Score,
				Participants: len(s.Participants),
				AgeSeconds:   int64(now.Sub(s.CreatedAt) / time.Second),
			})
		}
		c.JSON(http.StatusOK, gin.H{"games": views, "count": len(views)})
	})

	if deps.History != nil {
		r.GET("/accounts/:id/transactions", func(c *gin.Context) {
			userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
				return
			}
			limit := defaultHistoryLimit
			if raw := c.Query("limit"); raw != "" {
				n, err := strconv.Atoi(raw)
				if err != nil || n <= 0 {
					c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
					return
				}
				limit = min(n, maxHistoryLimit)
			}

			txs, err := deps.History.Recent(c.Request.Context(), userID, limit)
			if err != nil {
				log.Error().Err(err).Int64("user_id", userID).Msg("Failed to load transactions")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load transactions"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"user_id": userID, "transactions": txs})
		})
	}

	return r
}

// Server is the ops HTTP server.
type Server struct {
	srv *http.Server
}

// NewServer creates a server for handler on addr.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start serves until Shutdown.
func (s *Server) Start() {
	log.Info().Str("addr", s.srv.Addr).Msg("Starting ops HTTP server")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Ops HTTP server failed")
	}
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
