package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/examsim-backend/internal/config"
	"github.com/stemsi/examsim-backend/internal/database"
	"github.com/stemsi/examsim-backend/internal/response"
)

const healthTimeout = 2 * time.Second

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ActiveCounter reports how many sessions are held in memory.
type ActiveCounter interface {
	ActiveCount() int
}

// SystemHandler reports process health and worker queue depth.
type SystemHandler struct {
	db        Pinger
	rdb       *redis.Client
	sessions  ActiveCounter
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(db Pinger, rdb *redis.Client, sessions ActiveCounter, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		db:        db,
		rdb:       rdb,
		sessions:  sessions,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type healthStatus struct {
	Status         string `json:"status"`
	Uptime         string `json:"uptime"`
	Postgres       database.ProbeResult `json:"postgres"`
	Redis          database.ProbeResult `json:"redis"`
	ActiveSessions int                  `json:"active_sessions"`
	Goroutines     int                  `json:"goroutines"`
	GoVersion      string               `json:"go_version"`

	// Worker Queues
	QueueSessions int64 `json:"queue_sessions"`
	QueueProgress int64 `json:"queue_progress"`
}

// Health godoc
// GET /health
// Responds 503 when Postgres or Redis is unreachable.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	st := healthStatus{
		Status:     "ok",
		Uptime:     formatDuration(time.Since(h.startTime)),
		Goroutines: runtime.NumGoroutine(),
		GoVersion:  runtime.Version(),
	}
	if h.sessions != nil {
		st.ActiveSessions = h.sessions.ActiveCount()
	}

	var dbPing, redisPing func(context.Context) error
	if h.db != nil {
		dbPing = h.db.Ping
	}
	if h.rdb != nil {
		redisPing = func(ctx context.Context) error { return database.PingRedis(ctx, h.rdb) }
	}

	st.Postgres = database.Probe(ctx, dbPing)
	if st.Postgres.Status == "down" {
		h.log.Warn().Str("error", st.Postgres.Error).Msg("Postgres health check failed")
		st.Status = "degraded"
	}
	st.Redis = database.Probe(ctx, redisPing)
	if st.Redis.Status == "down" {
		h.log.Warn().Str("error", st.Redis.Error).Msg("Redis health check failed")
		st.Status = "degraded"
	}

	if st.Redis.OK() {
		pipe := h.rdb.Pipeline()
		sessionsCmd := pipe.LLen(ctx, config.WorkerKey.PersistSessionsQueue)
		progressCmd := pipe.LLen(ctx, config.WorkerKey.ProgressEventsQueue)
		if _, err := pipe.Exec(ctx); err == nil {
			st.QueueSessions, _ = sessionsCmd.Result()
			st.QueueProgress, _ = progressCmd.Result()
		}
	}

	code := http.StatusOK
	if st.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	response.Success(c, code, st)
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
