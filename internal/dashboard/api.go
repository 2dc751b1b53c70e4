// Package dashboard serves the REST API used by the web dashboard to manage
// sticky messages without going through Discord slash commands.
package dashboard

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Sentinaut/CommunityBot/modules/sticky"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"
)

const (
	xRequestIDHeader = "X-Request-ID"
	loggerContextKey = "dashboard_logger"

	apiPrefix          = "/api"
	apiPathHealth      = "/health"
	apiPathStickies    = "/guilds/:guildId/sticky-messages"
	apiPathStickyByID  = "/guilds/:guildId/sticky-messages/:channelId"
	defaultReadTimeout = 10 * time.Second
	shutdownTimeout    = 5 * time.Second
)

// Engine is the part of the sticky engine the dashboard drives. Every write
// goes through it so the cache and the live message stay in step.
type Engine interface {
	Set(ctx context.Context, ch sticky.Channel, content string, embed *sticky.Embed, author sticky.Author) (sticky.MessageHandle, error)
	Remove(ctx context.Context, channelID string) (bool, error)
}

// Reader is the read path. It goes to the store, never the engine's cache.
type Reader interface {
	ListByGuild(ctx context.Context, guildID string) ([]sticky.Record, error)
	Get(ctx context.Context, channelID string) (sticky.Record, bool, error)
}

// Directory answers questions about Discord entities.
type Directory interface {
	ChannelGuild(ctx context.Context, channelID string) (string, error)
	ResolveUser(ctx context.Context, userID string) (sticky.Author, error)
}

type Config struct {
	Listen    string
	Token     string
	Origin    string
	RateLimit float64 // requests per second across all clients
}

type API struct {
	config     Config
	engine     *gin.Engine
	httpServer *http.Server
	limiter    *rate.Limiter
	logger     *slog.Logger

	handlers *handlers
}

func New(cfg Config, eng Engine, reader Reader, dir Directory, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("module", "dashboard")

	burst := int(cfg.RateLimit)
	if burst < 1 {
		burst = 1
	}

	r := gin.New()
	a := &API{
		config:  cfg,
		engine:  r,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), burst),
		logger:  logger,
		handlers: &handlers{
			engine: eng,
			reader: reader,
			dir:    dir,
		},
	}
	a.httpServer = &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadTimeout:       defaultReadTimeout,
		ReadHeaderTimeout: defaultReadTimeout,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       time.Minute,
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Origin}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", xRequestIDHeader)
	corsConfig.ExposeHeaders = []string{xRequestIDHeader}

	r.Use(
		gin.Recovery(),
		requestIDMiddleware(),
		loggingMiddleware(logger),
		cors.New(corsConfig),
	)

	api := r.Group(apiPrefix)
	api.GET(apiPathHealth, a.handlers.health)

	protected := api.Group("")
	protected.Use(rateLimitMiddleware(a.limiter), authMiddleware(cfg.Token))
	protected.GET(apiPathStickies, a.handlers.listStickies)
	protected.POST(apiPathStickies, a.handlers.setSticky)
	protected.DELETE(apiPathStickyByID, a.handlers.removeSticky)

	r.NoRoute(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusNotFound, httpError{Error: "not found"})
	})

	return a
}

// Handler exposes the router, mostly for tests.
func (a *API) Handler() http.Handler { return a.engine }

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (a *API) Serve(ctx context.Context) error {
	// Cancellation is handled below through Shutdown.
	ln, err := (&net.ListenConfig{}).Listen(context.WithoutCancel(ctx), "tcp", a.config.Listen)
	if err != nil {
		return fmt.Errorf("dashboard listen on %s: %w", a.config.Listen, err)
	}
	a.logger.Info("dashboard listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("dashboard shutdown", tint.Err(err))
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type httpError struct {
	Error string `json:"error"`
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(xRequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(xRequestIDHeader, id)
		c.Header(xRequestIDHeader, id)
		c.Next()
	}
}

// requestLogger returns the per-request logger set by loggingMiddleware.
func requestLogger(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(loggerContextKey); ok {
		if l, ok := v.(*slog.Logger); ok {
			return l
		}
	}
	return slog.Default()
}

func loggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID, _ := c.Get(xRequestIDHeader)
		l := logger.With(
			slog.Group(
				"request",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"remote_ip", c.ClientIP(),
			),
			slog.Any(xRequestIDHeader, requestID),
		)
		c.Set(loggerContextKey, l)

		c.Next()

		attrs := []any{
			"duration", time.Since(start),
			slog.Group("response", "status_code", c.Writer.Status(), "body_size", c.Writer.Size()),
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			l.Error(fmt.Sprintf("%s %s finished with errors", c.Request.Method, c.Request.URL.Path),
				append(attrs, "errors", errs.Errors())...)
			return
		}
		l.Info(fmt.Sprintf("%s %s finished", c.Request.Method, c.Request.URL.Path), attrs...)
	}
}

func rateLimitMiddleware(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, httpError{Error: "too many requests"})
			return
		}
		c.Next()
	}
}

func authMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			requestLogger(c).Warn("unauthorized dashboard request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpError{Error: "unauthorized"})
			return
		}
		c.Next()
	}
}
