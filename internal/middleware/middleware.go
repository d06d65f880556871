package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"seedbank/internal/models"
)

const (
	// ContextActorKey stores the normalised operator name on the Gin context.
	ContextActorKey = "seedbank/actor"
	// ActorHeader names the operator making the request.
	ActorHeader = "X-Seedbank-Actor"
)

// Actor resolves the operator from ActorHeader, defaulting to the
// administrator account.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextActorKey, models.NormaliseActor(c.GetHeader(ActorHeader)))
		c.Next()
	}
}

// ActorFrom returns the operator stored by Actor.
func ActorFrom(c *gin.Context) string {
	if actor := c.GetString(ContextActorKey); actor != "" {
		return actor
	}
	return models.DefaultActor
}

// RequestObserver records finished requests, typically into metrics.
type RequestObserver interface {
	ObserveRequest(method, route, status string, elapsed time.Duration)
}

// RequestLogger logs one structured line per request and reports it to
// observer when one is given.
func RequestLogger(logger *slog.Logger, observer RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		if observer != nil {
			observer.ObserveRequest(c.Request.Method, route, strconv.Itoa(status), elapsed)
		}

		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Duration("elapsed", elapsed),
			slog.String("actor", ActorFrom(c)),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("error", c.Errors.String()))
		}
		logger.LogAttrs(c.Request.Context(), level, "http request", attrs...)
	}
}

// CORS adds permissive CORS headers to all responses to support requests
// served from a different origin. It mirrors the Origin header to support
// credentialed requests and terminates preflight checks early.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}
		c.Writer.Header().Set("Vary", "Origin")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, X-Requested-With, "+ActorHeader)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")

		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}

		c.Next()
	}
}
