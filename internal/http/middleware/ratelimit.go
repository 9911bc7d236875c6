package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig config for the Redis fixed-window limiter.
type RateLimitConfig struct {
	Redis          *redis.Client
	RPS            int                       // 0 disables the limiter
	KeyPrefix      string                    // e.g. "rl:pn:"
	Window         time.Duration             // usually 1s
	RetryAfterHint bool                      // set Retry-After header when limited
	KeyFunc        func(echo.Context) string // "" skips limiting for the request
	Log            *zap.Logger
}

// RateLimitMiddleware applies a fixed-window limit per key. Redis errors
// fail open.
func RateLimitMiddleware(cfg RateLimitConfig) echo.MiddlewareFunc {
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "rl:pn:"
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = RoutingKeyFromBody
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if cfg.RPS <= 0 || cfg.Redis == nil {
			// no limit configured or redis missing (dev): allow
			return next
		}
		return func(c echo.Context) error {
			id := cfg.KeyFunc(c)
			if id == "" {
				return next(c)
			}

			// fixed-window key: rl:pn:{id}:{unix_sec}
			now := time.Now()
			key := cfg.KeyPrefix + id + ":" + strconv.FormatInt(now.Unix(), 10)

			ctx := c.Request().Context()
			pipe := cfg.Redis.Pipeline()
			cnt := pipe.Incr(ctx, key)
			pipe.Expire(ctx, key, cfg.Window*2)
			if _, err := pipe.Exec(ctx); err != nil {
				cfg.Log.Warn("rate limiter unavailable", zap.Error(err))
				return next(c)
			}

			if cnt.Val() > int64(cfg.RPS) {
				if cfg.RetryAfterHint {
					c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter(now, cfg.Window)))
				}
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limited"})
			}
			return next(c)
		}
	}
}

// retryAfter is the whole seconds until the next window, at least 1.
func retryAfter(now time.Time, window time.Duration) int {
	remain := window - time.Duration(now.UnixNano()%int64(window))
	secs := int((remain + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// RoutingKeyFromBody peeks phone_number_id from a JSON body and puts the body
// back for the handler. Bodies that do not decode yield "".
func RoutingKeyFromBody(c echo.Context) string {
	req := c.Request()
	if req.Body == nil {
		return ""
	}
	body, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var peek struct {
		RoutingKey string `json:"phone_number_id"`
	}
	if err := json.Unmarshal(body, &peek); err != nil {
		return ""
	}
	return strings.TrimSpace(peek.RoutingKey)
}
