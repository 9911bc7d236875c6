package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/jmehdipour/wa-relay/internal/gateway"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Media resolves and downloads platform media.
type Media interface {
	FetchMediaURL(ctx context.Context, mediaID string) (string, error)
	StreamMedia(ctx context.Context, url string) (*gateway.MediaStream, error)
}

func mediaURLHandler(media Media, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := strings.TrimSpace(c.Param("mediaId"))
		if id == "" {
			return badRequest(c, "mediaId is required")
		}

		url, err := media.FetchMediaURL(context.WithoutCancel(c.Request().Context()), id)
		if err != nil {
			return writeError(c, log, err)
		}
		return c.String(http.StatusOK, url)
	}
}

// downloadHandler streams a platform media URL to the caller in bounded
// chunks. Only hosts in allowedHosts receive the platform token.
func downloadHandler(media Media, allowedHosts []string, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		url := strings.TrimSpace(c.QueryParam("url"))
		if url == "" {
			return badRequest(c, "url is required")
		}
		if !gateway.HostAllowed(url, allowedHosts) {
			return badRequest(c, "url host not allowed")
		}

		stream, err := media.StreamMedia(context.WithoutCancel(c.Request().Context()), url)
		if err != nil {
			return writeError(c, log, err)
		}
		defer stream.Body.Close()

		h := c.Response().Header()
		h.Set(echo.HeaderContentType, stream.ContentType)
		if stream.ContentLength >= 0 {
			h.Set(echo.HeaderContentLength, strconv.FormatInt(stream.ContentLength, 10))
		}
		c.Response().WriteHeader(http.StatusOK)

		// headers are out; a failure here can only be logged
		if n, err := gateway.Relay(c.Response(), stream.Body); err != nil {
			log.Warn("media relay interrupted", zap.Int64("bytes", n), zap.Error(err))
		}
		return nil
	}
}
