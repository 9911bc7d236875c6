package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/jmehdipour/wa-relay/internal/model"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Outbound sends tenant messages through the platform.
type Outbound interface {
	Send(ctx context.Context, req model.SendRequest) (json.RawMessage, error)
	SendMedia(ctx context.Context, req model.SendMediaRequest) (json.RawMessage, error)
}

func sendHandler(svc Outbound, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req model.SendRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "bad request")
		}

		res, err := svc.Send(c.Request().Context(), req)
		if err != nil {
			return writeError(c, log, err)
		}
		return c.JSONBlob(http.StatusOK, res)
	}
}

func sendMediaHandler(svc Outbound, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req model.SendMediaRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "bad request")
		}

		res, err := svc.SendMedia(c.Request().Context(), req)
		if err != nil {
			return writeError(c, log, err)
		}
		return c.JSONBlob(http.StatusOK, res)
	}
}
