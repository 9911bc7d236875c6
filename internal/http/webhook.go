package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/jmehdipour/wa-relay/internal/inbound"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const rootBanner = "Convoforce Middleware Running ✅"

// Inbound is the webhook side of the relay.
type Inbound interface {
	Verify(mode, token, challenge string) (string, error)
	Intake(ctx context.Context, raw []byte) (inbound.Outcome, error)
}

func rootHandler(c echo.Context) error {
	return c.String(http.StatusOK, rootBanner)
}

func verifyWebhookHandler(router Inbound, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		challenge, err := router.Verify(
			c.QueryParam("hub.mode"),
			c.QueryParam("hub.verify_token"),
			c.QueryParam("hub.challenge"),
		)
		if err != nil {
			log.Warn("webhook verification rejected", zap.String("mode", c.QueryParam("hub.mode")))
			return c.NoContent(http.StatusForbidden)
		}
		log.Info("webhook verified")
		return c.String(http.StatusOK, challenge)
	}
}

func receiveWebhookHandler(router Inbound, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, err := io.ReadAll(c.Request().Body)
		if err != nil {
			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return httpErr
			}
			return badRequest(c, "unreadable body")
		}

		outcome, err := router.Intake(c.Request().Context(), raw)
		switch {
		case errors.Is(err, inbound.ErrMalformed):
			return badRequest(c, "invalid webhook body")
		case err != nil:
			// a 5xx makes the platform redeliver
			log.Warn("webhook not delivered", zap.String("outcome", string(outcome)), zap.Error(err))
			return c.String(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		}
		return c.String(http.StatusOK, http.StatusText(http.StatusOK))
	}
}
