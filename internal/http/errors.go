package http

import (
	"errors"
	"net/http"

	"github.com/jmehdipour/wa-relay/internal/directory"
	"github.com/jmehdipour/wa-relay/internal/gateway"
	"github.com/jmehdipour/wa-relay/internal/outbound"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	msgCustomerNotFound = "Customer not found"
	msgMediaNotFound    = "Media URL not found"
)

// writeError maps outbound-path errors onto the HTTP taxonomy. Platform
// error bodies are passed through as they came.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	var verr *outbound.ValidationError
	var gerr *gateway.Error

	switch {
	case errors.As(err, &verr):
		body := map[string]any{"error": verr.Error()}
		if len(verr.Fields) > 0 {
			body["fields"] = verr.Fields
		}
		return c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, directory.ErrUnauthorized):
		return c.String(http.StatusNotFound, msgCustomerNotFound)
	case errors.Is(err, gateway.ErrMediaNotFound):
		return c.String(http.StatusNotFound, msgMediaNotFound)
	case errors.As(err, &gerr):
		return c.JSONBlob(http.StatusInternalServerError, gerr.Body)
	default:
		log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.JSONBlob(http.StatusInternalServerError, gateway.GenericErrorBody)
	}
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
}
