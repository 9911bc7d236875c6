package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/jmehdipour/wa-relay/internal/model"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AuditReports reads the folded audit view.
type AuditReports interface {
	ListByRoutingKey(ctx context.Context, routingKey string, status model.AuditStatus, limit, offset int) ([]model.AuditRecord, error)
}

func listAuditHandler(reports AuditReports, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		var st model.AuditStatus
		if raw := strings.TrimSpace(c.QueryParam("status")); raw != "" {
			tmp := model.AuditStatus(raw)
			if !tmp.Valid() {
				return badRequest(c, "invalid status")
			}
			st = tmp
		}

		key := strings.TrimSpace(c.QueryParam("phone_number_id"))

		rows, err := reports.ListByRoutingKey(c.Request().Context(), key, st, limit, offset)
		if err != nil {
			log.Error("clickhouse audit list failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(rows),
			"results": rows,
		})
	}
}
