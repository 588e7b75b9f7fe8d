package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/AstarWorks/AstarManagement-sub017/internal/authz"
	"github.com/AstarWorks/AstarManagement-sub017/internal/model"
	"github.com/AstarWorks/AstarManagement-sub017/internal/rls"
	"github.com/AstarWorks/AstarManagement-sub017/pkg/database"
	"github.com/AstarWorks/AstarManagement-sub017/pkg/logger"
	"github.com/AstarWorks/AstarManagement-sub017/prometheus"
)

// ListAuditEntries queries the tenant's audit trail. The trail is
// append-only; this is the only read surface and there is no write surface
// outside the recorder.
func ListAuditEntries(c echo.Context) error {
	log := logger.FromEcho(c)

	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "limit must be between 1 and 1000"})
		}
		limit = parsed
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var entries []model.AuditEntry
	var denied bool
	err := rls.Transaction(c.Request().Context(), database.GetDB(), func(tx *gorm.DB) error {
		sub, err := authz.LoadSubject(c.Request().Context(), tx)
		if err != nil {
			return err
		}
		if !authorize(c, tx, sub, authz.ActionView, authz.Target{Resource: "audit"}) {
			denied = true
			return nil
		}

		q := tx.Order("id DESC").Limit(limit)
		if action := c.QueryParam("action"); action != "" {
			q = q.Where("action = ?", action)
		}
		if entityType := c.QueryParam("entity_type"); entityType != "" {
			q = q.Where("entity_type = ?", entityType)
		}
		if result := c.QueryParam("result"); result != "" {
			q = q.Where("result = ?", result)
		}
		if actorID := c.QueryParam("actor_id"); actorID != "" {
			q = q.Where("actor_id = ?", actorID)
		}
		if since := c.QueryParam("since"); since != "" {
			parsed, err := time.Parse(time.RFC3339, since)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "since must be RFC 3339")
			}
			q = q.Where("created_at >= ?", parsed)
		}
		return q.Find(&entries).Error
	})
	if denied {
		return forbidden(c)
	}
	if err != nil {
		if httpErr, ok := err.(*echo.HTTPError); ok {
			return c.JSON(httpErr.Code, echo.Map{"error": httpErr.Message})
		}
		log.Error("Failed to query audit entries", zap.Error(err))
		return taxonomyJSON(c, err)
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"entries": entries,
		"count":   len(entries),
	})
}
