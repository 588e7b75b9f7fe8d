package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/AstarWorks/AstarManagement-sub017/internal/audit"
	"github.com/AstarWorks/AstarManagement-sub017/internal/authz"
	"github.com/AstarWorks/AstarManagement-sub017/internal/model"
	"github.com/AstarWorks/AstarManagement-sub017/internal/rls"
	"github.com/AstarWorks/AstarManagement-sub017/pkg/database"
	"github.com/AstarWorks/AstarManagement-sub017/pkg/logger"
	"github.com/AstarWorks/AstarManagement-sub017/prometheus"
)

func matterTarget(m model.Matter) authz.Target {
	t := authz.Target{
		Resource: "matter",
		ID:       strconv.FormatUint(uint64(m.ID), 10),
		OwnerID:  m.OwnerID,
		TeamID:   m.TeamID,
	}
	if m.PracticeArea != "" {
		t.Groups = []string{m.PracticeArea}
	}
	return t
}

// CreateMatter opens a legal matter owned by the caller.
func CreateMatter(c echo.Context) error {
	log := logger.FromEcho(c)

	var req struct {
		Title        string `json:"title"`
		ClientName   string `json:"client_name"`
		TeamID       string `json:"team_id,omitempty"`
		PracticeArea string `json:"practice_area,omitempty"`
	}
	if err := c.Bind(&req); err != nil || req.Title == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title is required"})
	}

	scope, ok := requestScope(c)
	if !ok {
		return c.JSON(http.StatusPreconditionRequired, echo.Map{"error": "tenant setup required"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	var matter model.Matter
	var denied bool
	err := rls.Transaction(c.Request().Context(), database.GetDB(), func(tx *gorm.DB) error {
		sub, err := authz.LoadSubject(c.Request().Context(), tx)
		if err != nil {
			return err
		}
		target := authz.Target{Resource: "matter", TeamID: req.TeamID}
		if req.PracticeArea != "" {
			target.Groups = []string{req.PracticeArea}
		}
		if !authorize(c, tx, sub, authz.ActionCreate, target) {
			denied = true
			return nil
		}

		matter = model.Matter{
			Title:        req.Title,
			ClientName:   req.ClientName,
			OwnerID:      scope.UserID,
			TeamID:       req.TeamID,
			PracticeArea: req.PracticeArea,
		}
		if err := tx.Create(&matter).Error; err != nil {
			return err
		}
		return recorder.WithSink(&audit.GormSink{DB: tx}).Record(
			c.Request().Context(), "CREATE", "matter", strconv.FormatUint(uint64(matter.ID), 10),
			model.AuditResultSuccess, map[string]any{"title": matter.Title})
	})
	if denied {
		return forbidden(c)
	}
	if err != nil {
		log.Error("Failed to create matter", zap.Error(err))
		return taxonomyJSON(c, err)
	}

	return c.JSON(http.StatusCreated, matter)
}

// ListMatters returns the matters the caller may see, narrowed by both the
// tenant row policies and the caller's permission scopes.
func ListMatters(c echo.Context) error {
	log := logger.FromEcho(c)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var matters []model.Matter
	err := rls.Transaction(c.Request().Context(), database.GetDB(), func(tx *gorm.DB) error {
		sub, err := authz.LoadSubject(c.Request().Context(), tx)
		if err != nil {
			return err
		}
		cons := authz.ListConstraint(sub, "matter", authz.ActionView)
		prometheus.RecordAuthzDecision("matter", string(authz.ActionView), !cons.Deny)
		if cons.Deny {
			matters = []model.Matter{}
			return nil
		}

		q := tx.Order("id")
		if status := c.QueryParam("status"); status != "" {
			q = q.Where("status = ?", status)
		}
		return constraintWhere(q, cons, sub.UserID, "practice_area").Find(&matters).Error
	})
	if err != nil {
		log.Error("Failed to list matters", zap.Error(err))
		return taxonomyJSON(c, err)
	}
	if matters == nil {
		matters = []model.Matter{}
	}

	return c.JSON(http.StatusOK, matters)
}

// GetMatter retrieves a single matter. A matter outside the caller's
// permission scope reads as not found rather than forbidden, so IDs leak
// nothing.
func GetMatter(c echo.Context) error {
	log := logger.FromEcho(c)

	matterID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid matter ID"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var matter model.Matter
	var hidden bool
	err = rls.Transaction(c.Request().Context(), database.GetDB(), func(tx *gorm.DB) error {
		sub, err := authz.LoadSubject(c.Request().Context(), tx)
		if err != nil {
			return err
		}
		if err := tx.First(&matter, matterID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				hidden = true
				return nil
			}
			return err
		}
		if !authorize(c, tx, sub, authz.ActionView, matterTarget(matter)) {
			hidden = true
		}
		return nil
	})
	if err != nil {
		log.Error("Failed to get matter", zap.Uint64("matter_id", matterID), zap.Error(err))
		return taxonomyJSON(c, err)
	}
	if hidden {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "matter not found"})
	}

	return c.JSON(http.StatusOK, matter)
}

// UpdateMatter edits a matter's mutable fields.
func UpdateMatter(c echo.Context) error {
	log := logger.FromEcho(c)

	matterID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid matter ID"})
	}

	var req struct {
		Title        *string `json:"title,omitempty"`
		ClientName   *string `json:"client_name,omitempty"`
		Status       *string `json:"status,omitempty"`
		TeamID       *string `json:"team_id,omitempty"`
		PracticeArea *string `json:"practice_area,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	var matter model.Matter
	var denied, notFound bool
	err = rls.Transaction(c.Request().Context(), database.GetDB(), func(tx *gorm.DB) error {
		sub, err := authz.LoadSubject(c.Request().Context(), tx)
		if err != nil {
			return err
		}
		if err := tx.First(&matter, matterID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				notFound = true
				return nil
			}
			return err
		}
		if !authorize(c, tx, sub, authz.ActionEdit, matterTarget(matter)) {
			denied = true
			return nil
		}

		if req.Title != nil {
			matter.Title = *req.Title
		}
		if req.ClientName != nil {
			matter.ClientName = *req.ClientName
		}
		if req.Status != nil {
			matter.Status = *req.Status
		}
		if req.TeamID != nil {
			matter.TeamID = *req.TeamID
		}
		if req.PracticeArea != nil {
			matter.PracticeArea = *req.PracticeArea
		}
		if err := tx.Save(&matter).Error; err != nil {
			return err
		}
		return recorder.WithSink(&audit.GormSink{DB: tx}).Record(
			c.Request().Context(), "UPDATE", "matter", strconv.FormatUint(uint64(matter.ID), 10),
			model.AuditResultSuccess, nil)
	})
	if notFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "matter not found"})
	}
	if denied {
		return forbidden(c)
	}
	if err != nil {
		log.Error("Failed to update matter", zap.Uint64("matter_id", matterID), zap.Error(err))
		return taxonomyJSON(c, err)
	}

	return c.JSON(http.StatusOK, matter)
}

// DeleteMatter soft-deletes a matter and its expenses.
func DeleteMatter(c echo.Context) error {
	log := logger.FromEcho(c)

	matterID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid matter ID"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	var denied, notFound bool
	err = rls.Transaction(c.Request().Context(), database.GetDB(), func(tx *gorm.DB) error {
		sub, err := authz.LoadSubject(c.Request().Context(), tx)
		if err != nil {
			return err
		}
		var matter model.Matter
		if err := tx.First(&matter, matterID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				notFound = true
				return nil
			}
			return err
		}
		if !authorize(c, tx, sub, authz.ActionDelete, matterTarget(matter)) {
			denied = true
			return nil
		}

		if err := tx.Where("matter_id = ?", matter.ID).Delete(&model.Expense{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&matter).Error; err != nil {
			return err
		}
		return recorder.WithSink(&audit.GormSink{DB: tx}).Record(
			c.Request().Context(), "DELETE", "matter", strconv.FormatUint(uint64(matter.ID), 10),
			model.AuditResultSuccess, map[string]any{"title": matter.Title})
	})
	if notFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "matter not found"})
	}
	if denied {
		return forbidden(c)
	}
	if err != nil {
		log.Error("Failed to delete matter", zap.Uint64("matter_id", matterID), zap.Error(err))
		return taxonomyJSON(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "matter deleted"})
}

// ExportMatters returns the caller's visible matters with their expenses
// for external processing. EXPORT is a distinct action: a role can read
// matters in the application without being able to bulk-extract them.
func ExportMatters(c echo.Context) error {
	log := logger.FromEcho(c)

	defer prometheus.TrackDBOperation("query")(time.Now())
	type exportRow struct {
		Matter   model.Matter    `json:"matter"`
		Expenses []model.Expense `json:"expenses"`
	}
	var rows []exportRow
	var denied bool
	err := rls.Transaction(c.Request().Context(), database.GetDB(), func(tx *gorm.DB) error {
		sub, err := authz.LoadSubject(c.Request().Context(), tx)
		if err != nil {
			return err
		}
		cons := authz.ListConstraint(sub, "matter", authz.ActionExport)
		prometheus.RecordAuthzDecision("matter", string(authz.ActionExport), !cons.Deny)
		if cons.Deny {
			denied = true
			return recorder.WithSink(&audit.GormSink{DB: tx}).Record(
				c.Request().Context(), string(authz.ActionExport), "matter", "",
				model.AuditResultDenied, nil)
		}

		var matters []model.Matter
		if err := constraintWhere(tx.Order("id"), cons, sub.UserID, "practice_area").Find(&matters).Error; err != nil {
			return err
		}
		for _, m := range matters {
			var expenses []model.Expense
			if err := tx.Where("matter_id = ?", m.ID).Order("id").Find(&expenses).Error; err != nil {
				return err
			}
			rows = append(rows, exportRow{Matter: m, Expenses: expenses})
		}
		return recorder.WithSink(&audit.GormSink{DB: tx}).Record(
			c.Request().Context(), string(authz.ActionExport), "matter", "",
			model.AuditResultSuccess, map[string]any{"count": len(rows)})
	})
	if denied {
		return forbidden(c)
	}
	if err != nil {
		log.Error("Failed to export matters", zap.Error(err))
		return taxonomyJSON(c, err)
	}
	if rows == nil {
		rows = []exportRow{}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"exported_at": time.Now().UTC(),
		"matters":     rows,
	})
}
