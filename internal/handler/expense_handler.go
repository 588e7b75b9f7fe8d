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

func expenseTarget(e model.Expense) authz.Target {
	return authz.Target{
		Resource: "expense",
		ID:       strconv.FormatUint(uint64(e.ID), 10),
		OwnerID:  e.OwnerID,
		TeamID:   e.TeamID,
	}
}

// CreateExpense records a cost entry against a matter. The matter lookup
// runs in the same scoped transaction, so a matter ID from another tenant
// reads as not found.
func CreateExpense(c echo.Context) error {
	log := logger.FromEcho(c)

	var req struct {
		MatterID    uint   `json:"matter_id"`
		AmountCents int64  `json:"amount_cents"`
		Currency    string `json:"currency,omitempty"`
		Description string `json:"description,omitempty"`
		IncurredOn  string `json:"incurred_on,omitempty"`
	}
	if err := c.Bind(&req); err != nil || req.MatterID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "matter_id is required"})
	}
	if req.AmountCents <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount_cents must be positive"})
	}
	incurredOn := time.Now()
	if req.IncurredOn != "" {
		parsed, err := time.Parse("2006-01-02", req.IncurredOn)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "incurred_on must be YYYY-MM-DD"})
		}
		incurredOn = parsed
	}
	if req.Currency == "" {
		req.Currency = "JPY"
	}

	scope, ok := requestScope(c)
	if !ok {
		return c.JSON(http.StatusPreconditionRequired, echo.Map{"error": "tenant setup required"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	var expense model.Expense
	var denied, matterMissing bool
	err := rls.Transaction(c.Request().Context(), database.GetDB(), func(tx *gorm.DB) error {
		sub, err := authz.LoadSubject(c.Request().Context(), tx)
		if err != nil {
			return err
		}

		var matter model.Matter
		if err := tx.First(&matter, req.MatterID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				matterMissing = true
				return nil
			}
			return err
		}
		if !authorize(c, tx, sub, authz.ActionCreate, authz.Target{Resource: "expense", TeamID: matter.TeamID}) {
			denied = true
			return nil
		}

		expense = model.Expense{
			MatterID:    matter.ID,
			OwnerID:     scope.UserID,
			TeamID:      matter.TeamID,
			AmountCents: req.AmountCents,
			Currency:    req.Currency,
			Description: req.Description,
			IncurredOn:  incurredOn,
		}
		if err := tx.Create(&expense).Error; err != nil {
			return err
		}
		return recorder.WithSink(&audit.GormSink{DB: tx}).Record(
			c.Request().Context(), "CREATE", "expense", strconv.FormatUint(uint64(expense.ID), 10),
			model.AuditResultSuccess, map[string]any{"matter_id": matter.ID, "amount_cents": expense.AmountCents})
	})
	if matterMissing {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "matter not found"})
	}
	if denied {
		return forbidden(c)
	}
	if err != nil {
		log.Error("Failed to create expense", zap.Error(err))
		return taxonomyJSON(c, err)
	}

	return c.JSON(http.StatusCreated, expense)
}

// ListExpenses returns the expenses the caller may see, optionally
// filtered by matter.
func ListExpenses(c echo.Context) error {
	log := logger.FromEcho(c)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var expenses []model.Expense
	err := rls.Transaction(c.Request().Context(), database.GetDB(), func(tx *gorm.DB) error {
		sub, err := authz.LoadSubject(c.Request().Context(), tx)
		if err != nil {
			return err
		}
		cons := authz.ListConstraint(sub, "expense", authz.ActionView)
		prometheus.RecordAuthzDecision("expense", string(authz.ActionView), !cons.Deny)
		if cons.Deny {
			expenses = []model.Expense{}
			return nil
		}

		q := tx.Order("id")
		if matterID := c.QueryParam("matter_id"); matterID != "" {
			q = q.Where("matter_id = ?", matterID)
		}
		// Expenses carry no resource-group column.
		return constraintWhere(q, cons, sub.UserID, "").Find(&expenses).Error
	})
	if err != nil {
		log.Error("Failed to list expenses", zap.Error(err))
		return taxonomyJSON(c, err)
	}
	if expenses == nil {
		expenses = []model.Expense{}
	}

	return c.JSON(http.StatusOK, expenses)
}

// UpdateExpense edits an expense entry.
func UpdateExpense(c echo.Context) error {
	log := logger.FromEcho(c)

	expenseID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid expense ID"})
	}

	var req struct {
		AmountCents *int64  `json:"amount_cents,omitempty"`
		Currency    *string `json:"currency,omitempty"`
		Description *string `json:"description,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.AmountCents != nil && *req.AmountCents <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount_cents must be positive"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	var expense model.Expense
	var denied, notFound bool
	err = rls.Transaction(c.Request().Context(), database.GetDB(), func(tx *gorm.DB) error {
		sub, err := authz.LoadSubject(c.Request().Context(), tx)
		if err != nil {
			return err
		}
		if err := tx.First(&expense, expenseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				notFound = true
				return nil
			}
			return err
		}
		if !authorize(c, tx, sub, authz.ActionEdit, expenseTarget(expense)) {
			denied = true
			return nil
		}

		if req.AmountCents != nil {
			expense.AmountCents = *req.AmountCents
		}
		if req.Currency != nil {
			expense.Currency = *req.Currency
		}
		if req.Description != nil {
			expense.Description = *req.Description
		}
		if err := tx.Save(&expense).Error; err != nil {
			return err
		}
		return recorder.WithSink(&audit.GormSink{DB: tx}).Record(
			c.Request().Context(), "UPDATE", "expense", strconv.FormatUint(uint64(expense.ID), 10),
			model.AuditResultSuccess, nil)
	})
	if notFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "expense not found"})
	}
	if denied {
		return forbidden(c)
	}
	if err != nil {
		log.Error("Failed to update expense", zap.Uint64("expense_id", expenseID), zap.Error(err))
		return taxonomyJSON(c, err)
	}

	return c.JSON(http.StatusOK, expense)
}

// DeleteExpense removes an expense entry.
func DeleteExpense(c echo.Context) error {
	log := logger.FromEcho(c)

	expenseID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid expense ID"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	var denied, notFound bool
	err = rls.Transaction(c.Request().Context(), database.GetDB(), func(tx *gorm.DB) error {
		sub, err := authz.LoadSubject(c.Request().Context(), tx)
		if err != nil {
			return err
		}
		var expense model.Expense
		if err := tx.First(&expense, expenseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				notFound = true
				return nil
			}
			return err
		}
		if !authorize(c, tx, sub, authz.ActionDelete, expenseTarget(expense)) {
			denied = true
			return nil
		}

		if err := tx.Delete(&expense).Error; err != nil {
			return err
		}
		return recorder.WithSink(&audit.GormSink{DB: tx}).Record(
			c.Request().Context(), "DELETE", "expense", strconv.FormatUint(uint64(expense.ID), 10),
			model.AuditResultSuccess, nil)
	})
	if notFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "expense not found"})
	}
	if denied {
		return forbidden(c)
	}
	if err != nil {
		log.Error("Failed to delete expense", zap.Uint64("expense_id", expenseID), zap.Error(err))
		return taxonomyJSON(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "expense deleted"})
}
