package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dbaas.io/workflow/internal/domain"
	apperrors "dbaas.io/workflow/internal/pkg/errors"
	"dbaas.io/workflow/internal/pkg/logger"
	"dbaas.io/workflow/internal/store"
)

var restoreStatuses = map[domain.OperationStatus]bool{
	domain.OperationWaiting:  true,
	domain.OperationRunning:  true,
	domain.OperationError:    true,
	domain.OperationSuccess:  true,
	domain.OperationRollback: true,
}

func invalidParam(name, value string) *apperrors.AppError {
	return apperrors.BadRequest(apperrors.CodeInvalidQueryParam,
		fmt.Sprintf("invalid value %q for query parameter %s", value, name)).
		WithParams(map[string]interface{}{"param": name})
}

// restoreFilter parses ?status=&can_do_retry=&database=&limit=.
func restoreFilter(c *gin.Context) (store.RestoreFilter, error) {
	var f store.RestoreFilter

	if v := c.Query("status"); v != "" {
		status := domain.OperationStatus(strings.ToUpper(v))
		if !restoreStatuses[status] {
			return f, invalidParam("status", v)
		}
		f.Status = status
	}
	if v := c.Query("can_do_retry"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, invalidParam("can_do_retry", v)
		}
		f.CanDoRetry = &b
	}
	if v := c.Query("database"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return f, invalidParam("database", v)
		}
		f.DatabaseID = &id
	}
	var limit uint64
	if v := c.Query("limit"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return f, invalidParam("limit", v)
		}
		limit = n
	}
	f.Limit = normalizeLimit(limit)
	return f, nil
}

// ListRestores handles GET /restores.
func (s *Server) ListRestores(c *gin.Context) {
	filter, err := restoreFilter(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	restores, err := s.restores.ListRestores(c.Request.Context(), filter)
	if err != nil {
		logger.Error("failed to list restores", zap.Error(err))
		_ = c.Error(apperrors.Unavailable(err, apperrors.CodeStoreUnavailable, "failed to list restores"))
		return
	}

	items := make([]Restore, 0, len(restores))
	for _, r := range restores {
		items = append(items, restoreToAPI(r))
	}
	c.JSON(http.StatusOK, RestoreList{Items: items, Count: len(items)})
}

// GetRestore handles GET /restores/:id.
func (s *Server) GetRestore(c *gin.Context) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		_ = c.Error(invalidParam("id", raw))
		return
	}

	r, err := s.restores.GetRestore(c.Request.Context(), id)
	if store.IsNotFound(err) {
		_ = c.Error(apperrors.ErrRestoreNotFoundf(id))
		return
	}
	if err != nil {
		logger.Error("failed to get restore", zap.Int64("id", id), zap.Error(err))
		_ = c.Error(apperrors.Unavailable(err, apperrors.CodeStoreUnavailable, "failed to get restore"))
		return
	}
	c.JSON(http.StatusOK, restoreToAPI(r))
}
