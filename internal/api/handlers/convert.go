package handlers

import (
	"time"

	"dbaas.io/workflow/internal/domain"
	"dbaas.io/workflow/internal/store"
)

// Restore is the API view of a database restore.
type Restore struct {
	ID          int64                  `json:"id"`
	CurrentStep int                    `json:"current_step"`
	Status      domain.OperationStatus `json:"status"`
	CanDoRetry  bool                   `json:"can_do_retry"`
	Database    int64                  `json:"database"`
	Task        *int64                 `json:"task"`
	CreatedAt   time.Time              `json:"created_at"`
}

// RestoreList is the list response.
type RestoreList struct {
	Items []Restore `json:"items"`
	Count int       `json:"count"`
}

func restoreToAPI(r *domain.Restore) Restore {
	return Restore{
		ID:          r.ID,
		CurrentStep: r.CurrentStep,
		Status:      r.Status,
		CanDoRetry:  r.CanDoRetry,
		Database:    r.DatabaseID,
		Task:        r.TaskID,
		CreatedAt:   r.CreatedAt,
	}
}

// normalizeLimit clamps the limit query param. 0 means "not specified".
func normalizeLimit(limit uint64) uint64 {
	if limit == 0 || limit > store.DefaultRestoreLimit {
		return store.DefaultRestoreLimit
	}
	return limit
}
