package dto

import (
	"time"

	"github.com/noah-isme/registree/internal/models"
	"github.com/noah-isme/registree/internal/service"
	appErrors "github.com/noah-isme/registree/pkg/errors"
)

// CommandView is the wire form of a completed command.
type CommandView struct {
	ID          string            `json:"id"`
	Description string            `json:"description"`
	EntityType  models.EntityType `json:"entity_type"`
	EntityID    string            `json:"entity_id"`
	Action      models.ActionKind `json:"action"`
	Actor       string            `json:"actor"`
	CreatedAt   time.Time         `json:"created_at"`
}

// MutationResult answers perform, undo and redo.
type MutationResult struct {
	Command      CommandView           `json:"command"`
	Entry        *models.AuditLogEntry `json:"entry,omitempty"`
	AuditError   *appErrors.Error      `json:"audit_error,omitempty"`
	Inconsistent bool                  `json:"inconsistent,omitempty"`
	History      service.HistoryState  `json:"history"`
}

// NewMutationResult converts an outcome for the response body.
func NewMutationResult(outcome *service.Outcome, state service.HistoryState) MutationResult {
	result := MutationResult{History: state}
	if outcome == nil {
		return result
	}
	if cmd := outcome.Command; cmd != nil {
		result.Command = CommandView{
			ID:          cmd.ID,
			Description: cmd.Describe(),
			EntityType:  cmd.EntityType,
			EntityID:    cmd.EntityID,
			Action:      cmd.Action,
			Actor:       cmd.Actor,
			CreatedAt:   cmd.CreatedAt,
		}
	}
	result.Entry = outcome.Entry
	result.AuditError = appErrors.FromError(outcome.AuditErr)
	result.Inconsistent = outcome.Inconsistent
	return result
}
