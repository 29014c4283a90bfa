package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/registree/internal/models"
	"github.com/noah-isme/registree/internal/snapshot"
	appErrors "github.com/noah-isme/registree/pkg/errors"
)

const systemActor = "system"

type actorKey struct{}

// WithActor attaches the acting operator to ctx.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the acting operator, or "system" when unset.
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return systemActor
}

// Builder runs the forward mutation for Perform and returns its command.
type Builder func(ctx context.Context, exec *CommandExecutor, actor string) (*Command, error)

// CreateRecord builds a create command for rec.
func CreateRecord(rec models.Record) Builder {
	return func(ctx context.Context, exec *CommandExecutor, actor string) (*Command, error) {
		return exec.BeginCreate(ctx, actor, rec)
	}
}

// UpdateRecord builds an update command replacing the stored record.
func UpdateRecord(rec models.Record) Builder {
	return func(ctx context.Context, exec *CommandExecutor, actor string) (*Command, error) {
		return exec.BeginUpdate(ctx, actor, rec)
	}
}

// DeleteRecord builds a delete command.
func DeleteRecord(entityType models.EntityType, id string) Builder {
	return func(ctx context.Context, exec *CommandExecutor, actor string) (*Command, error) {
		return exec.BeginDelete(ctx, actor, entityType, id)
	}
}

type changeLog interface {
	Record(ctx context.Context, entry *models.AuditLogEntry) error
	Query(filter models.AuditFilter) *AuditCursor
}

type historyMetrics interface {
	RecordCommand(operation, action, outcome string)
	RecordAuditFailure(origin string)
	SetHistoryDepth(undo, redo int)
}

// Outcome reports a completed transition. AuditErr is set when the store
// mutation committed but its audit entry could not be written; Inconsistent
// marks that case for undo and redo, where the log no longer mirrors the
// stacks.
type Outcome struct {
	Command      *Command
	Entry        *models.AuditLogEntry
	AuditErr     error
	Inconsistent bool
}

// HistoryState describes the stacks for display.
type HistoryState struct {
	UndoDepth int    `json:"undo_depth"`
	RedoDepth int    `json:"redo_depth"`
	CanUndo   bool   `json:"can_undo"`
	CanRedo   bool   `json:"can_redo"`
	NextUndo  string `json:"next_undo,omitempty"`
	NextRedo  string `json:"next_redo,omitempty"`
}

// History owns the undo and redo stacks. Perform, Undo and Redo are
// serialised by a mutex; the stacks live only for the process lifetime.
type History struct {
	mu      sync.Mutex
	exec    *CommandExecutor
	log     changeLog
	metrics historyMetrics
	logger  *zap.Logger
	undo    []*Command
	redo    []*Command
}

// HistoryOption configures the history.
type HistoryOption func(*History)

// WithHistoryMetrics wires engine counters.
func WithHistoryMetrics(metrics historyMetrics) HistoryOption {
	return func(h *History) {
		h.metrics = metrics
	}
}

// NewHistory constructs an empty history.
func NewHistory(exec *CommandExecutor, log changeLog, logger *zap.Logger, opts ...HistoryOption) *History {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &History{exec: exec, log: log, logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Perform runs build, records the original audit entry, pushes the command
// onto the undo stack and clears the redo stack. A failed build leaves the
// stacks untouched.
func (h *History) Perform(ctx context.Context, build Builder) (*Outcome, error) {
	if build == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "builder is required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	actor := ActorFromContext(ctx)
	cmd, err := build(ctx, h.exec, actor)
	if err != nil {
		h.recordMetric("perform", "", "failed")
		h.logger.Info("perform rejected", zap.String("actor", actor), zap.Error(err))
		return nil, err
	}

	h.undo = append(h.undo, cmd)
	h.redo = nil

	entry := h.newAuditEntry(cmd, actor, cmd.Action, Transition{Before: cmd.Before, After: cmd.After}, models.OriginOriginal)
	outcome := &Outcome{Command: cmd, Entry: entry}
	if err := h.log.Record(ctx, entry); err != nil {
		outcome.AuditErr = err
		outcome.Entry = nil
		h.auditFailed(cmd, models.OriginOriginal, err)
		h.recordMetric("perform", string(cmd.Action), "audit_failed")
	} else {
		h.recordMetric("perform", string(cmd.Action), "ok")
	}
	h.publishDepth()
	return outcome, nil
}

// Undo reverses the most recent command. On failure the popped command is
// discarded and the error wraps ErrPartialMutationUncommitted.
func (h *History) Undo(ctx context.Context) (*Outcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.undo) == 0 {
		return nil, appErrors.ErrNothingToUndo
	}
	cmd := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]

	transition, err := h.exec.Invert(ctx, cmd)
	if err != nil {
		h.replayFailed("undo", cmd, err)
		return nil, err
	}
	h.redo = append(h.redo, cmd)
	return h.finishReversal(ctx, "undo", cmd, inverseAction(cmd.Action), transition, models.OriginUndo), nil
}

// Redo re-applies the most recently undone command.
func (h *History) Redo(ctx context.Context) (*Outcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.redo) == 0 {
		return nil, appErrors.ErrNothingToRedo
	}
	cmd := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]

	transition, err := h.exec.Apply(ctx, cmd)
	if err != nil {
		h.replayFailed("redo", cmd, err)
		return nil, err
	}
	h.undo = append(h.undo, cmd)
	return h.finishReversal(ctx, "redo", cmd, cmd.Action, transition, models.OriginRedo), nil
}

// CanUndo reports whether the undo stack is non-empty.
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo) > 0
}

// CanRedo reports whether the redo stack is non-empty.
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.redo) > 0
}

// State returns the stack depths and the next command on each.
func (h *History) State() HistoryState {
	h.mu.Lock()
	defer h.mu.Unlock()
	state := HistoryState{
		UndoDepth: len(h.undo),
		RedoDepth: len(h.redo),
		CanUndo:   len(h.undo) > 0,
		CanRedo:   len(h.redo) > 0,
	}
	if state.CanUndo {
		state.NextUndo = h.undo[len(h.undo)-1].Describe()
	}
	if state.CanRedo {
		state.NextRedo = h.redo[len(h.redo)-1].Describe()
	}
	return state
}

// Reset discards both stacks. The audit log is unaffected.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.undo = nil
	h.redo = nil
	h.publishDepth()
}

// QueryAuditLog passes through to the change recorder without gating.
func (h *History) QueryAuditLog(filter models.AuditFilter) *AuditCursor {
	return h.log.Query(filter)
}

func (h *History) finishReversal(ctx context.Context, operation string, cmd *Command, action models.ActionKind,
	transition Transition, origin models.AuditOrigin) *Outcome {
	actor := ActorFromContext(ctx)
	entry := h.newAuditEntry(cmd, actor, action, transition, origin)
	outcome := &Outcome{Command: cmd, Entry: entry}
	if err := h.log.Record(ctx, entry); err != nil {
		outcome.Entry = nil
		outcome.AuditErr = err
		outcome.Inconsistent = true
		h.auditFailed(cmd, origin, err)
		h.recordMetric(operation, string(action), "audit_failed")
	} else {
		h.recordMetric(operation, string(action), "ok")
	}
	h.publishDepth()
	return outcome
}

func (h *History) replayFailed(operation string, cmd *Command, err error) {
	h.logger.Error(operation+" failed; command discarded",
		zap.String("command_id", cmd.ID),
		zap.String("entity_type", string(cmd.EntityType)),
		zap.String("entity_id", cmd.EntityID),
		zap.Error(err))
	h.recordMetric(operation, string(cmd.Action), "failed")
	h.publishDepth()
}

func (h *History) auditFailed(cmd *Command, origin models.AuditOrigin, err error) {
	h.logger.Warn("mutation committed without audit entry",
		zap.String("command_id", cmd.ID),
		zap.String("origin", string(origin)),
		zap.Error(err))
	if h.metrics != nil {
		h.metrics.RecordAuditFailure(string(origin))
	}
}

func (h *History) recordMetric(operation, action, outcome string) {
	if h.metrics != nil {
		h.metrics.RecordCommand(operation, action, outcome)
	}
}

func (h *History) publishDepth() {
	if h.metrics != nil {
		h.metrics.SetHistoryDepth(len(h.undo), len(h.redo))
	}
}

func inverseAction(action models.ActionKind) models.ActionKind {
	switch action {
	case models.ActionCreate:
		return models.ActionDelete
	case models.ActionDelete:
		return models.ActionCreate
	default:
		return action
	}
}

func (h *History) newAuditEntry(cmd *Command, actor string, action models.ActionKind, transition Transition, origin models.AuditOrigin) *models.AuditLogEntry {
	return &models.AuditLogEntry{
		CommandID:  cmd.ID,
		Actor:      actor,
		Action:     action,
		EntityType: cmd.EntityType,
		EntityID:   cmd.EntityID,
		Before:     h.encodeSnapshot(cmd, "before", transition.Before),
		After:      h.encodeSnapshot(cmd, "after", transition.After),
		Origin:     origin,
	}
}

// encodeSnapshot renders one side of an audit entry. A side that cannot be
// encoded is logged and recorded as absent.
func (h *History) encodeSnapshot(cmd *Command, side string, s *snapshot.Snapshot) models.RawSnapshot {
	if s == nil {
		return nil
	}
	raw, err := s.MarshalJSON()
	if err != nil {
		h.logger.Error("audit snapshot not encodable; recorded as empty",
			zap.String("command_id", cmd.ID),
			zap.String("entity_type", string(cmd.EntityType)),
			zap.String("entity_id", cmd.EntityID),
			zap.String("side", side),
			zap.Error(err))
		return nil
	}
	return models.RawSnapshot(raw)
}
