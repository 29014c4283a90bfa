package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/registree/internal/models"
	"github.com/noah-isme/registree/internal/snapshot"
	appErrors "github.com/noah-isme/registree/pkg/errors"
)

// EntityStore is the keyed CRUD surface the engine mutates through. Each
// call is expected to be atomic on its own.
type EntityStore interface {
	Get(ctx context.Context, entityType models.EntityType, id string) (models.Record, error)
	Put(ctx context.Context, entityType models.EntityType, id string, rec models.Record) error
	Delete(ctx context.Context, entityType models.EntityType, id string) error
}

// Command is one completed mutation together with the state needed to
// reverse it. Before is nil for creates and After is nil for deletes.
type Command struct {
	ID         string
	EntityType models.EntityType
	EntityID   string
	Action     models.ActionKind
	Before     *snapshot.Snapshot
	After      *snapshot.Snapshot
	Actor      string
	CreatedAt  time.Time
}

func newCommand(id string, entityType models.EntityType, entityID string, action models.ActionKind,
	before, after *snapshot.Snapshot, actor string, at time.Time) (*Command, error) {
	switch action {
	case models.ActionCreate:
		if before != nil || after == nil {
			return nil, fmt.Errorf("create command needs only an after state")
		}
	case models.ActionUpdate:
		if before == nil || after == nil {
			return nil, fmt.Errorf("update command needs both states")
		}
	case models.ActionDelete:
		if before == nil || after != nil {
			return nil, fmt.Errorf("delete command needs only a before state")
		}
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
	return &Command{
		ID:         id,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Before:     before,
		After:      after,
		Actor:      actor,
		CreatedAt:  at,
	}, nil
}

// Describe returns a short label such as "Update STUDENT stu-1".
func (c *Command) Describe() string {
	action := strings.ToLower(string(c.Action))
	if action != "" {
		action = strings.ToUpper(action[:1]) + action[1:]
	}
	return fmt.Sprintf("%s %s %s", action, c.EntityType, c.EntityID)
}

// Transition is the store state observed immediately before and after a
// replay. A nil side means the record was absent.
type Transition struct {
	Before *snapshot.Snapshot
	After  *snapshot.Snapshot
}

// CommandExecutor builds commands against the store and replays them.
type CommandExecutor struct {
	store  EntityStore
	codec  *snapshot.Codec
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// CommandExecutorOption configures the executor.
type CommandExecutorOption func(*CommandExecutor)

// WithExecutorClock overrides the time source.
func WithExecutorClock(now func() time.Time) CommandExecutorOption {
	return func(e *CommandExecutor) {
		if now != nil {
			e.now = now
		}
	}
}

// WithExecutorIDs overrides command and entity id generation.
func WithExecutorIDs(newID func() string) CommandExecutorOption {
	return func(e *CommandExecutor) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// NewCommandExecutor constructs an executor.
func NewCommandExecutor(store EntityStore, codec *snapshot.Codec, logger *zap.Logger, opts ...CommandExecutorOption) *CommandExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if codec == nil {
		codec = snapshot.NewCodec()
	}
	e := &CommandExecutor{
		store:  store,
		codec:  codec,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Codec exposes the snapshot codec used by the executor.
func (e *CommandExecutor) Codec() *snapshot.Codec {
	return e.codec
}

// BeginCreate inserts rec and returns the create command. Records without
// an id get a generated one; an id already in use is a conflict.
func (e *CommandExecutor) BeginCreate(ctx context.Context, actor string, rec models.Record) (*Command, error) {
	if rec == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "record is required")
	}
	entityType := rec.EntityType()
	if !e.codec.Supports(entityType) {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedEntityType, fmt.Sprintf("unsupported entity type %q", entityType))
	}
	id := rec.RecordID()
	if id == "" {
		id = e.newID()
		rec.SetRecordID(id)
	}

	existing, err := e.observe(ctx, entityType, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("%s %s already exists", entityType, id))
	}
	// validate the record shape before touching the store
	if _, err := e.codec.Capture(entityType, rec); err != nil {
		return nil, err
	}
	if err := e.store.Put(ctx, entityType, id, rec); err != nil {
		return nil, err
	}
	after, err := e.reread(ctx, models.ActionCreate, entityType, id)
	if err != nil {
		return nil, err
	}
	return newCommand(e.newID(), entityType, id, models.ActionCreate, nil, after, actor, e.now())
}

// BeginUpdate replaces the stored record with rec and returns the update
// command. The record must already exist.
func (e *CommandExecutor) BeginUpdate(ctx context.Context, actor string, rec models.Record) (*Command, error) {
	if rec == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "record is required")
	}
	entityType := rec.EntityType()
	id := rec.RecordID()
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "record id is required for update")
	}
	if _, err := e.codec.Capture(entityType, rec); err != nil {
		return nil, err
	}
	before, err := e.capture(ctx, entityType, id)
	if err != nil {
		return nil, err
	}
	if err := e.store.Put(ctx, entityType, id, rec); err != nil {
		return nil, err
	}
	after, err := e.reread(ctx, models.ActionUpdate, entityType, id)
	if err != nil {
		return nil, err
	}
	return newCommand(e.newID(), entityType, id, models.ActionUpdate, before, after, actor, e.now())
}

// BeginDelete removes the record and returns the delete command.
func (e *CommandExecutor) BeginDelete(ctx context.Context, actor string, entityType models.EntityType, id string) (*Command, error) {
	if !e.codec.Supports(entityType) {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedEntityType, fmt.Sprintf("unsupported entity type %q", entityType))
	}
	before, err := e.capture(ctx, entityType, id)
	if err != nil {
		return nil, err
	}
	if err := e.store.Delete(ctx, entityType, id); err != nil {
		return nil, err
	}
	return newCommand(e.newID(), entityType, id, models.ActionDelete, before, nil, actor, e.now())
}

// Apply replays cmd forward: the after state is written back, or the
// record is deleted again.
func (e *CommandExecutor) Apply(ctx context.Context, cmd *Command) (Transition, error) {
	if cmd.Action == models.ActionDelete {
		return e.replayDelete(ctx, cmd)
	}
	return e.replayPut(ctx, cmd, cmd.After)
}

// Invert reverses cmd: an update restores its before state, a create is
// deleted and a delete is re-created from its before state.
func (e *CommandExecutor) Invert(ctx context.Context, cmd *Command) (Transition, error) {
	if cmd.Action == models.ActionCreate {
		return e.replayDelete(ctx, cmd)
	}
	return e.replayPut(ctx, cmd, cmd.Before)
}

func (e *CommandExecutor) replayPut(ctx context.Context, cmd *Command, target *snapshot.Snapshot) (Transition, error) {
	if target == nil {
		return Transition{}, uncommitted(cmd, fmt.Errorf("command carries no state to restore"))
	}
	observed, err := e.observe(ctx, cmd.EntityType, cmd.EntityID)
	if err != nil {
		return Transition{}, uncommitted(cmd, err)
	}
	rec, err := e.codec.Restore(cmd.EntityType, *target)
	if err != nil {
		return Transition{}, uncommitted(cmd, err)
	}
	if err := e.store.Put(ctx, cmd.EntityType, cmd.EntityID, rec); err != nil {
		return Transition{}, uncommitted(cmd, err)
	}
	after, err := e.observe(ctx, cmd.EntityType, cmd.EntityID)
	if err != nil || after == nil {
		// the write went through; fall back to the state we wrote
		e.logger.Warn("post-replay read failed", zap.String("command_id", cmd.ID), zap.Error(err))
		after = target
	}
	return Transition{Before: observed, After: after}, nil
}

func (e *CommandExecutor) replayDelete(ctx context.Context, cmd *Command) (Transition, error) {
	observed, err := e.observe(ctx, cmd.EntityType, cmd.EntityID)
	if err != nil {
		return Transition{}, uncommitted(cmd, err)
	}
	if err := e.store.Delete(ctx, cmd.EntityType, cmd.EntityID); err != nil {
		return Transition{}, uncommitted(cmd, err)
	}
	return Transition{Before: observed}, nil
}

// capture reads the current record and snapshots it; absence is an error.
func (e *CommandExecutor) capture(ctx context.Context, entityType models.EntityType, id string) (*snapshot.Snapshot, error) {
	rec, err := e.store.Get(ctx, entityType, id)
	if err != nil {
		return nil, err
	}
	snap, err := e.codec.Capture(entityType, rec)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// reread captures the state a write just produced. The write is already in
// the store when this fails, so the error says so and the key is logged.
func (e *CommandExecutor) reread(ctx context.Context, action models.ActionKind, entityType models.EntityType, id string) (*snapshot.Snapshot, error) {
	snap, err := e.capture(ctx, entityType, id)
	if err == nil {
		return snap, nil
	}
	e.logger.Warn("record written but could not be re-read; no command recorded",
		zap.String("action", string(action)),
		zap.String("entity_type", string(entityType)),
		zap.String("entity_id", id),
		zap.Error(err))
	return nil, appErrors.WrapAs(appErrors.ErrStoreFailure, err,
		fmt.Sprintf("%s %s %s was written but could not be re-read", strings.ToLower(string(action)), entityType, id))
}

// observe is capture with absence reported as nil.
func (e *CommandExecutor) observe(ctx context.Context, entityType models.EntityType, id string) (*snapshot.Snapshot, error) {
	snap, err := e.capture(ctx, entityType, id)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return snap, nil
}

func uncommitted(cmd *Command, cause error) error {
	return appErrors.WrapAs(appErrors.ErrPartialMutationUncommitted, cause,
		fmt.Sprintf("could not replay %s", cmd.Describe()))
}
