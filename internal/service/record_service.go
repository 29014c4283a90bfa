package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/registree/internal/models"
	appErrors "github.com/noah-isme/registree/pkg/errors"
)

type recordStore interface {
	EntityStore
	List(ctx context.Context, entityType models.EntityType) ([]models.Record, error)
}

type recordHistory interface {
	Perform(ctx context.Context, build Builder) (*Outcome, error)
}

// RecordService serves plain reads from the store and routes every write
// through the history so it is audited and undoable.
type RecordService struct {
	store     recordStore
	history   recordHistory
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRecordService constructs the service.
func NewRecordService(store recordStore, history recordHistory, validate *validator.Validate, logger *zap.Logger) *RecordService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &RecordService{store: store, history: history, validator: validate, logger: logger}
}

// List returns every record of a type.
func (s *RecordService) List(ctx context.Context, entityType models.EntityType) ([]models.Record, error) {
	if !entityType.Valid() {
		return nil, unsupported(entityType)
	}
	return s.store.List(ctx, entityType)
}

// Get returns a single record.
func (s *RecordService) Get(ctx context.Context, entityType models.EntityType, id string) (models.Record, error) {
	if !entityType.Valid() {
		return nil, unsupported(entityType)
	}
	return s.store.Get(ctx, entityType, id)
}

// Create validates and creates rec.
func (s *RecordService) Create(ctx context.Context, rec models.Record) (*Outcome, error) {
	if err := s.validate(rec); err != nil {
		return nil, err
	}
	return s.history.Perform(ctx, CreateRecord(rec))
}

// Update validates rec and replaces the record stored under id.
func (s *RecordService) Update(ctx context.Context, id string, rec models.Record) (*Outcome, error) {
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "id is required")
	}
	if rec != nil {
		rec.SetRecordID(id)
	}
	if err := s.validate(rec); err != nil {
		return nil, err
	}
	return s.history.Perform(ctx, UpdateRecord(rec))
}

// Delete removes the record stored under id.
func (s *RecordService) Delete(ctx context.Context, entityType models.EntityType, id string) (*Outcome, error) {
	if !entityType.Valid() {
		return nil, unsupported(entityType)
	}
	return s.history.Perform(ctx, DeleteRecord(entityType, id))
}

func (s *RecordService) validate(rec models.Record) error {
	if rec == nil {
		return appErrors.Clone(appErrors.ErrValidation, "record is required")
	}
	if err := s.validator.Struct(rec); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid %s", rec.EntityType()))
	}
	return nil
}

func unsupported(entityType models.EntityType) error {
	return appErrors.Clone(appErrors.ErrUnsupportedEntityType, fmt.Sprintf("unsupported entity type %q", entityType))
}
