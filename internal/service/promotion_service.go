package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/registree/internal/models"
)

// StudentStatusGraduated is the status given to students promoted past the
// graduating grade.
const StudentStatusGraduated = "Graduated"

// PromotionChange is one student moved by a promotion run.
type PromotionChange struct {
	StudentID string `json:"student_id"`
	FromGrade string `json:"from_grade"`
	ToGrade   string `json:"to_grade"`
	Status    string `json:"status"`
	CommandID string `json:"command_id"`
}

// PromotionResult reports a promotion run. Skipped lists active students
// whose grade is outside the configured range.
type PromotionResult struct {
	Promoted    []PromotionChange `json:"promoted"`
	Graduated   []PromotionChange `json:"graduated"`
	Skipped     []string          `json:"skipped"`
	AuditErrors int               `json:"audit_errors"`
}

// PromotionService moves every active student up one grade. Each student is
// a separate update through the history, so every move is audited and can be
// undone on its own.
type PromotionService struct {
	store    recordLister
	history  recordHistory
	settings settingsReader
	logger   *zap.Logger
}

// NewPromotionService constructs the service.
func NewPromotionService(store recordLister, history recordHistory, settings settingsReader, logger *zap.Logger) *PromotionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromotionService{store: store, history: history, settings: settings, logger: logger}
}

// PromoteAll promotes active students within the starting..graduating range.
// Students at the graduating grade are marked Graduated instead. The run
// stops at the first failed update; moves already made stay applied and are
// reported alongside the error.
func (s *PromotionService) PromoteAll(ctx context.Context) (*PromotionResult, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	start, grad := models.GradeIndex(settings.StartingGrade), models.GradeIndex(settings.GraduatingGrade)

	students, err := s.store.List(ctx, models.EntityStudent)
	if err != nil {
		return nil, err
	}

	result := &PromotionResult{Promoted: []PromotionChange{}, Graduated: []PromotionChange{}, Skipped: []string{}}
	for _, rec := range students {
		st, ok := rec.(*models.Student)
		if !ok || st.Status != "Active" {
			continue
		}
		idx := models.GradeIndex(st.GradeLevel)
		if idx < 0 || idx < start || idx > grad {
			result.Skipped = append(result.Skipped, st.ID)
			continue
		}

		next := *st
		change := PromotionChange{StudentID: st.ID, FromGrade: st.GradeLevel}
		if idx == grad {
			next.Status = StudentStatusGraduated
		} else {
			next.GradeLevel = models.GradeScale[idx+1]
		}
		change.ToGrade, change.Status = next.GradeLevel, next.Status

		outcome, err := s.history.Perform(ctx, UpdateRecord(&next))
		if err != nil {
			s.logger.Error("promotion stopped",
				zap.String("student_id", st.ID),
				zap.Int("promoted", len(result.Promoted)),
				zap.Int("graduated", len(result.Graduated)),
				zap.Error(err))
			return result, fmt.Errorf("promote student %s: %w", st.ID, err)
		}
		if outcome.Command != nil {
			change.CommandID = outcome.Command.ID
		}
		if outcome.AuditErr != nil {
			result.AuditErrors++
		}
		if idx == grad {
			result.Graduated = append(result.Graduated, change)
		} else {
			result.Promoted = append(result.Promoted, change)
		}
	}
	s.logger.Info("students promoted",
		zap.Int("promoted", len(result.Promoted)),
		zap.Int("graduated", len(result.Graduated)),
		zap.Int("skipped", len(result.Skipped)))
	return result, nil
}
