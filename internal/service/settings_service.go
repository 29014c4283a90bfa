package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/registree/internal/models"
	appErrors "github.com/noah-isme/registree/pkg/errors"
)

type settingsRepository interface {
	List(ctx context.Context) ([]models.Setting, error)
	BulkUpsert(ctx context.Context, rows []models.Setting) error
}

// SettingsService reads and saves the school-wide settings. Keys never
// saved report their defaults. Settings are not entity records and are not
// undoable.
type SettingsService struct {
	repo      settingsRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSettingsService constructs the service.
func NewSettingsService(repo settingsRepository, validate *validator.Validate, logger *zap.Logger) *SettingsService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsService{repo: repo, validator: validate, logger: logger}
}

// Get returns the saved settings merged over the defaults.
func (s *SettingsService) Get(ctx context.Context) (*models.SchoolSettings, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load settings")
	}
	settings := models.DefaultSchoolSettings()
	for _, row := range rows {
		switch row.Key {
		case models.SettingSchoolName:
			settings.SchoolName = row.Value
		case models.SettingAcademicYear:
			settings.AcademicYear = row.Value
		case models.SettingExportBaseDir:
			settings.ExportBaseDir = row.Value
		case models.SettingStartingGrade:
			settings.StartingGrade = row.Value
		case models.SettingGraduatingGrade:
			settings.GraduatingGrade = row.Value
		case models.SettingAttendanceStatuses:
			s.decodeList(row, &settings.AttendanceStatuses)
		case models.SettingSchoolDays:
			s.decodeList(row, &settings.SchoolDays)
		}
	}
	if models.GradeIndex(settings.StartingGrade) < 0 {
		settings.StartingGrade = "K"
	}
	if models.GradeIndex(settings.GraduatingGrade) < 0 {
		settings.GraduatingGrade = "12th"
	}
	return &settings, nil
}

// Update validates and saves every setting, recording actor as the editor.
func (s *SettingsService) Update(ctx context.Context, in models.SchoolSettings, actor string) (*models.SchoolSettings, error) {
	in = normalizeSettings(in)
	if err := s.validator.Struct(in); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid settings")
	}
	start, grad := models.GradeIndex(in.StartingGrade), models.GradeIndex(in.GraduatingGrade)
	if start < 0 || grad < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("grades must be one of %s", strings.Join(models.GradeScale, ", ")))
	}
	if start > grad {
		return nil, appErrors.Clone(appErrors.ErrValidation, "starting grade must not come after the graduating grade")
	}

	statuses, err := json.Marshal(in.AttendanceStatuses)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode statuses")
	}
	days, err := json.Marshal(in.SchoolDays)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode school days")
	}
	var updatedBy *string
	if actor != "" {
		updatedBy = &actor
	}
	rows := []models.Setting{
		{Key: models.SettingSchoolName, Value: in.SchoolName},
		{Key: models.SettingAcademicYear, Value: in.AcademicYear},
		{Key: models.SettingAttendanceStatuses, Value: string(statuses)},
		{Key: models.SettingSchoolDays, Value: string(days)},
		{Key: models.SettingExportBaseDir, Value: in.ExportBaseDir},
		{Key: models.SettingStartingGrade, Value: in.StartingGrade},
		{Key: models.SettingGraduatingGrade, Value: in.GraduatingGrade},
	}
	for i := range rows {
		rows[i].UpdatedBy = updatedBy
	}
	if err := s.repo.BulkUpsert(ctx, rows); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save settings")
	}
	s.logger.Info("settings saved", zap.String("actor", actor))
	return &in, nil
}

func (s *SettingsService) decodeList(row models.Setting, dst *[]string) {
	var values []string
	if err := json.Unmarshal([]byte(row.Value), &values); err != nil || len(values) == 0 {
		s.logger.Warn("ignoring unreadable setting", zap.String("key", row.Key), zap.Error(err))
		return
	}
	*dst = values
}

func normalizeSettings(in models.SchoolSettings) models.SchoolSettings {
	in.SchoolName = strings.TrimSpace(in.SchoolName)
	in.AcademicYear = strings.TrimSpace(in.AcademicYear)
	in.ExportBaseDir = strings.TrimSpace(in.ExportBaseDir)
	in.StartingGrade = strings.TrimSpace(in.StartingGrade)
	in.GraduatingGrade = strings.TrimSpace(in.GraduatingGrade)
	in.AttendanceStatuses = compact(in.AttendanceStatuses)
	in.SchoolDays = compact(in.SchoolDays)
	return in
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
