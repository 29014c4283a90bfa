package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/registree/internal/models"
	appErrors "github.com/noah-isme/registree/pkg/errors"
)

type settingsRepoStub struct {
	rows    map[string]models.Setting
	listErr error
	saveErr error
}

func newSettingsRepoStub() *settingsRepoStub {
	return &settingsRepoStub{rows: make(map[string]models.Setting)}
}

func (s *settingsRepoStub) List(ctx context.Context) ([]models.Setting, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]models.Setting, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, row)
	}
	return out, nil
}

func (s *settingsRepoStub) BulkUpsert(ctx context.Context, rows []models.Setting) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	for _, row := range rows {
		row.UpdatedAt = time.Now().UTC()
		s.rows[row.Key] = row
	}
	return nil
}

func TestSettingsServiceDefaults(t *testing.T) {
	svc := NewSettingsService(newSettingsRepoStub(), nil, nil)

	got, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSchoolSettings(), *got)
	assert.Equal(t, []string{"Present", "Absent", "Tardy", "Excused", "No School"}, got.AttendanceStatuses)
}

func TestSettingsServiceUpdateRoundTrip(t *testing.T) {
	repo := newSettingsRepoStub()
	svc := NewSettingsService(repo, nil, nil)
	ctx := context.Background()

	saved, err := svc.Update(ctx, models.SchoolSettings{
		SchoolName:         "  Cedar Grove ",
		AcademicYear:       "2024-2025",
		AttendanceStatuses: []string{"Present", " ", "Absent"},
		SchoolDays:         []string{"Mon", "Tue", "Thu"},
		StartingGrade:      "PreK",
		GraduatingGrade:    "5th",
	}, "registrar")
	require.NoError(t, err)
	assert.Equal(t, "Cedar Grove", saved.SchoolName)
	assert.Equal(t, []string{"Present", "Absent"}, saved.AttendanceStatuses)
	require.NotNil(t, repo.rows[models.SettingSchoolDays].UpdatedBy)
	assert.Equal(t, "registrar", *repo.rows[models.SettingSchoolDays].UpdatedBy)
	assert.Equal(t, `["Mon","Tue","Thu"]`, repo.rows[models.SettingSchoolDays].Value)

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, *saved, *got)
}

func TestSettingsServiceUpdateValidation(t *testing.T) {
	valid := models.DefaultSchoolSettings()
	cases := []struct {
		name   string
		mutate func(*models.SchoolSettings)
	}{
		{"no statuses", func(s *models.SchoolSettings) { s.AttendanceStatuses = []string{" "} }},
		{"unknown weekday", func(s *models.SchoolSettings) { s.SchoolDays = []string{"Mon", "Someday"} }},
		{"repeated weekday", func(s *models.SchoolSettings) { s.SchoolDays = []string{"Mon", "Mon"} }},
		{"grade off scale", func(s *models.SchoolSettings) { s.GraduatingGrade = "13th" }},
		{"inverted range", func(s *models.SchoolSettings) { s.StartingGrade, s.GraduatingGrade = "5th", "2nd" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newSettingsRepoStub()
			in := valid
			in.AttendanceStatuses = append([]string(nil), valid.AttendanceStatuses...)
			in.SchoolDays = append([]string(nil), valid.SchoolDays...)
			tc.mutate(&in)

			_, err := NewSettingsService(repo, nil, nil).Update(context.Background(), in, "registrar")
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrValidation))
			assert.Empty(t, repo.rows)
		})
	}
}

func TestSettingsServiceIgnoresUnreadableRows(t *testing.T) {
	repo := newSettingsRepoStub()
	repo.rows[models.SettingSchoolDays] = models.Setting{Key: models.SettingSchoolDays, Value: "Mon,Tue"}
	repo.rows[models.SettingStartingGrade] = models.Setting{Key: models.SettingStartingGrade, Value: "Year 1"}

	got, err := NewSettingsService(repo, nil, nil).Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSchoolSettings().SchoolDays, got.SchoolDays)
	assert.Equal(t, "K", got.StartingGrade)
}

func TestSettingsServiceStoreFailure(t *testing.T) {
	repo := newSettingsRepoStub()
	repo.listErr = errDisk
	svc := NewSettingsService(repo, nil, nil)

	_, err := svc.Get(context.Background())
	assert.True(t, errors.Is(err, appErrors.ErrInternal))

	repo.saveErr = errDisk
	_, err = svc.Update(context.Background(), models.DefaultSchoolSettings(), "registrar")
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}
