package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/registree/internal/models"
)

func TestSettingsRepositoryList(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSettingsRepository(db)

	rows := sqlmock.NewRows([]string{"key", "value", "updated_by", "updated_at"}).
		AddRow(models.SettingSchoolName, "Cedar Grove", "admin", time.Now()).
		AddRow(models.SettingSchoolDays, `["Mon","Wed"]`, nil, time.Now())
	mock.ExpectQuery("SELECT key, value, updated_by, updated_at FROM settings ORDER BY key ASC").
		WillReturnRows(rows)

	got, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Cedar Grove", got[0].Value)
	assert.Nil(t, got[1].UpdatedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsRepositoryBulkUpsert(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSettingsRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO settings").
		WithArgs(models.SettingSchoolName, "Cedar Grove", "admin", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO settings").
		WithArgs(models.SettingStartingGrade, "K", "admin", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	admin := "admin"
	err := repo.BulkUpsert(context.Background(), []models.Setting{
		{Key: models.SettingSchoolName, Value: "Cedar Grove", UpdatedBy: &admin},
		{Key: models.SettingStartingGrade, Value: "K", UpdatedBy: &admin},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsRepositoryBulkUpsertRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSettingsRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO settings").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.BulkUpsert(context.Background(), []models.Setting{{Key: models.SettingSchoolName, Value: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert setting school_name")
	require.NoError(t, mock.ExpectationsWereMet())
}
