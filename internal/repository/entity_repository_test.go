package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/registree/internal/models"
	appErrors "github.com/noah-isme/registree/pkg/errors"
)

var classColumns = []string{"id", "name", "subject", "teacher_name", "term", "room"}

func TestEntityRepositoryGet(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEntityRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, subject, teacher_name, term, room FROM classes WHERE id = ?")).
		WithArgs("cls-1").
		WillReturnRows(sqlmock.NewRows(classColumns).AddRow("cls-1", "Algebra I", "Math", nil, nil, "B12"))

	rec, err := repo.Get(context.Background(), models.EntityClass, "cls-1")
	require.NoError(t, err)
	class, ok := rec.(*models.Class)
	require.True(t, ok)
	assert.Equal(t, "Algebra I", class.Name)
	require.NotNil(t, class.Room)
	assert.Equal(t, "B12", *class.Room)
	assert.Nil(t, class.TeacherName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEntityRepositoryGetNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEntityRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE id = ?")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), models.EntityStudent, "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestEntityRepositoryGetStoreFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEntityRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM teachers WHERE id = ?")).
		WillReturnError(errors.New("disk I/O error"))

	_, err := repo.Get(context.Background(), models.EntityTeacher, "t-1")
	assert.True(t, errors.Is(err, appErrors.ErrStoreFailure))
}

func TestEntityRepositoryUnsupportedType(t *testing.T) {
	db, _, cleanup := newMock(t)
	defer cleanup()
	repo := NewEntityRepository(db)

	_, err := repo.Get(context.Background(), models.EntityType("GRADE"), "x")
	assert.True(t, errors.Is(err, appErrors.ErrUnsupportedEntityType))

	err = repo.Put(context.Background(), models.EntityClass, "x", &models.Teacher{})
	assert.True(t, errors.Is(err, appErrors.ErrUnsupportedEntityType))
}

func TestEntityRepositoryPutUpserts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEntityRepository(db)

	day := time.Date(2024, 12, 23, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO calendar_events (id, title, start_date, end_date, event_type, notes) VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO UPDATE SET title = excluded.title")).
		WithArgs("cal-1", "Winter Break", day, day, "No School", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	event := &models.CalendarEvent{Title: "Winter Break", StartDate: day, EndDate: day, EventType: models.CalendarNoSchool}
	require.NoError(t, repo.Put(context.Background(), models.EntityCalendarEvent, "cal-1", event))
	assert.Equal(t, "cal-1", event.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEntityRepositoryPutFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEntityRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnError(errors.New("UNIQUE constraint failed: enrollments.student_id, enrollments.class_id"))

	err := repo.Put(context.Background(), models.EntityEnrollment, "e-1", &models.Enrollment{StudentID: "s", ClassID: "c"})
	assert.True(t, errors.Is(err, appErrors.ErrStoreFailure))
}

func TestEntityRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEntityRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM attendance WHERE id = ?")).
		WithArgs("att-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), models.EntityAttendance, "att-1"))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM attendance WHERE id = ?")).
		WithArgs("att-2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Delete(context.Background(), models.EntityAttendance, "att-2")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEntityRepositoryList(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEntityRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, subject, teacher_name, term, room FROM classes ORDER BY name, id")).
		WillReturnRows(sqlmock.NewRows(classColumns).
			AddRow("cls-1", "Algebra I", nil, nil, nil, nil).
			AddRow("cls-2", "Biology", nil, nil, nil, nil))

	records, err := repo.List(context.Background(), models.EntityClass)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "cls-2", records[1].RecordID())
}
