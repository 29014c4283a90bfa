package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/registree/internal/models"
	"github.com/noah-isme/registree/internal/service"
	"github.com/noah-isme/registree/internal/snapshot"
	"github.com/noah-isme/registree/pkg/config"
	"github.com/noah-isme/registree/pkg/database"
	appErrors "github.com/noah-isme/registree/pkg/errors"
)

func openSQLite(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Driver: config.DriverSQLite, Path: filepath.Join(t.TempDir(), "registree.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func strPtr(s string) *string { return &s }

func sampleRecords() []models.Record {
	jakarta := time.FixedZone("WIB", 7*3600)
	start := time.Date(2024, 9, 1, 0, 0, 0, 0, jakarta)
	return []models.Record{
		&models.Student{
			ID: "stu-1", FirstName: "Ana", LastName: "Lopez",
			DOB:        time.Date(2012, 4, 9, 0, 0, 0, 0, jakarta),
			GradeLevel: "3rd", Status: "Active",
			GuardianName: strPtr("Rosa Lopez"), ContactEmail: strPtr("ana@example.org"),
		},
		&models.Teacher{ID: "tch-1", FirstName: "Mara", LastName: "Diaz", Status: "Active", Phone: strPtr("555-0100")},
		&models.Class{ID: "cls-1", Name: "Algebra I - Period 3", Room: strPtr("B12")},
		&models.Enrollment{ID: "enr-1", StudentID: "stu-1", ClassID: "cls-1", StartDate: &start},
		&models.Attendance{
			ID: "att-1", StudentID: "stu-1", ClassID: "cls-1",
			Date:      time.Date(2024, 9, 2, 0, 0, 0, 0, jakarta),
			Status:    models.AttendanceTardy,
			MarkedBy:  strPtr("admin"),
			Timestamp: time.Date(2024, 9, 2, 8, 5, 30, 0, jakarta),
		},
		&models.CalendarEvent{
			ID: "evt-1", Title: "Mid-term break",
			StartDate: time.Date(2024, 10, 14, 0, 0, 0, 0, jakarta),
			EndDate:   time.Date(2024, 10, 18, 0, 0, 0, 0, jakarta),
			EventType: models.CalendarNoSchool,
		},
	}
}

func TestEntityRepositorySQLiteRoundTrip(t *testing.T) {
	db := openSQLite(t)
	repo := NewEntityRepository(db)
	codec := snapshot.NewCodec()
	ctx := context.Background()

	for _, rec := range sampleRecords() {
		entityType, id := rec.EntityType(), rec.RecordID()
		t.Run(string(entityType), func(t *testing.T) {
			want, err := codec.Capture(entityType, rec)
			require.NoError(t, err)

			require.NoError(t, repo.Put(ctx, entityType, id, rec))
			got, err := repo.Get(ctx, entityType, id)
			require.NoError(t, err)
			gotSnap, err := codec.Capture(entityType, got)
			require.NoError(t, err)
			assert.True(t, want.Equal(gotSnap), "stored %s differs: %v", entityType, snapshot.Diff(&want, &gotSnap))

			list, err := repo.List(ctx, entityType)
			require.NoError(t, err)
			require.Len(t, list, 1)

			require.NoError(t, repo.Put(ctx, entityType, id, got))
			again, err := repo.Get(ctx, entityType, id)
			require.NoError(t, err)
			againSnap, err := codec.Capture(entityType, again)
			require.NoError(t, err)
			assert.True(t, want.Equal(againSnap))

			require.NoError(t, repo.Delete(ctx, entityType, id))
			_, err = repo.Get(ctx, entityType, id)
			assert.True(t, errors.Is(err, appErrors.ErrNotFound))
			err = repo.Delete(ctx, entityType, id)
			assert.True(t, errors.Is(err, appErrors.ErrNotFound))
		})
	}
}

func TestEntityRepositorySQLiteKeepsInstant(t *testing.T) {
	db := openSQLite(t)
	repo := NewEntityRepository(db)
	ctx := context.Background()
	marked := time.Date(2024, 9, 2, 8, 5, 30, 0, time.FixedZone("WIB", 7*3600))

	require.NoError(t, repo.Put(ctx, models.EntityAttendance, "att-1", &models.Attendance{
		StudentID: "stu-1", ClassID: "cls-1", Date: marked, Status: "Present", Timestamp: marked,
	}))
	got, err := repo.Get(ctx, models.EntityAttendance, "att-1")
	require.NoError(t, err)
	att := got.(*models.Attendance)
	assert.True(t, marked.Equal(att.Timestamp), "got %s", att.Timestamp)
	assert.Equal(t, "2024-09-02", att.Date.UTC().Format("2006-01-02"))
}

func TestAuditRepositorySQLiteKeepsOffsetTimestamps(t *testing.T) {
	db := openSQLite(t)
	repo := NewAuditRepository(db)
	ctx := context.Background()
	at := time.Date(2024, 9, 2, 23, 30, 0, 0, time.FixedZone("WIB", 7*3600))

	entry := &models.AuditLogEntry{
		CommandID: "cmd-1", Actor: "admin", Action: models.ActionCreate,
		EntityType: models.EntityStudent, EntityID: "stu-1",
		After: models.RawSnapshot(`{"id":{"type":"string","value":"stu-1"}}`), Origin: models.OriginOriginal,
		Timestamp: at,
	}
	require.NoError(t, repo.Append(ctx, entry))

	from := at.Add(-time.Minute)
	entries, err := repo.List(ctx, models.AuditFilter{From: &from})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, at.Equal(entries[0].Timestamp), "got %s", entries[0].Timestamp)
}

// The create, edit, undo, redo walk-through against the real store.
func TestHistoryAgainstSQLiteStore(t *testing.T) {
	db := openSQLite(t)
	entities := NewEntityRepository(db)
	recorder := service.NewChangeRecorder(NewAuditRepository(db), 50, zap.NewNop())
	history := service.NewHistory(service.NewCommandExecutor(entities, nil, zap.NewNop()), recorder, zap.NewNop())
	ctx := service.WithActor(context.Background(), "registrar")

	ana := &models.Student{ID: "stu-1", FirstName: "Ana", LastName: "Lopez",
		DOB: time.Date(2012, 4, 9, 0, 0, 0, 0, time.UTC), GradeLevel: "3", Status: "Active"}
	_, err := history.Perform(ctx, service.CreateRecord(ana))
	require.NoError(t, err)

	edited := *ana
	edited.GradeLevel = "4"
	_, err = history.Perform(ctx, service.UpdateRecord(&edited))
	require.NoError(t, err)

	grade := func() string {
		rec, err := entities.Get(ctx, models.EntityStudent, "stu-1")
		require.NoError(t, err)
		return rec.(*models.Student).GradeLevel
	}
	assert.Equal(t, "4", grade())

	_, err = history.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "3", grade())

	_, err = history.Redo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "4", grade())

	entries, err := recorder.Query(models.AuditFilter{EntityType: models.EntityStudent, EntityID: "stu-1"}).Collect(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	wantActions := []models.ActionKind{models.ActionCreate, models.ActionUpdate, models.ActionUpdate, models.ActionUpdate}
	wantOrigins := []models.AuditOrigin{models.OriginOriginal, models.OriginOriginal, models.OriginUndo, models.OriginRedo}
	for i, entry := range entries {
		assert.Equal(t, int64(i+1), entry.Seq)
		assert.Equal(t, wantActions[i], entry.Action)
		assert.Equal(t, wantOrigins[i], entry.Origin)
		assert.Equal(t, "registrar", entry.Actor)
	}
	assert.Nil(t, entries[0].Before)

	var undone, redone snapshot.Snapshot
	require.NoError(t, undone.UnmarshalJSON(entries[2].After))
	require.NoError(t, redone.UnmarshalJSON(entries[3].After))
	assert.Equal(t, []string{"grade_level"}, snapshot.Diff(&undone, &redone))
}
