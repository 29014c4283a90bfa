package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/registree/internal/models"
	"github.com/noah-isme/registree/internal/snapshot"
	appErrors "github.com/noah-isme/registree/pkg/errors"
)

type entityTable struct {
	name    string
	columns []string
	orderBy string
}

var entityTables = map[models.EntityType]entityTable{
	models.EntityStudent: {
		name: "students",
		columns: []string{"id", "first_name", "last_name", "dob", "grade_level", "contact_email",
			"guardian_name", "guardian_phone", "guardian_email", "emergency_contact_name",
			"emergency_contact_phone", "status", "photo_path", "notes"},
		orderBy: "last_name, first_name, id",
	},
	models.EntityTeacher: {
		name: "teachers",
		columns: []string{"id", "first_name", "last_name", "phone", "email", "emergency_contact_name",
			"emergency_contact_phone", "status", "notes", "photo_path"},
		orderBy: "last_name, first_name, id",
	},
	models.EntityClass: {
		name:    "classes",
		columns: []string{"id", "name", "subject", "teacher_name", "term", "room"},
		orderBy: "name, id",
	},
	models.EntityEnrollment: {
		name:    "enrollments",
		columns: []string{"id", "student_id", "class_id", "start_date", "end_date"},
		orderBy: "student_id, class_id",
	},
	models.EntityAttendance: {
		name:    "attendance",
		columns: []string{"id", "student_id", "class_id", "date", "status", "marked_by", "timestamp"},
		orderBy: "date DESC, class_id, student_id",
	},
	models.EntityCalendarEvent: {
		name:    "calendar_events",
		columns: []string{"id", "title", "start_date", "end_date", "event_type", "notes"},
		orderBy: "start_date, id",
	},
}

func (t entityTable) selectQuery() string {
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(t.columns, ", "), t.name)
}

func (t entityTable) upsertQuery() string {
	named := make([]string, len(t.columns))
	updates := make([]string, 0, len(t.columns)-1)
	for i, col := range t.columns {
		named[i] = ":" + col
		if col != "id" {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", col, col))
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s",
		t.name, strings.Join(t.columns, ", "), strings.Join(named, ", "), strings.Join(updates, ", "))
}

// EntityRepository stores every tracked entity type, one table per type.
// Each call is a single statement.
type EntityRepository struct {
	db    *sqlx.DB
	codec *snapshot.Codec
}

// NewEntityRepository constructs the repository.
func NewEntityRepository(db *sqlx.DB) *EntityRepository {
	return &EntityRepository{db: db, codec: snapshot.NewCodec()}
}

func lookupTable(entityType models.EntityType) (entityTable, error) {
	table, ok := entityTables[entityType]
	if !ok {
		return entityTable{}, appErrors.Clone(appErrors.ErrUnsupportedEntityType, fmt.Sprintf("unsupported entity type %q", entityType))
	}
	return table, nil
}

// Get loads one record by id.
func (r *EntityRepository) Get(ctx context.Context, entityType models.EntityType, id string) (models.Record, error) {
	table, err := lookupTable(entityType)
	if err != nil {
		return nil, err
	}
	rec := models.NewRecord(entityType)
	query := r.db.Rebind(table.selectQuery() + " WHERE id = ?")
	if err := r.db.GetContext(ctx, rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s %s not found", entityType, id))
		}
		return nil, appErrors.WrapAs(appErrors.ErrStoreFailure, fmt.Errorf("get %s: %w", table.name, err), "")
	}
	return rec, nil
}

// List returns every record of a type in display order.
func (r *EntityRepository) List(ctx context.Context, entityType models.EntityType) ([]models.Record, error) {
	table, err := lookupTable(entityType)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryxContext(ctx, table.selectQuery()+" ORDER BY "+table.orderBy)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrStoreFailure, fmt.Errorf("list %s: %w", table.name, err), "")
	}
	defer rows.Close()

	records := make([]models.Record, 0)
	for rows.Next() {
		rec := models.NewRecord(entityType)
		if err := rows.StructScan(rec); err != nil {
			return nil, appErrors.WrapAs(appErrors.ErrStoreFailure, fmt.Errorf("scan %s: %w", table.name, err), "")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrStoreFailure, fmt.Errorf("iterate %s: %w", table.name, err), "")
	}
	return records, nil
}

// Put inserts or replaces the record stored under id. Times are written in
// UTC so every driver reads back what it stored.
func (r *EntityRepository) Put(ctx context.Context, entityType models.EntityType, id string, rec models.Record) error {
	table, err := lookupTable(entityType)
	if err != nil {
		return err
	}
	if rec == nil || rec.EntityType() != entityType {
		return appErrors.Clone(appErrors.ErrUnsupportedEntityType, fmt.Sprintf("record is not a %s", entityType))
	}
	rec.SetRecordID(id)
	row, err := r.codec.Normalize(entityType, rec)
	if err != nil {
		return err
	}
	if _, err := r.db.NamedExecContext(ctx, table.upsertQuery(), row); err != nil {
		return appErrors.WrapAs(appErrors.ErrStoreFailure, fmt.Errorf("put %s: %w", table.name, err), "")
	}
	return nil
}

// Delete removes the record stored under id.
func (r *EntityRepository) Delete(ctx context.Context, entityType models.EntityType, id string) error {
	table, err := lookupTable(entityType)
	if err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, r.db.Rebind("DELETE FROM "+table.name+" WHERE id = ?"), id)
	if err != nil {
		return appErrors.WrapAs(appErrors.ErrStoreFailure, fmt.Errorf("delete %s: %w", table.name, err), "")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return appErrors.WrapAs(appErrors.ErrStoreFailure, fmt.Errorf("check %s delete rows: %w", table.name, err), "")
	}
	if rows == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s %s not found", entityType, id))
	}
	return nil
}
