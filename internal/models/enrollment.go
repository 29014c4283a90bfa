package models

import "time"

// Enrollment links a student to a class, optionally bounded by dates.
type Enrollment struct {
	ID        string     `db:"id" json:"id"`
	StudentID string     `db:"student_id" json:"student_id" validate:"required"`
	ClassID   string     `db:"class_id" json:"class_id" validate:"required"`
	StartDate *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate   *time.Time `db:"end_date" json:"end_date,omitempty"`
}

func (e *Enrollment) EntityType() EntityType { return EntityEnrollment }
func (e *Enrollment) RecordID() string       { return e.ID }
func (e *Enrollment) SetRecordID(id string)  { e.ID = id }
func (e *Enrollment) isRecord()              {}
