package models

import "time"

// Attendance statuses offered by default.
const (
	AttendancePresent  = "Present"
	AttendanceAbsent   = "Absent"
	AttendanceTardy    = "Tardy"
	AttendanceExcused  = "Excused"
	AttendanceNoSchool = "No School"
)

// Attendance is one student's status in one class on one school day.
type Attendance struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id" validate:"required"`
	ClassID   string    `db:"class_id" json:"class_id" validate:"required"`
	Date      time.Time `db:"date" json:"date" validate:"required"`
	Status    string    `db:"status" json:"status" validate:"required,max=16"`
	MarkedBy  *string   `db:"marked_by" json:"marked_by,omitempty"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
}

func (a *Attendance) EntityType() EntityType { return EntityAttendance }
func (a *Attendance) RecordID() string       { return a.ID }
func (a *Attendance) SetRecordID(id string)  { a.ID = id }
func (a *Attendance) isRecord()              {}
