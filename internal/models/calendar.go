package models

import "time"

// Calendar event types.
const (
	CalendarNoSchool     = "No School"
	CalendarTeachersOnly = "Teachers Only"
	CalendarCustom       = "Custom"
)

// CalendarEvent is an inclusive date range on the school calendar.
type CalendarEvent struct {
	ID        string    `db:"id" json:"id"`
	Title     string    `db:"title" json:"title" validate:"required,max=120"`
	StartDate time.Time `db:"start_date" json:"start_date" validate:"required"`
	EndDate   time.Time `db:"end_date" json:"end_date" validate:"required,gtefield=StartDate"`
	EventType string    `db:"event_type" json:"event_type" validate:"required,oneof='No School' 'Teachers Only' Custom"`
	Notes     *string   `db:"notes" json:"notes,omitempty"`
}

func (e *CalendarEvent) EntityType() EntityType { return EntityCalendarEvent }
func (e *CalendarEvent) RecordID() string       { return e.ID }
func (e *CalendarEvent) SetRecordID(id string)  { e.ID = id }
func (e *CalendarEvent) isRecord()              {}
