package models

import "strings"

// EntityType tags one of the tracked record kinds.
type EntityType string

const (
	EntityStudent       EntityType = "STUDENT"
	EntityTeacher       EntityType = "TEACHER"
	EntityClass         EntityType = "CLASS"
	EntityEnrollment    EntityType = "ENROLLMENT"
	EntityAttendance    EntityType = "ATTENDANCE"
	EntityCalendarEvent EntityType = "CALENDAR_EVENT"
)

// EntityTypes lists every tracked type in a stable order.
var EntityTypes = []EntityType{
	EntityStudent,
	EntityTeacher,
	EntityClass,
	EntityEnrollment,
	EntityAttendance,
	EntityCalendarEvent,
}

var entityCollections = map[EntityType]string{
	EntityStudent:       "students",
	EntityTeacher:       "teachers",
	EntityClass:         "classes",
	EntityEnrollment:    "enrollments",
	EntityAttendance:    "attendance",
	EntityCalendarEvent: "calendar-events",
}

// Valid reports whether the tag belongs to the closed set.
func (t EntityType) Valid() bool {
	_, ok := entityCollections[t]
	return ok
}

// Collection returns the REST collection name for the type.
func (t EntityType) Collection() string {
	return entityCollections[t]
}

// ParseEntityType accepts either the tag ("CALENDAR_EVENT") or the
// collection name ("calendar-events").
func ParseEntityType(raw string) (EntityType, bool) {
	raw = strings.TrimSpace(raw)
	if t := EntityType(strings.ToUpper(raw)); t.Valid() {
		return t, true
	}
	lower := strings.ToLower(raw)
	for t, collection := range entityCollections {
		if collection == lower {
			return t, true
		}
	}
	return "", false
}

// Record is implemented only by the tracked entity structs in this package.
type Record interface {
	EntityType() EntityType
	RecordID() string
	SetRecordID(id string)
	isRecord()
}

// NewRecord returns an empty record for the tag, or nil for unknown tags.
func NewRecord(t EntityType) Record {
	switch t {
	case EntityStudent:
		return &Student{}
	case EntityTeacher:
		return &Teacher{}
	case EntityClass:
		return &Class{}
	case EntityEnrollment:
		return &Enrollment{}
	case EntityAttendance:
		return &Attendance{}
	case EntityCalendarEvent:
		return &CalendarEvent{}
	default:
		return nil
	}
}

// ActionKind is the kind of store mutation a command performs.
type ActionKind string

const (
	ActionCreate ActionKind = "CREATE"
	ActionUpdate ActionKind = "UPDATE"
	ActionDelete ActionKind = "DELETE"
)

// Valid reports whether the action is known.
func (a ActionKind) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	default:
		return false
	}
}
