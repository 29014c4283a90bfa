package models

import "time"

// Setting keys stored in the settings table.
const (
	SettingSchoolName         = "school_name"
	SettingAcademicYear       = "academic_year"
	SettingAttendanceStatuses = "attendance_statuses"
	SettingSchoolDays         = "school_days"
	SettingExportBaseDir      = "export_base_dir"
	SettingStartingGrade      = "starting_grade"
	SettingGraduatingGrade    = "graduating_grade"
)

// GradeScale is the ordered PreK-12 scale grade levels are promoted along.
var GradeScale = []string{"PreK", "K", "1st", "2nd", "3rd", "4th", "5th", "6th", "7th", "8th", "9th", "10th", "11th", "12th"}

// Weekdays accepted in SchoolSettings.SchoolDays.
var Weekdays = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// Setting is one key/value row of the settings table. List values are
// stored as JSON arrays.
type Setting struct {
	Key       string    `db:"key"`
	Value     string    `db:"value"`
	UpdatedBy *string   `db:"updated_by"`
	UpdatedAt time.Time `db:"updated_at"`
}

// SchoolSettings is the typed view over the settings table.
type SchoolSettings struct {
	SchoolName         string   `json:"school_name" validate:"max=200"`
	AcademicYear       string   `json:"academic_year" validate:"max=50"`
	AttendanceStatuses []string `json:"attendance_statuses" validate:"required,min=1,dive,required,max=16"`
	SchoolDays         []string `json:"school_days" validate:"required,min=1,unique,dive,oneof=Mon Tue Wed Thu Fri Sat Sun"`
	ExportBaseDir      string   `json:"export_base_dir" validate:"max=255"`
	StartingGrade      string   `json:"starting_grade" validate:"required"`
	GraduatingGrade    string   `json:"graduating_grade" validate:"required"`
}

// DefaultSchoolSettings returns the values used for keys never saved.
func DefaultSchoolSettings() SchoolSettings {
	return SchoolSettings{
		AttendanceStatuses: []string{AttendancePresent, AttendanceAbsent, AttendanceTardy, AttendanceExcused, AttendanceNoSchool},
		SchoolDays:         []string{"Mon", "Tue", "Wed", "Thu", "Fri"},
		StartingGrade:      "K",
		GraduatingGrade:    "12th",
	}
}

// GradeIndex reports the position of grade on GradeScale, or -1.
func GradeIndex(grade string) int {
	for i, g := range GradeScale {
		if g == grade {
			return i
		}
	}
	return -1
}
