package models

import "time"

// Student represents a learner registered in the school.
type Student struct {
	ID                    string    `db:"id" json:"id"`
	FirstName             string    `db:"first_name" json:"first_name" validate:"required,max=80"`
	LastName              string    `db:"last_name" json:"last_name" validate:"required,max=80"`
	DOB                   time.Time `db:"dob" json:"dob" validate:"required"`
	GradeLevel            string    `db:"grade_level" json:"grade_level" validate:"required,max=16"`
	ContactEmail          *string   `db:"contact_email" json:"contact_email,omitempty" validate:"omitempty,email"`
	GuardianName          *string   `db:"guardian_name" json:"guardian_name,omitempty"`
	GuardianPhone         *string   `db:"guardian_phone" json:"guardian_phone,omitempty"`
	GuardianEmail         *string   `db:"guardian_email" json:"guardian_email,omitempty" validate:"omitempty,email"`
	EmergencyContactName  *string   `db:"emergency_contact_name" json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone *string   `db:"emergency_contact_phone" json:"emergency_contact_phone,omitempty"`
	Status                string    `db:"status" json:"status" validate:"required,oneof=Active Inactive Graduated Withdrawn"`
	PhotoPath             *string   `db:"photo_path" json:"photo_path,omitempty"`
	Notes                 *string   `db:"notes" json:"notes,omitempty"`
}

func (s *Student) EntityType() EntityType { return EntityStudent }
func (s *Student) RecordID() string       { return s.ID }
func (s *Student) SetRecordID(id string)  { s.ID = id }
func (s *Student) isRecord()              {}
