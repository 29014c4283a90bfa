package models

// Teacher represents an instructor record.
type Teacher struct {
	ID                    string  `db:"id" json:"id"`
	FirstName             string  `db:"first_name" json:"first_name" validate:"required,max=80"`
	LastName              string  `db:"last_name" json:"last_name" validate:"required,max=80"`
	Phone                 *string `db:"phone" json:"phone,omitempty"`
	Email                 *string `db:"email" json:"email,omitempty" validate:"omitempty,email"`
	EmergencyContactName  *string `db:"emergency_contact_name" json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone *string `db:"emergency_contact_phone" json:"emergency_contact_phone,omitempty"`
	Status                string  `db:"status" json:"status" validate:"required,oneof=Active Inactive"`
	Notes                 *string `db:"notes" json:"notes,omitempty"`
	PhotoPath             *string `db:"photo_path" json:"photo_path,omitempty"`
}

func (t *Teacher) EntityType() EntityType { return EntityTeacher }
func (t *Teacher) RecordID() string       { return t.ID }
func (t *Teacher) SetRecordID(id string)  { t.ID = id }
func (t *Teacher) isRecord()              {}
