package models

// Class represents a course section, e.g. "Algebra I - Period 3".
type Class struct {
	ID          string  `db:"id" json:"id"`
	Name        string  `db:"name" json:"name" validate:"required,max=120"`
	Subject     *string `db:"subject" json:"subject,omitempty"`
	TeacherName *string `db:"teacher_name" json:"teacher_name,omitempty"`
	Term        *string `db:"term" json:"term,omitempty"`
	Room        *string `db:"room" json:"room,omitempty"`
}

func (c *Class) EntityType() EntityType { return EntityClass }
func (c *Class) RecordID() string       { return c.ID }
func (c *Class) SetRecordID(id string)  { c.ID = id }
func (c *Class) isRecord()              {}
