package snapshot

import "github.com/noah-isme/registree/internal/models"

var entityMappings = map[models.EntityType]Mapping{
	models.EntityStudent:       {Capture: captureStudent, Restore: restoreStudent},
	models.EntityTeacher:       {Capture: captureTeacher, Restore: restoreTeacher},
	models.EntityClass:         {Capture: captureClass, Restore: restoreClass},
	models.EntityEnrollment:    {Capture: captureEnrollment, Restore: restoreEnrollment},
	models.EntityAttendance:    {Capture: captureAttendance, Restore: restoreAttendance},
	models.EntityCalendarEvent: {Capture: captureCalendarEvent, Restore: restoreCalendarEvent},
}

func contact(name, phone *string) Value {
	return Nested(New(map[string]Value{
		"name":  OptString(name),
		"phone": OptString(phone),
	}))
}

func captureStudent(rec models.Record) (Snapshot, bool) {
	s, ok := rec.(*models.Student)
	if !ok || s == nil {
		return Snapshot{}, false
	}
	return New(map[string]Value{
		"id":            String(s.ID),
		"first_name":    String(s.FirstName),
		"last_name":     String(s.LastName),
		"dob":           Date(s.DOB),
		"grade_level":   String(s.GradeLevel),
		"contact_email": OptString(s.ContactEmail),
		"guardian": Nested(New(map[string]Value{
			"name":  OptString(s.GuardianName),
			"phone": OptString(s.GuardianPhone),
			"email": OptString(s.GuardianEmail),
		})),
		"emergency_contact": contact(s.EmergencyContactName, s.EmergencyContactPhone),
		"status":            String(s.Status),
		"photo_path":        OptString(s.PhotoPath),
		"notes":             OptString(s.Notes),
	}), true
}

func restoreStudent(r *Reader) models.Record {
	s := &models.Student{
		ID:           r.String("id"),
		FirstName:    r.String("first_name"),
		LastName:     r.String("last_name"),
		DOB:          r.Date("dob"),
		GradeLevel:   r.String("grade_level"),
		ContactEmail: r.OptString("contact_email"),
		Status:       r.String("status"),
		PhotoPath:    r.OptString("photo_path"),
		Notes:        r.OptString("notes"),
	}
	guardian := r.Nested("guardian")
	s.GuardianName = guardian.OptString("name")
	s.GuardianPhone = guardian.OptString("phone")
	s.GuardianEmail = guardian.OptString("email")
	r.Merge(guardian)

	emergency := r.Nested("emergency_contact")
	s.EmergencyContactName = emergency.OptString("name")
	s.EmergencyContactPhone = emergency.OptString("phone")
	r.Merge(emergency)
	return s
}

func captureTeacher(rec models.Record) (Snapshot, bool) {
	t, ok := rec.(*models.Teacher)
	if !ok || t == nil {
		return Snapshot{}, false
	}
	return New(map[string]Value{
		"id":                String(t.ID),
		"first_name":        String(t.FirstName),
		"last_name":         String(t.LastName),
		"phone":             OptString(t.Phone),
		"email":             OptString(t.Email),
		"emergency_contact": contact(t.EmergencyContactName, t.EmergencyContactPhone),
		"status":            String(t.Status),
		"notes":             OptString(t.Notes),
		"photo_path":        OptString(t.PhotoPath),
	}), true
}

func restoreTeacher(r *Reader) models.Record {
	t := &models.Teacher{
		ID:        r.String("id"),
		FirstName: r.String("first_name"),
		LastName:  r.String("last_name"),
		Phone:     r.OptString("phone"),
		Email:     r.OptString("email"),
		Status:    r.String("status"),
		Notes:     r.OptString("notes"),
		PhotoPath: r.OptString("photo_path"),
	}
	emergency := r.Nested("emergency_contact")
	t.EmergencyContactName = emergency.OptString("name")
	t.EmergencyContactPhone = emergency.OptString("phone")
	r.Merge(emergency)
	return t
}

func captureClass(rec models.Record) (Snapshot, bool) {
	c, ok := rec.(*models.Class)
	if !ok || c == nil {
		return Snapshot{}, false
	}
	return New(map[string]Value{
		"id":           String(c.ID),
		"name":         String(c.Name),
		"subject":      OptString(c.Subject),
		"teacher_name": OptString(c.TeacherName),
		"term":         OptString(c.Term),
		"room":         OptString(c.Room),
	}), true
}

func restoreClass(r *Reader) models.Record {
	return &models.Class{
		ID:          r.String("id"),
		Name:        r.String("name"),
		Subject:     r.OptString("subject"),
		TeacherName: r.OptString("teacher_name"),
		Term:        r.OptString("term"),
		Room:        r.OptString("room"),
	}
}

func captureEnrollment(rec models.Record) (Snapshot, bool) {
	e, ok := rec.(*models.Enrollment)
	if !ok || e == nil {
		return Snapshot{}, false
	}
	return New(map[string]Value{
		"id":         String(e.ID),
		"student_id": String(e.StudentID),
		"class_id":   String(e.ClassID),
		"start_date": OptDate(e.StartDate),
		"end_date":   OptDate(e.EndDate),
	}), true
}

func restoreEnrollment(r *Reader) models.Record {
	return &models.Enrollment{
		ID:        r.String("id"),
		StudentID: r.String("student_id"),
		ClassID:   r.String("class_id"),
		StartDate: r.OptDate("start_date"),
		EndDate:   r.OptDate("end_date"),
	}
}

func captureAttendance(rec models.Record) (Snapshot, bool) {
	a, ok := rec.(*models.Attendance)
	if !ok || a == nil {
		return Snapshot{}, false
	}
	return New(map[string]Value{
		"id":         String(a.ID),
		"student_id": String(a.StudentID),
		"class_id":   String(a.ClassID),
		"date":       Date(a.Date),
		"status":     String(a.Status),
		"marked_by":  OptString(a.MarkedBy),
		"timestamp":  Timestamp(a.Timestamp),
	}), true
}

func restoreAttendance(r *Reader) models.Record {
	return &models.Attendance{
		ID:        r.String("id"),
		StudentID: r.String("student_id"),
		ClassID:   r.String("class_id"),
		Date:      r.Date("date"),
		Status:    r.String("status"),
		MarkedBy:  r.OptString("marked_by"),
		Timestamp: r.Timestamp("timestamp"),
	}
}

func captureCalendarEvent(rec models.Record) (Snapshot, bool) {
	e, ok := rec.(*models.CalendarEvent)
	if !ok || e == nil {
		return Snapshot{}, false
	}
	return New(map[string]Value{
		"id":         String(e.ID),
		"title":      String(e.Title),
		"start_date": Date(e.StartDate),
		"end_date":   Date(e.EndDate),
		"event_type": String(e.EventType),
		"notes":      OptString(e.Notes),
	}), true
}

func restoreCalendarEvent(r *Reader) models.Record {
	return &models.CalendarEvent{
		ID:        r.String("id"),
		Title:     r.String("title"),
		StartDate: r.Date("start_date"),
		EndDate:   r.Date("end_date"),
		EventType: r.String("event_type"),
		Notes:     r.OptString("notes"),
	}
}
