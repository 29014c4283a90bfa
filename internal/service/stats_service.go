package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/registree/internal/models"
)

type recordLister interface {
	List(ctx context.Context, entityType models.EntityType) ([]models.Record, error)
}

type settingsReader interface {
	Get(ctx context.Context) (*models.SchoolSettings, error)
}

// DashboardStats summarises the registry for one day.
type DashboardStats struct {
	Date             string         `json:"date"`
	SchoolDay        bool           `json:"school_day"`
	TotalStudents    int            `json:"total_students"`
	ActiveStudents   int            `json:"active_students"`
	TotalTeachers    int            `json:"total_teachers"`
	TotalClasses     int            `json:"total_classes"`
	AttendanceMarked int            `json:"attendance_marked"`
	ByStatus         map[string]int `json:"attendance_by_status"`
}

// StatsService computes dashboard figures from the entity store.
type StatsService struct {
	store    recordLister
	settings settingsReader
	logger   *zap.Logger
	now      func() time.Time
}

// NewStatsService constructs the service. settings may be nil, in which case
// the default school week applies.
func NewStatsService(store recordLister, settings settingsReader, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsService{store: store, settings: settings, logger: logger, now: time.Now}
}

// Dashboard returns the figures for day; a zero day means today.
func (s *StatsService) Dashboard(ctx context.Context, day time.Time) (*DashboardStats, error) {
	if day.IsZero() {
		day = s.now()
	}
	y, m, d := day.Date()
	day = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	students, err := s.store.List(ctx, models.EntityStudent)
	if err != nil {
		return nil, err
	}
	teachers, err := s.store.List(ctx, models.EntityTeacher)
	if err != nil {
		return nil, err
	}
	classes, err := s.store.List(ctx, models.EntityClass)
	if err != nil {
		return nil, err
	}
	attendance, err := s.store.List(ctx, models.EntityAttendance)
	if err != nil {
		return nil, err
	}
	events, err := s.store.List(ctx, models.EntityCalendarEvent)
	if err != nil {
		return nil, err
	}

	stats := &DashboardStats{
		Date:          day.Format("2006-01-02"),
		SchoolDay:     s.isSchoolDay(ctx, day) && !closedOn(events, day),
		TotalStudents: len(students),
		TotalTeachers: len(teachers),
		TotalClasses:  len(classes),
		ByStatus:      map[string]int{},
	}
	for _, rec := range students {
		if st, ok := rec.(*models.Student); ok && st.Status == "Active" {
			stats.ActiveStudents++
		}
	}
	for _, rec := range attendance {
		a, ok := rec.(*models.Attendance)
		if !ok || !sameDay(a.Date, day) {
			continue
		}
		stats.AttendanceMarked++
		stats.ByStatus[a.Status]++
	}
	return stats, nil
}

func (s *StatsService) isSchoolDay(ctx context.Context, day time.Time) bool {
	days := models.DefaultSchoolSettings().SchoolDays
	if s.settings != nil {
		settings, err := s.settings.Get(ctx)
		if err != nil {
			s.logger.Warn("settings unavailable; assuming default school week", zap.Error(err))
		} else {
			days = settings.SchoolDays
		}
	}
	name := day.Weekday().String()[:3]
	for _, d := range days {
		if d == name {
			return true
		}
	}
	return false
}

// closedOn reports whether a "No School" event covers day.
func closedOn(events []models.Record, day time.Time) bool {
	for _, rec := range events {
		ev, ok := rec.(*models.CalendarEvent)
		if !ok || ev.EventType != models.CalendarNoSchool {
			continue
		}
		if !day.Before(dayOf(ev.StartDate)) && !day.After(dayOf(ev.EndDate)) {
			return true
		}
	}
	return false
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
