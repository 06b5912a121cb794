package attendance

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Cell statuses. A missing entry means the lesson is unmarked.
const (
	StatusPresent = "+"
	StatusAbsent  = "-"
)

// MaxLessonsPerMonth bounds how many lesson dates one month keeps; extra
// dates are dropped silently.
const MaxLessonsPerMonth = 13

var (
	// ErrNotFound is returned when a month, course, or student is unknown.
	ErrNotFound = errors.New("not found")
	// ErrInvalidMonth is returned for months without a label or lesson dates.
	ErrInvalidMonth = errors.New("month label and lesson dates are required")
	// ErrInvalidEntry is returned for out-of-range lessons or unknown statuses.
	ErrInvalidEntry = errors.New("invalid attendance entry")
)

// Month groups one course's lessons for a calendar month.
type Month struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"course_id"`
	CourseTitle string    `json:"course_title,omitempty"`
	Label       string    `json:"label"`
	LessonDates []string  `json:"lesson_dates"`
	CreatedAt   time.Time `json:"created_at"`
}

// Entry is one attendance cell: a student at one lesson of a month.
type Entry struct {
	ID          string    `json:"id"`
	MonthID     string    `json:"month_id"`
	StudentID   string    `json:"student_id"`
	LessonIndex int       `json:"lesson_index"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the slice of the repository the service needs.
type Store interface {
	CourseExists(ctx context.Context, id string) (bool, error)
	InsertMonth(ctx context.Context, m Month) (Month, error)
	GetMonth(ctx context.Context, id string) (*Month, error)
	DeleteMonth(ctx context.Context, id string) error
	ListMonths(ctx context.Context) ([]Month, error)
	MonthsForStudent(ctx context.Context, studentID string) ([]Month, error)
	UpsertEntry(ctx context.Context, e Entry) (Entry, error)
	GetEntry(ctx context.Context, monthID, studentID string, lessonIndex int) (*Entry, error)
	DeleteEntry(ctx context.Context, id string) error
	EntriesForStudent(ctx context.Context, studentID, monthID string) ([]Entry, error)
	EntriesForMonth(ctx context.Context, monthID string) ([]Entry, error)
}

// Service keeps the per-month attendance sheets. Admins write, students
// read their own rows only.
type Service struct {
	store Store
}

// NewService creates the attendance service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// CreateMonth opens a sheet for a course. Blank dates are dropped and the
// list is capped at MaxLessonsPerMonth.
func (s *Service) CreateMonth(ctx context.Context, courseID, label string, lessonDates []string) (Month, error) {
	label = strings.TrimSpace(label)
	var dates []string
	for _, d := range lessonDates {
		if d = strings.TrimSpace(d); d != "" {
			dates = append(dates, d)
		}
	}
	if len(dates) > MaxLessonsPerMonth {
		dates = dates[:MaxLessonsPerMonth]
	}
	if label == "" || len(dates) == 0 {
		return Month{}, ErrInvalidMonth
	}
	exists, err := s.store.CourseExists(ctx, courseID)
	if err != nil {
		return Month{}, err
	}
	if !exists {
		return Month{}, ErrNotFound
	}
	return s.store.InsertMonth(ctx, Month{CourseID: courseID, Label: label, LessonDates: dates})
}

// DeleteMonth removes a sheet with all its cells.
func (s *Service) DeleteMonth(ctx context.Context, id string) error {
	return s.store.DeleteMonth(ctx, id)
}

// Months returns every sheet for the admin overview.
func (s *Service) Months(ctx context.Context) ([]Month, error) {
	return s.store.ListMonths(ctx)
}

// MonthsForStudent returns the sheets one student may see.
func (s *Service) MonthsForStudent(ctx context.Context, studentID string) ([]Month, error) {
	return s.store.MonthsForStudent(ctx, studentID)
}

// EntryInput is one cell of a batch write.
type EntryInput struct {
	LessonIndex int    `json:"lesson_index"`
	Status      string `json:"status"`
}

// Record overwrites or appends a student's cells for a month. Every index
// must land inside the month's lesson dates.
func (s *Service) Record(ctx context.Context, monthID, studentID string, entries []EntryInput) ([]Entry, error) {
	month, err := s.store.GetMonth(ctx, monthID)
	if err != nil {
		return nil, err
	}
	if month == nil {
		return nil, ErrNotFound
	}
	for _, in := range entries {
		if in.LessonIndex < 0 || in.LessonIndex >= len(month.LessonDates) {
			return nil, ErrInvalidEntry
		}
		if in.Status != StatusPresent && in.Status != StatusAbsent {
			return nil, ErrInvalidEntry
		}
	}
	written := make([]Entry, 0, len(entries))
	for _, in := range entries {
		e, err := s.store.UpsertEntry(ctx, Entry{
			MonthID:     monthID,
			StudentID:   studentID,
			LessonIndex: in.LessonIndex,
			Status:      in.Status,
		})
		if err != nil {
			return nil, err
		}
		written = append(written, e)
	}
	return written, nil
}

// Toggle cycles one cell through blank, present, absent, blank. Returns
// the status after the step, empty string for blank.
func (s *Service) Toggle(ctx context.Context, monthID, studentID string, lessonIndex int) (string, error) {
	month, err := s.store.GetMonth(ctx, monthID)
	if err != nil {
		return "", err
	}
	if month == nil {
		return "", ErrNotFound
	}
	if lessonIndex < 0 || lessonIndex >= len(month.LessonDates) {
		return "", ErrInvalidEntry
	}
	entry, err := s.store.GetEntry(ctx, monthID, studentID, lessonIndex)
	if err != nil {
		return "", err
	}
	switch {
	case entry == nil:
		_, err := s.store.UpsertEntry(ctx, Entry{
			MonthID:     monthID,
			StudentID:   studentID,
			LessonIndex: lessonIndex,
			Status:      StatusPresent,
		})
		return StatusPresent, err
	case entry.Status == StatusPresent:
		entry.Status = StatusAbsent
		_, err := s.store.UpsertEntry(ctx, *entry)
		return StatusAbsent, err
	default:
		return "", s.store.DeleteEntry(ctx, entry.ID)
	}
}

// ForStudent returns a month and one student's cells in it, readable by
// the owning student or an admin. The handler enforces who is asking.
func (s *Service) ForStudent(ctx context.Context, studentID, monthID string) (Month, []Entry, error) {
	month, err := s.store.GetMonth(ctx, monthID)
	if err != nil {
		return Month{}, nil, err
	}
	if month == nil {
		return Month{}, nil, ErrNotFound
	}
	entries, err := s.store.EntriesForStudent(ctx, studentID, monthID)
	if err != nil {
		return Month{}, nil, err
	}
	return *month, entries, nil
}

// Matrix returns a month with every cell for the admin sheet view.
func (s *Service) Matrix(ctx context.Context, monthID string) (Month, []Entry, error) {
	month, err := s.store.GetMonth(ctx, monthID)
	if err != nil {
		return Month{}, nil, err
	}
	if month == nil {
		return Month{}, nil, ErrNotFound
	}
	entries, err := s.store.EntriesForMonth(ctx, monthID)
	if err != nil {
		return Month{}, nil, err
	}
	return *month, entries, nil
}
