package catalog

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"
)

var (
	// ErrNotFound is returned when a course or teacher id is unknown.
	ErrNotFound = errors.New("not found")
	// ErrMissingFields is returned when required course or teacher fields are empty.
	ErrMissingFields = errors.New("all fields except image are required")
	// ErrInvalidPrice is returned for unparsable or negative prices.
	ErrInvalidPrice = errors.New("price must be a non-negative number")
	// ErrInvalidQuery is returned for search input outside letters, digits and spaces.
	ErrInvalidQuery = errors.New("invalid search query")
	// ErrTeacherNotFound is returned when a course references an unknown teacher.
	ErrTeacherNotFound = errors.New("teacher does not exist")
	// ErrTeacherInUse is returned when deleting a teacher still assigned to courses.
	ErrTeacherInUse = errors.New("teacher is assigned to courses")
)

// Teacher is a public instructor profile.
type Teacher struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Bio       string    `json:"bio"`
	Specialty string    `json:"specialty"`
	ImageURL  *string   `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Course is a listed program taught by one teacher.
type Course struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Duration    string    `json:"duration"`
	Price       float64   `json:"price"`
	ImageURL    *string   `json:"image_url,omitempty"`
	TeacherID   string    `json:"teacher_id"`
	TeacherName string    `json:"teacher_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the slice of the repository the service needs.
type Store interface {
	InsertTeacher(ctx context.Context, t Teacher) (Teacher, error)
	UpdateTeacher(ctx context.Context, t Teacher) error
	DeleteTeacher(ctx context.Context, id string) error
	GetTeacher(ctx context.Context, id string) (*Teacher, error)
	ListTeachers(ctx context.Context) ([]Teacher, error)
	InsertCourse(ctx context.Context, c Course) (Course, error)
	UpdateCourse(ctx context.Context, c Course) error
	DeleteCourse(ctx context.Context, id string) error
	GetCourse(ctx context.Context, id string) (*Course, error)
	ListCourses(ctx context.Context, query string) ([]Course, error)
	FeaturedCourses(ctx context.Context, n int) ([]Course, error)
}

// Service owns the course and teacher catalog. Reads are public; all
// mutations sit behind the admin route group.
type Service struct {
	store Store
}

// NewService creates the catalog service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Search lists courses, filtered by a title substring when query is
// non-empty. Queries are restricted to letters, digits and spaces.
func (s *Service) Search(ctx context.Context, query string) ([]Course, error) {
	query = strings.TrimSpace(query)
	if !validQuery(query) {
		return nil, ErrInvalidQuery
	}
	return s.store.ListCourses(ctx, query)
}

func validQuery(q string) bool {
	for _, r := range q {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// Featured returns the landing-page selection.
func (s *Service) Featured(ctx context.Context, n int) ([]Course, error) {
	return s.store.FeaturedCourses(ctx, n)
}

// Course returns one course by id.
func (s *Service) Course(ctx context.Context, id string) (Course, error) {
	c, err := s.store.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if c == nil {
		return Course{}, ErrNotFound
	}
	return *c, nil
}

// Teachers returns all instructor profiles.
func (s *Service) Teachers(ctx context.Context) ([]Teacher, error) {
	return s.store.ListTeachers(ctx)
}

// CourseInput carries admin-supplied course fields.
type CourseInput struct {
	Title       string
	Description string
	Duration    string
	Price       float64
	ImageURL    string
	TeacherID   string
}

func (in CourseInput) validate() error {
	if in.Title == "" || in.Description == "" || in.Duration == "" || in.TeacherID == "" {
		return ErrMissingFields
	}
	if in.Price < 0 {
		return ErrInvalidPrice
	}
	return nil
}

func (in CourseInput) course(id string) Course {
	return Course{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		Duration:    in.Duration,
		Price:       in.Price,
		ImageURL:    optional(in.ImageURL),
		TeacherID:   in.TeacherID,
	}
}

// CreateCourse adds a course after validating fields and the teacher reference.
func (s *Service) CreateCourse(ctx context.Context, in CourseInput) (Course, error) {
	if err := in.validate(); err != nil {
		return Course{}, err
	}
	return s.store.InsertCourse(ctx, in.course(""))
}

// UpdateCourse rewrites a course with the same validation as creation.
func (s *Service) UpdateCourse(ctx context.Context, id string, in CourseInput) error {
	if err := in.validate(); err != nil {
		return err
	}
	return s.store.UpdateCourse(ctx, in.course(id))
}

// DeleteCourse removes a course and everything hanging off it.
func (s *Service) DeleteCourse(ctx context.Context, id string) error {
	return s.store.DeleteCourse(ctx, id)
}

// TeacherInput carries admin-supplied teacher fields.
type TeacherInput struct {
	Name      string
	Bio       string
	Specialty string
	ImageURL  string
}

func (in TeacherInput) validate() error {
	if in.Name == "" || in.Bio == "" || in.Specialty == "" {
		return ErrMissingFields
	}
	return nil
}

// CreateTeacher adds an instructor profile.
func (s *Service) CreateTeacher(ctx context.Context, in TeacherInput) (Teacher, error) {
	if err := in.validate(); err != nil {
		return Teacher{}, err
	}
	return s.store.InsertTeacher(ctx, Teacher{
		Name:      in.Name,
		Bio:       in.Bio,
		Specialty: in.Specialty,
		ImageURL:  optional(in.ImageURL),
	})
}

// UpdateTeacher rewrites an instructor profile.
func (s *Service) UpdateTeacher(ctx context.Context, id string, in TeacherInput) error {
	if err := in.validate(); err != nil {
		return err
	}
	return s.store.UpdateTeacher(ctx, Teacher{
		ID:        id,
		Name:      in.Name,
		Bio:       in.Bio,
		Specialty: in.Specialty,
		ImageURL:  optional(in.ImageURL),
	})
}

// DeleteTeacher removes a profile unless courses still reference it.
func (s *Service) DeleteTeacher(ctx context.Context, id string) error {
	return s.store.DeleteTeacher(ctx, id)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
