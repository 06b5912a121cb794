package enrollment

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"academy/internal/ratelimit"
)

// Request lifecycle. Pending requests move to exactly one terminal status.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// MaxStudentsPerCourse caps every course roster.
const MaxStudentsPerCourse = 25

var (
	// ErrInvalidCourse is returned when the course id references nothing.
	ErrInvalidCourse = errors.New("course does not exist")
	// ErrInvalidContact is returned when full name or phone is missing.
	ErrInvalidContact = errors.New("full name and phone are required")
	// ErrInvalidPhone is returned for phone numbers outside digits and +- ().
	ErrInvalidPhone = errors.New("invalid phone number format")
	// ErrDuplicatePending is returned while an earlier request for the same
	// course is still undecided.
	ErrDuplicatePending = errors.New("request already pending for this course")
	// ErrInvalidTransition is returned for decisions on non-pending requests.
	ErrInvalidTransition = errors.New("request already decided")
	// ErrNotFound is returned when the request id is unknown.
	ErrNotFound = errors.New("request not found")
	// ErrCourseFull is returned when the roster is at capacity.
	ErrCourseFull = errors.New("course has reached the student limit")
	// ErrAlreadyJoined is returned when the user already sits on the roster.
	ErrAlreadyJoined = errors.New("student already on the roster")
)

// Request is a student's ask to join a course, kept forever as an audit
// trail of decisions.
type Request struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	CourseID    string     `json:"course_id"`
	CourseTitle string     `json:"course_title,omitempty"`
	FullName    string     `json:"full_name"`
	Age         *int       `json:"age,omitempty"`
	Experience  *string    `json:"experience,omitempty"`
	Phone       string     `json:"phone"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	DecidedBy   *string    `json:"decided_by,omitempty"`
}

// Member is one roster seat on a course. UserID is nil for members the
// admin added by hand without a linked account.
type Member struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"course_id"`
	UserID    *string   `json:"user_id,omitempty"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone"`
	Notes     *string   `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the slice of the repository the service needs.
type Store interface {
	CourseExists(ctx context.Context, id string) (bool, error)
	Insert(ctx context.Context, req Request) (Request, error)
	Get(ctx context.Context, id string) (*Request, error)
	Decide(ctx context.Context, id, newStatus, adminID string, at time.Time) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]Request, error)
	ListByStatus(ctx context.Context, status string) ([]Request, error)
	ListAll(ctx context.Context) ([]Request, error)
	AddStudent(ctx context.Context, courseID string, m Member) (Member, error)
	RemoveStudent(ctx context.Context, courseID, memberID string) error
	ListStudents(ctx context.Context, courseID string) ([]Member, error)
	CoursesForUser(ctx context.Context, userID string) ([]string, error)
}

// AuditLog records enrollment activity without failing the caller.
type AuditLog interface {
	Publish(ctx context.Context, actor, action, outcome, detail string)
}

// Service runs the request state machine and the course rosters.
type Service struct {
	store       Store
	limiter     *ratelimit.Limiter
	audit       AuditLog
	enrollLimit int
}

// NewService creates the enrollment service. A non-positive limit falls
// back to 3 submissions per student per hour.
func NewService(store Store, limiter *ratelimit.Limiter, audit AuditLog, enrollLimit int) *Service {
	if enrollLimit <= 0 {
		enrollLimit = 3
	}
	return &Service{store: store, limiter: limiter, audit: audit, enrollLimit: enrollLimit}
}

// SubmitInput carries the enrollment form.
type SubmitInput struct {
	CourseID   string
	FullName   string
	Age        *int
	Experience string
	Phone      string
}

// Submit files a pending request for the student. Ages outside 10..80 are
// dropped rather than rejected; the admin sees the rest of the form either way.
func (s *Service) Submit(ctx context.Context, studentID, username string, in SubmitInput) (Request, error) {
	if err := s.limiter.Allow(ctx, ratelimit.ActionEnroll, studentID, s.enrollLimit); err != nil {
		s.audit.Publish(ctx, username, "enrollment.submit", "rate_limited", in.CourseID)
		return Request{}, err
	}
	in.FullName = strings.TrimSpace(in.FullName)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.FullName == "" || in.Phone == "" {
		return Request{}, ErrInvalidContact
	}
	if !validPhone(in.Phone) {
		return Request{}, ErrInvalidPhone
	}
	if in.Age != nil && (*in.Age < 10 || *in.Age > 80) {
		in.Age = nil
	}
	exists, err := s.store.CourseExists(ctx, in.CourseID)
	if err != nil {
		return Request{}, err
	}
	if !exists {
		return Request{}, ErrInvalidCourse
	}
	req, err := s.store.Insert(ctx, Request{
		UserID:     studentID,
		CourseID:   in.CourseID,
		FullName:   in.FullName,
		Age:        in.Age,
		Experience: optional(in.Experience),
		Phone:      in.Phone,
		Status:     StatusPending,
	})
	if err != nil {
		return Request{}, err
	}
	s.audit.Publish(ctx, username, "enrollment.submit", "ok", req.CourseID)
	return req, nil
}

func validPhone(phone string) bool {
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			continue
		}
		switch r {
		case '+', '-', ' ', '(', ')':
		default:
			return false
		}
	}
	return true
}

// Transition decides a pending request. Approval also seats the student on
// the course roster; a full roster leaves the approval standing and shows
// up in the audit trail instead.
func (s *Service) Transition(ctx context.Context, requestID, newStatus, adminID, adminName string) (Request, error) {
	if newStatus != StatusApproved && newStatus != StatusRejected {
		return Request{}, ErrInvalidTransition
	}
	req, err := s.store.Get(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	if req == nil {
		return Request{}, ErrNotFound
	}
	if req.Status != StatusPending {
		return Request{}, ErrInvalidTransition
	}
	now := time.Now().UTC()
	decided, err := s.store.Decide(ctx, requestID, newStatus, adminID, now)
	if err != nil {
		return Request{}, err
	}
	if !decided {
		return Request{}, ErrInvalidTransition
	}
	req.Status = newStatus
	req.DecidedAt = &now
	req.DecidedBy = &adminID

	outcome := "ok"
	if newStatus == StatusApproved && req.UserID != "" {
		uid := req.UserID
		_, err := s.store.AddStudent(ctx, req.CourseID, Member{
			UserID:   &uid,
			FullName: req.FullName,
			Phone:    req.Phone,
		})
		switch {
		case errors.Is(err, ErrCourseFull):
			outcome = "roster_full"
		case errors.Is(err, ErrAlreadyJoined):
			// fine, an earlier approval seated them
		case err != nil:
			log.Printf("enrollment: roster join after approval: %v", err)
			outcome = "roster_error"
		}
	}
	s.audit.Publish(ctx, adminName, "enrollment."+newStatus, outcome, requestID)
	return *req, nil
}

// ListForStudent returns the student's own requests, newest first.
func (s *Service) ListForStudent(ctx context.Context, studentID string) ([]Request, error) {
	return s.store.ListByUser(ctx, studentID)
}

// ListPending returns undecided requests for admin triage, newest first.
func (s *Service) ListPending(ctx context.Context) ([]Request, error) {
	return s.store.ListByStatus(ctx, StatusPending)
}

// ListByStatus returns requests in one lifecycle status, newest first.
func (s *Service) ListByStatus(ctx context.Context, status string) ([]Request, error) {
	if status != StatusPending && status != StatusApproved && status != StatusRejected {
		return nil, ErrNotFound
	}
	return s.store.ListByStatus(ctx, status)
}

// ListAll returns every request for the admin overview.
func (s *Service) ListAll(ctx context.Context) ([]Request, error) {
	return s.store.ListAll(ctx)
}

// MemberInput carries an admin's manual roster addition.
type MemberInput struct {
	FullName string
	Phone    string
	Notes    string
}

// AddStudent seats a member on the roster by hand, bypassing the request
// flow the way front-desk signups do.
func (s *Service) AddStudent(ctx context.Context, courseID string, in MemberInput) (Member, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.FullName == "" || in.Phone == "" {
		return Member{}, ErrInvalidContact
	}
	return s.store.AddStudent(ctx, courseID, Member{
		FullName: in.FullName,
		Phone:    in.Phone,
		Notes:    optional(in.Notes),
	})
}

// RemoveStudent drops a roster member.
func (s *Service) RemoveStudent(ctx context.Context, courseID, memberID string) error {
	return s.store.RemoveStudent(ctx, courseID, memberID)
}

// Roster returns the course roster in join order.
func (s *Service) Roster(ctx context.Context, courseID string) ([]Member, error) {
	return s.store.ListStudents(ctx, courseID)
}

// EnrolledCourses returns ids of courses where the student holds a seat.
func (s *Service) EnrolledCourses(ctx context.Context, studentID string) ([]string, error) {
	return s.store.CoursesForUser(ctx, studentID)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
