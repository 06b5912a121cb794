package enrollment

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists enrollment requests and course rosters in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CourseExists reports whether the course id references a real course.
func (r *Repository) CourseExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM courses WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Insert writes a new pending request. A second pending request for the
// same (user, course) pair trips the partial unique index and surfaces as
// ErrDuplicatePending.
func (r *Repository) Insert(ctx context.Context, req Request) (Request, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = StatusPending
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO enrollment_requests (id, user_id, course_id, full_name, age, experience, phone, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, req.ID, req.UserID, req.CourseID, req.FullName, req.Age, req.Experience, req.Phone, req.Status)
	if err := row.Scan(&req.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return Request{}, ErrDuplicatePending
			case "23503":
				return Request{}, ErrInvalidCourse
			}
		}
		return Request{}, err
	}
	return req, nil
}

const requestColumns = `r.id, r.user_id, r.course_id, c.title, r.full_name, r.age, r.experience, r.phone, r.status, r.created_at, r.decided_at, r.decided_by`

// Get returns a request or nil when unknown.
func (r *Repository) Get(ctx context.Context, id string) (*Request, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM enrollment_requests r JOIN courses c ON c.id = r.course_id
		WHERE r.id = $1
	`, id)
	var req Request
	if err := scanRequest(row.Scan, &req); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

// Decide moves a pending request to a terminal status, stamping the time
// and the deciding admin. Returns false when the request was not pending
// anymore, whoever got there first.
func (r *Repository) Decide(ctx context.Context, id, newStatus, adminID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE enrollment_requests
		SET status = $2, decided_at = $3, decided_by = $4
		WHERE id = $1 AND status = $5
	`, id, newStatus, at, adminID, StatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListByUser returns a student's requests, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]Request, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM enrollment_requests r JOIN courses c ON c.id = r.course_id
		WHERE r.user_id = $1
		ORDER BY r.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

// ListByStatus returns requests in one status, newest first.
func (r *Repository) ListByStatus(ctx context.Context, status string) ([]Request, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM enrollment_requests r JOIN courses c ON c.id = r.course_id
		WHERE r.status = $1
		ORDER BY r.created_at DESC
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

// ListAll returns every request for the admin overview, newest first.
func (r *Repository) ListAll(ctx context.Context) ([]Request, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM enrollment_requests r JOIN courses c ON c.id = r.course_id
		ORDER BY r.created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

func collectRequests(rows *sql.Rows) ([]Request, error) {
	var reqs []Request
	for rows.Next() {
		var req Request
		if err := scanRequest(rows.Scan, &req); err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

func scanRequest(scan func(...any) error, req *Request) error {
	var userID sql.NullString
	if err := scan(&req.ID, &userID, &req.CourseID, &req.CourseTitle, &req.FullName, &req.Age,
		&req.Experience, &req.Phone, &req.Status, &req.CreatedAt, &req.DecidedAt, &req.DecidedBy); err != nil {
		return err
	}
	req.UserID = userID.String
	return nil
}

// AddStudent joins a member to the course roster, holding a lock on the
// course row so the capacity check and the insert see the same count.
func (r *Repository) AddStudent(ctx context.Context, courseID string, m Member) (Member, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Member{}, err
	}
	defer tx.Rollback()

	var one int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM courses WHERE id = $1 FOR UPDATE`, courseID).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Member{}, ErrInvalidCourse
		}
		return Member{}, err
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM course_students WHERE course_id = $1`, courseID).Scan(&count); err != nil {
		return Member{}, err
	}
	if count >= MaxStudentsPerCourse {
		return Member{}, ErrCourseFull
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO course_students (id, course_id, user_id, full_name, phone, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, m.ID, courseID, m.UserID, m.FullName, m.Phone, m.Notes)
	if err := row.Scan(&m.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Member{}, ErrAlreadyJoined
		}
		return Member{}, err
	}
	m.CourseID = courseID
	return m, tx.Commit()
}

// RemoveStudent drops a roster member.
func (r *Repository) RemoveStudent(ctx context.Context, courseID, memberID string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM course_students WHERE id = $1 AND course_id = $2
	`, memberID, courseID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStudents returns a course roster in join order.
func (r *Repository) ListStudents(ctx context.Context, courseID string) ([]Member, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, course_id, user_id, full_name, phone, notes, created_at
		FROM course_students
		WHERE course_id = $1
		ORDER BY created_at
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.CourseID, &m.UserID, &m.FullName, &m.Phone, &m.Notes, &m.CreatedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// CoursesForUser returns course ids where the user sits on the roster.
func (r *Repository) CoursesForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT course_id FROM course_students WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
