package attendance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists attendance months and entries in Postgres.
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

// InsertMonth writes a new month with its lesson dates as a JSON array.
func (r *Repository) InsertMonth(ctx context.Context, m Month) (Month, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	dates, err := json.Marshal(m.LessonDates)
	if err != nil {
		return Month{}, err
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_months (id, course_id, label, lesson_dates)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, m.ID, m.CourseID, m.Label, dates)
	if err := row.Scan(&m.CreatedAt); err != nil {
		return Month{}, err
	}
	return m, nil
}

const monthColumns = `m.id, m.course_id, c.title, m.label, m.lesson_dates, m.created_at`

// GetMonth returns a month or nil when unknown.
func (r *Repository) GetMonth(ctx context.Context, id string) (*Month, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+monthColumns+`
		FROM attendance_months m JOIN courses c ON c.id = m.course_id
		WHERE m.id = $1
	`, id)
	var m Month
	if err := scanMonth(row.Scan, &m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// DeleteMonth removes a month and its entries.
func (r *Repository) DeleteMonth(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attendance_months WHERE id = $1`, id)
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

// ListMonths returns every month for the admin overview, newest first.
func (r *Repository) ListMonths(ctx context.Context) ([]Month, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+monthColumns+`
		FROM attendance_months m JOIN courses c ON c.id = m.course_id
		ORDER BY m.created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMonths(rows)
}

// MonthsForStudent returns months visible to one student: those where the
// student has entries, plus months of courses they are rostered on.
func (r *Repository) MonthsForStudent(ctx context.Context, studentID string) ([]Month, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT `+monthColumns+`
		FROM attendance_months m
		JOIN courses c ON c.id = m.course_id
		LEFT JOIN attendance_entries e ON e.month_id = m.id AND e.student_id = $1
		LEFT JOIN course_students cs ON cs.course_id = m.course_id AND cs.user_id = $1
		WHERE e.id IS NOT NULL OR cs.id IS NOT NULL
		ORDER BY m.created_at DESC
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMonths(rows)
}

func collectMonths(rows *sql.Rows) ([]Month, error) {
	var months []Month
	for rows.Next() {
		var m Month
		if err := scanMonth(rows.Scan, &m); err != nil {
			return nil, err
		}
		months = append(months, m)
	}
	return months, rows.Err()
}

func scanMonth(scan func(...any) error, m *Month) error {
	var rawDates []byte
	if err := scan(&m.ID, &m.CourseID, &m.CourseTitle, &m.Label, &rawDates, &m.CreatedAt); err != nil {
		return err
	}
	return json.Unmarshal(rawDates, &m.LessonDates)
}

// UpsertEntry writes one attendance cell, overwriting the status when the
// cell already exists.
func (r *Repository) UpsertEntry(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_entries (id, month_id, student_id, lesson_index, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (month_id, student_id, lesson_index)
		DO UPDATE SET status = EXCLUDED.status
		RETURNING id, created_at
	`, e.ID, e.MonthID, e.StudentID, e.LessonIndex, e.Status)
	if err := row.Scan(&e.ID, &e.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	return e, nil
}

// GetEntry returns one cell or nil when blank.
func (r *Repository) GetEntry(ctx context.Context, monthID, studentID string, lessonIndex int) (*Entry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, month_id, student_id, lesson_index, status, created_at
		FROM attendance_entries
		WHERE month_id = $1 AND student_id = $2 AND lesson_index = $3
	`, monthID, studentID, lessonIndex)
	var e Entry
	if err := row.Scan(&e.ID, &e.MonthID, &e.StudentID, &e.LessonIndex, &e.Status, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// DeleteEntry blanks one cell.
func (r *Repository) DeleteEntry(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM attendance_entries WHERE id = $1`, id)
	return err
}

// EntriesForStudent returns one student's cells for a month, lesson order.
func (r *Repository) EntriesForStudent(ctx context.Context, studentID, monthID string) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, month_id, student_id, lesson_index, status, created_at
		FROM attendance_entries
		WHERE student_id = $1 AND month_id = $2
		ORDER BY lesson_index
	`, studentID, monthID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// EntriesForMonth returns every cell of a month for the admin matrix.
func (r *Repository) EntriesForMonth(ctx context.Context, monthID string) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, month_id, student_id, lesson_index, status, created_at
		FROM attendance_entries
		WHERE month_id = $1
		ORDER BY student_id, lesson_index
	`, monthID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func collectEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.MonthID, &e.StudentID, &e.LessonIndex, &e.Status, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
