package catalog

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists courses and teachers in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertTeacher writes a new teacher profile.
func (r *Repository) InsertTeacher(ctx context.Context, t Teacher) (Teacher, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO teachers (id, name, bio, specialty, image_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, t.ID, t.Name, t.Bio, t.Specialty, t.ImageURL)
	if err := row.Scan(&t.CreatedAt); err != nil {
		return Teacher{}, err
	}
	return t, nil
}

// UpdateTeacher rewrites an existing profile.
func (r *Repository) UpdateTeacher(ctx context.Context, t Teacher) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE teachers SET name = $2, bio = $3, specialty = $4, image_url = $5
		WHERE id = $1
	`, t.ID, t.Name, t.Bio, t.Specialty, t.ImageURL)
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

// DeleteTeacher removes a teacher unless any course still references them.
// The guard and the delete run as one statement, so a concurrent course
// create cannot slip in between.
func (r *Repository) DeleteTeacher(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM teachers
		WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM courses WHERE teacher_id = $1)
	`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		exists, err := r.teacherExists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrTeacherInUse
	}
	return nil
}

func (r *Repository) teacherExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM teachers WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetTeacher returns a teacher or nil when unknown.
func (r *Repository) GetTeacher(ctx context.Context, id string) (*Teacher, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, bio, specialty, image_url, created_at
		FROM teachers WHERE id = $1
	`, id)
	var t Teacher
	if err := row.Scan(&t.ID, &t.Name, &t.Bio, &t.Specialty, &t.ImageURL, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// ListTeachers returns all teachers ordered by name.
func (r *Repository) ListTeachers(ctx context.Context) ([]Teacher, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, bio, specialty, image_url, created_at
		FROM teachers ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teachers []Teacher
	for rows.Next() {
		var t Teacher
		if err := rows.Scan(&t.ID, &t.Name, &t.Bio, &t.Specialty, &t.ImageURL, &t.CreatedAt); err != nil {
			return nil, err
		}
		teachers = append(teachers, t)
	}
	return teachers, rows.Err()
}

const courseColumns = `c.id, c.title, c.description, c.duration, c.price, c.image_url, c.teacher_id, t.name, c.created_at`

// InsertCourse writes a new course. An unknown teacher reference surfaces
// as ErrTeacherNotFound via the foreign key.
func (r *Repository) InsertCourse(ctx context.Context, c Course) (Course, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO courses (id, title, description, duration, price, image_url, teacher_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, c.ID, c.Title, c.Description, c.Duration, c.Price, c.ImageURL, c.TeacherID)
	if err := row.Scan(&c.CreatedAt); err != nil {
		if isForeignKeyViolation(err) {
			return Course{}, ErrTeacherNotFound
		}
		return Course{}, err
	}
	return c, nil
}

// UpdateCourse rewrites an existing course.
func (r *Repository) UpdateCourse(ctx context.Context, c Course) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE courses
		SET title = $2, description = $3, duration = $4, price = $5, image_url = $6, teacher_id = $7
		WHERE id = $1
	`, c.ID, c.Title, c.Description, c.Duration, c.Price, c.ImageURL, c.TeacherID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrTeacherNotFound
		}
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

// DeleteCourse removes a course; enrollment requests, roster rows, and
// attendance months cascade with it.
func (r *Repository) DeleteCourse(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
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

// GetCourse returns a course with its teacher name, or nil when unknown.
func (r *Repository) GetCourse(ctx context.Context, id string) (*Course, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+courseColumns+`
		FROM courses c JOIN teachers t ON t.id = c.teacher_id
		WHERE c.id = $1
	`, id)
	var c Course
	if err := scanCourse(row.Scan, &c); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ListCourses returns courses ordered by title, optionally filtered by a
// title substring. The query arrives pre-validated, so it cannot carry
// LIKE wildcards.
func (r *Repository) ListCourses(ctx context.Context, query string) ([]Course, error) {
	sqlStr := `
		SELECT ` + courseColumns + `
		FROM courses c JOIN teachers t ON t.id = c.teacher_id
	`
	args := []any{}
	if query != "" {
		sqlStr += ` WHERE c.title ILIKE '%' || $1 || '%'`
		args = append(args, query)
	}
	sqlStr += ` ORDER BY c.title`

	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCourses(rows)
}

// FeaturedCourses returns the first n courses by creation time for the
// landing page.
func (r *Repository) FeaturedCourses(ctx context.Context, n int) ([]Course, error) {
	if n <= 0 {
		n = 3
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+courseColumns+`
		FROM courses c JOIN teachers t ON t.id = c.teacher_id
		ORDER BY c.created_at
		LIMIT $1
	`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCourses(rows)
}

func collectCourses(rows *sql.Rows) ([]Course, error) {
	var courses []Course
	for rows.Next() {
		var c Course
		if err := scanCourse(rows.Scan, &c); err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

func scanCourse(scan func(...any) error, c *Course) error {
	return scan(&c.ID, &c.Title, &c.Description, &c.Duration, &c.Price, &c.ImageURL, &c.TeacherID, &c.TeacherName, &c.CreatedAt)
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
