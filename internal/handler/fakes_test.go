package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"academy/internal/accounts"
	"academy/internal/attendance"
	"academy/internal/audit"
	"academy/internal/catalog"
	"academy/internal/enrollment"
)

type fakeAccounts struct {
	users map[string]accounts.User
	seq   int
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{users: make(map[string]accounts.User)}
}

func (f *fakeAccounts) Insert(_ context.Context, u accounts.User) (accounts.User, error) {
	for _, existing := range f.users {
		if existing.Username == u.Username {
			return accounts.User{}, accounts.ErrDuplicateUsername
		}
	}
	f.seq++
	u.ID = fmt.Sprintf("u%d", f.seq)
	u.CreatedAt = time.Now()
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeAccounts) ByUsername(_ context.Context, username string) (*accounts.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (f *fakeAccounts) ByID(_ context.Context, id string) (*accounts.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (f *fakeAccounts) List(_ context.Context) ([]accounts.User, error) {
	out := make([]accounts.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeAccounts) Delete(_ context.Context, id string) error {
	if _, ok := f.users[id]; !ok {
		return accounts.ErrNotFound
	}
	delete(f.users, id)
	return nil
}

func (f *fakeAccounts) UpdatePassword(_ context.Context, id, hash string) error {
	u, ok := f.users[id]
	if !ok {
		return accounts.ErrNotFound
	}
	u.PasswordHash = hash
	f.users[id] = u
	return nil
}

type fakeCatalog struct {
	teachers map[string]catalog.Teacher
	courses  map[string]catalog.Course
	seq      int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{teachers: make(map[string]catalog.Teacher), courses: make(map[string]catalog.Course)}
}

func (f *fakeCatalog) InsertTeacher(_ context.Context, t catalog.Teacher) (catalog.Teacher, error) {
	f.seq++
	t.ID = fmt.Sprintf("t%d", f.seq)
	t.CreatedAt = time.Now()
	f.teachers[t.ID] = t
	return t, nil
}

func (f *fakeCatalog) UpdateTeacher(_ context.Context, t catalog.Teacher) error {
	if _, ok := f.teachers[t.ID]; !ok {
		return catalog.ErrNotFound
	}
	f.teachers[t.ID] = t
	return nil
}

func (f *fakeCatalog) DeleteTeacher(_ context.Context, id string) error {
	if _, ok := f.teachers[id]; !ok {
		return catalog.ErrNotFound
	}
	for _, c := range f.courses {
		if c.TeacherID == id {
			return catalog.ErrTeacherInUse
		}
	}
	delete(f.teachers, id)
	return nil
}

func (f *fakeCatalog) GetTeacher(_ context.Context, id string) (*catalog.Teacher, error) {
	t, ok := f.teachers[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeCatalog) ListTeachers(_ context.Context) ([]catalog.Teacher, error) {
	out := make([]catalog.Teacher, 0, len(f.teachers))
	for _, t := range f.teachers {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeCatalog) InsertCourse(_ context.Context, c catalog.Course) (catalog.Course, error) {
	if _, ok := f.teachers[c.TeacherID]; !ok {
		return catalog.Course{}, catalog.ErrTeacherNotFound
	}
	f.seq++
	c.ID = fmt.Sprintf("c%d", f.seq)
	c.CreatedAt = time.Now()
	f.courses[c.ID] = c
	return c, nil
}

func (f *fakeCatalog) UpdateCourse(_ context.Context, c catalog.Course) error {
	if _, ok := f.courses[c.ID]; !ok {
		return catalog.ErrNotFound
	}
	if _, ok := f.teachers[c.TeacherID]; !ok {
		return catalog.ErrTeacherNotFound
	}
	f.courses[c.ID] = c
	return nil
}

func (f *fakeCatalog) DeleteCourse(_ context.Context, id string) error {
	if _, ok := f.courses[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(f.courses, id)
	return nil
}

func (f *fakeCatalog) GetCourse(_ context.Context, id string) (*catalog.Course, error) {
	c, ok := f.courses[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeCatalog) ListCourses(_ context.Context, query string) ([]catalog.Course, error) {
	var out []catalog.Course
	for _, c := range f.courses {
		if query == "" || strings.Contains(strings.ToLower(c.Title), strings.ToLower(query)) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCatalog) FeaturedCourses(ctx context.Context, n int) ([]catalog.Course, error) {
	all, _ := f.ListCourses(ctx, "")
	if len(all) > n {
		all = all[:n]
	}
	return all, nil
}

type fakeEnrollment struct {
	cat      *fakeCatalog
	requests map[string]enrollment.Request
	roster   map[string][]enrollment.Member
	seq      int
}

func newFakeEnrollment(cat *fakeCatalog) *fakeEnrollment {
	return &fakeEnrollment{
		cat:      cat,
		requests: make(map[string]enrollment.Request),
		roster:   make(map[string][]enrollment.Member),
	}
}

func (f *fakeEnrollment) CourseExists(_ context.Context, id string) (bool, error) {
	_, ok := f.cat.courses[id]
	return ok, nil
}

func (f *fakeEnrollment) Insert(_ context.Context, req enrollment.Request) (enrollment.Request, error) {
	if _, ok := f.cat.courses[req.CourseID]; !ok {
		return enrollment.Request{}, enrollment.ErrInvalidCourse
	}
	for _, existing := range f.requests {
		if existing.UserID == req.UserID && existing.CourseID == req.CourseID && existing.Status == enrollment.StatusPending {
			return enrollment.Request{}, enrollment.ErrDuplicatePending
		}
	}
	f.seq++
	req.ID = fmt.Sprintf("r%d", f.seq)
	req.CreatedAt = time.Now()
	f.requests[req.ID] = req
	return req, nil
}

func (f *fakeEnrollment) Get(_ context.Context, id string) (*enrollment.Request, error) {
	req, ok := f.requests[id]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

func (f *fakeEnrollment) Decide(_ context.Context, id, newStatus, adminID string, at time.Time) (bool, error) {
	req, ok := f.requests[id]
	if !ok || req.Status != enrollment.StatusPending {
		return false, nil
	}
	req.Status = newStatus
	req.DecidedAt = &at
	req.DecidedBy = &adminID
	f.requests[id] = req
	return true, nil
}

func (f *fakeEnrollment) ListByUser(_ context.Context, userID string) ([]enrollment.Request, error) {
	var out []enrollment.Request
	for _, req := range f.requests {
		if req.UserID == userID {
			out = append(out, req)
		}
	}
	return out, nil
}

func (f *fakeEnrollment) ListByStatus(_ context.Context, status string) ([]enrollment.Request, error) {
	var out []enrollment.Request
	for _, req := range f.requests {
		if req.Status == status {
			out = append(out, req)
		}
	}
	return out, nil
}

func (f *fakeEnrollment) ListAll(_ context.Context) ([]enrollment.Request, error) {
	var out []enrollment.Request
	for _, req := range f.requests {
		out = append(out, req)
	}
	return out, nil
}

func (f *fakeEnrollment) AddStudent(_ context.Context, courseID string, m enrollment.Member) (enrollment.Member, error) {
	if _, ok := f.cat.courses[courseID]; !ok {
		return enrollment.Member{}, enrollment.ErrInvalidCourse
	}
	seats := f.roster[courseID]
	if len(seats) >= enrollment.MaxStudentsPerCourse {
		return enrollment.Member{}, enrollment.ErrCourseFull
	}
	if m.UserID != nil {
		for _, seat := range seats {
			if seat.UserID != nil && *seat.UserID == *m.UserID {
				return enrollment.Member{}, enrollment.ErrAlreadyJoined
			}
		}
	}
	f.seq++
	m.ID = fmt.Sprintf("m%d", f.seq)
	m.CourseID = courseID
	m.CreatedAt = time.Now()
	f.roster[courseID] = append(seats, m)
	return m, nil
}

func (f *fakeEnrollment) RemoveStudent(_ context.Context, courseID, memberID string) error {
	seats := f.roster[courseID]
	for i, seat := range seats {
		if seat.ID == memberID {
			f.roster[courseID] = append(seats[:i], seats[i+1:]...)
			return nil
		}
	}
	return enrollment.ErrNotFound
}

func (f *fakeEnrollment) ListStudents(_ context.Context, courseID string) ([]enrollment.Member, error) {
	return f.roster[courseID], nil
}

func (f *fakeEnrollment) CoursesForUser(_ context.Context, userID string) ([]string, error) {
	var out []string
	for courseID, seats := range f.roster {
		for _, seat := range seats {
			if seat.UserID != nil && *seat.UserID == userID {
				out = append(out, courseID)
			}
		}
	}
	return out, nil
}

type fakeAttendance struct {
	cat     *fakeCatalog
	months  map[string]attendance.Month
	entries map[string]attendance.Entry
	seq     int
}

func newFakeAttendance(cat *fakeCatalog) *fakeAttendance {
	return &fakeAttendance{
		cat:     cat,
		months:  make(map[string]attendance.Month),
		entries: make(map[string]attendance.Entry),
	}
}

func (f *fakeAttendance) CourseExists(_ context.Context, id string) (bool, error) {
	_, ok := f.cat.courses[id]
	return ok, nil
}

func (f *fakeAttendance) InsertMonth(_ context.Context, m attendance.Month) (attendance.Month, error) {
	f.seq++
	m.ID = fmt.Sprintf("am%d", f.seq)
	m.CreatedAt = time.Now()
	f.months[m.ID] = m
	return m, nil
}

func (f *fakeAttendance) GetMonth(_ context.Context, id string) (*attendance.Month, error) {
	m, ok := f.months[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (f *fakeAttendance) DeleteMonth(_ context.Context, id string) error {
	if _, ok := f.months[id]; !ok {
		return attendance.ErrNotFound
	}
	delete(f.months, id)
	return nil
}

func (f *fakeAttendance) ListMonths(_ context.Context) ([]attendance.Month, error) {
	var out []attendance.Month
	for _, m := range f.months {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeAttendance) MonthsForStudent(_ context.Context, studentID string) ([]attendance.Month, error) {
	seen := make(map[string]bool)
	var out []attendance.Month
	for _, e := range f.entries {
		if e.StudentID == studentID && !seen[e.MonthID] {
			seen[e.MonthID] = true
			out = append(out, f.months[e.MonthID])
		}
	}
	return out, nil
}

func (f *fakeAttendance) UpsertEntry(_ context.Context, e attendance.Entry) (attendance.Entry, error) {
	for id, existing := range f.entries {
		if existing.MonthID == e.MonthID && existing.StudentID == e.StudentID && existing.LessonIndex == e.LessonIndex {
			existing.Status = e.Status
			f.entries[id] = existing
			return existing, nil
		}
	}
	f.seq++
	e.ID = fmt.Sprintf("ae%d", f.seq)
	e.CreatedAt = time.Now()
	f.entries[e.ID] = e
	return e, nil
}

func (f *fakeAttendance) GetEntry(_ context.Context, monthID, studentID string, lessonIndex int) (*attendance.Entry, error) {
	for _, e := range f.entries {
		if e.MonthID == monthID && e.StudentID == studentID && e.LessonIndex == lessonIndex {
			e := e
			return &e, nil
		}
	}
	return nil, nil
}

func (f *fakeAttendance) DeleteEntry(_ context.Context, id string) error {
	if _, ok := f.entries[id]; !ok {
		return attendance.ErrNotFound
	}
	delete(f.entries, id)
	return nil
}

func (f *fakeAttendance) EntriesForStudent(_ context.Context, studentID, monthID string) ([]attendance.Entry, error) {
	var out []attendance.Entry
	for _, e := range f.entries {
		if e.StudentID == studentID && e.MonthID == monthID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAttendance) EntriesForMonth(_ context.Context, monthID string) ([]attendance.Entry, error) {
	var out []attendance.Entry
	for _, e := range f.entries {
		if e.MonthID == monthID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeAuditTrail struct {
	events []audit.Event
}

func (f *fakeAuditTrail) Recent(_ context.Context, limit int) ([]audit.Event, error) {
	if limit > 0 && len(f.events) > limit {
		return f.events[:limit], nil
	}
	return f.events, nil
}
