package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"academy/internal/accounts"
	"academy/internal/attendance"
	"academy/internal/audit"
	"academy/internal/auth"
	"academy/internal/catalog"
	"academy/internal/config"
	"academy/internal/enrollment"
	"academy/internal/queue"
	"academy/internal/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// env runs the full router against in-memory fakes. Every test gets its
// own env so rate limit windows and sessions never leak between tests.
type env struct {
	router   *gin.Engine
	accounts *fakeAccounts
	catalog  *fakeCatalog
	enroll   *fakeEnrollment
	attend   *fakeAttendance
	trail    *fakeAuditTrail
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cfg := config.App{
		SessionIssuer:     "academy",
		SessionSigningKey: "handler-test-secret",
		SessionTTL:        time.Hour,
		RegisterPerHour:   5,
		LoginPerHour:      10,
		EnrollPerHour:     3,
	}
	accts := newFakeAccounts()
	cat := newFakeCatalog()
	enr := newFakeEnrollment(cat)
	att := newFakeAttendance(cat)
	trail := &fakeAuditTrail{}

	limiter := ratelimit.New(ratelimit.NewMemoryCounter())
	auditLog := audit.NewPublisher(queue.NewInMemory(64))

	h := New(cfg,
		accounts.NewService(accts, limiter, auditLog, cfg.RegisterPerHour, cfg.LoginPerHour),
		catalog.NewService(cat),
		enrollment.NewService(enr, limiter, auditLog, cfg.EnrollPerHour),
		attendance.NewService(att),
		trail, auth.NewMemoryStore(), nil, nil)

	r := gin.New()
	h.Routes(r)
	return &env{router: r, accounts: accts, catalog: cat, enroll: enr, attend: att, trail: trail}
}

// session carries the cookies a browser would replay plus the CSRF token
// the frontend reads from its own cookie.
type session struct {
	cookies []*http.Cookie
	csrf    string
}

// withoutCSRF replays the cookies but drops the header, like a cross-site
// form post would.
func (s *session) withoutCSRF() *session {
	return &session{cookies: s.cookies}
}

func (e *env) do(t *testing.T, method, path string, body any, sess *session) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sess != nil {
		for _, c := range sess.cookies {
			req.AddCookie(c)
		}
		if sess.csrf != "" {
			req.Header.Set(auth.CSRFHeader, sess.csrf)
		}
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func sessionFrom(t *testing.T, w *httptest.ResponseRecorder) *session {
	t.Helper()
	s := &session{}
	for _, c := range w.Result().Cookies() {
		switch c.Name {
		case auth.CookieName:
			s.cookies = append(s.cookies, &http.Cookie{Name: c.Name, Value: c.Value})
		case auth.CSRFCookieName:
			s.cookies = append(s.cookies, &http.Cookie{Name: c.Name, Value: c.Value})
			s.csrf = c.Value
		}
	}
	if len(s.cookies) != 2 {
		t.Fatalf("expected session and csrf cookies, got %d", len(s.cookies))
	}
	return s
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), into); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func (e *env) register(t *testing.T, username, password string) (accounts.User, *session) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/register", gin.H{"username": username, "password": password}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d, body %s", username, w.Code, w.Body.String())
	}
	var body struct {
		User accounts.User `json:"user"`
	}
	decode(t, w, &body)
	return body.User, sessionFrom(t, w)
}

func (e *env) login(t *testing.T, username, password string) *session {
	t.Helper()
	w := e.do(t, http.MethodPost, "/login", gin.H{"username": username, "password": password}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: status %d, body %s", username, w.Code, w.Body.String())
	}
	return sessionFrom(t, w)
}

// seedAdmin plants an admin straight in the store; /register only ever
// hands out the student role.
func (e *env) seedAdmin(t *testing.T, username, password string) *session {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	_, err = e.accounts.Insert(context.Background(), accounts.User{
		Username:     username,
		PasswordHash: hash,
		Role:         accounts.RoleAdmin,
		IsActive:     true,
	})
	if err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	return e.login(t, username, password)
}

func (e *env) seedCourse(t *testing.T, title string) catalog.Course {
	t.Helper()
	ctx := context.Background()
	teacher, err := e.catalog.InsertTeacher(ctx, catalog.Teacher{Name: "Mira Sultanova", Bio: "Backend engineer", Specialty: "Go"})
	if err != nil {
		t.Fatalf("seed teacher: %v", err)
	}
	course, err := e.catalog.InsertCourse(ctx, catalog.Course{
		Title:       title,
		Description: "Evening group",
		Duration:    "8 weeks",
		Price:       900,
		TeacherID:   teacher.ID,
	})
	if err != nil {
		t.Fatalf("seed course: %v", err)
	}
	return course
}

func TestHealthzReportsDownDatastores(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodGet, "/healthz", nil, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 with nil datastores", w.Code)
	}
	var body struct {
		DB    bool `json:"db"`
		Redis bool `json:"redis"`
	}
	decode(t, w, &body)
	if body.DB || body.Redis {
		t.Fatalf("db=%v redis=%v, want both false", body.DB, body.Redis)
	}
}

func TestRegisterLoginLogoutFlow(t *testing.T) {
	e := newEnv(t)
	user, sess := e.register(t, "alice", "correct horse battery")
	if user.Role != accounts.RoleStudent {
		t.Fatalf("new account role = %q, want student", user.Role)
	}

	w := e.do(t, http.MethodGet, "/dashboard", nil, sess)
	if w.Code != http.StatusOK {
		t.Fatalf("dashboard: status %d, body %s", w.Code, w.Body.String())
	}
	var dash struct {
		User accounts.User `json:"user"`
	}
	decode(t, w, &dash)
	if dash.User.Username != "alice" {
		t.Fatalf("dashboard user = %q, want alice", dash.User.Username)
	}

	if w := e.do(t, http.MethodPost, "/logout", nil, sess); w.Code != http.StatusNoContent {
		t.Fatalf("logout: status %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/dashboard", nil, sess); w.Code != http.StatusUnauthorized {
		t.Fatalf("dashboard after logout: status %d, want 401", w.Code)
	}
}

func TestRegisterRejectsDuplicatesAndWeakPasswords(t *testing.T) {
	e := newEnv(t)
	e.register(t, "alice", "correct horse battery")

	w := e.do(t, http.MethodPost, "/register", gin.H{"username": "alice", "password": "another fine pass"}, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate username: status %d, want 409", w.Code)
	}
	w = e.do(t, http.MethodPost, "/register", gin.H{"username": "bob", "password": "short"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("weak password: status %d, want 400", w.Code)
	}
}

func TestLoginFailuresLookAlike(t *testing.T) {
	e := newEnv(t)
	e.register(t, "bob", "correct horse battery")

	wrong := e.do(t, http.MethodPost, "/login", gin.H{"username": "bob", "password": "not the password"}, nil)
	unknown := e.do(t, http.MethodPost, "/login", gin.H{"username": "nobody", "password": "not the password"}, nil)
	if wrong.Code != http.StatusUnauthorized || unknown.Code != http.StatusUnauthorized {
		t.Fatalf("statuses = %d and %d, want 401 for both", wrong.Code, unknown.Code)
	}
	if wrong.Body.String() != unknown.Body.String() {
		t.Fatalf("bodies differ: %q vs %q", wrong.Body.String(), unknown.Body.String())
	}
}

func TestAdminRoutesAreGated(t *testing.T) {
	e := newEnv(t)
	if w := e.do(t, http.MethodGet, "/admin/overview", nil, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: status %d, want 401", w.Code)
	}
	_, student := e.register(t, "carol", "correct horse battery")
	if w := e.do(t, http.MethodGet, "/admin/overview", nil, student); w.Code != http.StatusForbidden {
		t.Fatalf("student: status %d, want 403", w.Code)
	}
	admin := e.seedAdmin(t, "root", "root-pass-word")
	if w := e.do(t, http.MethodGet, "/admin/overview", nil, admin); w.Code != http.StatusOK {
		t.Fatalf("admin: status %d, body %s", w.Code, w.Body.String())
	}
}

func TestWritesRequireCSRFHeader(t *testing.T) {
	e := newEnv(t)
	course := e.seedCourse(t, "Go Fundamentals")
	_, sess := e.register(t, "carol", "correct horse battery")

	body := gin.H{"course_id": course.ID, "full_name": "Carol Mae", "phone": "+998 90 111-22-33"}
	if w := e.do(t, http.MethodPost, "/courses/enroll", body, sess.withoutCSRF()); w.Code != http.StatusForbidden {
		t.Fatalf("missing header: status %d, want 403", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/courses/enroll", body, sess); w.Code != http.StatusCreated {
		t.Fatalf("with header: status %d, body %s", w.Code, w.Body.String())
	}
}

func TestEnrollFlowAndHourlyBudget(t *testing.T) {
	e := newEnv(t)
	first := e.seedCourse(t, "Go Fundamentals")
	second := e.seedCourse(t, "SQL Workshop")
	third := e.seedCourse(t, "Linux Basics")
	_, sess := e.register(t, "dana", "correct horse battery")

	enroll := func(courseID string) *httptest.ResponseRecorder {
		return e.do(t, http.MethodPost, "/courses/enroll", gin.H{
			"course_id": courseID,
			"full_name": "Dana Roe",
			"phone":     "+998 90 111-22-33",
		}, sess)
	}

	w := enroll(first.ID)
	if w.Code != http.StatusCreated {
		t.Fatalf("first request: status %d, body %s", w.Code, w.Body.String())
	}
	var created struct {
		Request enrollment.Request `json:"request"`
	}
	decode(t, w, &created)
	if created.Request.Status != enrollment.StatusPending {
		t.Fatalf("status = %q, want pending", created.Request.Status)
	}

	// A repeat for the same course is refused but still burns an attempt.
	if w := enroll(first.ID); w.Code != http.StatusConflict {
		t.Fatalf("duplicate pending: status %d, want 409", w.Code)
	}
	if w := enroll(second.ID); w.Code != http.StatusCreated {
		t.Fatalf("second course: status %d, body %s", w.Code, w.Body.String())
	}
	if w := enroll(third.ID); w.Code != http.StatusTooManyRequests {
		t.Fatalf("fourth attempt: status %d, want 429", w.Code)
	}

	w = e.do(t, http.MethodGet, "/dashboard", nil, sess)
	var dash struct {
		Requests []enrollment.Request `json:"enrollment_requests"`
	}
	decode(t, w, &dash)
	if len(dash.Requests) != 2 {
		t.Fatalf("dashboard shows %d requests, want 2", len(dash.Requests))
	}
}

func TestEnrollValidation(t *testing.T) {
	e := newEnv(t)
	_, sess := e.register(t, "dana", "correct horse battery")

	w := e.do(t, http.MethodPost, "/courses/enroll", gin.H{"course_id": "c1", "full_name": "Dana Roe"}, sess)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing phone: status %d, want 400", w.Code)
	}
	w = e.do(t, http.MethodPost, "/courses/enroll", gin.H{
		"course_id": "ghost", "full_name": "Dana Roe", "phone": "+998 90 111-22-33",
	}, sess)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown course: status %d, want 404", w.Code)
	}
}

func TestAdminEnrollmentDecision(t *testing.T) {
	e := newEnv(t)
	course := e.seedCourse(t, "Go Fundamentals")
	_, student := e.register(t, "eve", "correct horse battery")
	e.do(t, http.MethodPost, "/courses/enroll", gin.H{
		"course_id": course.ID, "full_name": "Eve Lang", "phone": "+998 90 111-22-33",
	}, student)
	admin := e.seedAdmin(t, "root", "root-pass-word")

	w := e.do(t, http.MethodGet, "/admin/enrollments?status=pending", nil, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("list pending: status %d, body %s", w.Code, w.Body.String())
	}
	var list struct {
		Requests []enrollment.Request `json:"requests"`
	}
	decode(t, w, &list)
	if len(list.Requests) != 1 {
		t.Fatalf("pending count = %d, want 1", len(list.Requests))
	}
	id := list.Requests[0].ID

	w = e.do(t, http.MethodPost, "/admin/enrollments/"+id+"/approve", nil, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("approve: status %d, body %s", w.Code, w.Body.String())
	}
	var decided struct {
		Request enrollment.Request `json:"request"`
	}
	decode(t, w, &decided)
	if decided.Request.Status != enrollment.StatusApproved || decided.Request.DecidedBy == nil {
		t.Fatalf("decision not recorded: %+v", decided.Request)
	}

	// Approval seats the student on the course roster.
	w = e.do(t, http.MethodGet, "/admin/courses/"+course.ID+"/students", nil, admin)
	var roster struct {
		Students []enrollment.Member `json:"students"`
	}
	decode(t, w, &roster)
	if len(roster.Students) != 1 || roster.Students[0].FullName != "Eve Lang" {
		t.Fatalf("roster = %+v, want Eve Lang seated", roster.Students)
	}

	if w := e.do(t, http.MethodPost, "/admin/enrollments/"+id+"/approve", nil, admin); w.Code != http.StatusConflict {
		t.Fatalf("second approve: status %d, want 409", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/admin/enrollments?status=archived", nil, admin); w.Code != http.StatusNotFound {
		t.Fatalf("bogus status filter: status %d, want 404", w.Code)
	}
}

func TestAdminCatalogCRUD(t *testing.T) {
	e := newEnv(t)
	admin := e.seedAdmin(t, "root", "root-pass-word")

	w := e.do(t, http.MethodPost, "/admin/teachers/create", gin.H{
		"name": "Ivan Petrov", "bio": "Ten years of Go", "specialty": "Backend",
	}, admin)
	if w.Code != http.StatusCreated {
		t.Fatalf("create teacher: status %d, body %s", w.Code, w.Body.String())
	}
	var teach struct {
		Teacher catalog.Teacher `json:"teacher"`
	}
	decode(t, w, &teach)

	w = e.do(t, http.MethodPost, "/admin/courses/create", gin.H{
		"title": "Go Fundamentals", "description": "Evening group", "duration": "8 weeks",
		"price": 900.0, "teacher_id": teach.Teacher.ID,
	}, admin)
	if w.Code != http.StatusCreated {
		t.Fatalf("create course: status %d, body %s", w.Code, w.Body.String())
	}
	var created struct {
		Course catalog.Course `json:"course"`
	}
	decode(t, w, &created)

	// The new course is publicly visible without a session.
	if w := e.do(t, http.MethodGet, "/courses/"+created.Course.ID, nil, nil); w.Code != http.StatusOK {
		t.Fatalf("public get: status %d", w.Code)
	}

	if w := e.do(t, http.MethodPost, "/admin/teachers/"+teach.Teacher.ID+"/delete", nil, admin); w.Code != http.StatusConflict {
		t.Fatalf("delete referenced teacher: status %d, want 409", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/admin/courses/"+created.Course.ID+"/delete", nil, admin); w.Code != http.StatusNoContent {
		t.Fatalf("delete course: status %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/courses/"+created.Course.ID, nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("get deleted course: status %d, want 404", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/admin/teachers/"+teach.Teacher.ID+"/delete", nil, admin); w.Code != http.StatusNoContent {
		t.Fatalf("delete unreferenced teacher: status %d", w.Code)
	}
}

func TestAttendanceFlow(t *testing.T) {
	e := newEnv(t)
	course := e.seedCourse(t, "Go Fundamentals")
	student, studentSess := e.register(t, "fred", "correct horse battery")
	e.do(t, http.MethodPost, "/courses/enroll", gin.H{
		"course_id": course.ID, "full_name": "Fred Weiss", "phone": "+998 90 111-22-33",
	}, studentSess)
	admin := e.seedAdmin(t, "root", "root-pass-word")

	var list struct {
		Requests []enrollment.Request `json:"requests"`
	}
	decode(t, e.do(t, http.MethodGet, "/admin/enrollments?status=pending", nil, admin), &list)
	e.do(t, http.MethodPost, "/admin/enrollments/"+list.Requests[0].ID+"/approve", nil, admin)

	w := e.do(t, http.MethodPost, "/admin/attendance/months", gin.H{
		"course_id": course.ID, "label": "September", "lesson_dates": []string{"02.09", "04.09", "06.09"},
	}, admin)
	if w.Code != http.StatusCreated {
		t.Fatalf("create month: status %d, body %s", w.Code, w.Body.String())
	}
	var created struct {
		Month attendance.Month `json:"month"`
	}
	decode(t, w, &created)

	w = e.do(t, http.MethodPost, "/admin/attendance/toggle", gin.H{
		"month_id": created.Month.ID, "student_id": student.ID, "lesson_index": 0,
	}, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("toggle: status %d, body %s", w.Code, w.Body.String())
	}
	var toggled struct {
		Status string `json:"status"`
	}
	decode(t, w, &toggled)
	if toggled.Status != attendance.StatusPresent {
		t.Fatalf("toggled status = %q, want %q", toggled.Status, attendance.StatusPresent)
	}

	// The student sees the month and only their own row.
	w = e.do(t, http.MethodGet, "/attendance", nil, studentSess)
	var months struct {
		Months []attendance.Month `json:"months"`
	}
	decode(t, w, &months)
	if len(months.Months) != 1 || months.Months[0].Label != "September" {
		t.Fatalf("student months = %+v", months.Months)
	}

	w = e.do(t, http.MethodGet, "/attendance/"+created.Month.ID, nil, studentSess)
	if w.Code != http.StatusOK {
		t.Fatalf("student entries: status %d, body %s", w.Code, w.Body.String())
	}
	var sheet struct {
		Month   attendance.Month   `json:"month"`
		Entries []attendance.Entry `json:"entries"`
	}
	decode(t, w, &sheet)
	if len(sheet.Month.LessonDates) != 3 {
		t.Fatalf("month carries %d dates, want 3", len(sheet.Month.LessonDates))
	}
	if len(sheet.Entries) != 1 || sheet.Entries[0].Status != attendance.StatusPresent {
		t.Fatalf("entries = %+v, want one present mark", sheet.Entries)
	}
}

func TestAdminUserManagement(t *testing.T) {
	e := newEnv(t)
	target, _ := e.register(t, "gus", "correct horse battery")
	admin := e.seedAdmin(t, "root", "root-pass-word")

	w := e.do(t, http.MethodGet, "/admin/users", nil, admin)
	var list struct {
		Users []accounts.User `json:"users"`
	}
	decode(t, w, &list)
	if len(list.Users) != 2 {
		t.Fatalf("user count = %d, want 2", len(list.Users))
	}

	adminID := ""
	for _, u := range list.Users {
		if u.Username == "root" {
			adminID = u.ID
		}
	}
	if w := e.do(t, http.MethodPost, "/admin/users/"+adminID+"/delete", nil, admin); w.Code != http.StatusConflict {
		t.Fatalf("self delete: status %d, want 409", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/admin/users/"+target.ID+"/delete", nil, admin); w.Code != http.StatusNoContent {
		t.Fatalf("delete student: status %d", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/admin/users/"+target.ID+"/delete", nil, admin); w.Code != http.StatusNotFound {
		t.Fatalf("delete twice: status %d, want 404", w.Code)
	}
}

func TestAuditTrailEndpoint(t *testing.T) {
	e := newEnv(t)
	e.trail.events = []audit.Event{
		{ID: "e1", Actor: "root", Action: "enrollment.approved", Outcome: "ok", CreatedAt: time.Now()},
		{ID: "e2", Actor: "root", Action: "enrollment.rejected", Outcome: "ok", CreatedAt: time.Now()},
	}
	admin := e.seedAdmin(t, "root", "root-pass-word")

	w := e.do(t, http.MethodGet, "/admin/audit?limit=1", nil, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("audit: status %d, body %s", w.Code, w.Body.String())
	}
	var body struct {
		Events []audit.Event `json:"events"`
	}
	decode(t, w, &body)
	if len(body.Events) != 1 || body.Events[0].ID != "e1" {
		t.Fatalf("events = %+v, want the first event only", body.Events)
	}
}
