package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"academy/internal/attendance"
	"academy/internal/auth"
	"academy/internal/catalog"
	"academy/internal/enrollment"
)

// AdminOverview returns everything the admin panel's front page shows.
func (h *Handler) AdminOverview(c *gin.Context) {
	ctx := c.Request.Context()
	courses, err := h.catalog.Search(ctx, "")
	if err != nil {
		h.fail(c, err)
		return
	}
	teachers, err := h.catalog.Teachers(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	requests, err := h.enrollment.ListAll(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	months, err := h.attendance.Months(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"courses":  courses,
		"teachers": teachers,
		"requests": requests,
		"months":   months,
	})
}

// --- courses ---

type courseRequest struct {
	Title       string  `json:"title" binding:"required"`
	Description string  `json:"description" binding:"required"`
	Duration    string  `json:"duration" binding:"required"`
	Price       float64 `json:"price"`
	ImageURL    string  `json:"image_url"`
	TeacherID   string  `json:"teacher_id" binding:"required"`
}

func (r courseRequest) input() catalog.CourseInput {
	return catalog.CourseInput{
		Title:       r.Title,
		Description: r.Description,
		Duration:    r.Duration,
		Price:       r.Price,
		ImageURL:    r.ImageURL,
		TeacherID:   r.TeacherID,
	}
}

// CreateCourse adds a course to the catalog.
func (h *Handler) CreateCourse(c *gin.Context) {
	var req courseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	course, err := h.catalog.CreateCourse(c.Request.Context(), req.input())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"course": course})
}

// EditCourse rewrites every field of a course.
func (h *Handler) EditCourse(c *gin.Context) {
	var req courseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.catalog.UpdateCourse(c.Request.Context(), c.Param("id"), req.input()); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteCourse removes a course with its requests, roster, and sheets.
func (h *Handler) DeleteCourse(c *gin.Context) {
	if err := h.catalog.DeleteCourse(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- rosters ---

// Roster lists a course's seated students in join order.
func (h *Handler) Roster(c *gin.Context) {
	members, err := h.enrollment.Roster(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": members})
}

type memberRequest struct {
	FullName string `json:"full_name" binding:"required"`
	Phone    string `json:"phone" binding:"required"`
	Notes    string `json:"notes"`
}

// AddRosterMember seats a walk-in student without an enrollment request.
func (h *Handler) AddRosterMember(c *gin.Context) {
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	member, err := h.enrollment.AddStudent(c.Request.Context(), c.Param("id"), enrollment.MemberInput{
		FullName: req.FullName,
		Phone:    req.Phone,
		Notes:    req.Notes,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"student": member})
}

// RemoveRosterMember drops one seat from a course.
func (h *Handler) RemoveRosterMember(c *gin.Context) {
	if err := h.enrollment.RemoveStudent(c.Request.Context(), c.Param("id"), c.Param("sid")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- teachers ---

type teacherRequest struct {
	Name      string `json:"name" binding:"required"`
	Bio       string `json:"bio" binding:"required"`
	Specialty string `json:"specialty" binding:"required"`
	ImageURL  string `json:"image_url"`
}

func (r teacherRequest) input() catalog.TeacherInput {
	return catalog.TeacherInput{Name: r.Name, Bio: r.Bio, Specialty: r.Specialty, ImageURL: r.ImageURL}
}

// CreateTeacher adds an instructor profile.
func (h *Handler) CreateTeacher(c *gin.Context) {
	var req teacherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	teacher, err := h.catalog.CreateTeacher(c.Request.Context(), req.input())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"teacher": teacher})
}

// EditTeacher rewrites an instructor profile.
func (h *Handler) EditTeacher(c *gin.Context) {
	var req teacherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.catalog.UpdateTeacher(c.Request.Context(), c.Param("id"), req.input()); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteTeacher removes a profile. Fails while courses still reference it.
func (h *Handler) DeleteTeacher(c *gin.Context) {
	if err := h.catalog.DeleteTeacher(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- enrollment requests ---

// ListEnrollments returns requests, all of them or one ?status= slice.
func (h *Handler) ListEnrollments(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		requests []enrollment.Request
		err      error
	)
	if status := c.Query("status"); status != "" {
		requests, err = h.enrollment.ListByStatus(ctx, status)
	} else {
		requests, err = h.enrollment.ListAll(ctx)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// ApproveEnrollment decides a pending request and seats the student.
func (h *Handler) ApproveEnrollment(c *gin.Context) {
	h.decideEnrollment(c, enrollment.StatusApproved)
}

// RejectEnrollment decides a pending request without seating anyone.
func (h *Handler) RejectEnrollment(c *gin.Context) {
	h.decideEnrollment(c, enrollment.StatusRejected)
}

func (h *Handler) decideEnrollment(c *gin.Context, status string) {
	sess, _ := auth.SessionFrom(c)
	req, err := h.enrollment.Transition(c.Request.Context(), c.Param("id"), status, sess.UserID, sess.Username)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": req})
}

// --- attendance ---

type monthRequest struct {
	CourseID    string   `json:"course_id" binding:"required"`
	Label       string   `json:"label" binding:"required"`
	LessonDates []string `json:"lesson_dates" binding:"required"`
}

// CreateMonth opens an attendance sheet for a course.
func (h *Handler) CreateMonth(c *gin.Context) {
	var req monthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	month, err := h.attendance.CreateMonth(c.Request.Context(), req.CourseID, req.Label, req.LessonDates)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"month": month})
}

// DeleteMonth removes a sheet with all its cells.
func (h *Handler) DeleteMonth(c *gin.Context) {
	if err := h.attendance.DeleteMonth(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MonthMatrix returns a sheet with every student's cells.
func (h *Handler) MonthMatrix(c *gin.Context) {
	month, entries, err := h.attendance.Matrix(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"month": month, "entries": entries})
}

// StudentEntries returns one student's row of a sheet.
func (h *Handler) StudentEntries(c *gin.Context) {
	month, entries, err := h.attendance.ForStudent(c.Request.Context(), c.Param("studentID"), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"month": month, "entries": entries})
}

type recordEntriesRequest struct {
	Entries []attendance.EntryInput `json:"entries" binding:"required"`
}

// RecordEntries batch-writes one student's cells for a month.
func (h *Handler) RecordEntries(c *gin.Context) {
	var req recordEntriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entries, err := h.attendance.Record(c.Request.Context(), c.Param("id"), c.Param("studentID"), req.Entries)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

type toggleRequest struct {
	MonthID     string `json:"month_id" binding:"required"`
	StudentID   string `json:"student_id" binding:"required"`
	LessonIndex *int   `json:"lesson_index" binding:"required"`
}

// ToggleEntry cycles one cell blank, present, absent, blank.
func (h *Handler) ToggleEntry(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, err := h.attendance.Toggle(c.Request.Context(), req.MonthID, req.StudentID, *req.LessonIndex)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// --- users and audit ---

// ListUsers returns every account, admins first.
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.accounts.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// DeleteUser removes an account. The acting admin cannot remove themselves.
func (h *Handler) DeleteUser(c *gin.Context) {
	sess, _ := auth.SessionFrom(c)
	if err := h.accounts.Delete(c.Request.Context(), sess.UserID, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AuditTrail returns recent audit events, newest first.
func (h *Handler) AuditTrail(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	events, err := h.auditLog.Recent(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
