package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"academy/internal/auth"
	"academy/internal/enrollment"
	"academy/internal/metrics"
	"academy/internal/ratelimit"
)

// Dashboard returns the signed-in user's profile, their enrollment
// requests, and the attendance months they can open.
func (h *Handler) Dashboard(c *gin.Context) {
	sess, _ := auth.SessionFrom(c)
	ctx := c.Request.Context()

	user, err := h.accounts.Get(ctx, sess.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	requests, err := h.enrollment.ListForStudent(ctx, sess.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	enrolled, err := h.enrollment.EnrolledCourses(ctx, sess.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	months, err := h.attendance.MonthsForStudent(ctx, sess.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":                user,
		"enrollment_requests": requests,
		"enrolled_course_ids": enrolled,
		"attendance_months":   months,
	})
}

type enrollRequest struct {
	CourseID   string `json:"course_id" binding:"required"`
	FullName   string `json:"full_name" binding:"required"`
	Age        *int   `json:"age"`
	Experience string `json:"experience"`
	Phone      string `json:"phone" binding:"required"`
}

// Enroll files a pending enrollment request for the signed-in student.
func (h *Handler) Enroll(c *gin.Context) {
	sess, _ := auth.SessionFrom(c)
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := h.enrollment.Submit(c.Request.Context(), sess.UserID, sess.Username, enrollment.SubmitInput{
		CourseID:   req.CourseID,
		FullName:   req.FullName,
		Age:        req.Age,
		Experience: req.Experience,
		Phone:      req.Phone,
	})
	if err != nil {
		metrics.EnrollmentSubmissions.WithLabelValues(enrollOutcome(err)).Inc()
		h.fail(c, err)
		return
	}
	metrics.EnrollmentSubmissions.WithLabelValues("ok").Inc()
	c.JSON(http.StatusCreated, gin.H{"request": created})
}

func enrollOutcome(err error) string {
	switch {
	case errors.Is(err, ratelimit.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, enrollment.ErrDuplicatePending):
		return "duplicate"
	case errors.Is(err, enrollment.ErrInvalidCourse),
		errors.Is(err, enrollment.ErrInvalidContact),
		errors.Is(err, enrollment.ErrInvalidPhone):
		return "rejected"
	default:
		return "error"
	}
}

// MyAttendanceMonths lists the months the student can open.
func (h *Handler) MyAttendanceMonths(c *gin.Context) {
	sess, _ := auth.SessionFrom(c)
	months, err := h.attendance.MonthsForStudent(c.Request.Context(), sess.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"months": months})
}

// MyAttendanceEntries returns the month and the student's own cells in it.
// Other students' cells are never part of the response.
func (h *Handler) MyAttendanceEntries(c *gin.Context) {
	sess, _ := auth.SessionFrom(c)
	month, entries, err := h.attendance.ForStudent(c.Request.Context(), sess.UserID, c.Param("monthID"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"month": month, "entries": entries})
}
