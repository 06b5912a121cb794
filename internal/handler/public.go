package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const featuredCount = 3

// ListCourses returns the catalog, filtered by ?q= when present.
func (h *Handler) ListCourses(c *gin.Context) {
	courses, err := h.catalog.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses})
}

// FeaturedCourses returns the landing-page selection.
func (h *Handler) FeaturedCourses(c *gin.Context) {
	courses, err := h.catalog.Featured(c.Request.Context(), featuredCount)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses})
}

// GetCourse returns one course with its teacher name.
func (h *Handler) GetCourse(c *gin.Context) {
	course, err := h.catalog.Course(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"course": course})
}

// ListTeachers returns all instructor profiles.
func (h *Handler) ListTeachers(c *gin.Context) {
	teachers, err := h.catalog.Teachers(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"teachers": teachers})
}
