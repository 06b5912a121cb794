package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"academy/internal/accounts"
	"academy/internal/auth"
	"academy/internal/metrics"
	"academy/internal/ratelimit"
)

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register creates a student account and logs it in straight away.
func (h *Handler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := h.accounts.Register(c.Request.Context(), req.Username, req.Password, c.ClientIP())
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.issueSession(c, user); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// Login verifies credentials and sets the session cookies.
func (h *Handler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := h.accounts.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues(loginOutcome(err)).Inc()
		h.fail(c, err)
		return
	}
	metrics.LoginAttempts.WithLabelValues("ok").Inc()
	if err := h.issueSession(c, user); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func loginOutcome(err error) string {
	switch {
	case errors.Is(err, ratelimit.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, accounts.ErrInvalidCredentials):
		return "failed"
	case errors.Is(err, accounts.ErrAccountDisabled):
		return "disabled"
	default:
		return "error"
	}
}

// Logout deletes the server-side session record and clears both cookies.
// The token itself may still be unexpired, but without the record it is dead.
func (h *Handler) Logout(c *gin.Context) {
	sess, ok := auth.SessionFrom(c)
	if ok {
		if err := h.sessions.Delete(c.Request.Context(), sess.ID); err != nil {
			h.fail(c, err)
			return
		}
	}
	h.clearSessionCookies(c)
	c.Status(http.StatusNoContent)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// ChangePassword re-checks the current password before storing a new hash.
func (h *Handler) ChangePassword(c *gin.Context) {
	sess, _ := auth.SessionFrom(c)
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.accounts.ChangePassword(c.Request.Context(), sess.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// issueSession creates a session record and sets the token cookie plus the
// readable CSRF cookie. Both expire with the session.
func (h *Handler) issueSession(c *gin.Context, user accounts.User) error {
	sess, err := auth.NewSession(user.ID, user.Username, user.Role, h.cfg.SessionTTL)
	if err != nil {
		return err
	}
	if err := h.sessions.Put(c.Request.Context(), sess); err != nil {
		return err
	}
	token, err := auth.IssueToken(sess.ID, sess.Role, h.cfg.SessionIssuer, h.cfg.SessionSigningKey, sess.ExpiresAt)
	if err != nil {
		return err
	}
	maxAge := int(time.Until(sess.ExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.CookieName, token, maxAge, "/", "", h.cfg.CookieSecure, true)
	c.SetCookie(auth.CSRFCookieName, sess.CSRFToken, maxAge, "/", "", h.cfg.CookieSecure, false)
	return nil
}

func (h *Handler) clearSessionCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.CookieName, "", -1, "/", "", h.cfg.CookieSecure, true)
	c.SetCookie(auth.CSRFCookieName, "", -1, "/", "", h.cfg.CookieSecure, false)
}
