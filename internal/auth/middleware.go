package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// CookieName is the session token cookie set on login and registration.
const CookieName = "academy_session"

// CSRFCookieName is the client-readable cookie carrying the CSRF token.
const CSRFCookieName = "academy_csrf"

// CSRFHeader is the request header that must echo the CSRF token on
// mutating methods.
const CSRFHeader = "X-CSRF-Token"

const sessionKey = "session"

// RequireSession validates the session cookie, looks up the server-side
// record, and stores it in the request context. A revoked or expired
// session fails here even when the token signature is still good.
func RequireSession(store SessionStore, signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, err := c.Cookie(CookieName)
		if err != nil || tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthenticated.Error()})
			return
		}
		claims, err := ParseToken(tokenStr, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthenticated.Error()})
			return
		}
		sess, err := store.Get(c.Request.Context(), claims.SessionID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthenticated.Error()})
			return
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

// Authorize is the role check behind every admin-only route: nil when the
// session may act in the required role, ErrUnauthenticated for an empty
// session, ErrForbidden otherwise. Pure, no mutation.
func Authorize(s Session, requiredRole string) error {
	if s.ID == "" {
		return ErrUnauthenticated
	}
	if s.Role != requiredRole {
		return ErrForbidden
	}
	return nil
}

// RequireRole rejects requests whose session fails Authorize. Must run
// after RequireSession.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, _ := SessionFrom(c)
		switch err := Authorize(sess, role); err {
		case nil:
			c.Next()
		case ErrForbidden:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": ErrForbidden.Error()})
		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthenticated.Error()})
		}
	}
}

// RequireCSRF compares the CSRF header against the session token on
// mutating methods. Reads pass through untouched.
func RequireCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		sess, ok := SessionFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthenticated.Error()})
			return
		}
		header := c.GetHeader(CSRFHeader)
		if header == "" || subtle.ConstantTimeCompare([]byte(header), []byte(sess.CSRFToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "csrf token mismatch"})
			return
		}
		c.Next()
	}
}

// SessionFrom returns the session stored by RequireSession.
func SessionFrom(c *gin.Context) (Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return Session{}, false
	}
	sess, ok := v.(Session)
	return sess, ok
}
