package accounts

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"academy/internal/auth"
	"academy/internal/ratelimit"
)

// Roles assigned to users. Registration always yields a student; admin
// accounts come from seeding.
const (
	RoleAdmin   = "admin"
	RoleStudent = "student"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 80
	minPasswordLen = 6
)

var (
	// ErrDuplicateUsername is returned when the username is already taken.
	ErrDuplicateUsername = errors.New("username already taken")
	// ErrInvalidUsername is returned when the username fails length checks.
	ErrInvalidUsername = errors.New("username must be 3 to 80 characters")
	// ErrWeakPassword is returned when the password fails policy.
	ErrWeakPassword = errors.New("password must be at least 6 characters")
	// ErrInvalidCredentials is deliberately identical for unknown usernames
	// and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrAccountDisabled is returned on login to a deactivated account.
	ErrAccountDisabled = errors.New("account has been deactivated")
	// ErrSelfDeletion is returned when an admin tries to delete themselves.
	ErrSelfDeletion = errors.New("cannot delete own account")
	// ErrNotFound is returned when the user id is unknown.
	ErrNotFound = errors.New("user not found")
)

// User is a registered account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store is the slice of the repository the service needs.
type Store interface {
	Insert(ctx context.Context, u User) (User, error)
	ByUsername(ctx context.Context, username string) (*User, error)
	ByID(ctx context.Context, id string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Delete(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, hash string) error
}

// AuditLog records security-relevant activity without failing the caller.
type AuditLog interface {
	Publish(ctx context.Context, actor, action, outcome, detail string)
}

// Service implements registration and login with per-identity hourly limits.
type Service struct {
	store         Store
	limiter       *ratelimit.Limiter
	audit         AuditLog
	registerLimit int
	loginLimit    int
}

// NewService creates the accounts service. Non-positive limits fall back to
// 5 registrations per client and 10 login failures per username per hour.
func NewService(store Store, limiter *ratelimit.Limiter, audit AuditLog, registerLimit, loginLimit int) *Service {
	if registerLimit <= 0 {
		registerLimit = 5
	}
	if loginLimit <= 0 {
		loginLimit = 10
	}
	return &Service{store: store, limiter: limiter, audit: audit, registerLimit: registerLimit, loginLimit: loginLimit}
}

// Register creates a student account. clientIP keys the hourly registration
// limit since no identity exists before the account does.
func (s *Service) Register(ctx context.Context, username, password, clientIP string) (User, error) {
	if err := s.limiter.Allow(ctx, ratelimit.ActionRegister, clientIP, s.registerLimit); err != nil {
		return User{}, err
	}
	username = strings.TrimSpace(username)
	if l := len(username); l < minUsernameLen || l > maxUsernameLen {
		return User{}, ErrInvalidUsername
	}
	if len(password) < minPasswordLen {
		return User{}, ErrWeakPassword
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return User{}, err
	}
	u, err := s.store.Insert(ctx, User{Username: username, PasswordHash: hash, Role: RoleStudent, IsActive: true})
	if err != nil {
		return User{}, err
	}
	s.audit.Publish(ctx, username, "account.register", "ok", "")
	return u, nil
}

// Login verifies credentials. The failure counter is consulted before any
// hash work, so a rate-limited username costs no bcrypt comparison, and
// unknown usernames answer exactly like wrong passwords.
func (s *Service) Login(ctx context.Context, username, password string) (User, error) {
	username = strings.TrimSpace(username)
	limited, err := s.limiter.AtLimit(ctx, ratelimit.ActionLogin, username, s.loginLimit)
	if err != nil {
		return User{}, err
	}
	if limited {
		s.audit.Publish(ctx, username, "account.login", "rate_limited", "")
		return User{}, ratelimit.ErrRateLimited
	}
	u, err := s.store.ByUsername(ctx, username)
	if err != nil {
		return User{}, err
	}
	if u == nil || !auth.VerifyPassword(u.PasswordHash, password) {
		if err := s.limiter.Record(ctx, ratelimit.ActionLogin, username); err != nil {
			log.Printf("accounts: record login failure: %v", err)
		}
		s.audit.Publish(ctx, username, "account.login", "failed", "")
		return User{}, ErrInvalidCredentials
	}
	if !u.IsActive {
		s.audit.Publish(ctx, username, "account.login", "disabled", "")
		return User{}, ErrAccountDisabled
	}
	s.audit.Publish(ctx, username, "account.login", "ok", "")
	return *u, nil
}

// ChangePassword verifies the current password before storing a new hash.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	u, err := s.store.ByID(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrNotFound
	}
	if !auth.VerifyPassword(u.PasswordHash, current) {
		return ErrInvalidCredentials
	}
	if len(next) < minPasswordLen {
		return ErrWeakPassword
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	s.audit.Publish(ctx, u.Username, "account.password_change", "ok", "")
	return nil
}

// Get returns one account by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	u, err := s.store.ByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if u == nil {
		return User{}, ErrNotFound
	}
	return *u, nil
}

// List returns every account for the admin panel.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.store.List(ctx)
}

// Delete removes an account, the only way a user is destroyed. Admins
// cannot delete themselves.
func (s *Service) Delete(ctx context.Context, actorID, userID string) error {
	if actorID == userID {
		return ErrSelfDeletion
	}
	if err := s.store.Delete(ctx, userID); err != nil {
		return err
	}
	s.audit.Publish(ctx, actorID, "account.delete", "ok", userID)
	return nil
}
