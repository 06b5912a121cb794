package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"academy/internal/queue"
)

// Event is one security-relevant occurrence: a login attempt, a
// registration, an enrollment submission or decision.
type Event struct {
	ID        string    `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Publisher enqueues events for the worker to persist. Publishing never
// fails the calling operation; a dropped audit line is logged and lost.
type Publisher struct {
	q queue.Queue
}

// NewPublisher creates a publisher over the queue.
func NewPublisher(q queue.Queue) *Publisher {
	return &Publisher{q: q}
}

// Publish enqueues one event.
func (p *Publisher) Publish(ctx context.Context, actor, action, outcome, detail string) {
	evt := Event{
		ID:        uuid.NewString(),
		Actor:     actor,
		Action:    action,
		Outcome:   outcome,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(evt)
	if err != nil {
		log.Printf("audit: marshal event: %v", err)
		return
	}
	if err := p.q.Publish(ctx, queue.Message{Type: queue.TypeAudit, Body: body}); err != nil {
		log.Printf("audit: publish event: %v", err)
	}
}

// Decode parses a queue message body back into an event.
func Decode(body []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return Event{}, err
	}
	if evt.ID == "" {
		return Event{}, errors.New("event id missing")
	}
	return evt, nil
}

// Repository persists audit events. The worker writes, admins read.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes one event. Redelivered messages with a known id are dropped.
func (r *Repository) Insert(ctx context.Context, evt Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, actor, action, outcome, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, evt.ID, evt.Actor, evt.Action, evt.Outcome, evt.Detail, evt.CreatedAt)
	return err
}

// Recent returns the latest events for the admin view.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, actor, action, outcome, detail, created_at
		FROM audit_events
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var evt Event
		if err := rows.Scan(&evt.ID, &evt.Actor, &evt.Action, &evt.Outcome, &evt.Detail, &evt.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}
