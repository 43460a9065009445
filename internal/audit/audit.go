// Package audit records authentication events. Recording is
// fire-and-forget: a failed write is logged and dropped, never surfaced
// to the login flow.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the auth pipeline
const (
	EventLogin          = "auth.login"
	EventLinkCreated    = "auth.link_created"
	EventLinkRemoved    = "auth.link_removed"
	EventSessionRevoked = "auth.session_revoked"
	EventLogout         = "auth.logout"
)

// Event is one recorded authentication event.
type Event struct {
	OccurredAt time.Time
	ID         string
	Type       string
	Provider   string
	IP         string
	UserID     int64
}

// Repository persists audit events.
type Repository interface {
	Insert(ctx context.Context, ev *Event) error
}

// Recorder writes events asynchronously to a repository.
type Recorder struct {
	repo Repository
}

// NewRecorder creates an audit recorder
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

// Record persists an event in the background. The caller's request is
// never blocked or failed by the audit path.
func (r *Recorder) Record(eventType string, userID int64, provider, ip string) {
	ev := &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		UserID:     userID,
		Provider:   provider,
		IP:         ip,
		OccurredAt: time.Now().UTC(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.repo.Insert(ctx, ev); err != nil {
			slog.Warn("failed to record audit event", "type", ev.Type, "user_id", ev.UserID, "error", err)
		}
	}()
}
