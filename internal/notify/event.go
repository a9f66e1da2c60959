package notify

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidEvent = errors.New("invalid notification event")

// Kind defines the category of a notification
type Kind string

const (
	KindChatMessage    Kind = "CHAT_MESSAGE"    // new chat message for the recipient
	KindFavoriteUpdate Kind = "FAVORITE_UPDATE" // status change on a favorited listing
	KindPostDeleted    Kind = "POST_DELETED"    // a community post was removed
	KindCommentReply   Kind = "COMMENT_REPLY"   // reply to the recipient's comment
)

// Valid reports whether k is one of the known notification kinds
func (k Kind) Valid() bool {
	switch k {
	case KindChatMessage, KindFavoriteUpdate, KindPostDeleted, KindCommentReply:
		return true
	}
	return false
}

// Event is a transient notification-creation command produced by business
// logic and consumed exactly once by the dispatcher. It is never persisted
// itself; a Notification row is created from it by the worker pipeline.
type Event struct {
	UserID    string    `json:"user_id"`
	Kind      Kind      `json:"kind"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	RefType   string    `json:"ref_type,omitempty"` // optional related entity, set together with RefID
	RefID     int64     `json:"ref_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks the event is well-formed before it may be enqueued.
// All failures wrap ErrInvalidEvent so callers can match with errors.Is.
func (e Event) Validate() error {
	if e.UserID == "" {
		return fmt.Errorf("%w: missing recipient user id", ErrInvalidEvent)
	}
	if _, err := uuid.Parse(e.UserID); err != nil {
		return fmt.Errorf("%w: malformed recipient user id %q", ErrInvalidEvent, e.UserID)
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	}
	// ref type and id are nullable together
	if (e.RefType == "") != (e.RefID == 0) {
		return fmt.Errorf("%w: ref_type and ref_id must be set together", ErrInvalidEvent)
	}
	return nil
}
