// Package session defines persistence for session blackboards.
//
// The engine itself keeps the blackboard in memory; hosts that need
// sessions to survive a restart serialize the board with ToDict and hand
// the resulting tree to a Store. Store implementations must be safe for
// concurrent use.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type (
	// Session is a persisted session snapshot: the serialized blackboard
	// plus bookkeeping timestamps.
	Session struct {
		// ID is the durable identifier of the session, typically minted
		// with NewID.
		ID string
		// Board is the blackboard serialized with ToDict. Load the board
		// back with blackboard.FromDict.
		Board map[string]any
		// TurnCount is the last turn number processed for the session.
		TurnCount int
		// CreatedAt records when the session was first saved.
		CreatedAt time.Time
		// UpdatedAt records the last save.
		UpdatedAt time.Time
	}

	// Store persists session snapshots. Implementations surface their
	// failures to callers; the engine never touches a Store directly.
	Store interface {
		// Save inserts or updates a session snapshot. The store owns the
		// CreatedAt/UpdatedAt stamps: CreatedAt is preserved across
		// updates and UpdatedAt is set on every save.
		Save(ctx context.Context, s Session) error
		// Load returns a session snapshot. Returns ErrNotFound when the
		// session does not exist.
		Load(ctx context.Context, sessionID string) (Session, error)
		// Delete removes a session snapshot. Deleting a missing session
		// is a no-op.
		Delete(ctx context.Context, sessionID string) error
		// List returns the IDs of all stored sessions.
		List(ctx context.Context) ([]string, error)
	}
)

// ErrNotFound indicates the requested session does not exist.
var ErrNotFound = errors.New("session not found")

// NewID mints a durable session identifier.
func NewID() string {
	return uuid.NewString()
}
