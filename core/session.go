package core

import (
	"context"
	"time"
)

type (
	// Session is the append-only audit record of one participant's stay in
	// a project room. LeftAt is nil while the participant is connected and
	// is stamped exactly once on leave or disconnect.
	Session struct {
		ProjectID  string     `json:"projectId"`
		SessionID  string     `json:"sessionId"`
		UserID     string     `json:"userId"`
		UserName   string     `json:"userName"`
		UserColor  string     `json:"userColor"`
		JoinedAt   time.Time  `json:"joinedAt"`
		LeftAt     *time.Time `json:"leftAt"`
		TotalEdits int        `json:"totalEdits"`
	}

	// SessionStore defines the persistence layer for session audit records.
	// CreateSession is named to coexist with ProjectStore.Create on stores
	// that implement both.
	SessionStore interface {
		CreateSession(ctx context.Context, session *Session) error

		// MarkLeft stamps LeftAt and TotalEdits on the most recent open
		// session for (projectID, userID). A session whose LeftAt is
		// already set is left untouched, which makes the call idempotent.
		MarkLeft(ctx context.Context, projectID, userID string, totalEdits int) error
	}
)
