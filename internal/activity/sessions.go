package activity

import (
	"sort"
	"time"

	"github.com/V4T54L/activetime/internal/domain"
)

type sessionState struct {
	session domain.Session
	// userSeenAt is the corrected time of the event that supplied session.UserID.
	userSeenAt time.Time
}

// SessionTable folds normalized events into sessions keyed by (subject, session).
// Folding is commutative: any event order yields the same table.
// A SessionTable is not safe for concurrent use.
type SessionTable struct {
	sessions map[domain.SessionKey]*sessionState
}

// NewSessionTable creates an empty table.
func NewSessionTable() *SessionTable {
	return &SessionTable{sessions: make(map[domain.SessionKey]*sessionState)}
}

// Fold widens the session for ev's key to include ev, creating it if needed.
func (t *SessionTable) Fold(ev domain.NormalizedEvent) {
	key := domain.SessionKey{SubjectID: ev.SubjectID, SessionID: ev.SessionID}

	st, ok := t.sessions[key]
	if !ok {
		st = &sessionState{session: domain.Session{
			SubjectID: ev.SubjectID,
			SessionID: ev.SessionID,
			Start:     ev.CorrectedTime,
			End:       ev.CorrectedTime,
		}}
		t.sessions[key] = st
	}

	if ev.CorrectedTime.Before(st.session.Start) {
		st.session.Start = ev.CorrectedTime
	}
	if ev.CorrectedTime.After(st.session.End) {
		st.session.End = ev.CorrectedTime
	}

	// Earliest event carrying a user_id wins; equal times fall back to lexical order.
	if ev.UserID == "" {
		return
	}
	if st.session.UserID == "" ||
		ev.CorrectedTime.Before(st.userSeenAt) ||
		(ev.CorrectedTime.Equal(st.userSeenAt) && ev.UserID < st.session.UserID) {
		st.session.UserID = ev.UserID
		st.userSeenAt = ev.CorrectedTime
	}
}

// Len returns the number of sessions in the table.
func (t *SessionTable) Len() int {
	return len(t.sessions)
}

// Sessions returns a snapshot of all sessions ordered by subject, start and session ID.
func (t *SessionTable) Sessions() []domain.Session {
	out := make([]domain.Session, 0, len(t.sessions))
	for _, st := range t.sessions {
		out = append(out, st.session)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubjectID != out[j].SubjectID {
			return out[i].SubjectID < out[j].SubjectID
		}
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}

// Reset discards every session.
func (t *SessionTable) Reset() {
	clear(t.sessions)
}
