package domain

import "time"

// SessionKey identifies a session. Session IDs are only unique per subject.
type SessionKey struct {
	SubjectID string
	SessionID int64
}

// Session is the time span covered by all events sharing a SessionKey.
type Session struct {
	SubjectID string
	SessionID int64
	UserID    string
	Start     time.Time
	End       time.Time
}

// DayDuration is the active time of one subject on one calendar day.
type DayDuration struct {
	CalendarDay time.Time `json:"calendar_day"` // midnight of the day, in the report location
	SubjectID   string    `json:"subject_id"`
	UserID      string    `json:"user_id"`
	Minutes     float64   `json:"minutes"`
}

// Day formats the calendar day as YYYY-MM-DD.
func (d DayDuration) Day() string {
	return d.CalendarDay.Format(time.DateOnly)
}

// SubjectSet is the set of identifiers admitted into an aggregation pass.
type SubjectSet map[string]struct{}

// NewSubjectSet builds a SubjectSet, ignoring empty identifiers.
func NewSubjectSet(ids ...string) SubjectSet {
	s := make(SubjectSet, len(ids))
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

// Contains reports whether id is tracked.
func (s SubjectSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}
