// Package activity turns raw analytics events into per-subject, per-day
// active time. It holds no I/O: callers feed it events and persist its output.
package activity

import (
	"fmt"
	"time"

	"github.com/V4T54L/activetime/internal/domain"
)

// DefaultOutlierThreshold bounds how far a skew correction may move an event
// away from its client upload time before the server upload time is used instead.
const DefaultOutlierThreshold = 90 * time.Minute

// AdmissionKey selects which identity is checked against the active-subject set.
type AdmissionKey string

const (
	AdmitBySubject AdmissionKey = "subject"
	AdmitByUser    AdmissionKey = "user"
)

// ParseAdmissionKey validates a configured admission key.
func ParseAdmissionKey(s string) (AdmissionKey, error) {
	switch k := AdmissionKey(s); k {
	case AdmitBySubject, AdmitByUser:
		return k, nil
	default:
		return "", fmt.Errorf("unknown admission key %q (want %q or %q)", s, AdmitBySubject, AdmitByUser)
	}
}

// Rejection explains why an event was not admitted. The zero value means admitted.
type Rejection string

const (
	Admitted        Rejection = ""
	RejectNoSession Rejection = "no_session"
	RejectUntracked Rejection = "untracked"
)

// Normalizer applies admission and clock-skew correction to raw events.
type Normalizer struct {
	admission        AdmissionKey
	skewCorrection   bool
	outlierThreshold time.Duration
}

// NormalizerConfig configures a Normalizer.
type NormalizerConfig struct {
	Admission        AdmissionKey
	SkewCorrection   bool
	OutlierThreshold time.Duration
}

// NewNormalizer creates a Normalizer. Zero values default to subject
// admission and DefaultOutlierThreshold.
func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	n := &Normalizer{
		admission:        cfg.Admission,
		skewCorrection:   cfg.SkewCorrection,
		outlierThreshold: cfg.OutlierThreshold,
	}
	if n.admission == "" {
		n.admission = AdmitBySubject
	}
	if n.outlierThreshold <= 0 {
		n.outlierThreshold = DefaultOutlierThreshold
	}
	return n
}

// Normalize admits raw against tracked and corrects its timestamp.
// A non-empty Rejection means the event must be ignored entirely.
func (n *Normalizer) Normalize(raw domain.RawEvent, tracked domain.SubjectSet) (domain.NormalizedEvent, Rejection) {
	if raw.SessionID == domain.NoSession {
		return domain.NormalizedEvent{}, RejectNoSession
	}

	var userID string
	if raw.UserID != nil {
		userID = *raw.UserID
	}

	admissionID := raw.SubjectID
	if n.admission == AdmitByUser {
		admissionID = userID
	}
	if admissionID == "" || !tracked.Contains(admissionID) {
		return domain.NormalizedEvent{}, RejectUntracked
	}

	return domain.NormalizedEvent{
		SubjectID:     raw.SubjectID,
		UserID:        userID,
		SessionID:     raw.SessionID,
		CorrectedTime: n.correctedTime(raw),
	}, Admitted
}

func (n *Normalizer) correctedTime(raw domain.RawEvent) time.Time {
	if !n.skewCorrection || raw.ClientUploadTime == nil || raw.ServerUploadTime == nil {
		return raw.EventTime
	}
	client, server := *raw.ClientUploadTime, *raw.ServerUploadTime

	corrected := raw.EventTime.Add(server.Sub(client))
	if absDuration(client.Sub(corrected)) > n.outlierThreshold {
		return server
	}
	return corrected
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
