package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NoSession is the session_id Amplitude stamps on server-side events
// ("leave call" markers) that do not belong to a real session.
const NoSession int64 = -1

// amplitudeTimeLayout is the timestamp format used in Amplitude exports. Values are UTC.
const amplitudeTimeLayout = "2006-01-02 15:04:05.999999"

// isoLocalLayout is ISO 8601 without a zone designator, read as UTC.
const isoLocalLayout = "2006-01-02T15:04:05.999999"

// ErrMalformedEvent is returned when a raw event line cannot be decoded.
var ErrMalformedEvent = errors.New("malformed raw event")

// RawEvent is one analytics event as it appears in the input feed.
type RawEvent struct {
	SubjectID        string
	UserID           *string
	SessionID        int64
	EventTime        time.Time
	ClientUploadTime *time.Time
	ServerUploadTime *time.Time
}

// NormalizedEvent is an admitted event with its clock-skew corrected time.
type NormalizedEvent struct {
	SubjectID     string
	UserID        string
	SessionID     int64
	CorrectedTime time.Time
}

// wireEvent mirrors the JSON keys of an Amplitude export line.
type wireEvent struct {
	AmplitudeID      json.RawMessage `json:"amplitude_id"`
	UserID           *string         `json:"user_id"`
	SessionID        *int64          `json:"session_id"`
	EventTime        *string         `json:"event_time"`
	ClientUploadTime *string         `json:"client_upload_time"`
	ServerUploadTime *string         `json:"server_upload_time"`
}

// ParseRawEvent decodes a single NDJSON line into a RawEvent.
// Every decoding failure wraps ErrMalformedEvent.
func ParseRawEvent(line []byte) (RawEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(line, &w); err != nil {
		return RawEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	subjectID, err := parseSubjectID(w.AmplitudeID)
	if err != nil {
		return RawEvent{}, err
	}
	if w.SessionID == nil {
		return RawEvent{}, fmt.Errorf("%w: missing session_id", ErrMalformedEvent)
	}
	if w.EventTime == nil {
		return RawEvent{}, fmt.Errorf("%w: missing event_time", ErrMalformedEvent)
	}
	eventTime, err := ParseTimestamp(*w.EventTime)
	if err != nil {
		return RawEvent{}, fmt.Errorf("%w: event_time: %v", ErrMalformedEvent, err)
	}

	ev := RawEvent{
		SubjectID: subjectID,
		SessionID: *w.SessionID,
		EventTime: eventTime,
	}
	if w.UserID != nil && *w.UserID != "" {
		ev.UserID = w.UserID
	}
	if ev.ClientUploadTime, err = parseOptionalTimestamp(w.ClientUploadTime); err != nil {
		return RawEvent{}, fmt.Errorf("%w: client_upload_time: %v", ErrMalformedEvent, err)
	}
	if ev.ServerUploadTime, err = parseOptionalTimestamp(w.ServerUploadTime); err != nil {
		return RawEvent{}, fmt.Errorf("%w: server_upload_time: %v", ErrMalformedEvent, err)
	}
	return ev, nil
}

// ParseTimestamp accepts Amplitude's export layout, zone-less ISO 8601 and
// RFC 3339. Values without a zone are UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{amplitudeTimeLayout, isoLocalLayout} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
	}
	return t.UTC(), nil
}

func parseOptionalTimestamp(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := ParseTimestamp(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseSubjectID accepts amplitude_id as either a JSON number or a string.
func parseSubjectID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("%w: missing amplitude_id", ErrMalformedEvent)
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return "", fmt.Errorf("%w: invalid amplitude_id", ErrMalformedEvent)
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("%w: invalid amplitude_id", ErrMalformedEvent)
	}
	// Normalise integral values written in exponent form, e.g. 1.2e+10.
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	if f, err := n.Float64(); err == nil && f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10), nil
	}
	return n.String(), nil
}
