package domain

import "context"

// StreamGroupStatus describes one consumer group of the raw event stream.
type StreamGroupStatus struct {
	Name            string `json:"name"`
	Consumers       int64  `json:"consumers"`
	Pending         int64  `json:"pending"`
	Lag             int64  `json:"lag"`
	LastDeliveredID string `json:"last_delivered_id"`
}

// StreamStatus is a point-in-time view of the raw event stream backlog.
type StreamStatus struct {
	Stream string              `json:"stream"`
	Length int64               `json:"length"`
	Groups []StreamGroupStatus `json:"groups"`
	// Spooling is true while the ingest service diverts events to its local spool.
	Spooling bool `json:"spooling"`
}

// StreamInspector reports the state of the raw event stream.
type StreamInspector interface {
	StreamStatus(ctx context.Context) (StreamStatus, error)
}
