package websocket

import (
	"time"

	"filterfinder/internal/search"
)

// Message types sent to progress stream clients
const (
	TypeConnection     = "connection"
	TypeSearchStatus   = "search:status"
	TypeSearchProgress = "search:progress"
	TypeSearchComplete = "search:complete"
	TypeSearchFailed   = "search:failed"
)

// Message is the JSON envelope of every frame sent to clients. Messages with
// a SearchID reach only clients watching every search or that search.
type Message struct {
	Type      string      `json:"type"`
	SearchID  string      `json:"search_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// NewMessage stamps a message with the current time.
func NewMessage(msgType, searchID string, data interface{}) Message {
	return Message{
		Type:      msgType,
		SearchID:  searchID,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// ProgressData is the payload of a search:progress message.
type ProgressData struct {
	Family    string  `json:"family"`
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
	ETA       string  `json:"eta"`
}

// ProgressFromSnapshot converts a search progress snapshot.
func ProgressFromSnapshot(s search.ProgressSnapshot) ProgressData {
	return ProgressData{
		Family:    s.Family,
		Completed: s.Completed,
		Total:     s.Total,
		Percent:   s.Percent,
		ETA:       s.ETAString(),
	}
}

// StatusData is the payload of status, complete and failed messages.
type StatusData struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
