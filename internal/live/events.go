package live

import (
	"context"

	"github.com/sitescout/sitescout/internal/search"
)

// Event types pushed over the live socket.
const (
	EventStatus    = "status"
	EventLiveFrame = "live_frame"
	EventResults   = "results"
	EventError     = "error"
)

// Event is the wire envelope for session updates. A session emits any number
// of status and live_frame events followed by exactly one terminal results or
// error event, unless the client disconnects first.
type Event struct {
	Type       string          `json:"type"`
	Message    string          `json:"message,omitempty"`
	Screenshot string          `json:"screenshot,omitempty"`
	Action     string          `json:"action,omitempty"`
	Results    []search.Result `json:"results,omitempty"`
	Answer     string          `json:"ai_answer,omitempty"`
	Done       bool            `json:"done,omitempty"`
}

// Sender delivers events to the client. Implementations must be safe for
// concurrent use; the heartbeat and the session goroutine both send.
type Sender interface {
	Send(ctx context.Context, ev Event) error
}
