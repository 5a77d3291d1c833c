// Package live streams crawl and search progress over a websocket session.
// A session owns one browser driver; the heartbeat goroutine reads shared
// state through atomics only and is joined before the driver closes.
package live

import "sync/atomic"

// State is the shared session state between the session goroutine and the
// heartbeat. Writers never hold it across I/O; a slightly stale read on the
// heartbeat side is acceptable.
type State struct {
	action    atomic.Value // string
	cancelled atomic.Bool
}

// NewState returns a State with an empty current action.
func NewState() *State {
	s := &State{}
	s.action.Store("")
	return s
}

// SetAction records what the session is currently doing.
func (s *State) SetAction(action string) {
	s.action.Store(action)
}

// Action returns the most recently recorded action.
func (s *State) Action() string {
	v, _ := s.action.Load().(string)
	return v
}

// Cancel flags the session for cooperative shutdown.
func (s *State) Cancel() {
	s.cancelled.Store(true)
}

// Cancelled reports whether the session has been asked to stop.
func (s *State) Cancelled() bool {
	return s.cancelled.Load()
}
