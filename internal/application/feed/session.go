package feed

import (
	"fmt"
	"sync"
	"time"

	"github.com/bimakw/wallet-activity/internal/domain/entities"
)

// CursorState distinguishes a first page from end of data
type CursorState int

const (
	CursorNotStarted CursorState = iota
	CursorInProgress
	CursorExhausted
)

func (s CursorState) String() string {
	switch s {
	case CursorNotStarted:
		return "not_started"
	case CursorInProgress:
		return "in_progress"
	case CursorExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("cursor_state(%d)", int(s))
	}
}

// PageCursor is the position from which the next page of a direction is read
type PageCursor struct {
	State CursorState
	Key   string
}

// NotStarted is the cursor of a direction whose first page was never fetched
func NotStarted() PageCursor {
	return PageCursor{State: CursorNotStarted}
}

// InProgress continues a direction from key
func InProgress(key string) PageCursor {
	return PageCursor{State: CursorInProgress, Key: key}
}

// Exhausted marks a direction with no more data
func Exhausted() PageCursor {
	return PageCursor{State: CursorExhausted}
}

type directionState struct {
	cursors   map[int]string
	completed bool
	// pages after doneAfter are exhausted once completed is set
	doneAfter int
	stats     entities.DirectionStats
}

func newDirectionState() *directionState {
	return &directionState{cursors: make(map[int]string)}
}

// AddressFetchSession tracks pagination cursors, completion and fetch
// statistics for both directions of one address. It performs no I/O.
type AddressFetchSession struct {
	address string

	mu         sync.RWMutex
	directions map[entities.Direction]*directionState
	now        func() time.Time
}

// NewAddressFetchSession creates an empty session bound to address
func NewAddressFetchSession(address string) *AddressFetchSession {
	s := &AddressFetchSession{address: address, now: time.Now}
	s.clear()
	return s
}

func (s *AddressFetchSession) clear() {
	s.directions = map[entities.Direction]*directionState{
		entities.DirectionIncoming: newDirectionState(),
		entities.DirectionOutgoing: newDirectionState(),
	}
}

// state returns the bookkeeping for dir, creating it for unknown directions
// so callers never dereference nil. Caller must hold the write lock.
func (s *AddressFetchSession) state(dir entities.Direction) *directionState {
	st, ok := s.directions[dir]
	if !ok {
		st = newDirectionState()
		s.directions[dir] = st
	}
	return st
}

// Address returns the address the session is bound to
func (s *AddressFetchSession) Address() string {
	return s.address
}

// Cursor resolves the cursor stored after page was fetched. Pages past the
// completion point are Exhausted; otherwise page 0 is NotStarted. ok is false
// when no key exists for a page before the completion point, meaning that
// page was never fetched.
func (s *AddressFetchSession) Cursor(dir entities.Direction, page int) (PageCursor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.directions[dir]
	if !ok {
		return NotStarted(), page <= 0
	}
	if st.completed && page >= st.doneAfter {
		return Exhausted(), true
	}
	if key, ok := st.cursors[page]; ok {
		return InProgress(key), true
	}
	if page <= 0 {
		return NotStarted(), true
	}
	return PageCursor{}, false
}

// SetCursor stores the key to continue from after page
func (s *AddressFetchSession) SetCursor(dir entities.Direction, page int, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state(dir).cursors[page] = key
}

// MarkComplete flags dir as having no more data at all
func (s *AddressFetchSession) MarkComplete(dir entities.Direction) {
	s.MarkCompleteAfter(dir, 0)
}

// MarkCompleteAfter flags dir as having no data beyond page. Cursors up to
// page stay readable so that page can be fetched again.
func (s *AddressFetchSession) MarkCompleteAfter(dir entities.Direction, page int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(dir)
	if st.completed && st.doneAfter <= page {
		return
	}
	st.completed = true
	st.doneAfter = page
	st.stats.Completed = true
}

// IsComplete reports whether dir has no more data
func (s *AddressFetchSession) IsComplete(dir entities.Direction) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.directions[dir]
	return ok && st.completed
}

// RecordFetch counts a fetched page of count transfers
func (s *AddressFetchSession) RecordFetch(dir entities.Direction, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(dir)
	st.stats.PagesFetched++
	st.stats.TransfersFetched += count
	st.stats.LastFetchAt = s.now()
}

// RecordError counts a failed page fetch
func (s *AddressFetchSession) RecordError(dir entities.Direction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state(dir).stats.Errors++
}

// Reset clears cursors, completion flags and stats. The address binding is kept.
func (s *AddressFetchSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear()
}

// Stats returns a snapshot of the session statistics
func (s *AddressFetchSession) Stats() entities.SessionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := entities.SessionStats{Address: s.address}
	if st, ok := s.directions[entities.DirectionIncoming]; ok {
		stats.Incoming = st.stats
	}
	if st, ok := s.directions[entities.DirectionOutgoing]; ok {
		stats.Outgoing = st.stats
	}
	return stats
}
