package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bimakw/wallet-activity/internal/domain/entities"
	"github.com/bimakw/wallet-activity/internal/testutil"
)

func TestAddressFetchSession_CursorStates(t *testing.T) {
	s := NewAddressFetchSession(testutil.AliceAddress)
	in := entities.DirectionIncoming

	cur, ok := s.Cursor(in, 0)
	assert.True(t, ok)
	assert.Equal(t, CursorNotStarted, cur.State)

	// page 1 was never fetched
	_, ok = s.Cursor(in, 1)
	assert.False(t, ok)

	s.SetCursor(in, 1, "key-1")
	cur, ok = s.Cursor(in, 1)
	assert.True(t, ok)
	assert.Equal(t, InProgress("key-1"), cur)

	s.MarkComplete(in)
	cur, ok = s.Cursor(in, 2)
	assert.True(t, ok)
	assert.Equal(t, CursorExhausted, cur.State)

	// a completed direction reads as exhausted even on its first page
	cur, ok = s.Cursor(in, 0)
	assert.True(t, ok)
	assert.Equal(t, CursorExhausted, cur.State)

	// the other direction is unaffected
	assert.False(t, s.IsComplete(entities.DirectionOutgoing))
	cur, ok = s.Cursor(entities.DirectionOutgoing, 0)
	assert.True(t, ok)
	assert.Equal(t, CursorNotStarted, cur.State)
}

func TestAddressFetchSession_Stats(t *testing.T) {
	s := NewAddressFetchSession(testutil.AliceAddress)

	s.RecordFetch(entities.DirectionOutgoing, 5)
	s.RecordFetch(entities.DirectionOutgoing, 3)
	s.RecordError(entities.DirectionIncoming)
	s.MarkComplete(entities.DirectionIncoming)

	stats := s.Stats()
	assert.Equal(t, testutil.AliceAddress, stats.Address)
	assert.Equal(t, 2, stats.Outgoing.PagesFetched)
	assert.Equal(t, 8, stats.Outgoing.TransfersFetched)
	assert.False(t, stats.Outgoing.LastFetchAt.IsZero())
	assert.Equal(t, 1, stats.Incoming.Errors)
	assert.True(t, stats.Incoming.Completed)
}

func TestAddressFetchSession_Reset(t *testing.T) {
	s := NewAddressFetchSession(testutil.AliceAddress)
	s.SetCursor(entities.DirectionIncoming, 1, "key")
	s.MarkComplete(entities.DirectionOutgoing)
	s.RecordFetch(entities.DirectionIncoming, 10)

	s.Reset()

	assert.Equal(t, testutil.AliceAddress, s.Address())
	assert.False(t, s.IsComplete(entities.DirectionOutgoing))
	_, ok := s.Cursor(entities.DirectionIncoming, 1)
	assert.False(t, ok)
	assert.Equal(t, entities.DirectionStats{}, s.Stats().Incoming)
}

func TestCursorState_String(t *testing.T) {
	assert.Equal(t, "not_started", CursorNotStarted.String())
	assert.Equal(t, "in_progress", CursorInProgress.String())
	assert.Equal(t, "exhausted", CursorExhausted.String())
}

func TestAddressFetchSession_MarkCompleteAfterKeepsEarlierPages(t *testing.T) {
	s := NewAddressFetchSession(testutil.AliceAddress)
	out := entities.DirectionOutgoing

	s.SetCursor(out, 1, "key-1")
	s.MarkCompleteAfter(out, 2)

	assert.True(t, s.IsComplete(out))

	// page 2 can still be fetched again from the page 1 key
	cur, ok := s.Cursor(out, 1)
	assert.True(t, ok)
	assert.Equal(t, InProgress("key-1"), cur)

	cur, ok = s.Cursor(out, 2)
	assert.True(t, ok)
	assert.Equal(t, CursorExhausted, cur.State)

	// an earlier completion point wins
	s.MarkCompleteAfter(out, 1)
	cur, _ = s.Cursor(out, 1)
	assert.Equal(t, CursorExhausted, cur.State)

	// a later one does not move it back
	s.MarkCompleteAfter(out, 5)
	cur, _ = s.Cursor(out, 1)
	assert.Equal(t, CursorExhausted, cur.State)
}
