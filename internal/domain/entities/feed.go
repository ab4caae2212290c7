package entities

import (
	"time"
)

// Direction is the fetch direction relative to the tracked wallet
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Directions returns both directions in fetch order
func Directions() []Direction {
	return []Direction{DirectionIncoming, DirectionOutgoing}
}

// MergedTransfer is a combined feed entry
type MergedTransfer struct {
	Transfer
	Direction Direction `json:"direction"`
}

// DirectionStats holds fetch statistics for one direction of a session
type DirectionStats struct {
	PagesFetched     int       `json:"pages_fetched"`
	TransfersFetched int       `json:"transfers_fetched"`
	Errors           int       `json:"errors"`
	Completed        bool      `json:"completed"`
	LastFetchAt      time.Time `json:"last_fetch_at,omitempty"`
}

// SessionStats is a snapshot of an address fetch session
type SessionStats struct {
	Address  string         `json:"address"`
	Incoming DirectionStats `json:"incoming"`
	Outgoing DirectionStats `json:"outgoing"`
}

// PagesFetched counts pages applied to the feed per direction
type PagesFetched struct {
	Incoming int `json:"incoming"`
	Outgoing int `json:"outgoing"`
}

// FeedStats is the diagnostic snapshot of a merger
type FeedStats struct {
	Address         string       `json:"address"`
	Initialized     bool         `json:"initialized"`
	CurrentPage     int          `json:"current_page"`
	FeedPosition    int          `json:"feed_position"`
	CombinedSize    int          `json:"combined_size"`
	IncomingTotal   int          `json:"incoming_total"`
	OutgoingTotal   int          `json:"outgoing_total"`
	HasMoreIncoming bool         `json:"has_more_incoming"`
	HasMoreOutgoing bool         `json:"has_more_outgoing"`
	PagesFetched    PagesFetched `json:"pages_fetched"`
	Session         SessionStats `json:"session"`
}

// FeedMetadata accompanies each page served by the merger
type FeedMetadata struct {
	HasMore           bool         `json:"has_more"`
	Exhausted         bool         `json:"exhausted"`
	CurrentPosition   int          `json:"current_position"`
	TotalInMemory     int          `json:"total_in_memory"`
	RemainingInBuffer int          `json:"remaining_in_buffer"`
	PagesFetched      PagesFetched `json:"pages_fetched"`
	Stats             FeedStats    `json:"stats"`
}

// FeedPage is one page of the combined feed
type FeedPage struct {
	Transfers []MergedTransfer `json:"transfers"`
	Metadata  FeedMetadata     `json:"metadata"`
}
