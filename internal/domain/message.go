package domain

import "time"

// Message context tags, mirrored in the wire envelopes.
const (
	ContextRegistration = "registration"
	ContextOpening      = "opening"
	ContextClearing     = "clearing"
	ContextSubmitBids   = "submit_bids"
	ContextGetUnmatched = "get_unmatched"
)

// Sink message types consumed by the persistence collaborator.
const (
	SinkStoreOrderbook     = "store_order_book"
	SinkStoreMarketResults = "store_market_results"
)

// Envelope is a logical message between actors. Payload is one of the typed
// messages below; the transport preserves per-sender ordering.
type Envelope struct {
	From    AgentID
	To      AgentID
	Payload any
}

// Registration asks a market role to register the sender as a participant.
type Registration struct {
	Market string
}

// BidSubmission carries a batch of raw orders from one participant. The batch
// is atomic: one invalid order discards the whole submission.
type BidSubmission struct {
	Market string
	Orders Orderbook
}

// OpeningNotice is broadcast to every registered participant when a period
// opens.
type OpeningNotice struct {
	Market   string
	Start    time.Time
	Stop     time.Time
	Products []Product
}

// ClearingNotice delivers one participant's share of a clearing pass. Both
// books may be empty; every registered participant receives exactly one
// notice per period.
type ClearingNotice struct {
	Market   string
	Accepted Orderbook
	Rejected Orderbook
}

// Rejection tells a submitter that its batch failed validation.
type Rejection struct {
	Market  string
	Message string
	Reason  string
}

// UnmatchedQuery requests the currently resting orders matching the filter;
// a nil filter returns the full resting book.
type UnmatchedQuery struct {
	Market string
	Filter *ProductFilter
}

// UnmatchedReply answers an UnmatchedQuery.
type UnmatchedReply struct {
	Market string
	Orders Orderbook
}

// StoreOrderbook is the sink message carrying a period's partitioned book.
type StoreOrderbook struct {
	Type     string // SinkStoreOrderbook
	Sender   string // market name
	Accepted Orderbook
	Rejected Orderbook
	Period   time.Time
}

// StoreMarketResults is the sink message carrying per-product clearing
// records.
type StoreMarketResults struct {
	Type    string // SinkStoreMarketResults
	Sender  string
	Records []ClearingRecord
	Period  time.Time
}
