package domain

import "time"

// Outcome values a market can settle to. Binary markets only.
const (
	OutcomeNo  int64 = 0
	OutcomeYes int64 = 1
)

// MarketState is the bot-side lifecycle of a tracked market.
type MarketState string

const (
	MarketPending   MarketState = "pending"
	MarketResolving MarketState = "resolving"
	MarketResolved  MarketState = "resolved"
)

// TrackedMarket is a market the resolution bot polls. Resolved markets are
// terminal and never revisited.
type TrackedMarket struct {
	MarketID   string     `json:"market_id"`
	Resolved   bool       `json:"resolved"`
	Outcome    *int64     `json:"outcome,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Resolution is a settled-market record, produced once per market when the
// settlement call is confirmed. It feeds the tracker, the signal bus, and
// the archiver.
type Resolution struct {
	MarketID   string    `json:"market_id"`
	Outcome    int64     `json:"outcome"`
	ResolvedAt time.Time `json:"resolved_at"`
	Source     string    `json:"source"` // "primary", "secondary", or "hub" for already-resolved
}
