package models

import "time"

// MarketSnapshot is one point-in-time result set from the market data provider.
// It is the input to reconciliation and is never persisted on its own.
type MarketSnapshot struct {
	Records    []IPORecord `json:"ipos"`
	Summary    string      `json:"news_summary"`
	CapturedAt time.Time   `json:"captured_at"`
	Source     string      `json:"source"`
	Rejected   int         `json:"rejected"` // candidates dropped during validation
}
