package models

import "time"

// ScanResult is what one reconciliation pass produces.
// Records is always the store's view, never the raw snapshot.
type ScanResult struct {
	Records       []IPORecord `json:"records"`
	Summary       string      `json:"summary"`
	HasNew        bool        `json:"has_new"`
	NewRecords    []IPORecord `json:"new_records"`
	Candidates    int         `json:"candidates"`
	WriteFailures int         `json:"write_failures"`
	Stale         bool        `json:"stale"`
	CapturedAt    time.Time   `json:"captured_at"`
}

// ScanOutcome is the coordinator-level view of a finished (or running) scan
type ScanOutcome struct {
	ScanID            string      `json:"scan_id"`
	StartedAt         time.Time   `json:"started_at"`
	FinishedAt        *time.Time  `json:"finished_at,omitempty"`
	Records           []IPORecord `json:"records"`
	Summary           string      `json:"summary"`
	HasNew            bool        `json:"has_new"`
	NewRecords        []IPORecord `json:"new_records"`
	Notified          int         `json:"notified"`
	WriteFailures     int         `json:"write_failures"`
	Stale             bool        `json:"stale"`
	ScanError         string      `json:"scan_error,omitempty"`
	NotificationError string      `json:"notification_error,omitempty"`
}

// Succeeded reports whether the scan itself completed, regardless of alert delivery
func (o ScanOutcome) Succeeded() bool {
	return o.ScanError == ""
}
