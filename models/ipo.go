package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// IPOStatus is the lifecycle state reported for one offering window
type IPOStatus string

const (
	StatusOpen       IPOStatus = "OPEN"
	StatusComingSoon IPOStatus = "COMING_SOON"
	StatusClosed     IPOStatus = "CLOSED"
	StatusListed     IPOStatus = "LISTED"
)

// DefaultShareType is assumed when the provider omits the eligibility class
const DefaultShareType = "General Public"

// IsValid reports whether s is one of the known statuses
func (s IPOStatus) IsValid() bool {
	switch s {
	case StatusOpen, StatusComingSoon, StatusClosed, StatusListed:
		return true
	}
	return false
}

// IsAlertable reports whether records in this status are worth an email alert
func (s IPOStatus) IsAlertable() bool {
	return s == StatusOpen || s == StatusComingSoon
}

// IPORecord is one offering window for one company/share-type pair.
// Opening and closing dates are display strings; sources format them inconsistently.
type IPORecord struct {
	ID          uuid.UUID `json:"id"`
	CompanyName string    `json:"company_name"`
	ShareType   string    `json:"share_type"`
	Sector      string    `json:"sector"`
	Units       int64     `json:"units"`
	Price       float64   `json:"price"`
	OpeningDate string    `json:"opening_date"`
	ClosingDate string    `json:"closing_date"`
	Status      IPOStatus `json:"status"`
	Description string    `json:"description"`

	// Extended details
	MinUnits           *int64  `json:"min_units,omitempty"`
	MaxUnits           *int64  `json:"max_units,omitempty"`
	Rating             *string `json:"rating,omitempty"`
	ProjectDescription *string `json:"project_description,omitempty"`
	Risks              *string `json:"risks,omitempty"`
	SourceURL          *string `json:"source_url,omitempty"`

	// Audit fields
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the canonical natural key of the record
func (r IPORecord) Key() RecordKey {
	return NewRecordKey(r.CompanyName, r.ShareType)
}

// RecordKey identifies an offering window: (company, share type), canonicalized
type RecordKey struct {
	Company   string `json:"company"`
	ShareType string `json:"share_type"`
}

var keyWhitespace = regexp.MustCompile(`\s+`)

// NewRecordKey canonicalizes a company name and share type into a natural key.
// Both parts are NFC-normalized, trimmed, whitespace-collapsed and lower-cased.
// Accents are kept. An empty share type counts as DefaultShareType.
func NewRecordKey(company, shareType string) RecordKey {
	if strings.TrimSpace(shareType) == "" {
		shareType = DefaultShareType
	}
	return RecordKey{
		Company:   CanonicalKeyPart(company),
		ShareType: CanonicalKeyPart(shareType),
	}
}

// CanonicalKeyPart applies the natural-key canonicalization to one component
func CanonicalKeyPart(s string) string {
	s = norm.NFC.String(s)
	s = keyWhitespace.ReplaceAllString(strings.TrimSpace(s), " ")
	return strings.ToLower(s)
}

// String renders the key for logs
func (k RecordKey) String() string {
	return k.Company + " / " + k.ShareType
}
