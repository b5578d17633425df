package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fenilmodi00/nepal-ipo-radar/models"
	"github.com/sirupsen/logrus"
)

var errMissingIPOs = errors.New("payload has no ipos array")

// flexibleNumber accepts a JSON number, a numeric string ("Rs. 100", "1,50,000") or null
type flexibleNumber struct {
	value float64
	set   bool
}

func (n *flexibleNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var number float64
	if err := json.Unmarshal(data, &number); err == nil {
		n.value, n.set = number, true
		return nil
	}

	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		n.value, n.set = textUtility.ExtractNumeric(text)
	}
	// Any other shape leaves the field unset; validation rejects the candidate
	return nil
}

// flexibleText accepts a JSON string, number, bool or null
type flexibleText string

func (t *flexibleText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*t = flexibleText(text)
		return nil
	}

	var number float64
	if err := json.Unmarshal(data, &number); err == nil {
		*t = flexibleText(strconv.FormatFloat(number, 'f', -1, 64))
		return nil
	}

	var flag bool
	if err := json.Unmarshal(data, &flag); err == nil {
		*t = flexibleText(strconv.FormatBool(flag))
	}
	return nil
}

// wireSnapshot is the JSON document both providers are asked to produce
type wireSnapshot struct {
	NewsSummary flexibleText `json:"newsSummary"`
	IPOs        *[]wireIPO   `json:"ipos"`
}

type wireIPO struct {
	CompanyName        flexibleText   `json:"companyName"`
	Sector             flexibleText   `json:"sector"`
	ShareType          flexibleText   `json:"shareType"`
	Units              flexibleNumber `json:"units"`
	Price              flexibleNumber `json:"price"`
	OpeningDate        flexibleText   `json:"openingDate"`
	ClosingDate        flexibleText   `json:"closingDate"`
	Status             flexibleText   `json:"status"`
	Description        flexibleText   `json:"description"`
	MinUnits           flexibleNumber `json:"minUnits"`
	MaxUnits           flexibleNumber `json:"maxUnits"`
	Rating             flexibleText   `json:"rating"`
	ProjectDescription flexibleText   `json:"projectDescription"`
	Risks              flexibleText   `json:"risks"`
	SourceURL          flexibleText   `json:"sourceUrl"`
}

var textUtility = NewUtilityService()

// SnapshotParser turns a provider's JSON text into a validated MarketSnapshot
type SnapshotParser struct {
	utility *UtilityService
	logger  *logrus.Entry
}

// NewSnapshotParser creates a parser
func NewSnapshotParser() *SnapshotParser {
	return &SnapshotParser{
		utility: textUtility,
		logger:  logrus.WithField("component", "SnapshotParser"),
	}
}

// StripCodeFences removes markdown code fences and any prose around the JSON object
func StripCodeFences(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```JSON")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	if start, end := strings.Index(content, "{"), strings.LastIndex(content, "}"); start > 0 && end > start {
		content = content[start : end+1]
	} else if start == 0 && end > 0 && end < len(content)-1 {
		content = content[:end+1]
	}
	return content
}

// Parse decodes payload and validates each candidate.
// Invalid candidates are dropped and counted; a payload without an ipos array is an error.
func (p *SnapshotParser) Parse(payload, source, defaultSummary string, capturedAt time.Time) (*models.MarketSnapshot, error) {
	var wire wireSnapshot
	if err := json.Unmarshal([]byte(StripCodeFences(payload)), &wire); err != nil {
		return nil, fmt.Errorf("failed to decode market payload: %w", err)
	}
	if wire.IPOs == nil {
		return nil, errMissingIPOs
	}

	snapshot := &models.MarketSnapshot{
		Records:    make([]models.IPORecord, 0, len(*wire.IPOs)),
		Summary:    p.utility.CleanText(string(wire.NewsSummary)),
		CapturedAt: capturedAt,
		Source:     source,
	}
	if snapshot.Summary == "" {
		snapshot.Summary = defaultSummary
	}

	for index, candidate := range *wire.IPOs {
		record, reason := p.normalizeCandidate(candidate)
		if reason != "" {
			snapshot.Rejected++
			p.logger.WithFields(logrus.Fields{
				"index":        index,
				"company_name": string(candidate.CompanyName),
				"share_type":   string(candidate.ShareType),
				"reason":       reason,
			}).Warn("Dropping invalid IPO candidate")
			continue
		}
		snapshot.Records = append(snapshot.Records, record)
	}

	return snapshot, nil
}

// normalizeCandidate returns the cleaned record, or a non-empty rejection reason
func (p *SnapshotParser) normalizeCandidate(candidate wireIPO) (models.IPORecord, string) {
	companyName := p.utility.CleanText(string(candidate.CompanyName))
	if companyName == "" || p.utility.IsNotAvailable(companyName) {
		return models.IPORecord{}, "missing company name"
	}

	status, ok := p.utility.NormalizeStatus(string(candidate.Status))
	if !ok {
		return models.IPORecord{}, fmt.Sprintf("unknown status %q", string(candidate.Status))
	}

	units := roundUnits(candidate.Units)
	if units <= 0 {
		return models.IPORecord{}, "units must be positive"
	}
	if !candidate.Price.set || candidate.Price.value <= 0 {
		return models.IPORecord{}, "price must be positive"
	}

	shareType := p.utility.CleanText(string(candidate.ShareType))
	if shareType == "" || p.utility.IsNotAvailable(shareType) {
		shareType = models.DefaultShareType
	}

	record := models.IPORecord{
		CompanyName:        companyName,
		ShareType:          shareType,
		Sector:             p.utility.CleanText(string(candidate.Sector)),
		Units:              units,
		Price:              candidate.Price.value,
		OpeningDate:        p.utility.NormalizeTextContent(string(candidate.OpeningDate)),
		ClosingDate:        p.utility.NormalizeTextContent(string(candidate.ClosingDate)),
		Status:             status,
		Description:        p.utility.CleanText(string(candidate.Description)),
		Rating:             p.utility.NormalizeString(string(candidate.Rating)),
		ProjectDescription: p.utility.NormalizeString(string(candidate.ProjectDescription)),
		Risks:              p.utility.NormalizeString(string(candidate.Risks)),
		SourceURL:          normalizeSourceURL(string(candidate.SourceURL)),
	}
	if minUnits := roundUnits(candidate.MinUnits); minUnits > 0 {
		record.MinUnits = &minUnits
	}
	if maxUnits := roundUnits(candidate.MaxUnits); maxUnits > 0 {
		record.MaxUnits = &maxUnits
	}

	return record, ""
}

func roundUnits(n flexibleNumber) int64 {
	if !n.set || n.value <= 0 || n.value > math.MaxInt64/2 {
		return 0
	}
	return int64(math.Round(n.value))
}

// normalizeSourceURL keeps only absolute http(s) links
func normalizeSourceURL(raw string) *string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil
	}
	link := parsed.String()
	return &link
}
