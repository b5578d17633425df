package services

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fenilmodi00/nepal-ipo-radar/models"
	"github.com/sirupsen/logrus"
)

var (
	whitespaceRegex   = regexp.MustCompile(`\s+`)
	currencyRegex     = regexp.MustCompile(`(?i)(rs\.?|npr|रु\.?|[₹$€£¥])`)
	numberRegex       = regexp.MustCompile(`-?\d+\.?\d*`)
	printableRegex    = regexp.MustCompile(`[^\x20-\x7E\p{L}\p{N}\p{P}\p{S}\p{M}]`)
	devanagariDigits  = strings.NewReplacer("०", "0", "१", "1", "२", "2", "३", "3", "४", "4", "५", "5", "६", "6", "७", "7", "८", "8", "९", "9")
	statusSeparators  = strings.NewReplacer("_", " ", "-", " ")
	skippedHTMLBlocks = map[string]bool{"script": true, "style": true, "head": true}
)

// statusAliases maps provider wording onto the four lifecycle states
var statusAliases = map[string]models.IPOStatus{
	"open":        models.StatusOpen,
	"live":        models.StatusOpen,
	"active":      models.StatusOpen,
	"coming soon": models.StatusComingSoon,
	"upcoming":    models.StatusComingSoon,
	"approved":    models.StatusComingSoon,
	"closed":      models.StatusClosed,
	"listed":      models.StatusListed,
}

// UtilityService provides text cleaning and numeric parsing for provider payloads
type UtilityService struct{}

// NewUtilityService creates a new utility service instance
func NewUtilityService() *UtilityService {
	return &UtilityService{}
}

// NormalizeTextContent trims and collapses whitespace
func (s *UtilityService) NormalizeTextContent(text string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(text, " "))
}

// CleanText strips HTML markup and entities from LLM free text and normalizes whitespace.
// Text nodes are joined with spaces so block elements do not run together.
func (s *UtilityService) CleanText(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	if strings.ContainsAny(text, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"component": "UtilityService",
				"error":     err,
			}).Debug("Failed to parse text as HTML, keeping raw text")
		} else {
			var parts []string
			collectText(doc.Selection, &parts)
			text = strings.Join(parts, " ")
		}
	}

	text = printableRegex.ReplaceAllString(text, "")
	return s.NormalizeTextContent(text)
}

func collectText(selection *goquery.Selection, parts *[]string) {
	selection.Contents().Each(func(_ int, node *goquery.Selection) {
		name := goquery.NodeName(node)
		switch {
		case name == "#text":
			if t := strings.TrimSpace(node.Text()); t != "" {
				*parts = append(*parts, t)
			}
		case skippedHTMLBlocks[name]:
		default:
			collectText(node, parts)
		}
	})
}

// ExtractNumeric extracts numeric value from text with currency symbols and formatting.
// Handles "Rs. 100", "1,50,000" (lakh grouping) and Devanagari digits.
// Returns false when no number is present.
func (s *UtilityService) ExtractNumeric(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	if text == "" || s.IsNotAvailable(text) {
		return 0, false
	}

	text = devanagariDigits.Replace(text)
	text = currencyRegex.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, ",", "")
	text = strings.ReplaceAll(text, " ", "")

	match := numberRegex.FindString(text)
	if match == "" {
		return 0, false
	}

	value, err := strconv.ParseFloat(match, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}

	return value, true
}

// NormalizeString normalizes empty strings to nil
// Treats empty, whitespace-only and placeholder strings as nil
func (s *UtilityService) NormalizeString(str string) *string {
	str = s.CleanText(str)
	if str == "" || s.IsNotAvailable(str) {
		return nil
	}
	return &str
}

// IsNotAvailable checks if a value indicates "not available"
// Detects placeholders like "TBA", "To Be Announced", "N/A", etc.
func (s *UtilityService) IsNotAvailable(text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))

	notAvailableValues := []string{
		"tba",
		"to be announced",
		"to be decided",
		"tbd",
		"n/a",
		"na",
		"not available",
		"not applicable",
		"not disclosed",
		"awaited",
		"pending",
		"will be updated",
		"yet to be announced",
		"--",
		"-",
		"",
		"nil",
		"null",
		"unknown",
	}

	for _, na := range notAvailableValues {
		if text == na {
			return true
		}
	}

	return false
}

// NormalizeStatus maps provider status wording to a known status
func (s *UtilityService) NormalizeStatus(raw string) (models.IPOStatus, bool) {
	candidate := models.IPOStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if candidate.IsValid() {
		return candidate, true
	}

	alias := strings.ToLower(statusSeparators.Replace(raw))
	alias = s.NormalizeTextContent(alias)
	status, ok := statusAliases[alias]
	return status, ok
}
