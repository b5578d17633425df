package services

import (
	"fmt"
	"time"

	"github.com/fenilmodi00/nepal-ipo-radar/models"
	"github.com/sirupsen/logrus"
)

// RecordAuditLogger writes structured audit entries for record writes made by a scan
type RecordAuditLogger struct {
	serviceName string
}

// NewRecordAuditLogger creates a new audit logger
func NewRecordAuditLogger() *RecordAuditLogger {
	return &RecordAuditLogger{
		serviceName: "reconciliation-engine",
	}
}

// AuditEntry represents a single audit log entry
type AuditEntry struct {
	Timestamp   time.Time              `json:"timestamp"`
	ServiceName string                 `json:"service_name"`
	Operation   string                 `json:"operation"`
	EntityType  string                 `json:"entity_type"`
	EntityID    string                 `json:"entity_id"`
	ScanID      string                 `json:"scan_id,omitempty"`
	Changes     map[string]interface{} `json:"changes,omitempty"`
	Success     bool                   `json:"success"`
	ErrorMsg    *string                `json:"error_msg,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// LogRecordCreation logs the first sighting of an offering window
func (a *RecordAuditLogger) LogRecordCreation(scanID string, record models.IPORecord, err error) {
	a.logAuditEntry(AuditEntry{
		Timestamp:   time.Now(),
		ServiceName: a.serviceName,
		Operation:   "CREATE",
		EntityType:  "IPO",
		EntityID:    record.Key().String(),
		ScanID:      scanID,
		Success:     err == nil,
		ErrorMsg:    errorMessage(err),
		Metadata: map[string]interface{}{
			"company_name": record.CompanyName,
			"share_type":   record.ShareType,
			"status":       record.Status,
		},
	})
}

// LogRecordUpdate logs a refresh of a known record with a field-level diff.
// before is nil when the prior state was not loaded.
func (a *RecordAuditLogger) LogRecordUpdate(scanID string, before *models.IPORecord, after models.IPORecord, err error) {
	var changes map[string]interface{}
	if before != nil {
		changes = a.calculateRecordChanges(*before, after)
	}

	a.logAuditEntry(AuditEntry{
		Timestamp:   time.Now(),
		ServiceName: a.serviceName,
		Operation:   "UPDATE",
		EntityType:  "IPO",
		EntityID:    after.Key().String(),
		ScanID:      scanID,
		Changes:     changes,
		Success:     err == nil,
		ErrorMsg:    errorMessage(err),
		Metadata: map[string]interface{}{
			"company_name":  after.CompanyName,
			"share_type":    after.ShareType,
			"status":        after.Status,
			"changes_count": len(changes),
		},
	})
}

// LogBatchOperation logs the write summary of one scan
func (a *RecordAuditLogger) LogBatchOperation(scanID string, totalCount, successCount, failureCount int, errors []string) {
	entry := AuditEntry{
		Timestamp:   time.Now(),
		ServiceName: a.serviceName,
		Operation:   "BATCH_RECONCILE",
		EntityType:  "IPO",
		EntityID:    "BATCH",
		ScanID:      scanID,
		Success:     failureCount == 0,
		Metadata: map[string]interface{}{
			"total_count":   totalCount,
			"success_count": successCount,
			"failure_count": failureCount,
			"errors":        errors,
		},
	}
	if totalCount > 0 {
		entry.Metadata["success_rate"] = float64(successCount) / float64(totalCount)
	}

	if failureCount > 0 {
		errorSummary := fmt.Sprintf("Batch operation had %d failures out of %d total operations", failureCount, totalCount)
		entry.ErrorMsg = &errorSummary
	}

	a.logAuditEntry(entry)
}

// calculateRecordChanges compares two records and returns the changed fields
func (a *RecordAuditLogger) calculateRecordChanges(before, after models.IPORecord) map[string]interface{} {
	changes := make(map[string]interface{})
	change := func(field string, b, c interface{}) {
		changes[field] = map[string]interface{}{"before": b, "after": c}
	}

	if before.CompanyName != after.CompanyName {
		change("company_name", before.CompanyName, after.CompanyName)
	}
	if before.Status != after.Status {
		change("status", before.Status, after.Status)
	}
	if before.Units != after.Units {
		change("units", before.Units, after.Units)
	}
	if before.Price != after.Price {
		change("price", before.Price, after.Price)
	}
	if before.OpeningDate != after.OpeningDate {
		change("opening_date", before.OpeningDate, after.OpeningDate)
	}
	if before.ClosingDate != after.ClosingDate {
		change("closing_date", before.ClosingDate, after.ClosingDate)
	}
	if before.Sector != after.Sector {
		change("sector", before.Sector, after.Sector)
	}
	if !a.compareStringPointers(before.Rating, after.Rating) {
		change("rating", before.Rating, after.Rating)
	}

	return changes
}

// compareStringPointers compares two string pointers
func (a *RecordAuditLogger) compareStringPointers(str1, str2 *string) bool {
	if str1 == nil && str2 == nil {
		return true
	}
	if str1 == nil || str2 == nil {
		return false
	}
	return *str1 == *str2
}

// logAuditEntry logs the audit entry using structured logging
func (a *RecordAuditLogger) logAuditEntry(entry AuditEntry) {
	logFields := logrus.Fields{
		"audit_timestamp": entry.Timestamp,
		"service_name":    entry.ServiceName,
		"operation":       entry.Operation,
		"entity_type":     entry.EntityType,
		"entity_id":       entry.EntityID,
		"success":         entry.Success,
	}

	if entry.ScanID != "" {
		logFields["scan_id"] = entry.ScanID
	}

	if entry.ErrorMsg != nil {
		logFields["error_msg"] = *entry.ErrorMsg
	}

	if len(entry.Changes) > 0 {
		logFields["changes"] = entry.Changes
	}

	for key, value := range entry.Metadata {
		logFields["meta_"+key] = value
	}

	if entry.Success {
		logrus.WithFields(logFields).Debug("Audit log entry")
	} else {
		logrus.WithFields(logFields).Warn("Audit log entry - operation failed")
	}
}

func errorMessage(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	return &msg
}
