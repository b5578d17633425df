package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/fenilmodi00/nepal-ipo-radar/models"
	"github.com/fenilmodi00/nepal-ipo-radar/shared"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const duplicateSubscriberMessage = "This email is already subscribed."

const ipoColumns = `id, company_name, share_type, sector, units, price,
	opening_date, closing_date, status, description,
	min_units, max_units, rating, project_description, risks, source_url,
	created_at, updated_at`

// PostgresRecordStore persists IPO records and subscribers in Postgres
type PostgresRecordStore struct {
	db       *sql.DB
	executor *QueryExecutor
	metrics  *shared.ServiceMetrics
	logger   *logrus.Entry
}

// NewPostgresRecordStore wraps an open connection pool
func NewPostgresRecordStore(db *sql.DB, maxRetries int) *PostgresRecordStore {
	return &PostgresRecordStore{
		db:       db,
		executor: NewQueryExecutor(DefaultRetryConfig(maxRetries)),
		metrics:  shared.NewServiceMetrics("record_store"),
		logger:   logrus.WithField("component", "PostgresRecordStore"),
	}
}

// Metrics returns the store's operation metrics
func (s *PostgresRecordStore) Metrics() *shared.ServiceMetrics {
	return s.metrics
}

// ListAll returns every stored record, newest first
func (s *PostgresRecordStore) ListAll(ctx context.Context) ([]models.IPORecord, error) {
	startTime := time.Now()
	query := `SELECT ` + ipoColumns + ` FROM ipos ORDER BY created_at DESC, company_key ASC, share_type_key ASC`

	var records []models.IPORecord
	err := s.executor.ExecuteWithRetry(ctx, "list_all", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		records = make([]models.IPORecord, 0)
		for rows.Next() {
			record, err := scanRecord(rows)
			if err != nil {
				return err
			}
			records = append(records, *record)
		}
		return rows.Err()
	})
	s.metrics.RecordRequest(err == nil, time.Since(startTime))

	if err != nil {
		return nil, shared.NewStoreError("QUERY_FAILED", "failed to list IPO records", "list_all", err)
	}
	return records, nil
}

// Exists reports whether a record with the given natural key is stored
func (s *PostgresRecordStore) Exists(ctx context.Context, key models.RecordKey) (bool, error) {
	startTime := time.Now()
	query := `SELECT EXISTS (SELECT 1 FROM ipos WHERE company_key = $1 AND share_type_key = $2)`

	var exists bool
	err := s.executor.ExecuteWithRetry(ctx, "exists", func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, query, key.Company, key.ShareType).Scan(&exists)
	})
	s.metrics.RecordRequest(err == nil, time.Since(startTime))

	if err != nil {
		return false, shared.NewStoreError("QUERY_FAILED", "failed to check record existence", "exists", err).
			WithDetails(map[string]string{"key": key.String()})
	}
	return exists, nil
}

// Upsert inserts the record or overwrites the stored one with the same natural key.
// The stored id and created_at survive an update; updated_at is refreshed.
func (s *PostgresRecordStore) Upsert(ctx context.Context, record models.IPORecord) error {
	startTime := time.Now()
	key := record.Key()

	shareType := strings.TrimSpace(record.ShareType)
	if shareType == "" {
		shareType = models.DefaultShareType
	}
	id := record.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	query := `
		INSERT INTO ipos (
			id, company_name, share_type, company_key, share_type_key,
			sector, units, price, opening_date, closing_date, status, description,
			min_units, max_units, rating, project_description, risks, source_url,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18,
			NOW(), NOW()
		)
		ON CONFLICT (company_key, share_type_key) DO UPDATE SET
			company_name = EXCLUDED.company_name,
			share_type = EXCLUDED.share_type,
			sector = EXCLUDED.sector,
			units = EXCLUDED.units,
			price = EXCLUDED.price,
			opening_date = EXCLUDED.opening_date,
			closing_date = EXCLUDED.closing_date,
			status = EXCLUDED.status,
			description = EXCLUDED.description,
			min_units = EXCLUDED.min_units,
			max_units = EXCLUDED.max_units,
			rating = EXCLUDED.rating,
			project_description = EXCLUDED.project_description,
			risks = EXCLUDED.risks,
			source_url = EXCLUDED.source_url,
			updated_at = NOW()
	`

	err := s.executor.ExecuteWithRetry(ctx, "upsert", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query,
			id, strings.TrimSpace(record.CompanyName), shareType, key.Company, key.ShareType,
			record.Sector, record.Units, record.Price, record.OpeningDate, record.ClosingDate,
			string(record.Status), record.Description,
			record.MinUnits, record.MaxUnits, record.Rating, record.ProjectDescription, record.Risks, record.SourceURL,
		)
		return err
	})
	s.metrics.RecordRequest(err == nil, time.Since(startTime))

	if err != nil {
		return shared.NewStoreError("WRITE_FAILED", "failed to upsert IPO record", "upsert", err).
			WithDetails(map[string]string{"key": key.String()})
	}
	return nil
}

// GetByID returns one record, or nil when no record has that id
func (s *PostgresRecordStore) GetByID(ctx context.Context, id uuid.UUID) (*models.IPORecord, error) {
	startTime := time.Now()
	query := `SELECT ` + ipoColumns + ` FROM ipos WHERE id = $1`

	var record *models.IPORecord
	err := s.executor.ExecuteWithRetry(ctx, "get_by_id", func(ctx context.Context) error {
		found, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
		if errors.Is(err, sql.ErrNoRows) {
			record = nil
			return nil
		}
		record = found
		return err
	})
	s.metrics.RecordRequest(err == nil, time.Since(startTime))

	if err != nil {
		return nil, shared.NewStoreError("QUERY_FAILED", "failed to load IPO record", "get_by_id", err)
	}
	return record, nil
}

// InsertSubscriber stores a new alert recipient.
// A second insert of the same address fails with a duplicate error.
func (s *PostgresRecordStore) InsertSubscriber(ctx context.Context, email string) (*models.Subscriber, error) {
	startTime := time.Now()
	query := `INSERT INTO subscribers (email) VALUES ($1) RETURNING id, email, created_at`

	var subscriber models.Subscriber
	err := s.executor.ExecuteWithRetry(ctx, "insert_subscriber", func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, query, email).Scan(&subscriber.ID, &subscriber.Email, &subscriber.CreatedAt)
	})

	if err != nil {
		if isUniqueViolation(err) {
			// A known outcome, not a store fault
			s.metrics.RecordRequest(true, time.Since(startTime))
			return nil, shared.NewDuplicateError(duplicateSubscriberMessage, "insert_subscriber", err)
		}
		s.metrics.RecordRequest(false, time.Since(startTime))
		return nil, shared.NewStoreError("WRITE_FAILED", "failed to insert subscriber", "insert_subscriber", err)
	}

	s.metrics.RecordRequest(true, time.Since(startTime))
	return &subscriber, nil
}

// ListSubscribers returns every subscriber in sign-up order
func (s *PostgresRecordStore) ListSubscribers(ctx context.Context) ([]models.Subscriber, error) {
	startTime := time.Now()
	query := `SELECT id, email, created_at FROM subscribers ORDER BY created_at ASC, id ASC`

	var subscribers []models.Subscriber
	err := s.executor.ExecuteWithRetry(ctx, "list_subscribers", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		subscribers = make([]models.Subscriber, 0)
		for rows.Next() {
			var sub models.Subscriber
			if err := rows.Scan(&sub.ID, &sub.Email, &sub.CreatedAt); err != nil {
				return err
			}
			subscribers = append(subscribers, sub)
		}
		return rows.Err()
	})
	s.metrics.RecordRequest(err == nil, time.Since(startTime))

	if err != nil {
		return nil, shared.NewStoreError("QUERY_FAILED", "failed to list subscribers", "list_subscribers", err)
	}
	return subscribers, nil
}

// Ping reports whether the database is reachable
func (s *PostgresRecordStore) Ping(ctx context.Context) error {
	return HealthCheck(ctx, s.db)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*models.IPORecord, error) {
	var record models.IPORecord
	var status string
	var minUnits, maxUnits sql.NullInt64
	var rating, projectDescription, risks, sourceURL sql.NullString

	err := row.Scan(
		&record.ID, &record.CompanyName, &record.ShareType, &record.Sector, &record.Units, &record.Price,
		&record.OpeningDate, &record.ClosingDate, &status, &record.Description,
		&minUnits, &maxUnits, &rating, &projectDescription, &risks, &sourceURL,
		&record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Status = models.IPOStatus(status)
	record.MinUnits = nullInt64Ptr(minUnits)
	record.MaxUnits = nullInt64Ptr(maxUnits)
	record.Rating = nullStringPtr(rating)
	record.ProjectDescription = nullStringPtr(projectDescription)
	record.Risks = nullStringPtr(risks)
	record.SourceURL = nullStringPtr(sourceURL)
	return &record, nil
}

func nullInt64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}
