package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/fenilmodi00/nepal-ipo-radar/shared"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

//go:embed schema.sql
var schemaSQL string

// requiredColumns lists the columns the record store reads and writes, per table
var requiredColumns = map[string][]string{
	"ipos": {
		"id", "company_name", "share_type", "company_key", "share_type_key",
		"sector", "units", "price", "opening_date", "closing_date", "status",
		"description", "min_units", "max_units", "rating", "project_description",
		"risks", "source_url", "created_at", "updated_at",
	},
	"subscribers": {"id", "email", "created_at"},
}

// Connect establishes database connection with the default pool configuration
func Connect(dbURL string) (*sql.DB, error) {
	config := shared.NewDefaultUnifiedConfiguration().Database
	return ConnectWithConfig(dbURL, &config)
}

// ConnectWithConfig establishes database connection with custom configuration
func ConnectWithConfig(dbURL string, config *shared.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, shared.NewStoreError("CONNECTION_FAILED", "failed to open database connection", "connect", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.PingTimeout)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, shared.NewStoreError("CONNECTION_FAILED", "failed to ping database", "connect", err)
	}

	logrus.WithFields(logrus.Fields{
		"component":          "database",
		"max_open_conns":     config.MaxOpenConns,
		"max_idle_conns":     config.MaxIdleConns,
		"conn_max_lifetime":  config.ConnMaxLifetime,
		"conn_max_idle_time": config.ConnMaxIdleTime,
	}).Info("Connected to database successfully")

	return db, nil
}

// Close closes the connection pool, tolerating a nil handle
func Close(db *sql.DB) {
	if db != nil {
		db.Close()
		logrus.Info("Database connection closed")
	}
}

// HealthCheck pings the database and logs pool statistics
func HealthCheck(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("database connection not established")
	}

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	stats := db.Stats()
	logrus.WithFields(logrus.Fields{
		"component":            "database",
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration":        stats.WaitDuration,
	}).Debug("Database connection pool health check")

	return nil
}

// Migrate applies the embedded schema
func Migrate(ctx context.Context, db *sql.DB) error {
	statements := parseSQLStatements(schemaSQL)

	var failures []error
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			// Keep going so one failing index does not block the rest of the schema
			logrus.Warnf("Migration statement failed (continuing): %v", err)
			failures = append(failures, err)
		}
	}

	if err := VerifySchema(ctx, db); err != nil {
		if len(failures) > 0 {
			return fmt.Errorf("%w (%s)", err, shared.BuildBatchProcessingErrorSummary(len(statements)-len(failures), len(failures), failures))
		}
		return err
	}

	logrus.WithField("statements", len(statements)).Info("Database migration completed successfully")
	return nil
}

// VerifySchema checks that every table and column the store depends on exists
func VerifySchema(ctx context.Context, db *sql.DB) error {
	tables := make([]string, 0, len(requiredColumns))
	for table := range requiredColumns {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	var missing []string
	for _, table := range tables {
		exists, err := tableExists(ctx, db, table)
		if err != nil {
			return fmt.Errorf("failed to check if %s table exists: %w", table, err)
		}
		if !exists {
			missing = append(missing, table+" (entire table)")
			continue
		}

		columns, err := getTableColumns(ctx, db, table)
		if err != nil {
			return fmt.Errorf("failed to get %s columns: %w", table, err)
		}
		for _, column := range requiredColumns[table] {
			if _, ok := columns[column]; !ok {
				missing = append(missing, table+"."+column)
			}
		}
	}

	if len(missing) > 0 {
		return shared.NewStoreError("SCHEMA_INVALID", "database schema is missing required objects", "migrate", nil).
			WithDetails(missing)
	}
	return nil
}

func tableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)
	`
	var exists bool
	err := db.QueryRowContext(ctx, query, tableName).Scan(&exists)
	return exists, err
}

// getTableColumns returns a map of column names to their data types
func getTableColumns(ctx context.Context, db *sql.DB, tableName string) (map[string]string, error) {
	query := `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
	`
	rows, err := db.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string]string)
	for rows.Next() {
		var columnName, dataType string
		if err := rows.Scan(&columnName, &dataType); err != nil {
			return nil, err
		}
		columns[columnName] = dataType
	}

	return columns, rows.Err()
}

// parseSQLStatements parses SQL content into individual statements
// This handles multi-line statements and comments properly
func parseSQLStatements(content string) []string {
	var statements []string
	var currentStatement strings.Builder

	lines := strings.Split(content, "\n")

	for _, line := range lines {
		line = strings.TrimSpace(line)

		// Skip empty lines and comment-only lines
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}

		if currentStatement.Len() > 0 {
			currentStatement.WriteString(" ")
		}
		currentStatement.WriteString(line)

		if strings.HasSuffix(line, ";") {
			stmt := strings.TrimSuffix(currentStatement.String(), ";")
			stmt = strings.TrimSpace(stmt)
			if stmt != "" {
				statements = append(statements, stmt)
			}
			currentStatement.Reset()
		}
	}

	if currentStatement.Len() > 0 {
		stmt := strings.TrimSpace(currentStatement.String())
		if stmt != "" {
			statements = append(statements, stmt)
		}
	}

	return statements
}
