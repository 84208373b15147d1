package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb" // Driver
)

// Stages of a run.
const (
	StageRun       = "run"
	StageFetch     = "fetch"
	StageStations  = "stations"
	StageJoin      = "join"
	StagePartition = "partition"
	StageArtifact  = "artifact"
	StageUpload    = "upload"
	StageWorkbook  = "workbook"
)

// Event types.
const (
	EventStart = "start"
	EventEnd   = "end"
	EventError = "error"
	EventSkip  = "skip"
)

const schemaSequenceSQL = `CREATE SEQUENCE IF NOT EXISTS run_event_log_id_seq;`
const schemaTableSQL = `
CREATE TABLE IF NOT EXISTS run_event_log (
    log_id          BIGINT PRIMARY KEY DEFAULT nextval('run_event_log_id_seq'),
    run_id          VARCHAR NOT NULL,
    stage           VARCHAR NOT NULL,      -- fetch, join, upload, ...
    subject         VARCHAR NOT NULL,      -- year, object key, sheet or file path
    event           VARCHAR NOT NULL,
    event_timestamp TIMESTAMP NOT NULL,
    message         VARCHAR,
    duration_ms     BIGINT
);
CREATE INDEX IF NOT EXISTS idx_run_event_log_run ON run_event_log (run_id, stage);
CREATE INDEX IF NOT EXISTS idx_run_event_log_event_time ON run_event_log (event, event_timestamp);
`

// Open opens the state database at path and makes sure the schema exists. An empty path opens
// an in-memory database.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb (%s): %w", path, err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping duckdb (%s): %w", path, err)
	}
	if err := InitializeSchema(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// InitializeSchema creates the sequence and tables in the correct order.
func InitializeSchema(db *sql.DB) error {
	_, err := db.Exec(schemaSequenceSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute sequence setup: %w", err)
	}
	_, err = db.Exec(schemaTableSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute table/index setup: %w", err)
	}
	return nil
}

// LogEvent inserts a new event record into the log.
func LogEvent(ctx context.Context, db *sql.DB, runID, stage, subject, event, message string, duration *time.Duration) error {
	query := `
        INSERT INTO run_event_log (run_id, stage, subject, event, event_timestamp, message, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?);
    `
	var durationMs sql.NullInt64
	if duration != nil {
		durationMs = sql.NullInt64{Int64: duration.Milliseconds(), Valid: true}
	}

	_, err := db.ExecContext(ctx, query,
		runID,
		stage,
		subject,
		event,
		time.Now().UTC(),
		sql.NullString{String: message, Valid: message != ""},
		durationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to log event '%s' for %s '%s': %w", event, stage, subject, err)
	}
	return nil
}

// LatestRunID returns the run that logged the most recent event.
func LatestRunID(ctx context.Context, db *sql.DB) (runID string, found bool, err error) {
	query := `
        SELECT run_id
        FROM run_event_log
        ORDER BY event_timestamp DESC, log_id DESC
        LIMIT 1;
    `
	err = db.QueryRowContext(ctx, query).Scan(&runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed query latest run: %w", err)
	}
	return runID, true, nil
}

// SubjectsWithEvent lists the distinct subjects of a run's stage that logged event, with the
// most recent message for each.
func SubjectsWithEvent(ctx context.Context, db *sql.DB, runID, stage, event string) (map[string]string, error) {
	query := `
        WITH Latest AS (
            SELECT subject, message,
                ROW_NUMBER() OVER(PARTITION BY subject ORDER BY event_timestamp DESC, log_id DESC) AS rn
            FROM run_event_log
            WHERE run_id = ? AND stage = ? AND event = ?
        )
        SELECT subject, message FROM Latest WHERE rn = 1 ORDER BY subject;
    `
	rows, err := db.QueryContext(ctx, query, runID, stage, event)
	if err != nil {
		return nil, fmt.Errorf("query %s/%s subjects for run %s: %w", stage, event, runID, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	var scanErrors error
	for rows.Next() {
		var subject string
		var message sql.NullString
		if err := rows.Scan(&subject, &message); err != nil {
			scanErrors = errors.Join(scanErrors, fmt.Errorf("scan subject: %w", err))
			continue
		}
		out[subject] = message.String
	}
	if err := rows.Err(); err != nil {
		return out, errors.Join(scanErrors, fmt.Errorf("iterate subjects: %w", err))
	}
	return out, scanErrors
}

// DisplayHistory writes the event log, newest first, as a fixed-width table.
func DisplayHistory(ctx context.Context, w io.Writer, db *sql.DB, stageFilter, eventFilter string, limit int) error {
	query := `
        SELECT run_id, stage, subject, event, event_timestamp, message, duration_ms
        FROM run_event_log
    `
	conditions := []string{}
	args := []any{}
	argCounter := 1

	if stageFilter != "" {
		conditions = append(conditions, fmt.Sprintf("stage = $%d", argCounter))
		args = append(args, stageFilter)
		argCounter++
	}
	if eventFilter != "" {
		conditions = append(conditions, fmt.Sprintf("event = $%d", argCounter))
		args = append(args, eventFilter)
		argCounter++
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += fmt.Sprintf(" ORDER BY event_timestamp DESC, log_id DESC LIMIT $%d", argCounter)
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query event log: %w \n Query: %s \n Args: %v", err, query, args)
	}
	defer rows.Close()

	fmt.Fprintf(w, "--- Event Log History (Limit %d) ---\n", limit)
	fmt.Fprintf(w, "%-8s | %-9s | %-40s | %-6s | %-25s | %-10s | %s\n", "Run", "Stage", "Subject", "Event", "Timestamp (UTC)", "DurationMS", "Message")
	fmt.Fprintln(w, strings.Repeat("-", 140))

	count := 0
	for rows.Next() {
		var runID, stage, subject, event string
		var timestamp time.Time
		var message sql.NullString
		var durationMs sql.NullInt64
		if err := rows.Scan(&runID, &stage, &subject, &event, &timestamp, &message, &durationMs); err != nil {
			return fmt.Errorf("failed to scan event log row: %w", err)
		}

		durationStr := ""
		if durationMs.Valid {
			durationStr = fmt.Sprintf("%d", durationMs.Int64)
		}
		if len(runID) > 8 {
			runID = runID[:8]
		}

		fmt.Fprintf(w, "%-8s | %-9s | %-40s | %-6s | %-25s | %-10s | %s\n",
			runID, stage, subject, event, timestamp.Format(time.RFC3339), durationStr, message.String)
		count++
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("error iterating event log rows: %w", err)
	}
	fmt.Fprintf(w, "Displayed %d records.\n", count)
	return nil
}
