package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultHistoryLimit is used when ListRecent gets a non-positive limit.
const DefaultHistoryLimit = 20

// HistoryEntry is a stored record plus its publishing state.
type HistoryEntry struct {
	ResultRecord
	Reported    bool
	ReportError string
}

// HistoryReader queries the SQLite history written by the sqlite sink.
type HistoryReader struct {
	db *sql.DB
}

// OpenHistory opens path for reading. A missing file is reported as
// os.ErrNotExist so callers can print an empty history.
func OpenHistory(path string) (*HistoryReader, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, pkgerrors.New("storage: history path is empty")
	}
	if _, err := os.Stat(trimmed); err != nil {
		return nil, pkgerrors.Wrapf(err, "storage: stat history %s failed", trimmed)
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "storage: open history sqlite failed")
	}
	if err := configureSQLiteReader(db); err != nil {
		db.Close()
		return nil, err
	}
	return &HistoryReader{db: db}, nil
}

func configureSQLiteReader(db *sql.DB) error {
	if db == nil {
		return pkgerrors.New("storage: sqlite reader db nil")
	}
	pragmas := []string{
		"PRAGMA busy_timeout=60000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return pkgerrors.Wrapf(err, "storage: execute %s for reader failed", pragma)
		}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return nil
}

// ListRecent returns the newest records first, optionally restricted to
// one device serial.
func (h *HistoryReader) ListRecent(ctx context.Context, serial string, limit int) ([]HistoryEntry, error) {
	if h == nil || h.db == nil {
		return nil, pkgerrors.New("storage: history reader nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	query := fmt.Sprintf(`SELECT RunID, Host, Serial, Manufacturer, Operation, Args, Title, Outcome,
		StepCount, FailedCount, Rendered, Steps, StartedAt, FinishedAt, %s, %s
		FROM %s`, quoteIdent(reportedColumn), quoteIdent(reportErrorColumn), quoteIdent(ReportTable))
	args := []any{}
	if serial = strings.TrimSpace(serial); serial != "" {
		query += " WHERE Serial=?"
		args = append(args, serial)
	}
	query += " ORDER BY StartedAt DESC, id DESC LIMIT ?"
	args = append(args, limit)
	log.Debug().Str("sql", FormatSQLForLog(query, args...)).Msg("storage: list history")

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "storage: query history failed")
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var row storedRow
		if err := rows.Scan(
			&row.RunID,
			&row.Host,
			&row.Serial,
			&row.Manufacturer,
			&row.Operation,
			&row.Args,
			&row.Title,
			&row.Outcome,
			&row.StepCount,
			&row.FailedCount,
			&row.Rendered,
			&row.Steps,
			&row.StartedAt,
			&row.FinishedAt,
			&row.Reported,
			&row.ReportError,
		); err != nil {
			return nil, pkgerrors.Wrap(err, "storage: scan history row failed")
		}
		entries = append(entries, HistoryEntry{
			ResultRecord: row.record(),
			Reported:     row.Reported.Int64 == reportStatusDone,
			ReportError:  strings.TrimSpace(row.ReportError.String),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "storage: iterate history rows failed")
	}
	return entries, nil
}

func (h *HistoryReader) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

type storedRow struct {
	ID           int64
	RunID        sql.NullString
	Host         sql.NullString
	Serial       sql.NullString
	Manufacturer sql.NullString
	Operation    sql.NullString
	Args         sql.NullString
	Title        sql.NullString
	Outcome      sql.NullString
	StepCount    sql.NullInt64
	FailedCount  sql.NullInt64
	Rendered     sql.NullString
	Steps        sql.NullString
	StartedAt    sql.NullInt64
	FinishedAt   sql.NullInt64
	Reported     sql.NullInt64
	ReportError  sql.NullString
}

func (r storedRow) record() ResultRecord {
	return ResultRecord{
		RunID:        trimNull(r.RunID),
		Host:         trimNull(r.Host),
		Serial:       trimNull(r.Serial),
		Manufacturer: trimNull(r.Manufacturer),
		Operation:    trimNull(r.Operation),
		Args:         decodeArgs(r.Args.String),
		Title:        r.Title.String,
		Outcome:      trimNull(r.Outcome),
		StepCount:    int(r.StepCount.Int64),
		FailedCount:  int(r.FailedCount.Int64),
		Rendered:     r.Rendered.String,
		Steps:        r.Steps.String,
		StartedAt:    fromMillis(r.StartedAt),
		FinishedAt:   fromMillis(r.FinishedAt),
	}
}

func trimNull(val sql.NullString) string {
	return strings.TrimSpace(val.String)
}

func fromMillis(val sql.NullInt64) time.Time {
	if !val.Valid || val.Int64 == 0 {
		return time.Time{}
	}
	return time.UnixMilli(val.Int64)
}
