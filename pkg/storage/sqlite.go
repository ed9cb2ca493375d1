package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const (
	// ReportTable holds one row per finished operation.
	ReportTable       = "operation_reports"
	reportedColumn    = "reported"
	reportedAtColumn  = "reported_at"
	reportErrorColumn = "report_error"

	reportStatusPending = 0
	reportStatusDone    = 1
	reportStatusFailed  = -1
)

var reportColumns = []string{
	"RunID",
	"Host",
	"Serial",
	"Manufacturer",
	"Operation",
	"Args",
	"Title",
	"Outcome",
	"StepCount",
	"FailedCount",
	"Rendered",
	"Steps",
	"StartedAt",
	"FinishedAt",
}

type sqliteWriter struct {
	db   *sql.DB
	stmt *sql.Stmt
	path string
}

func newSQLiteWriter(path string) (*sqliteWriter, error) {
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	if err := configureSQLite(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := prepareSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	stmt, err := db.Prepare(buildReportInsertStatement())
	if err != nil {
		db.Close()
		return nil, pkgerrors.Wrap(err, "storage: prepare sqlite insert failed")
	}
	return &sqliteWriter{db: db, stmt: stmt, path: path}, nil
}

func openSQLite(path string) (*sql.DB, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, pkgerrors.New("storage: sqlite path is empty")
	}
	if err := ensureDir(filepath.Dir(trimmed)); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "storage: open sqlite database failed")
	}
	return db, nil
}

// buildReportInsertStatement upserts on RunID so a retried write replaces
// the row and re-queues it for publishing.
func buildReportInsertStatement() string {
	quotedCols := make([]string, len(reportColumns))
	placeholders := make([]string, len(reportColumns))
	updates := make([]string, 0, len(reportColumns)+2)
	for i, col := range reportColumns {
		quotedCols[i] = quoteIdent(col)
		placeholders[i] = "?"
		if col == "RunID" {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s=excluded.%s", quoteIdent(col), quoteIdent(col)))
	}
	updates = append(updates,
		fmt.Sprintf("%s=%d", quoteIdent(reportedColumn), reportStatusPending),
		fmt.Sprintf("%s=NULL", quoteIdent(reportedAtColumn)),
		fmt.Sprintf("%s=NULL", quoteIdent(reportErrorColumn)),
	)
	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s`,
		quoteIdent(ReportTable),
		strings.Join(quotedCols, ", "),
		strings.Join(placeholders, ", "),
		quoteIdent("RunID"),
		strings.Join(updates, ", "))
}

func (s *sqliteWriter) Write(ctx context.Context, record ResultRecord) error {
	if s == nil || s.db == nil || s.stmt == nil {
		return pkgerrors.New("storage: sqlite storage nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(record.RunID) == "" {
		return pkgerrors.New("storage: record run id is empty")
	}
	args, err := encodeArgs(record.Args)
	if err != nil {
		return err
	}
	values := []any{
		record.RunID,
		record.Host,
		record.Serial,
		record.Manufacturer,
		record.Operation,
		args,
		record.Title,
		record.Outcome,
		record.StepCount,
		record.FailedCount,
		record.Rendered,
		record.Steps,
		record.StartedAt.UnixMilli(),
		record.FinishedAt.UnixMilli(),
	}
	if _, err := s.stmt.ExecContext(ctx, values...); err != nil {
		return pkgerrors.Wrap(err, "storage: sqlite insert failed")
	}
	if log.Debug().Enabled() {
		log.Debug().
			Str("sql", FormatSQLForLog(buildReportInsertStatement(), values...)).
			Msg("storage: report row written")
	}
	return nil
}

func (s *sqliteWriter) Close() error {
	if s == nil {
		return nil
	}
	if s.stmt != nil {
		s.stmt.Close()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *sqliteWriter) Name() string {
	if s == nil || s.path == "" {
		return "sqlite"
	}
	return s.path
}

func encodeArgs(args []string) (string, error) {
	if len(args) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "", pkgerrors.Wrap(err, "storage: marshal args failed")
	}
	return string(raw), nil
}

func decodeArgs(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "[]" {
		return nil
	}
	var args []string
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return []string{raw}
	}
	return args
}

func configureSQLite(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=MEMORY;",
		// Publishing can hold the lock while a remote call is slow.
		"PRAGMA busy_timeout=60000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return pkgerrors.Wrapf(err, "storage: execute %s failed", pragma)
		}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return nil
}

func prepareSchema(db *sql.DB) error {
	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			RunID TEXT NOT NULL,
			Host TEXT,
			Serial TEXT,
			Manufacturer TEXT,
			Operation TEXT NOT NULL,
			Args TEXT,
			Title TEXT,
			Outcome TEXT NOT NULL,
			StepCount INTEGER,
			FailedCount INTEGER,
			Rendered TEXT,
			Steps TEXT,
			StartedAt INTEGER,
			FinishedAt INTEGER,
			%s INTEGER NOT NULL DEFAULT 0,
			%s INTEGER,
			%s TEXT
		);`, quoteIdent(ReportTable), reportedColumn, reportedAtColumn, reportErrorColumn)
	if _, err := db.Exec(createTable); err != nil {
		return pkgerrors.Wrap(err, "storage: init sqlite schema failed")
	}
	for _, col := range []struct {
		name string
		typ  string
	}{
		{"Host", "TEXT"},
		{"Manufacturer", "TEXT"},
		{"Args", "TEXT"},
		{"Steps", "TEXT"},
		{reportedColumn, "INTEGER NOT NULL DEFAULT 0"},
		{reportedAtColumn, "INTEGER"},
		{reportErrorColumn, "TEXT"},
	} {
		if err := ensureSQLiteColumn(db, ReportTable, col.name, col.typ); err != nil {
			return err
		}
	}
	indexes := []string{
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_runid ON %s(RunID);`, ReportTable, quoteIdent(ReportTable)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_serial_started ON %s(Serial, StartedAt DESC);`, ReportTable, quoteIdent(ReportTable)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_reported ON %s(%s);`, ReportTable, quoteIdent(ReportTable), reportedColumn),
	}
	for _, stmt := range indexes {
		if _, err := db.Exec(stmt); err != nil {
			return pkgerrors.Wrap(err, "storage: init sqlite indexes failed")
		}
	}
	return nil
}

func ensureSQLiteColumn(db *sql.DB, table, column, columnType string) error {
	query := fmt.Sprintf("PRAGMA table_info(%s);", quoteIdent(table))
	rows, err := db.Query(query)
	if err != nil {
		return pkgerrors.Wrapf(err, "storage: describe %s schema failed", table)
	}
	defer rows.Close()
	exists := false
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return pkgerrors.Wrap(err, "storage: scan sqlite table info failed")
		}
		if strings.EqualFold(name, column) {
			exists = true
			break
		}
	}
	if err := rows.Err(); err != nil {
		return pkgerrors.Wrap(err, "storage: iterate sqlite table info failed")
	}
	if exists {
		return nil
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s;", quoteIdent(table), column, columnType)
	if _, err := db.Exec(stmt); err != nil {
		return pkgerrors.Wrapf(err, "storage: add column %s to %s failed", column, table)
	}
	return nil
}

func quoteIdent(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ""
	}
	escaped := strings.ReplaceAll(trimmed, "\"", "\"\"")
	return fmt.Sprintf("\"%s\"", escaped)
}
