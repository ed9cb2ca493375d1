package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultReportInterval = 5 * time.Second
	defaultReportBatch    = 30
	publishTimeout        = 30 * time.Second
	finalFlushTimeout     = time.Minute
)

// resultReporter publishes queued SQLite rows. Rows that fail stay queued
// with reported=-1 and are retried on the next flush.
type resultReporter struct {
	db        *sql.DB
	publisher Publisher
	interval  time.Duration
	batchSize int

	notify chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	flush  sync.Mutex
}

func newResultReporter(db *sql.DB, publisher Publisher, interval time.Duration, batch int) (*resultReporter, error) {
	if db == nil {
		return nil, pkgerrors.New("storage: reporter db nil")
	}
	if publisher == nil {
		return nil, pkgerrors.New("storage: reporter publisher nil")
	}
	if interval <= 0 {
		interval = defaultReportInterval
	}
	if batch <= 0 {
		batch = defaultReportBatch
	}
	reporter := &resultReporter{
		db:        db,
		publisher: publisher,
		interval:  interval,
		batchSize: batch,
		notify:    make(chan struct{}, 1),
	}
	reporter.ctx, reporter.cancel = context.WithCancel(context.Background())
	reporter.wg.Add(1)
	go reporter.loop()
	return reporter, nil
}

// Notify asks the loop to flush without waiting for the next tick.
func (r *resultReporter) Notify() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *resultReporter) loop() {
	defer r.wg.Done()
	r.flushOnce(r.ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.flushOnce(r.ctx)
		case <-r.notify:
			r.flushOnce(r.ctx)
		}
	}
}

// flushOnce publishes one batch and returns how many rows were published.
func (r *resultReporter) flushOnce(parent context.Context) int {
	r.flush.Lock()
	defer r.flush.Unlock()

	ctx, cancel := context.WithTimeout(parent, publishTimeout+5*time.Second)
	defer cancel()
	rows, err := r.fetchPending(ctx)
	if err != nil {
		log.Error().Err(err).Msg("result reporter fetch pending rows failed")
		return 0
	}
	published := 0
	for _, row := range rows {
		if ctx.Err() != nil {
			return published
		}
		if err := r.dispatchRow(ctx, row); err != nil {
			log.Error().Err(err).Int64("row_id", row.ID).Str("run_id", row.RunID.String).
				Msg("result reporter dispatch row failed")
			if markErr := r.markFailure(row.ID, err); markErr != nil {
				log.Error().Err(markErr).Int64("row_id", row.ID).Msg("result reporter mark failure failed")
			}
			continue
		}
		if err := r.markSuccess(row.ID); err != nil {
			log.Error().Err(err).Int64("row_id", row.ID).Msg("result reporter mark success failed")
			continue
		}
		published++
	}
	if published > 0 {
		log.Debug().Int("rows", published).Str("publisher", r.publisher.Name()).Msg("result reporter flushed")
	}
	return published
}

func (r *resultReporter) fetchPending(ctx context.Context) ([]storedRow, error) {
	query := fmt.Sprintf(`SELECT id, RunID, Host, Serial, Manufacturer, Operation, Args, Title, Outcome,
		StepCount, FailedCount, Rendered, Steps, StartedAt, FinishedAt
		FROM %s WHERE %s IN (%d, %d) ORDER BY id ASC LIMIT ?`,
		quoteIdent(ReportTable), quoteIdent(reportedColumn), reportStatusPending, reportStatusFailed)
	rows, err := r.db.QueryContext(ctx, query, r.batchSize)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "storage: query pending report rows failed")
	}
	defer rows.Close()

	results := make([]storedRow, 0, r.batchSize)
	for rows.Next() {
		var row storedRow
		if err := rows.Scan(
			&row.ID,
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
		); err != nil {
			return nil, pkgerrors.Wrap(err, "storage: scan pending report row failed")
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "storage: iterate pending report rows failed")
	}
	return results, nil
}

func (r *resultReporter) dispatchRow(parent context.Context, row storedRow) error {
	ctx, cancel := context.WithTimeout(parent, publishTimeout)
	defer cancel()
	return r.publisher.Publish(ctx, row.record())
}

func (r *resultReporter) markSuccess(id int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stmt := fmt.Sprintf(`UPDATE %s SET %s=%d, %s=?, %s=NULL WHERE id=?`,
		quoteIdent(ReportTable), quoteIdent(reportedColumn), reportStatusDone,
		quoteIdent(reportedAtColumn), quoteIdent(reportErrorColumn))
	return pkgerrors.Wrap(execWithRetry(ctx, r.db, stmt, time.Now().UnixMilli(), id), "storage: mark report row published")
}

func (r *resultReporter) markFailure(id int64, err error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stmt := fmt.Sprintf(`UPDATE %s SET %s=%d, %s=?, %s=? WHERE id=?`,
		quoteIdent(ReportTable), quoteIdent(reportedColumn), reportStatusFailed,
		quoteIdent(reportedAtColumn), quoteIdent(reportErrorColumn))
	return pkgerrors.Wrap(execWithRetry(ctx, r.db, stmt, time.Now().UnixMilli(), truncateError(err), id), "storage: mark report row failed")
}

// Close stops the loop and drains what was queued during this process.
func (r *resultReporter) Close() error {
	if r == nil {
		return nil
	}
	r.cancel()
	r.wg.Wait()
	ctx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
	defer cancel()
	r.flushOnce(ctx)
	return nil
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) <= 512 {
		return msg
	}
	return msg[:512]
}

func execWithRetry(ctx context.Context, db *sql.DB, stmt string, args ...any) error {
	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		_, err := db.ExecContext(ctx, stmt, args...)
		if err == nil {
			return nil
		}
		if !isSQLiteBusy(err) || attempt == maxAttempts-1 {
			return err
		}
		log.Debug().Err(err).Int("attempt", attempt+1).
			Str("sql", FormatSQLForLog(stmt, args...)).Msg("storage: sqlite busy, retrying")
		backoff := time.Duration(attempt+1) * 200 * time.Millisecond
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}
