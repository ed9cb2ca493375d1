package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Config controls enabled sinks.
type Config struct {
	// DBPath is the SQLite history file. Empty disables the SQLite sink.
	DBPath string
	// JSONLPath appends one JSON object per finished report when set.
	JSONLPath string
	// Publisher receives every recorded report. With SQLite enabled the
	// rows are queued and published by a background reporter; otherwise
	// Publisher is written to directly.
	Publisher Publisher
	// ReportInterval is the queue poll interval; zero uses 5s.
	ReportInterval time.Duration
	// ReportBatch bounds rows per flush; zero uses 30.
	ReportBatch int
}

// ResultRecord is one finished operation as persisted by the sinks.
type ResultRecord struct {
	RunID        string    `json:"run_id"`
	Host         string    `json:"host,omitempty"`
	Serial       string    `json:"serial"`
	Manufacturer string    `json:"manufacturer"`
	Operation    string    `json:"operation"`
	Args         []string  `json:"args,omitempty"`
	Title        string    `json:"title"`
	Outcome      string    `json:"outcome"`
	StepCount    int       `json:"step_count"`
	FailedCount  int       `json:"failed_count"`
	Rendered     string    `json:"rendered"`
	Steps        string    `json:"steps"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Duration is the wall time the operation took.
func (r ResultRecord) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Sink defines the contract for each storage implementation.
type Sink interface {
	Write(ctx context.Context, record ResultRecord) error
	Close() error
	Name() string
}

// Publisher pushes a record to a remote system such as a Feishu bitable.
type Publisher interface {
	Publish(ctx context.Context, record ResultRecord) error
	Name() string
}

// Manager fan-outs records to configured sinks.
type Manager struct {
	sinks    []Sink
	name     string
	reporter *resultReporter
}

// NewManager builds a storage manager based on cfg. A Manager without any
// sink is valid and discards records.
func NewManager(cfg Config) (*Manager, error) {
	sinks := make([]Sink, 0, 3)
	closeAll := func() {
		for _, s := range sinks {
			s.Close()
		}
	}
	if strings.TrimSpace(cfg.JSONLPath) != "" {
		jsonl, err := newJSONLWriter(cfg.JSONLPath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, jsonl)
	}
	var sqliteSink *sqliteWriter
	if strings.TrimSpace(cfg.DBPath) != "" {
		var err error
		sqliteSink, err = newSQLiteWriter(cfg.DBPath)
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, sqliteSink)
	}
	manager := &Manager{}
	if cfg.Publisher != nil {
		if sqliteSink != nil {
			reporter, err := newResultReporter(sqliteSink.db, cfg.Publisher, cfg.ReportInterval, cfg.ReportBatch)
			if err != nil {
				closeAll()
				return nil, err
			}
			manager.reporter = reporter
		} else {
			sinks = append(sinks, publisherSink{cfg.Publisher})
		}
	}
	names := make([]string, 0, len(sinks)+1)
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	if manager.reporter != nil {
		names = append(names, cfg.Publisher.Name()+"-reporter")
	}
	manager.sinks = sinks
	manager.name = strings.Join(names, ",")
	return manager, nil
}

func (m *Manager) Write(ctx context.Context, record ResultRecord) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Write(ctx, record); err != nil {
			errs = append(errs, pkgerrors.Wrap(err, fmt.Sprintf("%s write failed", sink.Name())))
		}
	}
	if m.reporter != nil {
		m.reporter.Notify()
	}
	return errors.Join(errs...)
}

// Close stops the reporter after a final flush, then closes every sink.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	var errs []error
	if m.reporter != nil {
		if err := m.reporter.Close(); err != nil {
			errs = append(errs, pkgerrors.Wrap(err, "result reporter close failed"))
		}
	}
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, pkgerrors.Wrap(err, fmt.Sprintf("%s close failed", sink.Name())))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) Name() string {
	if m == nil || m.name == "" {
		return "storage"
	}
	return m.name
}

type publisherSink struct {
	publisher Publisher
}

func (p publisherSink) Write(ctx context.Context, record ResultRecord) error {
	return p.publisher.Publish(ctx, record)
}

func (p publisherSink) Close() error { return nil }

func (p publisherSink) Name() string { return p.publisher.Name() }

type jsonlWriter struct {
	path   string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

func newJSONLWriter(path string) (*jsonlWriter, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, pkgerrors.New("storage: jsonl path is empty")
	}
	if err := ensureDir(filepath.Dir(trimmed)); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "storage: open jsonl file failed")
	}
	return &jsonlWriter{path: trimmed, file: file, writer: bufio.NewWriter(file)}, nil
}

func (j *jsonlWriter) Write(_ context.Context, record ResultRecord) error {
	if j == nil || j.writer == nil {
		return pkgerrors.New("storage: jsonl writer nil")
	}
	payload, err := json.Marshal(buildJSONLRow(record))
	if err != nil {
		return pkgerrors.Wrap(err, "storage: marshal json payload failed")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.writer.Write(payload); err != nil {
		return pkgerrors.Wrap(err, "storage: write json payload failed")
	}
	if err := j.writer.WriteByte('\n'); err != nil {
		return pkgerrors.Wrap(err, "storage: write newline failed")
	}
	if err := j.writer.Flush(); err != nil {
		return pkgerrors.Wrap(err, "storage: flush json writer failed")
	}
	return nil
}

func (j *jsonlWriter) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.writer != nil {
		if err := j.writer.Flush(); err != nil {
			return pkgerrors.Wrap(err, "storage: flush on close failed")
		}
	}
	if j.file != nil {
		if err := j.file.Close(); err != nil {
			return pkgerrors.Wrap(err, "storage: close json file failed")
		}
	}
	return nil
}

func (j *jsonlWriter) Name() string {
	if j == nil || j.path == "" {
		return "jsonl"
	}
	return j.path
}

// buildJSONLRow embeds the steps as JSON rather than as an escaped string.
func buildJSONLRow(record ResultRecord) map[string]any {
	var steps any = json.RawMessage("[]")
	if raw := strings.TrimSpace(record.Steps); raw != "" && json.Valid([]byte(raw)) {
		steps = json.RawMessage(raw)
	}
	return map[string]any{
		"run_id":       record.RunID,
		"host":         record.Host,
		"serial":       record.Serial,
		"manufacturer": record.Manufacturer,
		"operation":    record.Operation,
		"args":         record.Args,
		"title":        record.Title,
		"outcome":      record.Outcome,
		"step_count":   record.StepCount,
		"failed_count": record.FailedCount,
		"rendered":     record.Rendered,
		"steps":        steps,
		"started_at":   record.StartedAt.UnixMilli(),
		"finished_at":  record.FinishedAt.UnixMilli(),
		"duration_ms":  record.Duration().Milliseconds(),
	}
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return pkgerrors.Wrapf(err, "storage: create dir %s failed", dir)
	}
	log.Debug().Str("dir", dir).Msg("storage: directory ready")
	return nil
}
