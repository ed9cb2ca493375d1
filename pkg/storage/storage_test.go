package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(runID, serial string, started int64) ResultRecord {
	return ResultRecord{
		RunID:        runID,
		Serial:       serial,
		Manufacturer: "Samsung",
		Operation:    "gms-repair",
		Args:         []string{"--fast"},
		Title:        "GMS repair:",
		Outcome:      "partial",
		StepCount:    7,
		FailedCount:  2,
		Rendered:     "GMS repair:\nForce-stop GMS: done",
		Steps:        `[{"label":"Force-stop GMS","status":"success","text":"done"}]`,
		StartedAt:    time.UnixMilli(started),
		FinishedAt:   time.UnixMilli(started + 1500),
	}
}

type fakePublisher struct {
	mu    sync.Mutex
	runs  []string
	fail  error
	calls int
}

func (f *fakePublisher) Publish(_ context.Context, record ResultRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail != nil {
		return f.fail
	}
	f.runs = append(f.runs, record.RunID)
	return nil
}

func (f *fakePublisher) Name() string { return "fake" }

func (f *fakePublisher) published() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.runs...)
}

func TestSQLiteSinkUpsertsByRunID(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "history.sqlite")
	m, err := NewManager(Config{DBPath: dbPath})
	require.NoError(t, err)

	ctx := context.Background()
	rec := sampleRecord("run-1", "SER1", 1_700_000_000_000)
	require.NoError(t, m.Write(ctx, rec))
	rec.Outcome = "success"
	rec.FailedCount = 0
	require.NoError(t, m.Write(ctx, rec))
	require.NoError(t, m.Write(ctx, sampleRecord("run-2", "SER1", 1_700_000_100_000)))
	require.NoError(t, m.Close())

	h, err := OpenHistory(dbPath)
	require.NoError(t, err)
	defer h.Close()

	entries, err := h.ListRecent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "run-2", entries[0].RunID)
	assert.Equal(t, "run-1", entries[1].RunID)
	assert.Equal(t, "success", entries[1].Outcome)
	assert.Equal(t, 0, entries[1].FailedCount)
	assert.Equal(t, []string{"--fast"}, entries[1].Args)
	assert.True(t, entries[1].StartedAt.Equal(rec.StartedAt))
	assert.Equal(t, 1500*time.Millisecond, entries[1].Duration())
	assert.False(t, entries[1].Reported)
}

func TestSQLiteSinkRejectsMissingRunID(t *testing.T) {
	m, err := NewManager(Config{DBPath: filepath.Join(t.TempDir(), "h.sqlite")})
	require.NoError(t, err)
	defer m.Close()

	err = m.Write(context.Background(), ResultRecord{Operation: "uptime"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run id is empty")
}

func TestHistoryFiltersBySerialAndLimits(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "h.sqlite")
	m, err := NewManager(Config{DBPath: dbPath})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, m.Write(ctx, sampleRecord("a", "SER1", 1000)))
	require.NoError(t, m.Write(ctx, sampleRecord("b", "SER2", 2000)))
	require.NoError(t, m.Write(ctx, sampleRecord("c", "SER1", 3000)))
	require.NoError(t, m.Close())

	h, err := OpenHistory(dbPath)
	require.NoError(t, err)
	defer h.Close()

	entries, err := h.ListRecent(ctx, "SER1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].RunID)
	assert.Equal(t, "a", entries[1].RunID)

	entries, err = h.ListRecent(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "c", entries[0].RunID)
}

func TestOpenHistoryMissingFile(t *testing.T) {
	_, err := OpenHistory(filepath.Join(t.TempDir(), "absent.sqlite"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestJSONLSinkAppendsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.jsonl")
	for i, id := range []string{"run-1", "run-2"} {
		m, err := NewManager(Config{JSONLPath: path})
		require.NoError(t, err, i)
		require.NoError(t, m.Write(context.Background(), sampleRecord(id, "SER1", 1000)))
		require.NoError(t, m.Close())
	}

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var rows []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var row map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &row))
		rows = append(rows, row)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, rows, 2)
	assert.Equal(t, "run-1", rows[0]["run_id"])
	assert.Equal(t, "run-2", rows[1]["run_id"])
	steps, ok := rows[0]["steps"].([]any)
	require.True(t, ok, "steps should be embedded as an array")
	assert.Len(t, steps, 1)
	assert.EqualValues(t, 1500, rows[0]["duration_ms"])
}

func TestBuildJSONLRowInvalidSteps(t *testing.T) {
	rec := sampleRecord("run", "SER", 0)
	rec.Steps = "not json"
	row := buildJSONLRow(rec)
	assert.Equal(t, json.RawMessage("[]"), row["steps"])
}

func TestReporterPublishesQueuedRows(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "h.sqlite")
	pub := &fakePublisher{}
	m, err := NewManager(Config{DBPath: dbPath, Publisher: pub, ReportInterval: time.Hour})
	require.NoError(t, err)
	assert.Contains(t, m.Name(), "fake-reporter")

	ctx := context.Background()
	require.NoError(t, m.Write(ctx, sampleRecord("run-1", "SER1", 1000)))
	require.NoError(t, m.Write(ctx, sampleRecord("run-2", "SER1", 2000)))
	require.NoError(t, m.Close())

	assert.ElementsMatch(t, []string{"run-1", "run-2"}, pub.published())

	h, err := OpenHistory(dbPath)
	require.NoError(t, err)
	defer h.Close()
	entries, err := h.ListRecent(ctx, "", 10)
	require.NoError(t, err)
	for _, e := range entries {
		assert.True(t, e.Reported, e.RunID)
	}
}

func TestReporterKeepsFailedRowsQueued(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "h.sqlite")
	pub := &fakePublisher{fail: pkgerrors.New("bitable unavailable")}
	m, err := NewManager(Config{DBPath: dbPath, Publisher: pub, ReportInterval: time.Hour})
	require.NoError(t, err)

	require.NoError(t, m.Write(context.Background(), sampleRecord("run-1", "SER1", 1000)))
	require.NoError(t, m.Close())

	h, err := OpenHistory(dbPath)
	require.NoError(t, err)
	defer h.Close()
	entries, err := h.ListRecent(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Reported)
	assert.Equal(t, "bitable unavailable", entries[0].ReportError)
	assert.GreaterOrEqual(t, pub.calls, 1)
}

func TestPublisherWithoutSQLiteIsWrittenDirectly(t *testing.T) {
	pub := &fakePublisher{}
	m, err := NewManager(Config{Publisher: pub})
	require.NoError(t, err)
	assert.Equal(t, "fake", m.Name())

	require.NoError(t, m.Write(context.Background(), sampleRecord("run-1", "SER1", 1000)))
	assert.Equal(t, []string{"run-1"}, pub.published())
	require.NoError(t, m.Close())
}

func TestPublisherErrorIsReturnedWithSinkName(t *testing.T) {
	m, err := NewManager(Config{Publisher: &fakePublisher{fail: pkgerrors.New("boom")}})
	require.NoError(t, err)
	err = m.Write(context.Background(), sampleRecord("run-1", "SER1", 1000))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fake write failed")
}

func TestEmptyManagerDiscards(t *testing.T) {
	m, err := NewManager(Config{})
	require.NoError(t, err)
	assert.Equal(t, "storage", m.Name())
	assert.NoError(t, m.Write(context.Background(), sampleRecord("r", "s", 0)))
	assert.NoError(t, m.Close())

	var nilManager *Manager
	assert.NoError(t, nilManager.Write(context.Background(), ResultRecord{}))
	assert.NoError(t, nilManager.Close())
}

func TestFormatSQLForLog(t *testing.T) {
	cases := []struct {
		name  string
		query string
		args  []any
		want  string
	}{
		{"no args", "SELECT 1", nil, "SELECT 1"},
		{"interpolate", "SELECT * FROM t WHERE a=? AND b=?", []any{"it's", 3}, "SELECT * FROM t WHERE a='it''s' AND b=3"},
		{"nil", "UPDATE t SET c=?", []any{nil}, "UPDATE t SET c=NULL"},
		{"extra args", "SELECT ?", []any{1, "x"}, "SELECT 1 /* args: 'x' */"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatSQLForLog(tc.query, tc.args...))
		})
	}
}

func TestIsSQLiteBusy(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"locked message", pkgerrors.New("database is locked (5)"), true},
		{"busy code", pkgerrors.New("SQLITE_BUSY: busy"), true},
		{"other", pkgerrors.New("some other error"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isSQLiteBusy(tc.err))
		})
	}
}
