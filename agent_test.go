package deviceagent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/httprunner/DeviceAgent/internal/config"
	"github.com/httprunner/DeviceAgent/pkg/feishu"
	"github.com/httprunner/DeviceAgent/pkg/manufacturer"
	"github.com/httprunner/DeviceAgent/pkg/report"
	"github.com/httprunner/DeviceAgent/pkg/storage"
	"github.com/httprunner/DeviceAgent/pkg/transport"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubInvoker answers every call through fn and records "serial: args".
type stubInvoker struct {
	mu    sync.Mutex
	calls []string
	fn    func(dev transport.Device, args []string) (string, error)
}

func (s *stubInvoker) answer(dev transport.Device, prefix string, args []string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, string(dev)+": "+prefix+strings.Join(args, " "))
	s.mu.Unlock()
	if s.fn == nil {
		return "", nil
	}
	return s.fn(dev, args)
}

func (s *stubInvoker) Invoke(_ context.Context, kind transport.Kind, dev transport.Device, args ...string) (string, error) {
	return s.answer(dev, kind.Program()+" ", args)
}

func (s *stubInvoker) Shell(_ context.Context, dev transport.Device, args ...string) (string, error) {
	return s.answer(dev, "shell ", args)
}

func (s *stubInvoker) Tool(_ context.Context, kind transport.Kind, args ...string) (string, error) {
	return s.answer("", "tool "+kind.Program()+" ", args)
}

func (s *stubInvoker) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type memoryRecorder struct {
	mu      sync.Mutex
	records []storage.ResultRecord
	ctxErrs []error
	err     error
	closed  bool
}

func (m *memoryRecorder) Write(ctx context.Context, record storage.ResultRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	return m.err
}

func (m *memoryRecorder) Close() error {
	m.closed = true
	return nil
}

func newTestAgent(inv *stubInvoker, rec Recorder, parallel int) *Agent {
	a := NewWithOptions(Options{Invoker: inv, Recorder: rec, MaxParallel: parallel, Host: "host-1"})
	clock := time.UnixMilli(1_700_000_000_000)
	var mu sync.Mutex
	a.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	var seq atomic.Int64
	a.newID = func() string {
		return fmt.Sprintf("run-%d", seq.Add(1))
	}
	return a
}

func TestRunRecordsReport(t *testing.T) {
	inv := &stubInvoker{fn: func(transport.Device, []string) (string, error) {
		return "up 3 days", nil
	}}
	rec := &memoryRecorder{}
	a := newTestAgent(inv, rec, 1)

	r := a.Run(context.Background(), "uptime", " SER1 ", manufacturer.Samsung, nil)
	assert.Equal(t, "Device uptime:\nup 3 days", r.Render())

	require.Len(t, rec.records, 1)
	got := rec.records[0]
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, "host-1", got.Host)
	assert.Equal(t, "SER1", got.Serial)
	assert.Equal(t, "Samsung", got.Manufacturer)
	assert.Equal(t, "uptime", got.Operation)
	assert.Equal(t, string(report.OutcomeSuccess), got.Outcome)
	assert.Equal(t, 1, got.StepCount)
	assert.Equal(t, 0, got.FailedCount)
	assert.Equal(t, r.Render(), got.Rendered)
	assert.Equal(t, time.Second, got.Duration())
	assert.Equal(t, []string{"SER1: shell uptime"}, inv.snapshot())

	require.NoError(t, a.Close())
	assert.True(t, rec.closed)
}

func TestRecorderFailureDoesNotChangeReport(t *testing.T) {
	inv := &stubInvoker{fn: func(transport.Device, []string) (string, error) {
		return "", &transport.Error{Kind: transport.CommandRejected, Message: "error: device offline"}
	}}
	rec := &memoryRecorder{err: errors.New("disk full")}
	a := newTestAgent(inv, rec, 1)

	r := a.Run(context.Background(), "uptime", "SER1", manufacturer.Generic, nil)
	assert.Equal(t, report.OutcomeFailed, r.Outcome())
	assert.Equal(t, []string{"failed: error: device offline"}, r.Lines())
	assert.Len(t, rec.records, 1)
}

func TestUnknownOperationIsRejectedAndNotRecorded(t *testing.T) {
	inv := &stubInvoker{}
	rec := &memoryRecorder{}
	a := newTestAgent(inv, rec, 1)

	r := a.Run(context.Background(), "teleport", "SER1", manufacturer.Generic, nil)
	assert.Equal(t, report.OutcomeRejected, r.Outcome())
	assert.Equal(t, []string{"Unknown operation: teleport"}, r.Lines())
	assert.Empty(t, inv.snapshot())
	assert.Empty(t, rec.records)
}

func TestRejectedRunIsRecordedWithoutCalls(t *testing.T) {
	inv := &stubInvoker{}
	rec := &memoryRecorder{}
	a := newTestAgent(inv, rec, 1)

	r := a.Run(context.Background(), "imei-write", "SER1", manufacturer.Samsung, nil)
	assert.Equal(t, report.OutcomeRejected, r.Outcome())
	assert.Equal(t, []string{"Usage: imei-write <imei>"}, r.Lines())
	assert.Empty(t, inv.snapshot())
	require.Len(t, rec.records, 1)
	assert.Equal(t, string(report.OutcomeRejected), rec.records[0].Outcome)
}

func TestCanceledRunIsStillRecorded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &memoryRecorder{}
	a := newTestAgent(&stubInvoker{}, rec, 1)

	a.Run(ctx, "gms-repair", "SER1", manufacturer.Generic, nil)
	require.Len(t, rec.records, 1)
	assert.NoError(t, rec.ctxErrs[0])
}

func TestRunOnDevicesDedupesAndKeepsOrder(t *testing.T) {
	inv := &stubInvoker{fn: func(dev transport.Device, _ []string) (string, error) {
		return "up on " + string(dev), nil
	}}
	rec := &memoryRecorder{}
	a := newTestAgent(inv, rec, 3)

	results := a.RunOnDevices(context.Background(), "uptime",
		[]string{"B", "A", "B", " ", "C", "A"}, manufacturer.Generic, nil)

	serials := make([]string, 0, len(results))
	for _, res := range results {
		serials = append(serials, res.Serial)
		require.NotNil(t, res.Report)
		assert.Equal(t, []string{"up on " + res.Serial}, res.Report.Lines())
	}
	if diff := cmp.Diff([]string{"B", "A", "C"}, serials); diff != "" {
		t.Fatalf("serial order mismatch (-want +got):\n%s", diff)
	}
	assert.ElementsMatch(t, []string{"A: shell uptime", "B: shell uptime", "C: shell uptime"}, inv.snapshot())
	assert.Len(t, rec.records, 3)
}

func TestRunOnDevicesBoundsParallelism(t *testing.T) {
	var inFlight, peak atomic.Int32
	inv := &stubInvoker{fn: func(transport.Device, []string) (string, error) {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return "ok", nil
	}}
	a := newTestAgent(inv, nil, 2)

	results := a.RunOnDevices(context.Background(), "uptime",
		[]string{"D1", "D2", "D3", "D4", "D5"}, manufacturer.Generic, nil)
	assert.Len(t, results, 5)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestRunOnDevicesSurvivesPanic(t *testing.T) {
	inv := &stubInvoker{fn: func(dev transport.Device, _ []string) (string, error) {
		if dev == "BAD" {
			panic("boom")
		}
		return "ok", nil
	}}
	a := newTestAgent(inv, nil, 2)

	results := a.RunOnDevices(context.Background(), "uptime", []string{"GOOD", "BAD"}, manufacturer.Generic, nil)
	require.Len(t, results, 2)
	assert.Equal(t, report.OutcomeSuccess, results[0].Report.Outcome())
	assert.Equal(t, report.OutcomeFailed, results[1].Report.Outcome())
	assert.Equal(t, []string{"internal error: failed: panic: boom"}, results[1].Report.Lines())
}

func TestDedupeSerials(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, dedupeSerials([]string{" a", "b", "a ", ""}))
	assert.Empty(t, dedupeSerials(nil))
}

func TestNewKeepsLocalSinksWhenFeishuIsMisconfigured(t *testing.T) {
	t.Setenv(feishu.EnvAppID, "")
	t.Setenv(feishu.EnvAppSecret, "")
	jsonl := filepath.Join(t.TempDir(), "history.jsonl")

	cfg := config.Default()
	cfg.History.Disabled = true
	cfg.History.JSONLPath = jsonl
	cfg.Feishu.BitableURL = "https://example.feishu.cn/base/bascnAbc?table=tblXyz"

	a, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, a.recorder)

	a.record(context.Background(), storage.ResultRecord{RunID: "run-1", Serial: "SER1", Operation: "uptime"})
	require.NoError(t, a.Close())

	raw, err := os.ReadFile(jsonl)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"run_id":"run-1"`)
}
