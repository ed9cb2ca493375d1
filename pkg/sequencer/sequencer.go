package sequencer

import (
	"context"
	"strings"

	"github.com/httprunner/DeviceAgent/pkg/report"
	"github.com/httprunner/DeviceAgent/pkg/transport"
	"github.com/rs/zerolog/log"
)

// Invoker is the transport surface the sequencer drives. *transport.Client
// satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, kind transport.Kind, dev transport.Device, args ...string) (string, error)
	Shell(ctx context.Context, dev transport.Device, args ...string) (string, error)
	Tool(ctx context.Context, kind transport.Kind, args ...string) (string, error)
}

// DefaultBackupRoot is the on-device directory for backups and captures.
const DefaultBackupRoot = "/sdcard/DeviceAgent"

// DefaultGMSPackages is the package list cleared by GMS repair.
var DefaultGMSPackages = []string{
	"com.google.android.gms",
	"com.google.android.gsf",
	"com.android.vending",
	"com.google.android.apps.setup",
}

// GMSCheckPackages is the wider list inspected by the GMS status check.
var GMSCheckPackages = []string{
	"com.google.android.gms",
	"com.google.android.gsf",
	"com.android.vending",
	"com.google.android.apps.setup",
	"com.google.android.setupwizard",
	"com.google.android.apps.restore",
}

// Options tunes paths and lists used by individual operations.
type Options struct {
	BackupRoot  string
	GMSPackages []string
}

// Sequencer turns high-level operations into ordered transport calls and
// folds every outcome into a report. Operations never return errors.
type Sequencer struct {
	inv  Invoker
	opts Options
}

// New builds a Sequencer; zero Options fields fall back to defaults.
func New(inv Invoker, opts Options) *Sequencer {
	opts.BackupRoot = strings.TrimRight(strings.TrimSpace(opts.BackupRoot), "/")
	if opts.BackupRoot == "" {
		opts.BackupRoot = DefaultBackupRoot
	}
	if len(opts.GMSPackages) == 0 {
		opts.GMSPackages = append([]string(nil), DefaultGMSPackages...)
	}
	return &Sequencer{inv: inv, opts: opts}
}

// Options returns the effective options.
func (s *Sequencer) Options() Options { return s.opts }

func (s *Sequencer) backupDir(name string) string {
	return s.opts.BackupRoot + "/" + name
}

// call is one primitive transport invocation with its display label.
type call struct {
	label string
	kind  transport.Kind
	shell bool
	tool  bool
	args  []string
}

func adbCall(label string, args ...string) call {
	return call{label: label, kind: transport.DebugBridge, args: args}
}

func shellCall(label string, args ...string) call {
	return call{label: label, kind: transport.DebugBridge, shell: true, args: args}
}

func fastbootCall(label string, args ...string) call {
	return call{label: label, kind: transport.Bootloader, args: args}
}

func toolCall(label string, kind transport.Kind, args ...string) call {
	return call{label: label, kind: kind, tool: true, args: args}
}

func (s *Sequencer) exec(ctx context.Context, dev transport.Device, c call) (string, error) {
	switch {
	case c.tool:
		return s.inv.Tool(ctx, c.kind, c.args...)
	case c.shell:
		return s.inv.Shell(ctx, dev, c.args...)
	default:
		return s.inv.Invoke(ctx, c.kind, dev, c.args...)
	}
}

// firstSuccess evaluates a fallback chain strictly in order and stops at the
// first success. Earlier failures are logged but not returned. The chain runs
// to completion even if ctx is canceled meanwhile.
func (s *Sequencer) firstSuccess(ctx context.Context, dev transport.Device, chain ...call) (string, call, error) {
	ctx = context.WithoutCancel(ctx)
	var (
		lastErr error
		last    call
	)
	for i, c := range chain {
		out, err := s.exec(ctx, dev, c)
		if err == nil {
			return out, c, nil
		}
		lastErr, last = err, c
		if i < len(chain)-1 {
			log.Debug().
				Str("serial", dev.String()).
				Str("step", c.label).
				Err(err).
				Msg("fallback alternative failed, trying next")
		}
	}
	return "", last, lastErr
}

// step is one entry of a continue-on-error or pipeline run. quiet drops the
// command output so the report's marker is shown instead. failText, when set,
// replaces the error in the displayed line.
type step struct {
	call
	quiet    bool
	failText string
	onOK     func(out string) report.StepOutcome
}

func stepOf(c call) step { return step{call: c} }

func (s *Sequencer) runStep(ctx context.Context, dev transport.Device, st step) (report.StepOutcome, bool) {
	out, err := s.exec(ctx, dev, st.call)
	if err != nil {
		if st.failText != "" {
			return report.FailedAs(st.label, st.failText, err), false
		}
		return report.Failed(st.label, err), false
	}
	if st.onOK != nil {
		return st.onOK(out), true
	}
	if st.quiet {
		out = ""
	}
	return report.Succeeded(st.label, out), true
}

// each attempts every step regardless of earlier failures. The context is
// checked before each step; on cancellation the report is marked aborted and
// each returns false.
func (s *Sequencer) each(ctx context.Context, dev transport.Device, r *report.Report, steps ...step) bool {
	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			r.Abort(err.Error())
			return false
		}
		outcome, _ := s.runStep(ctx, dev, st)
		r.Add(outcome)
	}
	return true
}

// pipeline runs steps while they succeed; later steps consume what earlier
// ones produced. It reports whether every step succeeded.
func (s *Sequencer) pipeline(ctx context.Context, dev transport.Device, r *report.Report, steps ...step) bool {
	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			r.Abort(err.Error())
			return false
		}
		outcome, ok := s.runStep(ctx, dev, st)
		r.Add(outcome)
		if !ok {
			return false
		}
	}
	return true
}

// single runs one informational call and reports it as-is.
func (s *Sequencer) single(ctx context.Context, dev transport.Device, r *report.Report, c call) (string, bool) {
	out, err := s.exec(ctx, dev, c)
	if err != nil {
		r.Add(report.Failed(c.label, err))
		return "", false
	}
	r.Add(report.Succeeded(c.label, out))
	return out, true
}

// prop is a labelled getprop key.
type prop struct {
	label string
	key   string
}

// props reads each property in order; empty or failed reads show missing.
func (s *Sequencer) props(ctx context.Context, dev transport.Device, r *report.Report, missing string, list []prop) {
	steps := make([]step, 0, len(list))
	for _, p := range list {
		label := p.label
		steps = append(steps, step{
			call:     shellCall(label, "getprop", p.key),
			failText: missing,
			onOK: func(out string) report.StepOutcome {
				if out == "" {
					return report.Succeeded(label, missing)
				}
				return report.Succeeded(label, out)
			},
		})
	}
	s.each(ctx, dev, r, steps...)
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}
