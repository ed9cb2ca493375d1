package deviceagent

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/httprunner/DeviceAgent/internal/config"
	"github.com/httprunner/DeviceAgent/pkg/feishu"
	"github.com/httprunner/DeviceAgent/pkg/manufacturer"
	"github.com/httprunner/DeviceAgent/pkg/report"
	"github.com/httprunner/DeviceAgent/pkg/sequencer"
	"github.com/httprunner/DeviceAgent/pkg/storage"
	"github.com/httprunner/DeviceAgent/pkg/transport"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Recorder persists finished reports. *storage.Manager satisfies it.
type Recorder interface {
	Write(ctx context.Context, record storage.ResultRecord) error
	Close() error
}

// Agent dispatches catalog operations and records every report it returns.
type Agent struct {
	seq         *sequencer.Sequencer
	recorder    Recorder
	maxParallel int
	host        string

	now   func() time.Time
	newID func() string
}

// Options assembles an Agent from parts; New derives them from config.
type Options struct {
	Invoker   sequencer.Invoker
	Sequencer sequencer.Options
	// Recorder may be nil, in which case reports are not persisted.
	Recorder    Recorder
	MaxParallel int
	Host        string
}

// NewWithOptions builds an Agent from explicit parts.
func NewWithOptions(opts Options) *Agent {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 1
	}
	return &Agent{
		seq:         sequencer.New(opts.Invoker, opts.Sequencer),
		recorder:    opts.Recorder,
		maxParallel: opts.MaxParallel,
		host:        opts.Host,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// New wires the transport client and the configured sinks.
func New(cfg config.Config) (*Agent, error) {
	client := transport.NewClient(transport.Config{
		ADBPath:      cfg.Transport.ADBPath,
		FastbootPath: cfg.Transport.FastbootPath,
		Timeout:      cfg.Transport.Timeout.Duration,
	})
	var recorder Recorder
	if !cfg.History.Disabled || strings.TrimSpace(cfg.History.JSONLPath) != "" || cfg.Feishu.BitableURL != "" {
		storeCfg := storage.Config{JSONLPath: cfg.History.JSONLPath}
		if !cfg.History.Disabled {
			storeCfg.DBPath = cfg.History.DBPath
		}
		publisher, err := feishu.NewPublisherFromEnv(cfg.Feishu.BitableURL)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("bitable", cfg.Feishu.BitableURL).
				Msg("feishu publishing disabled, keeping local history only")
		case publisher != nil:
			storeCfg.Publisher = publisher
		}
		manager, err := storage.NewManager(storeCfg)
		if err != nil {
			return nil, errors.Wrap(err, "init report storage failed")
		}
		log.Debug().Str("sinks", manager.Name()).Msg("report storage ready")
		recorder = manager
	}
	return NewWithOptions(Options{
		Invoker: client,
		Sequencer: sequencer.Options{
			BackupRoot:  cfg.Sequencer.BackupRoot,
			GMSPackages: cfg.Sequencer.GMSPackages,
		},
		Recorder:    recorder,
		MaxParallel: cfg.MaxParallel,
		Host:        HostID(),
	}), nil
}

// Run executes one catalog operation against serial and records the
// result. An unknown operation yields a rejection that is not recorded.
func (a *Agent) Run(ctx context.Context, name, serial string, m manufacturer.Manufacturer, args []string) *report.Report {
	op, ok := sequencer.Lookup(name)
	if !ok {
		return report.Rejected("DeviceAgent:", "Unknown operation: "+strings.TrimSpace(name))
	}
	target := sequencer.Target{Device: transport.Device(strings.TrimSpace(serial)), Manufacturer: m}

	started := a.now()
	r := op.Run(ctx, a.seq, target, args)
	finished := a.now()

	record := storage.ResultRecord{
		RunID:        a.newID(),
		Host:         a.host,
		Serial:       string(target.Device),
		Manufacturer: m.Name(),
		Operation:    op.Name,
		Args:         args,
		Title:        r.Title,
		Outcome:      string(r.Outcome()),
		StepCount:    r.StepCount(),
		FailedCount:  r.FailedCount(),
		Rendered:     r.Render(),
		Steps:        r.StepsJSON(),
		StartedAt:    started,
		FinishedAt:   finished,
	}
	log.Info().
		Str("run_id", record.RunID).
		Str("op", op.Name).
		Str("serial", record.Serial).
		Str("outcome", record.Outcome).
		Int("steps", record.StepCount).
		Int("failed", record.FailedCount).
		Dur("elapsed", record.Duration()).
		Msg("operation finished")
	a.record(ctx, record)
	return r
}

// record never alters the report: sink failures are only logged.
func (a *Agent) record(ctx context.Context, record storage.ResultRecord) {
	if a.recorder == nil {
		return
	}
	if err := a.recorder.Write(context.WithoutCancel(ctx), record); err != nil {
		log.Error().Err(err).Str("run_id", record.RunID).Msg("record report failed")
	}
}

// Close flushes and closes the recorder.
func (a *Agent) Close() error {
	if a == nil || a.recorder == nil {
		return nil
	}
	return a.recorder.Close()
}
