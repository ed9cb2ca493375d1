package feishu

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/httprunner/DeviceAgent/pkg/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// maxTextField keeps long renders under the bitable cell limit.
const maxTextField = 50000

// ReportFields lists the column names of the report table.
type ReportFields struct {
	RunID        string
	Host         string
	Serial       string
	Manufacturer string
	Operation    string
	Args         string
	Title        string
	Outcome      string
	Steps        string
	Failed       string
	Report       string
	StepsJSON    string
	StartedAt    string
	DurationMs   string
}

// DefaultReportFields matches the columns expected in the report table.
var DefaultReportFields = ReportFields{
	RunID:        "RunID",
	Host:         "Host",
	Serial:       "DeviceSerial",
	Manufacturer: "Manufacturer",
	Operation:    "Operation",
	Args:         "Args",
	Title:        "Title",
	Outcome:      "Outcome",
	Steps:        "Steps",
	Failed:       "Failed",
	Report:       "Report",
	StepsJSON:    "StepsJSON",
	StartedAt:    "StartedAt",
	DurationMs:   "DurationMs",
}

// Publisher writes finished reports into a bitable table. It satisfies
// storage.Publisher.
type Publisher struct {
	client *Client
	ref    BitableRef
	fields ReportFields
}

// NewPublisher validates tableURL and binds it to client.
func NewPublisher(client *Client, tableURL string) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("feishu publisher: client is nil")
	}
	ref, err := ParseBitableURL(tableURL)
	if err != nil {
		return nil, err
	}
	return &Publisher{client: client, ref: ref, fields: DefaultReportFields}, nil
}

// NewPublisherFromEnv returns nil without error when tableURL is empty.
func NewPublisherFromEnv(tableURL string) (*Publisher, error) {
	tableURL = strings.TrimSpace(tableURL)
	if tableURL == "" {
		return nil, nil
	}
	client, err := NewClientFromEnv()
	if err != nil {
		return nil, errors.Wrap(err, "feishu publisher: init client failed")
	}
	log.Info().Str("tableURL", tableURL).Msg("feishu report publishing enabled")
	return NewPublisher(client, tableURL)
}

func (p *Publisher) Publish(ctx context.Context, record storage.ResultRecord) error {
	if p == nil || p.client == nil {
		return errors.New("feishu publisher: publisher is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	fields := p.buildFields(record)
	id, err := p.client.CreateRecord(ctx, p.ref, fields)
	if err != nil {
		return errors.Wrap(annotateFieldError(err, fields), "feishu publisher: create report record failed")
	}
	log.Debug().Str("record_id", id).Str("run_id", record.RunID).Msg("feishu report published")
	return nil
}

func (p *Publisher) Name() string { return "feishu" }

func (p *Publisher) buildFields(record storage.ResultRecord) map[string]any {
	f := p.fields
	fields := map[string]any{
		f.RunID:      record.RunID,
		f.Operation:  record.Operation,
		f.Outcome:    record.Outcome,
		f.Steps:      record.StepCount,
		f.Failed:     record.FailedCount,
		f.DurationMs: record.Duration().Milliseconds(),
	}
	setText := func(name, value string) {
		if name == "" || strings.TrimSpace(value) == "" {
			return
		}
		fields[name] = clip(value)
	}
	setText(f.Host, record.Host)
	setText(f.Serial, record.Serial)
	setText(f.Manufacturer, record.Manufacturer)
	setText(f.Args, strings.Join(record.Args, " "))
	setText(f.Title, record.Title)
	setText(f.Report, record.Rendered)
	setText(f.StepsJSON, record.Steps)
	if !record.StartedAt.IsZero() && f.StartedAt != "" {
		fields[f.StartedAt] = record.StartedAt.UnixMilli()
	}
	return fields
}

func clip(s string) string {
	if len(s) <= maxTextField {
		return s
	}
	cut := maxTextField
	for cut > 0 && (s[cut]&0xC0) == 0x80 {
		cut--
	}
	return s[:cut]
}

// annotateFieldError names the columns that were sent when the table is
// missing one of them.
func annotateFieldError(err error, fields map[string]any) error {
	if err == nil || !strings.Contains(err.Error(), "FieldNameNotFound") {
		return err
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return errors.Wrap(err, fmt.Sprintf("payload_fields=%s", strings.Join(names, ",")))
}
