package deviceagent

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"github.com/httprunner/DeviceAgent/pkg/manufacturer"
	"github.com/httprunner/DeviceAgent/pkg/report"
	"golang.org/x/sync/errgroup"
)

// DeviceReport pairs a serial with the report its operation produced.
type DeviceReport struct {
	Serial string
	Report *report.Report
}

// RunOnDevices runs one operation on every distinct serial, at most
// MaxParallel at a time. Repeated serials are collapsed so a device never
// has two operations in flight. Reports come back in first-seen order.
func (a *Agent) RunOnDevices(ctx context.Context, name string, serials []string, m manufacturer.Manufacturer, args []string) []DeviceReport {
	unique := dedupeSerials(serials)
	results := make([]DeviceReport, len(unique))

	var group errgroup.Group
	group.SetLimit(a.maxParallel)
	for i, serial := range unique {
		results[i].Serial = serial
		group.Go(func() error {
			results[i].Report = a.runSafe(ctx, name, serial, m, args)
			return nil
		})
	}
	_ = group.Wait()
	return results
}

// runSafe turns a panic inside one device's run into a failed report so the
// other devices keep going. Panics print to stderr rather than the logger.
func (a *Agent) runSafe(ctx context.Context, name, serial string, m manufacturer.Manufacturer, args []string) (r *report.Report) {
	defer func() {
		if rec := recover(); rec != nil {
			_, _ = fmt.Fprintf(os.Stderr, "WARN: %s on %s panicked: %v\n%s\n", name, serial, rec, debug.Stack())
			r = report.New(name + ":").Add(report.Failed("internal error", fmt.Errorf("panic: %v", rec)))
		}
	}()
	return a.Run(ctx, name, serial, m, args)
}

func dedupeSerials(serials []string) []string {
	seen := make(map[string]struct{}, len(serials))
	unique := make([]string, 0, len(serials))
	for _, raw := range serials {
		serial := strings.TrimSpace(raw)
		if serial == "" {
			continue
		}
		if _, ok := seen[serial]; ok {
			continue
		}
		seen[serial] = struct{}{}
		unique = append(unique, serial)
	}
	return unique
}
