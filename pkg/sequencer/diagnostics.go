package sequencer

import (
	"context"

	"github.com/httprunner/DeviceAgent/pkg/report"
	"github.com/httprunner/DeviceAgent/pkg/transport"
)

// ToolCheck verifies both front-end programs can be launched. No device is
// involved.
func (s *Sequencer) ToolCheck(ctx context.Context) *report.Report {
	r := report.New("Tool availability:")
	s.each(ctx, "", r,
		stepOf(toolCall("adb", transport.DebugBridge, "version")),
		stepOf(toolCall("fastboot", transport.Bootloader, "--version")),
	)
	return r
}

// DeviceInfo reads the basic identity properties.
func (s *Sequencer) DeviceInfo(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("Device info:")
	s.props(ctx, dev, r, "--", []prop{
		{"manufacturer", "ro.product.manufacturer"},
		{"model", "ro.product.model"},
		{"android_version", "ro.build.version.release"},
		{"sdk_version", "ro.build.version.sdk"},
		{"serial", "ro.serialno"},
		{"build_fingerprint", "ro.build.fingerprint"},
	})
	return r
}
