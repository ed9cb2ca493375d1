package sequencer

import (
	"context"
	"fmt"
	"strings"

	"github.com/httprunner/DeviceAgent/pkg/report"
	"github.com/httprunner/DeviceAgent/pkg/transport"
)

const maxSensorLines = 30

// filterLines keeps trimmed lines matching keep, up to limit lines when
// limit is positive.
func filterLines(text string, limit int, keep func(string) bool) (lines []string, truncated bool) {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || !keep(trimmed) {
			continue
		}
		if limit > 0 && len(lines) == limit {
			return lines, true
		}
		lines = append(lines, trimmed)
	}
	return lines, false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func detected(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

// Battery dumps the battery service.
func (s *Sequencer) Battery(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("Battery Status:")
	s.single(ctx, dev, r, shellCall("", "dumpsys", "battery"))
	return r
}

// BatteryStats shows a capped check-in summary of battery statistics.
func (s *Sequencer) BatteryStats(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("Battery Statistics (summary):").WithCap(500)
	s.single(ctx, dev, r, shellCall("", "dumpsys", "batterystats", "--checkin"))
	return r
}

// Display reports resolution, density, display modes and touch axes.
func (s *Sequencer) Display(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("Display Test:")
	s.each(ctx, dev, r,
		step{call: shellCall("Resolution", "wm", "size"), failText: "unknown"},
		step{call: shellCall("Density", "wm", "density"), failText: "unknown"},
		step{
			call:     shellCall("Display info", "dumpsys", "display"),
			failText: "not available",
			onOK: func(out string) report.StepOutcome {
				lines, _ := filterLines(out, 0, func(l string) bool {
					return containsAny(l, "mPhysicalDisplayInfo", "mBaseDisplayInfo", "fps")
				})
				return report.Succeeded("Display info", strings.Join(lines, "\n"))
			},
		},
		step{
			call:     shellCall("Touch input devices", "getevent", "-lp"),
			failText: "not available",
			onOK: func(out string) report.StepOutcome {
				n := strings.Count(out, "ABS_MT_POSITION")
				return report.Succeeded("Touch input devices", fmt.Sprintf("%d axes found", n))
			},
		},
	)
	return r
}

// Sensors lists sensor entries from the sensor service.
func (s *Sequencer) Sensors(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("Sensor Report:")
	s.each(ctx, dev, r, step{
		call: shellCall("", "dumpsys", "sensorservice"),
		onOK: func(out string) report.StepOutcome {
			lines, truncated := filterLines(out, maxSensorLines, func(l string) bool {
				return strings.HasPrefix(l, "{") || containsAny(l, "name=", "vendor=")
			})
			if len(lines) == 0 {
				return report.Succeeded("", "No sensor data available.")
			}
			if truncated {
				lines = append(lines, report.TruncatedMarker)
			}
			return report.Succeeded("", strings.Join(lines, "\n"))
		},
	})
	return r
}

// Audio summarises stream and speaker state and pops the volume UI.
func (s *Sequencer) Audio(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("Audio Test:")
	s.each(ctx, dev, r,
		step{
			call:     shellCall("Audio dump", "dumpsys", "audio"),
			failText: "not available",
			onOK: func(out string) report.StepOutcome {
				lines, _ := filterLines(report.FirstLines(out, 30), 0, func(l string) bool {
					return containsAny(l, "Stream", "speaker", "SPEAKER", "volume")
				})
				return report.Succeeded("Audio dump", strings.Join(lines, "\n"))
			},
		},
		step{call: shellCall("Volume UI", "media", "volume", "--show"), quiet: true},
	)
	return r
}

// Connectivity checks WiFi, Bluetooth, GPS and NFC.
func (s *Sequencer) Connectivity(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("Connectivity Test:")
	probe := func(label string, cmd []string, failText string, ok func(string) bool, yes, no string) step {
		return step{
			call:     shellCall(label, cmd...),
			failText: failText,
			onOK: func(out string) report.StepOutcome {
				return report.Succeeded(label, detected(ok(out), yes, no))
			},
		}
	}
	s.each(ctx, dev, r,
		probe("WiFi", []string{"dumpsys", "wifi"}, "check failed",
			func(o string) bool { return strings.Contains(o, "Wi-Fi is enabled") }, "enabled", "disabled/unknown"),
		probe("Bluetooth", []string{"dumpsys", "bluetooth_manager"}, "check failed",
			func(o string) bool { return strings.Contains(o, "enabled: true") }, "enabled", "disabled/unknown"),
		probe("GPS", []string{"dumpsys", "location"}, "check failed",
			func(o string) bool { return containsAny(o, "gps", "GPS") }, "available", "not detected"),
		probe("NFC", []string{"dumpsys", "nfc"}, "not available",
			func(o string) bool { return containsAny(o, "mState=", "NFC") }, "available", "not detected"),
	)
	return r
}

// Cameras counts cameras and lists their facing.
func (s *Sequencer) Cameras(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("Camera Report:")
	s.each(ctx, dev, r, step{
		call: shellCall("Cameras detected", "dumpsys", "media.camera"),
		onOK: func(out string) report.StepOutcome {
			lines, _ := filterLines(out, 0, func(l string) bool {
				return containsAny(l, "Camera ID", "facing")
			})
			text := fmt.Sprintf("%d", strings.Count(out, "Camera ID"))
			if len(lines) > 0 {
				text += "\n" + strings.Join(lines, "\n")
			}
			return report.Succeeded("Cameras detected", text)
		},
	})
	return r
}

// Biometrics checks fingerprint and face unlock services.
func (s *Sequencer) Biometrics(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("Biometrics Test:")
	s.each(ctx, dev, r,
		step{
			call:     shellCall("Fingerprint", "dumpsys", "fingerprint"),
			failText: "check failed",
			onOK: func(out string) report.StepOutcome {
				return report.Succeeded("Fingerprint", detected(containsAny(out, "HAL", "fingerprint"), "sensor detected", "not available"))
			},
		},
		step{
			call:     shellCall("Face Unlock", "dumpsys", "face"),
			failText: "not available",
			onOK: func(out string) report.StepOutcome {
				ok := out != "" && !strings.Contains(out, "not found")
				return report.Succeeded("Face Unlock", detected(ok, "available", "not available"))
			},
		},
	)
	return r
}

// Storage shows filesystem usage and the primary storage volume.
func (s *Sequencer) Storage(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("Storage Report:")
	s.each(ctx, dev, r,
		step{
			call:     shellCall("Filesystems", "df", "-h"),
			failText: "not available",
			onOK: func(out string) report.StepOutcome {
				return report.Succeeded("Filesystems", report.FirstLines(out, 10))
			},
		},
		stepOf(shellCall("Primary storage UUID", "sm", "get-primary-storage-uuid")),
	)
	return r
}

// USB reports the USB function state and controller.
func (s *Sequencer) USB(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("USB Status:")
	s.each(ctx, dev, r,
		step{call: shellCall("USB mode", "getprop", "sys.usb.state"), failText: "unknown"},
		step{call: shellCall("Controller", "getprop", "sys.usb.controller"), failText: "--"},
	)
	return r
}

// Telephony reads SIM and radio properties.
func (s *Sequencer) Telephony(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("Telephony Status:")
	s.props(ctx, dev, r, "--", []prop{
		{"SIM state", "gsm.sim.state"},
		{"Operator", "gsm.sim.operator.alpha"},
		{"Network type", "gsm.network.type"},
		{"Signal strength", "gsm.nitz.time"},
		{"Phone type", "gsm.current.phone-type"},
		{"Data state", "gsm.defaultpdpcontext.active"},
	})
	return r
}

// HardwareAll runs every hardware section in a fixed order and nests each
// complete section report. Cancellation stops before the next section.
func (s *Sequencer) HardwareAll(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("Full Hardware Diagnostics:")
	sections := []func(context.Context, transport.Device) *report.Report{
		s.Battery,
		s.Sensors,
		s.Display,
		s.Audio,
		s.Connectivity,
		s.Cameras,
		s.Biometrics,
		s.Storage,
		s.USB,
		s.Telephony,
	}
	for _, section := range sections {
		if err := ctx.Err(); err != nil {
			r.Abort(err.Error())
			break
		}
		r.AddSection(section(ctx, dev))
	}
	return r
}
