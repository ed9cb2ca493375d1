package sequencer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/httprunner/DeviceAgent/pkg/guard"
	"github.com/httprunner/DeviceAgent/pkg/report"
	"github.com/httprunner/DeviceAgent/pkg/transport"
)

// DefaultLogcatLines is used when no line count is given.
const DefaultLogcatLines = 100

// Shell runs an arbitrary shell command split on whitespace.
func (s *Sequencer) Shell(ctx context.Context, dev transport.Device, command string) *report.Report {
	args := strings.Fields(command)
	title := "adb shell " + strings.Join(args, " ")
	if len(args) == 0 {
		return report.Rejected("adb shell", "No command entered.")
	}
	r := report.New(title).WithMarker("(command returned no output)")
	s.single(ctx, dev, r, shellCall("", args...))
	return r
}

// Logcat dumps the last lines of the log buffer.
func (s *Sequencer) Logcat(ctx context.Context, dev transport.Device, lines int) *report.Report {
	if lines <= 0 {
		lines = DefaultLogcatLines
	}
	r := report.New(fmt.Sprintf("Logcat (last %d lines):", lines))
	s.single(ctx, dev, r, adbCall("", "logcat", "-d", "-t", strconv.Itoa(lines)))
	return r
}

// LogcatClear empties the log buffer.
func (s *Sequencer) LogcatClear(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("Logcat:").WithMarker("cleared")
	s.each(ctx, dev, r, step{call: adbCall("Clear buffer", "logcat", "-c"), quiet: true})
	return r
}

// Pull copies a device file to the host.
func (s *Sequencer) Pull(ctx context.Context, dev transport.Device, remote, local string) *report.Report {
	const title = "Pull:"
	if strings.TrimSpace(remote) == "" || strings.TrimSpace(local) == "" {
		return report.Rejected(title, "Both remote and local paths are required.")
	}
	r := report.New(title)
	s.single(ctx, dev, r, adbCall(remote+" -> "+local, "pull", remote, local))
	return r
}

// Push copies a host file to the device.
func (s *Sequencer) Push(ctx context.Context, dev transport.Device, local, remote string) *report.Report {
	const title = "Push:"
	if strings.TrimSpace(remote) == "" || strings.TrimSpace(local) == "" {
		return report.Rejected(title, "Both local and remote paths are required.")
	}
	r := report.New(title)
	s.single(ctx, dev, r, adbCall(local+" -> "+remote, "push", local, remote))
	return r
}

// List lists a device directory, /sdcard/ by default.
func (s *Sequencer) List(ctx context.Context, dev transport.Device, dir string) *report.Report {
	if strings.TrimSpace(dir) == "" {
		dir = "/sdcard/"
	}
	r := report.New(dir + ":")
	s.single(ctx, dev, r, shellCall("", "ls", "-la", dir))
	return r
}

// Install installs an APK, allowing reinstall and downgrade.
func (s *Sequencer) Install(ctx context.Context, dev transport.Device, apk string) *report.Report {
	const title = "Install:"
	if err := guard.RequiredPath(apk, "APK file path is required."); err != nil {
		return report.Rejected(title, err.Error())
	}
	r := report.New(title)
	s.single(ctx, dev, r, adbCall("adb install -r -d", "install", "-r", "-d", apk))
	return r
}

// Packages lists installed packages, optionally filtered.
func (s *Sequencer) Packages(ctx context.Context, dev transport.Device, filter string) *report.Report {
	args := []string{"pm", "list", "packages"}
	if f := strings.TrimSpace(filter); f != "" {
		args = append(args, f)
	}
	return s.packageList(ctx, dev, "Packages", args...)
}

// PackagesUser lists third-party packages.
func (s *Sequencer) PackagesUser(ctx context.Context, dev transport.Device) *report.Report {
	return s.packageList(ctx, dev, "User-installed packages", "pm", "list", "packages", "-3")
}

// PackagesSystem lists system packages.
func (s *Sequencer) PackagesSystem(ctx context.Context, dev transport.Device) *report.Report {
	return s.packageList(ctx, dev, "System packages", "pm", "list", "packages", "-s")
}

func (s *Sequencer) packageList(ctx context.Context, dev transport.Device, name string, args ...string) *report.Report {
	r := report.New(name + ":")
	if out, ok := s.single(ctx, dev, r, shellCall("", args...)); ok {
		r.Title = fmt.Sprintf("%s (%d):", name, countLines(out))
	}
	return r
}

// Disable uninstalls a package for user 0, keeping its data.
func (s *Sequencer) Disable(ctx context.Context, dev transport.Device, pkg string) *report.Report {
	title := fmt.Sprintf("Disable '%s':", pkg)
	if err := guard.PackageName(pkg); err != nil {
		return report.Rejected(title, err.Error())
	}
	r := report.New(title)
	s.single(ctx, dev, r, shellCall("", "pm", "uninstall", "-k", "--user", "0", pkg))
	return r
}

// Enable reinstalls a previously disabled package for the current user.
func (s *Sequencer) Enable(ctx context.Context, dev transport.Device, pkg string) *report.Report {
	title := fmt.Sprintf("Enable '%s':", pkg)
	if err := guard.PackageName(pkg); err != nil {
		return report.Rejected(title, err.Error())
	}
	r := report.New(title)
	s.single(ctx, dev, r, shellCall("", "cmd", "package", "install-existing", pkg))
	return r
}

// Backup starts a full adb backup to a host file.
func (s *Sequencer) Backup(ctx context.Context, dev transport.Device, path string) *report.Report {
	if strings.TrimSpace(path) == "" {
		path = "deviceagent_backup.ab"
	}
	r := report.New(fmt.Sprintf("Backup to '%s':", path)).WithMarker("initiated")
	if _, ok := s.single(ctx, dev, r, adbCall("adb backup", "backup", "-all", "-apk", "-shared", "-f", path)); ok {
		r.AddNote("Confirm on device screen.")
	}
	return r
}

// Restore starts a full adb restore from a host file.
func (s *Sequencer) Restore(ctx context.Context, dev transport.Device, path string) *report.Report {
	const title = "Restore:"
	if err := guard.RequiredPath(path, "Backup file path is required."); err != nil {
		return report.Rejected(title, err.Error())
	}
	r := report.New(fmt.Sprintf("Restore from '%s':", path)).WithMarker("initiated")
	if _, ok := s.single(ctx, dev, r, adbCall("adb restore", "restore", path)); ok {
		r.AddNote("Confirm on device screen.")
	}
	return r
}

// Screenshot captures the screen on the device, then pulls the file. The
// pull only runs when the capture succeeded.
func (s *Sequencer) Screenshot(ctx context.Context, dev transport.Device, local string) *report.Report {
	if strings.TrimSpace(local) == "" {
		local = "screenshot.png"
	}
	devicePath := s.opts.BackupRoot + "/screenshot.png"
	r := report.New("Screenshot:")
	ok := s.pipeline(ctx, dev, r,
		mkdirStep(s.opts.BackupRoot),
		step{call: shellCall("Capture "+devicePath, "screencap", "-p", devicePath), quiet: true},
		stepOf(adbCall("Pull to "+local, "pull", devicePath, local)),
	)
	if ok {
		r.AddNote(fmt.Sprintf("Screenshot saved to '%s'.", local))
	}
	return r
}

// ScreenRecord records up to three minutes of screen to device storage.
func (s *Sequencer) ScreenRecord(ctx context.Context, dev transport.Device) *report.Report {
	devicePath := s.opts.BackupRoot + "/screenrecord.mp4"
	r := report.New("Screen recording:")
	if _, ok := s.single(ctx, dev, r, shellCall("Saved to "+devicePath, "screenrecord", "--time-limit", "180", devicePath)); !ok {
		r.AddNote("Note: Some devices restrict screen recording.")
	}
	return r
}

// DevOptions opens the device info page so build number can be tapped.
func (s *Sequencer) DevOptions(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("Developer Options:").WithMarker("opened")
	s.each(ctx, dev, r, step{
		call:  shellCall("Device info settings", "am", "start", "-a", "android.settings.DEVICE_INFO_SETTINGS"),
		quiet: true,
	})
	r.AddNote(
		"Tap 'Build Number' 7 times to enable Developer Options.",
		"Then enable 'USB Debugging' in Developer Options.",
	)
	return r
}

// Uptime reports device uptime.
func (s *Sequencer) Uptime(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("Device uptime:")
	s.single(ctx, dev, r, shellCall("", "uptime"))
	return r
}

// Processes lists running processes, capped for display.
func (s *Sequencer) Processes(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("Running processes:").WithCap(2000)
	if out, ok := s.single(ctx, dev, r, shellCall("", "ps", "-A")); ok {
		r.Title = fmt.Sprintf("Running processes (%d):", countLines(out))
	}
	return r
}

// MemInfo shows the head of /proc/meminfo.
func (s *Sequencer) MemInfo(ctx context.Context, dev transport.Device) *report.Report {
	return s.head(ctx, dev, "Memory Info:", "/proc/meminfo", 10)
}

// CPUInfo shows the head of /proc/cpuinfo.
func (s *Sequencer) CPUInfo(ctx context.Context, dev transport.Device) *report.Report {
	return s.head(ctx, dev, "CPU Info:", "/proc/cpuinfo", 20)
}

func (s *Sequencer) head(ctx context.Context, dev transport.Device, title, path string, n int) *report.Report {
	r := report.New(title)
	s.each(ctx, dev, r, step{
		call: shellCall("", "cat", path),
		onOK: func(out string) report.StepOutcome {
			return report.Succeeded("", report.FirstLines(out, n))
		},
	})
	return r
}
