package sequencer

import (
	"context"
	"strings"

	"github.com/httprunner/DeviceAgent/pkg/guard"
	"github.com/httprunner/DeviceAgent/pkg/manufacturer"
	"github.com/httprunner/DeviceAgent/pkg/report"
	"github.com/httprunner/DeviceAgent/pkg/transport"
)

const blockByName = "/dev/block/bootdevice/by-name/"

var (
	imeiPartitions = []string{"efs", "modemst1", "modemst2", "fsg", "fsc"}
	nvPartitions   = []string{"modemst1", "modemst2", "fsg", "fsc"}
)

func mkdirStep(dir string) step {
	label := "Prepare " + dir
	return step{
		call: shellCall(label, "mkdir", "-p", dir),
		onOK: func(string) report.StepOutcome { return report.Succeeded(label, "ready") },
	}
}

func ddStep(label, src, dst, failText string) step {
	return step{
		call:     shellCall(label, "dd", "if="+src, "of="+dst),
		quiet:    true,
		failText: failText,
	}
}

// ReadIMEI probes the IMEI through several services, then opens the dialer
// code *#06#.
func (s *Sequencer) ReadIMEI(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("IMEI Information:")
	probes := []call{
		shellCall("service call", "service", "call", "iphonesubinfo", "1"),
		shellCall("getprop", "getprop", "persist.radio.imei"),
		shellCall("dumpsys", "dumpsys", "iphonesubinfo"),
	}
	steps := make([]step, 0, len(probes)+1)
	for _, c := range probes {
		label := c.label
		steps = append(steps, step{
			call:     c,
			failText: "not available",
			onOK: func(out string) report.StepOutcome {
				if out == "" {
					return report.Succeeded(label, "not available")
				}
				return report.Succeeded(label, out)
			},
		})
	}
	steps = append(steps, step{
		call:  shellCall("Dialer IMEI check (*#06#)", "am", "start", "-a", "android.intent.action.DIAL", "-d", "tel:%2A%2306%23"),
		quiet: true,
	})
	s.each(ctx, dev, r, steps...)
	return r
}

// BackupIMEI copies the identity partitions to device storage.
func (s *Sequencer) BackupIMEI(ctx context.Context, dev transport.Device) *report.Report {
	dir := s.backupDir("imei_backup")
	r := report.New("IMEI/EFS Backup:").WithMarker("backed up")
	steps := []step{mkdirStep(dir)}
	for _, part := range imeiPartitions {
		steps = append(steps, ddStep(part, blockByName+part, dir+"/"+part+".img", "not found or access denied"))
	}
	s.each(ctx, dev, r, steps...)
	return r
}

// WriteIMEI validates the IMEI and describes the vendor's write procedure.
// No call is issued.
func (s *Sequencer) WriteIMEI(imei string, m manufacturer.Manufacturer) *report.Report {
	if err := guard.IMEI(imei); err != nil {
		return report.Rejected("IMEI Write:", err.Error())
	}
	title, lines := manufacturer.StrategyFor(m).IMEIWrite(imei)
	return report.New(title).AddNote(lines...)
}

// GMSCheck reports which Google services packages are installed.
func (s *Sequencer) GMSCheck(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("GMS Package Status:")
	steps := make([]step, 0, len(GMSCheckPackages))
	for _, pkg := range GMSCheckPackages {
		steps = append(steps, step{
			call:     shellCall(pkg, "pm", "list", "packages", pkg),
			failText: "MISSING",
			onOK: func(out string) report.StepOutcome {
				if strings.Contains(out, pkg) {
					return report.Succeeded(pkg, "installed")
				}
				return report.FailedAs(pkg, "MISSING", nil)
			},
		})
	}
	s.each(ctx, dev, r, steps...)
	return r
}

// GMSRepair clears every configured package, force-stops GMS core and
// replays the boot broadcast. Each step runs whatever the previous ones did.
func (s *Sequencer) GMSRepair(ctx context.Context, dev transport.Device) *report.Report {
	const title = "GMS Repair:"
	for _, pkg := range s.opts.GMSPackages {
		if err := guard.PackageName(pkg); err != nil {
			return report.Rejected(title, err.Error())
		}
	}
	r := report.New(title)
	steps := make([]step, 0, len(s.opts.GMSPackages)+2)
	for _, pkg := range s.opts.GMSPackages {
		steps = append(steps, stepOf(shellCall("Cleared cache "+pkg, "pm", "clear", pkg)))
	}
	steps = append(steps,
		step{call: shellCall("Force-stop GMS", "am", "force-stop", "com.google.android.gms"), quiet: true},
		step{call: shellCall("Boot broadcast", "am", "broadcast", "-a", "android.intent.action.BOOT_COMPLETED"), quiet: true},
	)
	s.each(ctx, dev, r, steps...)
	r.AddFooter("Reboot recommended for full effect.")
	return r
}

// GMSInstall installs a GMS package archive from the host.
func (s *Sequencer) GMSInstall(ctx context.Context, dev transport.Device, apk string) *report.Report {
	const title = "GMS install:"
	if err := guard.RequiredPath(apk, "APK file path is required."); err != nil {
		return report.Rejected(title, err.Error())
	}
	r := report.New(title)
	s.single(ctx, dev, r, adbCall("adb install -r", "install", "-r", apk))
	return r
}

// EFSBackup archives /efs when it is listable.
func (s *Sequencer) EFSBackup(ctx context.Context, dev transport.Device) *report.Report {
	dir := s.backupDir("efs_backup")
	archive := dir + "/efs.tar.gz"
	r := report.New("EFS backup:")
	ok := s.pipeline(ctx, dev, r,
		mkdirStep(dir),
		stepOf(shellCall("Contents", "ls", "/efs/")),
		step{call: shellCall("Archive", "tar", "-czf", archive, "/efs/"), quiet: true},
	)
	if ok {
		r.AddNote("Saved to: " + archive)
	} else if !r.Aborted {
		r.AddNote("EFS partition not accessible. Root may be required.")
	}
	return r
}

// EFSRestore unpacks the archive written by EFSBackup.
func (s *Sequencer) EFSRestore(ctx context.Context, dev transport.Device) *report.Report {
	archive := s.backupDir("efs_backup") + "/efs.tar.gz"
	r := report.New("EFS restore:")
	ok := s.pipeline(ctx, dev, r,
		step{call: shellCall("Backup "+archive, "ls", archive), quiet: true},
		step{call: shellCall("Extract", "tar", "-xzf", archive, "-C", "/"), quiet: true},
	)
	switch {
	case ok:
		r.AddFooter("Reboot required.")
	case !r.Aborted && len(r.Steps) == 1:
		r.AddNote("No EFS backup found. Run backup first.")
	}
	return r
}

// NVBackup copies the modem NV partitions to device storage.
func (s *Sequencer) NVBackup(ctx context.Context, dev transport.Device) *report.Report {
	dir := s.backupDir("nv_backup")
	r := report.New("NV Data Backup:").WithMarker("saved")
	steps := []step{mkdirStep(dir)}
	for _, part := range nvPartitions {
		steps = append(steps, ddStep(part, blockByName+part, dir+"/"+part+".img", "failed (root required)"))
	}
	s.each(ctx, dev, r, steps...)
	return r
}

// NVRestore writes the saved NV images back.
func (s *Sequencer) NVRestore(ctx context.Context, dev transport.Device) *report.Report {
	dir := s.backupDir("nv_backup")
	r := report.New("NV Data Restore:").WithMarker("restored")
	steps := make([]step, 0, len(nvPartitions))
	for _, part := range nvPartitions {
		steps = append(steps, ddStep(part, dir+"/"+part+".img", blockByName+part, "failed"))
	}
	s.each(ctx, dev, r, steps...)
	r.AddFooter("Reboot required.")
	return r
}

// DRKRepair removes Samsung device root key provisioning so it is redone.
func (s *Sequencer) DRKRepair(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("DRK Repair (Samsung):")
	rootStep := func(c call) step {
		return step{call: c, quiet: true, failText: "failed (root required)"}
	}
	s.each(ctx, dev, r,
		rootStep(shellCall("Removing DRK flag", "rm", "-f", "/efs/prov/cc.dat")),
		rootStep(shellCall("Clearing DRK data", "rm", "-rf", "/efs/prov_data/")),
		rootStep(shellCall("Removing warranty void", "rm", "-f", "/efs/prov/ridge.dat")),
	)
	r.AddFooter("Reboot required. DRK will re-provision on next boot.")
	return r
}

// KnoxCounter reads the Samsung warranty bit.
func (s *Sequencer) KnoxCounter(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("Knox Warranty Counter:")
	c := shellCall("knox_warranty", "cat", "/sys/kernel/security/knox/knox_warranty")
	out, err := s.exec(ctx, dev, c)
	if err != nil {
		r.Add(report.Failed(c.label, err))
		r.AddNote("Knox counter not readable. Not a Samsung device or root required.")
		return r
	}
	val := strings.TrimSpace(out)
	state := "OK"
	if val == "1" || strings.Contains(val, "0x1") {
		state = "TRIPPED"
	}
	r.Add(report.Succeeded(c.label, val+" ("+state+")"))
	return r
}

// CSCChange validates the region code and describes the change.
func (s *Sequencer) CSCChange(code string) *report.Report {
	if err := guard.CSC(code); err != nil {
		return report.Rejected("CSC Change:", err.Error())
	}
	return report.New("CSC Change to "+code+":").AddNote(
		"Method: Write CSC code to sales_code.dat in EFS.",
		"Path: /efs/imei/mps_code.dat",
		"Note: Factory reset required after CSC change.",
		"This operation requires root access.",
	)
}

// BasebandCheck reads modem and radio properties.
func (s *Sequencer) BasebandCheck(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("Baseband/Modem Info:")
	s.props(ctx, dev, r, "not available", []prop{
		{"Baseband", "gsm.version.baseband"},
		{"RIL Version", "gsm.version.ril-impl"},
		{"Modem Board", "ro.board.platform"},
		{"Radio", "gsm.current.phone-type"},
	})
	return r
}

// BasebandRepair resets modem diagnostics and clears the modem cache.
func (s *Sequencer) BasebandRepair(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("Baseband Repair:")
	s.each(ctx, dev, r,
		step{call: shellCall("Reset modem diag", "setprop", "persist.sys.modem.diag", ",default"), quiet: true},
		step{
			call:     shellCall("Clear modem cache", "rm", "-rf", "/cache/modem_*"),
			quiet:    true,
			failText: "failed (root may be required)",
		},
	)
	r.AddNote("Reflashing modem partition may be required for severe issues.")
	r.AddFooter("Reboot required.")
	return r
}

// BuildProps reads the identifying build properties.
func (s *Sequencer) BuildProps(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("Build Properties:")
	s.props(ctx, dev, r, "--", []prop{
		{"Model", "ro.product.model"},
		{"Device", "ro.product.device"},
		{"Brand", "ro.product.brand"},
		{"Manufacturer", "ro.product.manufacturer"},
		{"Android Version", "ro.build.version.release"},
		{"SDK", "ro.build.version.sdk"},
		{"Security Patch", "ro.build.version.security_patch"},
		{"Build Number", "ro.build.display.id"},
		{"Fingerprint", "ro.build.fingerprint"},
		{"Hardware", "ro.hardware"},
		{"Bootloader", "ro.bootloader"},
		{"Board", "ro.board.platform"},
	})
	return r
}
