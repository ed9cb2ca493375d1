package sequencer

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/httprunner/DeviceAgent/pkg/guard"
	"github.com/httprunner/DeviceAgent/pkg/manufacturer"
	"github.com/httprunner/DeviceAgent/pkg/report"
	"github.com/httprunner/DeviceAgent/pkg/transport"
)

// Operation groups.
const (
	GroupBootloader  = "bootloader"
	GroupFlash       = "flash"
	GroupRepair      = "repair"
	GroupNetwork     = "network"
	GroupTools       = "tools"
	GroupHardware    = "hardware"
	GroupDiagnostics = "diagnostics"
)

// Target names the device and vendor an operation runs against.
type Target struct {
	Device       transport.Device
	Manufacturer manufacturer.Manufacturer
}

type runFunc func(ctx context.Context, s *Sequencer, t Target, args []string) *report.Report

// Operation is one catalog entry.
type Operation struct {
	Name    string
	Group   string
	Usage   string
	Summary string
	MinArgs int
	// MaxArgs < 0 accepts any number of trailing arguments.
	MaxArgs int
	// Offline operations issue no device-scoped call and need no serial.
	Offline bool

	run runFunc
}

// Run checks arity and the serial, then dispatches. Rejections issue no
// transport call.
func (op Operation) Run(ctx context.Context, s *Sequencer, t Target, args []string) *report.Report {
	if len(args) < op.MinArgs || (op.MaxArgs >= 0 && len(args) > op.MaxArgs) {
		return report.Rejected(op.Name+":", "Usage: "+op.Synopsis())
	}
	if !op.Offline {
		if err := guard.Serial(t.Device.String()); err != nil {
			return report.Rejected(op.Name+":", err.Error())
		}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return op.run(ctx, s, t, args)
}

// Synopsis is the name followed by the argument usage.
func (op Operation) Synopsis() string {
	if op.Usage == "" {
		return op.Name
	}
	return op.Name + " " + op.Usage
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

// device adapts a device-only operation.
func device(fn func(*Sequencer, context.Context, transport.Device) *report.Report) runFunc {
	return func(ctx context.Context, s *Sequencer, t Target, _ []string) *report.Report {
		return fn(s, ctx, t.Device)
	}
}

// deviceArg adapts a device operation taking one optional or required argument.
func deviceArg(fn func(*Sequencer, context.Context, transport.Device, string) *report.Report) runFunc {
	return func(ctx context.Context, s *Sequencer, t Target, args []string) *report.Report {
		return fn(s, ctx, t.Device, arg(args, 0))
	}
}

var catalog = []Operation{
	// bootloader
	{Name: "bl-status", Group: GroupBootloader, Summary: "Read bootloader lock state", run: device((*Sequencer).BootloaderStatus)},
	{Name: "oem-unlock-setting", Group: GroupBootloader, Summary: "Read the OEM unlock toggle", run: device((*Sequencer).OEMUnlockSetting)},
	{Name: "bl-unlock", Group: GroupBootloader, Summary: "Unlock the bootloader (vendor specific)",
		run: func(ctx context.Context, s *Sequencer, t Target, _ []string) *report.Report {
			return s.Unlock(ctx, t.Device, t.Manufacturer)
		}},
	{Name: "bl-relock", Group: GroupBootloader, Summary: "Relock the bootloader", run: device((*Sequencer).Relock)},
	{Name: "fastboot-vars", Group: GroupBootloader, Summary: "Query critical fastboot variables", run: device((*Sequencer).FastbootVars)},
	{Name: "vendor-notes", Group: GroupBootloader, Summary: "Show vendor warnings", Offline: true,
		run: func(_ context.Context, s *Sequencer, t Target, _ []string) *report.Report {
			return s.VendorNotes(t.Manufacturer)
		}},
	{Name: "locked-root", Group: GroupBootloader, Summary: "Try adb root", run: device((*Sequencer).LockedRoot)},

	// flash
	{Name: "edl", Group: GroupFlash, Summary: "Enter Qualcomm EDL mode", run: device((*Sequencer).EnterEDL)},
	{Name: "edl-flash", Group: GroupFlash, Usage: "<programmer>", MinArgs: 1, MaxArgs: 1, Offline: true, Summary: "Describe a firehose flash",
		run: func(_ context.Context, s *Sequencer, _ Target, args []string) *report.Report {
			return s.FlashEDL(args[0])
		}},
	{Name: "flash", Group: GroupFlash, Usage: "<partition> <image>", MinArgs: 2, MaxArgs: 2, Summary: "Flash an image to a partition",
		run: func(ctx context.Context, s *Sequencer, t Target, args []string) *report.Report {
			return s.FlashPartition(ctx, t.Device, args[0], args[1])
		}},
	{Name: "erase", Group: GroupFlash, Usage: "<partition>", MinArgs: 1, MaxArgs: 1, Summary: "Erase a partition", run: deviceArg((*Sequencer).ErasePartition)},
	{Name: "flash-vbmeta", Group: GroupFlash, Usage: "<image>", MinArgs: 1, MaxArgs: 1, Summary: "Flash vbmeta with verification disabled", run: deviceArg((*Sequencer).FlashVBMeta)},
	{Name: "flash-recovery", Group: GroupFlash, Usage: "<image>", MinArgs: 1, MaxArgs: 1, Summary: "Flash a custom recovery", run: deviceArg((*Sequencer).FlashRecovery)},
	{Name: "boot-recovery", Group: GroupFlash, Usage: "<image>", MinArgs: 1, MaxArgs: 1, Summary: "Boot an image without flashing", run: deviceArg((*Sequencer).BootRecovery)},
	{Name: "flash-firmware", Group: GroupFlash, Usage: "<path>", MinArgs: 1, MaxArgs: 1, Offline: true, Summary: "Describe the vendor firmware procedure",
		run: func(_ context.Context, s *Sequencer, t Target, args []string) *report.Report {
			return s.FlashFirmware(args[0], t.Manufacturer)
		}},
	{Name: "reboot", Group: GroupFlash, Usage: "<" + strings.Join(RebootModes, "|") + ">", MinArgs: 1, MaxArgs: 1, Summary: "Reboot into a mode", run: deviceArg((*Sequencer).RebootTo)},
	{Name: "download-mode", Group: GroupFlash, Summary: "Check for download/fastboot mode", run: device((*Sequencer).DownloadMode)},
	{Name: "brom", Group: GroupFlash, Summary: "Enter MediaTek BROM mode", run: device((*Sequencer).EnterBROM)},
	{Name: "sp-flash-info", Group: GroupFlash, Offline: true, Summary: "Describe SP Flash Tool usage",
		run: func(_ context.Context, s *Sequencer, _ Target, _ []string) *report.Report {
			return s.SPFlashInfo()
		}},

	// repair
	{Name: "imei-read", Group: GroupRepair, Summary: "Read IMEI", run: device((*Sequencer).ReadIMEI)},
	{Name: "imei-backup", Group: GroupRepair, Summary: "Back up IMEI/EFS partitions", run: device((*Sequencer).BackupIMEI)},
	{Name: "imei-write", Group: GroupRepair, Usage: "<imei>", MinArgs: 1, MaxArgs: 1, Offline: true, Summary: "Describe the IMEI write procedure",
		run: func(_ context.Context, s *Sequencer, t Target, args []string) *report.Report {
			return s.WriteIMEI(args[0], t.Manufacturer)
		}},
	{Name: "gms-check", Group: GroupRepair, Summary: "Check GMS packages", run: device((*Sequencer).GMSCheck)},
	{Name: "gms-repair", Group: GroupRepair, Summary: "Clear GMS caches and restart services", run: device((*Sequencer).GMSRepair)},
	{Name: "gms-install", Group: GroupRepair, Usage: "<apk>", MinArgs: 1, MaxArgs: 1, Summary: "Install a GMS package", run: deviceArg((*Sequencer).GMSInstall)},
	{Name: "efs-backup", Group: GroupRepair, Summary: "Archive /efs", run: device((*Sequencer).EFSBackup)},
	{Name: "efs-restore", Group: GroupRepair, Summary: "Restore the /efs archive", run: device((*Sequencer).EFSRestore)},
	{Name: "nv-backup", Group: GroupRepair, Summary: "Back up NV partitions", run: device((*Sequencer).NVBackup)},
	{Name: "nv-restore", Group: GroupRepair, Summary: "Restore NV partitions", run: device((*Sequencer).NVRestore)},
	{Name: "drk-repair", Group: GroupRepair, Summary: "Reset Samsung DRK provisioning", run: device((*Sequencer).DRKRepair)},
	{Name: "knox-counter", Group: GroupRepair, Summary: "Read the Knox warranty bit", run: device((*Sequencer).KnoxCounter)},
	{Name: "csc-change", Group: GroupRepair, Usage: "<code>", MinArgs: 1, MaxArgs: 1, Offline: true, Summary: "Describe a CSC change",
		run: func(_ context.Context, s *Sequencer, _ Target, args []string) *report.Report {
			return s.CSCChange(args[0])
		}},
	{Name: "baseband-check", Group: GroupRepair, Summary: "Read baseband properties", run: device((*Sequencer).BasebandCheck)},
	{Name: "baseband-repair", Group: GroupRepair, Summary: "Clear the modem cache", run: device((*Sequencer).BasebandRepair)},
	{Name: "build-props", Group: GroupRepair, Summary: "Read build properties", run: device((*Sequencer).BuildProps)},

	// network
	{Name: "frp-check", Group: GroupNetwork, Summary: "Inspect FRP state", run: device((*Sequencer).FRPCheck)},
	{Name: "frp-bypass", Group: GroupNetwork, Usage: "<" + strings.Join(FRPMethodKeys, "|") + ">", MinArgs: 1, MaxArgs: 1, Summary: "Run an FRP bypass method",
		run: func(ctx context.Context, s *Sequencer, t Target, args []string) *report.Report {
			method, ok := ParseFRPMethod(args[0])
			if !ok {
				return report.Rejected("FRP Bypass:", "Unknown FRP bypass method: "+args[0])
			}
			return s.FRPBypass(ctx, t.Device, method)
		}},
	{Name: "carrier-check", Group: GroupNetwork, Summary: "Read SIM and carrier state", run: device((*Sequencer).CarrierCheck)},
	{Name: "carrier-unlock", Group: GroupNetwork, Usage: "<nck>", MinArgs: 1, MaxArgs: 1, Offline: true, Summary: "Describe a network unlock",
		run: func(_ context.Context, s *Sequencer, _ Target, args []string) *report.Report {
			return s.CarrierUnlock(args[0])
		}},
	{Name: "mdm-check", Group: GroupNetwork, Summary: "Look for MDM owners", run: device((*Sequencer).MDMCheck)},
	{Name: "mdm-remove", Group: GroupNetwork, Summary: "Remove MDM owners", run: device((*Sequencer).MDMRemove)},
	{Name: "knox-bypass", Group: GroupNetwork, Summary: "Disable Knox enrollment packages", run: device((*Sequencer).KnoxBypass)},
	{Name: "google-account-remove", Group: GroupNetwork, Summary: "Remove Google account data", run: device((*Sequencer).GoogleAccountRemove)},

	// tools
	{Name: "shell", Group: GroupTools, Usage: "<cmd...>", MinArgs: 1, MaxArgs: -1, Summary: "Run a shell command",
		run: func(ctx context.Context, s *Sequencer, t Target, args []string) *report.Report {
			return s.Shell(ctx, t.Device, strings.Join(args, " "))
		}},
	{Name: "logcat", Group: GroupTools, Usage: "[lines]", MaxArgs: 1, Summary: "Dump recent logcat lines",
		run: func(ctx context.Context, s *Sequencer, t Target, args []string) *report.Report {
			lines := 0
			if raw := arg(args, 0); raw != "" {
				n, err := strconv.Atoi(raw)
				if err != nil || n <= 0 {
					return report.Rejected("Logcat:", "Invalid line count: "+raw)
				}
				lines = n
			}
			return s.Logcat(ctx, t.Device, lines)
		}},
	{Name: "logcat-clear", Group: GroupTools, Summary: "Clear the log buffer", run: device((*Sequencer).LogcatClear)},
	{Name: "pull", Group: GroupTools, Usage: "<remote> <local>", MinArgs: 2, MaxArgs: 2, Summary: "Copy a file from the device",
		run: func(ctx context.Context, s *Sequencer, t Target, args []string) *report.Report {
			return s.Pull(ctx, t.Device, args[0], args[1])
		}},
	{Name: "push", Group: GroupTools, Usage: "<local> <remote>", MinArgs: 2, MaxArgs: 2, Summary: "Copy a file to the device",
		run: func(ctx context.Context, s *Sequencer, t Target, args []string) *report.Report {
			return s.Push(ctx, t.Device, args[0], args[1])
		}},
	{Name: "ls", Group: GroupTools, Usage: "[path]", MaxArgs: 1, Summary: "List a device directory", run: deviceArg((*Sequencer).List)},
	{Name: "install", Group: GroupTools, Usage: "<apk>", MinArgs: 1, MaxArgs: 1, Summary: "Install an APK", run: deviceArg((*Sequencer).Install)},
	{Name: "packages", Group: GroupTools, Usage: "[filter]", MaxArgs: 1, Summary: "List packages", run: deviceArg((*Sequencer).Packages)},
	{Name: "packages-user", Group: GroupTools, Summary: "List third-party packages", run: device((*Sequencer).PackagesUser)},
	{Name: "packages-system", Group: GroupTools, Summary: "List system packages", run: device((*Sequencer).PackagesSystem)},
	{Name: "disable", Group: GroupTools, Usage: "<package>", MinArgs: 1, MaxArgs: 1, Summary: "Disable a package for user 0", run: deviceArg((*Sequencer).Disable)},
	{Name: "enable", Group: GroupTools, Usage: "<package>", MinArgs: 1, MaxArgs: 1, Summary: "Re-enable a package", run: deviceArg((*Sequencer).Enable)},
	{Name: "backup", Group: GroupTools, Usage: "[path]", MaxArgs: 1, Summary: "Start a full adb backup", run: deviceArg((*Sequencer).Backup)},
	{Name: "restore", Group: GroupTools, Usage: "<path>", MinArgs: 1, MaxArgs: 1, Summary: "Start a full adb restore", run: deviceArg((*Sequencer).Restore)},
	{Name: "screenshot", Group: GroupTools, Usage: "[local]", MaxArgs: 1, Summary: "Capture and pull a screenshot", run: deviceArg((*Sequencer).Screenshot)},
	{Name: "screenrecord", Group: GroupTools, Summary: "Record the screen for up to 3 minutes", run: device((*Sequencer).ScreenRecord)},
	{Name: "dev-options", Group: GroupTools, Summary: "Open device info settings", run: device((*Sequencer).DevOptions)},
	{Name: "uptime", Group: GroupTools, Summary: "Show device uptime", run: device((*Sequencer).Uptime)},
	{Name: "processes", Group: GroupTools, Summary: "List running processes", run: device((*Sequencer).Processes)},
	{Name: "meminfo", Group: GroupTools, Summary: "Show memory info", run: device((*Sequencer).MemInfo)},
	{Name: "cpuinfo", Group: GroupTools, Summary: "Show CPU info", run: device((*Sequencer).CPUInfo)},

	// hardware
	{Name: "battery", Group: GroupHardware, Summary: "Battery status", run: device((*Sequencer).Battery)},
	{Name: "battery-stats", Group: GroupHardware, Summary: "Battery statistics summary", run: device((*Sequencer).BatteryStats)},
	{Name: "display", Group: GroupHardware, Summary: "Display and touch", run: device((*Sequencer).Display)},
	{Name: "sensors", Group: GroupHardware, Summary: "Sensor list", run: device((*Sequencer).Sensors)},
	{Name: "audio", Group: GroupHardware, Summary: "Audio subsystem", run: device((*Sequencer).Audio)},
	{Name: "connectivity", Group: GroupHardware, Summary: "WiFi, Bluetooth, GPS and NFC", run: device((*Sequencer).Connectivity)},
	{Name: "cameras", Group: GroupHardware, Summary: "Camera list", run: device((*Sequencer).Cameras)},
	{Name: "biometrics", Group: GroupHardware, Summary: "Fingerprint and face unlock", run: device((*Sequencer).Biometrics)},
	{Name: "storage", Group: GroupHardware, Summary: "Storage usage", run: device((*Sequencer).Storage)},
	{Name: "usb", Group: GroupHardware, Summary: "USB state", run: device((*Sequencer).USB)},
	{Name: "telephony", Group: GroupHardware, Summary: "SIM and radio", run: device((*Sequencer).Telephony)},
	{Name: "hw-all", Group: GroupHardware, Summary: "Every hardware section", run: device((*Sequencer).HardwareAll)},

	// diagnostics
	{Name: "tool-check", Group: GroupDiagnostics, Offline: true, Summary: "Check adb and fastboot are installed",
		run: func(ctx context.Context, s *Sequencer, _ Target, _ []string) *report.Report {
			return s.ToolCheck(ctx)
		}},
	{Name: "device-info", Group: GroupDiagnostics, Summary: "Basic device identity", run: device((*Sequencer).DeviceInfo)},
}

var catalogIndex = func() map[string]int {
	idx := make(map[string]int, len(catalog))
	for i, op := range catalog {
		idx[op.Name] = i
	}
	return idx
}()

// Catalog lists every operation in display order.
func Catalog() []Operation {
	return append([]Operation(nil), catalog...)
}

// Lookup finds an operation by name.
func Lookup(name string) (Operation, bool) {
	i, ok := catalogIndex[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Operation{}, false
	}
	return catalog[i], true
}

// Groups lists the operation groups in display order.
func Groups() []string {
	seen := map[string]bool{}
	var groups []string
	for _, op := range catalog {
		if !seen[op.Group] {
			seen[op.Group] = true
			groups = append(groups, op.Group)
		}
	}
	return groups
}

// Names lists operation names sorted alphabetically.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for _, op := range catalog {
		names = append(names, op.Name)
	}
	sort.Strings(names)
	return names
}
