package sequencer

import (
	"context"
	"fmt"

	"github.com/httprunner/DeviceAgent/pkg/guard"
	"github.com/httprunner/DeviceAgent/pkg/manufacturer"
	"github.com/httprunner/DeviceAgent/pkg/report"
	"github.com/httprunner/DeviceAgent/pkg/transport"
)

// Manual fallback text shown when no software method can enter EDL.
const (
	EDLManualMethod    = "Manual method: Hold Vol Up + Vol Down while connecting USB cable."
	EDLTestPointMethod = "Some devices require a test-point short on the motherboard."
)

// FastbootPartitions are the partitions commonly flashed over fastboot.
var FastbootPartitions = []string{
	"boot", "recovery", "system", "vendor", "dtbo", "vbmeta",
	"super", "userdata", "cache", "modem", "radio",
	"aboot", "sbl1", "rpm", "tz", "hyp", "keymaster",
	"cmnlib", "cmnlib64", "devcfg", "dsp", "mdtp",
}

// escalation is an ordered list of increasingly indirect methods for one
// mode change, plus text for success and for total failure.
type escalation struct {
	title     string
	methods   []call
	onSuccess []string
	manual    []string
}

func (s *Sequencer) escalate(ctx context.Context, dev transport.Device, e escalation) *report.Report {
	r := report.New(e.title)
	out, used, err := s.firstSuccess(ctx, dev, e.methods...)
	if err != nil {
		r.Add(report.FailedAs("All methods failed", err.Error(), err))
		r.AddNote(e.manual...)
		return r
	}
	r.Add(report.Succeeded(used.label, out))
	r.AddNote(e.onSuccess...)
	return r
}

// EnterEDL reboots into Qualcomm emergency download mode.
func (s *Sequencer) EnterEDL(ctx context.Context, dev transport.Device) *report.Report {
	return s.escalate(ctx, dev, escalation{
		title: "EDL Mode:",
		methods: []call{
			adbCall("ADB reboot edl", "reboot", "edl"),
			shellCall("ADB shell reboot edl", "reboot", "edl"),
			fastbootCall("Fastboot oem edl", "oem", "edl"),
		},
		onSuccess: []string{"Device should appear as Qualcomm HS-USB QDLoader 9008."},
		manual:    []string{EDLManualMethod, EDLTestPointMethod},
	})
}

// EnterBROM reboots a MediaTek device towards its preloader.
func (s *Sequencer) EnterBROM(ctx context.Context, dev transport.Device) *report.Report {
	return s.escalate(ctx, dev, escalation{
		title: "MediaTek BROM Mode:",
		methods: []call{
			shellCall("ADB shell reboot bootloader", "reboot", "bootloader"),
			adbCall("ADB reboot bootloader", "reboot", "bootloader"),
		},
		onSuccess: []string{
			"Device rebooting to preloader/BROM.",
			"For manual entry: Power off, hold Vol Up + connect USB.",
			"Device should appear as MediaTek USB Port.",
		},
		manual: []string{
			"Could not reboot via ADB.",
			"Manual method: Power off, hold Vol Up + Vol Down + connect USB.",
		},
	})
}

// FlashEDL describes a firehose flash; the Sahara/Firehose protocol is not
// driven from here.
func (s *Sequencer) FlashEDL(programmer string) *report.Report {
	const title = "EDL Flash:"
	if err := guard.RequiredPath(programmer, "Firehose programmer (.mbn/.elf) path is required.\n"+
		"These are chipset-specific files (e.g., prog_emmc_firehose_8953.mbn)."); err != nil {
		return report.Rejected(title, err.Error())
	}
	return report.New(title).AddNote(
		"Programmer: "+programmer,
		"Protocol: Sahara/Firehose (Qualcomm)",
		"Note: Device must be in EDL mode (Qualcomm HS-USB 9008).",
		"This operation uses low-level Qualcomm protocols to flash partitions.",
		"Ensure the correct programmer file for your chipset is selected.",
	)
}

// FlashPartition writes image to partition over fastboot.
func (s *Sequencer) FlashPartition(ctx context.Context, dev transport.Device, partition, image string) *report.Report {
	title := fmt.Sprintf("Flash %s:", partition)
	if err := guard.Partition(partition); err != nil {
		return report.Rejected(title, err.Error())
	}
	if err := guard.RequiredPath(image, fmt.Sprintf("Flash %s: Image file path is required.", partition)); err != nil {
		return report.Rejected(title, err.Error())
	}
	return s.fallback(ctx, dev, title, "Ensure device is in fastboot mode.",
		fastbootCall("fastboot flash "+partition, "flash", partition, image))
}

// ErasePartition wipes partition over fastboot.
func (s *Sequencer) ErasePartition(ctx context.Context, dev transport.Device, partition string) *report.Report {
	title := fmt.Sprintf("Erase %s:", partition)
	if err := guard.Partition(partition); err != nil {
		return report.Rejected(title, err.Error())
	}
	return s.fallback(ctx, dev, title, "",
		fastbootCall("fastboot erase "+partition, "erase", partition))
}

// FlashVBMeta flashes vbmeta with verity and verification disabled.
func (s *Sequencer) FlashVBMeta(ctx context.Context, dev transport.Device, image string) *report.Report {
	const title = "vbmeta flash (verification disabled):"
	if err := guard.RequiredPath(image, "vbmeta path required. Use stock vbmeta.img."); err != nil {
		return report.Rejected(title, err.Error())
	}
	return s.fallback(ctx, dev, title, "",
		fastbootCall("fastboot flash vbmeta", "--disable-verity", "--disable-verification", "flash", "vbmeta", image))
}

// FlashRecovery flashes a custom recovery image.
func (s *Sequencer) FlashRecovery(ctx context.Context, dev transport.Device, image string) *report.Report {
	const title = "Recovery flash:"
	if err := guard.RequiredPath(image, "Recovery image path required (e.g., twrp.img, orangefox.img)."); err != nil {
		return report.Rejected(title, err.Error())
	}
	return s.fallback(ctx, dev, title, "Some A/B devices use: fastboot flash boot <recovery.img>",
		fastbootCall("fastboot flash recovery", "flash", "recovery", image))
}

// BootRecovery boots an image once without flashing it.
func (s *Sequencer) BootRecovery(ctx context.Context, dev transport.Device, image string) *report.Report {
	const title = "Temporary boot:"
	if err := guard.RequiredPath(image, "Recovery image path required."); err != nil {
		return report.Rejected(title, err.Error())
	}
	return s.fallback(ctx, dev, title, "", fastbootCall("fastboot boot", "boot", image))
}

// FlashFirmware describes the vendor's full-firmware procedure.
func (s *Sequencer) FlashFirmware(path string, m manufacturer.Manufacturer) *report.Report {
	if err := guard.RequiredPath(path, "Firmware package path is required."); err != nil {
		return report.Rejected("Firmware Flash:", err.Error())
	}
	title, lines := manufacturer.StrategyFor(m).FirmwareFlash(path)
	return report.New(title).AddNote(lines...)
}

// RebootModes lists the accepted reboot targets.
var RebootModes = []string{"system", "recovery", "bootloader", "fastboot", "edl", "emergency", "download", "sideload"}

func rebootCall(mode string) (call, bool) {
	label := "reboot " + mode
	switch mode {
	case "system":
		return adbCall("reboot", "reboot"), true
	case "recovery":
		return adbCall(label, "reboot", "recovery"), true
	case "bootloader", "fastboot":
		return adbCall("reboot bootloader", "reboot", "bootloader"), true
	case "edl", "emergency":
		return adbCall("reboot edl", "reboot", "edl"), true
	case "download":
		return shellCall("shell reboot download", "reboot", "download"), true
	case "sideload":
		return adbCall(label, "reboot", "sideload"), true
	}
	return call{}, false
}

// RebootTo reboots into mode. Unknown modes are refused without a call.
func (s *Sequencer) RebootTo(ctx context.Context, dev transport.Device, mode string) *report.Report {
	title := fmt.Sprintf("Reboot to '%s':", mode)
	c, ok := rebootCall(mode)
	if !ok {
		return report.Rejected(title, "Unknown reboot mode: "+mode)
	}
	r := report.New(title).WithMarker("OK")
	s.single(ctx, dev, r, c)
	return r
}

// DownloadMode checks whether the bootloader answers for this serial.
func (s *Sequencer) DownloadMode(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("Download/fastboot mode check:")
	if _, ok := s.single(ctx, dev, r, fastbootCall("getvar product", "getvar", "product")); !ok {
		r.AddNote("Device not detected in download/fastboot mode.")
	}
	return r
}

// SPFlashInfo describes MediaTek SP Flash Tool usage.
func (s *Sequencer) SPFlashInfo() *report.Report {
	return report.New("MediaTek SP Flash Tool:").AddNote(
		"- Scatter file loading and parsing",
		"- Individual partition flashing",
		"- Full firmware download",
		"- Format and download operations",
		"- DA (Download Agent) file support",
		"Requires: Scatter file (.txt) and firmware images.",
	)
}
