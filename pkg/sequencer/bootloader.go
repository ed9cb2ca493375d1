package sequencer

import (
	"context"
	"strings"

	"github.com/httprunner/DeviceAgent/pkg/manufacturer"
	"github.com/httprunner/DeviceAgent/pkg/report"
	"github.com/httprunner/DeviceAgent/pkg/transport"
)

const (
	unlockHint = "Try: fastboot flashing unlock"
	relockHint = "Try: fastboot flashing lock"
)

// BootloaderStatus reads the lock state from the bootloader.
func (s *Sequencer) BootloaderStatus(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("Bootloader status:")
	if _, ok := s.single(ctx, dev, r, fastbootCall("getvar unlocked", "getvar", "unlocked")); !ok {
		r.AddNote("Device may not be in fastboot mode.")
	}
	return r
}

// OEMUnlockSetting reads the developer-options toggle from a booted device.
func (s *Sequencer) OEMUnlockSetting(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("OEM Unlock setting:")
	s.each(ctx, dev, r, step{
		call: shellCall("OEM Unlock in Developer Options", "settings", "get", "global", "oem_unlock_allowed"),
		onOK: func(out string) report.StepOutcome {
			state := "Disabled"
			if strings.TrimSpace(out) == "1" {
				state = "Enabled"
			}
			return report.Succeeded("OEM Unlock in Developer Options", state)
		},
	})
	return r
}

// Unlock unlocks the bootloader. Vendors without an automatable path get
// instructions and no call is issued.
func (s *Sequencer) Unlock(ctx context.Context, dev transport.Device, m manufacturer.Manufacturer) *report.Report {
	strategy := manufacturer.StrategyFor(m)
	if strategy.Unlock == manufacturer.Descriptive {
		return report.New(strategy.UnlockTitle).AddNote(strategy.UnlockProcedure...)
	}
	return s.fallback(ctx, dev, "Bootloader unlock result:", unlockHint,
		fastbootCall("fastboot flashing unlock", "flashing", "unlock"),
		fastbootCall("fastboot oem unlock", "oem", "unlock"),
	)
}

// Relock locks the bootloader again.
func (s *Sequencer) Relock(ctx context.Context, dev transport.Device) *report.Report {
	return s.fallback(ctx, dev, "Bootloader relock result:", relockHint,
		fastbootCall("fastboot flashing lock", "flashing", "lock"),
		fastbootCall("fastboot oem lock", "oem", "lock"),
	)
}

// fallback reports only the chain's final outcome, plus hint on failure.
func (s *Sequencer) fallback(ctx context.Context, dev transport.Device, title, hint string, chain ...call) *report.Report {
	r := report.New(title)
	out, used, err := s.firstSuccess(ctx, dev, chain...)
	if err != nil {
		r.Add(report.Failed(used.label, err))
		if hint != "" {
			r.AddNote(hint)
		}
		return r
	}
	r.Add(report.Succeeded(used.label, out))
	return r
}

var fastbootVars = []string{"unlocked", "secure", "variant", "serialno", "product"}

// FastbootVars queries the critical bootloader variables one by one.
func (s *Sequencer) FastbootVars(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("Fastboot device variables:")
	steps := make([]step, 0, len(fastbootVars))
	for _, v := range fastbootVars {
		steps = append(steps, step{
			call:     fastbootCall(v, "getvar", v),
			failText: "(unavailable)",
		})
	}
	s.each(ctx, dev, r, steps...)
	return r
}

// VendorNotes shows the vendor's warnings and platform hint.
func (s *Sequencer) VendorNotes(m manufacturer.Manufacturer) *report.Report {
	strategy := manufacturer.StrategyFor(m)
	return report.New(strategy.NotesTitle).
		AddNote(strategy.Notes...).
		AddNote("Platform: " + strategy.PlatformHint)
}

// LockedRoot asks adbd to restart as root. Production builds refuse, which is
// reported with an explanation rather than as a failure.
func (s *Sequencer) LockedRoot(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("ADB root:")
	out, ok := s.single(ctx, dev, r, adbCall("adb root", "root"))
	if ok && strings.Contains(out, "cannot run as root") {
		r.AddNote(
			"Rooting with a locked bootloader requires a vulnerability specific to the exact firmware version.",
			"There is no universal method.",
			"Research your specific model (e.g., MTK-SU for older MediaTek devices, or Qualcomm EDL exploits).",
		)
	}
	return r
}
