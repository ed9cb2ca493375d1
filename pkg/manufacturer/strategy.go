package manufacturer

import "fmt"

// UnlockClass says whether a bootloader unlock can be driven over fastboot.
type UnlockClass int

const (
	// Executable vendors accept `flashing unlock` or `oem unlock`.
	Executable UnlockClass = iota
	// Descriptive vendors need an account wait, a vendor code or a program
	// that no longer exists; only instructions are returned.
	Descriptive
)

func (c UnlockClass) String() string {
	if c == Descriptive {
		return "descriptive"
	}
	return "executable"
}

// Strategy is the read-only procedure metadata for one vendor.
type Strategy struct {
	Manufacturer Manufacturer
	PlatformHint string
	NotesTitle   string
	Notes        []string
	Unlock       UnlockClass
	// UnlockTitle and UnlockProcedure are set for Descriptive vendors.
	UnlockTitle     string
	UnlockProcedure []string
}

// StrategyFor is a pure lookup; it never touches a device.
func StrategyFor(m Manufacturer) Strategy {
	s := Strategy{
		Manufacturer: m,
		PlatformHint: m.PlatformHint(),
		Unlock:       Executable,
	}
	s.NotesTitle, s.Notes = notesFor(m)
	if title, steps, ok := descriptiveUnlock(m); ok {
		s.Unlock = Descriptive
		s.UnlockTitle = title
		s.UnlockProcedure = steps
	}
	return s
}

func notesFor(m Manufacturer) (string, []string) {
	switch m {
	case Samsung:
		return "Samsung Notes:", []string{
			"- Unlocking trips Knox counter permanently (0x1).",
			"- Samsung Pay, Secure Folder, and some banking apps will stop working.",
			"- Use Download mode (Vol Down + Power) for Odin operations.",
			"- Binary counter increases with unofficial firmware.",
		}
	case Xiaomi:
		return "Xiaomi Notes:", []string{
			"- Account binding wait period varies by model (72h to 30 days).",
			"- Mi Unlock Tool or fastboot command can be used.",
			"- POCO and Redmi sub-brands follow the same process.",
			"- HyperOS may require additional verification.",
		}
	case Huawei, Honor:
		return "Huawei/Honor Notes:", []string{
			"- Official bootloader unlock codes discontinued since 2018.",
			"- HiSilicon (Kirin) chips require special tools for EDL.",
			"- Some models support test-point method for low-level access.",
		}
	case Google:
		return "Google Pixel Notes:", []string{
			"- Straightforward unlock via fastboot flashing unlock.",
			"- No manufacturer restrictions or wait periods.",
			"- Carrier-locked Pixels may not support OEM unlock.",
		}
	case OnePlus:
		return "OnePlus Notes:", []string{
			"- Bootloader unlock is straightforward via fastboot.",
			"- No special tools or wait periods required.",
			"- Device will factory reset on unlock.",
		}
	default:
		return "General Notes:", []string{
			"- Check manufacturer website for unlock policies.",
			"- Standard fastboot OEM unlock may work.",
			"- Some carriers restrict bootloader unlocking.",
		}
	}
}

func descriptiveUnlock(m Manufacturer) (string, []string, bool) {
	switch m {
	case Samsung:
		return "Samsung bootloader unlock:", []string{
			"1. Enable OEM Unlock in Developer Options.",
			"2. Boot into Download mode (Vol Down + Power).",
			"3. Long-press Vol Up to enter unlock mode.",
			"4. Confirm unlock. Device will factory reset.",
			"Note: Knox counter will be tripped permanently.",
		}, true
	case Xiaomi:
		return "Xiaomi bootloader unlock:", []string{
			"1. Apply for unlock permission at en.miui.com/unlock.",
			"2. Wait for the binding period (72h to 30 days).",
			"3. Use Mi Unlock Tool to send the unlock command once the wait has passed.",
		}, true
	case Huawei, Honor:
		return "Huawei/Honor bootloader unlock:", []string{
			"Official unlock codes are no longer provided by Huawei.",
			"Third-party unlock methods may be available for some models.",
		}, true
	case Motorola:
		return "Motorola bootloader unlock:", []string{
			"1. Get unlock code from motorola.com/unlocking.",
			"2. Run: fastboot oem unlock <CODE>",
		}, true
	case Sony:
		return "Sony bootloader unlock:", []string{
			"1. Get unlock code from developer.sony.com/unlock.",
			"2. Run: fastboot oem unlock 0x<CODE>",
			"Note: DRM keys will be lost (camera quality may degrade).",
		}, true
	}
	return "", nil, false
}

// IMEIWrite describes how an already validated IMEI would be written.
func (s Strategy) IMEIWrite(imei string) (string, []string) {
	switch s.Manufacturer {
	case Samsung:
		return "Samsung IMEI write:", []string{
			"Method: AT command via diagnostic port.",
			fmt.Sprintf("AT+EGMR=1,7,%q", imei),
			"Note: Requires UART/diagnostic mode access.",
		}
	case Xiaomi, Oppo, Realme, Vivo:
		return "Qualcomm/MediaTek IMEI write:", []string{
			"Method: Engineering mode or QPST/QFIL.",
			"IMEI: " + imei,
			"Note: Requires diagnostic mode (diag port).",
		}
	default:
		return fmt.Sprintf("IMEI write for %s:", s.Manufacturer.Name()), []string{
			"IMEI: " + imei,
			"Method varies by chipset. Check platform-specific tools.",
		}
	}
}

// FirmwareFlash describes the vendor's full-firmware flashing procedure.
func (s Strategy) FirmwareFlash(path string) (string, []string) {
	switch s.Manufacturer {
	case Samsung:
		return "Samsung Firmware Flash:", []string{
			"Method: Odin/Download mode protocol.",
			"Firmware: " + path,
			"1. Boot into Download mode (Vol Down + Power while off).",
			"2. Flash with an Odin-compatible tool.",
			"Partitions: BL, AP, CP, CSC (or HOME_CSC to keep data).",
		}
	case Xiaomi:
		return "Xiaomi Firmware Flash:", []string{
			"Method: Fastboot ROM flash.",
			"Firmware: " + path,
			"Use fastboot to flash individual partitions from the extracted ROM.",
		}
	case Huawei, Honor:
		return "Huawei Firmware Flash:", []string{
			"Method: eRecovery or HiSuite protocol.",
			"Firmware: " + path,
			"Note: HiSilicon devices may require specific tools.",
		}
	default:
		return fmt.Sprintf("Firmware Flash (%s):", s.Manufacturer.Name()), []string{
			"Method: Standard fastboot flash.",
			"Firmware: " + path,
			"Extract firmware and flash partitions individually via fastboot.",
		}
	}
}
