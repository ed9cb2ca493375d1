package sequencer

import (
	"context"
	"strings"

	"github.com/httprunner/DeviceAgent/pkg/guard"
	"github.com/httprunner/DeviceAgent/pkg/report"
	"github.com/httprunner/DeviceAgent/pkg/transport"
)

// FRPMethod selects an FRP bypass variant.
type FRPMethod int

const (
	FRPAdbBypass FRPMethod = iota
	FRPSetupWizardSkip
	FRPAccountManagerRemove
	FRPContentProviderReset
)

var frpMethodKeys = map[string]FRPMethod{
	"adb":              FRPAdbBypass,
	"setup-wizard":     FRPSetupWizardSkip,
	"account-manager":  FRPAccountManagerRemove,
	"content-provider": FRPContentProviderReset,
}

// FRPMethodKeys lists the accepted method names in display order.
var FRPMethodKeys = []string{"adb", "setup-wizard", "account-manager", "content-provider"}

// ParseFRPMethod maps a method key such as "adb" to its variant.
func ParseFRPMethod(key string) (FRPMethod, bool) {
	m, ok := frpMethodKeys[strings.ToLower(strings.TrimSpace(key))]
	return m, ok
}

func (m FRPMethod) String() string {
	switch m {
	case FRPSetupWizardSkip:
		return "Setup Wizard Skip"
	case FRPAccountManagerRemove:
		return "Account Manager Remove"
	case FRPContentProviderReset:
		return "Content Provider Reset"
	default:
		return "ADB Bypass"
	}
}

var markSetupComplete = []string{
	"content", "insert", "--uri", "content://settings/secure",
	"--bind", "name:s:user_setup_complete", "--bind", "value:s:1",
}

// FRPCheck inspects setup state, the setup wizard and bound accounts.
func (s *Sequencer) FRPCheck(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("FRP Status:").WithCap(120)
	s.each(ctx, dev, r,
		stepOf(shellCall("FRP active", "content", "query", "--uri", "content://settings/secure", "--where", "name='user_setup_complete'")),
		stepOf(shellCall("Setup wizard", "pm", "list", "packages", "com.google.android.setupwizard")),
		stepOf(shellCall("Google account", "dumpsys", "account")),
	)
	return r
}

// FRPBypass runs every step of the chosen method and always recommends a
// reboot, even when every step failed.
func (s *Sequencer) FRPBypass(ctx context.Context, dev transport.Device, method FRPMethod) *report.Report {
	r := report.New("FRP Bypass (method: " + method.String() + "):")
	var steps []step
	switch method {
	case FRPSetupWizardSkip:
		r.WithMarker("completed")
		steps = []step{
			{call: shellCall("Disable setup wizard", "pm", "disable-user", "--user", "0", "com.google.android.setupwizard"), quiet: true},
			{call: shellCall("Mark setup complete", markSetupComplete...), quiet: true},
			{call: shellCall("Launch home", "am", "start", "-a", "android.intent.action.MAIN", "-c", "android.intent.category.HOME"), quiet: true},
		}
	case FRPAccountManagerRemove:
		r.WithMarker("removed")
		rm := func(label, path string) step {
			return step{call: shellCall(label, "rm", "-rf", path), quiet: true, failText: "failed (root required)"}
		}
		steps = []step{
			rm("accounts_de.db", "/data/system/users/0/accounts_de.db"),
			rm("accounts_ce.db", "/data/system/users/0/accounts_ce.db"),
			rm("accounts.xml", "/data/system/sync/accounts.xml"),
		}
	case FRPContentProviderReset:
		r.WithMarker("applied")
		steps = []step{
			{call: shellCall("Mark setup complete", markSetupComplete...), quiet: true},
			{call: shellCall("device_provisioned=1", "settings", "put", "global", "device_provisioned", "1"), quiet: true},
			{call: shellCall("user_setup_complete=1", "settings", "put", "secure", "user_setup_complete", "1"), quiet: true},
		}
	default:
		r.WithMarker("(success)")
		steps = []step{
			stepOf(shellCall("Mark setup complete", markSetupComplete...)),
			stepOf(shellCall("Launch GSF login", "am", "start", "-n", "com.google.android.gsf.login/")),
			stepOf(shellCall("Launch GSF LoginActivity", "am", "start", "-n", "com.google.android.gsf.login/.LoginActivity")),
		}
	}
	s.each(ctx, dev, r, steps...)
	r.AddFooter("Reboot recommended.")
	return r
}

// CarrierCheck reads SIM and operator properties.
func (s *Sequencer) CarrierCheck(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("Carrier/SIM Status:")
	s.props(ctx, dev, r, "--", []prop{
		{"Operator", "gsm.sim.operator.alpha"},
		{"Operator Code", "gsm.sim.operator.numeric"},
		{"SIM State", "gsm.sim.state"},
		{"Network Type", "gsm.network.type"},
		{"Phone Type", "gsm.current.phone-type"},
	})
	return r
}

// CarrierUnlock validates the NCK and explains where it has to be entered.
// No call is issued.
func (s *Sequencer) CarrierUnlock(nck string) *report.Report {
	if err := guard.UnlockCode(nck); err != nil {
		return report.Rejected("Carrier Unlock:", err.Error())
	}
	return report.New("Carrier Unlock:").AddNote(
		"NCK Code: "+nck,
		"Most devices require the unlock code to be entered in the dialer",
		"or through a manufacturer-specific service menu.",
	)
}

// MDMCheck looks for device or profile owners and Knox packages.
func (s *Sequencer) MDMCheck(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("MDM Status:")
	s.each(ctx, dev, r,
		step{
			call: shellCall("Device policy", "dumpsys", "device_policy"),
			onOK: func(out string) report.StepOutcome {
				if strings.Contains(out, "Device Owner") || strings.Contains(out, "Profile Owner") {
					return report.Succeeded("MDM/Device Owner DETECTED", report.Truncate(out, 300))
				}
				return report.Succeeded("Device policy", "No MDM or Device Owner profiles found.")
			},
		},
		step{
			call: shellCall("Samsung Knox packages", "pm", "list", "packages", "com.samsung.android.knox"),
			onOK: func(out string) report.StepOutcome {
				if strings.Contains(out, "knox") {
					return report.Succeeded("Samsung Knox packages", "detected")
				}
				return report.Succeeded("Samsung Knox packages", "not found")
			},
		},
	)
	return r
}

// MDMRemove removes device-admin owners and their policy files.
func (s *Sequencer) MDMRemove(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("MDM Removal:")
	rootStep := func(c call) step {
		return step{call: c, quiet: true, failText: "failed (root may be required)"}
	}
	s.each(ctx, dev, r,
		rootStep(shellCall("Remove device owner", "dpm", "remove-active-admin", "com.android.devicepolicy/.DeviceOwner")),
		rootStep(shellCall("Remove profile owner", "dpm", "remove-active-admin", "com.android.devicepolicy/.ProfileOwner")),
		rootStep(shellCall("Clear device policy", "rm", "-rf", "/data/system/device_policies.xml")),
		rootStep(shellCall("Clear device owner", "rm", "-rf", "/data/system/device_owner_2.xml")),
	)
	r.AddFooter("Reboot required.")
	return r
}

// KnoxPackages are the enrollment packages disabled by KnoxBypass.
var KnoxPackages = []string{
	"com.samsung.android.knox.analytics.uploader",
	"com.samsung.android.knox.attestation",
	"com.samsung.android.knox.containercore",
	"com.samsung.android.knox.kpecore",
	"com.samsung.android.knox.pushmanager",
	"com.sec.enterprise.knox.cloudmdm.smdms",
	"com.samsung.android.mdm",
}

// KnoxBypass uninstalls Knox packages for the current user.
func (s *Sequencer) KnoxBypass(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("Knox Bypass (Samsung):").WithMarker("disabled")
	steps := make([]step, 0, len(KnoxPackages))
	for _, pkg := range KnoxPackages {
		steps = append(steps, step{
			call:     shellCall(pkg, "pm", "uninstall", "-k", "--user", "0", pkg),
			quiet:    true,
			failText: "could not disable",
		})
	}
	s.each(ctx, dev, r, steps...)
	r.AddFooter(
		"Knox-related packages disabled for current user.",
		"Full removal may require root and factory reset.",
	)
	return r
}

// GoogleAccountRemove deletes account databases and clears GMS/GSF data.
func (s *Sequencer) GoogleAccountRemove(ctx context.Context, dev transport.Device) *report.Report {
	r := report.New("Google Account Removal:")
	rootStep := func(c call) step {
		return step{call: c, quiet: true, failText: "failed (root required)"}
	}
	s.each(ctx, dev, r,
		rootStep(shellCall("Remove accounts DB", "rm", "-f", "/data/system/users/0/accounts_de.db")),
		rootStep(shellCall("Remove accounts DB (CE)", "rm", "-f", "/data/system/users/0/accounts_ce.db")),
		rootStep(shellCall("Clear GMS data", "pm", "clear", "com.google.android.gms")),
		rootStep(shellCall("Clear GSF data", "pm", "clear", "com.google.android.gsf")),
	)
	r.AddFooter("Reboot required.")
	return r
}
