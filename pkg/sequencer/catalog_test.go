package sequencer

import (
	"context"
	"strings"
	"testing"

	"github.com/httprunner/DeviceAgent/pkg/manufacturer"
	"github.com/httprunner/DeviceAgent/pkg/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleArgs = map[string][]string{
	"edl-flash":      {"prog_emmc_firehose_8953.mbn"},
	"flash":          {"boot", "boot.img"},
	"erase":          {"cache"},
	"flash-vbmeta":   {"vbmeta.img"},
	"flash-recovery": {"twrp.img"},
	"boot-recovery":  {"twrp.img"},
	"flash-firmware": {"fw.zip"},
	"reboot":         {"recovery"},
	"imei-write":     {"356938035643809"},
	"gms-install":    {"gms.apk"},
	"csc-change":     {"XEU"},
	"frp-bypass":     {"adb"},
	"carrier-unlock": {"12345678"},
	"shell":          {"getprop", "ro.product.model"},
	"pull":           {"/sdcard/a.txt", "a.txt"},
	"push":           {"a.txt", "/sdcard/a.txt"},
	"install":        {"app.apk"},
	"disable":        {"com.example.bloat"},
	"enable":         {"com.example.bloat"},
	"restore":        {"backup.ab"},
}

func TestCatalogIsWellFormed(t *testing.T) {
	seen := map[string]bool{}
	groups := map[string]bool{}
	for _, g := range Groups() {
		groups[g] = true
	}
	for _, op := range Catalog() {
		assert.False(t, seen[op.Name], "duplicate %s", op.Name)
		seen[op.Name] = true
		assert.NotNil(t, op.run, op.Name)
		assert.True(t, groups[op.Group], op.Name)
		assert.NotEmpty(t, op.Summary, op.Name)
		if op.MinArgs > 0 {
			assert.NotEmpty(t, op.Usage, op.Name)
		}
	}
	assert.Len(t, Names(), len(Catalog()))
	assert.Equal(t, []string{
		GroupBootloader, GroupFlash, GroupRepair, GroupNetwork,
		GroupTools, GroupHardware, GroupDiagnostics,
	}, Groups())
}

func TestEveryOperationProducesAReport(t *testing.T) {
	for _, op := range Catalog() {
		t.Run(op.Name, func(t *testing.T) {
			f := newFake().failAll("error: device offline")
			s := newTestSequencer(f)
			r := op.Run(context.Background(), s, Target{Device: testDevice}, sampleArgs[op.Name])
			require.NotNil(t, r)
			assert.NotEmpty(t, strings.TrimSpace(r.Render()))
			assert.NotEmpty(t, r.Title)
			assert.NotEqual(t, report.OutcomeRejected, r.Outcome(), r.Render())
		})
	}
}

func TestWrongArityIsRejected(t *testing.T) {
	op, ok := Lookup("flash")
	require.True(t, ok)
	f := newFake()

	r := op.Run(context.Background(), newTestSequencer(f), Target{Device: testDevice}, []string{"boot"})
	assert.Equal(t, []string{"Usage: flash <partition> <image>"}, r.Lines())
	assert.Empty(t, f.calls)

	op, _ = Lookup("uptime")
	r = op.Run(context.Background(), newTestSequencer(f), Target{Device: testDevice}, []string{"extra"})
	assert.Equal(t, report.OutcomeRejected, r.Outcome())
	assert.Empty(t, f.calls)
}

func TestDeviceOperationsRequireSerial(t *testing.T) {
	op, _ := Lookup("bl-status")
	f := newFake()
	r := op.Run(context.Background(), newTestSequencer(f), Target{}, nil)
	assert.Equal(t, []string{"Device serial is required."}, r.Lines())
	assert.Empty(t, f.calls)

	op, _ = Lookup("vendor-notes")
	r = op.Run(context.Background(), newTestSequencer(f), Target{Manufacturer: manufacturer.Samsung}, nil)
	assert.Equal(t, "Samsung Notes:", r.Title)
}

func TestUnknownFRPMethodIsRejected(t *testing.T) {
	op, _ := Lookup("frp-bypass")
	f := newFake()
	r := op.Run(context.Background(), newTestSequencer(f), Target{Device: testDevice}, []string{"magic"})
	assert.Equal(t, []string{"Unknown FRP bypass method: magic"}, r.Lines())
	assert.Empty(t, f.calls)
}

func TestLogcatLineCount(t *testing.T) {
	op, _ := Lookup("logcat")
	f := newFake()
	s := newTestSequencer(f)

	r := op.Run(context.Background(), s, Target{Device: testDevice}, []string{"ten"})
	assert.Equal(t, report.OutcomeRejected, r.Outcome())
	assert.Empty(t, f.calls)

	op.Run(context.Background(), s, Target{Device: testDevice}, nil)
	assert.Equal(t, []string{"adb logcat -d -t 100"}, f.calls)
}

func TestBootloaderUnlockThroughCatalogUsesManufacturer(t *testing.T) {
	op, _ := Lookup("BL-UNLOCK")
	f := newFake()
	r := op.Run(context.Background(), newTestSequencer(f), Target{Device: testDevice, Manufacturer: manufacturer.Motorola}, nil)
	assert.Empty(t, f.calls)
	assert.Equal(t, "Motorola bootloader unlock:", r.Title)
}
