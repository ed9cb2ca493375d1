package manufacturer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllIsOrderedAndExhaustive(t *testing.T) {
	all := All()
	require.Len(t, all, 20)
	assert.Equal(t, Samsung, all[0])
	assert.Equal(t, Tecno, all[len(all)-1])
	seen := map[Manufacturer]bool{}
	for _, m := range all {
		assert.False(t, seen[m], "duplicate %s", m)
		seen[m] = true
		assert.NotEqual(t, Generic, m)
		assert.NotEmpty(t, m.PlatformHint())
	}
}

func TestParse(t *testing.T) {
	tests := map[string]Manufacturer{
		"samsung":        Samsung,
		"  XIAOMI ":      Xiaomi,
		"Redmi":          Xiaomi,
		"pixel":          Google,
		"Google (Pixel)": Google,
		"zte":            ZTE,
		"":               Generic,
		"fairphone":      Generic,
	}
	for in, want := range tests {
		assert.Equal(t, want, Parse(in), in)
	}
}

func TestUnknownValueFallsBackToGeneric(t *testing.T) {
	m := Manufacturer(99)
	assert.Equal(t, "Generic", m.Name())
	assert.Equal(t, Executable, StrategyFor(m).Unlock)
}

func TestUnlockClasses(t *testing.T) {
	descriptive := []Manufacturer{Samsung, Xiaomi, Huawei, Honor, Motorola, Sony}
	for _, m := range descriptive {
		s := StrategyFor(m)
		assert.Equal(t, Descriptive, s.Unlock, m.Name())
		assert.NotEmpty(t, s.UnlockTitle)
		assert.NotEmpty(t, s.UnlockProcedure)
	}
	for _, m := range []Manufacturer{Generic, Google, OnePlus, Nothing, Tecno} {
		s := StrategyFor(m)
		assert.Equal(t, Executable, s.Unlock, m.Name())
		assert.Empty(t, s.UnlockProcedure)
	}
}

func TestDescriptiveProceduresNeverClaimAnAttempt(t *testing.T) {
	for _, m := range All() {
		for _, line := range StrategyFor(m).UnlockProcedure {
			assert.NotContains(t, line, "Attempting", m.Name())
		}
	}
}

func TestIMEIWriteText(t *testing.T) {
	title, lines := StrategyFor(Samsung).IMEIWrite("356938035643809")
	assert.Equal(t, "Samsung IMEI write:", title)
	assert.Contains(t, lines, `AT+EGMR=1,7,"356938035643809"`)

	title, _ = StrategyFor(Vivo).IMEIWrite("356938035643809")
	assert.Equal(t, "Qualcomm/MediaTek IMEI write:", title)

	title, _ = StrategyFor(Nokia).IMEIWrite("356938035643809")
	assert.Equal(t, "IMEI write for Nokia:", title)
}

func TestFirmwareFlashText(t *testing.T) {
	title, lines := StrategyFor(Google).FirmwareFlash("/tmp/fw.zip")
	assert.Equal(t, "Firmware Flash (Google (Pixel)):", title)
	assert.Contains(t, lines, "Firmware: /tmp/fw.zip")

	title, _ = StrategyFor(Honor).FirmwareFlash("x")
	assert.Equal(t, "Huawei Firmware Flash:", title)
}

func TestNotes(t *testing.T) {
	s := StrategyFor(Samsung)
	assert.Equal(t, "Samsung Notes:", s.NotesTitle)
	assert.Len(t, s.Notes, 4)
	assert.Equal(t, "General Notes:", StrategyFor(LG).NotesTitle)
}
