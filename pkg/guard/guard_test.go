package guard

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIMEI(t *testing.T) {
	require.NoError(t, IMEI("356938035643809"))

	for _, bad := range []string{"", "35693803564380", "3569380356438090", "35693803564380a", "٣٥٦٩٣٨٠٣٥٦٤٣٨٠"} {
		err := IMEI(bad)
		require.Error(t, err, bad)
		assert.True(t, errors.Is(err, ErrRejected))
		assert.Equal(t, "Invalid IMEI. Must be exactly 15 digits.", err.Error())
	}
}

func TestIMEIRejectsAnyNonDigitOfLength15(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const alphabet = "0123456789abcXYZ-+ #*"
	for i := 0; i < 500; i++ {
		b := make([]byte, 15)
		for j := range b {
			b[j] = alphabet[rng.Intn(len(alphabet))]
		}
		b[rng.Intn(15)] = alphabet[10+rng.Intn(len(alphabet)-10)]
		require.Error(t, IMEI(string(b)), string(b))
	}
}

func TestCSC(t *testing.T) {
	for _, ok := range []string{"XEU", "OXM", "INS"} {
		require.NoError(t, CSC(ok))
	}
	for _, bad := range []string{"", "XE", "XEUU", "X3U", "ÄBC"} {
		require.Error(t, CSC(bad), bad)
	}
}

func TestCSCRejectsAnyLowercase(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 300; i++ {
		b := []byte{
			byte('A' + rng.Intn(26)),
			byte('A' + rng.Intn(26)),
			byte('A' + rng.Intn(26)),
		}
		b[rng.Intn(3)] = byte('a' + rng.Intn(26))
		err := CSC(string(b))
		require.Error(t, err, string(b))
		assert.True(t, strings.HasPrefix(err.Error(), "Invalid CSC code."))
	}
}

func TestUnlockCode(t *testing.T) {
	require.NoError(t, UnlockCode("12345678"))
	err := UnlockCode("  ")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "Network unlock code (NCK) is required."))
}

func TestSerial(t *testing.T) {
	require.NoError(t, Serial("emulator-5554"))
	require.NoError(t, Serial("192.168.1.2:5555"))
	require.Error(t, Serial(""))
	require.Error(t, Serial("abc def"))
}

func TestPartition(t *testing.T) {
	for _, ok := range []string{"boot", "vbmeta_a", "super", "modem.b"} {
		require.NoError(t, Partition(ok), ok)
	}
	for _, bad := range []string{"", "-w", "--disable-verity", "boot a", "../boot"} {
		require.Error(t, Partition(bad), bad)
	}
}

func TestPackageName(t *testing.T) {
	require.NoError(t, PackageName("com.google.android.gms"))
	for _, bad := range []string{"", "gms", "com..gms", "1com.x", "com.x;rm"} {
		require.Error(t, PackageName(bad), bad)
	}
}

func TestRequiredPath(t *testing.T) {
	require.NoError(t, RequiredPath("twrp.img", "x"))
	err := RequiredPath("", "Recovery image path required.")
	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "path", gerr.Field)
	assert.Equal(t, "Recovery image path required.", gerr.Reason)
}
