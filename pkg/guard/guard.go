package guard

import (
	"errors"
	"regexp"
	"strings"
)

// ErrRejected matches every guard failure with errors.Is.
var ErrRejected = errors.New("validation rejected")

// Error is a pre-flight rejection. Reason is the user-facing text.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string { return e.Reason }

func (e *Error) Is(target error) bool { return target == ErrRejected }

func reject(field, reason string) error {
	return &Error{Field: field, Reason: reason}
}

var (
	partitionPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	packagePattern   = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z][A-Za-z0-9_]*)+$`)
)

// IMEI accepts exactly 15 ASCII digits.
func IMEI(imei string) error {
	if len(imei) != 15 || !allBytes(imei, isDigit) {
		return reject("imei", "Invalid IMEI. Must be exactly 15 digits.")
	}
	return nil
}

// CSC accepts exactly 3 uppercase ASCII letters.
func CSC(code string) error {
	if len(code) != 3 || !allBytes(code, isUpper) {
		return reject("csc", "Invalid CSC code. Must be 3 uppercase letters (e.g., XEU, OXM, INS).")
	}
	return nil
}

// UnlockCode accepts any non-empty network unlock code.
func UnlockCode(nck string) error {
	if strings.TrimSpace(nck) == "" {
		return reject("nck", "Network unlock code (NCK) is required.\nObtain the NCK from your carrier or an unlock service.")
	}
	return nil
}

// Serial accepts a non-empty device serial without whitespace.
func Serial(serial string) error {
	if serial == "" {
		return reject("serial", "Device serial is required.")
	}
	if strings.ContainsAny(serial, " \t\r\n") {
		return reject("serial", "Invalid device serial: must not contain whitespace.")
	}
	return nil
}

// Partition accepts names such as boot, vbmeta_a or super. A leading dash is
// refused so the name is never parsed as a fastboot flag.
func Partition(name string) error {
	if !partitionPattern.MatchString(name) || strings.HasPrefix(name, "-") {
		return reject("partition", "Invalid partition name: "+quote(name))
	}
	return nil
}

// PackageName accepts dotted Java package names like com.android.vending.
func PackageName(name string) error {
	if strings.TrimSpace(name) == "" {
		return reject("package", "Package name is required.")
	}
	if !packagePattern.MatchString(name) {
		return reject("package", "Invalid package name: "+quote(name))
	}
	return nil
}

// RequiredPath rejects an empty path with the given message.
func RequiredPath(path, message string) error {
	if strings.TrimSpace(path) == "" {
		return reject("path", message)
	}
	return nil
}

func quote(s string) string {
	return "'" + s + "'"
}

func allBytes(s string, ok func(byte) bool) bool {
	for i := 0; i < len(s); i++ {
		if !ok(s[i]) {
			return false
		}
	}
	return true
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isUpper(b byte) bool { return b >= 'A' && b <= 'Z' }
