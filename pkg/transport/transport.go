package transport

import (
	"errors"
	"fmt"
)

// Kind selects which external program and selector convention a call uses.
type Kind int

const (
	// DebugBridge talks to a booted, debuggable device through adb.
	DebugBridge Kind = iota
	// Bootloader talks to a device sitting in its pre-boot firmware through fastboot.
	Bootloader
)

func (k Kind) String() string {
	switch k {
	case DebugBridge:
		return "ADB"
	case Bootloader:
		return "Fastboot"
	default:
		return fmt.Sprintf("Transport(%d)", int(k))
	}
}

// Program is the default executable name for the transport.
func (k Kind) Program() string {
	if k == Bootloader {
		return "fastboot"
	}
	return "adb"
}

// Device is the opaque serial handed to every call. It is never mutated.
type Device string

func (d Device) String() string { return string(d) }

// ErrorKind classifies a failed invocation.
type ErrorKind int

const (
	// ToolUnavailable means the external program could not be launched.
	ToolUnavailable ErrorKind = iota + 1
	// CommandRejected means the program ran and exited non-zero.
	CommandRejected
	// Timeout means the call exceeded the configured bound and was killed.
	Timeout
	// Canceled means the caller's context ended while the call was running.
	Canceled
)

func (k ErrorKind) String() string {
	switch k {
	case ToolUnavailable:
		return "tool unavailable"
	case CommandRejected:
		return "command rejected"
	case Timeout:
		return "timeout"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// NoErrorOutput is reported when a rejected command wrote nothing to stderr.
const NoErrorOutput = "Command failed with no error output"

// Error is the classified failure of a single transport call.
type Error struct {
	Transport Kind
	Kind      ErrorKind
	Message   string
	Err       error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a transport Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}
