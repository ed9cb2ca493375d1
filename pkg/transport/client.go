package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Runner executes one external program and captures its output streams.
// A nil error means the process exited with status zero.
type Runner interface {
	Run(ctx context.Context, program string, args []string) (stdout, stderr []byte, err error)
}

// Config controls program paths and the per-call bound.
type Config struct {
	ADBPath      string
	FastbootPath string
	// Timeout bounds every external call; zero leaves calls unbounded.
	Timeout time.Duration
	Runner  Runner
}

// Client invokes adb and fastboot against one device per call. It performs
// no retries; fallback belongs to the caller.
type Client struct {
	adbPath      string
	fastbootPath string
	timeout      time.Duration
	runner       Runner
}

// NewClient builds a Client, filling unset fields with defaults.
func NewClient(cfg Config) *Client {
	c := &Client{
		adbPath:      strings.TrimSpace(cfg.ADBPath),
		fastbootPath: strings.TrimSpace(cfg.FastbootPath),
		timeout:      cfg.Timeout,
		runner:       cfg.Runner,
	}
	if c.adbPath == "" {
		c.adbPath = DebugBridge.Program()
	}
	if c.fastbootPath == "" {
		c.fastbootPath = Bootloader.Program()
	}
	if c.runner == nil {
		c.runner = ExecRunner{}
	}
	return c
}

func (c *Client) program(kind Kind) string {
	if kind == Bootloader {
		return c.fastbootPath
	}
	return c.adbPath
}

// Invoke runs `<program> -s <device> <args...>` and returns trimmed stdout.
func (c *Client) Invoke(ctx context.Context, kind Kind, dev Device, args ...string) (string, error) {
	full := make([]string, 0, len(args)+2)
	full = append(full, "-s", string(dev))
	full = append(full, args...)
	return c.run(ctx, kind, dev, full)
}

// Shell runs `adb -s <device> shell <args...>`.
func (c *Client) Shell(ctx context.Context, dev Device, args ...string) (string, error) {
	full := make([]string, 0, len(args)+1)
	full = append(full, "shell")
	full = append(full, args...)
	return c.Invoke(ctx, DebugBridge, dev, full...)
}

// Tool runs the transport program without a device selector, e.g. `adb version`.
func (c *Client) Tool(ctx context.Context, kind Kind, args ...string) (string, error) {
	return c.run(ctx, kind, "", args)
}

func (c *Client) run(ctx context.Context, kind Kind, dev Device, args []string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	program := c.program(kind)
	start := time.Now()
	stdout, stderr, err := c.runner.Run(callCtx, program, args)
	elapsed := time.Since(start)

	if err == nil {
		out := decode(stdout)
		log.Debug().
			Str("transport", kind.String()).
			Str("serial", dev.String()).
			Strs("args", args).
			Dur("elapsed", elapsed).
			Msg("transport call succeeded")
		return out, nil
	}

	classified := c.classify(callCtx, kind, stderr, err)
	log.Debug().
		Str("transport", kind.String()).
		Str("serial", dev.String()).
		Strs("args", args).
		Dur("elapsed", elapsed).
		Str("kind", classified.Kind.String()).
		Str("error", classified.Message).
		Msg("transport call failed")
	return "", classified
}

func (c *Client) classify(ctx context.Context, kind Kind, stderr []byte, err error) *Error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		msg := fmt.Sprintf("%s command timed out", kind)
		if c.timeout > 0 {
			msg = fmt.Sprintf("%s after %s", msg, c.timeout)
		}
		return &Error{Transport: kind, Kind: Timeout, Message: msg, Err: ctx.Err()}
	case errors.Is(ctx.Err(), context.Canceled):
		return &Error{
			Transport: kind,
			Kind:      Canceled,
			Message:   fmt.Sprintf("%s command canceled", kind),
			Err:       ctx.Err(),
		}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg := decode(stderr)
		if msg == "" {
			msg = NoErrorOutput
		}
		return &Error{Transport: kind, Kind: CommandRejected, Message: msg, Err: err}
	}
	return &Error{
		Transport: kind,
		Kind:      ToolUnavailable,
		Message:   fmt.Sprintf("Failed to execute %s: %v", kind, err),
		Err:       err,
	}
}

// decode replaces invalid UTF-8 rather than failing, then trims.
func decode(raw []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(raw), "\uFFFD"))
}

// DefaultWaitDelay bounds how long a killed call waits for its output pipes
// to close.
const DefaultWaitDelay = 2 * time.Second

// ExecRunner runs programs with os/exec. On cancellation the whole process
// group is killed, and the call returns at most WaitDelay later even if a
// stray process still holds stdout or stderr.
type ExecRunner struct {
	// WaitDelay overrides DefaultWaitDelay when positive.
	WaitDelay time.Duration
	// command overrides exec.CommandContext in tests.
	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

func (r ExecRunner) waitDelay() time.Duration {
	if r.WaitDelay > 0 {
		return r.WaitDelay
	}
	return DefaultWaitDelay
}

func (r ExecRunner) Run(ctx context.Context, program string, args []string) ([]byte, []byte, error) {
	factory := r.command
	if factory == nil {
		factory = exec.CommandContext
	}
	cmd := factory(ctx, program, args...)
	setupProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = r.waitDelay()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
