package sequencer

import (
	"context"
	"strings"

	"github.com/httprunner/DeviceAgent/pkg/transport"
)

type scripted struct {
	out string
	err error
}

// fakeInvoker records calls as "adb ...", "shell ...", "fastboot ..." or
// "tool adb ..." and answers from a script. Unscripted calls succeed with
// empty output.
type fakeInvoker struct {
	script   map[string]scripted
	calls    []string
	devices  []transport.Device
	ctxErrs  []error
	fallback *scripted
}

func newFake() *fakeInvoker {
	return &fakeInvoker{script: map[string]scripted{}}
}

func (f *fakeInvoker) ok(cmd, out string) *fakeInvoker {
	f.script[cmd] = scripted{out: out}
	return f
}

func (f *fakeInvoker) fail(cmd, msg string) *fakeInvoker {
	f.script[cmd] = scripted{err: &transport.Error{Kind: transport.CommandRejected, Message: msg}}
	return f
}

// failAll makes every unscripted call fail with msg.
func (f *fakeInvoker) failAll(msg string) *fakeInvoker {
	f.fallback = &scripted{err: &transport.Error{Kind: transport.CommandRejected, Message: msg}}
	return f
}

func (f *fakeInvoker) answer(ctx context.Context, dev transport.Device, key string) (string, error) {
	f.calls = append(f.calls, key)
	f.devices = append(f.devices, dev)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	if s, ok := f.script[key]; ok {
		return s.out, s.err
	}
	if f.fallback != nil {
		return f.fallback.out, f.fallback.err
	}
	return "", nil
}

func (f *fakeInvoker) Invoke(ctx context.Context, kind transport.Kind, dev transport.Device, args ...string) (string, error) {
	return f.answer(ctx, dev, kind.Program()+" "+strings.Join(args, " "))
}

func (f *fakeInvoker) Shell(ctx context.Context, dev transport.Device, args ...string) (string, error) {
	return f.answer(ctx, dev, "shell "+strings.Join(args, " "))
}

func (f *fakeInvoker) Tool(ctx context.Context, kind transport.Kind, args ...string) (string, error) {
	return f.answer(ctx, "", "tool "+kind.Program()+" "+strings.Join(args, " "))
}

const testDevice transport.Device = "SER123"

func newTestSequencer(f *fakeInvoker) *Sequencer {
	return New(f, Options{})
}
