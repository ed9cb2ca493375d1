package adb

import (
	"context"
	"sort"
	"strings"

	"github.com/httprunner/httprunner/v5/pkg/gadb"
	"github.com/pkg/errors"
)

// ErrNoDevice is returned by ResolveSerial when no device is online.
var ErrNoDevice = errors.New("no online device found; pass --serial")

// StateLister reports every attached device with its raw state name.
type StateLister interface {
	ListDevicesWithState(ctx context.Context) (map[string]string, error)
}

// Device is one attached device as seen by the adb server.
type Device struct {
	Serial string
	State  string
}

// Online reports whether the device accepts commands.
func (d Device) Online() bool {
	return d.State == string(gadb.StateOnline)
}

// Provider implements StateLister using gadb.
type Provider struct {
	client gadb.Client
}

// New creates a Provider backed by the given gadb client.
func New(client gadb.Client) *Provider {
	return &Provider{client: client}
}

// NewDefault creates a Provider using a default gadb client.
func NewDefault() (*Provider, error) {
	client, err := gadb.NewClient()
	if err != nil {
		return nil, errors.Wrap(err, "init adb client for provider")
	}
	return New(client), nil
}

// ListDevicesWithState returns device serials with their raw gadb state names.
func (p *Provider) ListDevicesWithState(ctx context.Context) (map[string]string, error) {
	if p == nil {
		return nil, errors.New("adb provider is nil")
	}
	devs, err := p.client.DeviceList()
	if err != nil {
		return nil, errors.Wrap(err, "list adb devices")
	}
	stateBySerial := make(map[string]string, len(devs))
	for _, dev := range devs {
		if dev == nil {
			continue
		}
		serial := strings.TrimSpace(dev.Serial())
		if serial == "" {
			continue
		}
		state, err := dev.State()
		if err != nil {
			stateBySerial[serial] = string(gadb.StateUnknown)
			continue
		}
		stateBySerial[serial] = string(state)
	}
	return stateBySerial, nil
}

// Devices lists attached devices sorted by serial.
func Devices(ctx context.Context, lister StateLister) ([]Device, error) {
	if lister == nil {
		return nil, errors.New("adb provider is nil")
	}
	states, err := lister.ListDevicesWithState(ctx)
	if err != nil {
		return nil, err
	}
	devices := make([]Device, 0, len(states))
	for serial, state := range states {
		devices = append(devices, Device{Serial: serial, State: state})
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Serial < devices[j].Serial })
	return devices, nil
}

// ResolveSerial picks the device to use when none was named: it succeeds
// only when exactly one device is online.
func ResolveSerial(ctx context.Context, lister StateLister) (string, error) {
	devices, err := Devices(ctx, lister)
	if err != nil {
		return "", err
	}
	var online []string
	for _, d := range devices {
		if d.Online() {
			online = append(online, d.Serial)
		}
	}
	switch len(online) {
	case 0:
		return "", ErrNoDevice
	case 1:
		return online[0], nil
	default:
		return "", errors.Errorf("multiple online devices (%s); pass --serial", strings.Join(online, ", "))
	}
}
