package adb

import (
	"context"
	"testing"

	"github.com/httprunner/httprunner/v5/pkg/gadb"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStateProvider struct {
	states map[string]string
	err    error
}

func (p *stubStateProvider) ListDevicesWithState(ctx context.Context) (map[string]string, error) {
	return p.states, p.err
}

func TestDevicesSortedBySerial(t *testing.T) {
	lister := &stubStateProvider{states: map[string]string{
		"zeta":  string(gadb.StateOnline),
		"alpha": string(gadb.StateOffline),
	}}
	devices, err := Devices(context.Background(), lister)
	require.NoError(t, err)
	assert.Equal(t, []Device{
		{Serial: "alpha", State: string(gadb.StateOffline)},
		{Serial: "zeta", State: string(gadb.StateOnline)},
	}, devices)
	assert.False(t, devices[0].Online())
	assert.True(t, devices[1].Online())
}

func TestResolveSerial(t *testing.T) {
	cases := []struct {
		name    string
		states  map[string]string
		want    string
		wantErr string
	}{
		{
			name:   "single online",
			states: map[string]string{"online-1": string(gadb.StateOnline), "offline-1": string(gadb.StateOffline)},
			want:   "online-1",
		},
		{
			name:    "none online",
			states:  map[string]string{"offline-1": string(gadb.StateOffline)},
			wantErr: "no online device",
		},
		{
			name:    "ambiguous",
			states:  map[string]string{"b": string(gadb.StateOnline), "a": string(gadb.StateOnline)},
			wantErr: "multiple online devices (a, b)",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveSerial(context.Background(), &stubStateProvider{states: tc.states})
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolveSerialPropagatesListError(t *testing.T) {
	_, err := ResolveSerial(context.Background(), &stubStateProvider{err: errors.New("adb server down")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "adb server down")

	_, err = Devices(context.Background(), nil)
	require.Error(t, err)
}

func TestNilProvider(t *testing.T) {
	var p *Provider
	_, err := p.ListDevicesWithState(context.Background())
	require.Error(t, err)
}
