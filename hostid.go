package deviceagent

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

var (
	hostIDOnce sync.Once
	hostID     string
)

// HostID identifies the workstation in recorded reports. It prefers the
// hardware UUID and falls back to the hostname.
func HostID() string {
	hostIDOnce.Do(func() {
		if id, err := getHostUUID(); err == nil && id != "" {
			hostID = id
			return
		}
		if name, err := os.Hostname(); err == nil {
			hostID = strings.TrimSpace(name)
		}
	})
	return hostID
}

// getHostUUID returns a best-effort hardware UUID for the host.
// On macOS it uses `system_profiler`; on Linux it prefers /etc/machine-id then falls back to /sys/class/dmi/id/product_uuid.
func getHostUUID() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		cmd := exec.CommandContext(ctx, "bash", "-c", "system_profiler SPHardwareDataType | awk '/Hardware UUID/ {print $3}'")
		out, err := cmd.Output()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(out)), nil
	case "linux":
		if id, err := readSystemFile("/etc/machine-id"); err == nil && id != "" {
			return id, nil
		}
		if id, err := readSystemFile("/sys/class/dmi/id/product_uuid"); err == nil && id != "" {
			return id, nil
		}
		return "", nil
	default:
		return "", nil
	}
}

func readSystemFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
