package deviceagent

import "github.com/httprunner/DeviceAgent/internal/config"

// Version is reported by the CLI.
const Version = "v0.1.0"

// Environment variable names recognised by the agent. They are re-exported
// from the internal config package so callers can depend on the root
// package only.
const (
	EnvConfigPath     = config.EnvConfigPath
	EnvADBPath        = config.EnvADBPath
	EnvFastbootPath   = config.EnvFastbootPath
	EnvCommandTimeout = config.EnvCommandTimeout
	EnvBackupRoot     = config.EnvBackupRoot
	EnvHistoryDBPath  = config.EnvHistoryDBPath
	EnvHistoryDisable = config.EnvHistoryDisable
	EnvHistoryJSONL   = config.EnvHistoryJSONL
	EnvMaxParallel    = config.EnvMaxParallel
	EnvReportBitable  = config.EnvReportBitable
)
