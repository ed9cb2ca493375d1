package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/httprunner/DeviceAgent/internal/env"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Environment variable names recognised by Load.
const (
	EnvConfigPath      = "DEVICEAGENT_CONFIG"
	EnvADBPath         = "DEVICEAGENT_ADB_PATH"
	EnvFastbootPath    = "DEVICEAGENT_FASTBOOT_PATH"
	EnvCommandTimeout  = "DEVICEAGENT_COMMAND_TIMEOUT"
	EnvBackupRoot      = "DEVICEAGENT_BACKUP_ROOT"
	EnvHistoryDBPath   = "DEVICEAGENT_HISTORY_DB_PATH"
	EnvHistoryDisable  = "DEVICEAGENT_HISTORY_DISABLE"
	EnvHistoryJSONL    = "DEVICEAGENT_HISTORY_JSONL"
	EnvMaxParallel     = "DEVICEAGENT_MAX_PARALLEL"
	EnvReportBitable   = "REPORT_BITABLE_URL"
	defaultTimeout     = 10 * time.Minute
	defaultBackupRoot  = "/sdcard/DeviceAgent"
	defaultHistoryDir  = ".deviceagent"
	defaultHistoryFile = "history.sqlite"
	defaultMaxParallel = 4
)

// Config holds everything the agent needs to reach the external tools and
// the report sinks.
type Config struct {
	Transport TransportConfig `yaml:"transport"`
	Sequencer SequencerConfig `yaml:"sequencer"`
	History   HistoryConfig   `yaml:"history"`
	Feishu    FeishuConfig    `yaml:"feishu"`
	// MaxParallel bounds how many devices one fan-out touches at once.
	MaxParallel int `yaml:"max_parallel"`
}

type TransportConfig struct {
	ADBPath      string   `yaml:"adb_path"`
	FastbootPath string   `yaml:"fastboot_path"`
	Timeout      Duration `yaml:"timeout"`
}

type SequencerConfig struct {
	BackupRoot  string   `yaml:"backup_root"`
	GMSPackages []string `yaml:"gms_packages"`
}

type HistoryConfig struct {
	Disabled  bool   `yaml:"disabled"`
	DBPath    string `yaml:"db_path"`
	JSONLPath string `yaml:"jsonl_path"`
}

type FeishuConfig struct {
	BitableURL string `yaml:"bitable_url"`
}

// Duration lets YAML files spell timeouts as "90s" or "10m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	raw := strings.TrimSpace(node.Value)
	if raw == "" || raw == "0" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.Wrapf(err, "config: invalid duration %q", raw)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Transport: TransportConfig{
			ADBPath:      "adb",
			FastbootPath: "fastboot",
			Timeout:      Duration{defaultTimeout},
		},
		Sequencer: SequencerConfig{
			BackupRoot: defaultBackupRoot,
		},
		MaxParallel: defaultMaxParallel,
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (or $DEVICEAGENT_CONFIG when path is empty), then environment
// overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		path = env.String(EnvConfigPath, "")
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	if err := cfg.finalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "config: read %s failed", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "config: parse %s failed", path)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Transport.ADBPath = env.String(EnvADBPath, c.Transport.ADBPath)
	c.Transport.FastbootPath = env.String(EnvFastbootPath, c.Transport.FastbootPath)
	c.Transport.Timeout.Duration = env.Duration(EnvCommandTimeout, c.Transport.Timeout.Duration)
	c.Sequencer.BackupRoot = env.String(EnvBackupRoot, c.Sequencer.BackupRoot)
	c.History.Disabled = env.Bool(EnvHistoryDisable, c.History.Disabled)
	c.History.DBPath = env.String(EnvHistoryDBPath, c.History.DBPath)
	c.History.JSONLPath = env.String(EnvHistoryJSONL, c.History.JSONLPath)
	c.Feishu.BitableURL = env.String(EnvReportBitable, c.Feishu.BitableURL)
	c.MaxParallel = env.Int(EnvMaxParallel, c.MaxParallel)
}

func (c *Config) finalize() error {
	if strings.TrimSpace(c.Transport.ADBPath) == "" {
		c.Transport.ADBPath = "adb"
	}
	if strings.TrimSpace(c.Transport.FastbootPath) == "" {
		c.Transport.FastbootPath = "fastboot"
	}
	if c.Transport.Timeout.Duration < 0 {
		return errors.Errorf("config: negative command timeout %s", c.Transport.Timeout.Duration)
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = defaultMaxParallel
	}
	c.Sequencer.BackupRoot = strings.TrimRight(strings.TrimSpace(c.Sequencer.BackupRoot), "/")
	if c.Sequencer.BackupRoot == "" {
		c.Sequencer.BackupRoot = defaultBackupRoot
	}
	if !c.History.Disabled && strings.TrimSpace(c.History.DBPath) == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "config: locate user home failed")
		}
		c.History.DBPath = filepath.Join(home, defaultHistoryDir, defaultHistoryFile)
	}
	return nil
}
