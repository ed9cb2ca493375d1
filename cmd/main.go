package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	deviceagent "github.com/httprunner/DeviceAgent"
	"github.com/httprunner/DeviceAgent/internal/config"
	"github.com/httprunner/DeviceAgent/internal/env"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "deviceagent",
	Short:         "Android service operations over adb and fastboot",
	Long:          `deviceagent runs bootloader, flashing, repair and diagnostic sequences against Android devices through the adb and fastboot command-line tools, and records every report to the local history and optional Feishu bitable.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return applyLogLevel(rootLogLevel)
	},
}

var (
	rootConfigPath string
	rootLogLevel   string
)

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config", "", "YAML config file overriding $"+deviceagent.EnvConfigPath)
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.AddCommand(
		newRunCmd(),
		newOpsCmd(),
		newVendorsCmd(),
		newDevicesCmd(),
		newHistoryCmd(),
		newVersionCmd(),
	)
	_ = env.Ensure()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		log.Fatal().Err(err).Msg("deviceagent command failed")
	}
}

func applyLogLevel(raw string) error {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil || level == zerolog.NoLevel {
		return errors.Errorf("invalid --log-level %q", raw)
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

func loadConfig() (config.Config, error) {
	return config.Load(rootConfigPath)
}
