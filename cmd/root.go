package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bearwatch/bearwatch/cmd/config"
	"github.com/bearwatch/bearwatch/cmd/detect"
	"github.com/bearwatch/bearwatch/cmd/notify"
	"github.com/bearwatch/bearwatch/cmd/recent"
	"github.com/bearwatch/bearwatch/cmd/serve"
	"github.com/bearwatch/bearwatch/cmd/stats"
	"github.com/bearwatch/bearwatch/internal/app"
	"github.com/bearwatch/bearwatch/internal/buildinfo"
	"github.com/bearwatch/bearwatch/internal/conf"
)

// RootCommand creates and returns the root command. Subcommands share
// settings, which are loaded once flags are parsed. The returned func
// flushes logs and telemetry and must run after Execute, even on error.
func RootCommand(build *buildinfo.Context) (*cobra.Command, func()) {
	settings := &conf.Settings{}
	var cleanups []func()

	rootCmd := &cobra.Command{
		Use:           "bearwatch",
		Short:         "BearWatch bear detection service",
		Long:          "BearWatch classifies trail camera images for bears, records every verdict and serves detection statistics.",
		Version:       fmt.Sprintf("%s (built %s)", build.GetVersion(), build.GetBuildDate()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd); err != nil {
		panic(err) // flag names are static
	}

	rootCmd.AddCommand(
		serve.Command(settings, build),
		detect.Command(settings, build),
		stats.Command(settings, build),
		recent.Command(settings, build),
		notify.Command(settings),
		config.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if config.SkipsSettings(cmd) {
			return nil
		}
		return initialize(settings, build, &cleanups)
	}

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	return rootCmd, cleanup
}

// initialize loads settings and starts logging and telemetry. It runs
// before any subcommand but after flags are bound to viper.
func initialize(settings *conf.Settings, build *buildinfo.Context, cleanups *[]func()) error {
	loaded, err := conf.Load()
	if err != nil {
		return err
	}
	*settings = *loaded

	closeLogs, err := app.SetupLogging(settings)
	if err != nil {
		return err
	}
	*cleanups = append(*cleanups, closeLogs)

	flush, err := app.SetupTelemetry(settings, build)
	if err != nil {
		return err
	}
	*cleanups = append(*cleanups, flush)
	return nil
}

// setupFlags defines flags that are global to the command line interface.
func setupFlags(rootCmd *cobra.Command) error {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: search ., ~/.config/bearwatch, /etc/bearwatch)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
