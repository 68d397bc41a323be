package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bearwatch/bearwatch/internal/conf"
)

// annotationSkipSettings marks commands that must run without a loadable config.
const annotationSkipSettings = "bearwatch/skip-settings"

// Command creates the config command with print and init subcommands.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}
	cmd.AddCommand(printCommand(settings), initCommand())
	return cmd
}

// SkipsSettings reports whether cmd runs before settings are loaded.
func SkipsSettings(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if _, ok := c.Annotations[annotationSkipSettings]; ok {
			return true
		}
	}
	return false
}

func printCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "print",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := settings.RedactedYAML()
			if err != nil {
				return fmt.Errorf("error rendering settings: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func initCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "init [path]",
		Short:       "Write the default configuration file",
		Long:        "Write the default configuration to path, or to ~/.config/bearwatch/config.yaml. Existing files are kept.",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{annotationSkipSettings: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := initPath(args)
			if err != nil {
				return err
			}
			if err := conf.WriteDefaultConfig(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created default config file at: %s\n", path)
			return nil
		},
	}
}

// initPath picks the user config directory, the second search path, when
// no path is given.
func initPath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	paths, err := conf.GetDefaultConfigPaths()
	if err != nil {
		return "", err
	}
	dir := paths[0]
	if len(paths) > 1 {
		dir = paths[1]
	}
	return filepath.Join(dir, "config.yaml"), nil
}
