package conf

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/bearwatch/bearwatch/internal/errors"
)

const osWindows = "windows"

// GetDefaultConfigPaths returns the directories searched for config.yaml, in priority order.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	if runtime.GOOS == osWindows {
		exePath, err := os.Executable()
		if err != nil {
			return nil, errors.New(err).
				Component("configuration").
				Category(errors.CategorySystem).
				Context("operation", "get-executable-path").
				Build()
		}
		return []string{
			filepath.Dir(exePath),
			filepath.Join(homeDir, "AppData", "Roaming", "bearwatch"),
		}, nil
	}

	return []string{
		".",
		filepath.Join(homeDir, ".config", "bearwatch"),
		"/etc/bearwatch",
	}, nil
}
