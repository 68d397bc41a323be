package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bearwatch/bearwatch/internal/conf"
)

func TestInitWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cmd := Command(&conf.Settings{})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"init", path})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Contains(t, out.String(), path)

	// second run keeps the existing file
	cmd = Command(&conf.Settings{})
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"init", path})
	assert.Error(t, cmd.Execute())
}

func TestPrintRedactsSecrets(t *testing.T) {
	settings, err := conf.Defaults()
	require.NoError(t, err)
	settings.Classifier.APIKey = "super-secret-key"
	settings.Notification.URLs = []string{"ntfy://token@ntfy.sh/bears"}

	cmd := Command(settings)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"print"})
	require.NoError(t, cmd.Execute())

	assert.NotContains(t, out.String(), "super-secret-key")
	assert.NotContains(t, out.String(), "ntfy.sh")
	assert.Contains(t, out.String(), "[REDACTED]")
}

func TestSkipsSettings(t *testing.T) {
	cmd := Command(&conf.Settings{})
	for _, sub := range cmd.Commands() {
		switch sub.Name() {
		case "init":
			assert.True(t, SkipsSettings(sub))
		case "print":
			assert.False(t, SkipsSettings(sub))
		}
	}
	assert.False(t, SkipsSettings(cmd))
}
