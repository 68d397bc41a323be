package buildinfo

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	c := New("v1.2.0", "2024-06-01T00:00:00Z")
	assert.Equal(t, "v1.2.0", c.GetVersion())
	assert.Equal(t, "2024-06-01T00:00:00Z", c.GetBuildDate())
	_, err := uuid.Parse(c.GetInstanceID())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, c.Uptime(), time.Duration(0))

	assert.NotEqual(t, c.GetInstanceID(), New("", "").GetInstanceID())
}

func TestUnknownFallbacks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ctx  *Context
	}{
		{"nil context", nil},
		{"empty context", &Context{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, "unknown", tt.ctx.GetVersion())
			assert.Equal(t, "unknown", tt.ctx.GetBuildDate())
			assert.Equal(t, "unknown", tt.ctx.GetInstanceID())
			assert.Zero(t, tt.ctx.Uptime())
		})
	}
}

func TestContextImplementsBuildInfo(t *testing.T) {
	t.Parallel()
	var info BuildInfo = &Context{Version: "dev"}
	assert.Equal(t, "dev", info.GetVersion())
}
