// Package buildinfo holds build-time metadata and the identity of the
// running instance, kept apart from user configuration.
package buildinfo

import (
	"time"

	"github.com/google/uuid"
)

const unknown = "unknown"

// BuildInfo provides access to build-time metadata.
type BuildInfo interface {
	GetVersion() string
	GetBuildDate() string
	GetInstanceID() string
	Uptime() time.Duration
}

// Context is injected at startup from linker flags.
type Context struct {
	Version   string
	BuildDate string

	// InstanceID identifies this process in health output and MQTT client ids
	InstanceID string
	StartedAt  time.Time
}

// New returns a Context with a fresh instance id, started now.
func New(version, buildDate string) *Context {
	return &Context{
		Version:    version,
		BuildDate:  buildDate,
		InstanceID: uuid.NewString(),
		StartedAt:  time.Now(),
	}
}

// GetVersion implements BuildInfo.GetVersion
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return unknown
	}
	return c.Version
}

// GetBuildDate implements BuildInfo.GetBuildDate
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return unknown
	}
	return c.BuildDate
}

// GetInstanceID implements BuildInfo.GetInstanceID
func (c *Context) GetInstanceID() string {
	if c == nil || c.InstanceID == "" {
		return unknown
	}
	return c.InstanceID
}

// Uptime returns the time since StartedAt, or zero when unset.
func (c *Context) Uptime() time.Duration {
	if c == nil || c.StartedAt.IsZero() {
		return 0
	}
	return time.Since(c.StartedAt)
}
