package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/bearwatch/bearwatch/internal/buildinfo"
	"github.com/bearwatch/bearwatch/internal/logger"
)

const pingTimeout = 3 * time.Second

// Pinger checks that a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status        string          `json:"status"` // healthy or degraded
	Version       string          `json:"version"`
	BuildDate     string          `json:"build_date"`
	InstanceID    string          `json:"instance_id"`
	Uptime        string          `json:"uptime"`
	UptimeSeconds float64         `json:"uptime_seconds"`
	Timestamp     string          `json:"timestamp"`
	Datastore     ComponentHealth `json:"datastore"`
	System        *SystemHealth   `json:"system,omitempty"`
}

// ComponentHealth reports one dependency.
type ComponentHealth struct {
	Status string `json:"status"` // ok or unavailable
	Error  string `json:"error,omitempty"`
}

// SystemHealth is host memory and disk usage.
type SystemHealth struct {
	MemoryTotal        uint64  `json:"memory_total"`
	MemoryUsed         uint64  `json:"memory_used"`
	MemoryUsagePercent float64 `json:"memory_usage_percent"`
	DiskPath           string  `json:"disk_path"`
	DiskTotal          uint64  `json:"disk_total"`
	DiskFree           uint64  `json:"disk_free"`
	DiskUsagePercent   float64 `json:"disk_usage_percent"`
}

// HealthChecker serves the health endpoint.
type HealthChecker struct {
	store    Pinger
	build    buildinfo.BuildInfo
	diskPath string
	log      logger.Logger
}

// NewHealthChecker returns a checker pinging store. diskPath is the
// filesystem reported in the system section, usually the database directory.
func NewHealthChecker(store Pinger, build buildinfo.BuildInfo, diskPath string) *HealthChecker {
	if diskPath == "" {
		diskPath = "."
	}
	if build == nil {
		build = buildinfo.New("", "")
	}
	return &HealthChecker{
		store:    store,
		build:    build,
		diskPath: diskPath,
		log:      GetLogger(),
	}
}

// Handle responds 200 when the datastore answers and 503 otherwise.
func (h *HealthChecker) Handle(c echo.Context) error {
	resp := h.Check(c.Request().Context())
	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, resp)
}

// Check collects the health report.
func (h *HealthChecker) Check(ctx context.Context) HealthResponse {
	uptime := h.build.Uptime()
	resp := HealthResponse{
		Status:        "healthy",
		Version:       h.build.GetVersion(),
		BuildDate:     h.build.GetBuildDate(),
		InstanceID:    h.build.GetInstanceID(),
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		Timestamp:     time.Now().Format(timeFormat),
		Datastore:     ComponentHealth{Status: "ok"},
		System:        h.system(ctx),
	}

	if h.store == nil {
		resp.Status = "degraded"
		resp.Datastore = ComponentHealth{Status: "unavailable", Error: "no datastore configured"}
		return resp
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := h.store.Ping(pingCtx); err != nil {
		h.log.Warn("health check: datastore unreachable", logger.Error(err))
		resp.Status = "degraded"
		resp.Datastore = ComponentHealth{Status: "unavailable", Error: "datastore did not respond"}
	}
	return resp
}

// system returns nil when host stats cannot be read, e.g. in containers
// without /proc access.
func (h *HealthChecker) system(ctx context.Context) *SystemHealth {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		h.log.Debug("health check: memory stats unavailable", logger.Error(err))
		return nil
	}
	s := &SystemHealth{
		MemoryTotal:        vm.Total,
		MemoryUsed:         vm.Used,
		MemoryUsagePercent: vm.UsedPercent,
		DiskPath:           h.diskPath,
	}

	usage, err := disk.UsageWithContext(ctx, h.diskPath)
	if err != nil {
		h.log.Debug("health check: disk stats unavailable",
			logger.String("path", h.diskPath),
			logger.Error(err))
		return s
	}
	s.DiskTotal = usage.Total
	s.DiskFree = usage.Free
	s.DiskUsagePercent = usage.UsedPercent
	return s
}
