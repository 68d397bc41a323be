package submission

import (
	"bytes"
	"image"
	_ "image/jpeg" // register JPEG for DecodeConfig
	_ "image/png"  // register PNG for DecodeConfig
	"strings"
	"time"

	"github.com/bearwatch/bearwatch/internal/conf"
	"github.com/bearwatch/bearwatch/internal/detection"
	"github.com/bearwatch/bearwatch/internal/logger"
)

// validateImage accepts only non-empty PNG or JPEG payloads within maxSize.
// Only the header is decoded.
func validateImage(img []byte, maxSize int64) error {
	if len(img) == 0 {
		return detection.InvalidInput("image is required")
	}
	if maxSize > 0 && int64(len(img)) > maxSize {
		return detection.InvalidInput("image is %d bytes, limit is %d", len(img), maxSize)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return detection.InvalidInput("image must be PNG or JPEG")
	}
	if format != "png" && format != "jpeg" {
		return detection.InvalidInput("unsupported image format %q", format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return detection.InvalidInput("image has no pixels")
	}
	return nil
}

// resolveLocation substitutes the fallback for a blank location. Non-blank
// locations are kept exactly as submitted.
func resolveLocation(location, fallback string) string {
	if strings.TrimSpace(location) == "" {
		return fallback
	}
	return location
}

// resolveTimestamp picks detected_at, in UTC at millisecond precision.
// Under the client policy a capture time is used when it is not further in
// the future than maxSkew.
func resolveTimestamp(policy string, capturedAt *time.Time, now time.Time, maxSkew time.Duration) time.Time {
	if policy != conf.TimestampPolicyClient || capturedAt == nil || capturedAt.IsZero() {
		return detection.NormalizeTime(now)
	}
	if capturedAt.After(now.Add(maxSkew)) {
		GetLogger().Debug("capture time too far in the future, using server time",
			logger.Time("captured_at", *capturedAt),
			logger.Duration("max_skew", maxSkew))
		return detection.NormalizeTime(now)
	}
	return detection.NormalizeTime(*capturedAt)
}
