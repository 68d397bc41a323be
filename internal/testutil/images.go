// Package testutil provides shared test fixtures for BearWatch packages.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

// trailcamFrame is a tiny RGBA frame with one non-zero pixel so encoders
// cannot collapse it.
func trailcamFrame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(2, 3, color.RGBA{R: 90, G: 60, B: 30, A: 255})
	return img
}

// PNGImage returns a valid PNG payload.
func PNGImage(t testing.TB) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, trailcamFrame()))
	return buf.Bytes()
}

// JPEGImage returns a valid JPEG payload.
func JPEGImage(t testing.TB) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, trailcamFrame(), nil))
	return buf.Bytes()
}
