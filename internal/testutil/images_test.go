package testutil

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImagesDecode(t *testing.T) {
	for name, data := range map[string][]byte{"png": PNGImage(t), "jpeg": JPEGImage(t)} {
		cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
		require.NoError(t, err, name)
		assert.Equal(t, name, format)
		assert.Equal(t, 8, cfg.Width)
	}
}
