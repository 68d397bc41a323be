package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	BearDetected bool    `json:"bear_detected"`
	Confidence   float64 `json:"confidence"`
}

func TestWriteKeepsJSONFieldNames(t *testing.T) {
	v := sample{BearDetected: true, Confidence: 0.5}

	var js bytes.Buffer
	require.NoError(t, Write(&js, FormatJSON, v))
	assert.JSONEq(t, `{"bear_detected":true,"confidence":0.5}`, js.String())

	var ym bytes.Buffer
	require.NoError(t, Write(&ym, FormatYAML, v))
	assert.Equal(t, "bear_detected: true\nconfidence: 0.5\n", ym.String())
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(FormatJSON))
	assert.NoError(t, Validate(FormatYAML))
	assert.Error(t, Validate("xml"))
}
