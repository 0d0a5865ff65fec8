package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncoderPriorityAlwaysPutsLibx264First(t *testing.T) {
	opts := encoderPriority(map[string]bool{"h264_nvenc": true, "h264_qsv": true, "h264_amf": true}, true)
	require.NotEmpty(t, opts)
	assert.Equal(t, "libx264", opts[0].Name)
}

func TestEncoderPriorityOnlyIncludesCUDAEncoderWhenCUDADetected(t *testing.T) {
	opts := encoderPriority(map[string]bool{"h264_nvenc": true}, false)
	for _, o := range opts {
		assert.NotEqual(t, "h264_nvenc", o.Name, "nvenc must not be offered without CUDA detection")
	}
}

func TestEncoderPriorityOrdersNvencBeforeQsvBeforeAmf(t *testing.T) {
	opts := encoderPriority(map[string]bool{"h264_nvenc": true, "h264_qsv": true, "h264_amf": true}, true)
	names := make([]string, len(opts))
	for i, o := range opts {
		names[i] = o.Name
	}
	assert.Equal(t, []string{"libx264", "h264_nvenc", "h264_qsv", "h264_amf"}, names)
}

func TestEncoderPriorityFallsBackToLibx264OnlyWhenNoHardwareDetected(t *testing.T) {
	opts := encoderPriority(map[string]bool{}, false)
	require.Len(t, opts, 1)
	assert.Equal(t, "libx264", opts[0].Name)
}
