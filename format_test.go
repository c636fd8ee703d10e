package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/binghezhouke/123/internal/pan"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"zero", 0, "0 B"},
		{"bytes", 512, "512 B"},
		{"kilobytes", 1536, "1.5 KB"},
		{"megabytes", 5242880, "5.0 MB"},
		{"gigabytes", 1610612736, "1.5 GB"},
		{"terabytes", 1099511627776, "1.0 TB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatSize(tt.bytes))
		})
	}
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "-", formatTime(""))

	// Vendor timestamps pass through when unparseable.
	assert.Equal(t, "sometime", formatTime("sometime"))

	got := formatTime("2026-03-15 10:30:00")
	assert.Contains(t, got, "2026-03-15")
}

func TestFileTypeRune(t *testing.T) {
	assert.Equal(t, 'd', fileTypeRune(&pan.File{IsFolder: true}))
	assert.Equal(t, '-', fileTypeRune(&pan.File{}))
}
