package vision

import (
	"errors"
	"testing"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected ImageFormat
	}{
		{"JPEG Magic Bytes", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}, FormatJPEG},
		{"PNG Magic Bytes", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A}, FormatPNG},
		{"WebP Magic Bytes", []byte{'R', 'I', 'F', 'F', 0, 0, 0, 0, 'W', 'E', 'B', 'P'}, FormatWebP},
		{"RIFF ohne WEBP", []byte{'R', 'I', 'F', 'F', 0, 0, 0, 0, 'W', 'A', 'V', 'E'}, FormatUnknown},
		{"Zu kurze Daten", []byte{0xFF, 0xD8}, FormatUnknown},
		{"Leer", nil, FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat(tt.data); got != tt.expected {
				t.Errorf("DetectFormat() = %v, erwartet %v", got, tt.expected)
			}
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	for path, want := range map[string]ImageFormat{
		"a/b/scene.PNG": FormatPNG,
		"digit.jpeg":    FormatJPEG,
		"x.jpg":         FormatJPEG,
		"room.webp":     FormatWebP,
		"labels.txt":    FormatUnknown,
		"no-extension":  FormatUnknown,
	} {
		if got := FormatFromPath(path); got != want {
			t.Errorf("FormatFromPath(%q) = %v, erwartet %v", path, got, want)
		}
	}
}

func TestValidateFormat(t *testing.T) {
	if err := ValidateFormat(FormatPNG); err != nil {
		t.Errorf("PNG sollte gueltig sein: %v", err)
	}
	if err := ValidateFormat(FormatUnknown); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("erwartet ErrUnknownFormat, bekam %v", err)
	}
	if FormatPNG.MimeType() != "image/png" {
		t.Errorf("MimeType = %q", FormatPNG.MimeType())
	}
}
