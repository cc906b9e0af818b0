package format

import (
	"testing"
	"time"
)

func TestHumanNumber(t *testing.T) {
	cases := []struct {
		input    uint64
		expected string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1.00K"},
		{12345, "12.3K"},
		{4_208_963, "4.21M"},
		{50_000_000, "50.0M"},
		{123_000_000, "123M"},
		{2_500_000_000, "2.50B"},
	}

	for _, tt := range cases {
		if got := HumanNumber(tt.input); got != tt.expected {
			t.Errorf("HumanNumber(%d) = %q, erwartet %q", tt.input, got, tt.expected)
		}
	}
}

func TestHumanBytes(t *testing.T) {
	cases := []struct {
		input    int64
		expected string
	}{
		{512, "512 B"},
		{1000, "1000 B"},
		{1500, "1.5 KB"},
		{16_800_000, "16.8 MB"},
		{3_200_000_000, "3.2 GB"},
	}

	for _, tt := range cases {
		if got := HumanBytes(tt.input); got != tt.expected {
			t.Errorf("HumanBytes(%d) = %q, erwartet %q", tt.input, got, tt.expected)
		}
	}
}

func TestHumanDuration(t *testing.T) {
	cases := []struct {
		input    time.Duration
		expected string
	}{
		{500 * time.Millisecond, "less than a second"},
		{42 * time.Second, "42 seconds"},
		{90 * time.Second, "about a minute"},
		{5 * time.Minute, "5 minutes"},
		{3 * time.Hour, "3 hours"},
		{72 * time.Hour, "3 days"},
	}

	for _, tt := range cases {
		if got := HumanDuration(tt.input); got != tt.expected {
			t.Errorf("HumanDuration(%v) = %q, erwartet %q", tt.input, got, tt.expected)
		}
	}

	if got := HumanTime(time.Time{}, "never"); got != "never" {
		t.Errorf("HumanTime(zero) = %q", got)
	}
	if got := HumanTime(time.Now().Add(-10*time.Minute), ""); got != "10 minutes ago" {
		t.Errorf("HumanTime(-10m) = %q", got)
	}
}
