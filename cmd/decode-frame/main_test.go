package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestDescribeMeasurement(t *testing.T) {
	var buf bytes.Buffer
	if err := describe(&buf, "10 b0 1d 00 fe 09", "auto", nil); err != nil {
		t.Fatalf("describe() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"measurement", "76.00 kg", "display unit kg", "stable:       true", "finished"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestDescribeChallengeWithPassword(t *testing.T) {
	var buf bytes.Buffer
	if err := describe(&buf, "a1a55a00ff", "auto", []byte{0x11, 0x22, 0x33, 0x44}); err != nil {
		t.Fatalf("describe() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "challenge:    a55a00ff") {
		t.Errorf("output missing challenge:\n%s", out)
	}
	if !strings.Contains(out, "response:     20b47833bb") {
		t.Errorf("output missing response:\n%s", out)
	}
}

func TestDescribePasswordBroadcast(t *testing.T) {
	var buf bytes.Buffer
	if err := describe(&buf, "a011223344", "auto", nil); err != nil {
		t.Fatalf("describe() error = %v", err)
	}
	if !strings.Contains(buf.String(), "password:     11223344") {
		t.Errorf("output missing password:\n%s", buf.String())
	}
}

func TestDescribeErrors(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		kind  string
	}{
		{"not hex", "zz", "auto"},
		{"empty", "", "auto"},
		{"truncated measurement", "01000000000a", "auto"},
		{"truncated control", "a101", "auto"},
		{"unknown kind", "00", "bogus"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := describe(&bytes.Buffer{}, tt.frame, tt.kind, nil); err == nil {
				t.Errorf("describe(%q) error = nil, want error", tt.frame)
			}
		})
	}
}
