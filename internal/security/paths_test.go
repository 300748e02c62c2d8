package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	safeDir := filepath.Join(tmpDir, "safe")
	unsafeDir := filepath.Join(tmpDir, "unsafe")
	for _, d := range []string{safeDir, unsafeDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
	}
	if err := os.Symlink(unsafeDir, filepath.Join(safeDir, "evil-symlink")); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	tests := []struct {
		name      string
		filePath  string
		safeDir   string
		wantError bool
	}{
		{"file in directory", filepath.Join(safeDir, "vehicles.png"), safeDir, false},
		{"nested file not yet created", filepath.Join(safeDir, "a", "b", "c.png"), safeDir, false},
		{"directory itself", safeDir, safeDir, false},
		{"missing safe directory", filepath.Join(tmpDir, "new", "x.png"), filepath.Join(tmpDir, "new"), false},
		{"dot dot", filepath.Join(safeDir, "..", "x.png"), safeDir, true},
		{"sibling", filepath.Join(unsafeDir, "x.png"), safeDir, true},
		{"through symlink", filepath.Join(safeDir, "evil-symlink", "x.png"), safeDir, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.filePath, tt.safeDir)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidatePathWithinDirectory(%q, %q) error = %v, wantError %v", tt.filePath, tt.safeDir, err, tt.wantError)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"vehicles":         "vehicles",
		"Bus SBS / night":  "Bus_SBS_night",
		"../../etc/passwd": "etc_passwd",
		"__cyclists__":     "cyclists",
		"":                 "unknown",
		"???":              "unknown",
		"peds-2026.03_a":   "peds-2026.03_a",
	}
	for in, want := range tests {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}

	if got := SanitizeFilename(strings.Repeat("x", 300)); len(got) != maxNameLen {
		t.Errorf("long name sanitized to %d bytes, want %d", len(got), maxNameLen)
	}
}

func TestOutputPath(t *testing.T) {
	dir := t.TempDir()
	got, err := OutputPath(dir, "../pedestrians", ".png")
	if err != nil {
		t.Fatalf("OutputPath() error = %v", err)
	}
	if want := filepath.Join(dir, "pedestrians.png"); got != want {
		t.Errorf("OutputPath() = %q, want %q", got, want)
	}
}
