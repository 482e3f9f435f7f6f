package diskspace

import (
	"fmt"
	"path/filepath"
	"testing"
)

func TestCheckAvailableSpace(t *testing.T) {
	target := filepath.Join(t.TempDir(), "download.bin")

	t.Run("SmallFile", func(t *testing.T) {
		if err := CheckAvailableSpace(target, 1024, DefaultSafetyMargin); err != nil {
			t.Errorf("Expected no error for small file, got: %v", err)
		}
	})

	t.Run("VeryLargeFile", func(t *testing.T) {
		// 100 PB should exceed any test machine.
		err := CheckAvailableSpace(target, 100<<50, DefaultSafetyMargin)
		if err == nil {
			t.Skip("filesystem reports no free space information")
		}
		if !IsInsufficientSpaceError(err) {
			t.Errorf("Expected InsufficientSpaceError, got: %T", err)
		}
	})

	t.Run("Wrapped", func(t *testing.T) {
		err := fmt.Errorf("save failed: %w", &InsufficientSpaceError{Path: target})
		if !IsInsufficientSpaceError(err) {
			t.Error("wrapped error should be detected")
		}
	})
}

func TestGetAvailableSpace(t *testing.T) {
	if GetAvailableSpace(filepath.Join(t.TempDir(), "x")) <= 0 {
		t.Skip("could not determine available space")
	}
	if GetAvailableSpace("/definitely/not/a/real/dir/file") != 0 {
		t.Error("expected 0 for a missing directory")
	}
}

func TestInsufficientSpaceErrorMessage(t *testing.T) {
	err := &InsufficientSpaceError{Path: "/tmp/a", RequiredBytes: 2 << 20, AvailableBytes: 1 << 20}
	want := "insufficient disk space for /tmp/a: need 2.00 MB, have 1.00 MB available"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
