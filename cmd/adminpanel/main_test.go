package main

import (
	"context"
	"os"
	"testing"
)

func TestValidatePort(t *testing.T) {
	for _, port := range []int{0, -1, 70000} {
		if err := validatePort(port); err == nil {
			t.Fatalf("expected port %d to be rejected", port)
		}
	}
	if err := validatePort(8318); err != nil {
		t.Fatalf("expected 8318 to be accepted, got %v", err)
	}
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	// Equivalent of t.Chdir (Go 1.24+) for older toolchains.
	prevDir, errWd := os.Getwd()
	if errWd != nil {
		t.Fatalf("getwd: %v", errWd)
	}
	if errChdir := os.Chdir(t.TempDir()); errChdir != nil {
		t.Fatalf("chdir: %v", errChdir)
	}
	t.Cleanup(func() { _ = os.Chdir(prevDir) })
	if err := run(context.Background(), []string{"bogus"}); err == nil {
		t.Fatalf("expected unknown command to fail")
	}
}
