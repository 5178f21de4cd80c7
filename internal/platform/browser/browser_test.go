package browser

import (
	"context"
	"testing"
	"time"
)

func TestCommandPerPlatform(t *testing.T) {
	tests := []struct {
		goos string
		name string
	}{
		{goos: "darwin", name: "open"},
		{goos: "linux", name: "xdg-open"},
		{goos: "windows", name: "rundll32"},
	}
	for _, tc := range tests {
		name, args := command(tc.goos, "http://127.0.0.1:8000")
		if name != tc.name {
			t.Fatalf("%s: expected command %q, got %q", tc.goos, tc.name, name)
		}
		if len(args) == 0 {
			t.Fatalf("%s: expected command arguments", tc.goos)
		}
	}
}

func TestCommandUnknownPlatform(t *testing.T) {
	name, _ := command("plan9", "http://127.0.0.1:8000")
	if name != "" {
		t.Fatalf("expected empty command, got %q", name)
	}
}

func TestOpenAfterCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := OpenAfter(ctx, time.Hour, "http://127.0.0.1:8000")
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
