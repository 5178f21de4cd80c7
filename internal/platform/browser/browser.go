// Package browser opens URLs in the local default browser.
package browser

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"
)

// Open launches the platform browser command for url. It does not wait
// for the browser to exit.
func Open(url string) error {
	name, args := command(runtime.GOOS, url)
	if name == "" {
		return fmt.Errorf("open browser: unsupported platform %s", runtime.GOOS)
	}
	if err := exec.Command(name, args...).Start(); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	return nil
}

// OpenAfter waits for delay, then opens url. It returns early if ctx is
// cancelled while waiting. Used by the server launcher to point the browser
// at the UI once listening has begun.
func OpenAfter(ctx context.Context, delay time.Duration, url string) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	return Open(url)
}

func command(goos, url string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{url}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	case "linux":
		return "xdg-open", []string{url}
	}
	return "", nil
}
