// Package launcher starts a browser with remote debugging enabled and
// detaches it, so the controller process can exit and reconnect later.
package launcher

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"go.uber.org/zap"

	"orcabridge/pkg/cdp"
)

// Options describes the browser to launch.
type Options struct {
	// Binary overrides browser discovery with an explicit executable.
	Binary string

	// Port is the remote debugging port. Zero means 9222.
	Port int

	// UserDataDir holds the browser profile. Empty means a directory
	// under the user cache dir, so sessions survive relaunches.
	UserDataDir string

	// URL is opened in the initial tab, when set.
	URL string

	// ReadyTimeout bounds the wait for the debugging endpoint to come
	// up. Zero means 20 seconds.
	ReadyTimeout time.Duration
}

func (o Options) port() int {
	if o.Port <= 0 {
		return 9222
	}
	return o.Port
}

func (o Options) endpoint() string {
	return fmt.Sprintf("http://127.0.0.1:%d", o.port())
}

// candidates lists browser executables in preference order. Chromium
// derivatives all speak the same debugging protocol, so the first one
// found wins.
func candidates() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	default:
		return []string{
			"microsoft-edge",
			"microsoft-edge-stable",
			"google-chrome",
			"google-chrome-stable",
			"chromium",
			"chromium-browser",
		}
	}
}

// FindBinary locates a usable browser executable.
func FindBinary() (string, error) {
	for _, name := range candidates() {
		if filepath.IsAbs(name) {
			if _, err := os.Stat(name); err == nil {
				return name, nil
			}
			continue
		}
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no chromium-based browser found in PATH")
}

func defaultUserDataDir(port int) (string, error) {
	cache, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cache, "orcabridge", "profile-"+strconv.Itoa(port)), nil
}

// Running reports whether a debugging endpoint is already listening on
// the configured port.
func Running(ctx context.Context, opts Options) bool {
	client := cdp.New(cdp.Options{BaseURL: opts.endpoint(), Timeout: 2 * time.Second})
	_, err := client.Version(ctx)
	return err == nil
}

// Launch starts the browser detached and waits for the debugging
// endpoint to accept connections. If an endpoint is already up on the
// port, the running browser is reused.
func Launch(ctx context.Context, opts Options, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if Running(ctx, opts) {
		log.Info("browser already running", zap.String("endpoint", opts.endpoint()))
		return nil
	}

	binary := opts.Binary
	if binary == "" {
		var err error
		binary, err = FindBinary()
		if err != nil {
			return err
		}
	}

	dataDir := opts.UserDataDir
	if dataDir == "" {
		var err error
		dataDir, err = defaultUserDataDir(opts.port())
		if err != nil {
			return fmt.Errorf("resolve profile dir: %w", err)
		}
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}

	args := []string{
		"--remote-debugging-port=" + strconv.Itoa(opts.port()),
		"--remote-allow-origins=*",
		"--user-data-dir=" + dataDir,
		"--no-first-run",
		"--no-default-browser-check",
	}
	if opts.URL != "" {
		if _, err := url.Parse(opts.URL); err != nil {
			return fmt.Errorf("invalid start url: %w", err)
		}
		args = append(args, opts.URL)
	}

	cmd := exec.Command(binary, args...)
	detach(cmd)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	log.Info("browser started",
		zap.String("binary", binary),
		zap.Int("pid", cmd.Process.Pid),
		zap.Int("port", opts.port()))

	// The child outlives us; releasing avoids a zombie if we do not.
	if err := cmd.Process.Release(); err != nil {
		log.Warn("release browser process", zap.Error(err))
	}

	return WaitReady(ctx, opts)
}

// WaitReady polls the debugging endpoint until it answers or the ready
// timeout elapses.
func WaitReady(ctx context.Context, opts Options) error {
	timeout := opts.ReadyTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	client := cdp.New(cdp.Options{BaseURL: opts.endpoint(), Timeout: 2 * time.Second})

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := client.Version(ctx); err == nil {
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("debugging endpoint %s not ready after %s", opts.endpoint(), timeout)
}
