package adb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single adb invocation.
const DefaultTimeout = 5 * time.Second

// Result is the captured outcome of one adb invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

func (r Result) String() string {
	return fmt.Sprintf("rc=%d stdout=%q stderr=%q", r.ExitCode, strings.TrimSpace(r.Stdout), strings.TrimSpace(r.Stderr))
}

// Runner executes a command. A non-zero exit is reported in Result, not as an
// error; errors mean the command could not run or timed out.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// waitDelay bounds how long Run waits for the output pipes after the
// context kills the process. Children of adb can hold them open.
const waitDelay = time.Second

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	var stdout, stderr bytes.Buffer
	// #nosec G204 - name is the adb binary and args are built by this package
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if ctx.Err() != nil {
		return res, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return res, nil
}

// LookPath resolves the adb binary, returning ErrNotFound when it is missing.
func LookPath(binary string) (string, error) {
	if binary == "" {
		binary = DefaultBinary
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, binary)
	}
	return path, nil
}

// RealBridge implements Bridge by invoking the adb binary.
type RealBridge struct {
	binary  string
	runner  Runner
	timeout time.Duration
}

// Option configures a RealBridge.
type Option func(*RealBridge)

// WithRunner replaces the command runner, mainly for tests.
func WithRunner(r Runner) Option {
	return func(b *RealBridge) { b.runner = r }
}

// WithTimeout sets the per-invocation timeout.
func WithTimeout(d time.Duration) Option {
	return func(b *RealBridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// NewRealBridge creates a bridge that runs binary (usually the path from LookPath).
func NewRealBridge(binary string, opts ...Option) *RealBridge {
	if binary == "" {
		binary = DefaultBinary
	}
	b := &RealBridge{binary: binary, runner: ExecRunner{}, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *RealBridge) run(ctx context.Context, args ...string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.runner.Run(ctx, b.binary, args...)
}

func (b *RealBridge) shell(ctx context.Context, serial string, args ...string) (Result, error) {
	return b.run(ctx, append([]string{"-s", serial, "shell"}, args...)...)
}

// Connect checks the device state and runs "adb connect" when adb does not
// already know about it. "offline" and "unknown" count as reachable; a later
// shell command reports the real problem.
func (b *RealBridge) Connect(ctx context.Context, serial string) error {
	res, err := b.run(ctx, "-s", serial, "get-state")
	if err != nil {
		return err
	}
	if res.ExitCode == 0 {
		switch strings.TrimSpace(res.Stdout) {
		case "device", "unknown", "offline":
			return nil
		}
	}

	res, err = b.run(ctx, "connect", serial)
	if err != nil {
		return err
	}
	if strings.Contains(strings.ToLower(res.Stdout+res.Stderr), "connected") {
		return nil
	}
	if IsUnauthorized(res) {
		return fmt.Errorf("connect %s: %w", serial, ErrUnauthorized)
	}
	return fmt.Errorf("connect %s failed: %s", serial, res)
}

// ForegroundPackage reads the focused window, falling back to the resumed
// activity. It returns "" with a nil error when neither dump names a package.
func (b *RealBridge) ForegroundPackage(ctx context.Context, serial string) (string, error) {
	res, err := b.shell(ctx, serial, "dumpsys", "window", "windows")
	if err != nil {
		return "", err
	}
	if IsUnauthorized(res) {
		return "", fmt.Errorf("dumpsys window on %s: %w", serial, ErrUnauthorized)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("dumpsys window on %s failed: %s", serial, res)
	}
	if pkg, ok := ParseFocusedPackage(res.Stdout); ok {
		return pkg, nil
	}

	res, err = b.shell(ctx, serial, "dumpsys", "activity", "activities")
	if err != nil {
		return "", err
	}
	if IsUnauthorized(res) {
		return "", fmt.Errorf("dumpsys activity on %s: %w", serial, ErrUnauthorized)
	}
	if res.ExitCode != 0 {
		return "", nil
	}
	pkg, _ := ParseResumedPackage(res.Stdout)
	return pkg, nil
}

// MediaPlaying implements Bridge.
func (b *RealBridge) MediaPlaying(ctx context.Context, serial string) (bool, error) {
	res, err := b.shell(ctx, serial, "dumpsys", "media_session")
	if err != nil {
		return false, err
	}
	if IsUnauthorized(res) {
		return false, fmt.Errorf("dumpsys media_session on %s: %w", serial, ErrUnauthorized)
	}
	if res.ExitCode != 0 {
		return false, fmt.Errorf("dumpsys media_session on %s failed: %s", serial, res)
	}
	return ParseMediaPlaying(res.Stdout), nil
}

// Launch starts an explicit activity with "am start -n" when component has a
// slash, otherwise fires the package's launcher intent through monkey.
func (b *RealBridge) Launch(ctx context.Context, serial, component string) error {
	var args []string
	if strings.Contains(component, "/") {
		args = []string{"am", "start", "-n", component}
	} else {
		args = []string{"monkey", "-p", component, "-c", "android.intent.category.LAUNCHER", "1"}
	}

	res, err := b.shell(ctx, serial, args...)
	if err != nil {
		return err
	}
	if IsUnauthorized(res) {
		return fmt.Errorf("launch %s on %s: %w", component, serial, ErrUnauthorized)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("launch %s on %s failed: %s", component, serial, res)
	}
	return nil
}

// ListPackages implements Bridge.
func (b *RealBridge) ListPackages(ctx context.Context, serial string) ([]string, error) {
	res, err := b.shell(ctx, serial, "pm", "list", "packages")
	if err != nil {
		return nil, err
	}
	if IsUnauthorized(res) {
		return nil, fmt.Errorf("pm list packages on %s: %w", serial, ErrUnauthorized)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("pm list packages on %s failed: %s", serial, res)
	}
	return ParsePackageList(res.Stdout), nil
}
