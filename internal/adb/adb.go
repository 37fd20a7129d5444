// Package adb talks to Fire TV devices through the adb command-line tool.
// The real implementation shells out to adb; the fake implementation allows
// testing without a device.
package adb

import (
	"context"
	"errors"
)

// DefaultBinary is the adb executable looked up on PATH.
const DefaultBinary = "adb"

var (
	// ErrUnauthorized means adb reported the device as unauthorized. Someone
	// has to accept the "Allow USB debugging" prompt on the TV.
	ErrUnauthorized = errors.New("adb: device unauthorized")

	// ErrNotFound means the adb binary is not on PATH.
	ErrNotFound = errors.New("adb: binary not found on PATH")
)

// UnauthorizedHint is logged alongside ErrUnauthorized.
const UnauthorizedHint = "check the TV for an 'Allow USB debugging' prompt and accept it " +
	"(preferably with 'Always allow from this computer' checked)"

// Bridge is the narrow set of device operations the daemon needs.
// serial is the adb target, "host:port".
type Bridge interface {
	// Connect makes sure adb can reach the device, running "adb connect" if needed.
	Connect(ctx context.Context, serial string) error

	// ForegroundPackage returns the package that has focus, or "" when it
	// could not be determined.
	ForegroundPackage(ctx context.Context, serial string) (string, error)

	// MediaPlaying reports whether any media session is in the PLAYING state.
	MediaPlaying(ctx context.Context, serial string) (bool, error)

	// Launch starts component ("pkg/.Activity") or a bare package's launcher activity.
	Launch(ctx context.Context, serial, component string) error

	// ListPackages returns installed package names, sorted.
	ListPackages(ctx context.Context, serial string) ([]string, error)
}
