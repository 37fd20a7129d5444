package adb

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// FakeDevice is the scripted state of one device behind a FakeBridge.
type FakeDevice struct {
	Foreground   string
	MediaPlaying bool
	Packages     []string

	ConnectError    error
	ForegroundError error
	MediaError      error
	LaunchError     error
	PackagesError   error

	// LaunchSetsForeground makes a successful Launch move Foreground to the
	// launched package.
	LaunchSetsForeground bool
}

// Launch records one Launch call.
type Launch struct {
	Serial    string
	Component string
}

// FakeBridge is a test double that serves scripted device state.
// Unknown serials fail every call.
type FakeBridge struct {
	mu       sync.Mutex
	Devices  map[string]*FakeDevice
	Launches []Launch
	Calls    []string
}

// NewFakeBridge creates an empty FakeBridge.
func NewFakeBridge() *FakeBridge {
	return &FakeBridge{Devices: make(map[string]*FakeDevice)}
}

// Set registers or replaces a device and returns it for further scripting.
func (f *FakeBridge) Set(serial string, d *FakeDevice) *FakeDevice {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Devices[serial] = d
	return d
}

// Update mutates a device's script under the bridge lock.
func (f *FakeBridge) Update(serial string, fn func(d *FakeDevice)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d := f.Devices[serial]; d != nil {
		fn(d)
	}
}

// LaunchCount returns how many launches were recorded for serial.
func (f *FakeBridge) LaunchCount(serial string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, l := range f.Launches {
		if l.Serial == serial {
			n++
		}
	}
	return n
}

// CallCount returns how many bridge calls were made.
func (f *FakeBridge) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

func (f *FakeBridge) device(op, serial string) (*FakeDevice, error) {
	f.Calls = append(f.Calls, op+" "+serial)
	d, ok := f.Devices[serial]
	if !ok {
		return nil, errors.New("fake adb: unknown device " + serial)
	}
	return d, nil
}

// Connect implements Bridge.
func (f *FakeBridge) Connect(ctx context.Context, serial string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, err := f.device("connect", serial)
	if err != nil {
		return err
	}
	return d.ConnectError
}

// ForegroundPackage implements Bridge.
func (f *FakeBridge) ForegroundPackage(ctx context.Context, serial string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, err := f.device("foreground", serial)
	if err != nil {
		return "", err
	}
	if d.ForegroundError != nil {
		return "", d.ForegroundError
	}
	return d.Foreground, nil
}

// MediaPlaying implements Bridge.
func (f *FakeBridge) MediaPlaying(ctx context.Context, serial string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, err := f.device("media", serial)
	if err != nil {
		return false, err
	}
	if d.MediaError != nil {
		return false, d.MediaError
	}
	return d.MediaPlaying, nil
}

// Launch implements Bridge.
func (f *FakeBridge) Launch(ctx context.Context, serial, component string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, err := f.device("launch", serial)
	if err != nil {
		return err
	}
	if d.LaunchError != nil {
		return d.LaunchError
	}
	f.Launches = append(f.Launches, Launch{Serial: serial, Component: component})
	if d.LaunchSetsForeground {
		d.Foreground = packageOf(component)
	}
	return nil
}

// ListPackages implements Bridge.
func (f *FakeBridge) ListPackages(ctx context.Context, serial string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, err := f.device("packages", serial)
	if err != nil {
		return nil, err
	}
	if d.PackagesError != nil {
		return nil, d.PackagesError
	}
	out := append([]string(nil), d.Packages...)
	sort.Strings(out)
	return out, nil
}

func packageOf(component string) string {
	pkg, _, _ := strings.Cut(component, "/")
	return pkg
}
