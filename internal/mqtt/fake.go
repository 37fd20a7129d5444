package mqtt

import (
	"sync"

	"github.com/sweeney/firestick-minder/internal/status"
)

// FakePublisher records published snapshots for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// States contains every snapshot that was published.
	States []status.DeviceSnapshot

	// Topics and Payloads line up with States.
	Topics   []string
	Payloads [][]byte

	// Prefix is used to build topics. Defaults to "home/firestick".
	Prefix string

	// PublishError, if set, will be returned by PublishState.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Prefix: "home/firestick"}
}

// PublishState records the snapshot.
func (f *FakePublisher) PublishState(d status.DeviceSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatState(d)
	if err != nil {
		return err
	}
	f.States = append(f.States, d)
	f.Topics = append(f.Topics, StateTopic(f.Prefix, d.Name))
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Published returns a copy of the recorded snapshots.
func (f *FakePublisher) Published() []status.DeviceSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]status.DeviceSnapshot(nil), f.States...)
}

// Reset clears recorded snapshots and scripted errors.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.States = nil
	f.Topics = nil
	f.Payloads = nil
	f.Closed = false
	f.PublishError = nil
	f.Connected = false
}
