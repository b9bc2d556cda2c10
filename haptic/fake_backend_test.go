package haptic

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// ScalarCall records a single SendScalar invocation on the fake backend
type ScalarCall struct {
	Name  string
	Kind  ActuatorKind
	Value float64
}

// FakeBackend is an in-memory Backend for tests. Scanning announces the
// configured devices; every call is recorded for assertions.
type FakeBackend struct {
	mu sync.Mutex

	devices    []string
	caps       map[string][]Capability
	connectErr map[string]error
	sendErr    map[string]error
	dialErr    error

	calls         []ScalarCall
	announcements chan Announcement
	notifications chan Notification

	// holdScan keeps the announcement stream open until StopScan or
	// FinishScan, letting tests observe the Scanning state.
	holdScan bool
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		caps:          make(map[string][]Capability),
		connectErr:    make(map[string]error),
		sendErr:       make(map[string]error),
		notifications: make(chan Notification, 16),
	}
}

// AddVibrator registers a device that scanning will discover, with a
// vibrate capability over [0,1].
func (f *FakeBackend) AddVibrator(name string) *FakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = append(f.devices, name)
	f.caps[name] = []Capability{{Kind: ActuatorVibrate, Min: 0, Max: 1}}
	return f
}

// AddDevice registers a device with an arbitrary capability set.
func (f *FakeBackend) AddDevice(name string, caps ...Capability) *FakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = append(f.devices, name)
	f.caps[name] = caps
	return f
}

func (f *FakeBackend) FailConnect(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr[name] = err
}

func (f *FakeBackend) FailSend(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr[name] = err
}

func (f *FakeBackend) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dialErr
}

func (f *FakeBackend) StartScan(ctx context.Context) (<-chan Announcement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan Announcement, len(f.devices)+1)
	for _, name := range f.devices {
		ch <- Announcement{Name: name}
	}
	if !f.holdScan {
		close(ch)
	}
	f.announcements = ch
	return ch, nil
}

func (f *FakeBackend) StopScan(ctx context.Context) error {
	f.FinishScan()
	return nil
}

// FinishScan closes a held-open announcement stream.
func (f *FakeBackend) FinishScan() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.holdScan && f.announcements != nil {
		close(f.announcements)
		f.announcements = nil
	}
}

func (f *FakeBackend) ConnectDevice(ctx context.Context, name string) ([]Capability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.connectErr[name]; err != nil {
		return nil, err
	}
	caps, ok := f.caps[name]
	if !ok {
		return nil, fmt.Errorf("unknown device %s", name)
	}
	return caps, nil
}

func (f *FakeBackend) SendScalar(ctx context.Context, name string, kind ActuatorKind, value float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.sendErr[name]; err != nil {
		return err
	}
	f.calls = append(f.calls, ScalarCall{Name: name, Kind: kind, Value: value})
	return nil
}

func (f *FakeBackend) DisconnectDevice(ctx context.Context, name string) error {
	return nil
}

func (f *FakeBackend) Notifications() <-chan Notification {
	return f.notifications
}

func (f *FakeBackend) Close(ctx context.Context) error {
	return nil
}

// CallsFor returns the recorded scalar values sent to the given device.
func (f *FakeBackend) CallsFor(name string) []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var values []float64
	for _, c := range f.calls {
		if c.Name == name {
			values = append(values, c.Value)
		}
	}
	return values
}

func (f *FakeBackend) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// waitUntil polls cond until it holds or the timeout elapses.
func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for: %s", msg)
}
