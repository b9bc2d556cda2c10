package haptic

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatchFixture struct {
	backend    *FakeBackend
	registry   *DeviceRegistry
	settings   *SettingsStore
	bridge     *EventBridge
	dispatcher *CommandDispatcher
}

func newDispatchFixture(t *testing.T, backend *FakeBackend) *dispatchFixture {
	t.Helper()
	bridge := NewEventBridge(64)
	registry := NewDeviceRegistry(bridge)
	settings := NewSettingsStore(filepath.Join(t.TempDir(), "settings.json"))

	f := &dispatchFixture{
		backend:    backend,
		registry:   registry,
		settings:   settings,
		bridge:     bridge,
		dispatcher: NewCommandDispatcher(backend, registry, settings, bridge, true),
	}

	// Run a scan to get the backend's devices connected
	scanner := NewScanController(backend, registry, bridge)
	require.NoError(t, scanner.StartScan(context.Background()))
	waitUntil(t, time.Second, func() bool { return scanner.State() == ScanIdle }, "scan finished")
	scanner.WaitConnects()
	bridge.Drain() // discard lifecycle events

	return f
}

func TestDispatcher_VibrateReachesAllEnabledVibrators(t *testing.T) {
	backend := NewFakeBackend().AddVibrator("vib1").AddVibrator("vib2").AddVibrator("vib3")
	f := newDispatchFixture(t, backend)
	f.settings.SetEnabled("vib2", false)

	ok := f.dispatcher.Vibrate(context.Background(), 0.8, 0)
	assert.True(t, ok)

	waitUntil(t, time.Second, func() bool { return backend.CallCount() == 2 }, "two sends")
	assert.Equal(t, []float64{0.8}, backend.CallsFor("vib1"))
	assert.Equal(t, []float64{0.8}, backend.CallsFor("vib3"))
	assert.Empty(t, backend.CallsFor("vib2"), "disabled device must not receive the command")
}

func TestDispatcher_VibrateSkipsNonVibrators(t *testing.T) {
	backend := NewFakeBackend().
		AddVibrator("vib1").
		AddDevice("lin1", Capability{Kind: ActuatorLinear, Min: 0, Max: 1})
	f := newDispatchFixture(t, backend)

	ok := f.dispatcher.Vibrate(context.Background(), 1.0, 0)
	assert.True(t, ok)

	waitUntil(t, time.Second, func() bool { return backend.CallCount() == 1 }, "one send")
	assert.Empty(t, backend.CallsFor("lin1"))
}

func TestDispatcher_VibrateEmptyTargetSetReturnsFalse(t *testing.T) {
	backend := NewFakeBackend().AddVibrator("vib1")
	f := newDispatchFixture(t, backend)
	f.settings.SetEnabled("vib1", false)

	assert.False(t, f.dispatcher.Vibrate(context.Background(), 0.5, 0))
	assert.Zero(t, backend.CallCount())
}

func TestDispatcher_TagFilterSelectsAssociatedDevices(t *testing.T) {
	backend := NewFakeBackend().AddVibrator("vib1").AddVibrator("vib2")
	f := newDispatchFixture(t, backend)
	f.settings.SetTags("vib1", []string{"tagA"})
	f.settings.SetTags("vib2", []string{"other"})

	ok := f.dispatcher.VibrateTags(context.Background(), 0.5, 0, []string{"tagA"})
	assert.True(t, ok)

	waitUntil(t, time.Second, func() bool { return backend.CallCount() == 1 }, "one send")
	assert.Equal(t, []float64{0.5}, backend.CallsFor("vib1"))
	assert.Empty(t, backend.CallsFor("vib2"), "connected+enabled device without matching tag is excluded")
}

func TestDispatcher_TagMatchingFoldsCaseAndWhitespace(t *testing.T) {
	backend := NewFakeBackend().AddVibrator("vib1")
	f := newDispatchFixture(t, backend)
	f.settings.SetTags("vib1", []string{"some event"})

	ok := f.dispatcher.VibrateTags(context.Background(), 1.0, 0, []string{"  SoMe EvEnT  "})
	assert.True(t, ok)
	waitUntil(t, time.Second, func() bool { return backend.CallCount() == 1 }, "one send")
}

func TestDispatcher_ExactTagMatching(t *testing.T) {
	backend := NewFakeBackend().AddVibrator("vib1")
	bridge := NewEventBridge(64)
	registry := NewDeviceRegistry(bridge)
	settings := NewSettingsStore(filepath.Join(t.TempDir(), "settings.json"))
	dispatcher := NewCommandDispatcher(backend, registry, settings, bridge, false)

	scanner := NewScanController(backend, registry, bridge)
	require.NoError(t, scanner.StartScan(context.Background()))
	waitUntil(t, time.Second, func() bool { return registry.IsConnected("vib1") }, "connected")

	settings.SetTags("vib1", []string{"TagA"})

	assert.False(t, dispatcher.VibrateTags(context.Background(), 0.5, 0, []string{"taga"}))
	assert.True(t, dispatcher.VibrateTags(context.Background(), 0.5, 0, []string{"TagA"}))
}

func TestDispatcher_EmptyTagSetBehavesLikeNoFilter(t *testing.T) {
	backend := NewFakeBackend().AddVibrator("vib1")
	f := newDispatchFixture(t, backend)

	ok := f.dispatcher.VibrateTags(context.Background(), 0.5, 0, nil)
	assert.True(t, ok)
	waitUntil(t, time.Second, func() bool { return backend.CallCount() == 1 }, "one send")
}

func TestDispatcher_StopAllBypassesEnabledAndTagFilters(t *testing.T) {
	backend := NewFakeBackend().AddVibrator("enabled").AddVibrator("disabled").AddVibrator("tagged")
	f := newDispatchFixture(t, backend)
	f.settings.SetEnabled("disabled", false)
	f.settings.SetTags("tagged", []string{"excluded"})

	assert.True(t, f.dispatcher.StopAll(context.Background()))

	waitUntil(t, time.Second, func() bool { return backend.CallCount() == 3 }, "all three devices stopped")
	for _, name := range []string{"enabled", "disabled", "tagged"} {
		assert.Equal(t, []float64{0}, backend.CallsFor(name), "device %s", name)
	}
}

func TestDispatcher_SendFailureDegradesToEvent(t *testing.T) {
	backend := NewFakeBackend().AddVibrator("good").AddVibrator("bad")
	f := newDispatchFixture(t, backend)
	backend.FailSend("bad", errors.New("device unreachable"))

	// Partial success still reports overall success
	ok := f.dispatcher.Vibrate(context.Background(), 0.5, 0)
	assert.True(t, ok)

	waitUntil(t, time.Second, func() bool {
		for _, e := range f.bridge.Drain() {
			if e.Type == EventDeviceError && e.Device == "bad" {
				return true
			}
		}
		return false
	}, "device_error event for the failed send")
	assert.Equal(t, []float64{0.5}, backend.CallsFor("good"))
}

func TestDispatcher_DurationArmsStopTimer(t *testing.T) {
	backend := NewFakeBackend().AddVibrator("vib1")
	f := newDispatchFixture(t, backend)

	ok := f.dispatcher.Vibrate(context.Background(), 1.0, 30*time.Millisecond)
	assert.True(t, ok)

	waitUntil(t, time.Second, func() bool { return backend.CallCount() == 2 }, "start then stop")
	assert.Equal(t, []float64{1.0, 0}, backend.CallsFor("vib1"))
}

func TestDispatcher_InvalidParametersRejectEntireCall(t *testing.T) {
	backend := NewFakeBackend().AddVibrator("vib1")
	f := newDispatchFixture(t, backend)

	assert.False(t, f.dispatcher.Vibrate(context.Background(), -1, 0))
	assert.False(t, f.dispatcher.Vibrate(context.Background(), 0.5, -time.Second))
	assert.Zero(t, backend.CallCount())
}
