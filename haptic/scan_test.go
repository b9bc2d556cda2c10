package haptic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScanner(backend *FakeBackend) (*ScanController, *DeviceRegistry, *EventBridge) {
	bridge := NewEventBridge(64)
	registry := NewDeviceRegistry(bridge)
	return NewScanController(backend, registry, bridge), registry, bridge
}

func TestScanController_ScanPopulatesRegistry(t *testing.T) {
	backend := NewFakeBackend().AddVibrator("vib1").AddVibrator("vib2")
	scanner, registry, _ := newTestScanner(backend)

	require.NoError(t, scanner.StartScan(context.Background()))

	waitUntil(t, time.Second, func() bool {
		return registry.IsConnected("vib1") && registry.IsConnected("vib2")
	}, "both devices connected")

	assert.Equal(t, []string{"vib1", "vib2"}, registry.Names())
	assert.Equal(t, ScanIdle, scanner.State())
}

func TestScanController_ScanEmitsLifecycleEvents(t *testing.T) {
	backend := NewFakeBackend().AddVibrator("vib1")
	scanner, registry, bridge := newTestScanner(backend)

	require.NoError(t, scanner.StartScan(context.Background()))
	waitUntil(t, time.Second, func() bool {
		return registry.IsConnected("vib1") && scanner.State() == ScanIdle
	}, "scan completed")
	scanner.WaitConnects()

	var types []EventType
	for _, e := range bridge.Drain() {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, EventDeviceDiscovered)
	assert.Contains(t, types, EventDeviceConnected)
	assert.Contains(t, types, EventScanFinished)
}

func TestScanController_StartWhileScanningFails(t *testing.T) {
	backend := NewFakeBackend().AddVibrator("vib1")
	backend.holdScan = true
	scanner, registry, _ := newTestScanner(backend)

	require.NoError(t, scanner.StartScan(context.Background()))
	waitUntil(t, time.Second, func() bool {
		return len(registry.Names()) == 1
	}, "discovery delivered")
	namesBefore := registry.Names()

	err := scanner.StartScan(context.Background())
	var already AlreadyScanningError
	assert.True(t, errors.As(err, &already))

	// Registry state is unchanged by the failed call
	assert.Equal(t, namesBefore, registry.Names())

	require.NoError(t, scanner.StopScan(context.Background()))
	assert.Equal(t, ScanIdle, scanner.State())
}

func TestScanController_StopWhileIdleFails(t *testing.T) {
	backend := NewFakeBackend()
	scanner, _, _ := newTestScanner(backend)

	err := scanner.StopScan(context.Background())
	var notScanning NotScanningError
	assert.True(t, errors.As(err, &notScanning))
}

func TestScanController_FailedConnectProducesFailedStateAndEvent(t *testing.T) {
	backend := NewFakeBackend().AddVibrator("vib1").AddVibrator("broken")
	backend.FailConnect("broken", errors.New("connect timeout"))
	scanner, registry, bridge := newTestScanner(backend)

	require.NoError(t, scanner.StartScan(context.Background()))
	waitUntil(t, time.Second, func() bool {
		if d, ok := registry.Get("broken"); ok {
			return d.State == StateFailed
		}
		return false
	}, "broken device marked failed")
	scanner.WaitConnects()

	assert.True(t, registry.IsConnected("vib1"))
	assert.False(t, registry.IsConnected("broken"))

	found := false
	for _, e := range bridge.Drain() {
		if e.Type == EventDeviceError && e.Device == "broken" {
			found = true
			assert.Equal(t, "connect timeout", e.Reason)
		}
	}
	assert.True(t, found, "expected a device_error event for the failed connect")
}

func TestScanController_CloseCancelsScan(t *testing.T) {
	backend := NewFakeBackend().AddVibrator("vib1")
	backend.holdScan = true
	scanner, _, _ := newTestScanner(backend)

	require.NoError(t, scanner.StartScan(context.Background()))
	scanner.Close()

	assert.Equal(t, ScanIdle, scanner.State())

	// Close again is a no-op
	scanner.Close()
}

func TestScanController_RescanAfterFinish(t *testing.T) {
	backend := NewFakeBackend().AddVibrator("vib1")
	scanner, registry, _ := newTestScanner(backend)

	require.NoError(t, scanner.StartScan(context.Background()))
	waitUntil(t, time.Second, func() bool { return scanner.State() == ScanIdle }, "first scan done")

	// A second scan may start once the first finished
	require.NoError(t, scanner.StartScan(context.Background()))
	waitUntil(t, time.Second, func() bool { return scanner.State() == ScanIdle }, "second scan done")

	assert.Equal(t, []string{"vib1"}, registry.Names())
}
