package haptic

import (
	"context"
	"log/slog"
	"sync"
)

// ScanState は、スキャンコントローラの状態を表す
type ScanState int

const (
	ScanIdle ScanState = iota
	ScanScanning
)

// ScanController は、バックエンドに対するデバイス探索の状態機械です
// 発見されたデバイスをレジストリに登録し、デバイスごとに独立した
// ゴルーチンで接続を試みる
type ScanController struct {
	backend  Backend
	registry *DeviceRegistry
	bridge   *EventBridge

	mu     sync.Mutex
	state  ScanState
	cancel context.CancelFunc
	done   chan struct{}

	connectWG sync.WaitGroup
}

// NewScanController は、ScanControllerを作成する
func NewScanController(backend Backend, registry *DeviceRegistry, bridge *EventBridge) *ScanController {
	return &ScanController{
		backend:  backend,
		registry: registry,
		bridge:   bridge,
	}
}

// State は、現在のスキャン状態を返す
func (c *ScanController) State() ScanState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StartScan は、非同期のデバイス探索を開始する
// 既にスキャン中の場合は AlreadyScanningError を返し、状態は変化しない
//
// ctx はセッションのコンテキスト。探索ループはそこから派生した
// コンテキストで動き、StopScan で個別にキャンセルできる。個々の
// デバイス接続試行はセッションのコンテキストで動き、スキャン停止後も
// 独立して完了または失敗する
func (c *ScanController) StartScan(ctx context.Context) error {
	c.mu.Lock()
	if c.state != ScanIdle {
		c.mu.Unlock()
		return AlreadyScanningError{}
	}

	scanCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.state = ScanScanning
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	announcements, err := c.backend.StartScan(scanCtx)
	if err != nil {
		// Scanning → Failed(reason) → Idle
		c.bridge.Publish(Event{Type: EventDeviceError, Reason: err.Error()})
		cancel()
		close(done)
		c.setIdle()
		return err
	}

	go c.runScan(ctx, scanCtx, announcements, done)
	return nil
}

// StopScan は、進行中のスキャンの協調的なキャンセルを要求し、
// 探索ループの終了を確認してから戻る
// スキャン中でない場合は NotScanningError を返す
func (c *ScanController) StopScan(ctx context.Context) error {
	c.mu.Lock()
	if c.state != ScanScanning {
		c.mu.Unlock()
		return NotScanningError{}
	}
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	cancel()
	if err := c.backend.StopScan(ctx); err != nil {
		slog.Warn("failed to stop backend scan", "err", err)
	}
	<-done
	return nil
}

// Close は、進行中のスキャンを強制的にキャンセルする。冪等
func (c *ScanController) Close() {
	c.mu.Lock()
	if c.state != ScanScanning {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	cancel()
	<-done
}

// runScan は、発見ストリームを消費してレジストリに流し込む
func (c *ScanController) runScan(sessionCtx, scanCtx context.Context, announcements <-chan Announcement, done chan struct{}) {
	defer close(done)
	defer c.setIdle()

	for {
		select {
		case <-scanCtx.Done():
			c.bridge.Publish(Event{Type: EventScanFinished})
			return
		case ann, ok := <-announcements:
			if !ok {
				c.bridge.Publish(Event{Type: EventScanFinished})
				return
			}
			slog.Debug("device discovered", "name", ann.Name)
			c.registry.Upsert(Device{Name: ann.Name, State: StateDiscovered})

			c.connectWG.Add(1)
			go c.connectDevice(sessionCtx, ann.Name)
		}
	}
}

// connectDevice は、1デバイス分の接続試行を行う
// 成否は関数の戻り値ではなくレジストリの状態遷移イベントとして現れる
func (c *ScanController) connectDevice(ctx context.Context, name string) {
	defer c.connectWG.Done()

	caps, err := c.backend.ConnectDevice(ctx, name)
	if err != nil {
		slog.Warn("device connection failed", "name", name, "err", err)
		_ = c.registry.SetState(name, StateFailed, err.Error())
		return
	}

	if err := c.registry.SetCapabilities(name, caps); err != nil {
		// スキャン中に Remove された場合のみ起こりうる
		slog.Warn("connected device vanished from registry", "name", name)
		return
	}
	_ = c.registry.SetState(name, StateConnected, "")
}

// WaitConnects は、進行中の全デバイス接続試行の完了を待つ（テスト用）
func (c *ScanController) WaitConnects() {
	c.connectWG.Wait()
}

func (c *ScanController) setIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = ScanIdle
	c.cancel = nil
	c.done = nil
}
