package haptic

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

// Options は、エンジン構築時の設定を表す
type Options struct {
	SettingsFile string // デバイス設定の永続化先
	QueueSize    int    // イベントブリッジの容量（0 以下でデフォルト）
	FoldTags     bool   // タグ照合で大文字小文字を無視するかどうか
}

// Engine は、セッション全体を束ねるファサードです
// ホスト統合シムはこの構造体のメソッドを平坦なエントリポイントに写像する
//
// プロセス全体で共有されるグローバル状態は持たない。複数のエンジンを
// 別々のバックエンドに対して同時に動かせる（テストでの分離のため）
type Engine struct {
	backend    Backend
	registry   *DeviceRegistry
	bridge     *EventBridge
	settings   *SettingsStore
	scanner    *ScanController
	dispatcher *CommandDispatcher

	mu        sync.Mutex
	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewEngine は、バックエンドとオプションからエンジンを組み立てる
// 永続化済みのデバイス設定があれば読み込む（壊れていても起動は継続する）
func NewEngine(backend Backend, opts Options) *Engine {
	bridge := NewEventBridge(opts.QueueSize)
	registry := NewDeviceRegistry(bridge)
	settings := NewSettingsStore(opts.SettingsFile)
	if err := settings.Load(); err != nil {
		slog.Warn("failed to load device settings", "file", opts.SettingsFile, "err", err)
	}

	return &Engine{
		backend:    backend,
		registry:   registry,
		bridge:     bridge,
		settings:   settings,
		scanner:    NewScanController(backend, registry, bridge),
		dispatcher: NewCommandDispatcher(backend, registry, settings, bridge, opts.FoldTags),
	}
}

// Connect は、バックエンドセッションを確立する
// 既にセッションが有効な場合は AlreadyConnectedError、
// トランスポートに到達できない場合は BackendUnavailableError を返す
func (e *Engine) Connect() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.connected {
		return AlreadyConnectedError{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := e.backend.Connect(ctx); err != nil {
		cancel()
		return BackendUnavailableError{Err: err}
	}

	e.ctx = ctx
	e.cancel = cancel
	e.connected = true

	go e.relayNotifications(ctx)

	slog.Info("backend session established")
	return nil
}

// Close は、セッション全体を破棄する。接続していない状態で呼んでも安全
// 進行中のスキャンをキャンセルし、全デバイスをベストエフォートで切断する
// 切断時のエラーはイベントとして記録され、呼び出し側には返さない
func (e *Engine) Close() error {
	e.mu.Lock()
	if !e.connected {
		e.mu.Unlock()
		return nil
	}
	ctx := e.ctx
	cancel := e.cancel
	e.connected = false
	e.mu.Unlock()

	e.scanner.Close()

	for _, dev := range e.registry.Connected() {
		if err := e.backend.DisconnectDevice(ctx, dev.Name); err != nil {
			e.bridge.Publish(Event{Type: EventDeviceError, Device: dev.Name, Reason: err.Error()})
		}
		_ = e.registry.SetState(dev.Name, StateDisconnected, "")
	}

	if err := e.backend.Close(ctx); err != nil {
		slog.Warn("backend close reported error", "err", err)
	}
	cancel()

	slog.Info("backend session closed")
	return nil
}

// ScanForDevices は、非同期のデバイス探索を開始する
func (e *Engine) ScanForDevices() error {
	e.mu.Lock()
	if !e.connected {
		e.mu.Unlock()
		return BackendUnavailableError{Err: errors.New("no active session")}
	}
	ctx := e.ctx
	e.mu.Unlock()

	return e.scanner.StartScan(ctx)
}

// StopScan は、進行中のスキャンを協調的に停止する
func (e *Engine) StopScan() error {
	e.mu.Lock()
	ctx := e.ctx
	e.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	return e.scanner.StopScan(ctx)
}

// GetDevices は、既知の全デバイス名を返す
// レジストリのデバイスを挿入順で先に、設定ファイルにだけ存在する
// 名前をその後に並べる
func (e *Engine) GetDevices() []string {
	names := e.registry.Names()
	for _, name := range e.settings.KnownNames() {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	return names
}

// GetDeviceCapabilities は、デバイスの能力種別のリストを返す
// 未知のデバイス名に対してはエラーではなく空のリストを返す
func (e *Engine) GetDeviceCapabilities(name string) []string {
	caps, err := e.registry.Capabilities(name)
	if err != nil {
		return nil
	}
	return CapabilityKinds(caps)
}

// GetDeviceConnected は、デバイスが接続中かどうかを返す
// 未知のデバイス名に対しては false を返す
func (e *Engine) GetDeviceConnected(name string) bool {
	return e.registry.IsConnected(name)
}

// Vibrate は、接続中かつ有効な全振動デバイスに振動コマンドを送信する
func (e *Engine) Vibrate(speed float64, duration time.Duration) bool {
	ctx := e.sessionContext()
	if ctx == nil {
		return false
	}
	return e.dispatcher.Vibrate(ctx, speed, duration)
}

// VibrateEvents は、イベントタグに関連付けられたデバイスだけに
// 振動コマンドを送信する
func (e *Engine) VibrateEvents(speed float64, duration time.Duration, tags []string) bool {
	ctx := e.sessionContext()
	if ctx == nil {
		return false
	}
	return e.dispatcher.VibrateTags(ctx, speed, duration, tags)
}

// StopAll は、接続中の全デバイスを無条件に停止する
// 有効フラグやタグの設定に関わらず送信される安全のためのプリミティブ
func (e *Engine) StopAll() bool {
	ctx := e.sessionContext()
	if ctx == nil {
		return false
	}
	return e.dispatcher.StopAll(ctx)
}

// PollEvents は、前回のポーリング以降に発生したイベントを発生順で返す
// ブロックしない。新しいイベントがなければ空のリストを返す
func (e *Engine) PollEvents() []Event {
	return e.bridge.Drain()
}

// GetEnabled は、デバイスの有効フラグを返す（未知の名前は true）
func (e *Engine) GetEnabled(name string) bool {
	return e.settings.IsEnabled(name)
}

// SetEnabled は、デバイスの有効フラグをメモリ上で即時に変更する
// 永続化は StoreSettings を呼ぶまで行われない
func (e *Engine) SetEnabled(name string, enabled bool) {
	slog.Info("setting device enabled", "name", name, "enabled", enabled)
	e.settings.SetEnabled(name, enabled)
}

// GetTags は、デバイスに関連付けられたイベントタグを返す
func (e *Engine) GetTags(name string) []string {
	return e.settings.Tags(name)
}

// SetTags は、デバイスのイベントタグをメモリ上で即時に変更する
func (e *Engine) SetTags(name string, tags []string) {
	slog.Info("setting device tags", "name", name, "tags", tags)
	e.settings.SetTags(name, tags)
}

// StoreSettings は、デバイス設定を永続化する
func (e *Engine) StoreSettings() error {
	return e.settings.Store()
}

// relayNotifications は、バックエンド起点の通知をレジストリと
// ブリッジに中継する
func (e *Engine) relayNotifications(ctx context.Context) {
	ch := e.backend.Notifications()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			switch n.Type {
			case NotificationDeviceLost:
				if err := e.registry.SetState(n.Device, StateDisconnected, ""); err != nil {
					slog.Debug("notification for unknown device", "name", n.Device)
				}
			case NotificationError:
				reason := ""
				if n.Err != nil {
					reason = n.Err.Error()
				}
				e.bridge.Publish(Event{Type: EventDeviceError, Device: n.Device, Reason: reason})
			}
		}
	}
}

func (e *Engine) sessionContext() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.connected {
		return nil
	}
	return e.ctx
}
