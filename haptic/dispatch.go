package haptic

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/exp/slices"
)

// CommandDispatcher は、高レベルのコマンドをデバイスごとのプロトコル
// メッセージに変換して送信する
//
// 送信は呼び出し側から見て fire-and-forget であり、呼び出しスレッドが
// デバイスとのネットワーク往復でブロックすることはない。デバイスごとの
// 失敗は DeviceError イベントとして現れ、バッチ全体を中断しない
type CommandDispatcher struct {
	backend  Backend
	registry *DeviceRegistry
	settings *SettingsStore
	bridge   *EventBridge
	foldTags bool // タグ照合で大文字小文字を無視するかどうか
}

// NewCommandDispatcher は、CommandDispatcherを作成する
// foldTags が true の場合、イベントタグは前後の空白を除去し
// 大文字小文字を無視して照合される
func NewCommandDispatcher(backend Backend, registry *DeviceRegistry, settings *SettingsStore, bridge *EventBridge, foldTags bool) *CommandDispatcher {
	return &CommandDispatcher{
		backend:  backend,
		registry: registry,
		settings: settings,
		bridge:   bridge,
		foldTags: foldTags,
	}
}

// Vibrate は、接続中かつ有効な全振動デバイスに振動コマンドを送信する
// 少なくとも1台がコマンドを受理した場合にのみ true を返す
// 対象が空、または全滅した場合は false を返す（エラーではない）
func (d *CommandDispatcher) Vibrate(ctx context.Context, speed float64, duration time.Duration) bool {
	return d.dispatch(ctx, speed, duration, nil)
}

// VibrateTags は、タグフィルタに一致するデバイスだけに振動コマンドを送信する
// タグ集合が空の場合はフィルタなしと同じ扱いになる
func (d *CommandDispatcher) VibrateTags(ctx context.Context, speed float64, duration time.Duration, tags []string) bool {
	return d.dispatch(ctx, speed, duration, tags)
}

// StopAll は、接続中の全デバイスに速度ゼロのコマンドを送信する
// 緊急停止のためのプリミティブであり、有効フラグやタグでは絞り込めない
func (d *CommandDispatcher) StopAll(ctx context.Context) bool {
	slog.Info("dispatching stop to all connected devices")
	for _, dev := range d.registry.Connected() {
		name := dev.Name
		go d.send(ctx, name, 0, 0)
	}
	return true
}

func (d *CommandDispatcher) dispatch(ctx context.Context, speed float64, duration time.Duration, tags []string) bool {
	targets := d.resolve(tags)
	if len(targets) == 0 {
		slog.Debug("vibrate resolved no devices", "tags", tags)
		return false
	}

	accepted := 0
	for _, dev := range targets {
		clamped, err := ValidateScalar(&dev, ActuatorVibrate, speed, duration)
		if err != nil {
			slog.Warn("command rejected", "device", dev.Name, "err", err)
			continue
		}
		accepted++
		name := dev.Name
		go d.send(ctx, name, clamped, duration)
	}

	slog.Info("dispatched vibrate", "speed", speed, "duration", durationString(duration), "devices", accepted)
	return accepted > 0
}

// resolve は、コマンドの対象デバイス集合を決定する
// 接続中・有効・振動能力あり、かつタグフィルタがあれば設定上のタグが
// フィルタと少なくとも1つ交差するデバイスに絞られる
func (d *CommandDispatcher) resolve(tags []string) []Device {
	filter := d.sanitize(tags)

	var targets []Device
	for _, dev := range d.registry.Connected() {
		if !dev.HasCapability(ActuatorVibrate) {
			continue
		}
		if !d.settings.IsEnabled(dev.Name) {
			continue
		}
		if len(filter) > 0 && !d.matchesAny(dev.Name, filter) {
			continue
		}
		targets = append(targets, dev)
	}
	return targets
}

// send は、1デバイス分の送信を行う。失敗は DeviceError イベントになる
// duration が正の場合は、経過後に速度ゼロのコマンドを送るタイマーを仕掛ける
func (d *CommandDispatcher) send(ctx context.Context, name string, value float64, duration time.Duration) {
	if err := d.backend.SendScalar(ctx, name, ActuatorVibrate, value); err != nil {
		d.bridge.Publish(Event{Type: EventDeviceError, Device: name, Reason: err.Error()})
		return
	}

	if duration > 0 {
		time.AfterFunc(duration, func() {
			if ctx.Err() != nil || !d.registry.IsConnected(name) {
				return
			}
			if err := d.backend.SendScalar(ctx, name, ActuatorVibrate, 0); err != nil {
				d.bridge.Publish(Event{Type: EventDeviceError, Device: name, Reason: err.Error()})
			}
		})
	}
}

// matchesAny は、デバイスの設定タグがフィルタと交差するかどうかを返す
func (d *CommandDispatcher) matchesAny(name string, filter []string) bool {
	for _, tag := range d.settings.Tags(name) {
		tag = strings.TrimSpace(tag)
		if slices.ContainsFunc(filter, func(f string) bool {
			if d.foldTags {
				return strings.EqualFold(f, tag)
			}
			return f == tag
		}) {
			return true
		}
	}
	return false
}

// durationString は duration 0 を「停止されるまで」として表示するためのヘルパー
func durationString(d time.Duration) string {
	if d == 0 {
		return "until stopped"
	}
	return d.String()
}

// sanitize は、フィルタのタグから前後の空白を除去し、空のタグを捨てる
func (d *CommandDispatcher) sanitize(tags []string) []string {
	cleaned := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" {
			cleaned = append(cleaned, t)
		}
	}
	return cleaned
}
