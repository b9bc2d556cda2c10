package haptic

import (
	"time"
)

// DeviceState は、デバイスの接続状態を表す
type DeviceState int

const (
	StateDiscovered DeviceState = iota // スキャンで発見済み、未接続
	StateConnected                     // 接続済み、コマンド送信可能
	StateDisconnected                  // 切断済み
	StateFailed                        // 接続試行が失敗
)

// String returns the wire/log representation of the state
func (s DeviceState) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Device は、レジストリが管理するデバイスの状態を表す
// Name が一意なキーとなる。他のコンポーネントは名前で参照する
type Device struct {
	Name         string       // 安定した識別子（バックエンドが報告する名前）
	State        DeviceState  // 接続状態
	Capabilities []Capability // 接続時にバックエンドから供給される。以後不変
	LastSeen     time.Time    // 最後に状態が更新された時刻
}

// HasCapability は、デバイスが指定の種別のアクチュエータを持つかどうかを返す
func (d *Device) HasCapability(kind ActuatorKind) bool {
	for _, c := range d.Capabilities {
		if c.Kind == kind {
			return true
		}
	}
	return false
}
