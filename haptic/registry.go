package haptic

import (
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

// DeviceRegistry は、既知のデバイスとその接続・能力状態を管理する
// 唯一の所有者です。他のコンポーネントはデバイスを名前で参照する
//
// 全操作はスキャンとディスパッチの並行実行下で安全。ロックは個々の
// 操作の間だけ保持し、バックエンドへのI/Oをまたがない
type DeviceRegistry struct {
	mu      sync.RWMutex
	devices map[string]*Device
	order   []string // 挿入順を保持する
	bridge  *EventBridge
}

// NewDeviceRegistry は、状態遷移イベントの送信先となるブリッジを
// 指定してレジストリを作成する
func NewDeviceRegistry(bridge *EventBridge) *DeviceRegistry {
	return &DeviceRegistry{
		devices: make(map[string]*Device),
		bridge:  bridge,
	}
}

// Upsert は、デバイスを登録または更新する。冪等
// 新規登録で状態が Discovered の場合は DeviceDiscovered イベントを発行する
func (r *DeviceRegistry) Upsert(device Device) {
	device.LastSeen = time.Now()

	r.mu.Lock()
	existing, ok := r.devices[device.Name]
	if !ok {
		d := device
		r.devices[device.Name] = &d
		r.order = append(r.order, device.Name)
	} else {
		existing.LastSeen = device.LastSeen
		if len(device.Capabilities) > 0 {
			existing.Capabilities = device.Capabilities
		}
	}
	r.mu.Unlock()

	if !ok && device.State == StateDiscovered {
		r.bridge.Publish(Event{Type: EventDeviceDiscovered, Device: device.Name})
	}
}

// Get は、名前でデバイスを検索してコピーを返す
func (r *DeviceRegistry) Get(name string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[name]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

// List は、全デバイスのスナップショットを挿入順で返す
func (r *DeviceRegistry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Device, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, *r.devices[name])
	}
	return result
}

// Names は、全デバイス名を挿入順で返す
func (r *DeviceRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// SetState は、デバイスの接続状態を変更する
// 実際に状態が変わった場合のみ、対応するイベントを発行する
// reason は Failed への遷移で使われ、それ以外では無視される
func (r *DeviceRegistry) SetState(name string, state DeviceState, reason string) error {
	r.mu.Lock()
	d, ok := r.devices[name]
	if !ok {
		r.mu.Unlock()
		return DeviceNotFoundError{Name: name}
	}
	changed := d.State != state
	d.State = state
	d.LastSeen = time.Now()
	r.mu.Unlock()

	if !changed {
		return nil
	}

	switch state {
	case StateConnected:
		r.bridge.Publish(Event{Type: EventDeviceConnected, Device: name})
	case StateDisconnected:
		r.bridge.Publish(Event{Type: EventDeviceDisconnected, Device: name})
	case StateFailed:
		r.bridge.Publish(Event{Type: EventDeviceError, Device: name, Reason: reason})
	case StateDiscovered:
		r.bridge.Publish(Event{Type: EventDeviceDiscovered, Device: name})
	}
	return nil
}

// SetCapabilities は、接続時にバックエンドが報告した能力集合を記録する
func (r *DeviceRegistry) SetCapabilities(name string, caps []Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[name]
	if !ok {
		return DeviceNotFoundError{Name: name}
	}
	d.Capabilities = caps
	return nil
}

// Capabilities は、デバイスの能力集合を返す。未知の名前はエラー
func (r *DeviceRegistry) Capabilities(name string) ([]Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[name]
	if !ok {
		return nil, DeviceNotFoundError{Name: name}
	}
	return slices.Clone(d.Capabilities), nil
}

// Remove は、デバイスをレジストリから削除する
// 接続中のデバイスを削除した場合は DeviceDisconnected イベントを発行する
func (r *DeviceRegistry) Remove(name string) error {
	r.mu.Lock()
	d, ok := r.devices[name]
	if !ok {
		r.mu.Unlock()
		return DeviceNotFoundError{Name: name}
	}
	wasConnected := d.State == StateConnected
	delete(r.devices, name)
	if idx := slices.Index(r.order, name); idx >= 0 {
		r.order = slices.Delete(r.order, idx, idx+1)
	}
	r.mu.Unlock()

	if wasConnected {
		r.bridge.Publish(Event{Type: EventDeviceDisconnected, Device: name})
	}
	return nil
}

// IsConnected は、レジストリが最後に記録した状態が Connected かどうかを返す
// 未知の名前に対しては false を返す
func (r *DeviceRegistry) IsConnected(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[name]
	return ok && d.State == StateConnected
}

// Connected は、接続中のデバイスのスナップショットを挿入順で返す
func (r *DeviceRegistry) Connected() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Device, 0, len(r.order))
	for _, name := range r.order {
		if d := r.devices[name]; d.State == StateConnected {
			result = append(result, *d)
		}
	}
	return result
}
