package haptic

import (
	"fmt"
	"sync"
	"time"
)

// EventType は、ホストへ通知するイベントの種別を表す
type EventType string

const (
	EventDeviceDiscovered   EventType = "device_discovered"
	EventDeviceConnected    EventType = "device_connected"
	EventDeviceDisconnected EventType = "device_disconnected"
	EventDeviceError        EventType = "device_error"
	EventScanFinished       EventType = "scan_finished"
	EventOverflow           EventType = "overflow"
)

// Event は、エンキュー後は不変のイベントレコードです
// Device は対象デバイス名（デバイスに紐づかないイベントでは空）
type Event struct {
	Type   EventType
	Device string
	Reason string
	Time   time.Time
}

// Descriptor は、ポーリングするホスト向けの文字列表現を返す
func (e Event) Descriptor() string {
	switch {
	case e.Device != "" && e.Reason != "":
		return fmt.Sprintf("%s|%s|%s", e.Type, e.Device, e.Reason)
	case e.Device != "":
		return fmt.Sprintf("%s|%s", e.Type, e.Device)
	case e.Reason != "":
		return fmt.Sprintf("%s|%s", e.Type, e.Reason)
	default:
		return string(e.Type)
	}
}

// EventBridge は、非同期なプロデューサ（スキャン・接続・ディスパッチ）と
// 同期的にポーリングするホストを切り離す有界FIFOキューです
//
// Publish はブロックせず、失敗もしない。容量を超えた場合は最も古い
// イベントを捨て、次の Drain の先頭に Overflow マーカーを一度だけ
// 合成する（損失を黙って隠さない）
type EventBridge struct {
	mu       sync.Mutex
	queue    []Event
	capacity int
	lost     bool // 前回の Drain 以降にイベントを捨てたかどうか
}

// DefaultQueueSize はイベントキューのデフォルト容量
const DefaultQueueSize = 128

// NewEventBridge は、指定容量のEventBridgeを作成する
// capacity が 0 以下の場合は DefaultQueueSize を使う
func NewEventBridge(capacity int) *EventBridge {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &EventBridge{
		queue:    make([]Event, 0, capacity),
		capacity: capacity,
	}
}

// Publish は、イベントをキューに追加する。ブロックしない
func (b *EventBridge) Publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) >= b.capacity {
		// 最も古いイベントを捨てる。マーカーは Drain 時に合成する
		copy(b.queue, b.queue[1:])
		b.queue = b.queue[:len(b.queue)-1]
		b.lost = true
	}
	b.queue = append(b.queue, event)
}

// Drain は、現在キューにある全イベントを発生順で取り出して返す
// キューは空になる。新しいイベントがなければ空のスライスを返す
// ブロックせず、エラーも返さない
func (b *EventBridge) Drain() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 && !b.lost {
		return nil
	}

	var result []Event
	if b.lost {
		// 損失があったエピソードの先頭にマーカーを一度だけ置く
		result = make([]Event, 0, len(b.queue)+1)
		result = append(result, Event{Type: EventOverflow, Time: time.Now()})
		b.lost = false
	} else {
		result = make([]Event, 0, len(b.queue))
	}
	result = append(result, b.queue...)

	b.queue = make([]Event, 0, b.capacity)
	return result
}

// Len は、現在キューにあるイベント数を返す
func (b *EventBridge) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
