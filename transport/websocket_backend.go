package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"buzzlink/haptic"
	"buzzlink/protocol"
)

const (
	// DefaultRequestTimeout は、応答を要求するメッセージごとの上限時間
	// 接続系プリミティブがハングしないための有界タイムアウト
	DefaultRequestTimeout = 10 * time.Second

	announcementBuffer = 16
	notificationBuffer = 64
)

// WebSocketBackend は、WebSocketリンク越しにバックエンドと通信する
// haptic.Backend の実装です
//
// 読み取りは単一のゴルーチンが担い、requestId 付きの応答は待機中の
// 要求に振り分け、それ以外のメッセージは通知として中継する
type WebSocketBackend struct {
	url            string
	dialer         *websocket.Dialer
	requestTimeout time.Duration

	connMu  sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan *protocol.Message
	nextID    atomic.Uint64

	scanMu        sync.Mutex
	announcements chan haptic.Announcement

	notifications chan haptic.Notification
}

// NewWebSocketBackend は、指定アドレスに接続するバックエンドを作成する
func NewWebSocketBackend(addr string) *WebSocketBackend {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = DefaultRequestTimeout

	return &WebSocketBackend{
		url:            addr,
		dialer:         &dialer,
		requestTimeout: DefaultRequestTimeout,
		pending:        make(map[string]chan *protocol.Message),
		notifications:  make(chan haptic.Notification, notificationBuffer),
	}
}

// Connect は、WebSocket接続を確立してサーバ情報を交換する
func (b *WebSocketBackend) Connect(ctx context.Context) error {
	conn, _, err := b.dialer.DialContext(ctx, b.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial backend %s: %w", b.url, err)
	}

	b.connMu.Lock()
	b.conn = conn
	b.connMu.Unlock()

	go b.readLoop(conn)

	resp, err := b.roundTrip(ctx, protocol.MessageTypeRequestServerInfo, nil)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("server info exchange failed: %w", err)
	}
	info, err := protocol.ParsePayload[protocol.ServerInfoPayload](resp)
	if err != nil {
		_ = conn.Close()
		return err
	}

	slog.Info("connected to backend", "server", info.ServerName, "messageVersion", info.MessageVersion)
	return nil
}

// StartScan は、デバイス探索を開始して発見通知のストリームを返す
func (b *WebSocketBackend) StartScan(ctx context.Context) (<-chan haptic.Announcement, error) {
	b.scanMu.Lock()
	if b.announcements != nil {
		b.scanMu.Unlock()
		return nil, fmt.Errorf("backend scan already active")
	}
	ch := make(chan haptic.Announcement, announcementBuffer)
	b.announcements = ch
	b.scanMu.Unlock()

	if _, err := b.roundTrip(ctx, protocol.MessageTypeStartScanning, nil); err != nil {
		b.finishScan()
		return nil, err
	}
	return ch, nil
}

// StopScan は、デバイス探索の停止を要求する
func (b *WebSocketBackend) StopScan(ctx context.Context) error {
	_, err := b.roundTrip(ctx, protocol.MessageTypeStopScanning, nil)
	b.finishScan()
	return err
}

// ConnectDevice は、発見済みデバイスへの接続を試みて能力集合を返す
func (b *WebSocketBackend) ConnectDevice(ctx context.Context, name string) ([]haptic.Capability, error) {
	resp, err := b.roundTrip(ctx, protocol.MessageTypeConnectDevice, protocol.ConnectDevicePayload{Name: name})
	if err != nil {
		return nil, err
	}

	payload, err := protocol.ParsePayload[protocol.DeviceConnectedPayload](resp)
	if err != nil {
		return nil, err
	}

	caps := make([]haptic.Capability, 0, len(payload.Actuators))
	for _, a := range payload.Actuators {
		caps = append(caps, haptic.Capability{
			Kind: haptic.ActuatorKind(a.Kind),
			Min:  a.Min,
			Max:  a.Max,
		})
	}
	return caps, nil
}

// SendScalar は、スカラーコマンドをデバイスに送信する
// 値ゼロは専用の停止メッセージとして送る
func (b *WebSocketBackend) SendScalar(ctx context.Context, name string, kind haptic.ActuatorKind, value float64) error {
	if value == 0 {
		_, err := b.roundTrip(ctx, protocol.MessageTypeStopDeviceCmd, protocol.StopDeviceCmdPayload{Name: name})
		return err
	}

	_, err := b.roundTrip(ctx, protocol.MessageTypeScalarCmd, protocol.ScalarCmdPayload{
		Name:  name,
		Kind:  string(kind),
		Value: value,
	})
	return err
}

// DisconnectDevice は、デバイスを切断する
func (b *WebSocketBackend) DisconnectDevice(ctx context.Context, name string) error {
	_, err := b.roundTrip(ctx, protocol.MessageTypeDisconnectDevice, protocol.DisconnectDevicePayload{Name: name})
	return err
}

// Notifications は、バックエンド起点の通知チャンネルを返す
func (b *WebSocketBackend) Notifications() <-chan haptic.Notification {
	return b.notifications
}

// Close は、WebSocket接続を閉じる。冪等
func (b *WebSocketBackend) Close(ctx context.Context) error {
	b.connMu.Lock()
	conn := b.conn
	b.conn = nil
	b.connMu.Unlock()

	if conn == nil {
		return nil
	}

	b.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	b.writeMu.Unlock()

	return conn.Close()
}

// readLoop は、接続上の全受信メッセージを処理する
// requestId 付きの応答は待機中の要求へ、それ以外は通知として振り分ける
func (b *WebSocketBackend) readLoop(conn *websocket.Conn) {
	defer b.failPending()
	defer b.finishScan()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			b.connMu.Lock()
			closed := b.conn == nil
			b.connMu.Unlock()
			if !closed {
				slog.Warn("backend connection lost", "err", err)
				b.notify(haptic.Notification{Type: haptic.NotificationError, Err: err})
			}
			return
		}

		msg, err := protocol.ParseMessage(data)
		if err != nil {
			slog.Warn("discarding malformed backend message", "err", err)
			continue
		}

		if msg.RequestID != "" {
			b.deliverResponse(msg)
			continue
		}

		b.handleNotification(msg)
	}
}

func (b *WebSocketBackend) handleNotification(msg *protocol.Message) {
	switch msg.Type {
	case protocol.MessageTypeDeviceAdded:
		payload, err := protocol.ParsePayload[protocol.DeviceAddedPayload](msg)
		if err != nil {
			slog.Warn("bad device_added payload", "err", err)
			return
		}
		b.scanMu.Lock()
		ch := b.announcements
		b.scanMu.Unlock()
		if ch == nil {
			return
		}
		select {
		case ch <- haptic.Announcement{Name: payload.Name}:
		default:
			slog.Warn("announcement channel is full, dropping discovery", "name", payload.Name)
		}

	case protocol.MessageTypeScanningFinished:
		b.finishScan()

	case protocol.MessageTypeDeviceRemoved:
		payload, err := protocol.ParsePayload[protocol.DeviceRemovedPayload](msg)
		if err != nil {
			slog.Warn("bad device_removed payload", "err", err)
			return
		}
		b.notify(haptic.Notification{Type: haptic.NotificationDeviceLost, Device: payload.Name})

	case protocol.MessageTypeError:
		payload, err := protocol.ParsePayload[protocol.ErrorPayload](msg)
		if err != nil {
			slog.Warn("bad error payload", "err", err)
			return
		}
		b.notify(haptic.Notification{
			Type:   haptic.NotificationError,
			Device: payload.Device,
			Err:    fmt.Errorf("%s: %s", payload.Code, payload.Message),
		})

	default:
		slog.Debug("ignoring unexpected backend message", "type", msg.Type)
	}
}

// roundTrip は、requestId 付きのメッセージを送信して応答を待つ
// 応答がエラーメッセージの場合はエラーとして返す
func (b *WebSocketBackend) roundTrip(ctx context.Context, msgType protocol.MessageType, payload any) (*protocol.Message, error) {
	id := strconv.FormatUint(b.nextID.Add(1), 10)
	msg, err := protocol.NewMessage(msgType, payload, id)
	if err != nil {
		return nil, err
	}

	ch := make(chan *protocol.Message, 1)
	b.pendingMu.Lock()
	b.pending[id] = ch
	b.pendingMu.Unlock()

	cleanup := func() {
		b.pendingMu.Lock()
		delete(b.pending, id)
		b.pendingMu.Unlock()
	}

	if err := b.writeMessage(msg); err != nil {
		cleanup()
		return nil, err
	}

	timer := time.NewTimer(b.requestTimeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("connection closed while waiting for %s response", msgType)
		}
		if resp.Type == protocol.MessageTypeError {
			errPayload, perr := protocol.ParsePayload[protocol.ErrorPayload](resp)
			if perr != nil {
				return nil, fmt.Errorf("%s failed with unparseable error", msgType)
			}
			return nil, fmt.Errorf("%s: %s", errPayload.Code, errPayload.Message)
		}
		return resp, nil
	case <-ctx.Done():
		cleanup()
		return nil, ctx.Err()
	case <-timer.C:
		cleanup()
		return nil, fmt.Errorf("timed out waiting for %s response", msgType)
	}
}

func (b *WebSocketBackend) writeMessage(msg *protocol.Message) error {
	b.connMu.Lock()
	conn := b.conn
	b.connMu.Unlock()
	if conn == nil {
		return fmt.Errorf("backend is not connected")
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

func (b *WebSocketBackend) deliverResponse(msg *protocol.Message) {
	b.pendingMu.Lock()
	ch, ok := b.pending[msg.RequestID]
	if ok {
		delete(b.pending, msg.RequestID)
	}
	b.pendingMu.Unlock()

	if !ok {
		slog.Debug("response for unknown request", "requestId", msg.RequestID, "type", msg.Type)
		return
	}
	ch <- msg
}

// failPending は、待機中の全要求に接続喪失を伝える
func (b *WebSocketBackend) failPending() {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()

	for id, ch := range b.pending {
		close(ch)
		delete(b.pending, id)
	}
}

// finishScan は、発見ストリームを閉じる。複数回呼んでも安全
func (b *WebSocketBackend) finishScan() {
	b.scanMu.Lock()
	defer b.scanMu.Unlock()

	if b.announcements != nil {
		close(b.announcements)
		b.announcements = nil
	}
}

func (b *WebSocketBackend) notify(n haptic.Notification) {
	select {
	case b.notifications <- n:
	default:
		slog.Warn("notification channel is full, dropping notification")
	}
}
