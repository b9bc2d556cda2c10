package haptic

import (
	"context"
)

// Announcement は、スキャン中に発見されたデバイスの通知を表す
type Announcement struct {
	Name string
}

// NotificationType は、バックエンドからの非同期通知の種別を表す
type NotificationType int

const (
	// NotificationDeviceLost はデバイスがバックエンド側から切断されたことを示す
	NotificationDeviceLost NotificationType = iota
	// NotificationError はバックエンドまたはデバイスのエラーを示す
	NotificationError
)

// Notification は、バックエンドが自発的に送ってくる通知を表す
type Notification struct {
	Type   NotificationType
	Device string // 対象デバイス名（デバイスに紐づかない場合は空）
	Err    error
}

// Backend は、デバイスと実際に通信するトランスポート層を抽象化する
// インターフェースです。エンジンからは不透明なコラボレータとして扱う
//
// 接続系のプリミティブは自前の有界タイムアウトを持つことが期待される
// タイムアウト超過はハングせずエラーとして報告されること
type Backend interface {
	// Connect はバックエンドセッションを確立する
	Connect(ctx context.Context) error

	// StartScan は非同期のデバイス探索を開始し、発見通知のストリームを返す
	// スキャンが終了するとチャンネルはクローズされる
	StartScan(ctx context.Context) (<-chan Announcement, error)

	// StopScan は進行中のスキャンの停止を要求する
	StopScan(ctx context.Context) error

	// ConnectDevice は発見済みデバイスへの接続を試み、
	// デバイスが報告する能力集合を返す
	ConnectDevice(ctx context.Context, name string) ([]Capability, error)

	// SendScalar はスカラーコマンド（振動速度など）をデバイスに送信する
	SendScalar(ctx context.Context, name string, kind ActuatorKind, value float64) error

	// DisconnectDevice はデバイスを切断する
	DisconnectDevice(ctx context.Context, name string) error

	// Notifications はバックエンド起点の通知チャンネルを返す
	Notifications() <-chan Notification

	// Close はバックエンドセッションを破棄する
	Close(ctx context.Context) error
}
