package haptic

import (
	"fmt"
)

// DeviceNotFoundError は未知のデバイス名が参照された場合のエラーです
type DeviceNotFoundError struct {
	Name string
}

func (e DeviceNotFoundError) Error() string {
	return fmt.Sprintf("device %s is not registered", e.Name)
}

// AlreadyScanningError はスキャン中に再度スキャンを開始しようとした場合のエラーです
type AlreadyScanningError struct{}

func (e AlreadyScanningError) Error() string {
	return "a scan is already in progress"
}

// NotScanningError はスキャンしていない状態で停止を要求した場合のエラーです
type NotScanningError struct{}

func (e NotScanningError) Error() string {
	return "no scan is in progress"
}

// AlreadyConnectedError はバックエンドセッションが既に確立されている場合のエラーです
type AlreadyConnectedError struct{}

func (e AlreadyConnectedError) Error() string {
	return "a backend session is already active"
}

// BackendUnavailableError はバックエンドに到達できなかった場合のエラーです
type BackendUnavailableError struct {
	Err error
}

func (e BackendUnavailableError) Error() string {
	return fmt.Sprintf("backend is unavailable: %v", e.Err)
}

func (e BackendUnavailableError) Unwrap() error {
	return e.Err
}

// UnsupportedCapabilityError はデバイスがコマンド種別に対応していない場合のエラーです
type UnsupportedCapabilityError struct {
	Device string
	Kind   ActuatorKind
}

func (e UnsupportedCapabilityError) Error() string {
	return fmt.Sprintf("device %s does not support %s", e.Device, e.Kind)
}

// ParameterOutOfRangeError はコマンドパラメータが許容範囲外の場合のエラーです
type ParameterOutOfRangeError struct {
	Parameter string
	Value     float64
}

func (e ParameterOutOfRangeError) Error() string {
	return fmt.Sprintf("parameter %s is out of range: %v", e.Parameter, e.Value)
}

// PersistenceError は設定の永続化に失敗した場合のエラーです
// ディスク上の既存の状態は変更されていないことを保証します
type PersistenceError struct {
	Err error
}

func (e PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist settings: %v", e.Err)
}

func (e PersistenceError) Unwrap() error {
	return e.Err
}
