package haptic

import (
	"math"
	"time"
)

// ActuatorKind は、デバイスが対応するコマンドの種別を表す
type ActuatorKind string

const (
	ActuatorVibrate ActuatorKind = "vibrate"
	ActuatorRotate  ActuatorKind = "rotate"
	ActuatorLinear  ActuatorKind = "linear"
)

// Capability は、アクチュエータ種別と有効なパラメータ範囲の組を表す
// デバイスに付与された後は変更されない
type Capability struct {
	Kind ActuatorKind
	Min  float64
	Max  float64
}

// ValidateScalar は、デバイスの能力に対してスカラーコマンドを検証する
// speed は [0.0, 1.0] にクランプされた値を返す（デバイスは飽和には耐えるが
// コマンド拒否には弱いため、範囲超過は拒否せずクランプする）
// duration はクランプせずに受け入れる。0 は「停止されるまで」を意味する
func ValidateScalar(d *Device, kind ActuatorKind, speed float64, duration time.Duration) (float64, error) {
	if math.IsNaN(speed) || math.IsInf(speed, 0) || speed < 0 {
		return 0, ParameterOutOfRangeError{Parameter: "speed", Value: speed}
	}
	if duration < 0 {
		return 0, ParameterOutOfRangeError{Parameter: "duration", Value: duration.Seconds()}
	}
	if !d.HasCapability(kind) {
		return 0, UnsupportedCapabilityError{Device: d.Name, Kind: kind}
	}
	if speed > 1.0 {
		speed = 1.0
	}
	return speed, nil
}

// CapabilityKinds は、能力集合から種別名のリストを作る
func CapabilityKinds(caps []Capability) []string {
	kinds := make([]string, 0, len(caps))
	for _, c := range caps {
		kinds = append(kinds, string(c.Kind))
	}
	return kinds
}
