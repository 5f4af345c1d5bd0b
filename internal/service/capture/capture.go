package capture

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied 用户或系统拒绝麦克风权限。
	ErrPermissionDenied = errors.New("capture permission denied")
	// ErrDevice 采集设备不可用或打开失败。
	ErrDevice = errors.New("capture device error")
)

// Constraints mirrors the audio constraints requested from the device.
type Constraints struct {
	EchoCancellation bool `json:"echoCancellation"`
	NoiseSuppression bool `json:"noiseSuppression"`
	AutoGainControl  bool `json:"autoGainControl"`
}

// DefaultConstraints 开启回声消除、降噪与自动增益。
func DefaultConstraints() Constraints {
	return Constraints{EchoCancellation: true, NoiseSuppression: true, AutoGainControl: true}
}

// Handle 已获取的采集设备句柄，必须与远端会话一起释放。
type Handle interface {
	ID() string
	Close() error
}

// Provider 抽象麦克风权限获取。
type Provider interface {
	RequestCapture(ctx context.Context, constraints Constraints) (Handle, error)
}

// Error carries the device-level reason alongside one of the sentinel kinds.
type Error struct {
	Kind   error
	Reason string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Reason
}

func (e *Error) Unwrap() error { return e.Kind }

func denied(reason string) error {
	return &Error{Kind: ErrPermissionDenied, Reason: reason}
}

func deviceError(reason string) error {
	return &Error{Kind: ErrDevice, Reason: reason}
}
