package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionBusy 已有会话或生命周期调用正在进行。
	ErrSessionBusy = errors.New("session lifecycle call already in progress")
	// ErrNotActive 没有可停止的会话。
	ErrNotActive = errors.New("no active session")
	// ErrStartCancelled 启动过程中收到停止请求。
	ErrStartCancelled = errors.New("session start cancelled by stop")
)

// ErrorKind 生命周期错误分类。
type ErrorKind string

const (
	PermissionDenied      ErrorKind = "PermissionDenied"
	DeviceError           ErrorKind = "DeviceError"
	RemoteConnectError    ErrorKind = "RemoteConnectError"
	RemoteRuntimeError    ErrorKind = "RemoteRuntimeError"
	RemoteDisconnectError ErrorKind = "RemoteDisconnectError"
)

// Error is a classified lifecycle failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the lifecycle kind carried by err, or "" if none.
func KindOf(err error) ErrorKind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return ""
}

// message 返回面向用户的错误描述。
func message(err error) string {
	var target *Error
	if errors.As(err, &target) && target.Err != nil {
		err = target.Err
	}
	if err == nil || err.Error() == "" {
		return "Unknown error"
	}
	return err.Error()
}
