package settings

import "errors"

var (
	// ErrPhoneNumberRequired 呼叫请求前必须保存电话号码。
	ErrPhoneNumberRequired = errors.New("phone number is required")
)

// PersistError 写入配置槽失败，不影响会话状态。
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string {
	return "config persist failed: " + e.Err.Error()
}

func (e *PersistError) Unwrap() error { return e.Err }

// LoadError 读取或解析配置槽失败，调用方会回退到默认配置。
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string {
	return "config load failed: " + e.Err.Error()
}

func (e *LoadError) Unwrap() error { return e.Err }
