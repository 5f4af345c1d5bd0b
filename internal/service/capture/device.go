package capture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DeviceProvider 直接打开本机采集设备节点，供命令行工具使用。
type DeviceProvider struct {
	Path string
}

// NewDeviceProvider returns a provider for the device node at path.
func NewDeviceProvider(path string) *DeviceProvider {
	return &DeviceProvider{Path: strings.TrimSpace(path)}
}

// RequestCapture opens the device read-only and holds it until Close.
func (p *DeviceProvider) RequestCapture(ctx context.Context, _ Constraints) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Path == "" {
		return nil, deviceError("no capture device configured")
	}

	f, err := os.Open(p.Path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrPermission):
		return nil, denied(err.Error())
	default:
		return nil, deviceError(err.Error())
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, deviceError(err.Error())
	}
	if info.IsDir() {
		f.Close()
		return nil, deviceError(fmt.Sprintf("%s is a directory", p.Path))
	}

	return &deviceHandle{id: uuid.NewString(), file: f}, nil
}

type deviceHandle struct {
	id   string
	file *os.File
	once sync.Once
	err  error
}

func (h *deviceHandle) ID() string { return h.id }

func (h *deviceHandle) Close() error {
	h.once.Do(func() { h.err = h.file.Close() })
	return h.err
}
