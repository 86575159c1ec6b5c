package media

import (
	"fmt"
	"strings"
)

// DataCallback receives little-endian signed 16-bit PCM from a capture device.
type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string `json:"id" yaml:"id"` // opaque platform-specific identifier
	Name string `json:"name" yaml:"name"`
}

// AudioContext enumerates and opens capture devices.
type AudioContext interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
}

// FindDevice returns the capture device whose name contains name
// (case-insensitive). An empty name selects the system default (nil).
func FindDevice(ctx AudioContext, name string) (*DeviceInfo, error) {
	if name == "" {
		return nil, nil
	}
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	want := strings.ToLower(name)
	for i := range devices {
		if strings.ToLower(devices[i].Name) == want {
			return &devices[i], nil
		}
	}
	for i := range devices {
		if strings.Contains(strings.ToLower(devices[i].Name), want) {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("no capture device matching %q", name)
}
