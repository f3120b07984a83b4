// internal/audio/capture.go
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotInitialized = errors.New("audio capture not initialized")
	ErrAlreadyRunning = errors.New("audio capture already running")
	ErrNotRunning     = errors.New("audio capture not running")
	ErrClosed         = errors.New("audio capture closed")
)

// Config holds audio capture configuration
type Config struct {
	DeviceIndex int    // -1 for default device
	SampleRate  uint32 // e.g., 44100
	Channels    uint32 // interleaved channels per frame; stereo is downmixed later
	BufferSize  uint32 // frames per callback
}

// DefaultConfig returns stereo CD-rate capture, matching the beat detector defaults
func DefaultConfig() Config {
	return Config{
		DeviceIndex: -1,
		SampleRate:  44100,
		Channels:    2,
		BufferSize:  1024,
	}
}

// SampleCallback is called directly from the audio thread with new interleaved
// samples. The slice is only valid for the duration of the call.
type SampleCallback func(samples []float32)

// DeviceInfo describes one capture device
type DeviceInfo struct {
	Index     int
	Name      string
	IsDefault bool
}

// Capture streams float32 samples from a capture device.
type Capture struct {
	config Config
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	mu     sync.Mutex

	running     atomic.Bool
	closed      atomic.Bool
	closeOnce   sync.Once
	callbackPtr atomic.Pointer[SampleCallback]
	dropped     atomic.Uint64

	// Samples delivers interleaved float32 samples normalized to -1.0..1.0.
	// Each slice is owned by the receiver.
	Samples chan []float32
}

// New creates a new audio capture instance
func New(cfg Config) *Capture {
	return &Capture{
		config:  cfg,
		Samples: make(chan []float32, 64),
	}
}

// Config returns the capture configuration
func (c *Capture) Config() Config { return c.config }

// SetCallback sets a callback for low-latency processing on the audio
// thread. Pass nil to remove it.
func (c *Capture) SetCallback(cb SampleCallback) {
	if cb == nil {
		c.callbackPtr.Store(nil)
		return
	}
	c.callbackPtr.Store(&cb)
}

// Init initializes the audio backend
func (c *Capture) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logrus.WithField("component", "malgo").Debug(message)
	})
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}
	c.ctx = ctx

	return nil
}

// ListDevices returns available capture devices
func (c *Capture) ListDevices() ([]malgo.DeviceInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listDevicesLocked()
}

func (c *Capture) listDevicesLocked() ([]malgo.DeviceInfo, error) {
	if c.ctx == nil {
		return nil, ErrNotInitialized
	}

	infos, err := c.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}

	return infos, nil
}

// Devices returns the capture devices in index order, as accepted by
// Config.DeviceIndex.
func (c *Capture) Devices() ([]DeviceInfo, error) {
	infos, err := c.ListDevices()
	if err != nil {
		return nil, err
	}
	out := make([]DeviceInfo, len(infos))
	for i, info := range infos {
		out[i] = DeviceInfo{
			Index:     i,
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
		}
	}
	return out, nil
}

// Start begins audio capture. Capture stops when ctx is cancelled.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}
	if c.running.Load() {
		return ErrAlreadyRunning
	}
	if c.ctx == nil {
		return ErrNotInitialized
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.SampleRate = c.config.SampleRate
	deviceConfig.PeriodSizeInFrames = c.config.BufferSize
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = c.config.Channels

	if c.config.DeviceIndex >= 0 {
		devices, err := c.listDevicesLocked()
		if err != nil {
			return err
		}
		if c.config.DeviceIndex >= len(devices) {
			return fmt.Errorf("device index %d out of range (have %d devices)",
				c.config.DeviceIndex, len(devices))
		}
		deviceConfig.Capture.DeviceID = devices[c.config.DeviceIndex].ID.Pointer()
	}

	onRecvFrames := func(_, inputSamples []byte, _ uint32) {
		if len(inputSamples) == 0 || c.closed.Load() {
			return
		}

		// view into malgo's buffer, valid only inside this callback
		view := bytesAsFloat32(inputSamples)
		if cb := c.callbackPtr.Load(); cb != nil {
			(*cb)(view)
		}
		c.safeSend(copyFloat32Slice(view))
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onRecvFrames,
	})
	if err != nil {
		return fmt.Errorf("init device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start device: %w", err)
	}

	c.device = device
	c.running.Store(true)

	logrus.WithFields(logrus.Fields{
		"sample_rate": c.config.SampleRate,
		"channels":    c.config.Channels,
		"buffer_size": c.config.BufferSize,
		"device":      c.config.DeviceIndex,
	}).Info("Audio capture started")

	go func() {
		<-ctx.Done()
		if err := c.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
			logrus.WithError(err).Warn("Stopping audio capture")
		}
	}()

	return nil
}

// Stop stops audio capture
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running.Load() {
		return ErrNotRunning
	}
	c.stopDeviceLocked()
	return nil
}

func (c *Capture) stopDeviceLocked() {
	if c.device != nil {
		_ = c.device.Stop()
		c.device.Uninit()
		c.device = nil
	}
	if c.running.Swap(false) {
		logrus.WithField("dropped_buffers", c.dropped.Load()).Info("Audio capture stopped")
	}
}

// Close releases all audio resources and closes Samples. It is safe to call
// more than once.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// mark closed first so the audio thread stops sending
	c.closed.Store(true)
	c.stopDeviceLocked()

	var err error
	if c.ctx != nil {
		if uninitErr := c.ctx.Uninit(); uninitErr != nil {
			err = fmt.Errorf("uninit context: %w", uninitErr)
		}
		c.ctx.Free()
		c.ctx = nil
	}

	c.closeOnce.Do(func() {
		close(c.Samples)
	})
	return err
}

// IsRunning returns true if capture is active
func (c *Capture) IsRunning() bool {
	return c.running.Load()
}

// Dropped returns how many buffers were discarded because Samples was full
func (c *Capture) Dropped() uint64 {
	return c.dropped.Load()
}

// safeSend delivers samples without blocking. Buffers are dropped when the
// consumer is behind, and a send racing with Close is swallowed.
func (c *Capture) safeSend(samples []float32) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Debug("Send on closed sample channel")
		}
	}()

	if c.closed.Load() {
		return
	}
	select {
	case c.Samples <- samples:
	default:
		c.dropped.Add(1)
	}
}

// decodeFloat32 converts raw little-endian bytes to float32 samples,
// copying. Trailing bytes that do not form a whole sample are ignored.
func decodeFloat32(data []byte) []float32 {
	samples := make([]float32, len(data)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return samples
}

// bytesAsFloat32 reinterprets data as float32 samples without copying.
// Buffers that are not 4-byte aligned are decoded into a fresh slice.
func bytesAsFloat32(data []byte) []float32 {
	if len(data) < 4 {
		return nil
	}
	if uintptr(unsafe.Pointer(&data[0]))%4 != 0 {
		return decodeFloat32(data)
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), len(data)/4)
}

// copyFloat32Slice returns an independent copy of samples
func copyFloat32Slice(samples []float32) []float32 {
	if samples == nil {
		return nil
	}
	out := make([]float32, len(samples))
	copy(out, samples)
	return out
}
