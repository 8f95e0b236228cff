package audio

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"go2tv.app/screenrec/internal/supervisor"
)

// DeviceOptions select a capture device opened through the encoder's own
// input layer (pulse, avfoundation, dshow, ...).
type DeviceOptions struct {
	// InputFormat is the encoder demuxer, e.g. "pulse". Empty picks the
	// platform default.
	InputFormat string
	// Device is the demuxer specific device name, e.g. "default",
	// ":0" or "audio=Microphone".
	Device     string
	SampleRate int
	Channels   int
	StopWait   time.Duration
}

// DefaultDevice returns the platform's default capture input.
func DefaultDevice() (inputFormat, device string) {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation", ":0"
	case "windows":
		return "dshow", ""
	default:
		return "pulse", "default"
	}
}

// DeviceSource captures a device by running an encoder process that writes
// s16le PCM to stdout.
type DeviceSource struct {
	sup  *supervisor.Supervisor
	opts DeviceOptions

	mu   sync.Mutex
	proc *supervisor.Process
}

// NewDeviceSource prepares a capture source; nothing runs until Start.
func NewDeviceSource(sup *supervisor.Supervisor, opts DeviceOptions) (*DeviceSource, error) {
	defFormat, defDevice := DefaultDevice()
	if opts.InputFormat == "" {
		opts.InputFormat = defFormat
	}
	if opts.Device == "" {
		opts.Device = defDevice
	}
	if opts.Device == "" {
		return nil, fmt.Errorf("%s needs an explicit device name", opts.InputFormat)
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultRate
	}
	if opts.Channels <= 0 {
		opts.Channels = outputChannels
	}
	if opts.StopWait <= 0 {
		opts.StopWait = 2 * time.Second
	}
	return &DeviceSource{sup: sup, opts: opts}, nil
}

func (d *DeviceSource) Format() Format {
	return PCM16(d.opts.SampleRate, d.opts.Channels)
}

func (d *DeviceSource) args() []string {
	return []string{
		"-hide_banner",
		"-f", d.opts.InputFormat,
		"-i", d.opts.Device,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(d.opts.SampleRate),
		"-ac", strconv.Itoa(d.opts.Channels),
		"pipe:1",
	}
}

func (d *DeviceSource) Start(onData func([]byte)) error {
	if onData == nil {
		return errors.New("nil data callback")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.proc != nil && !d.proc.Exited() {
		return errors.New("device source already started")
	}

	proc, err := d.sup.Start(context.Background(), supervisor.StartOptions{
		Args:   d.args(),
		Label:  "capture:" + d.opts.InputFormat,
		Stdout: callbackWriter(onData),
	})
	if err != nil {
		return err
	}
	d.proc = proc
	return nil
}

func (d *DeviceSource) Stop() error {
	d.mu.Lock()
	proc := d.proc
	d.proc = nil
	d.mu.Unlock()
	if proc == nil {
		return nil
	}

	_ = d.sup.GracefulStop(proc)
	if !proc.Wait(d.opts.StopWait) {
		proc.Kill(d.opts.StopWait)
	}
	return nil
}

type callbackWriter func([]byte)

func (w callbackWriter) Write(p []byte) (int, error) {
	w(p)
	return len(p), nil
}
