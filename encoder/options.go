package encoder

import (
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	defaultFrameRate       = 30
	defaultThreadQueueSize = 512
	defaultAudioBufferSize = 16 * 1024
	defaultSampleRate      = 48000
	defaultChannels        = 2

	defaultConnectTimeout    = 5 * time.Second
	defaultAudioWriteTimeout = 1 * time.Second
	defaultDrainTimeout      = 5 * time.Second
	defaultStopTimeout       = 10 * time.Second
	defaultKillWait          = 2 * time.Second

	exitGrace = 100 * time.Millisecond
)

// VideoOptions describe the raw frames handed to WriteFrame.
type VideoOptions struct {
	Width     int
	Height    int
	FrameRate int
	Format    PixelFormat
	// ScaleWidth and ScaleHeight resize the output when set. Odd values are
	// rounded up.
	ScaleWidth  int
	ScaleHeight int
}

// AudioOptions describe the interleaved signed 16-bit PCM handed to
// WriteAudio.
type AudioOptions struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond is the PCM byte rate.
func (a AudioOptions) BytesPerSecond() int {
	return a.SampleRate * a.Channels * 2
}

type Options struct {
	Video VideoOptions
	// Audio enables the second input. Nil records video only.
	Audio *AudioOptions
	// OutputArgs are appended after the inputs: codecs, container and
	// destination.
	OutputArgs []string
	// GlobalArgs go before the inputs (e.g. -vaapi_device).
	GlobalArgs []string
	// VideoFilter is appended to the scale filter, if any, in one -vf chain.
	VideoFilter string

	Label         string
	ChannelPrefix string
	LogOutput     io.Writer

	ThreadQueueSize int
	AudioBufferSize int

	ConnectTimeout    time.Duration
	AudioWriteTimeout time.Duration
	// FrameWriteTimeout bounds the wait for the previous frame. Zero waits
	// until the write finishes or the encoder exits.
	FrameWriteTimeout time.Duration
	DrainTimeout      time.Duration
	StopTimeout       time.Duration
	KillWait          time.Duration
}

func normalizeOptions(options *Options) (*Options, error) {
	if options == nil {
		return nil, errors.New("nil options")
	}

	opts := *options
	if err := normalizeVideo(&opts.Video); err != nil {
		return nil, err
	}
	if opts.Audio != nil {
		a := normalizeAudio(*opts.Audio)
		opts.Audio = &a
	}
	if len(opts.OutputArgs) == 0 {
		return nil, errors.New("output arguments are required")
	}
	if opts.Label == "" {
		opts.Label = "recorder"
	}
	if opts.ThreadQueueSize == 0 {
		opts.ThreadQueueSize = defaultThreadQueueSize
	} else if opts.ThreadQueueSize < 8 {
		opts.ThreadQueueSize = 8
	}
	if opts.ThreadQueueSize > 16384 {
		opts.ThreadQueueSize = 16384
	}
	if opts.AudioBufferSize <= 0 {
		opts.AudioBufferSize = defaultAudioBufferSize
	}
	defaultDuration(&opts.ConnectTimeout, defaultConnectTimeout)
	defaultDuration(&opts.AudioWriteTimeout, defaultAudioWriteTimeout)
	defaultDuration(&opts.DrainTimeout, defaultDrainTimeout)
	defaultDuration(&opts.StopTimeout, defaultStopTimeout)
	defaultDuration(&opts.KillWait, defaultKillWait)
	if opts.FrameWriteTimeout < 0 {
		opts.FrameWriteTimeout = 0
	}

	return &opts, nil
}

func normalizeVideo(v *VideoOptions) error {
	if v.Width <= 0 || v.Height <= 0 {
		return fmt.Errorf("invalid video size %dx%d", v.Width, v.Height)
	}
	switch v.Format {
	case 0:
		v.Format = PixelFormatNV12
	case PixelFormatNV12, PixelFormatBGRA:
	default:
		return fmt.Errorf("unsupported pixel format %v", v.Format)
	}
	if v.Format == PixelFormatNV12 && (v.Width%2 != 0 || v.Height%2 != 0) {
		return fmt.Errorf("nv12 needs even dimensions, got %dx%d", v.Width, v.Height)
	}
	if v.FrameRate == 0 {
		v.FrameRate = defaultFrameRate
	} else if v.FrameRate < 1 {
		v.FrameRate = 1
	}
	if v.FrameRate > 240 {
		v.FrameRate = 240
	}
	if v.ScaleWidth < 0 || v.ScaleHeight < 0 {
		v.ScaleWidth, v.ScaleHeight = 0, 0
	}
	v.ScaleWidth += v.ScaleWidth % 2
	v.ScaleHeight += v.ScaleHeight % 2
	return nil
}

func normalizeAudio(a AudioOptions) AudioOptions {
	if a.SampleRate == 0 {
		a.SampleRate = defaultSampleRate
	} else if a.SampleRate < 8000 {
		a.SampleRate = 8000
	}
	if a.SampleRate > 384000 {
		a.SampleRate = 384000
	}
	if a.Channels == 0 {
		a.Channels = defaultChannels
	} else if a.Channels < 1 {
		a.Channels = 1
	}
	if a.Channels > 8 {
		a.Channels = 8
	}
	return a
}

func defaultDuration(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}
