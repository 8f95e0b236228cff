// Package record drives a recording: it paces a video source at the frame
// rate, pulls mixed audio at the same cadence and feeds both to an encoder
// sink until the context ends.
package record

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"go2tv.app/screenrec/audio"
	"go2tv.app/screenrec/encoder"
	"go2tv.app/screenrec/internal/logging"
)

var log = logging.L("recorder")

// DefaultAudioPeriod is the chunk length of audio-only recordings.
const DefaultAudioPeriod = 200 * time.Millisecond

// VideoSource yields frames. Next returns nil when the picture has not
// changed, in which case the previous frame is repeated.
type VideoSource interface {
	Next() *encoder.Frame
}

// AudioSource is a started-on-demand PCM stream, typically an audio.Mixer.
type AudioSource interface {
	io.Reader
	Format() audio.Format
	Start() error
	Stop() error
}

// Sink consumes frames and audio blocks. *encoder.Writer implements it.
type Sink interface {
	WriteFrame(*encoder.Frame) error
	WriteAudio([]byte) error
	Close() error
}

// Inhibitor keeps the session awake until the returned Closer is closed.
type Inhibitor func(reason string) (io.Closer, error)

type Options struct {
	FrameRate int
	Video     VideoSource
	Audio     AudioSource
	// Sink receives video and audio. Required when Video is set.
	Sink Sink
	// AudioSink receives raw PCM for audio-only recordings (Video nil).
	AudioSink   io.WriteCloser
	AudioPeriod time.Duration
	// Duration stops the recording after the given time. Zero records until
	// the context is cancelled.
	Duration time.Duration
	Inhibit  Inhibitor
}

// Stats are counters of a finished or running recording.
type Stats struct {
	Frames     uint64
	Repeats    uint64
	AudioBytes uint64
	Elapsed    time.Duration
}

// Recorder runs one recording. It is not reusable.
type Recorder struct {
	opts Options

	frames, repeats, audioBytes atomic.Uint64
	started                     atomic.Int64
	stopped                     atomic.Int64
}

// New validates opts and returns a Recorder.
func New(opts Options) (*Recorder, error) {
	switch {
	case opts.Video != nil && opts.Sink == nil:
		return nil, errors.New("video recording needs a sink")
	case opts.Video == nil && opts.Audio == nil:
		return nil, errors.New("nothing to record")
	case opts.Video == nil && opts.AudioSink == nil:
		return nil, errors.New("audio-only recording needs an audio sink")
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = 30
	}
	if opts.AudioPeriod <= 0 {
		opts.AudioPeriod = DefaultAudioPeriod
	}
	return &Recorder{opts: opts}, nil
}

// Stats returns the current counters.
func (r *Recorder) Stats() Stats {
	s := Stats{
		Frames:     r.frames.Load(),
		Repeats:    r.repeats.Load(),
		AudioBytes: r.audioBytes.Load(),
	}
	if start := r.started.Load(); start != 0 {
		end := r.stopped.Load()
		if end == 0 {
			end = time.Now().UnixNano()
		}
		s.Elapsed = time.Duration(end - start)
	}
	return s
}

// Run records until ctx is done, Duration elapses or a write fails. The
// sink is always closed before Run returns; its error is joined with the
// first write error.
func (r *Recorder) Run(ctx context.Context) error {
	if r.opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Duration)
		defer cancel()
	}

	if r.opts.Inhibit != nil {
		c, err := r.opts.Inhibit("Recording screen")
		if err != nil {
			log.Warn("idle inhibition unavailable", logging.KeyError, err)
		} else if c != nil {
			defer c.Close()
		}
	}

	if r.opts.Audio != nil {
		if err := r.opts.Audio.Start(); err != nil {
			return errors.Join(fmt.Errorf("start audio: %w", err), r.closeSink())
		}
	}

	r.started.Store(time.Now().UnixNano())
	log.Info("recording started", "fps", r.opts.FrameRate, "video", r.opts.Video != nil, "audio", r.opts.Audio != nil)

	g, gctx := errgroup.WithContext(ctx)
	if r.opts.Video != nil {
		g.Go(func() error { return r.videoLoop(gctx) })
		if r.opts.Audio != nil {
			period := time.Second / time.Duration(r.opts.FrameRate)
			g.Go(func() error { return r.audioLoop(gctx, period, r.opts.Sink.WriteAudio) })
		}
	} else {
		g.Go(func() error {
			return r.audioLoop(gctx, r.opts.AudioPeriod, func(p []byte) error {
				_, err := r.opts.AudioSink.Write(p)
				return err
			})
		})
	}
	err := g.Wait()
	r.stopped.Store(time.Now().UnixNano())

	if r.opts.Audio != nil {
		if stopErr := r.opts.Audio.Stop(); stopErr != nil {
			log.Warn("stop audio", logging.KeyError, stopErr)
		}
	}
	err = errors.Join(err, r.closeSink())

	st := r.Stats()
	log.Info("recording stopped", "frames", st.Frames, "repeats", st.Repeats, "audio_bytes", st.AudioBytes, "elapsed", st.Elapsed, logging.KeyError, err)
	return err
}

func (r *Recorder) closeSink() error {
	if r.opts.Video != nil {
		return r.opts.Sink.Close()
	}
	return r.opts.AudioSink.Close()
}

func (r *Recorder) videoLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(r.opts.FrameRate))
	defer ticker.Stop()

	for {
		f := r.opts.Video.Next()
		if f == nil {
			f = encoder.RepeatFrame
			r.repeats.Add(1)
		}
		if err := r.opts.Sink.WriteFrame(f); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
		r.frames.Add(1)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// chunkSize is the whole-frame byte count covering period.
func chunkSize(f audio.Format, period time.Duration) int {
	n := int(int64(f.BytesPerSecond()) * int64(period) / int64(time.Second))
	if align := f.BlockAlign(); align > 0 {
		n -= n % align
		n = max(n, align)
	}
	return n
}

func (r *Recorder) audioLoop(ctx context.Context, period time.Duration, write func([]byte) error) error {
	buf := make([]byte, chunkSize(r.opts.Audio.Format(), period))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		n, err := io.ReadFull(r.opts.Audio, buf)
		if err != nil {
			return fmt.Errorf("read audio: %w", err)
		}
		if err := write(buf[:n]); err != nil {
			return fmt.Errorf("write audio: %w", err)
		}
		r.audioBytes.Add(uint64(n))
	}
}
