// Package encoder streams raw video frames and PCM audio into an encoder
// subprocess over local channels.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go2tv.app/screenrec/internal/bufpool"
	"go2tv.app/screenrec/internal/logging"
	"go2tv.app/screenrec/internal/pipe"
	"go2tv.app/screenrec/internal/supervisor"
)

var log = logging.L("encoder")

// Stats are running counters of a Writer.
type Stats struct {
	Frames       uint64
	Repeats      uint64
	VideoBytes   uint64
	AudioBlocks  uint64
	AudioBytes   uint64
	DroppedAudio uint64
}

// Writer feeds one encoder process. WriteFrame and WriteAudio may be called
// from different goroutines; calls on the same input are serialized.
type Writer struct {
	opts *Options
	sup  *supervisor.Supervisor
	proc *supervisor.Process

	videoCh *pipe.Channel
	audioCh *pipe.Channel
	video   *lane
	audio   *lane

	frameSize int
	staging   []byte
	framePool *bufpool.Pool
	audioPool *bufpool.Pool

	closing chan struct{}
	abort   chan struct{}
	closed  atomic.Bool

	frames, repeats, videoBytes atomic.Uint64
	blocks, audioBytes, dropped atomic.Uint64
	lastDropLog                 atomic.Int64

	failMu  sync.Mutex
	failure error

	closeOnce sync.Once
}

// New opens the input channels, starts the encoder through sup and returns
// a Writer feeding it. Both channels are listening before the encoder is
// spawned. Cancelling ctx asks the encoder to stop.
func New(ctx context.Context, sup *supervisor.Supervisor, options *Options) (*Writer, error) {
	opts, err := normalizeOptions(options)
	if err != nil {
		return nil, err
	}

	frameSize := opts.Video.Format.FrameSize(opts.Video.Width, opts.Video.Height)

	videoCh, err := pipe.Listen(opts.ChannelPrefix, frameSize)
	if err != nil {
		return nil, fmt.Errorf("video channel: %w", err)
	}

	cleanup := true
	var audioCh *pipe.Channel
	defer func() {
		if !cleanup {
			return
		}
		_ = videoCh.Close()
		if audioCh != nil {
			_ = audioCh.Close()
		}
	}()

	audioURL := ""
	if opts.Audio != nil {
		audioCh, err = pipe.Listen(opts.ChannelPrefix, opts.AudioBufferSize)
		if err != nil {
			return nil, fmt.Errorf("audio channel: %w", err)
		}
		audioURL = audioCh.URL()
	}

	proc, err := sup.Start(ctx, supervisor.StartOptions{
		Args:      buildArgs(opts, videoCh.URL(), audioURL),
		Label:     opts.Label,
		LogOutput: opts.LogOutput,
	})
	if err != nil {
		return nil, err
	}

	w := &Writer{
		opts:      opts,
		sup:       sup,
		proc:      proc,
		videoCh:   videoCh,
		audioCh:   audioCh,
		frameSize: frameSize,
		staging:   make([]byte, frameSize),
		framePool: bufpool.New(frameSize, 3),
		audioPool: bufpool.New(opts.AudioBufferSize, 3),
		closing:   make(chan struct{}),
		abort:     make(chan struct{}),
	}
	w.video = newLane("video", videoCh, w.abort)
	if audioCh != nil {
		w.audio = newLane("audio", audioCh, w.abort)
	}
	go w.watch()

	cleanup = false
	log.Info("encoder writer ready",
		logging.KeyPID, proc.PID(),
		"size", fmt.Sprintf("%dx%d", opts.Video.Width, opts.Video.Height),
		"format", opts.Video.Format.String(),
		"fps", opts.Video.FrameRate,
		"audio", opts.Audio != nil,
	)
	return w, nil
}

func (w *Writer) watch() {
	select {
	case <-w.proc.Done():
		if err := w.proc.Err(); err != nil {
			log.Warn("encoder exited", logging.KeyPID, w.proc.PID(), "code", w.proc.ExitCode(), "error", err)
		}
	case <-w.closing:
	}
	close(w.abort)
}

// Process exposes the encoder process.
func (w *Writer) Process() *supervisor.Process { return w.proc }

// FrameSize is the byte length WriteFrame expects.
func (w *Writer) FrameSize() int { return w.frameSize }

// Options returns the normalized options.
func (w *Writer) Options() Options { return *w.opts }

// Stats returns a snapshot of the counters.
func (w *Writer) Stats() Stats {
	return Stats{
		Frames:       w.frames.Load(),
		Repeats:      w.repeats.Load(),
		VideoBytes:   w.videoBytes.Load(),
		AudioBlocks:  w.blocks.Load(),
		AudioBytes:   w.audioBytes.Load(),
		DroppedAudio: w.dropped.Load(),
	}
}

// WriteFrame queues one frame. The frame is released before WriteFrame
// returns. RepeatFrame sends the previous frame again.
//
// The call blocks only for the first connection of the video input and for
// the previous frame's write to finish.
func (w *Writer) WriteFrame(f *Frame) error {
	if f == nil {
		return errors.New("nil frame")
	}
	defer f.Release()

	if w.closed.Load() {
		return ErrClosed
	}

	l := w.video
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := w.checkRunning(); err != nil {
		return err
	}
	if err := w.handshake(l); err != nil {
		return err
	}

	repeat := f == RepeatFrame
	if !repeat {
		if f.Width != w.opts.Video.Width || f.Height != w.opts.Video.Height ||
			(f.Format != 0 && f.Format != w.opts.Video.Format) || len(f.Pix) < w.frameSize {
			return fmt.Errorf("%w: got %dx%d %v (%d bytes)", ErrFrameSize, f.Width, f.Height, f.Format, len(f.Pix))
		}
		copy(w.staging, f.Pix[:w.frameSize])
	}

	done, err := l.await(w.opts.FrameWriteTimeout)
	if err := w.writeFailed(l, err); err != nil {
		return err
	}
	if !done {
		if err := w.checkRunning(); err != nil {
			return err
		}
		return fmt.Errorf("video: %w", ErrWriteTimeout)
	}
	// A clean exit ended the previous write; nothing is left to read this one.
	if err := w.checkRunning(); err != nil {
		return err
	}

	buf := w.framePool.Get()
	copy(buf, w.staging)
	l.submit(buf, func() { w.framePool.Put(buf) })

	w.frames.Add(1)
	w.videoBytes.Add(uint64(w.frameSize))
	if repeat {
		w.repeats.Add(1)
	}
	return nil
}

// WriteAudio queues one block of interleaved 16-bit PCM. p is copied and
// not retained. Without an audio input it does nothing. If the previous
// block is still being written after AudioWriteTimeout the new block is
// dropped.
func (w *Writer) WriteAudio(p []byte) error {
	if w.audio == nil || len(p) == 0 {
		return nil
	}
	if w.closed.Load() {
		return ErrClosed
	}

	l := w.audio
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := w.checkRunning(); err != nil {
		return err
	}
	if err := w.handshake(l); err != nil {
		return err
	}

	done, err := l.await(w.opts.AudioWriteTimeout)
	if err := w.writeFailed(l, err); err != nil {
		return err
	}
	if !done {
		if err := w.checkRunning(); err != nil {
			return err
		}
		n := w.dropped.Add(1)
		if logging.Every(&w.lastDropLog, 5*time.Second) {
			log.Warn("audio write still pending, dropping block", "dropped", n, "bytes", len(p))
		}
		return nil
	}
	if err := w.checkRunning(); err != nil {
		return err
	}

	var buf []byte
	var release func()
	if len(p) <= w.audioPool.Size() {
		pooled := w.audioPool.Get()
		buf = pooled[:len(p)]
		release = func() { w.audioPool.Put(pooled) }
	} else {
		buf = make([]byte, len(p))
	}
	copy(buf, p)
	l.submit(buf, release)

	w.blocks.Add(1)
	w.audioBytes.Add(uint64(len(p)))
	return nil
}

func (w *Writer) handshake(l *lane) error {
	err := l.handshake(w.opts.ConnectTimeout)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pipe.ErrConnectTimeout):
		log.Warn("encoder did not open input", logging.KeyChannel, l.name, "timeout", w.opts.ConnectTimeout)
		return fmt.Errorf("%s: %w", l.name, ErrPipeConnectTimeout)
	case errors.Is(err, pipe.ErrAborted):
		if err := w.checkRunning(); err != nil {
			return err
		}
		return ErrClosed
	default:
		return w.terminated(err)
	}
}

// checkRunning fails once the encoder has exited or Close started.
func (w *Writer) checkRunning() error {
	if w.proc.Exited() {
		return &TerminatedError{ExitCode: w.proc.ExitCode(), Err: w.proc.Err()}
	}
	if w.closed.Load() {
		return ErrClosed
	}
	return nil
}

// writeFailed classifies the result of a finished write. A failure caused
// by the encoder exiting cleanly is not an error.
func (w *Writer) writeFailed(l *lane, err error) error {
	if err == nil {
		return nil
	}
	w.proc.Wait(exitGrace)
	if w.proc.Exited() && w.proc.State() == supervisor.StateExited {
		log.Debug("write ended by clean encoder exit", logging.KeyChannel, l.name, "error", err)
		return nil
	}
	out := w.terminated(fmt.Errorf("%s write: %w", l.name, err))
	w.recordFailure(out)
	return out
}

func (w *Writer) terminated(cause error) error {
	if w.proc.Exited() {
		return &TerminatedError{ExitCode: w.proc.ExitCode(), Err: cause}
	}
	return &TerminatedError{ExitCode: -1, Err: cause}
}

func (w *Writer) recordFailure(err error) {
	w.failMu.Lock()
	w.failure = err
	w.failMu.Unlock()
}

// Close drains outstanding writes, closes the inputs and stops the
// encoder: gracefully first, forcibly if it does not exit in time. It
// returns the last write failure. Subsequent calls return nil.
func (w *Writer) Close() error {
	var out error
	w.closeOnce.Do(func() {
		w.closed.Store(true)
		close(w.closing)

		for _, l := range []*lane{w.video, w.audio} {
			if l == nil {
				continue
			}
			l.mu.Lock()
			done, err := l.drain(w.opts.DrainTimeout)
			if !done {
				log.Warn("pending write did not finish", logging.KeyChannel, l.name, "timeout", w.opts.DrainTimeout)
			}
			_ = w.writeFailed(l, err)
			l.mu.Unlock()
		}

		if err := w.videoCh.Close(); err != nil {
			log.Debug("close video channel", "error", err)
		}
		if w.audioCh != nil {
			if err := w.audioCh.Close(); err != nil {
				log.Debug("close audio channel", "error", err)
			}
		}

		stopProcess(w.sup, w.proc, w.opts.StopTimeout, w.opts.KillWait, false)

		w.failMu.Lock()
		out = w.failure
		w.failMu.Unlock()

		s := w.Stats()
		log.Info("encoder writer closed",
			"frames", s.Frames,
			"repeats", s.Repeats,
			"audioBlocks", s.AudioBlocks,
			"droppedAudio", s.DroppedAudio,
			"exitCode", w.proc.ExitCode(),
		)
	})
	return out
}

// stopProcess asks the encoder to finish and kills it if it does not exit
// within stopTimeout. eofOnly closes stdin without the quit command.
func stopProcess(sup *supervisor.Supervisor, proc *supervisor.Process, stopTimeout, killWait time.Duration, eofOnly bool) {
	var err error
	if eofOnly {
		err = proc.CloseStdin()
	} else {
		err = sup.GracefulStop(proc)
	}
	if err != nil && !proc.Exited() {
		log.Debug("graceful stop", logging.KeyPID, proc.PID(), "error", err)
	}
	if proc.Wait(stopTimeout) {
		return
	}
	log.Warn("encoder did not stop in time, killing", logging.KeyPID, proc.PID(), "timeout", stopTimeout)
	if !proc.Kill(killWait) {
		log.Warn("encoder still running after kill", logging.KeyPID, proc.PID())
	}
}
