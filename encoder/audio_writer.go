package encoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go2tv.app/screenrec/internal/logging"
	"go2tv.app/screenrec/internal/supervisor"
)

// AudioWriterOptions configure an audio-only recording fed through the
// encoder's stdin.
type AudioWriterOptions struct {
	Audio      AudioOptions
	OutputArgs []string
	Label      string
	LogOutput  io.Writer

	StopTimeout time.Duration
	KillWait    time.Duration
}

// AudioWriter streams PCM into an encoder's standard input.
type AudioWriter struct {
	opts AudioWriterOptions
	sup  *supervisor.Supervisor
	proc *supervisor.Process

	mu        sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	failure   error

	blocks, bytes atomic.Uint64
}

// NewAudioWriter starts an encoder reading s16le PCM from stdin.
func NewAudioWriter(ctx context.Context, sup *supervisor.Supervisor, opts AudioWriterOptions) (*AudioWriter, error) {
	if len(opts.OutputArgs) == 0 {
		return nil, errors.New("output arguments are required")
	}
	opts.Audio = normalizeAudio(opts.Audio)
	if opts.Label == "" {
		opts.Label = "audio-recorder"
	}
	defaultDuration(&opts.StopTimeout, defaultStopTimeout)
	defaultDuration(&opts.KillWait, defaultKillWait)

	proc, err := sup.Start(ctx, supervisor.StartOptions{
		Args:      buildAudioOnlyArgs(opts.Audio, opts.OutputArgs),
		Label:     opts.Label,
		LogOutput: opts.LogOutput,
	})
	if err != nil {
		return nil, err
	}

	log.Info("audio writer ready", logging.KeyPID, proc.PID(), "rate", opts.Audio.SampleRate, "channels", opts.Audio.Channels)
	return &AudioWriter{opts: opts, sup: sup, proc: proc}, nil
}

// Process exposes the encoder process.
func (w *AudioWriter) Process() *supervisor.Process { return w.proc }

// Format returns the normalized PCM format.
func (w *AudioWriter) Format() AudioOptions { return w.opts.Audio }

// Write sends one PCM block. It blocks while the encoder's stdin is full.
func (w *AudioWriter) Write(p []byte) (int, error) {
	if w.closed.Load() {
		return 0, ErrClosed
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.proc.Exited() {
		return 0, &TerminatedError{ExitCode: w.proc.ExitCode(), Err: w.proc.Err()}
	}

	n, err := w.proc.Stdin().Write(p)
	if err != nil {
		w.proc.Wait(exitGrace)
		if w.proc.Exited() && w.proc.State() == supervisor.StateExited {
			return n, nil
		}
		code := -1
		if w.proc.Exited() {
			code = w.proc.ExitCode()
		}
		terr := &TerminatedError{ExitCode: code, Err: fmt.Errorf("stdin write: %w", err)}
		w.failure = terr
		return n, terr
	}
	w.blocks.Add(1)
	w.bytes.Add(uint64(n))
	return n, nil
}

// Close ends the input and waits for the encoder to finish, killing it if
// it takes longer than StopTimeout. It returns the last write failure once.
func (w *AudioWriter) Close() error {
	var out error
	w.closeOnce.Do(func() {
		w.closed.Store(true)

		// Closing stdin also unblocks a Write stuck on a full pipe.
		stopProcess(w.sup, w.proc, w.opts.StopTimeout, w.opts.KillWait, true)

		w.mu.Lock()
		out = w.failure
		w.mu.Unlock()
		log.Info("audio writer closed", "blocks", w.blocks.Load(), "bytes", w.bytes.Load(), "exitCode", w.proc.ExitCode())
	})
	return out
}
