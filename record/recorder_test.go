package record

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"go2tv.app/screenrec/audio"
	"go2tv.app/screenrec/encoder"
)

type fakeSink struct {
	mu       sync.Mutex
	frames   int
	repeats  int
	audio    int
	closed   int
	failAt   int
	closeErr error
}

func (s *fakeSink) WriteFrame(f *encoder.Frame) error {
	defer f.Release()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt > 0 && s.frames+1 == s.failAt {
		return encoder.ErrEncoderTerminated
	}
	s.frames++
	if f == encoder.RepeatFrame {
		s.repeats++
	}
	return nil
}

func (s *fakeSink) WriteAudio(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(p)%4 != 0 {
		return errors.New("unaligned audio block")
	}
	s.audio += len(p)
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return s.closeErr
}

// everyOther changes the picture on every second frame.
type everyOther struct {
	n        int
	released int
}

func (v *everyOther) Next() *encoder.Frame {
	v.n++
	if v.n%2 == 0 {
		return nil
	}
	return &encoder.Frame{Pix: make([]byte, 6), Width: 2, Height: 2, OnRelease: func() { v.released++ }}
}

type silence struct {
	started, stopped bool
}

func (s *silence) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func (s *silence) Format() audio.Format { return audio.PCM16(48000, 2) }

func (s *silence) Start() error {
	s.started = true
	return nil
}

func (s *silence) Stop() error {
	s.stopped = true
	return nil
}

type closer struct{ closed bool }

func (c *closer) Close() error {
	c.closed = true
	return nil
}

func TestRunVideoAndAudio(t *testing.T) {
	sink := &fakeSink{}
	src := &everyOther{}
	snd := &silence{}
	inh := &closer{}
	var reason string

	r, err := New(Options{
		FrameRate: 20,
		Video:     src,
		Audio:     snd,
		Sink:      sink,
		Duration:  300 * time.Millisecond,
		Inhibit: func(why string) (io.Closer, error) {
			reason = why
			return inh, nil
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if sink.closed != 1 {
		t.Fatalf("sink closed %d times", sink.closed)
	}
	if sink.frames < 3 || sink.repeats == 0 {
		t.Fatalf("frames = %d repeats = %d", sink.frames, sink.repeats)
	}
	if sink.audio == 0 || sink.audio%(48000*4/20) != 0 {
		t.Fatalf("audio bytes = %d, want a multiple of one frame period", sink.audio)
	}
	if src.released != sink.frames-sink.repeats {
		t.Fatalf("released %d of %d frames", src.released, sink.frames-sink.repeats)
	}
	if !snd.started || !snd.stopped {
		t.Fatalf("audio source start/stop = %v/%v", snd.started, snd.stopped)
	}
	if !inh.closed || reason == "" {
		t.Fatal("inhibition not released")
	}
	st := r.Stats()
	if st.Frames != uint64(sink.frames) || st.Elapsed < 250*time.Millisecond {
		t.Fatalf("stats = %+v", st)
	}
}

func TestRunStopsOnWriteError(t *testing.T) {
	sink := &fakeSink{failAt: 3, closeErr: errors.New("close failed")}
	r, err := New(Options{FrameRate: 50, Video: &everyOther{}, Sink: sink})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = r.Run(context.Background())
	if !errors.Is(err, encoder.ErrEncoderTerminated) {
		t.Fatalf("err = %v, want ErrEncoderTerminated", err)
	}
	if !errors.Is(err, sink.closeErr) {
		t.Fatalf("err = %v, want close error joined", err)
	}
	if sink.closed != 1 || sink.frames != 2 {
		t.Fatalf("closed = %d frames = %d", sink.closed, sink.frames)
	}
}

func TestRunCancel(t *testing.T) {
	sink := &fakeSink{}
	r, err := New(Options{FrameRate: 30, Video: &everyOther{}, Sink: sink})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if sink.closed != 1 {
		t.Fatalf("sink closed %d times", sink.closed)
	}
}

type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func TestRunAudioOnlyWithMixer(t *testing.T) {
	mixer, err := audio.NewMixer([]audio.Source{audio.NewToneSource(44100, 1, 440)}, nil)
	if err != nil {
		t.Fatalf("NewMixer: %v", err)
	}
	out := &bufferCloser{}
	r, err := New(Options{
		Audio:       mixer,
		AudioSink:   out,
		AudioPeriod: 50 * time.Millisecond,
		Duration:    220 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.closed {
		t.Fatal("audio sink not closed")
	}
	chunk := chunkSize(mixer.Format(), 50*time.Millisecond)
	if out.Len() == 0 || out.Len()%chunk != 0 {
		t.Fatalf("wrote %d bytes, want a multiple of %d", out.Len(), chunk)
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("empty options accepted")
	}
	if _, err := New(Options{Video: &everyOther{}}); err == nil {
		t.Fatal("video without sink accepted")
	}
	if _, err := New(Options{Audio: &silence{}}); err == nil {
		t.Fatal("audio-only without sink accepted")
	}
}

func TestChunkSize(t *testing.T) {
	if got := chunkSize(audio.PCM16(48000, 2), time.Second/30); got != 6400 {
		t.Fatalf("chunk = %d, want 6400", got)
	}
	if got := chunkSize(audio.PCM16(44100, 2), time.Second/30); got%4 != 0 {
		t.Fatalf("chunk %d not aligned", got)
	}
}
