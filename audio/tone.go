package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"time"
)

// ToneSource generates a sine wave (or silence when Frequency is 0) in
// real time, delivering a chunk every Interval.
type ToneSource struct {
	format    Format
	Frequency float64
	Amplitude float64
	Interval  time.Duration

	mu    sync.Mutex
	stop  chan struct{}
	done  chan struct{}
	phase float64
}

// NewToneSource returns a 16-bit tone generator. freq 0 yields silence.
func NewToneSource(rate, channels int, freq float64) *ToneSource {
	return &ToneSource{
		format:    PCM16(rate, channels),
		Frequency: freq,
		Amplitude: 0.25,
		Interval:  20 * time.Millisecond,
	}
}

func (t *ToneSource) Format() Format { return t.format }

func (t *ToneSource) Start(onData func([]byte)) error {
	if onData == nil {
		return errors.New("nil data callback")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return errors.New("tone source already started")
	}
	interval := t.Interval
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.run(onData, interval, t.stop, t.done)
	return nil
}

func (t *ToneSource) Stop() error {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

func (t *ToneSource) run(onData func([]byte), interval time.Duration, stop, done chan struct{}) {
	defer close(done)

	frames := int(int64(t.format.SampleRate) * int64(interval) / int64(time.Second))
	if frames <= 0 {
		frames = 1
	}
	chunk := make([]byte, frames*t.format.BlockAlign())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.fill(chunk)
			onData(chunk)
		}
	}
}

// fill renders the next len(chunk) bytes of the waveform.
func (t *ToneSource) fill(chunk []byte) {
	if t.Frequency <= 0 {
		clear(chunk)
		return
	}
	step := 2 * math.Pi * t.Frequency / float64(t.format.SampleRate)
	align := t.format.BlockAlign()
	for i := 0; i+align <= len(chunk); i += align {
		v := uint16(int16(math.Sin(t.phase) * t.Amplitude * 32767))
		for c := 0; c < t.format.Channels; c++ {
			binary.LittleEndian.PutUint16(chunk[i+2*c:], v)
		}
		t.phase += step
		if t.phase > 2*math.Pi {
			t.phase -= 2 * math.Pi
		}
	}
}
