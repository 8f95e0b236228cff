package audio

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go2tv.app/screenrec/internal/logging"
)

var log = logging.L("mixer")

const (
	// DefaultRate is the output rate when there are no sources.
	DefaultRate = 48000
	// MinRate is the lowest output rate the mixer will choose.
	MinRate = 44100

	outputChannels = 2
	outputAlign    = outputChannels * 2

	defaultHighWatermark = 600 * time.Millisecond
	defaultTargetLatency = 500 * time.Millisecond
	defaultDropCap       = 100 * time.Millisecond
	minDropBytes         = 1024
)

// MixerOptions tune drift compensation. Zero values select the defaults:
// balancing starts above 600 ms of buffered audio, trims back to 500 ms and
// never drops more than 100 ms (at least 1024 bytes) per Read.
type MixerOptions struct {
	HighWatermark time.Duration
	TargetLatency time.Duration
	DropCap       time.Duration
}

func (o *MixerOptions) normalize() {
	if o.HighWatermark <= 0 {
		o.HighWatermark = defaultHighWatermark
	}
	if o.TargetLatency <= 0 || o.TargetLatency > o.HighWatermark {
		o.TargetLatency = min(defaultTargetLatency, o.HighWatermark)
	}
	if o.DropCap <= 0 {
		o.DropCap = defaultDropCap
	}
}

// SourceStats describe one mixer input.
type SourceStats struct {
	Format     Format
	Buffered   int
	Balanced   uint64
	Overflowed uint64
}

type sourceState struct {
	src    Source
	format Format
	buf    *elasticBuffer

	high, target, dropCap int

	resampler *linearResampler
	raw       []byte
	balanced  atomic.Uint64
}

func durationBytes(d time.Duration, f Format) int {
	n := int(int64(f.BytesPerSecond()) * int64(d) / int64(time.Second))
	return n - n%f.BlockAlign()
}

func newSourceState(src Source, opts MixerOptions, targetRate int) *sourceState {
	f := src.Format()
	align := f.BlockAlign()
	s := &sourceState{
		src:     src,
		format:  f,
		high:    durationBytes(opts.HighWatermark, f),
		target:  durationBytes(opts.TargetLatency, f),
		dropCap: durationBytes(opts.DropCap, f),
	}
	if s.dropCap < minDropBytes {
		s.dropCap = minDropBytes + (align-minDropBytes%align)%align
	}
	// Room for the watermark plus one balancing pass so overflow never
	// preempts balancing.
	s.buf = newElasticBuffer(s.high+s.dropCap, align)
	if f.SampleRate != targetRate {
		s.resampler = newLinearResampler(f.SampleRate, targetRate)
	}
	return s
}

// passthrough reports whether the source already matches the output.
func (s *sourceState) passthrough(targetRate int) bool {
	return !s.format.Float && s.format.BitsPerSample == 16 &&
		s.format.Channels == outputChannels && s.format.SampleRate == targetRate
}

// balance trims the backlog when it grows past the high watermark.
func (s *sourceState) balance() int {
	n := s.buf.Len()
	if n <= s.high {
		return 0
	}
	drop := min(n-s.target, s.dropCap)
	dropped := s.buf.Discard(drop)
	s.balanced.Add(uint64(dropped))
	return dropped
}

// readStereo fills dst with decoded stereo frames at the source rate.
func (s *sourceState) readStereo(dst []float32) {
	frames := len(dst) / 2
	n := frames * s.format.BlockAlign()
	if cap(s.raw) < n {
		s.raw = make([]byte, n)
	}
	raw := s.raw[:n]
	s.buf.Read(raw)
	decodeStereo(dst, raw, s.format)
}

// pull fills out with stereo frames at the output rate.
func (s *sourceState) pull(out []float32) {
	if s.resampler == nil {
		s.readStereo(out)
		return
	}
	s.resampler.process(out, s.readStereo)
}

// Mixer combines sources into 16-bit stereo PCM at TargetRate.
type Mixer struct {
	rate    int
	sources []*sourceState

	mu      sync.Mutex
	carry   []byte
	scratch []byte
	mix     []float32
	tmp     []float32
	started bool
}

// TargetRate picks the output rate for the given source rates: the most
// common one, ties going to the higher rate, never below MinRate.
// Without sources it is DefaultRate.
func TargetRate(rates []int) int {
	if len(rates) == 0 {
		return DefaultRate
	}
	counts := make(map[int]int)
	for _, r := range rates {
		counts[r]++
	}
	keys := make([]int, 0, len(counts))
	for r := range counts {
		keys = append(keys, r)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] > keys[j]
	})
	return max(keys[0], MinRate)
}

// NewMixer prepares a mixer over sources. Sources are not started.
func NewMixer(sources []Source, options *MixerOptions) (*Mixer, error) {
	var opts MixerOptions
	if options != nil {
		opts = *options
	}
	opts.normalize()

	rates := make([]int, 0, len(sources))
	for i, src := range sources {
		if src == nil {
			return nil, fmt.Errorf("source %d is nil", i)
		}
		if err := src.Format().Validate(); err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
		rates = append(rates, src.Format().SampleRate)
	}

	m := &Mixer{rate: TargetRate(rates)}
	for _, src := range sources {
		m.sources = append(m.sources, newSourceState(src, opts, m.rate))
	}
	log.Debug("mixer configured", "sources", len(sources), "rate", m.rate)
	return m, nil
}

// Format is the output format: 16-bit stereo at TargetRate.
func (m *Mixer) Format() Format { return PCM16(m.rate, outputChannels) }

// Start starts every source, feeding its buffer. On failure already
// started sources are stopped again.
func (m *Mixer) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}
	for i, s := range m.sources {
		buf := s.buf
		if err := s.src.Start(buf.Write); err != nil {
			for _, prev := range m.sources[:i] {
				_ = prev.src.Stop()
			}
			return fmt.Errorf("start source %d (%s): %w", i, s.format, err)
		}
	}
	m.started = true
	return nil
}

// Stop stops every source.
func (m *Mixer) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil
	}
	m.started = false
	var errs []error
	for _, s := range m.sources {
		if err := s.src.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops the sources.
func (m *Mixer) Close() error { return m.Stop() }

// Stats returns a snapshot per source.
func (m *Mixer) Stats() []SourceStats {
	out := make([]SourceStats, len(m.sources))
	for i, s := range m.sources {
		out[i] = SourceStats{
			Format:     s.format,
			Buffered:   s.buf.Len(),
			Balanced:   s.balanced.Load(),
			Overflowed: s.buf.Overflowed(),
		}
	}
	return out
}

// Read fills p completely with mixed audio and never fails. Missing input
// is rendered as silence. Lengths that are not a whole number of frames are
// fine: the remainder of the last frame is returned by the next call.
func (m *Mixer) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.balance()

	n := copy(p, m.carry)
	m.carry = m.carry[:copy(m.carry, m.carry[n:])]
	rest := p[n:]
	if len(rest) == 0 {
		return len(p), nil
	}

	frames := (len(rest) + outputAlign - 1) / outputAlign
	size := frames * outputAlign
	var out []byte
	if size == len(rest) {
		out = rest
	} else {
		if cap(m.scratch) < size {
			m.scratch = make([]byte, size)
		}
		out = m.scratch[:size]
	}

	m.render(out, frames)

	if size != len(rest) {
		k := copy(rest, out)
		m.carry = append(m.carry, out[k:]...)
	}
	return len(p), nil
}

// balance runs on every Read, including reads served entirely from carry.
func (m *Mixer) balance() {
	for _, s := range m.sources {
		if dropped := s.balance(); dropped > 0 {
			log.Debug("balanced source backlog", "format", s.format.String(), "dropped", dropped, "buffered", s.buf.Len())
		}
	}
}

func (m *Mixer) render(out []byte, frames int) {
	switch len(m.sources) {
	case 0:
		clear(out)
		return
	case 1:
		s := m.sources[0]
		if s.passthrough(m.rate) {
			s.buf.Read(out)
			return
		}
		m.ensure(frames)
		s.pull(m.mix)
		encodePCM16(out, m.mix)
		return
	}

	m.ensure(frames)
	clear(m.mix)
	for _, s := range m.sources {
		s.pull(m.tmp)
		for i, v := range m.tmp {
			m.mix[i] += v
		}
	}
	encodePCM16(out, m.mix)
}

func (m *Mixer) ensure(frames int) {
	n := frames * outputChannels
	if cap(m.mix) < n {
		m.mix = make([]float32, n)
		m.tmp = make([]float32, n)
	}
	m.mix = m.mix[:n]
	m.tmp = m.tmp[:n]
}
