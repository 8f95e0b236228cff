// Package audio mixes several asynchronously delivered PCM sources into a
// single 16-bit stereo stream with bounded latency.
package audio

import "fmt"

// Format describes interleaved PCM.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	// Float marks IEEE float samples (BitsPerSample must be 32).
	Float bool
}

// PCM16 returns a signed 16-bit integer format.
func PCM16(rate, channels int) Format {
	return Format{SampleRate: rate, Channels: channels, BitsPerSample: 16}
}

// BlockAlign is the size of one frame (one sample per channel) in bytes.
func (f Format) BlockAlign() int {
	return f.Channels * f.BitsPerSample / 8
}

// BytesPerSecond is the byte rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.BlockAlign()
}

// Validate rejects formats the mixer cannot decode.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("invalid channel count %d", f.Channels)
	}
	switch {
	case f.Float && f.BitsPerSample == 32:
	case !f.Float && (f.BitsPerSample == 8 || f.BitsPerSample == 16 || f.BitsPerSample == 24 || f.BitsPerSample == 32):
	default:
		return fmt.Errorf("unsupported sample format: %d bits float=%v", f.BitsPerSample, f.Float)
	}
	return nil
}

func (f Format) String() string {
	kind := "s"
	if f.Float {
		kind = "f"
	}
	return fmt.Sprintf("%s%d %dHz %dch", kind, f.BitsPerSample, f.SampleRate, f.Channels)
}

// Source delivers captured PCM through the callback given to Start, from a
// goroutine of its own choosing. The slice is only valid during the call.
type Source interface {
	Format() Format
	Start(onData func([]byte)) error
	Stop() error
}
