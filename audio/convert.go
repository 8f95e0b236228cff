package audio

import (
	"encoding/binary"
	"math"
)

// decodeStereo converts whole frames of src (format f) into interleaved
// stereo float32 in dst. Mono is duplicated onto both channels; only the
// first two channels of wider layouts are kept. dst must hold
// 2*len(src)/f.BlockAlign() values.
func decodeStereo(dst []float32, src []byte, f Format) {
	align := f.BlockAlign()
	bps := f.BitsPerSample / 8
	frames := len(src) / align
	for i := 0; i < frames; i++ {
		frame := src[i*align:]
		l := decodeSample(frame, f, bps)
		r := l
		if f.Channels > 1 {
			r = decodeSample(frame[bps:], f, bps)
		}
		dst[2*i] = l
		dst[2*i+1] = r
	}
}

func decodeSample(b []byte, f Format, bps int) float32 {
	if f.Float {
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	}
	switch bps {
	case 1:
		return (float32(b[0]) - 128) / 128
	case 2:
		return float32(int16(binary.LittleEndian.Uint16(b))) / 32768
	case 3:
		v := int32(b[0]) | int32(b[1])<<8 | int32(int8(b[2]))<<16
		return float32(v) / 8388608
	default:
		return float32(int32(binary.LittleEndian.Uint32(b))) / 2147483648
	}
}

// encodePCM16 writes float samples as little-endian signed 16-bit,
// clamping to [-1, 1].
func encodePCM16(dst []byte, src []float32) {
	for i, v := range src {
		binary.LittleEndian.PutUint16(dst[2*i:], uint16(floatToInt16(v)))
	}
}

func floatToInt16(v float32) int16 {
	if v >= 1 {
		return math.MaxInt16
	}
	if v <= -1 {
		return math.MinInt16
	}
	return int16(v * 32767)
}
