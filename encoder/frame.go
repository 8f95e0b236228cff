package encoder

import "fmt"

// PixelFormat is the raw layout of submitted frames.
type PixelFormat int

const (
	// PixelFormatNV12 is a full-resolution Y plane followed by an interleaved
	// half-resolution UV plane, 12 bits per pixel.
	PixelFormatNV12 PixelFormat = iota + 1
	// PixelFormatBGRA is packed 32-bit B,G,R,A.
	PixelFormatBGRA
)

func (f PixelFormat) String() string {
	switch f {
	case PixelFormatNV12:
		return "nv12"
	case PixelFormatBGRA:
		return "bgra"
	default:
		return fmt.Sprintf("pixfmt(%d)", int(f))
	}
}

// FrameSize is the byte length of one width x height frame.
func (f PixelFormat) FrameSize(width, height int) int {
	switch f {
	case PixelFormatNV12:
		return width * height * 3 / 2
	case PixelFormatBGRA:
		return width * height * 4
	default:
		return 0
	}
}

// ParsePixelFormat accepts "nv12" and "bgra" (or "rgb32").
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch s {
	case "nv12", "NV12":
		return PixelFormatNV12, nil
	case "bgra", "BGRA", "rgb32", "RGB32":
		return PixelFormatBGRA, nil
	default:
		return 0, fmt.Errorf("unknown pixel format %q", s)
	}
}

// Frame is one captured image. Submitting a frame hands it to the writer,
// which calls OnRelease once its pixels have been copied.
type Frame struct {
	Pix       []byte
	Width     int
	Height    int
	Format    PixelFormat
	OnRelease func()
}

// RepeatFrame asks the writer to send the previous frame again.
var RepeatFrame = &Frame{}

// Release hands the frame back to its producer.
func (f *Frame) Release() {
	if f == nil || f.OnRelease == nil {
		return
	}
	fn := f.OnRelease
	f.OnRelease = nil
	fn()
}
