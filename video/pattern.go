// Package video produces raw frames for the encoder. The only built-in
// source is a synthetic test pattern used for smoke recordings and encoder
// checks; platform capture backends plug in through the same Next method.
package video

import (
	"fmt"

	"go2tv.app/screenrec/encoder"
	"go2tv.app/screenrec/internal/bufpool"
)

// PatternOptions configure NewPattern.
type PatternOptions struct {
	Width  int
	Height int
	Format encoder.PixelFormat
	// Static draws the first frame only; later calls to Next report no
	// change so the recorder repeats it.
	Static bool
}

// Pattern draws a vertical bar sweeping across a gradient.
type Pattern struct {
	opts  PatternOptions
	pool  *bufpool.Pool
	bar   int
	frame uint64
}

// NewPattern returns a Pattern producing opts.Width x opts.Height frames.
func NewPattern(opts PatternOptions) (*Pattern, error) {
	if opts.Format == 0 {
		opts.Format = encoder.PixelFormatNV12
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid pattern size %dx%d", opts.Width, opts.Height)
	}
	if opts.Format == encoder.PixelFormatNV12 && (opts.Width%2 != 0 || opts.Height%2 != 0) {
		return nil, fmt.Errorf("nv12 pattern needs even dimensions, got %dx%d", opts.Width, opts.Height)
	}
	size := opts.Format.FrameSize(opts.Width, opts.Height)
	if size == 0 {
		return nil, fmt.Errorf("unsupported pixel format %v", opts.Format)
	}
	bar := max(opts.Width/16, 2)
	bar += bar % 2
	return &Pattern{opts: opts, pool: bufpool.New(size, 4), bar: bar}, nil
}

// Size reports the frame dimensions and layout.
func (p *Pattern) Size() (width, height int, format encoder.PixelFormat) {
	return p.opts.Width, p.opts.Height, p.opts.Format
}

// Next returns the next frame, or nil when the picture has not changed.
// The frame's buffer returns to the pattern when the frame is released.
func (p *Pattern) Next() *encoder.Frame {
	if p.opts.Static && p.frame > 0 {
		return nil
	}
	buf := p.pool.Get()
	x := p.barOffset()
	switch p.opts.Format {
	case encoder.PixelFormatNV12:
		p.drawNV12(buf, x)
	default:
		p.drawBGRA(buf, x)
	}
	p.frame++
	return &encoder.Frame{
		Pix:       buf,
		Width:     p.opts.Width,
		Height:    p.opts.Height,
		Format:    p.opts.Format,
		OnRelease: func() { p.pool.Put(buf) },
	}
}

func (p *Pattern) barOffset() int {
	span := p.opts.Width - p.bar
	if span <= 0 {
		return 0
	}
	// 4 pixels per frame, even so the NV12 chroma stays aligned.
	return int((p.frame * 4) % uint64(span+1) &^ 1)
}

func (p *Pattern) inBar(col, x int) bool {
	return col >= x && col < x+p.bar
}

func (p *Pattern) drawNV12(buf []byte, x int) {
	w, h := p.opts.Width, p.opts.Height
	for row := 0; row < h; row++ {
		line := buf[row*w : (row+1)*w]
		base := byte(16 + row*128/h)
		for col := range line {
			if p.inBar(col, x) {
				line[col] = 235
			} else {
				line[col] = base
			}
		}
	}
	uv := buf[w*h:]
	for i := range uv {
		uv[i] = 128
	}
}

func (p *Pattern) drawBGRA(buf []byte, x int) {
	w, h := p.opts.Width, p.opts.Height
	for row := 0; row < h; row++ {
		shade := byte(32 + row*128/h)
		for col := 0; col < w; col++ {
			px := buf[(row*w+col)*4:]
			if p.inBar(col, x) {
				px[0], px[1], px[2] = 255, 255, 255
			} else {
				px[0], px[1], px[2] = shade, 24, 24
			}
			px[3] = 255
		}
	}
}
