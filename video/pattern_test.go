package video

import (
	"testing"

	"go2tv.app/screenrec/encoder"
)

func TestPatternNV12(t *testing.T) {
	p, err := NewPattern(PatternOptions{Width: 64, Height: 32})
	if err != nil {
		t.Fatalf("NewPattern: %v", err)
	}
	f := p.Next()
	if f == nil {
		t.Fatal("first frame is nil")
	}
	if len(f.Pix) != 64*32*3/2 || f.Format != encoder.PixelFormatNV12 {
		t.Fatalf("frame = %d bytes %v", len(f.Pix), f.Format)
	}
	if f.Pix[0] != 235 {
		t.Fatalf("bar not at origin: y = %d", f.Pix[0])
	}
	if f.Pix[64*32] != 128 {
		t.Fatalf("chroma = %d, want 128", f.Pix[64*32])
	}
	f.Release()

	second := p.Next()
	if second.Pix[0] == 235 {
		t.Fatal("bar did not move")
	}
	if second.Pix[4] != 235 {
		t.Fatalf("bar not at x=4: y = %d", second.Pix[4])
	}
	second.Release()
}

func TestPatternBGRA(t *testing.T) {
	p, err := NewPattern(PatternOptions{Width: 33, Height: 5, Format: encoder.PixelFormatBGRA})
	if err != nil {
		t.Fatalf("NewPattern: %v", err)
	}
	f := p.Next()
	defer f.Release()
	if len(f.Pix) != 33*5*4 {
		t.Fatalf("len = %d", len(f.Pix))
	}
	for i := 3; i < len(f.Pix); i += 4 {
		if f.Pix[i] != 255 {
			t.Fatalf("alpha at %d = %d", i, f.Pix[i])
		}
	}
}

func TestPatternReusesBuffers(t *testing.T) {
	p, err := NewPattern(PatternOptions{Width: 16, Height: 16})
	if err != nil {
		t.Fatalf("NewPattern: %v", err)
	}
	f := p.Next()
	f.Release()
	if p.pool.Idle() != 1 {
		t.Fatalf("idle = %d, want 1", p.pool.Idle())
	}
	f = p.Next()
	if p.pool.Idle() != 0 {
		t.Fatalf("idle = %d, want 0", p.pool.Idle())
	}
	f.Release()
}

func TestPatternStatic(t *testing.T) {
	p, err := NewPattern(PatternOptions{Width: 16, Height: 16, Static: true})
	if err != nil {
		t.Fatalf("NewPattern: %v", err)
	}
	p.Next().Release()
	if f := p.Next(); f != nil {
		t.Fatal("static pattern produced a second frame")
	}
}

func TestPatternRejectsOddNV12(t *testing.T) {
	if _, err := NewPattern(PatternOptions{Width: 15, Height: 16}); err == nil {
		t.Fatal("odd nv12 width accepted")
	}
}
