package audio

import (
	"bytes"
	"testing"
)

func TestElasticDropsOldest(t *testing.T) {
	b := newElasticBuffer(8, 2)
	b.Write([]byte{1, 2, 3, 4, 5, 6})
	b.Write([]byte{7, 8, 9, 10})

	if b.Len() != 8 {
		t.Fatalf("len = %d, want 8", b.Len())
	}
	p := make([]byte, 10)
	if n := b.Read(p); n != 8 {
		t.Fatalf("read = %d, want 8", n)
	}
	want := []byte{3, 4, 5, 6, 7, 8, 9, 10, 0, 0}
	if !bytes.Equal(p, want) {
		t.Fatalf("got %v, want %v", p, want)
	}
	if b.Overflowed() != 2 {
		t.Fatalf("overflowed = %d, want 2", b.Overflowed())
	}
}

func TestElasticHugeWriteKeepsNewest(t *testing.T) {
	b := newElasticBuffer(4, 2)
	b.Write([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	p := make([]byte, 4)
	b.Read(p)
	if !bytes.Equal(p, []byte{5, 6, 7, 8}) {
		t.Fatalf("got %v", p)
	}
}

func TestElasticPartialFrameWaits(t *testing.T) {
	b := newElasticBuffer(16, 4)
	b.Write([]byte{1, 2, 3, 4, 5, 6})

	p := make([]byte, 8)
	if n := b.Read(p); n != 4 {
		t.Fatalf("read = %d, want 4", n)
	}
	b.Write([]byte{7, 8})
	if n := b.Read(p); n != 4 || !bytes.Equal(p[:4], []byte{5, 6, 7, 8}) {
		t.Fatalf("read = %d %v", n, p)
	}
}

func TestElasticDiscardAligned(t *testing.T) {
	b := newElasticBuffer(16, 4)
	b.Write(make([]byte, 12))
	if got := b.Discard(7); got != 4 {
		t.Fatalf("discard = %d, want 4", got)
	}
	if got := b.Discard(100); got != 8 {
		t.Fatalf("discard = %d, want 8", got)
	}
	if b.Len() != 0 {
		t.Fatalf("len = %d, want 0", b.Len())
	}
}
