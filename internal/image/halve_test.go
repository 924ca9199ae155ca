package image

import (
	"errors"
	"image"
	"testing"
)

func TestHalfSize(t *testing.T) {
	tests := []struct {
		in, want image.Point
	}{
		{image.Pt(4096, 4096), image.Pt(2048, 2048)},
		{image.Pt(101, 51), image.Pt(50, 25)},
		{image.Pt(1, 7), image.Pt(1, 3)},
		{image.Pt(1, 1), image.Pt(1, 1)},
	}
	for _, tt := range tests {
		if got := HalfSize(tt.in); got != tt.want {
			t.Errorf("HalfSize(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHalveAverages(t *testing.T) {
	src := mustBuffer(t, 2, 2)
	src.Set(0, 0, 0, 0, 0, 255)
	src.Set(1, 0, 100, 0, 0, 255)
	src.Set(0, 1, 0, 100, 0, 255)
	src.Set(1, 1, 100, 100, 200, 255)

	dst := Halve(src)
	if dst.Size() != image.Pt(1, 1) {
		t.Fatalf("Size() = %v, want 1x1", dst.Size())
	}
	r, g, b, a := dst.At(0, 0)
	if r != 50 || g != 50 || b != 50 || a != 255 {
		t.Errorf("At(0,0) = %d,%d,%d,%d, want 50,50,50,255", r, g, b, a)
	}
}

func TestHalveOddEdges(t *testing.T) {
	src := mustBuffer(t, 1, 3)
	src.Fill(80, 80, 80, 80)
	dst := Halve(src)
	if dst.Size() != image.Pt(1, 1) {
		t.Fatalf("Size() = %v, want 1x1", dst.Size())
	}
	if r, _, _, _ := dst.At(0, 0); r != 80 {
		t.Errorf("clamped average = %d, want 80", r)
	}
}

func TestHalveRowsBandsMatchWhole(t *testing.T) {
	src := mustBuffer(t, 300, 257)
	for y := range 257 {
		for x := range 300 {
			src.Set(x, y, uint8(x), uint8(y), uint8(x^y), 255)
		}
	}
	whole := Halve(src)

	banded := mustBuffer(t, 150, 128)
	for y := 0; y < 128; y += 40 {
		if err := HalveRows(banded, src, y, y+40); err != nil {
			t.Fatalf("HalveRows(%d) error = %v", y, err)
		}
	}
	for i := range whole.Pix() {
		if whole.Pix()[i] != banded.Pix()[i] {
			t.Fatalf("byte %d differs: whole %d, banded %d", i, whole.Pix()[i], banded.Pix()[i])
		}
	}
}

func TestHalveRowsSizeMismatch(t *testing.T) {
	err := HalveRows(mustBuffer(t, 3, 3), mustBuffer(t, 8, 8), 0, 3)
	if !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("HalveRows() error = %v, want ErrSizeMismatch", err)
	}
}
