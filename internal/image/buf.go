// Package image provides the pixel buffers behind mipmap levels.
//
// Every level is stored as tightly packed, non-premultiplied RGBA8, which is
// also what gpucontext.TextureCreator expects for uploads. Buffers come from a
// size-keyed Pool so evicted levels can be reused by the next decode or scale
// of the same dimensions.
package image

import (
	"errors"
	"image"
)

// Common errors for buffer operations.
var (
	// ErrInvalidDimensions is returned when width or height is non-positive.
	ErrInvalidDimensions = errors.New("image: invalid dimensions")

	// ErrDataTooSmall is returned when provided pixel data is smaller than required.
	ErrDataTooSmall = errors.New("image: data buffer too small")

	// ErrSizeMismatch is returned when two buffers must agree on size and don't.
	ErrSizeMismatch = errors.New("image: buffer size mismatch")
)

// BytesPerPixel is the size of one RGBA8 pixel.
const BytesPerPixel = 4

// Buffer is an RGBA8 pixel buffer with rows packed back to back.
//
// Thread safety: concurrent reads are safe. Writes need external
// synchronization; producers own a buffer exclusively until they publish it.
type Buffer struct {
	pix    []byte
	width  int
	height int
}

// NewBuffer allocates a zeroed width x height buffer.
func NewBuffer(width, height int) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidDimensions
	}
	return &Buffer{
		pix:    make([]byte, width*height*BytesPerPixel),
		width:  width,
		height: height,
	}, nil
}

// FromPix wraps existing RGBA8 data without copying.
func FromPix(pix []byte, width, height int) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidDimensions
	}
	n := width * height * BytesPerPixel
	if len(pix) < n {
		return nil, ErrDataTooSmall
	}
	return &Buffer{pix: pix[:n], width: width, height: height}, nil
}

// Width returns the width in pixels.
func (b *Buffer) Width() int { return b.width }

// Height returns the height in pixels.
func (b *Buffer) Height() int { return b.height }

// Size returns the dimensions as a point.
func (b *Buffer) Size() image.Point { return image.Pt(b.width, b.height) }

// Stride returns the number of bytes per row.
func (b *Buffer) Stride() int { return b.width * BytesPerPixel }

// Pix returns the underlying pixel data.
func (b *Buffer) Pix() []byte { return b.pix }

// Row returns the bytes of row y.
func (b *Buffer) Row(y int) []byte {
	s := b.Stride()
	return b.pix[y*s : (y+1)*s]
}

// ByteSize returns the memory held by the pixel data.
func (b *Buffer) ByteSize() int { return len(b.pix) }

// At returns the pixel at (x, y). Out of range coordinates return zeros.
func (b *Buffer) At(x, y int) (r, g, bl, a uint8) {
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		return 0, 0, 0, 0
	}
	i := (y*b.width + x) * BytesPerPixel
	return b.pix[i], b.pix[i+1], b.pix[i+2], b.pix[i+3]
}

// Set writes the pixel at (x, y). Out of range coordinates are ignored.
func (b *Buffer) Set(x, y int, r, g, bl, a uint8) {
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		return
	}
	i := (y*b.width + x) * BytesPerPixel
	b.pix[i], b.pix[i+1], b.pix[i+2], b.pix[i+3] = r, g, bl, a
}

// Fill sets every pixel to one color.
func (b *Buffer) Fill(r, g, bl, a uint8) {
	for i := 0; i < len(b.pix); i += BytesPerPixel {
		b.pix[i], b.pix[i+1], b.pix[i+2], b.pix[i+3] = r, g, bl, a
	}
}

// Clear zeroes the pixel data.
func (b *Buffer) Clear() {
	clear(b.pix)
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	pix := make([]byte, len(b.pix))
	copy(pix, b.pix)
	return &Buffer{pix: pix, width: b.width, height: b.height}
}
