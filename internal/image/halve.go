package image

import (
	"fmt"
	"image"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// minRowsPerWorker keeps tiny bands on one goroutine.
const minRowsPerWorker = 32

// HalfSize returns the dimensions of the next coarser level: each axis
// halved with floor, never below one pixel.
func HalfSize(p image.Point) image.Point {
	return image.Pt(max(1, p.X/2), max(1, p.Y/2))
}

// Halve returns a half-size copy of src using a 2x2 box filter. The result
// comes from the default pool.
func Halve(src *Buffer) *Buffer {
	sz := HalfSize(src.Size())
	dst := GetBuffer(sz.X, sz.Y)
	if dst == nil {
		return nil
	}
	if err := HalveRows(dst, src, 0, sz.Y); err != nil {
		PutBuffer(dst)
		return nil
	}
	return dst
}

// HalveRows box-filters destination rows [y0, y1) of dst from src, where
// dst must be HalfSize(src). Rows are split across goroutines.
//
// Calling HalveRows repeatedly with consecutive ranges produces the same
// result as one call over the whole image, which lets a scaler spread a
// large level over several task steps.
func HalveRows(dst, src *Buffer, y0, y1 int) error {
	if dst.Size() != HalfSize(src.Size()) {
		return fmt.Errorf("%w: dst %v, src %v", ErrSizeMismatch, dst.Size(), src.Size())
	}
	y0 = max(0, y0)
	y1 = min(dst.height, y1)
	if y0 >= y1 {
		return nil
	}

	workers := max(1, min(runtime.GOMAXPROCS(0), (y1-y0)/minRowsPerWorker))
	if workers == 1 {
		halveBand(dst, src, y0, y1)
		return nil
	}

	per := (y1 - y0 + workers - 1) / workers
	var g errgroup.Group
	g.SetLimit(workers)
	for start := y0; start < y1; start += per {
		end := min(start+per, y1)
		g.Go(func() error {
			halveBand(dst, src, start, end)
			return nil
		})
	}
	return g.Wait()
}

// halveBand averages 2x2 source blocks into dst rows [y0, y1). Odd source
// edges are clamped so one-pixel sources still produce one pixel.
func halveBand(dst, src *Buffer, y0, y1 int) {
	srcW, srcH := src.width, src.height
	for dy := y0; dy < y1; dy++ {
		sy0 := dy * 2
		sy1 := min(sy0+1, srcH-1)
		row0 := src.Row(sy0)
		row1 := src.Row(sy1)
		out := dst.Row(dy)
		for dx := 0; dx < dst.width; dx++ {
			sx0 := dx * 2 * BytesPerPixel
			sx1 := min(dx*2+1, srcW-1) * BytesPerPixel
			o := dx * BytesPerPixel
			for c := range BytesPerPixel {
				sum := uint16(row0[sx0+c]) + uint16(row0[sx1+c]) +
					uint16(row1[sx0+c]) + uint16(row1[sx1+c])
				out[o+c] = byte(sum / 4)
			}
		}
	}
}
