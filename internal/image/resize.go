package image

import (
	"fmt"
	"image"
	"strings"

	xdraw "golang.org/x/image/draw"
)

// Filter selects the resampling kernel used to build coarser levels.
type Filter uint8

const (
	// FilterBox averages 2x2 blocks. Fast, and can run band by band.
	FilterBox Filter = iota
	// FilterBilinear uses x/image/draw.ApproxBiLinear.
	FilterBilinear
	// FilterCatmullRom uses x/image/draw.CatmullRom.
	FilterCatmullRom
)

// String returns the config name of the filter.
func (f Filter) String() string {
	switch f {
	case FilterBox:
		return "box"
	case FilterBilinear:
		return "bilinear"
	case FilterCatmullRom:
		return "catmullrom"
	default:
		return fmt.Sprintf("Filter(%d)", uint8(f))
	}
}

// ParseFilter parses a filter name as written in configuration files.
// An empty name selects FilterBox.
func ParseFilter(name string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "box":
		return FilterBox, nil
	case "bilinear":
		return FilterBilinear, nil
	case "catmullrom", "catmull-rom":
		return FilterCatmullRom, nil
	default:
		return FilterBox, fmt.Errorf("image: unknown filter %q", name)
	}
}

func (f Filter) scaler() xdraw.Scaler {
	if f == FilterCatmullRom {
		return xdraw.CatmullRom
	}
	return xdraw.ApproxBiLinear
}

// Resize scales src to size with the given kernel. FilterBox only supports
// exact halving and falls back to Halve when size is HalfSize(src).
func Resize(src *Buffer, size image.Point, f Filter) (*Buffer, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, ErrInvalidDimensions
	}
	if f == FilterBox {
		if size != HalfSize(src.Size()) {
			return nil, fmt.Errorf("image: box filter cannot scale %v to %v", src.Size(), size)
		}
		return Halve(src), nil
	}

	dst := GetBuffer(size.X, size.Y)
	if dst == nil {
		return nil, ErrInvalidDimensions
	}
	in := src.NRGBA()
	out := dst.NRGBA()
	f.scaler().Scale(out, out.Bounds(), in, in.Bounds(), xdraw.Src, nil)
	return dst, nil
}

// NRGBA views the buffer as an *image.NRGBA sharing the same pixels.
func (b *Buffer) NRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    b.pix,
		Stride: b.Stride(),
		Rect:   image.Rect(0, 0, b.width, b.height),
	}
}
