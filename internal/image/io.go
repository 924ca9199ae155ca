package image

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif" // register GIF decoder
	"image/jpeg"
	"image/png"
	"io"
	"os"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// I/O errors.
var (
	// ErrUnsupportedFormat is returned when no registered decoder accepts the data.
	ErrUnsupportedFormat = errors.New("image: unsupported format")

	// ErrEmptyData is returned when image data is empty.
	ErrEmptyData = errors.New("image: empty data")
)

// Header is the result of a header-only decode.
type Header struct {
	Width  int
	Height int
	Format string // decoder name: "png", "jpeg", "webp", ...
}

// Size returns the native dimensions.
func (h Header) Size() image.Point { return image.Pt(h.Width, h.Height) }

// DecodeConfigFile reads only the header of the image at path.
func DecodeConfigFile(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("image: open: %w", err)
	}
	defer f.Close()
	return DecodeConfig(bufio.NewReader(f))
}

// DecodeConfig reads an image header from r.
func DecodeConfig(r io.Reader) (Header, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return Header{}, wrapDecodeErr("decode header", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Header{}, fmt.Errorf("image: decode header: %w", ErrInvalidDimensions)
	}
	return Header{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// DecodeBytes fully decodes an in-memory image into an RGBA8 buffer.
func DecodeBytes(data []byte) (*Buffer, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmptyData
	}
	return Decode(bytes.NewReader(data))
}

// Decode fully decodes r into an RGBA8 buffer and reports the decoder name.
func Decode(r io.Reader) (*Buffer, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", wrapDecodeErr("decode", err)
	}
	buf := FromStdImage(img)
	if buf == nil {
		return nil, format, fmt.Errorf("image: decode: %w", ErrInvalidDimensions)
	}
	return buf, format, nil
}

// LoadFile decodes the image file at path.
func LoadFile(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("image: read: %w", err)
	}
	buf, _, err := DecodeBytes(data)
	return buf, err
}

func wrapDecodeErr(op string, err error) error {
	if errors.Is(err, image.ErrFormat) {
		return fmt.Errorf("image: %s: %w", op, ErrUnsupportedFormat)
	}
	return fmt.Errorf("image: %s: %w", op, err)
}

// FromStdImage converts any image.Image into a pooled RGBA8 buffer.
func FromStdImage(img image.Image) *Buffer {
	bounds := img.Bounds()
	buf := GetBuffer(bounds.Dx(), bounds.Dy())
	if buf == nil {
		return nil
	}

	// NRGBA already has the target layout.
	if src, ok := img.(*image.NRGBA); ok {
		for y := range buf.height {
			start := (y+bounds.Min.Y-src.Rect.Min.Y)*src.Stride + (bounds.Min.X-src.Rect.Min.X)*4
			copy(buf.Row(y), src.Pix[start:start+buf.Stride()])
		}
		return buf
	}

	draw.Draw(buf.NRGBA(), buf.NRGBA().Bounds(), img, bounds.Min, draw.Src)
	return buf
}

// Encode writes b as JPEG when format is "jpeg", otherwise as PNG.
func (b *Buffer) Encode(w io.Writer, format string) error {
	if format == "jpeg" {
		if err := jpeg.Encode(w, b.NRGBA(), &jpeg.Options{Quality: 90}); err != nil {
			return fmt.Errorf("image: encode JPEG: %w", err)
		}
		return nil
	}
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(w, b.NRGBA()); err != nil {
		return fmt.Errorf("image: encode PNG: %w", err)
	}
	return nil
}

// SaveFile encodes b to path, choosing the codec like Encode.
func (b *Buffer) SaveFile(path, format string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("image: create: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := b.Encode(w, format); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("image: write: %w", err)
	}
	return f.Close()
}
