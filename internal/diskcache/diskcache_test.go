package diskcache

import (
	"bytes"
	"encoding/binary"
	"errors"
	stdimage "image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gogpu/mipcache/internal/image"
)

func testBuffer(t *testing.T) *image.Buffer {
	t.Helper()
	b, err := image.NewBuffer(12, 6)
	if err != nil {
		t.Fatal(err)
	}
	for y := range 6 {
		for x := range 12 {
			b.Set(x, y, uint8(x*20), uint8(y*40), 99, 255)
		}
	}
	return b
}

func touchSource(t *testing.T, dir string) string {
	t.Helper()
	src := filepath.Join(dir, "photo.png")
	if err := os.WriteFile(src, []byte("source"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(src, old, old); err != nil {
		t.Fatal(err)
	}
	return src
}

func TestPath(t *testing.T) {
	tests := []struct {
		name  string
		dir   string
		codec Codec
		want  string
	}{
		{"sibling", "", CodecImage, filepath.Join("/img", ".cache", "3_a.jpg")},
		{"configured", "/var/cache/mip", CodecImage, filepath.Join("/var/cache/mip", "3_a.jpg")},
		{"snappy", "/c", CodecSnappy, filepath.Join("/c", "3_a.jpg.sz")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.dir, tt.codec, 0)
			if err != nil {
				t.Fatal(err)
			}
			if got := c.Path("/img/a.jpg", 3); got != tt.want {
				t.Errorf("Path() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriteRead(t *testing.T) {
	for _, codec := range []Codec{CodecImage, CodecSnappy} {
		t.Run(codec.String(), func(t *testing.T) {
			dir := t.TempDir()
			src := touchSource(t, dir)
			c, err := New("", codec, 0)
			if err != nil {
				t.Fatal(err)
			}
			if c.Has(src, 2) {
				t.Fatal("Has() = true before Write")
			}
			if _, err := c.Read(src, 2, stdimage.Pt(12, 6)); !errors.Is(err, ErrMiss) {
				t.Fatalf("Read() error = %v, want ErrMiss", err)
			}

			want := testBuffer(t)
			if err := c.Write(src, 2, want, "png"); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			if !c.Has(src, 2) {
				t.Fatal("Has() = false after Write")
			}
			got, err := c.Read(src, 2, want.Size())
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if !bytes.Equal(got.Pix(), want.Pix()) {
				t.Error("cached pixels differ")
			}
		})
	}
}

func TestStaleEntryIsMiss(t *testing.T) {
	dir := t.TempDir()
	src := touchSource(t, dir)
	c, _ := New("", CodecImage, 0)
	if err := c.Write(src, 1, testBuffer(t), "png"); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(src, future, future); err != nil {
		t.Fatal(err)
	}
	if c.Has(src, 1) {
		t.Error("entry older than its source should be a miss")
	}
}

func TestIndexEvictionRemovesFiles(t *testing.T) {
	dir := t.TempDir()
	src := touchSource(t, dir)
	c, _ := New("", CodecSnappy, 2)
	for level := 1; level <= 3; level++ {
		if err := c.Write(src, level, testBuffer(t), "png"); err != nil {
			t.Fatal(err)
		}
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	if _, err := os.Stat(c.Path(src, 1)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("oldest entry still on disk: %v", err)
	}
}

func TestCorruptSnappyEntry(t *testing.T) {
	header := func(w, h uint32) []byte {
		b := append([]byte{}, rawMagic[:]...)
		b = binary.LittleEndian.AppendUint32(b, w)
		return binary.LittleEndian.AppendUint32(b, h)
	}
	tests := []struct {
		name string
		data []byte
	}{
		{"junk", []byte("junk")},
		{"huge header", header(0xFFFFFFFF, 0xFFFFFFFF)},
		{"wrong size", header(24, 12)},
		{"short pixels", append(header(12, 6), 0xff, 0x06, 0x00)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			src := touchSource(t, dir)
			c, _ := New("", CodecSnappy, 0)
			path := c.Path(src, 1)
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(path, tt.data, 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := c.Read(src, 1, stdimage.Pt(12, 6)); !errors.Is(err, ErrCorrupt) {
				t.Errorf("Read() error = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestImageEntryWrongSize(t *testing.T) {
	dir := t.TempDir()
	src := touchSource(t, dir)
	c, _ := New("", CodecImage, 0)
	if err := c.Write(src, 1, testBuffer(t), "png"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Read(src, 1, stdimage.Pt(6, 3)); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Read() error = %v, want ErrCorrupt", err)
	}

	if err := os.WriteFile(c.Path(src, 2), []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Read(src, 2, stdimage.Pt(6, 3)); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Read(garbage) error = %v, want ErrCorrupt", err)
	}
}

func TestParseCodec(t *testing.T) {
	if c, err := ParseCodec("Snappy"); err != nil || c != CodecSnappy {
		t.Errorf("ParseCodec(Snappy) = %v, %v", c, err)
	}
	if c, err := ParseCodec(""); err != nil || c != CodecImage {
		t.Errorf("ParseCodec(\"\") = %v, %v", c, err)
	}
	if _, err := ParseCodec("zstd"); err == nil {
		t.Error("ParseCodec(zstd) should fail")
	}
}
