// Package diskcache stores scaled mipmap levels next to their source images
// so a later run can skip the full decode and the halving chain.
//
// A level L of /photos/a.jpg lives at /photos/.cache/L_a.jpg (or under the
// configured directory). Entries older than their source are treated as
// misses. The number of files written by one process is bounded by an LRU
// index; files that fall out of the index are removed.
package diskcache

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	stdimage "image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/snappy"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gogpu/mipcache/internal/image"
	"github.com/gogpu/mipcache/internal/logging"
)

var (
	// ErrMiss is returned by Read when no usable cache file exists.
	ErrMiss = errors.New("diskcache: miss")

	// ErrCorrupt is returned when a cache file cannot be parsed.
	ErrCorrupt = errors.New("diskcache: corrupt entry")
)

// DefaultDirName is the directory created next to a source image when no
// cache directory is configured.
const DefaultDirName = ".cache"

// Codec selects the on-disk representation of a cached level.
type Codec uint8

const (
	// CodecImage writes a regular image file: JPEG for JPEG sources, PNG otherwise.
	CodecImage Codec = iota
	// CodecSnappy writes raw RGBA8 compressed with the snappy stream format.
	CodecSnappy
)

func (c Codec) String() string {
	if c == CodecSnappy {
		return "snappy"
	}
	return "image"
}

// ParseCodec parses a codec name from configuration.
func ParseCodec(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "image", "png":
		return CodecImage, nil
	case "snappy":
		return CodecSnappy, nil
	default:
		return CodecImage, fmt.Errorf("diskcache: unknown codec %q", name)
	}
}

// snappy entries start with magic followed by width and height (uint32 LE).
var rawMagic = [4]byte{'M', 'I', 'P', '1'}

const rawHeaderSize = 12

// Cache reads and writes scaled levels.
type Cache struct {
	dir   string
	codec Codec
	index *lru.Cache[string, struct{}]
}

// New creates a cache. An empty dir places files in a DefaultDirName
// directory beside each source. maxEntries bounds the files tracked by this
// process; zero or less means 1024.
func New(dir string, codec Codec, maxEntries int) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	index, err := lru.NewWithEvict(maxEntries, func(path string, _ struct{}) {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Logger().Warn("diskcache: remove evicted entry", "path", path, "err", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("diskcache: %w", err)
	}
	return &Cache{dir: dir, codec: codec, index: index}, nil
}

// Codec returns the configured codec.
func (c *Cache) Codec() Codec { return c.codec }

// Path returns the cache file for level of src.
func (c *Cache) Path(src string, level int) string {
	dir := c.dir
	if dir == "" {
		dir = filepath.Join(filepath.Dir(src), DefaultDirName)
	}
	name := fmt.Sprintf("%d_%s", level, filepath.Base(src))
	if c.codec == CodecSnappy {
		name += ".sz"
	}
	return filepath.Join(dir, name)
}

// Has reports whether a cache file for level exists and is not older than src.
func (c *Cache) Has(src string, level int) bool {
	_, err := c.fresh(src, level)
	return err == nil
}

func (c *Cache) fresh(src string, level int) (string, error) {
	path := c.Path(src, level)
	ci, err := os.Stat(path)
	if err != nil {
		return "", ErrMiss
	}
	if si, err := os.Stat(src); err == nil && ci.ModTime().Before(si.ModTime()) {
		return "", ErrMiss
	}
	return path, nil
}

// Read loads level of src, which must be want pixels in size. Returns
// ErrMiss when there is no fresh entry and ErrCorrupt when the entry does
// not hold a want sized image. The size is checked before any pixels are
// allocated.
func (c *Cache) Read(src string, level int, want stdimage.Point) (*image.Buffer, error) {
	path, err := c.fresh(src, level)
	if err != nil {
		return nil, err
	}

	var buf *image.Buffer
	if c.codec == CodecSnappy {
		buf, err = readRaw(path, want)
	} else {
		buf, err = readImage(path, want)
	}
	if err != nil {
		return nil, fmt.Errorf("diskcache: read %s: %w", path, err)
	}
	c.index.Add(path, struct{}{})
	return buf, nil
}

func readImage(path string, want stdimage.Point) (*image.Buffer, error) {
	hdr, err := image.DecodeConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if hdr.Size() != want {
		return nil, fmt.Errorf("%w: size %v, want %v", ErrCorrupt, hdr.Size(), want)
	}
	buf, err := image.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if buf.Size() != want {
		image.PutBuffer(buf)
		return nil, fmt.Errorf("%w: decoded %v, want %v", ErrCorrupt, buf.Size(), want)
	}
	return buf, nil
}

// Write stores buf as level of src. format is the source decoder name and
// picks JPEG or PNG for CodecImage. The file appears atomically.
func (c *Cache) Write(src string, level int, buf *image.Buffer, format string) error {
	path := c.Path(src, level)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("diskcache: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("diskcache: create: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if c.codec == CodecSnappy {
		err = writeRaw(w, buf)
	} else {
		err = buf.Encode(w, format)
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("diskcache: write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("diskcache: rename: %w", err)
	}
	c.index.Add(path, struct{}{})
	return nil
}

// Len returns the number of entries tracked by this process.
func (c *Cache) Len() int { return c.index.Len() }

func writeRaw(w io.Writer, buf *image.Buffer) error {
	var hdr [rawHeaderSize]byte
	copy(hdr[:4], rawMagic[:])
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(buf.Width()))
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(buf.Height()))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	sw := snappy.NewBufferedWriter(w)
	if _, err := sw.Write(buf.Pix()); err != nil {
		return err
	}
	return sw.Close()
}

func readRaw(path string, want stdimage.Point) (*image.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var hdr [rawHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, ErrCorrupt
	}
	if [4]byte(hdr[:4]) != rawMagic {
		return nil, ErrCorrupt
	}
	w := binary.LittleEndian.Uint32(hdr[4:8])
	h := binary.LittleEndian.Uint32(hdr[8:12])
	if uint64(w) != uint64(want.X) || uint64(h) != uint64(want.Y) {
		return nil, fmt.Errorf("%w: size %dx%d, want %v", ErrCorrupt, w, h, want)
	}
	buf := image.GetBuffer(want.X, want.Y)
	if buf == nil {
		return nil, ErrCorrupt
	}
	if _, err := io.ReadFull(snappy.NewReader(r), buf.Pix()); err != nil {
		image.PutBuffer(buf)
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return buf, nil
}
