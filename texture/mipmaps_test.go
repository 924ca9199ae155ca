// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package texture

import (
	"errors"
	"image"
	"testing"

	"github.com/gogpu/gpucontext"

	intImage "github.com/gogpu/mipcache/internal/image"
	"github.com/gogpu/mipcache/mipmap"
)

// fakeSource is a pyramid whose resident levels are set by the test.
type fakeSource struct {
	id       uint64
	native   image.Point
	resident map[int]*mipmap.Buffer
	marked   []int
	requests []int
	pins     int
}

func newFakeSource(id uint64, w, h int, levels ...int) *fakeSource {
	s := &fakeSource{id: id, native: image.Pt(w, h), resident: make(map[int]*mipmap.Buffer)}
	for _, l := range levels {
		s.makeResident(l)
	}
	return s
}

func (s *fakeSource) makeResident(level int) {
	sz := mipmap.LevelSize(s.native, level)
	buf, err := intImage.NewBuffer(sz.X, sz.Y)
	if err != nil {
		panic(err)
	}
	s.resident[level] = buf
}

func (s *fakeSource) ID() uint64    { return s.id }
func (s *fakeSource) MaxLevel() int { return mipmap.MaxLevels - 1 }

func (s *fakeSource) Optimal(size image.Point) int {
	for l := s.MaxLevel(); l > 0; l-- {
		if ls := mipmap.LevelSize(s.native, l); ls.X >= size.X && ls.Y >= size.Y {
			return l
		}
	}
	return 0
}

func (s *fakeSource) Closest(size image.Point) int {
	opt := s.Optimal(size)
	best := -1
	for l := 0; l <= s.MaxLevel(); l++ {
		if s.resident[l] == nil {
			continue
		}
		if best < 0 || absInt(l-opt) < absInt(best-opt) {
			best = l
		}
	}
	return best
}

func (s *fakeSource) Mark(level int)    { s.marked = append(s.marked, level) }
func (s *fakeSource) Request(level int) { s.requests = append(s.requests, level) }

func (s *fakeSource) Pin(level int) (*mipmap.Buffer, func()) {
	buf := s.resident[level]
	if buf == nil {
		return nil, func() {}
	}
	s.pins++
	return buf, func() { s.pins-- }
}

type binder struct {
	src     *fakeSource
	rc      *ResourceCache
	creator *HeadlessCreator
	mm      *Mipmaps
}

func newBinder(t *testing.T, src *fakeSource, opts ...Option) *binder {
	t.Helper()
	b := &binder{src: src, rc: NewResourceCache(CacheConfig{}), creator: &HeadlessCreator{}}
	mm, err := New(src, b.rc, b.creator, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	b.mm = mm
	return b
}

// seed uploads level directly, as if an earlier Bind had done it.
func (b *binder) seed(t *testing.T, level int) gpucontext.Texture {
	t.Helper()
	sz := mipmap.LevelSize(b.src.native, level)
	tex, err := b.creator.NewTextureFromRGBA(sz.X, sz.Y, make([]byte, sz.X*sz.Y*4))
	if err != nil {
		t.Fatal(err)
	}
	b.rc.Put(Key{Image: b.src.id, Level: level}, tex, uploadFormat, sz, 0)
	return tex
}

func (b *binder) has(level int) bool {
	return b.rc.Has(Key{Image: b.src.id, Level: level})
}

func TestNewValidates(t *testing.T) {
	rc := NewResourceCache(CacheConfig{})
	if _, err := New(nil, rc, nil); !errors.Is(err, ErrNilSource) {
		t.Errorf("New(nil source) error = %v", err)
	}
	if _, err := New(newFakeSource(1, 8, 8), nil, nil); !errors.Is(err, ErrNilCache) {
		t.Errorf("New(nil cache) error = %v", err)
	}
}

func TestBindNothingResident(t *testing.T) {
	b := newBinder(t, newFakeSource(1, 256, 256))
	if _, ok := b.mm.Bind(image.Pt(50, 50)); ok {
		t.Fatal("Bind() succeeded with nothing resident")
	}
	if len(b.src.requests) != 1 || b.src.requests[0] != 2 {
		t.Errorf("requests = %v, want [2]", b.src.requests)
	}
	if b.mm.Bound() != -1 {
		t.Errorf("Bound() = %d, want -1", b.mm.Bound())
	}
}

func TestBindOptimalTexture(t *testing.T) {
	b := newBinder(t, newFakeSource(1, 256, 256, 2))
	want := b.seed(t, 2)

	got, ok := b.mm.Bind(image.Pt(50, 50))
	if !ok || got != want {
		t.Fatalf("Bind() = %v, %v; want the level 2 texture", got, ok)
	}
	if b.creator.Created() != 1 {
		t.Errorf("Bind() uploaded although the optimal texture existed")
	}
	if len(b.src.marked) != 1 || b.src.marked[0] != 2 {
		t.Errorf("marked = %v, want [2]", b.src.marked)
	}
	if len(b.src.requests) != 0 {
		t.Errorf("requests = %v, want none", b.src.requests)
	}
}

func TestBindUploadsCloserLevel(t *testing.T) {
	// Optimal is 2; the GPU has level 4, the CPU has level 2.
	b := newBinder(t, newFakeSource(1, 256, 256, 2))
	b.seed(t, 4)

	tex, ok := b.mm.Bind(image.Pt(50, 50))
	if !ok {
		t.Fatal("Bind() = false")
	}
	if b.mm.Bound() != 2 || !b.has(2) {
		t.Errorf("bound level %d, want an upload of level 2", b.mm.Bound())
	}
	if ht := tex.(*HeadlessTexture); ht.Width() != 64 || ht.Height() != 64 {
		t.Errorf("texture size = %dx%d, want 64x64", ht.Width(), ht.Height())
	}
	if b.creator.Created() != 2 {
		t.Errorf("Created() = %d, want 2", b.creator.Created())
	}
	if b.src.pins != 0 {
		t.Errorf("upload left %d pins", b.src.pins)
	}
}

func TestBindPrefersExistingTexture(t *testing.T) {
	// Optimal is 3; the GPU has level 4 (one away), the CPU only level 1
	// (two away).
	b := newBinder(t, newFakeSource(1, 256, 256, 1))
	want := b.seed(t, 4)

	got, ok := b.mm.Bind(image.Pt(20, 20))
	if !ok || got != want {
		t.Fatalf("Bind() = %v, %v; want the level 4 texture", got, ok)
	}
	if b.creator.Created() != 1 {
		t.Error("Bind() uploaded although an existing texture was closer")
	}
}

func TestBindTieKeepsExistingTexture(t *testing.T) {
	// Optimal is 2; level 4 on the GPU and level 0 on the CPU are both two away.
	b := newBinder(t, newFakeSource(1, 256, 256, 0))
	want := b.seed(t, 4)

	if got, ok := b.mm.Bind(image.Pt(50, 50)); !ok || got != want {
		t.Fatalf("Bind() = %v, %v; want the existing level 4 texture", got, ok)
	}
}

func TestBindSlack(t *testing.T) {
	tests := []struct {
		name  string
		slack int
		want  int
	}{
		{"literal rule uploads", 0, 2},
		{"slack keeps the texture", 3, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBinder(t, newFakeSource(1, 256, 256, 2), WithSlack(tt.slack), WithPurgeDistance(-1))
			b.seed(t, 5)
			if _, ok := b.mm.Bind(image.Pt(50, 50)); !ok {
				t.Fatal("Bind() = false")
			}
			if b.mm.Bound() != tt.want {
				t.Errorf("Bound() = %d, want %d", b.mm.Bound(), tt.want)
			}
		})
	}
}

func TestBindSearchesCoarserFirst(t *testing.T) {
	b := newBinder(t, newFakeSource(1, 256, 256))
	b.seed(t, 1)
	want := b.seed(t, 3)

	if got, ok := b.mm.Bind(image.Pt(50, 50)); !ok || got != want {
		t.Fatalf("Bind() picked level %d, want 3", b.mm.Bound())
	}
}

func TestBindUploadFailureFallsBack(t *testing.T) {
	b := newBinder(t, newFakeSource(1, 256, 256, 2))
	want := b.seed(t, 4)
	b.creator.FailNext(errors.New("device lost"))

	got, ok := b.mm.Bind(image.Pt(50, 50))
	if !ok || got != want {
		t.Fatalf("Bind() = %v, %v; want the level 4 fallback", got, ok)
	}
	if b.has(2) {
		t.Error("failed upload registered a texture")
	}
}

func TestBindWithoutCreator(t *testing.T) {
	src := newFakeSource(1, 256, 256, 2)
	mm, err := New(src, NewResourceCache(CacheConfig{}), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := mm.Bind(image.Pt(50, 50)); ok {
		t.Error("Bind() uploaded without a creator")
	}
}

func TestGracePeriod(t *testing.T) {
	b := newBinder(t, newFakeSource(1, 256, 256, 2))
	tex, ok := b.mm.Bind(image.Pt(50, 50))
	if !ok {
		t.Fatal("Bind() = false")
	}
	key := Key{Image: 1, Level: 2}
	b.rc.Expire(key)

	for i := 1; i < DefaultGraceFrames; i++ {
		b.rc.EndFrame()
		if !b.rc.Has(key) {
			t.Fatalf("texture destroyed after %d frames, inside the grace window", i)
		}
	}
	b.rc.EndFrame()
	if b.rc.Has(key) {
		t.Fatal("texture survived past the grace window")
	}
	if !tex.(*HeadlessTexture).Destroyed() {
		t.Error("evicted texture was not destroyed")
	}
}

func TestGraceRenewedByBind(t *testing.T) {
	b := newBinder(t, newFakeSource(1, 256, 256, 2), WithGraceFrames(3))
	b.mm.Bind(image.Pt(50, 50))
	key := Key{Image: 1, Level: 2}
	b.rc.Expire(key)

	b.rc.EndFrame()
	b.rc.EndFrame()
	b.mm.Bind(image.Pt(50, 50)) // Get clears the expiry
	for range 5 {
		b.rc.EndFrame()
	}
	if !b.rc.Has(key) {
		t.Error("rebinding did not cancel the pending expiry")
	}
}

func TestPurgeDistance(t *testing.T) {
	b := newBinder(t, newFakeSource(1, 256, 256, 2))
	b.seed(t, 0)
	b.seed(t, 5)

	if _, ok := b.mm.Bind(image.Pt(50, 50)); !ok {
		t.Fatal("Bind() = false")
	}
	b.rc.EndFrame()
	if b.has(5) {
		t.Error("level 5 is three levels from optimal and should be destroyed")
	}
	if !b.has(0) || !b.has(2) {
		t.Error("textures within the purge distance were destroyed")
	}
}

func TestDrawTakesCreatorFromContext(t *testing.T) {
	src := newFakeSource(1, 256, 256)
	mm, err := New(src, NewResourceCache(CacheConfig{}), nil)
	if err != nil {
		t.Fatal(err)
	}
	dc := NewHeadlessDrawer()

	drawn, err := mm.Draw(dc, image.Pt(50, 50), 10, 20)
	if err != nil || drawn {
		t.Fatalf("Draw() = %v, %v before anything was resident", drawn, err)
	}

	src.makeResident(3)
	drawn, err = mm.Draw(dc, image.Pt(50, 50), 10, 20)
	if err != nil || !drawn {
		t.Fatalf("Draw() = %v, %v", drawn, err)
	}
	n, last := dc.Draws()
	if n != 1 || last == nil {
		t.Errorf("Draws() = %d, %v", n, last)
	}
	if dc.Creator.Created() != 1 {
		t.Errorf("Created() = %d, want 1", dc.Creator.Created())
	}
}

func TestClose(t *testing.T) {
	b := newBinder(t, newFakeSource(7, 256, 256, 2), WithGraceFrames(1))
	b.mm.Bind(image.Pt(50, 50))
	b.seed(t, 3)

	b.mm.Close()
	b.mm.Close()
	if _, ok := b.mm.Bind(image.Pt(50, 50)); ok {
		t.Error("Bind() after Close succeeded")
	}
	b.rc.EndFrame()
	b.rc.EndFrame()
	if b.rc.Len() != 0 {
		t.Errorf("Len() = %d after Close, want 0", b.rc.Len())
	}
	if b.creator.Live() != 0 {
		t.Errorf("Live() = %d, want 0", b.creator.Live())
	}
}

func TestBindUnderTextureLimit(t *testing.T) {
	rc := NewResourceCache(CacheConfig{MaxTextures: 1})
	creator := &HeadlessCreator{}
	a := newFakeSource(1, 256, 256, 2)
	b := newFakeSource(2, 256, 256, 2)
	ma, err := New(a, rc, creator)
	if err != nil {
		t.Fatal(err)
	}
	mb, err := New(b, rc, creator)
	if err != nil {
		t.Fatal(err)
	}

	size := image.Pt(64, 64)
	texA, ok := ma.Bind(size)
	if !ok {
		t.Fatal("Bind(a) found nothing")
	}
	texB, ok := mb.Bind(size)
	if !ok {
		t.Fatal("Bind(b) found nothing")
	}
	for name, tex := range map[string]gpucontext.Texture{"a": texA, "b": texB} {
		if tex.(*HeadlessTexture).Destroyed() {
			t.Errorf("Bind(%s) returned a destroyed texture", name)
		}
	}
	if !rc.Has(Key{Image: 2, Level: 2}) {
		t.Error("texture bound this frame is missing from the cache")
	}

	for range DefaultGraceFrames + 1 {
		rc.EndFrame()
	}
	if rc.Len() > 1 {
		t.Errorf("Len() = %d after the grace windows ended, want at most 1", rc.Len())
	}
}
