// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package texture

import (
	"image"
	"testing"

	"github.com/gogpu/gputypes"
)

func putTexture(t *testing.T, rc *ResourceCache, c *HeadlessCreator, key Key, w, h int) *HeadlessTexture {
	t.Helper()
	tex, err := c.NewTextureFromRGBA(w, h, make([]byte, w*h*4))
	if err != nil {
		t.Fatal(err)
	}
	rc.Put(key, tex, gputypes.TextureFormatRGBA8Unorm, image.Pt(w, h), 0)
	return tex.(*HeadlessTexture)
}

func TestResourceCacheBytes(t *testing.T) {
	rc := NewResourceCache(CacheConfig{})
	c := &HeadlessCreator{}
	putTexture(t, rc, c, Key{1, 0}, 16, 16)
	putTexture(t, rc, c, Key{1, 1}, 8, 8)

	s := rc.Stats()
	if s.Textures != 2 || s.Bytes != 16*16*4+8*8*4 || s.Uploads != 2 {
		t.Errorf("Stats() = %+v", s)
	}

	rc.Expire(Key{1, 0})
	rc.EndFrame()
	if s := rc.Stats(); s.Bytes != 8*8*4 || s.Destroyed != 1 {
		t.Errorf("after expiry Stats() = %+v", s)
	}
}

func TestResourceCacheFormatBytes(t *testing.T) {
	rc := NewResourceCache(CacheConfig{})
	c := &HeadlessCreator{}
	putTexture(t, rc, c, Key{1, 0}, 8, 8)
	mask, err := c.NewTextureFromRGBA(8, 8, make([]byte, 8*8*4))
	if err != nil {
		t.Fatal(err)
	}
	rc.Put(Key{2, 0}, mask, gputypes.TextureFormatR8Unorm, image.Pt(8, 8), 0)

	s := rc.Stats()
	if s.Bytes != 8*8*4+8*8 {
		t.Errorf("Bytes = %d, want %d", s.Bytes, 8*8*4+8*8)
	}
	if got := s.FormatBytes[gputypes.TextureFormatRGBA8Unorm]; got != 8*8*4 {
		t.Errorf("RGBA8 bytes = %d, want %d", got, 8*8*4)
	}
	if got := s.FormatBytes[gputypes.TextureFormatR8Unorm]; got != 8*8 {
		t.Errorf("R8 bytes = %d, want %d", got, 8*8)
	}

	rc.Expire(Key{2, 0})
	rc.EndFrame()
	s = rc.Stats()
	if _, ok := s.FormatBytes[gputypes.TextureFormatR8Unorm]; ok {
		t.Errorf("R8 bytes still reported after destroy: %v", s.FormatBytes)
	}
	if s.Bytes != 8*8*4 {
		t.Errorf("Bytes = %d after destroy, want %d", s.Bytes, 8*8*4)
	}
}

func TestResourceCachePutKeepsNewTexture(t *testing.T) {
	rc := NewResourceCache(CacheConfig{MaxTextures: 1})
	c := &HeadlessCreator{}
	first, err := c.NewTextureFromRGBA(2, 2, make([]byte, 16))
	if err != nil {
		t.Fatal(err)
	}
	rc.Put(Key{1, 0}, first, gputypes.TextureFormatRGBA8Unorm, image.Pt(2, 2), 5)
	second := putTexture(t, rc, c, Key{2, 0}, 2, 2)

	if second.Destroyed() || !rc.Has(Key{2, 0}) {
		t.Error("Put destroyed the texture it stored")
	}
	if first.(*HeadlessTexture).Destroyed() {
		t.Error("texture inside its keep window was destroyed")
	}
}

func TestResourceCacheReplaceDestroysOld(t *testing.T) {
	rc := NewResourceCache(CacheConfig{})
	c := &HeadlessCreator{}
	old := putTexture(t, rc, c, Key{1, 2}, 4, 4)
	putTexture(t, rc, c, Key{1, 2}, 4, 4)

	if !old.Destroyed() {
		t.Error("replaced texture was not destroyed")
	}
	if rc.Len() != 1 || c.Live() != 1 {
		t.Errorf("Len=%d Live=%d, want 1 1", rc.Len(), c.Live())
	}
	if s := rc.Stats(); s.Bytes != 4*4*4 {
		t.Errorf("Bytes = %d after replace", s.Bytes)
	}
}

func TestResourceCacheIdleFrames(t *testing.T) {
	rc := NewResourceCache(CacheConfig{IdleFrames: 2})
	c := &HeadlessCreator{}
	putTexture(t, rc, c, Key{1, 0}, 4, 4)
	putTexture(t, rc, c, Key{1, 1}, 2, 2)

	for range 3 {
		rc.Get(Key{1, 1})
		rc.EndFrame()
	}
	if rc.Has(Key{1, 0}) {
		t.Error("idle texture survived")
	}
	if !rc.Has(Key{1, 1}) {
		t.Error("texture bound every frame was destroyed")
	}
}

func TestResourceCacheSoftLimit(t *testing.T) {
	rc := NewResourceCache(CacheConfig{MaxTextures: 4})
	c := &HeadlessCreator{}
	for l := range 4 {
		putTexture(t, rc, c, Key{1, l}, 2, 2)
		rc.EndFrame()
	}
	rc.Keep(Key{1, 0}, 10)
	putTexture(t, rc, c, Key{2, 0}, 2, 2)

	if rc.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", rc.Len())
	}
	if !rc.Has(Key{1, 0}) {
		t.Error("texture inside its grace window was evicted")
	}
	if rc.Has(Key{1, 1}) || rc.Has(Key{1, 2}) {
		t.Error("least recently used textures survived the limit")
	}
}

func TestResourceCacheDropImage(t *testing.T) {
	rc := NewResourceCache(CacheConfig{})
	c := &HeadlessCreator{}
	putTexture(t, rc, c, Key{1, 0}, 2, 2)
	putTexture(t, rc, c, Key{1, 3}, 2, 2)
	putTexture(t, rc, c, Key{2, 0}, 2, 2)

	if n := rc.DropImage(1); n != 2 {
		t.Errorf("DropImage() = %d, want 2", n)
	}
	rc.EndFrame()
	if rc.Len() != 1 || !rc.Has(Key{2, 0}) {
		t.Errorf("DropImage removed the wrong textures, Len=%d", rc.Len())
	}
}

func TestResourceCacheClear(t *testing.T) {
	rc := NewResourceCache(CacheConfig{})
	c := &HeadlessCreator{}
	putTexture(t, rc, c, Key{1, 0}, 2, 2)
	rc.Keep(Key{1, 0}, 100)
	rc.Clear()
	if rc.Len() != 0 || c.Live() != 0 {
		t.Errorf("Clear() left Len=%d Live=%d", rc.Len(), c.Live())
	}
	if rc.Stats().Bytes != 0 {
		t.Errorf("Bytes = %d after Clear", rc.Stats().Bytes)
	}
}

func TestHeadlessCreatorRejectsShortData(t *testing.T) {
	c := &HeadlessCreator{}
	if _, err := c.NewTextureFromRGBA(4, 4, make([]byte, 10)); err == nil {
		t.Error("NewTextureFromRGBA accepted short data")
	}
	tex, err := c.NewTextureFromRGBA(1, 1, []byte{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	ht := tex.(*HeadlessTexture)
	if err := ht.UpdateData([]byte{5, 6, 7, 8}); err != nil || ht.Pixels()[0] != 5 {
		t.Errorf("UpdateData() = %v, pixels %v", err, ht.Pixels())
	}
	if err := ht.UpdateData([]byte{1}); err == nil {
		t.Error("UpdateData accepted a wrong length")
	}
}
