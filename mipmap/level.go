// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package mipmap

import (
	"fmt"
	"image"
	"math/bits"
)

// MaxLevels is the number of level slots per pyramid. Level MaxLevels-1 is
// the coarsest level ever produced.
const MaxLevels = 6

// LevelState is the production state of one level.
type LevelState uint8

const (
	// LevelWaiting means the level has no pixels and no producer.
	LevelWaiting LevelState = iota
	// LevelWorking means a producer is queued or running.
	LevelWorking
	// LevelFinished means the pixels are resident.
	LevelFinished
	// LevelFailed means the producer gave up. Retry resets it.
	LevelFailed
)

func (s LevelState) String() string {
	switch s {
	case LevelWaiting:
		return "waiting"
	case LevelWorking:
		return "working"
	case LevelFinished:
		return "finished"
	case LevelFailed:
		return "failed"
	default:
		return fmt.Sprintf("LevelState(%d)", uint8(s))
	}
}

// LevelSize returns the dimensions of level for an image of the given
// native size: each axis shifted right by level, never below one pixel.
func LevelSize(native image.Point, level int) image.Point {
	return image.Pt(max(1, native.X>>level), max(1, native.Y>>level))
}

// maxLevelFor returns the coarsest level where both axes still have at
// least one pixel, capped at MaxLevels-1.
func maxLevelFor(native image.Point) int {
	m := min(native.X, native.Y)
	if m <= 0 {
		return -1
	}
	return min(MaxLevels-1, bits.Len(uint(m))-1)
}

// optimalLevel walks from maxLevel toward level 0 and returns the first
// level covering size on both axes. A request larger than the native image
// returns 0; levels are never upscaled.
func optimalLevel(native image.Point, maxLevel int, size image.Point) int {
	for l := maxLevel; l >= 0; l-- {
		s := LevelSize(native, l)
		if s.X >= size.X && s.Y >= size.Y {
			return l
		}
	}
	return 0
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
