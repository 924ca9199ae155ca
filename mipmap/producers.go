// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package mipmap

import (
	"fmt"
	"os"

	intImage "github.com/gogpu/mipcache/internal/image"
	"github.com/gogpu/mipcache/internal/logging"
	"github.com/gogpu/mipcache/taskqueue"
)

// loader produces level 0 in two steps: read the file, then decode it.
type loader struct {
	p    *Pyramid
	path string
	data []byte
}

func (l *loader) Step() taskqueue.State {
	if l.p.isClosed() {
		return taskqueue.StateFailed
	}
	if l.data == nil {
		data, err := os.ReadFile(l.path)
		if err != nil {
			l.p.publish(0, nil, err)
			return taskqueue.StateFailed
		}
		l.data = data
		return taskqueue.StateRunning
	}

	data := l.data
	l.data = nil
	buf, _, err := intImage.DecodeBytes(data)
	if err != nil {
		l.p.publish(0, nil, err)
		return taskqueue.StateFailed
	}
	if _, _, native := l.p.snapshot(); buf.Size() != native {
		intImage.PutBuffer(buf)
		l.p.publish(0, nil, fmt.Errorf("%w: %v, header %v", ErrSizeChanged, buf.Size(), native))
		return taskqueue.StateFailed
	}
	l.p.publish(0, buf, nil)
	return taskqueue.StateDone
}

func (l *loader) Dispose() { l.data = nil }

// scaler produces one level above 0, either from the on-disk cache or by
// shrinking the pinned finer level.
type scaler struct {
	p        *Pyramid
	level    int
	fromDisk bool
	src      *Buffer // pinned level-1 pixels, nil when fromDisk
	dst      *Buffer // owned until published
	row      int
}

func (s *scaler) Step() taskqueue.State {
	if s.p.isClosed() {
		return taskqueue.StateFailed
	}
	path, format, native := s.p.snapshot()
	want := LevelSize(native, s.level)

	if s.fromDisk {
		buf, err := s.p.env.disk.Read(path, s.level, want)
		if err != nil {
			// The level is rebuilt from the chain; a missing or unusable
			// cache file is not a task failure.
			s.p.diskMiss(s.level, err)
			return taskqueue.StateDone
		}
		s.p.publish(s.level, buf, nil)
		return taskqueue.StateDone
	}

	opts := s.p.env.opts
	if opts.Filter != intImage.FilterBox {
		buf, err := intImage.Resize(s.src, want, opts.Filter)
		if err != nil {
			s.p.publish(s.level, nil, err)
			return taskqueue.StateFailed
		}
		s.dst = buf
	} else {
		if s.dst == nil {
			s.dst = intImage.GetBuffer(want.X, want.Y)
		}
		end := s.row + opts.BandRows
		if err := intImage.HalveRows(s.dst, s.src, s.row, end); err != nil {
			s.p.publish(s.level, nil, err)
			return taskqueue.StateFailed
		}
		s.row = end
		if s.row < want.Y {
			return taskqueue.StateRunning
		}
	}

	if d := s.p.env.disk; d != nil {
		if err := d.Write(path, s.level, s.dst, format); err != nil {
			logging.Logger().Warn("mipmap: disk cache write failed", "path", path, "level", s.level, "err", err)
		} else {
			s.p.diskStored(s.level)
		}
	}
	buf := s.dst
	s.dst = nil
	s.p.publish(s.level, buf, nil)
	return taskqueue.StateDone
}

func (s *scaler) Dispose() {
	if s.dst != nil {
		intImage.PutBuffer(s.dst)
		s.dst = nil
	}
	if s.src != nil {
		s.p.unpin(s.level - 1)
		s.src = nil
	}
}
