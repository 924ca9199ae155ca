// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package mipmap

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gogpu/mipcache/internal/logging"
	"github.com/gogpu/mipcache/taskqueue"
)

// Store shares pyramids by path and counts references to them.
//
// A pyramid is created by the first Acquire of its path and closed when
// the last holder releases it. Failed loads are not remembered; the next
// Acquire tries again.
type Store struct {
	env      *env
	ownQueue bool

	mu      sync.Mutex
	entries map[string]*storeEntry
	group   singleflight.Group
}

type storeEntry struct {
	p    *Pyramid
	refs int
}

// NewStore creates a store whose pyramids run their producers on q.
func NewStore(q *taskqueue.Queue, opts Options) (*Store, error) {
	e, err := newEnv(q, opts)
	if err != nil {
		return nil, err
	}
	return &Store{env: e, entries: make(map[string]*storeEntry)}, nil
}

var (
	defaultOnce  sync.Once
	defaultStore *Store
)

// Default returns a process-wide store with default options and its own
// started queue. It lives until Shutdown is called on it.
func Default() *Store {
	defaultOnce.Do(func() {
		q := taskqueue.New(taskqueue.WithName("mipmap"))
		q.Start()
		s, err := NewStore(q, Options{})
		if err != nil {
			panic(err) // unreachable: q is non-nil and the disk cache is off
		}
		s.ownQueue = true
		defaultStore = s
	})
	return defaultStore
}

// Options returns the effective options, defaults filled in.
func (s *Store) Options() Options { return s.env.opts }

// Queue returns the queue producers run on.
func (s *Store) Queue() *taskqueue.Queue { return s.env.queue }

// Acquire returns the pyramid for path, creating and starting it on first
// use. Every successful Acquire must be paired with a Release. On failure
// nothing is cached and the error is returned with a nil pyramid.
//
// Concurrent first acquisitions of one path share a single construction.
func (s *Store) Acquire(path string) (*Pyramid, error) {
	key := filepath.Clean(path)
	for {
		s.mu.Lock()
		if e := s.entries[key]; e != nil {
			e.refs++
			s.mu.Unlock()
			return e.p, nil
		}
		s.mu.Unlock()

		v, err, _ := s.group.Do(key, func() (any, error) {
			s.mu.Lock()
			if e := s.entries[key]; e != nil {
				s.mu.Unlock()
				return e.p, nil
			}
			s.mu.Unlock()

			p := newPyramid(s.env)
			if err := p.StartLoading(key, true); err != nil {
				p.Close()
				return nil, err
			}
			s.mu.Lock()
			s.entries[key] = &storeEntry{p: p}
			s.mu.Unlock()
			logging.Logger().Debug("mipmap: pyramid created", "path", key, "id", p.ID())
			return p, nil
		})
		if err != nil {
			logging.Logger().Warn("mipmap: acquire failed", "path", key, "err", err)
			return nil, err
		}

		p := v.(*Pyramid)
		s.mu.Lock()
		if e := s.entries[key]; e != nil && e.p == p {
			e.refs++
			s.mu.Unlock()
			return p, nil
		}
		// Released to zero before we took our reference; start over.
		s.mu.Unlock()
	}
}

// Release drops one reference to p. The last release closes p and removes
// it from the store. Releasing a pyramid the store does not know is a no-op.
func (s *Store) Release(p *Pyramid) {
	if p == nil {
		return
	}
	key := p.Filename()

	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[key]
	if e == nil || e.p != p || e.refs == 0 {
		return
	}
	e.refs--
	if e.refs > 0 {
		return
	}
	delete(s.entries, key)
	p.Close()
	logging.Logger().Debug("mipmap: pyramid closed", "path", key, "id", p.ID())
}

// Refs returns the reference count of path.
func (s *Store) Refs(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.entries[filepath.Clean(path)]; e != nil {
		return e.refs
	}
	return 0
}

// Len returns the number of live pyramids.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Pyramids returns a snapshot of the live pyramids.
func (s *Store) Pyramids() []*Pyramid {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Pyramid, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.p)
	}
	return out
}

// Update advances every live pyramid by dt and evicts levels idle for the
// configured purge time. Returns the number of evicted levels.
func (s *Store) Update(dt time.Duration) int {
	n := 0
	for _, p := range s.Pyramids() {
		n += p.Update(dt, s.env.opts.PurgeTime)
	}
	return n
}

// Shutdown fails while pyramids are still acquired. Otherwise it stops the
// queue if the store created it.
func (s *Store) Shutdown() error {
	s.mu.Lock()
	n := len(s.entries)
	s.mu.Unlock()
	if n > 0 {
		return fmt.Errorf("%w: %d", ErrLiveReferences, n)
	}
	if s.ownQueue {
		s.env.queue.Stop()
	}
	return nil
}
