package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/mipcache"
	"github.com/gogpu/mipcache/internal/logging"
	"github.com/gogpu/mipcache/mipmap"
	"github.com/gogpu/mipcache/texture"
)

const frameInterval = 16 * time.Millisecond

var errNoImages = errors.New("no image could be opened")

type viewItem struct {
	path  string
	p     *mipmap.Pyramid
	mm    *texture.Mipmaps
	drawn bool
}

// viewer draws every image at one shared size into a headless context.
type viewer struct {
	cache *mipcache.Cache
	rc    *texture.ResourceCache
	dc    *texture.HeadlessDrawer
	items []*viewItem
	size  int
	frame int
}

func newViewer(c *mipcache.Cache, tc texture.CacheConfig, paths []string, size int) (*viewer, error) {
	v := &viewer{
		cache: c,
		rc:    texture.NewResourceCache(tc),
		dc:    texture.NewHeadlessDrawer(),
		size:  max(size, 1),
	}
	for _, path := range paths {
		p, err := c.Acquire(path)
		if err != nil {
			logging.Logger().Warn("mipview: skipping image", "path", path, "err", err)
			continue
		}
		mm, err := c.NewTextures(p, v.rc, v.dc.Creator)
		if err != nil {
			c.Release(p)
			v.close()
			return nil, err
		}
		v.items = append(v.items, &viewItem{path: path, p: p, mm: mm})
	}
	if len(v.items) == 0 {
		return nil, errNoImages
	}
	return v, nil
}

// maxEdge returns the longest native edge of any image.
func (v *viewer) maxEdge() int {
	edge := 1
	for _, it := range v.items {
		n := it.p.NativeSize()
		edge = max(edge, n.X, n.Y)
	}
	return edge
}

func (v *viewer) zoom(factor float64) {
	v.size = min(max(int(float64(v.size)*factor), 1), v.maxEdge())
}

// step renders one frame: bind and draw every image, age the CPU levels,
// then end the frame on the texture cache.
func (v *viewer) step() {
	sz := image.Pt(v.size, v.size)
	for _, it := range v.items {
		drawn, err := it.mm.Draw(v.dc, sz, 0, 0)
		if err != nil {
			logging.Logger().Warn("mipview: draw failed", "path", it.path, "err", err)
		}
		it.drawn = drawn
	}
	v.cache.Update(frameInterval)
	v.rc.EndFrame()
	v.frame++
}

func (v *viewer) close() {
	for _, it := range v.items {
		it.mm.Close()
		v.cache.Release(it.p)
	}
	v.items = nil
	v.rc.Clear()
}

// levelGlyphs renders one character per level.
func levelGlyphs(infos []mipmap.LevelInfo) string {
	var b strings.Builder
	for _, info := range infos {
		switch info.State {
		case mipmap.LevelFinished:
			b.WriteByte('#')
		case mipmap.LevelWorking:
			b.WriteByte('~')
		case mipmap.LevelFailed:
			b.WriteByte('!')
		default:
			b.WriteByte('.')
		}
	}
	return b.String()
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numStyle    = cellStyle.Align(lipgloss.Right)
	missStyle   = cellStyle.Foreground(lipgloss.Color("9"))
)

var printer = message.NewPrinter(language.English)

// table renders the residency of every image.
func (v *viewer) table() string {
	sz := image.Pt(v.size, v.size)
	rows := make([][]string, 0, len(v.items))
	for _, it := range v.items {
		n := it.p.NativeSize()
		bound := "-"
		if l := it.mm.Bound(); l >= 0 && it.drawn {
			bound = fmt.Sprint(l)
		}
		rows = append(rows, []string{
			filepath.Base(it.path),
			fmt.Sprintf("%dx%d", n.X, n.Y),
			fmt.Sprint(it.p.Optimal(sz)),
			bound,
			levelGlyphs(it.p.Levels()),
			printer.Sprintf("%d", it.p.ResidentBytes()),
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("IMAGE", "NATIVE", "OPTIMAL", "BOUND", "LEVELS", "BYTES").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 3 && row < len(rows) && rows[row][3] == "-":
				return missStyle
			case col >= 2 && col != 4:
				return numStyle
			}
			return cellStyle
		}).
		Render()
}

// summary renders cache and texture counters on one line.
func (v *viewer) summary() string {
	s := v.cache.Stats()
	ts := v.rc.Stats()
	return printer.Sprintf("frame %d  view %dpx  tasks %d ok %d failed  peak queue %d  cpu %d bytes  gpu %d textures %d bytes %d uploads",
		v.frame, v.size, s.TasksFinished, s.TasksFailed, s.PendingHighWater,
		s.ResidentBytes, ts.Textures, ts.Bytes, ts.Uploads)
}

// runFrames zooms from the initial size to the largest native size over
// frames frames, then waits for the worker and prints the final state.
func runFrames(ctx context.Context, v *viewer, frames int, w io.Writer) error {
	start, end := float64(v.size), float64(v.maxEdge())
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for i := range frames {
		if frames > 1 {
			t := float64(i) / float64(frames-1)
			v.size = max(1, int(math.Round(start*math.Pow(end/start, t))))
		}
		v.step()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	if err := v.cache.WaitIdle(ctx); err != nil {
		return err
	}
	v.step()
	if _, err := fmt.Fprintln(w, v.table()); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, v.summary())
	return err
}
