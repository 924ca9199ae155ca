// Command mipview loads images through mipcache and shows which pyramid
// levels are resident while a simulated view zooms in on them.
//
// Usage:
//
//	mipview [-config file] [-frames n] [-zoom px] [-watch] [-v] image...
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gogpu/mipcache"
	"github.com/gogpu/mipcache/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "config file (default ~/.config/mipcache/config.toml)")
	frames := flag.Int("frames", 60, "frames to simulate in one-shot mode")
	zoom := flag.Int("zoom", 32, "initial view edge length in pixels")
	watch := flag.Bool("watch", false, "interactive view; +/- zoom, q quits")
	verbose := flag.Bool("v", false, "debug logging to stderr")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: mipview [flags] image...\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mipview: %v\n", err)
		return 1
	}
	mipcache.SetLogger(newLogger(cfg.LogLevel, *verbose, *watch))

	c, err := mipcache.New(cfg.Options()...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mipview: %v\n", err)
		return 1
	}
	defer func() {
		if err := c.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "mipview: %v\n", err)
		}
	}()

	v, err := newViewer(c, cfg.TextureCache(), flag.Args(), *zoom)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mipview: %v\n", err)
		return 1
	}
	defer v.close()

	if *watch {
		err = runWatch(ctx, v)
	} else {
		err = runFrames(ctx, v, *frames, os.Stdout)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "mipview: %v\n", err)
		return 1
	}
	return 0
}

// newLogger logs to stderr at the configured level. The interactive view
// owns the terminal, so it only logs with -v.
func newLogger(level slog.Level, verbose, watch bool) *slog.Logger {
	if watch && !verbose {
		return nil
	}
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
