package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/gogpu/mipcache"
	"github.com/gogpu/mipcache/internal/diskcache"
	intImage "github.com/gogpu/mipcache/internal/image"
	"github.com/gogpu/mipcache/mipmap"
	"github.com/gogpu/mipcache/texture"
)

// Config holds the resolved settings.
type Config struct {
	DiskCache    bool
	CacheDir     string
	CacheCodec   mipmap.Codec
	CacheEntries int
	PurgeTime    time.Duration
	GraceFrames  int
	IdleFrames   int
	MaxTextures  int
	Filter       mipmap.Filter
	BandRows     int
	TieSlack     int
	LogLevel     slog.Level
}

const (
	defaultConfigPath  = "~/.config/mipcache/config.toml"
	defaultIdleFrames  = 120
	defaultMaxTextures = 256
)

// Default returns the settings used when no config file exists.
func Default() Config {
	return Config{
		PurgeTime:   mipmap.DefaultPurgeTime,
		GraceFrames: texture.DefaultGraceFrames,
		IdleFrames:  defaultIdleFrames,
		MaxTextures: defaultMaxTextures,
		Filter:      mipmap.FilterBox,
		BandRows:    mipmap.DefaultBandRows,
		LogLevel:    slog.LevelInfo,
	}
}

// Load locates and parses the config, falling back to defaults when missing.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		CacheDir     string  `toml:"cache_dir"`
		CacheCodec   string  `toml:"cache_codec"`
		CacheEntries int     `toml:"cache_entries"`
		PurgeSeconds float64 `toml:"purge_seconds"`
		GraceFrames  int     `toml:"grace_frames"`
		IdleFrames   int     `toml:"idle_frames"`
		MaxTextures  int     `toml:"max_textures"`
		Filter       string  `toml:"filter"`
		BandRows     int     `toml:"band_rows"`
		TieSlack     int     `toml:"tie_slack"`
		LogLevel     string  `toml:"log_level"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if codec := strings.TrimSpace(raw.CacheCodec); codec != "" {
		cfg.CacheCodec, err = diskcache.ParseCodec(codec)
		if err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
		cfg.DiskCache = true
	}
	if dir := strings.TrimSpace(raw.CacheDir); dir != "" {
		cfg.CacheDir, err = expandPath(dir)
		if err != nil {
			return Config{}, err
		}
		cfg.DiskCache = true
	}
	cfg.CacheEntries = max(raw.CacheEntries, 0)

	if raw.PurgeSeconds > 0 {
		cfg.PurgeTime = time.Duration(raw.PurgeSeconds * float64(time.Second))
	}
	if raw.GraceFrames > 0 {
		cfg.GraceFrames = raw.GraceFrames
	}
	if raw.IdleFrames > 0 {
		cfg.IdleFrames = raw.IdleFrames
	}
	if raw.MaxTextures > 0 {
		cfg.MaxTextures = raw.MaxTextures
	}
	if raw.BandRows > 0 {
		cfg.BandRows = raw.BandRows
	}
	cfg.TieSlack = max(raw.TieSlack, 0)

	cfg.Filter, err = intImage.ParseFilter(raw.Filter)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if lvl := strings.TrimSpace(raw.LogLevel); lvl != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(lvl)); err != nil {
			return Config{}, fmt.Errorf("parse config: log_level: %w", err)
		}
	}

	return cfg, nil
}

// Options converts the settings to cache options.
func (c Config) Options() []mipcache.Option {
	opts := []mipcache.Option{
		mipcache.WithFilter(c.Filter),
		mipcache.WithBandRows(c.BandRows),
		mipcache.WithPurgeTime(c.PurgeTime),
		mipcache.WithTextureOptions(
			texture.WithGraceFrames(c.GraceFrames),
			texture.WithSlack(c.TieSlack),
		),
	}
	if c.DiskCache {
		opts = append(opts,
			mipcache.WithDiskCache(c.CacheDir, c.CacheCodec),
			mipcache.WithCacheEntries(c.CacheEntries),
		)
	}
	return opts
}

// TextureCache returns the resource cache settings.
func (c Config) TextureCache() texture.CacheConfig {
	return texture.CacheConfig{IdleFrames: c.IdleFrames, MaxTextures: c.MaxTextures}
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
