// Package config loads mipview settings from a TOML file.
//
// # Configuration Discovery
//
// Load follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/mipcache/config.toml
//  3. If the config file doesn't exist, fall back to defaults
//  4. If the file exists but fields are missing or zero, use defaults
//
// # TOML Format
//
//	cache_dir     = "~/.cache/mipcache"  # empty: ".cache" beside each image
//	cache_codec   = "snappy"             # "png" or "snappy"; omit to disable
//	cache_entries = 4096
//	purge_seconds = 5
//	grace_frames  = 10
//	idle_frames   = 120
//	max_textures  = 256
//	filter        = "box"                # "box", "bilinear", "catmullrom"
//	band_rows     = 256
//	tie_slack     = 0
//	log_level     = "info"
//
// Unknown filter, codec or log level names are errors rather than silently
// replaced by defaults.
package config
