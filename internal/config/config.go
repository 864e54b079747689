// Package config loads the hub configuration from TOML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	ListenAddr  string `koanf:"listen_addr"`  // HTTP bind address
	MusicFolder string `koanf:"music_folder"` // root of local album directories

	Playback PlaybackConfig `koanf:"playback"`

	// Stations are the configured internet radio streams, in the order
	// they appear on control surfaces.
	Stations []StationConfig `koanf:"station"`

	// Speaker enables the remote-speaker backend when configured.
	Speaker SpeakerConfig `koanf:"speaker"`

	Carousel CarouselConfig `koanf:"carousel"`
}

// PlaybackConfig holds orchestrator tuning.
type PlaybackConfig struct {
	Volume             float64 `koanf:"volume"`               // initial output level, (0.0, 1.0]
	PauseFallback      bool    `koanf:"pause_fallback"`       // stop+restart when the media cannot pause
	LoadTimeoutSeconds int     `koanf:"load_timeout_seconds"` // bound on media load
}

// StationConfig is one configured radio stream.
type StationConfig struct {
	ID          string `koanf:"id"`
	Name        string `koanf:"name"`
	URL         string `koanf:"url"`
	Description string `koanf:"description"`
	Artwork     string `koanf:"artwork"`
}

// SpeakerConfig holds remote-speaker settings.
type SpeakerConfig struct {
	Enabled bool   `koanf:"enabled"`
	Address string `koanf:"address"` // host or host:port of the speaker
	Name    string `koanf:"name"`    // display name, optional
}

// CarouselConfig holds browse-cursor defaults for button-grid surfaces.
type CarouselConfig struct {
	WindowSize       int    `koanf:"window_size"`        // visible entries (default: 3)
	Mode             string `koanf:"mode"`               // "bounded" or "wrap" (default: "bounded")
	AutoResetSeconds int    `koanf:"auto_reset_seconds"` // idle reset, 0 disables
}

// Load reads configuration. With an explicit path only that file is read;
// otherwise the XDG config file is tried first and ./config.toml overrides
// it. A missing default file is not an error.
func Load(explicitPath string) (*Config, error) {
	k := koanf.New(".")

	if explicitPath != "" {
		if err := k.Load(file.Provider(explicitPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", explicitPath, err)
		}
	} else {
		for _, path := range defaultConfigPaths() {
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("load config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	cfg.MusicFolder = expandPath(cfg.MusicFolder)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.Playback.Volume <= 0 || c.Playback.Volume > 1 {
		c.Playback.Volume = 0.7
	}
	if c.Playback.LoadTimeoutSeconds <= 0 {
		c.Playback.LoadTimeoutSeconds = 10
	}
	if c.Carousel.WindowSize <= 0 {
		c.Carousel.WindowSize = 3
	}
	if c.Carousel.Mode == "" {
		c.Carousel.Mode = "bounded"
	}
	if c.Carousel.AutoResetSeconds < 0 {
		c.Carousel.AutoResetSeconds = 0
	}
}

func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Stations))
	for i, st := range c.Stations {
		if st.ID == "" {
			return fmt.Errorf("station %d: missing id", i)
		}
		if st.URL == "" {
			return fmt.Errorf("station %q: missing url", st.ID)
		}
		if seen[st.ID] {
			return fmt.Errorf("station %q: duplicate id", st.ID)
		}
		seen[st.ID] = true
	}
	if c.Speaker.Enabled && c.Speaker.Address == "" {
		return fmt.Errorf("speaker enabled but no address configured")
	}
	return nil
}

func defaultConfigPaths() []string {
	return []string{
		filepath.Join(xdg.ConfigHome, "homedeck", "config.toml"),
		"config.toml",
	}
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
