// homedeck is a home media-control hub: one process owning the "now
// playing" state for internet radio, local albums, and a networked speaker,
// controlled over HTTP by button grids and touch surfaces.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/matteklund/homedeck/internal/backend"
	"github.com/matteklund/homedeck/internal/browse"
	"github.com/matteklund/homedeck/internal/catalog"
	"github.com/matteklund/homedeck/internal/config"
	"github.com/matteklund/homedeck/internal/engine"
	"github.com/matteklund/homedeck/internal/library"
	"github.com/matteklund/homedeck/internal/media"
	"github.com/matteklund/homedeck/internal/playback"
	"github.com/matteklund/homedeck/internal/server"
	"github.com/matteklund/homedeck/internal/speaker"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: XDG config, then ./config.toml)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()

	if err := run(*configPath, log); err != nil {
		log.Fatal().Err(err).Msg("hub exited")
	}
}

func run(configPath string, log zerolog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cat := catalog.New()
	for _, st := range cfg.Stations {
		name := st.Name
		if name == "" {
			name = st.ID
		}
		cat.Upsert(media.NewStream(st.ID, name, st.URL).WithDetails(st.Description, st.Artwork))
	}
	log.Info().Int("stations", len(cfg.Stations)).Msg("catalog seeded from config")

	eng, err := engine.NewPlayer(cfg.Playback.Volume)
	if err != nil {
		return fmt.Errorf("init audio engine: %w", err)
	}
	defer eng.Close()

	backends := []backend.Interface{
		backend.NewStreamPlayer(eng),
		backend.NewAlbumPlayer(eng),
	}
	refreshers := make(map[media.Kind]server.RefreshFunc)

	if cfg.MusicFolder != "" {
		scanner := library.NewScanner(log)
		scanAlbums := func(context.Context) ([]media.Descriptor, error) {
			return scanner.Scan(cfg.MusicFolder)
		}
		albums, err := scanAlbums(context.Background())
		if err != nil {
			log.Warn().Err(err).Str("folder", cfg.MusicFolder).Msg("album scan failed")
		} else {
			cat.ReplaceKind(media.KindLocalAlbum, albums)
			log.Info().Int("albums", len(albums)).Msg("music folder scanned")
		}
		refreshers[media.KindLocalAlbum] = scanAlbums
	}

	if cfg.Speaker.Enabled {
		ctrl := speaker.NewClient(cfg.Speaker.Address)
		backends = append(backends, backend.NewRemotePlayer(ctrl))
		loadFavorites := func(ctx context.Context) ([]media.Descriptor, error) {
			return fetchFavorites(ctx, ctrl)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		favorites, err := loadFavorites(ctx)
		cancel()
		if err != nil {
			// The speaker may simply be off; its favorites show up on the
			// next refresh.
			log.Warn().Err(err).Str("speaker", cfg.Speaker.Address).Msg("favorites unavailable")
		} else {
			cat.ReplaceKind(media.KindRemoteFavorite, favorites)
			log.Info().Int("favorites", len(favorites)).Str("speaker", cfg.Speaker.Address).Msg("speaker favorites loaded")
		}
		refreshers[media.KindRemoteFavorite] = loadFavorites
	}

	hub := playback.New(cat, backends, playback.Options{
		LoadTimeout:   time.Duration(cfg.Playback.LoadTimeoutSeconds) * time.Second,
		PauseFallback: cfg.Playback.PauseFallback,
		InitialVolume: cfg.Playback.Volume,
	}, log)
	defer hub.Close()

	api := server.NewAPI(hub, cat, browse.NewRegistry(cat), refreshers, log)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.SetupRouter(api),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Info().Str("addr", cfg.ListenAddr).Msg("hub listening")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// fetchFavorites maps the speaker's presets into catalog descriptors, the
// handle doubling as the catalog id.
func fetchFavorites(ctx context.Context, ctrl speaker.Controller) ([]media.Descriptor, error) {
	favs, err := ctrl.Favorites(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]media.Descriptor, 0, len(favs))
	for _, f := range favs {
		d := media.NewFavorite(f.Handle, f.Title, f.Handle, f.TrackCount).
			WithDetails(f.Descr, f.ArtworkURL)
		out = append(out, d)
	}
	return out, nil
}
