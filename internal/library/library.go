// Package library turns a music folder into local-album catalog entries.
// Each immediate subdirectory of the root is one album; its tracks are
// files named `NN.Title.ext`, played in track-number order.
package library

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dhowden/tag"
	"github.com/rs/zerolog"

	"github.com/matteklund/homedeck/internal/media"
)

// trackFilePattern matches `NN.Title.ext` track files.
var trackFilePattern = regexp.MustCompile(`^(\d+)\.(.+)\.(?i:mp3|flac)$`)

// Scanner builds album descriptors from a music folder.
type Scanner struct {
	log zerolog.Logger
}

// NewScanner creates a scanner.
func NewScanner(log zerolog.Logger) *Scanner {
	return &Scanner{log: log}
}

// Scan reads the music folder and returns one descriptor per album
// directory, tracks sorted by number ascending. Directories without any
// parseable track are skipped. Files that do not match the naming
// convention are logged and ignored rather than failing the scan.
func (s *Scanner) Scan(root string) ([]media.Descriptor, error) {
	dirents, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read music folder: %w", err)
	}

	var albums []media.Descriptor
	for _, d := range dirents {
		if !d.IsDir() {
			continue
		}
		album, ok := s.scanAlbum(filepath.Join(root, d.Name()), d.Name())
		if !ok {
			continue
		}
		albums = append(albums, album)
	}
	return albums, nil
}

func (s *Scanner) scanAlbum(dir, name string) (media.Descriptor, bool) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		s.log.Warn().Err(err).Str("album", name).Msg("skip unreadable album directory")
		return media.Descriptor{}, false
	}

	var tracks []media.Track
	seen := make(map[int]bool)
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		t, ok := s.parseTrack(dir, d.Name())
		if !ok {
			continue
		}
		if seen[t.Number] {
			s.log.Warn().Str("album", name).Int("number", t.Number).Msg("skip duplicate track number")
			continue
		}
		seen[t.Number] = true
		tracks = append(tracks, t)
	}
	if len(tracks) == 0 {
		return media.Descriptor{}, false
	}

	sort.Slice(tracks, func(i, j int) bool { return tracks[i].Number < tracks[j].Number })
	return media.NewAlbum(albumID(name), name, tracks), true
}

// parseTrack reads number and title from the filename convention, then lets
// embedded tags override the title when the file carries them.
func (s *Scanner) parseTrack(dir, filename string) (media.Track, bool) {
	m := trackFilePattern.FindStringSubmatch(filename)
	if m == nil {
		if isAudioFile(filename) {
			s.log.Debug().Str("file", filename).Msg("skip file outside naming convention")
		}
		return media.Track{}, false
	}

	number, err := strconv.Atoi(m[1])
	if err != nil {
		return media.Track{}, false
	}
	path := filepath.Join(dir, filename)
	t := media.Track{
		Number: number,
		Title:  m[2],
		Source: path,
	}
	if title := readTagTitle(path); title != "" {
		t.Title = title
	}
	return t, true
}

// readTagTitle returns the embedded title tag, or empty when the file has
// none or cannot be read.
func readTagTitle(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	meta, err := tag.ReadFrom(f)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(meta.Title())
}

func isAudioFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3", ".flac":
		return true
	}
	return false
}

// albumID derives a stable catalog id from the album directory name.
func albumID(name string) string {
	id := strings.ToLower(name)
	id = strings.ReplaceAll(id, " ", "_")
	return id
}
