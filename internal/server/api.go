// Package server binds the playback, catalog, and browse contracts to HTTP.
// It is thin glue: every handler parses, delegates, and maps typed errors to
// status codes.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/matteklund/homedeck/internal/browse"
	"github.com/matteklund/homedeck/internal/catalog"
	"github.com/matteklund/homedeck/internal/media"
	"github.com/matteklund/homedeck/internal/playback"
)

// RefreshFunc rescans one media kind and returns its fresh descriptors. The
// handler replaces that kind in the catalog with the result.
type RefreshFunc func(ctx context.Context) ([]media.Descriptor, error)

// API holds the HTTP handlers.
type API struct {
	log        zerolog.Logger
	hub        *playback.Orchestrator
	cat        *catalog.Catalog
	cursors    *browse.Registry
	refreshers map[media.Kind]RefreshFunc
}

// NewAPI creates the handler set. refreshers may be nil or partial; kinds
// without a refresher reject refresh requests.
func NewAPI(hub *playback.Orchestrator, cat *catalog.Catalog, cursors *browse.Registry, refreshers map[media.Kind]RefreshFunc, log zerolog.Logger) *API {
	return &API{
		log:        log,
		hub:        hub,
		cat:        cat,
		cursors:    cursors,
		refreshers: refreshers,
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError maps the playback error taxonomy onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	var le *playback.LoadError
	switch {
	case errors.Is(err, playback.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, playback.ErrInvalidState):
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error(), Code: "invalid_state"})
	case errors.Is(err, playback.ErrUnsupported):
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error(), Code: "unsupported"})
	case errors.Is(err, playback.ErrSuperseded):
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error(), Code: "superseded"})
	case errors.Is(err, playback.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error(), Code: "shutting_down"})
	case errors.As(err, &le):
		c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error(), Code: "load_failed"})
	default:
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error(), Code: "internal"})
	}
}

func ack(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Play starts playback of a catalog entry. An optional `track` query
// parameter selects the zero-based starting track for multi-track media.
func (a *API) Play(c *gin.Context) {
	trackHint := 0
	if raw := c.Query("track"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "track must be a non-negative integer", Code: "bad_request"})
			return
		}
		trackHint = n
	}

	if err := a.hub.PlayMedia(c.Param("id"), trackHint); err != nil {
		writeError(c, err)
		return
	}
	ack(c)
}

func (a *API) Stop(c *gin.Context) {
	if err := a.hub.Stop(); err != nil {
		writeError(c, err)
		return
	}
	ack(c)
}

func (a *API) Pause(c *gin.Context) {
	if err := a.hub.Pause(); err != nil {
		writeError(c, err)
		return
	}
	ack(c)
}

func (a *API) Resume(c *gin.Context) {
	if err := a.hub.Resume(); err != nil {
		writeError(c, err)
		return
	}
	ack(c)
}

func (a *API) Next(c *gin.Context) {
	if err := a.hub.NextTrack(); err != nil {
		writeError(c, err)
		return
	}
	ack(c)
}

func (a *API) Previous(c *gin.Context) {
	if err := a.hub.PreviousTrack(); err != nil {
		writeError(c, err)
		return
	}
	ack(c)
}

// Volume sets the output level from the path parameter, e.g. /volume/0.6.
func (a *API) Volume(c *gin.Context) {
	level, err := strconv.ParseFloat(c.Param("level"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "level must be a number", Code: "bad_request"})
		return
	}
	if err := a.hub.SetVolume(level); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "volume": a.hub.Status().Volume})
}

func (a *API) Status(c *gin.Context) {
	c.JSON(http.StatusOK, a.hub.Status())
}

// ListMedia returns catalog summaries, optionally filtered by kind.
func (a *API) ListMedia(c *gin.Context) {
	kind := media.Kind(c.Query("kind"))
	if kind != "" && !kind.Valid() {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "unknown media kind", Code: "bad_request"})
		return
	}

	var entries []media.Descriptor
	if kind != "" {
		entries = a.cat.ListKind(kind)
	} else {
		entries = a.cat.List()
	}

	out := make([]media.Summary, 0, len(entries))
	for _, d := range entries {
		out = append(out, d.Summarize())
	}
	c.JSON(http.StatusOK, gin.H{"media": out, "count": len(out)})
}

// upsertRequest carries one descriptor in its wire form. Exactly the fields
// matching kind are required.
type upsertRequest struct {
	ID          string        `json:"id" binding:"required"`
	Kind        media.Kind    `json:"kind" binding:"required"`
	DisplayName string        `json:"display_name"`
	Description string        `json:"description"`
	Artwork     string        `json:"artwork"`
	URL         string        `json:"url"`
	Tracks      []media.Track `json:"tracks"`
	Handle      string        `json:"handle"`
	TrackCount  int           `json:"track_count"`
}

func (r upsertRequest) toDescriptor() (media.Descriptor, error) {
	name := r.DisplayName
	if name == "" {
		name = r.ID
	}
	var d media.Descriptor
	switch r.Kind {
	case media.KindStream:
		if r.URL == "" {
			return d, errors.New("stream descriptor requires url")
		}
		d = media.NewStream(r.ID, name, r.URL)
	case media.KindLocalAlbum:
		if len(r.Tracks) == 0 {
			return d, errors.New("album descriptor requires tracks")
		}
		d = media.NewAlbum(r.ID, name, r.Tracks)
	case media.KindRemoteFavorite:
		if r.Handle == "" {
			return d, errors.New("favorite descriptor requires handle")
		}
		d = media.NewFavorite(r.ID, name, r.Handle, r.TrackCount)
	default:
		return d, errors.New("unknown media kind")
	}
	return d.WithDetails(r.Description, r.Artwork), nil
}

func (a *API) UpsertMedia(c *gin.Context) {
	var req upsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	d, err := req.toDescriptor()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	a.cat.Upsert(d)
	c.JSON(http.StatusOK, d.Summarize())
}

func (a *API) RemoveMedia(c *gin.Context) {
	a.cat.Remove(c.Param("id"))
	ack(c)
}

// RefreshKind rescans one kind's source and atomically replaces that kind
// in the catalog.
func (a *API) RefreshKind(c *gin.Context) {
	kind := media.Kind(c.Param("kind"))
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "unknown media kind", Code: "bad_request"})
		return
	}
	refresh, ok := a.refreshers[kind]
	if !ok {
		c.JSON(http.StatusNotImplemented, errorResponse{Error: "no refresh source for this kind", Code: "no_refresher"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()
	fresh, err := refresh(ctx)
	if err != nil {
		a.log.Warn().Err(err).Str("kind", string(kind)).Msg("refresh failed")
		c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error(), Code: "refresh_failed"})
		return
	}
	a.cat.ReplaceKind(kind, fresh)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "count": len(fresh)})
}

// createCursorRequest configures a new browse cursor.
type createCursorRequest struct {
	Kind             media.Kind `json:"kind"`
	WindowSize       int        `json:"window_size"`
	Mode             string     `json:"mode"`
	AutoResetSeconds int        `json:"auto_reset_seconds"`
}

func (a *API) CreateCursor(c *gin.Context) {
	var req createCursorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	if req.Kind != "" && !req.Kind.Valid() {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "unknown media kind", Code: "bad_request"})
		return
	}
	mode, err := browse.ParseMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}

	id, cursor := a.cursors.Create(browse.Options{
		Kind:       req.Kind,
		WindowSize: req.WindowSize,
		Mode:       mode,
		IdleReset:  time.Duration(req.AutoResetSeconds) * time.Second,
	})
	c.JSON(http.StatusOK, gin.H{"cursor_id": id, "window": cursor.Current()})
}

func (a *API) cursor(c *gin.Context) (*browse.Cursor, bool) {
	cursor, ok := a.cursors.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: "unknown cursor", Code: "not_found"})
		return nil, false
	}
	return cursor, true
}

func (a *API) GetWindow(c *gin.Context) {
	cursor, ok := a.cursor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, cursor.Current())
}

type advanceRequest struct {
	Delta int `json:"delta"`
}

func (a *API) AdvanceCursor(c *gin.Context) {
	cursor, ok := a.cursor(c)
	if !ok {
		return
	}
	var req advanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}
	c.JSON(http.StatusOK, cursor.Advance(req.Delta))
}

func (a *API) ResetCursor(c *gin.Context) {
	cursor, ok := a.cursor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, cursor.Reset())
}

func (a *API) RemoveCursor(c *gin.Context) {
	a.cursors.Remove(c.Param("id"))
	ack(c)
}
