package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/matteklund/homedeck/internal/backend"
	"github.com/matteklund/homedeck/internal/browse"
	"github.com/matteklund/homedeck/internal/catalog"
	"github.com/matteklund/homedeck/internal/media"
	"github.com/matteklund/homedeck/internal/playback"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testFixture struct {
	router *gin.Engine
	cat    *catalog.Catalog
	stream *backend.Mock
	album  *backend.Mock
}

func setupTest(t *testing.T) *testFixture {
	t.Helper()
	cat := catalog.New()
	cat.Upsert(media.NewStream("p1", "P1", "http://stream.example.com/p1.mp3"))
	cat.Upsert(media.NewAlbum("abbeyroad", "Abbey Road", []media.Track{
		{Number: 1, Title: "Come Together", Source: "/music/01.mp3"},
		{Number: 2, Title: "Something", Source: "/music/02.mp3"},
	}))

	stream := backend.NewMock(media.KindStream)
	album := backend.NewMock(media.KindLocalAlbum)
	hub := playback.New(cat, []backend.Interface{stream, album}, playback.Options{InitialVolume: 0.7}, zerolog.Nop())
	t.Cleanup(func() { _ = hub.Close() })

	refreshers := map[media.Kind]RefreshFunc{
		media.KindStream: func(context.Context) ([]media.Descriptor, error) {
			return []media.Descriptor{
				media.NewStream("p1", "P1", "http://stream.example.com/p1.mp3"),
				media.NewStream("p3", "P3", "http://stream.example.com/p3.mp3"),
			}, nil
		},
		media.KindRemoteFavorite: func(context.Context) ([]media.Descriptor, error) {
			return nil, errors.New("speaker unreachable")
		},
	}

	api := NewAPI(hub, cat, browse.NewRegistry(cat), refreshers, zerolog.Nop())
	return &testFixture{
		router: SetupRouter(api),
		cat:    cat,
		stream: stream,
		album:  album,
	}
}

func (f *testFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	f := setupTest(t)
	w := f.do(t, "GET", "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestStatusStopped(t *testing.T) {
	f := setupTest(t)
	w := f.do(t, "GET", "/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	require.Equal(t, "stopped", body["status"])
	require.Equal(t, 0.7, body["volume"])
}

func TestPlayAndStatus(t *testing.T) {
	f := setupTest(t)
	w := f.do(t, "POST", "/play/p1", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, f.do(t, "GET", "/status", ""))
	require.Equal(t, "playing", body["status"])
	require.Equal(t, "p1", body["current_media_id"])
	require.Equal(t, []string{"p1"}, f.stream.LoadCalls())
}

func TestPlayAlbumWithTrackParam(t *testing.T) {
	f := setupTest(t)
	w := f.do(t, "POST", "/play/abbeyroad?track=1", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, f.do(t, "GET", "/status", ""))
	require.Equal(t, float64(1), body["track_position"])
	track := body["current_track"].(map[string]any)
	require.Equal(t, "Something", track["title"])
}

func TestPlayUnknownMedia(t *testing.T) {
	f := setupTest(t)
	w := f.do(t, "POST", "/play/nope", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "not_found", decode(t, w)["code"])
}

func TestPlayBadTrackParam(t *testing.T) {
	f := setupTest(t)
	w := f.do(t, "POST", "/play/abbeyroad?track=first", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPauseWhileStopped(t *testing.T) {
	f := setupTest(t)
	w := f.do(t, "POST", "/pause", "")
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "invalid_state", decode(t, w)["code"])
}

func TestPauseUnsupportedOnStream(t *testing.T) {
	f := setupTest(t)
	f.stream.SetPauseError(backend.ErrUnsupported)
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/play/p1", "").Code)

	w := f.do(t, "POST", "/pause", "")
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "unsupported", decode(t, w)["code"])
}

func TestTransportFlow(t *testing.T) {
	f := setupTest(t)
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/play/abbeyroad", "").Code)
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/pause", "").Code)
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/resume", "").Code)
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/next", "").Code)

	body := decode(t, f.do(t, "GET", "/status", ""))
	require.Equal(t, "playing", body["status"])
	require.Equal(t, float64(1), body["track_position"])

	require.Equal(t, http.StatusOK, f.do(t, "POST", "/previous", "").Code)
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/stop", "").Code)
	require.Equal(t, "stopped", decode(t, f.do(t, "GET", "/status", ""))["status"])
}

func TestNextOnStreamRejected(t *testing.T) {
	f := setupTest(t)
	require.Equal(t, http.StatusOK, f.do(t, "POST", "/play/p1", "").Code)

	w := f.do(t, "POST", "/next", "")
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "invalid_state", decode(t, w)["code"])
}

func TestVolume(t *testing.T) {
	f := setupTest(t)
	w := f.do(t, "POST", "/volume/0.5", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 0.5, decode(t, w)["volume"])

	// Out-of-range input is clamped, not rejected.
	w = f.do(t, "POST", "/volume/1.7", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1.0, decode(t, w)["volume"])

	require.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/volume/loud", "").Code)
}

func TestListMedia(t *testing.T) {
	f := setupTest(t)
	body := decode(t, f.do(t, "GET", "/media", ""))
	require.Equal(t, float64(2), body["count"])

	body = decode(t, f.do(t, "GET", "/media?kind=stream", ""))
	require.Equal(t, float64(1), body["count"])

	require.Equal(t, http.StatusBadRequest, f.do(t, "GET", "/media?kind=cassette", "").Code)
}

func TestUpsertAndRemoveMedia(t *testing.T) {
	f := setupTest(t)
	w := f.do(t, "POST", "/media", `{"id":"p2","kind":"stream","display_name":"P2","url":"http://stream.example.com/p2.mp3"}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, f.do(t, "GET", "/media", ""))
	require.Equal(t, float64(3), body["count"])

	require.Equal(t, http.StatusOK, f.do(t, "DELETE", "/media/p2", "").Code)
	body = decode(t, f.do(t, "GET", "/media", ""))
	require.Equal(t, float64(2), body["count"])
}

func TestUpsertValidation(t *testing.T) {
	f := setupTest(t)
	require.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/media", `{"id":"x","kind":"stream"}`).Code)
	require.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/media", `{"kind":"stream","url":"http://x"}`).Code)
	require.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/media", `{"id":"x","kind":"vinyl"}`).Code)
}

func TestRefreshKind(t *testing.T) {
	f := setupTest(t)
	w := f.do(t, "POST", "/media/refresh/stream", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(2), decode(t, w)["count"])

	ids := make([]string, 0)
	for _, d := range f.cat.List() {
		ids = append(ids, d.ID())
	}
	// p1 keeps its position, the album is untouched, p3 is appended.
	require.Equal(t, []string{"p1", "abbeyroad", "p3"}, ids)
}

func TestRefreshKindFailure(t *testing.T) {
	f := setupTest(t)
	w := f.do(t, "POST", "/media/refresh/remote_favorite", "")
	require.Equal(t, http.StatusBadGateway, w.Code)
}

func TestRefreshKindWithoutRefresher(t *testing.T) {
	f := setupTest(t)
	require.Equal(t, http.StatusNotImplemented, f.do(t, "POST", "/media/refresh/local_album", "").Code)
	require.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/media/refresh/vinyl", "").Code)
}

func TestBrowseFlow(t *testing.T) {
	f := setupTest(t)
	w := f.do(t, "POST", "/browse", `{"window_size":1,"mode":"bounded"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	id := body["cursor_id"].(string)
	require.NotEmpty(t, id)

	w = f.do(t, "POST", "/browse/"+id+"/advance", `{"delta":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	window := decode(t, w)
	require.Equal(t, float64(1), window["start"])
	items := window["items"].([]any)
	require.Len(t, items, 1)
	require.Equal(t, "abbeyroad", items[0].(map[string]any)["id"])

	w = f.do(t, "POST", "/browse/"+id+"/reset", "")
	require.Equal(t, float64(0), decode(t, w)["start"])

	require.Equal(t, http.StatusOK, f.do(t, "GET", "/browse/"+id, "").Code)
	require.Equal(t, http.StatusOK, f.do(t, "DELETE", "/browse/"+id, "").Code)
	require.Equal(t, http.StatusNotFound, f.do(t, "GET", "/browse/"+id, "").Code)
}

func TestBrowseValidation(t *testing.T) {
	f := setupTest(t)
	require.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/browse", `{"mode":"circular"}`).Code)
	require.Equal(t, http.StatusNotFound, f.do(t, "GET", "/browse/nope", "").Code)
}

func TestEventsStreamOpensWithStatus(t *testing.T) {
	f := setupTest(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL+"/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", strings.Split(resp.Header.Get("Content-Type"), ";")[0])

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "event:status", strings.TrimSpace(line))

	data, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, data, `"status":"stopped"`)
}

func TestCORSPreflight(t *testing.T) {
	f := setupTest(t)
	w := f.do(t, "OPTIONS", "/status", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
