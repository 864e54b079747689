package speaker

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a speaker bridge over its REST API. The bridge exposes
// the speaker's stored presets and transport controls:
//
//	GET  /favorites
//	POST /favorites/{id}/play
//	POST /pause | /play | /stop | /next | /previous
//	POST /volume/{percent}
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a bridge client for the given host or host:port.
func NewClient(address string) *Client {
	base := address
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL:    strings.TrimSuffix(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// favoriteItem is the bridge's wire form of one preset.
type favoriteItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ArtworkURL  string `json:"artwork_url"`
	TrackCount  int    `json:"track_count"`
}

// Favorites lists the presets stored on the speaker.
func (c *Client) Favorites(ctx context.Context) ([]Favorite, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/favorites", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bridge returned status %d", resp.StatusCode)
	}

	var items []favoriteItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := make([]Favorite, 0, len(items))
	for _, it := range items {
		out = append(out, Favorite{
			Handle:     it.ID,
			Title:      it.Title,
			Descr:      it.Description,
			ArtworkURL: it.ArtworkURL,
			TrackCount: it.TrackCount,
		})
	}
	return out, nil
}

// PlayFavorite asks the speaker to start the preset with the given handle.
func (c *Client) PlayFavorite(ctx context.Context, handle string) error {
	return c.post(ctx, "/favorites/"+url.PathEscape(handle)+"/play")
}

func (c *Client) Pause(ctx context.Context) error {
	return c.post(ctx, "/pause")
}

func (c *Client) Resume(ctx context.Context) error {
	return c.post(ctx, "/play")
}

func (c *Client) Stop(ctx context.Context) error {
	return c.post(ctx, "/stop")
}

func (c *Client) Next(ctx context.Context) error {
	return c.post(ctx, "/next")
}

func (c *Client) Previous(ctx context.Context) error {
	return c.post(ctx, "/previous")
}

// SetVolume maps the hub's [0.0, 1.0] level onto the bridge's percentage.
func (c *Client) SetVolume(ctx context.Context, level float64) error {
	percent := int(math.Round(level * 100))
	return c.post(ctx, fmt.Sprintf("/volume/%d", percent))
}

func (c *Client) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("bridge returned status %d", resp.StatusCode)
	}
	return nil
}

var _ Controller = (*Client)(nil)
