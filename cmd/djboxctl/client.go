package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// client talks to the playback API of one guild.
type client struct {
	http    *http.Client
	baseURL string
	guild   string
}

func newClient(httpClient *http.Client, baseURL, guild string) *client {
	return &client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		guild:   guild,
	}
}

// apiError is an error reply of the server.
type apiError struct {
	Status  int
	Message string `json:"error"`
	Code    string `json:"code"`
}

func (e *apiError) Error() string {
	if e.Code != "" {
		return e.Message + " (" + e.Code + ")"
	}
	return e.Message
}

type trackView struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Author        string `json:"author"`
	DurationMs    int64  `json:"duration_ms"`
	URI           string `json:"uri"`
	Source        string `json:"source"`
	RequesterName string `json:"requester_name"`
}

type nowPlaying struct {
	State       string     `json:"state"`
	Track       *trackView `json:"track"`
	PositionMs  int64      `json:"position_ms"`
	Volume      int        `json:"volume"`
	Votes       int        `json:"votes"`
	RepeatMode  string     `json:"repeat_mode"`
	QueueType   string     `json:"queue_type"`
	QueueLength int        `json:"queue_length"`
	Pending     int        `json:"pending"`
}

type enqueueResult struct {
	Added []struct {
		Track    trackView `json:"track"`
		Position int       `json:"position"`
	} `json:"added"`
	Rejected []struct {
		Title string `json:"title"`
		Code  string `json:"code"`
	} `json:"rejected"`
}

type skipResult struct {
	Votes    int        `json:"votes"`
	Required int        `json:"required"`
	Skipped  bool       `json:"skipped"`
	Track    *trackView `json:"track"`
}

func (c *client) guildPath(p string) string {
	return "/guilds/" + url.PathEscape(c.guild) + p
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

func (c *client) NowPlaying(ctx context.Context) (*nowPlaying, error) {
	var out nowPlaying
	if err := c.do(ctx, http.MethodGet, c.guildPath("/now-playing"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) Queue(ctx context.Context) ([]trackView, error) {
	var out struct {
		Tracks []trackView `json:"tracks"`
	}
	if err := c.do(ctx, http.MethodGet, c.guildPath("/queue"), nil, &out); err != nil {
		return nil, err
	}
	return out.Tracks, nil
}

func (c *client) Play(ctx context.Context, query, userID, userName string, front bool) (*enqueueResult, error) {
	body := map[string]any{"query": query, "user_id": userID, "user_name": userName, "front": front}
	var out enqueueResult
	if err := c.do(ctx, http.MethodPost, c.guildPath("/queue"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) Skip(ctx context.Context, userID string, listeners int) (*skipResult, error) {
	body := map[string]any{"user_id": userID, "listeners": listeners}
	var out skipResult
	if err := c.do(ctx, http.MethodPost, c.guildPath("/skip"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) SkipTo(ctx context.Context, position int) error {
	return c.do(ctx, http.MethodPost, c.guildPath("/skip-to"), map[string]any{"position": position}, nil)
}

func (c *client) Remove(ctx context.Context, position int) error {
	return c.do(ctx, http.MethodDelete, c.guildPath("/queue/"+strconv.Itoa(position)), nil, nil)
}

func (c *client) Pause(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, c.guildPath("/pause"), nil, nil)
}

func (c *client) Resume(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, c.guildPath("/resume"), nil, nil)
}

func (c *client) Stop(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, c.guildPath("/stop"), nil, nil)
}

func (c *client) SetRepeat(ctx context.Context, mode string) error {
	return c.do(ctx, http.MethodPut, c.guildPath("/repeat"), map[string]any{"mode": mode}, nil)
}

func (c *client) SetQueueType(ctx context.Context, t string) error {
	return c.do(ctx, http.MethodPut, c.guildPath("/queue-type"), map[string]any{"type": t}, nil)
}

func (c *client) Leave(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, c.guildPath("/"), nil, nil)
}

func (c *client) Playlists(ctx context.Context) ([]string, error) {
	var out struct {
		Playlists []string `json:"playlists"`
	}
	if err := c.do(ctx, http.MethodGet, "/playlists", nil, &out); err != nil {
		return nil, err
	}
	return out.Playlists, nil
}
