// Package collectives talks to the groupware: the OCS API for page
// listings and WebDAV for the raw markdown behind each page.
package collectives

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/treibhausdonaufeld/nextcloud-bot/internal/model"
)

// Client is an authenticated Nextcloud client for one instance.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	log      zerolog.Logger
}

func NewClient(baseURL, username, password string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		http:     &http.Client{Timeout: 30 * time.Second},
		log:      log.With().Str("component", "collectives").Logger(),
	}
}

// ocsEnvelope is the outer OCS response wrapper. The data shape varies
// between server versions, so it stays raw until ListPages decodes it.
type ocsEnvelope struct {
	OCS struct {
		Data json.RawMessage `json:"data"`
	} `json:"ocs"`
}

// ListPages returns the page listing of one collective.
func (c *Client) ListPages(ctx context.Context, collectiveID int) ([]model.OCSPage, error) {
	endpoint := fmt.Sprintf("%s/ocs/v2.php/apps/collectives/api/v1.0/collectives/%d/pages", c.baseURL, collectiveID)

	body, err := c.get(ctx, endpoint, true)
	if err != nil {
		return nil, fmt.Errorf("list pages for collective %d: %w", collectiveID, err)
	}

	var envelope ocsEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode page listing: %w", err)
	}
	return decodePages(envelope.OCS.Data)
}

// decodePages tolerates the two data shapes seen in the wild: a bare
// array, or an object with a "pages" array.
func decodePages(data json.RawMessage) ([]model.OCSPage, error) {
	var pages []model.OCSPage
	if err := json.Unmarshal(data, &pages); err == nil {
		return pages, nil
	}

	var wrapped struct {
		Pages []model.OCSPage `json:"pages"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("unexpected page listing shape: %w", err)
	}
	return wrapped.Pages, nil
}

// FetchContent downloads the markdown of one page over WebDAV.
func (c *Client) FetchContent(ctx context.Context, page model.OCSPage) (string, error) {
	davPath := path.Join("remote.php/dav/files", c.username, page.CollectivePath, page.FilePath, page.FileName)
	endpoint := c.baseURL + "/" + escapePath(davPath)

	body, err := c.get(ctx, endpoint, false)
	if err != nil {
		return "", fmt.Errorf("fetch content of page %d: %w", page.ID, err)
	}
	return string(body), nil
}

func (c *Client) get(ctx context.Context, endpoint string, ocs bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	if ocs {
		req.Header.Set("OCS-APIRequest", "true")
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// escapePath percent-encodes each path segment while keeping the
// separators, since page and folder names routinely carry spaces.
func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
