// Package plex reads the media server catalog over the Plex HTTP API.
package plex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/metafusion/metafusion/pkg/catalogs"
	"github.com/metafusion/metafusion/pkg/errors"
	"github.com/metafusion/metafusion/pkg/logging"
)

const (
	defaultTimeout = 30 * time.Second
	clientID       = "metafusion"
	product        = "MetaFusion"
	version        = "1.0"
)

// Config configures the Plex client.
type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// Validate checks the config for required fields.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.NewValidationError("url", c.URL, "server URL is required")
	}
	if c.Token == "" {
		return errors.NewValidationError("token", "", "server token is required")
	}
	return nil
}

// Client implements catalogs.Source against a Plex server. Any
// connectivity failure surfaces as a catalog error, which callers treat
// as fatal for the run.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a Plex client.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// Snapshot reads the current catalog state for the named libraries. An
// empty libraries slice means every movie and show library on the server.
func (c *Client) Snapshot(ctx context.Context, libraries []string) (*catalogs.Snapshot, error) {
	sections, err := c.sections(ctx)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(libraries))
	for _, name := range libraries {
		wanted[name] = true
	}

	var snapLibraries []catalogs.Library
	var items []catalogs.Item
	for _, section := range sections {
		mediaType, ok := sectionMediaType(section.Type)
		if !ok {
			continue
		}
		if len(wanted) > 0 && !wanted[section.Title] {
			continue
		}
		snapLibraries = append(snapLibraries, catalogs.Library{
			Name: section.Title,
			Type: mediaType,
		})

		sectionItems, err := c.sectionItems(ctx, section, mediaType)
		if err != nil {
			return nil, err
		}
		items = append(items, sectionItems...)

		logging.Ctx(ctx).Debug().
			Str("library", section.Title).
			Int("items", len(sectionItems)).
			Msg("Read library section")
	}

	for _, name := range libraries {
		found := false
		for _, lib := range snapLibraries {
			if lib.Name == name {
				found = true
				break
			}
		}
		if !found {
			return nil, errors.NewCatalogError(c.baseURL, name, "library not found on server", nil)
		}
	}

	return catalogs.NewSnapshot(snapLibraries, items), nil
}

func (c *Client) sections(ctx context.Context) ([]directory, error) {
	container, err := c.get(ctx, "/library/sections", nil)
	if err != nil {
		return nil, err
	}
	return container.Directory, nil
}

func (c *Client) sectionItems(ctx context.Context, section directory, mediaType catalogs.MediaType) ([]catalogs.Item, error) {
	container, err := c.get(ctx, "/library/sections/"+section.Key+"/all", nil)
	if err != nil {
		return nil, err
	}

	items := make([]catalogs.Item, 0, len(container.Metadata))
	for _, md := range container.Metadata {
		item := catalogs.Item{
			RatingKey: md.RatingKey,
			Title:     md.Title,
			Year:      md.Year,
			Type:      mediaType,
			Library:   section.Title,
		}
		item.TMDBID, item.IMDBID, item.TVDBID = parseGuids(md.Guids)

		switch mediaType {
		case catalogs.MediaTypeMovie:
			item.MediaDir = movieDir(md.file())
		case catalogs.MediaTypeTV:
			seasons, mediaDir, err := c.showSeasons(ctx, md.RatingKey)
			if err != nil {
				return nil, err
			}
			item.Seasons = seasons
			item.MediaDir = mediaDir
		}
		items = append(items, item)
	}
	return items, nil
}

// showSeasons reads a show's seasons and episode numbers, skipping
// specials (season 0). The show's media directory comes from the first
// episode file found.
func (c *Client) showSeasons(ctx context.Context, ratingKey string) (map[int][]int, string, error) {
	container, err := c.get(ctx, "/library/metadata/"+ratingKey+"/children", nil)
	if err != nil {
		return nil, "", err
	}

	seasons := make(map[int][]int)
	mediaDir := ""
	for _, season := range container.Metadata {
		if season.Type != "season" || season.Index == 0 {
			continue
		}
		episodes, err := c.get(ctx, "/library/metadata/"+season.RatingKey+"/children", nil)
		if err != nil {
			return nil, "", err
		}
		var numbers []int
		for _, episode := range episodes.Metadata {
			numbers = append(numbers, episode.Index)
			if mediaDir == "" {
				mediaDir = showDir(episode.file())
			}
		}
		seasons[season.Index] = numbers
	}
	return seasons, mediaDir, nil
}

// get performs one authenticated request and decodes the MediaContainer.
func (c *Client) get(ctx context.Context, endpoint string, query url.Values) (*mediaContainer, error) {
	requestURL := c.baseURL + endpoint
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, errors.WrapIO("request", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Token", c.token)
	req.Header.Set("X-Plex-Client-Identifier", clientID)
	req.Header.Set("X-Plex-Product", product)
	req.Header.Set("X-Plex-Version", version)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.NewCatalogError(c.baseURL, "", "server unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, errors.NewCatalogError(c.baseURL, "", "authentication rejected", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewCatalogError(c.baseURL, "", "unexpected status "+strconv.Itoa(resp.StatusCode), nil)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.WrapParse("json", endpoint, err)
	}
	return &body.MediaContainer, nil
}

func sectionMediaType(sectionType string) (catalogs.MediaType, bool) {
	switch sectionType {
	case "movie":
		return catalogs.MediaTypeMovie, true
	case "show":
		return catalogs.MediaTypeTV, true
	default:
		return "", false
	}
}

// parseGuids extracts external IDs from Plex GUID entries like
// "tmdb://603" and "imdb://tt0133093".
func parseGuids(guids []guid) (tmdbID int, imdbID string, tvdbID int) {
	for _, g := range guids {
		scheme, id, found := strings.Cut(g.ID, "://")
		if !found {
			continue
		}
		id, _, _ = strings.Cut(id, "?")
		switch scheme {
		case "tmdb":
			tmdbID, _ = strconv.Atoi(id)
		case "imdb":
			imdbID = id
		case "tvdb":
			tvdbID, _ = strconv.Atoi(id)
		}
	}
	return tmdbID, imdbID, tvdbID
}

// movieDir returns the media directory for a movie file path, e.g.
// "/media/Movies/Heat (1995)/Heat.mkv" yields "Heat (1995)".
func movieDir(file string) string {
	if file == "" {
		return ""
	}
	return path.Base(path.Dir(toSlash(file)))
}

// showDir returns the show directory for an episode file path, e.g.
// "/media/TV/Severance (2022)/Season 01/e01.mkv" yields "Severance (2022)".
func showDir(file string) string {
	if file == "" {
		return ""
	}
	return path.Base(path.Dir(path.Dir(toSlash(file))))
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

var _ fmt.Stringer = (*Client)(nil)

// String identifies the client in logs without leaking the token.
func (c *Client) String() string {
	return "plex(" + c.baseURL + ")"
}
