// Package tmdb implements the metadata provider client against The Movie
// Database API v3.
package tmdb

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/metafusion/metafusion/pkg/errors"
	"github.com/metafusion/metafusion/pkg/logging"
	"github.com/metafusion/metafusion/pkg/provider"
)

const (
	defaultBaseURL  = "https://api.themoviedb.org/3"
	defaultImageURL = "https://image.tmdb.org/t/p/original"
	defaultTimeout  = 20 * time.Second
)

// Config configures the TMDB client.
type Config struct {
	APIKey   string
	Language string // metadata language, default "en"
	Region   string // release-date region, default "US"

	// BaseURL and ImageURL override the API endpoints, used by tests.
	BaseURL  string
	ImageURL string

	Timeout time.Duration
	Retry   provider.RetryPolicy
}

// Client talks to the TMDB API. Safe for concurrent use; the only shared
// mutable state is the HTTP connection pool.
type Client struct {
	cfg   Config
	http  *http.Client
	retry provider.RetryPolicy
}

// New creates a TMDB client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.ErrAPIKeyRequired
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Region == "" {
		cfg.Region = "US"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.ImageURL == "" {
		cfg.ImageURL = defaultImageURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = provider.DefaultRetryPolicy()
	}

	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		retry: cfg.Retry,
	}, nil
}

// Fetch retrieves the full record for one item. A zero ref.ID triggers a
// title/year search first. For TV items the listed seasons are fetched
// individually and merged into the record.
func (c *Client) Fetch(ctx context.Context, ref provider.Ref, seasons []int) (*provider.Record, error) {
	id := ref.ID
	if id == 0 {
		resolved, err := c.Resolve(ctx, ref)
		if err != nil {
			return nil, err
		}
		id = resolved
	}

	switch ref.Type {
	case "movie":
		return c.fetchMovie(ctx, id)
	case "tv":
		return c.fetchTV(ctx, id, seasons)
	default:
		return nil, errors.NewValidationError("type", ref.Type, "must be movie or tv")
	}
}

func (c *Client) fetchMovie(ctx context.Context, id int) (*provider.Record, error) {
	var details movieDetails
	endpoint := fmt.Sprintf("movie/%d", id)
	params := url.Values{
		"append_to_response":     {"credits,release_dates,external_ids,images"},
		"include_image_language": {c.imageLanguages()},
	}
	if err := c.get(ctx, endpoint, params, &details); err != nil {
		return nil, err
	}
	return details.record(), nil
}

func (c *Client) fetchTV(ctx context.Context, id int, seasons []int) (*provider.Record, error) {
	var details tvDetails
	endpoint := fmt.Sprintf("tv/%d", id)
	params := url.Values{
		"append_to_response":     {"credits,content_ratings,external_ids,images"},
		"include_image_language": {c.imageLanguages()},
	}
	if err := c.get(ctx, endpoint, params, &details); err != nil {
		return nil, err
	}
	record := details.record()

	for _, number := range seasons {
		season, err := c.fetchSeason(ctx, id, number)
		if err != nil {
			if errors.IsNotFound(err) {
				logging.Ctx(ctx).Debug().
					Int("tmdb_id", id).
					Int("season", number).
					Msg("Season not listed by provider")
				continue
			}
			return nil, err
		}
		record.Seasons = append(record.Seasons, *season)
	}
	return record, nil
}

func (c *Client) fetchSeason(ctx context.Context, id, number int) (*provider.Season, error) {
	var details seasonDetails
	endpoint := fmt.Sprintf("tv/%d/season/%d", id, number)
	params := url.Values{
		"append_to_response":     {"credits,images"},
		"include_image_language": {c.imageLanguages()},
	}
	if err := c.get(ctx, endpoint, params, &details); err != nil {
		return nil, err
	}
	return details.season(), nil
}

// Download retrieves raw image bytes for a candidate path.
func (c *Client) Download(ctx context.Context, path string) ([]byte, error) {
	var data []byte
	err := c.retry.Do(ctx, "download "+path, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ImageURL+path, nil)
		if err != nil {
			return errors.WrapIO("request", path, err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return transportError(ctx, path, err)
		}
		defer resp.Body.Close()

		if err := c.statusError(resp, path); err != nil {
			return err
		}
		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return errors.WrapAPI(path, resp.StatusCode, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// imageLanguages is the include_image_language value: the configured
// language plus untagged images, which are always eligible.
func (c *Client) imageLanguages() string {
	return c.cfg.Language + ",null"
}

// get performs one API request under the retry policy and decodes the
// JSON body into dest.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, dest any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.cfg.APIKey)
	if params.Get("language") == "" {
		params.Set("language", c.cfg.Language)
	}
	if params.Get("region") == "" {
		params.Set("region", c.cfg.Region)
	}
	requestURL := c.cfg.BaseURL + "/" + endpoint + "?" + params.Encode()

	return c.retry.Do(ctx, endpoint, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return errors.WrapIO("request", endpoint, err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return transportError(ctx, endpoint, err)
		}
		defer resp.Body.Close()

		if err := c.statusError(resp, endpoint); err != nil {
			return err
		}
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return errors.WrapParse("json", endpoint, err)
		}
		return nil
	})
}

// transportError maps a failure below the HTTP status layer to the error
// taxonomy: timeouts and dropped connections are network-class and
// retried, cancellation is surfaced as such and is not.
func transportError(ctx context.Context, endpoint string, err error) error {
	if ctx.Err() != nil {
		return errors.ErrCanceled
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return &errors.TimeoutError{Operation: endpoint, Message: err.Error()}
	}
	return fmt.Errorf("%s: %s: %w", endpoint, err.Error(), errors.ErrProviderUnavailable)
}

// statusError maps a non-2xx response to the error taxonomy. A 429
// carries the Retry-After header through so the retry policy can honor
// the provider's delay.
func (c *Client) statusError(resp *http.Response, endpoint string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return errors.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		apiErr := errors.NewAPIError(endpoint, resp.StatusCode, "rate limited")
		if after := retryAfter(resp); after > 0 {
			return &provider.RetryAfterError{After: after, Err: apiErr}
		}
		return apiErr
	default:
		return errors.NewAPIError(endpoint, resp.StatusCode, http.StatusText(resp.StatusCode))
	}
}

func retryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
