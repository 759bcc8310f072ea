package tmdb

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metafusion/metafusion/pkg/errors"
	"github.com/metafusion/metafusion/pkg/provider"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{
		APIKey:   "test-key",
		BaseURL:  server.URL,
		ImageURL: server.URL + "/images",
		Retry: provider.RetryPolicy{
			MaxAttempts:   3,
			BackoffFactor: 1.0,
			InitialDelay:  time.Millisecond,
			MaxDelay:      time.Millisecond,
		},
	})
	require.NoError(t, err)
	return client
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, errors.ErrAPIKeyRequired)
}

func TestFetchMovie(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/movie/603", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "credits,release_dates,external_ids,images", r.URL.Query().Get("append_to_response"))
		assert.Equal(t, "en,null", r.URL.Query().Get("include_image_language"))
		fmt.Fprint(w, `{
			"id": 603,
			"title": "The Matrix",
			"original_title": "The Matrix",
			"tagline": "The fight for the future begins.",
			"overview": "A hacker learns the truth.",
			"release_date": "1999-03-30",
			"runtime": 136,
			"genres": [{"name": "Action"}, {"name": "Science Fiction"}],
			"production_companies": [{"name": "Warner Bros. Pictures"}],
			"production_countries": [{"iso_3166_1": "US"}],
			"belongs_to_collection": {"name": "The Matrix Collection"},
			"release_dates": {"results": [
				{"iso_3166_1": "DE", "release_dates": [{"certification": "16"}]},
				{"iso_3166_1": "US", "release_dates": [{"certification": ""}, {"certification": "R"}]}
			]},
			"credits": {
				"cast": [{"name": "Keanu Reeves"}, {"name": "Laurence Fishburne"}],
				"crew": [
					{"name": "Lana Wachowski", "job": "Director"},
					{"name": "Lilly Wachowski", "job": "Writer"},
					{"name": "Joel Silver", "job": "Producer"},
					{"name": "Bill Pope", "job": "Director of Photography"}
				]
			},
			"images": {
				"posters": [{"file_path": "/p1.jpg", "width": 2000, "height": 3000, "vote_average": 6.1, "iso_639_1": "en"}],
				"backdrops": [{"file_path": "/b1.jpg", "width": 3840, "height": 2160, "vote_average": 5.5, "iso_639_1": ""}]
			}
		}`)
	})

	client := newTestClient(t, mux)
	record, err := client.Fetch(context.Background(), provider.Ref{Type: "movie", ID: 603}, nil)
	require.NoError(t, err)

	assert.Equal(t, 603, record.ID)
	assert.Equal(t, "The Matrix", record.Title)
	assert.Equal(t, "R", record.ContentRating)
	assert.Equal(t, []string{"Action", "Science Fiction"}, record.Genres)
	assert.Equal(t, []string{"Warner Bros. Pictures"}, record.Studios)
	assert.Equal(t, []string{"United States"}, record.Countries)
	assert.Equal(t, "The Matrix Collection", record.Collection)
	assert.Equal(t, []string{"Keanu Reeves", "Laurence Fishburne"}, record.Credits.Cast)
	assert.Equal(t, []string{"Lana Wachowski"}, record.Credits.Directors)
	assert.Equal(t, []string{"Lilly Wachowski"}, record.Credits.Writers)
	assert.Equal(t, []string{"Joel Silver"}, record.Credits.Producers)
	assert.Equal(t, "603", record.MappingID)
	require.Len(t, record.Images.Posters, 1)
	assert.Equal(t, "/p1.jpg", record.Images.Posters[0].Path)
	require.Len(t, record.Images.Backdrops, 1)
}

func TestFetchTVWithSeasons(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/tv/95396", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"id": 95396,
			"name": "Severance",
			"original_name": "Severance",
			"first_air_date": "2022-02-17",
			"episode_run_time": [50],
			"genres": [{"name": "Drama"}],
			"networks": [{"name": "Apple TV+"}],
			"external_ids": {"tvdb_id": 371980},
			"content_ratings": {"results": [{"iso_3166_1": "US", "rating": "TV-MA"}]},
			"credits": {"cast": [{"name": "Adam Scott"}]},
			"images": {"posters": [], "backdrops": []}
		}`)
	})
	mux.HandleFunc("/tv/95396/season/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"season_number": 1,
			"air_date": "2022-02-17",
			"images": {"posters": [{"file_path": "/s1.jpg", "width": 1000, "height": 1500, "vote_average": 5.0}]},
			"episodes": [
				{"episode_number": 1, "name": "Good News About Hell", "air_date": "2022-02-17", "runtime": 56, "overview": "Mark is promoted.", "credits": {"guest_stars": [{"name": "Guest One"}]}}
			]
		}`)
	})
	mux.HandleFunc("/tv/95396/season/2", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	client := newTestClient(t, mux)
	record, err := client.Fetch(context.Background(), provider.Ref{Type: "tv", ID: 95396}, []int{1, 2})
	require.NoError(t, err)

	assert.Equal(t, "Severance", record.Title)
	assert.Equal(t, "TV-MA", record.ContentRating)
	assert.Equal(t, 50, record.Runtime)
	assert.Equal(t, "371980", record.MappingID)

	// Season 2 is absent at the provider and silently skipped.
	require.Len(t, record.Seasons, 1)
	season := record.Seasons[0]
	assert.Equal(t, 1, season.Number)
	require.Len(t, season.Episodes, 1)
	assert.Equal(t, "Good News About Hell", season.Episodes[0].Name)
	assert.Equal(t, []string{"Guest One"}, season.Episodes[0].Credits.Guests)
	require.Len(t, season.Posters, 1)
}

func TestFetchResolvesIDBySearch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search/movie", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Heat", r.URL.Query().Get("query"))
		fmt.Fprint(w, `{"results": [
			{"id": 111, "vote_count": 10, "popularity": 9.0},
			{"id": 949, "vote_count": 7000, "popularity": 30.5}
		]}`)
	})
	mux.HandleFunc("/movie/949", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": 949, "title": "Heat"}`)
	})

	client := newTestClient(t, mux)
	record, err := client.Fetch(context.Background(), provider.Ref{Type: "movie", Title: "Heat", Year: 1995}, nil)
	require.NoError(t, err)
	assert.Equal(t, 949, record.ID)
}

func TestResolveCleansParentheticalTitle(t *testing.T) {
	var queries []string
	mux := http.NewServeMux()
	mux.HandleFunc("/search/movie", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("query")
		queries = append(queries, query)
		if query == "Brazil" {
			fmt.Fprint(w, `{"results": [{"id": 68, "vote_count": 100}]}`)
			return
		}
		fmt.Fprint(w, `{"results": []}`)
	})

	client := newTestClient(t, mux)
	id, err := client.Resolve(context.Background(), provider.Ref{Type: "movie", Title: "Brazil (Director's Cut)", Year: 1985})
	require.NoError(t, err)
	assert.Equal(t, 68, id)
	assert.Contains(t, queries, "Brazil (Director's Cut)")
}

func TestResolveNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search/movie", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results": []}`)
	})

	client := newTestClient(t, mux)
	_, err := client.Resolve(context.Background(), provider.Ref{Type: "movie", Title: "Nonexistent", Year: 1900})
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/movie/603", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"id": 603, "title": "The Matrix"}`)
	})

	client := newTestClient(t, mux)
	record, err := client.Fetch(context.Background(), provider.Ref{Type: "movie", ID: 603}, nil)
	require.NoError(t, err)
	assert.Equal(t, "The Matrix", record.Title)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchRetriesTimeouts(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/movie/603", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			time.Sleep(500 * time.Millisecond)
			return
		}
		fmt.Fprint(w, `{"id": 603, "title": "The Matrix"}`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := New(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 50 * time.Millisecond,
		Retry: provider.RetryPolicy{
			MaxAttempts:   3,
			BackoffFactor: 1.0,
			InitialDelay:  time.Millisecond,
			MaxDelay:      time.Millisecond,
		},
	})
	require.NoError(t, err)

	record, err := client.Fetch(context.Background(), provider.Ref{Type: "movie", ID: 603}, nil)
	require.NoError(t, err)
	assert.Equal(t, "The Matrix", record.Title)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchConnectionFailureIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	serverURL := server.URL
	server.Close()

	client, err := New(Config{
		APIKey:  "test-key",
		BaseURL: serverURL,
		Retry: provider.RetryPolicy{
			MaxAttempts:   2,
			BackoffFactor: 1.0,
			InitialDelay:  time.Millisecond,
			MaxDelay:      time.Millisecond,
		},
	})
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), provider.Ref{Type: "movie", ID: 603}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsProviderUnavailable(err))
	assert.True(t, provider.Retryable(err))
}

func TestFetchHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/movie/603", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"id": 603, "title": "The Matrix"}`)
	})

	client := newTestClient(t, mux)
	start := time.Now()
	_, err := client.Fetch(context.Background(), provider.Ref{Type: "movie", ID: 603}, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestFetchNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/movie/1", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	})

	client := newTestClient(t, mux)
	_, err := client.Fetch(context.Background(), provider.Ref{Type: "movie", ID: 1}, nil)
	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchRejectsUnknownType(t *testing.T) {
	client := newTestClient(t, http.NewServeMux())
	_, err := client.Fetch(context.Background(), provider.Ref{Type: "music", ID: 1}, nil)
	assert.Error(t, err)
}

func TestDownload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/images/p1.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jpeg-bytes"))
	})

	client := newTestClient(t, mux)
	data, err := client.Download(context.Background(), "/p1.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)
}
