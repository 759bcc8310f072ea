package plex

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metafusion/metafusion/pkg/catalogs"
	"github.com/metafusion/metafusion/pkg/errors"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/library/sections", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"MediaContainer": {"Directory": [
			{"key": "1", "type": "movie", "title": "Movies"},
			{"key": "2", "type": "show", "title": "TV Shows"},
			{"key": "3", "type": "artist", "title": "Music"}
		]}}`)
	})
	mux.HandleFunc("/library/sections/1/all", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"MediaContainer": {"Metadata": [
			{
				"ratingKey": "101", "type": "movie", "title": "Heat", "year": 1995,
				"Guid": [{"id": "tmdb://949"}, {"id": "imdb://tt0113277"}],
				"Media": [{"Part": [{"file": "/media/Movies/Heat (1995)/Heat.mkv"}]}]
			}
		]}}`)
	})
	mux.HandleFunc("/library/sections/2/all", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"MediaContainer": {"Metadata": [
			{"ratingKey": "201", "type": "show", "title": "Severance", "year": 2022,
			 "Guid": [{"id": "tmdb://95396"}, {"id": "tvdb://371980"}]}
		]}}`)
	})
	mux.HandleFunc("/library/metadata/201/children", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"MediaContainer": {"Metadata": [
			{"ratingKey": "210", "type": "season", "title": "Specials", "index": 0},
			{"ratingKey": "211", "type": "season", "title": "Season 1", "index": 1}
		]}}`)
	})
	mux.HandleFunc("/library/metadata/211/children", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"MediaContainer": {"Metadata": [
			{"ratingKey": "2111", "type": "episode", "index": 1,
			 "Media": [{"Part": [{"file": "/media/TV/Severance (2022)/Season 01/e01.mkv"}]}]},
			{"ratingKey": "2112", "type": "episode", "index": 2}
		]}}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	client, err := New(Config{URL: serverURL, Token: "test-token"})
	require.NoError(t, err)
	return client
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Token: "x"})
	assert.Error(t, err)

	_, err = New(Config{URL: "http://localhost:32400"})
	assert.Error(t, err)
}

func TestSnapshotAllLibraries(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server.URL)

	snap, err := client.Snapshot(context.Background(), nil)
	require.NoError(t, err)

	// The music section is ignored.
	require.Len(t, snap.Libraries, 2)
	require.Len(t, snap.Items, 2)

	movie := snap.Items[0]
	assert.Equal(t, "Heat", movie.Title)
	assert.Equal(t, 1995, movie.Year)
	assert.Equal(t, catalogs.MediaTypeMovie, movie.Type)
	assert.Equal(t, "Movies", movie.Library)
	assert.Equal(t, 949, movie.TMDBID)
	assert.Equal(t, "tt0113277", movie.IMDBID)
	assert.Equal(t, "Heat (1995)", movie.MediaDir)

	show := snap.Items[1]
	assert.Equal(t, "Severance", show.Title)
	assert.Equal(t, catalogs.MediaTypeTV, show.Type)
	assert.Equal(t, 95396, show.TMDBID)
	assert.Equal(t, 371980, show.TVDBID)
	assert.Equal(t, "Severance (2022)", show.MediaDir)

	// Specials are skipped; season 1 lists both episodes.
	require.Contains(t, show.Seasons, 1)
	assert.NotContains(t, show.Seasons, 0)
	assert.Equal(t, []int{1, 2}, show.Seasons[1])
}

func TestSnapshotFiltersLibraries(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server.URL)

	snap, err := client.Snapshot(context.Background(), []string{"Movies"})
	require.NoError(t, err)

	require.Len(t, snap.Libraries, 1)
	assert.Equal(t, "Movies", snap.Libraries[0].Name)
	require.Len(t, snap.Items, 1)
}

func TestSnapshotUnknownLibrary(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server.URL)

	_, err := client.Snapshot(context.Background(), []string{"Anime"})
	assert.True(t, errors.IsCatalogUnavailable(err))
}

func TestSnapshotServerUnreachable(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server.URL)
	server.Close()

	snap, err := client.Snapshot(context.Background(), nil)
	assert.Nil(t, snap)
	assert.True(t, errors.IsCatalogUnavailable(err))
}

func TestSnapshotAuthRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)
	_, err := client.Snapshot(context.Background(), nil)
	assert.True(t, errors.IsCatalogUnavailable(err))
}

func TestParseGuids(t *testing.T) {
	tmdbID, imdbID, tvdbID := parseGuids([]guid{
		{ID: "tmdb://603?lang=en"},
		{ID: "imdb://tt0133093"},
		{ID: "tvdb://169"},
		{ID: "plex://movie/5d776"},
		{ID: "malformed"},
	})
	assert.Equal(t, 603, tmdbID)
	assert.Equal(t, "tt0133093", imdbID)
	assert.Equal(t, 169, tvdbID)
}

func TestMediaDirParsing(t *testing.T) {
	assert.Equal(t, "Heat (1995)", movieDir("/media/Movies/Heat (1995)/Heat.mkv"))
	assert.Equal(t, "", movieDir(""))
	assert.Equal(t, "Severance (2022)", showDir(`C:\TV\Severance (2022)\Season 01\e01.mkv`))
	assert.Equal(t, "", showDir(""))
}
