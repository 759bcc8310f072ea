// Package provider defines the contract with the third-party metadata
// provider: the raw record fetched per catalog item, the image candidates
// offered for each asset role, and the retry policy applied to transient
// failures.
package provider

import "context"

// Ref identifies one catalog item to the provider. The provider ID is
// preferred when known; otherwise Title/Year drive a search.
type Ref struct {
	Type  string // "movie" or "tv"
	ID    int    // provider ID, 0 when unknown
	Title string
	Year  int
}

// Record is the raw metadata payload for one catalog item as returned by
// the provider. It is owned transiently during one run and never persisted;
// only its fingerprint and the winning asset references survive in the cache.
type Record struct {
	ID            int      `json:"id"`
	Title         string   `json:"title"`
	OriginalTitle string   `json:"original_title"`
	Tagline       string   `json:"tagline"`
	Overview      string   `json:"overview"`
	ReleaseDate   string   `json:"release_date"`
	Runtime       int      `json:"runtime"`
	ContentRating string   `json:"content_rating"`
	Genres        []string `json:"genres"`
	Studios       []string `json:"studios"`
	Countries     []string `json:"countries"`
	Collection    string   `json:"collection"`

	Credits Credits `json:"credits"`

	// MappingID is the external ID used by output consumers to match the
	// item: the provider ID for movies, the TVDB ID for TV shows.
	MappingID string `json:"mapping_id"`

	Seasons []Season `json:"seasons,omitempty"`

	Images ImageSet `json:"images"`
}

// Credits holds the people fields of a record.
type Credits struct {
	Cast      []string `json:"cast"`
	Directors []string `json:"directors"`
	Writers   []string `json:"writers"`
	Producers []string `json:"producers"`
	Guests    []string `json:"guests,omitempty"`
}

// Season is the per-season payload of a TV record, trimmed to the seasons
// and episodes actually present in the library.
type Season struct {
	Number   int       `json:"number"`
	AirDate  string    `json:"air_date"`
	Episodes []Episode `json:"episodes"`

	// Posters are the provider's season poster candidates.
	Posters []ImageCandidate `json:"posters,omitempty"`
}

// Episode is the per-episode payload of a season.
type Episode struct {
	Number  int     `json:"number"`
	Name    string  `json:"name"`
	AirDate string  `json:"air_date"`
	Runtime int     `json:"runtime"`
	Summary string  `json:"summary"`
	Credits Credits `json:"credits"`
}

// ImageSet groups the provider's image candidates by asset role.
type ImageSet struct {
	Posters   []ImageCandidate `json:"posters"`
	Backdrops []ImageCandidate `json:"backdrops"`
}

// ImageCandidate is one provider-offered image. Candidates are ephemeral
// and never persisted individually.
type ImageCandidate struct {
	Path        string  `json:"file_path"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	VoteAverage float64 `json:"vote_average"`
	Language    string  `json:"iso_639_1"`
}

// Area returns the candidate's pixel area, the tie-breaker within a
// selection tier.
func (c ImageCandidate) Area() int {
	return c.Width * c.Height
}

// Client fetches provider data for catalog items. Implementations must be
// safe for concurrent use across distinct items; the only shared mutable
// state permitted is the underlying connection pool.
type Client interface {
	// Fetch retrieves the full record for one item, including image
	// candidates and, for TV items, the seasons listed in ref.
	Fetch(ctx context.Context, ref Ref, seasons []int) (*Record, error)

	// Download retrieves raw image bytes for a candidate path.
	Download(ctx context.Context, path string) ([]byte, error)
}
