// Package output writes per-library metadata files in the layout the
// downstream configuration manager consumes: a YAML document keyed by
// "Title (Year)" with a match block and per-field metadata.
package output

import (
	"strings"

	"github.com/metafusion/metafusion/pkg/catalogs"
	"github.com/metafusion/metafusion/pkg/provider"
)

// Document is one library's output file.
type Document struct {
	Metadata map[string]*Entry `yaml:"metadata"`
}

// NewDocument creates an empty document.
func NewDocument() *Document {
	return &Document{Metadata: make(map[string]*Entry)}
}

// Match tells the consumer how to bind an entry to a library item.
type Match struct {
	Title     string `yaml:"title"`
	Year      int    `yaml:"year"`
	MappingID string `yaml:"mapping_id"`
}

// Entry is the metadata block for one title.
type Entry struct {
	Match               Match    `yaml:"match"`
	SortTitle           string   `yaml:"sort_title,omitempty"`
	OriginalTitle       string   `yaml:"original_title,omitempty"`
	OriginallyAvailable string   `yaml:"originally_available,omitempty"`
	ContentRating       string   `yaml:"content_rating,omitempty"`
	Studio              string   `yaml:"studio,omitempty"`
	Runtime             int      `yaml:"runtime,omitempty"`
	Tagline             string   `yaml:"tagline,omitempty"`
	Summary             string   `yaml:"summary,omitempty"`
	Country             []string `yaml:"country,omitempty"`
	Genre               []string `yaml:"genre,omitempty"`

	// Enhanced tier.
	Cast       []string `yaml:"cast,omitempty"`
	Director   []string `yaml:"director,omitempty"`
	Writer     []string `yaml:"writer,omitempty"`
	Producer   []string `yaml:"producer,omitempty"`
	Collection string   `yaml:"collection,omitempty"`

	Seasons map[int]*SeasonEntry `yaml:"seasons,omitempty"`
}

// SeasonEntry is the metadata block for one season.
type SeasonEntry struct {
	OriginallyAvailable string                `yaml:"originally_available,omitempty"`
	Episodes            map[int]*EpisodeEntry `yaml:"episodes,omitempty"`
}

// EpisodeEntry is the metadata block for one episode.
type EpisodeEntry struct {
	Title               string   `yaml:"title,omitempty"`
	SortTitle           string   `yaml:"sort_title,omitempty"`
	OriginallyAvailable string   `yaml:"originally_available,omitempty"`
	Runtime             int      `yaml:"runtime,omitempty"`
	Summary             string   `yaml:"summary,omitempty"`
	Cast                []string `yaml:"cast,omitempty"`
	Guest               []string `yaml:"guest,omitempty"`
	Director            []string `yaml:"director,omitempty"`
	Writer              []string `yaml:"writer,omitempty"`
}

// BuildEntry maps a provider record into an output entry. The basic tier
// is always present; enhanced adds the people fields, the collection,
// and for TV the per-season episode blocks.
func BuildEntry(item catalogs.Item, record *provider.Record, enhanced bool) *Entry {
	entry := &Entry{
		Match: Match{
			Title:     item.Title,
			Year:      item.Year,
			MappingID: record.MappingID,
		},
		SortTitle:           item.Title,
		OriginalTitle:       record.OriginalTitle,
		OriginallyAvailable: record.ReleaseDate,
		ContentRating:       record.ContentRating,
		Studio:              joinStudios(record.Studios),
		Runtime:             record.Runtime,
		Tagline:             record.Tagline,
		Summary:             record.Overview,
		Country:             record.Countries,
		Genre:               record.Genres,
	}
	if !enhanced {
		return entry
	}

	entry.Cast = record.Credits.Cast
	entry.Director = record.Credits.Directors
	entry.Writer = record.Credits.Writers
	entry.Producer = record.Credits.Producers
	entry.Collection = record.Collection

	if len(record.Seasons) > 0 {
		entry.Seasons = make(map[int]*SeasonEntry, len(record.Seasons))
		for _, season := range record.Seasons {
			entry.Seasons[season.Number] = buildSeason(season)
		}
	}
	return entry
}

func buildSeason(season provider.Season) *SeasonEntry {
	out := &SeasonEntry{
		OriginallyAvailable: season.AirDate,
		Episodes:            make(map[int]*EpisodeEntry, len(season.Episodes)),
	}
	for _, episode := range season.Episodes {
		out.Episodes[episode.Number] = &EpisodeEntry{
			Title:               episode.Name,
			SortTitle:           episode.Name,
			OriginallyAvailable: episode.AirDate,
			Runtime:             episode.Runtime,
			Summary:             episode.Summary,
			Cast:                episode.Credits.Cast,
			Guest:               episode.Credits.Guests,
			Director:            episode.Credits.Directors,
			Writer:              episode.Credits.Writers,
		}
	}
	return out
}

func joinStudios(studios []string) string {
	return strings.Join(studios, ", ")
}
