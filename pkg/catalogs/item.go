// Package catalogs defines the media-server view of the library: items,
// libraries, and the per-run snapshot the reconciliation engine operates on.
package catalogs

import (
	"fmt"
	"sort"
)

// MediaType identifies the kind of catalog item.
type MediaType string

const (
	// MediaTypeMovie is a single movie item.
	MediaTypeMovie MediaType = "movie"
	// MediaTypeTV is a television show item.
	MediaTypeTV MediaType = "tv"
)

// Item is one entry of the media-server catalog. Items are rebuilt fresh
// every run from the catalog snapshot and never persisted by the engine.
type Item struct {
	// RatingKey is the media server's stable identifier for the item.
	RatingKey string

	Title string
	Year  int
	Type  MediaType

	// Library is the name of the library the item belongs to.
	Library string

	// External IDs extracted from the server's GUID list, when present.
	TMDBID int
	IMDBID string
	TVDBID int

	// MediaDir is the name of the directory holding the item's media files.
	// Asset files are placed alongside it under the assets root.
	MediaDir string

	// Seasons maps season number to the episode numbers present in the
	// library. Populated for TV items only; season 0 specials are
	// excluded by the catalog source.
	Seasons map[int][]int
}

// Key returns the stable cache identity for the item, e.g. "movie:Heat:1995".
func (i Item) Key() string {
	return fmt.Sprintf("%s:%s:%d", i.Type, i.Title, i.Year)
}

// SeasonKey returns the cache identity for one season of a TV item.
func (i Item) SeasonKey(season int) string {
	return fmt.Sprintf("%s:season%d", i.Key(), season)
}

// FullTitle returns the "Title (Year)" form used as the output record key.
func (i Item) FullTitle() string {
	return fmt.Sprintf("%s (%d)", i.Title, i.Year)
}

// SeasonNumbers returns the item's season numbers in ascending order.
func (i Item) SeasonNumbers() []int {
	numbers := make([]int, 0, len(i.Seasons))
	for n := range i.Seasons {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers
}

// Library describes one media-server library section.
type Library struct {
	Name string
	Type MediaType
}
