// Package fingerprint computes deterministic content digests over provider
// records. The digest covers only the normalized fields that affect output,
// so semantically identical records always hash the same regardless of
// field ordering or cosmetic whitespace, and spurious output rewrites are
// avoided.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/metafusion/metafusion/pkg/provider"
)

// Fingerprint is a hex-encoded sha256 digest of a normalized record.
type Fingerprint string

// Compute returns the fingerprint of a record. The record is first reduced
// to a canonical shape: strings NFC-normalized and whitespace-trimmed,
// order-insensitive list fields sorted, and keys serialized in sorted order
// (encoding/json sorts map keys, which gives us stable key ordering for
// free).
func Compute(rec *provider.Record) Fingerprint {
	canonical := normalize(rec)

	// Marshal of map values cannot fail here: the shape is all strings,
	// ints, slices, and nested maps of the same.
	data, _ := json.Marshal(canonical)

	sum := sha256.Sum256(data)
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// normalize reduces a record to the canonical map shape the digest covers.
func normalize(rec *provider.Record) map[string]any {
	m := map[string]any{
		"id":             rec.ID,
		"title":          cleanString(rec.Title),
		"original_title": cleanString(rec.OriginalTitle),
		"tagline":        cleanString(rec.Tagline),
		"overview":       cleanString(rec.Overview),
		"release_date":   cleanString(rec.ReleaseDate),
		"runtime":        rec.Runtime,
		"content_rating": cleanString(rec.ContentRating),
		"collection":     cleanString(rec.Collection),
		"mapping_id":     cleanString(rec.MappingID),

		// Set-like fields: provider ordering carries no meaning.
		"genres":    sortedList(rec.Genres),
		"studios":   sortedList(rec.Studios),
		"countries": sortedList(rec.Countries),

		// Billing order is semantic; trim but preserve order.
		"credits": normalizeCredits(rec.Credits),
	}

	if len(rec.Seasons) > 0 {
		seasons := make(map[string]any, len(rec.Seasons))
		for _, season := range rec.Seasons {
			seasons[itoa(season.Number)] = normalizeSeason(season)
		}
		m["seasons"] = seasons
	}

	return m
}

func normalizeSeason(season provider.Season) map[string]any {
	episodes := make(map[string]any, len(season.Episodes))
	for _, ep := range season.Episodes {
		episodes[itoa(ep.Number)] = map[string]any{
			"name":     cleanString(ep.Name),
			"air_date": cleanString(ep.AirDate),
			"runtime":  ep.Runtime,
			"summary":  cleanString(ep.Summary),
			"credits":  normalizeCredits(ep.Credits),
		}
	}
	return map[string]any{
		"air_date": cleanString(season.AirDate),
		"episodes": episodes,
	}
}

func normalizeCredits(c provider.Credits) map[string]any {
	return map[string]any{
		"cast":      cleanList(c.Cast),
		"directors": cleanList(c.Directors),
		"writers":   cleanList(c.Writers),
		"producers": cleanList(c.Producers),
		"guests":    cleanList(c.Guests),
	}
}

// cleanString trims whitespace and applies Unicode NFC so that visually
// identical strings with different codepoint sequences hash the same.
func cleanString(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// cleanList normalizes each element, preserving order.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, cleanString(s))
	}
	return out
}

// sortedList normalizes and sorts, for fields whose ordering is arbitrary.
func sortedList(in []string) []string {
	out := cleanList(in)
	sort.Strings(out)
	return out
}

// itoa zero-pads so season/episode keys stay lexically ordered.
func itoa(n int) string {
	return fmt.Sprintf("%02d", n)
}
