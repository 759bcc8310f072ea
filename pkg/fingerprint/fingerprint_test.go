package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/metafusion/metafusion/pkg/provider"
)

func sampleRecord() *provider.Record {
	return &provider.Record{
		ID:            603,
		Title:         "The Matrix",
		OriginalTitle: "The Matrix",
		Overview:      "A computer hacker learns about the true nature of reality.",
		ReleaseDate:   "1999-03-31",
		Runtime:       136,
		ContentRating: "R",
		Genres:        []string{"Action", "Science Fiction"},
		Studios:       []string{"Warner Bros. Pictures"},
		Countries:     []string{"United States of America"},
		MappingID:     "603",
		Credits: provider.Credits{
			Cast:      []string{"Keanu Reeves", "Laurence Fishburne"},
			Directors: []string{"Lana Wachowski", "Lilly Wachowski"},
		},
	}
}

func TestComputeDeterminism(t *testing.T) {
	rec := sampleRecord()
	assert.Equal(t, Compute(rec), Compute(rec))
}

func TestComputeIgnoresListOrderOfSetFields(t *testing.T) {
	a := sampleRecord()
	b := sampleRecord()
	b.Genres = []string{"Science Fiction", "Action"}

	assert.Equal(t, Compute(a), Compute(b))
}

func TestComputePreservesBillingOrder(t *testing.T) {
	a := sampleRecord()
	b := sampleRecord()
	b.Credits.Cast = []string{"Laurence Fishburne", "Keanu Reeves"}

	assert.NotEqual(t, Compute(a), Compute(b))
}

func TestComputeIgnoresWhitespaceAndNormalization(t *testing.T) {
	a := sampleRecord()
	b := sampleRecord()
	b.Overview = "  " + a.Overview + "\n"
	// NFD decomposition of é vs the NFC composed form.
	a.Tagline = "café"
	b.Tagline = "café"

	assert.Equal(t, Compute(a), Compute(b))
}

func TestComputeDetectsSemanticChange(t *testing.T) {
	a := sampleRecord()
	b := sampleRecord()
	b.Overview = "Something else entirely."

	assert.NotEqual(t, Compute(a), Compute(b))
}

func TestComputeCoversSeasons(t *testing.T) {
	a := sampleRecord()
	b := sampleRecord()
	b.Seasons = []provider.Season{{
		Number:  1,
		AirDate: "2011-04-17",
		Episodes: []provider.Episode{
			{Number: 1, Name: "Winter Is Coming"},
		},
	}}

	assert.NotEqual(t, Compute(a), Compute(b))
}
