package tmdb

import (
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/metafusion/metafusion/pkg/provider"
)

// Crew jobs folded into each people field.
var (
	directorJobs = map[string]bool{
		"Director": true, "Co-Director": true, "Assistant Director": true,
	}
	writerJobs = map[string]bool{
		"Writer": true, "Screenplay": true, "Story": true, "Creator": true,
		"Co-Writer": true, "Author": true, "Adaptation": true,
	}
	producerJobs = map[string]bool{
		"Producer": true, "Executive Producer": true, "Associate Producer": true,
		"Co-Producer": true, "Line Producer": true, "Co-Executive Producer": true,
	}
)

const topCastLimit = 10

type namedEntity struct {
	Name string `json:"name"`
}

type countryEntity struct {
	ISO31661 string `json:"iso_3166_1"`
}

type creditsPayload struct {
	Cast []struct {
		Name string `json:"name"`
	} `json:"cast"`
	Crew []struct {
		Name string `json:"name"`
		Job  string `json:"job"`
	} `json:"crew"`
	GuestStars []struct {
		Name string `json:"name"`
	} `json:"guest_stars"`
}

func (p creditsPayload) credits() provider.Credits {
	credits := provider.Credits{}
	for i, member := range p.Cast {
		if i == topCastLimit {
			break
		}
		credits.Cast = append(credits.Cast, member.Name)
	}
	for _, member := range p.Crew {
		switch {
		case directorJobs[member.Job]:
			credits.Directors = append(credits.Directors, member.Name)
		case writerJobs[member.Job]:
			credits.Writers = append(credits.Writers, member.Name)
		case producerJobs[member.Job]:
			credits.Producers = append(credits.Producers, member.Name)
		}
	}
	for _, guest := range p.GuestStars {
		credits.Guests = append(credits.Guests, guest.Name)
	}
	return credits
}

type imagePayload struct {
	FilePath    string  `json:"file_path"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	VoteAverage float64 `json:"vote_average"`
	ISO6391     string  `json:"iso_639_1"`
}

type imagesPayload struct {
	Posters   []imagePayload `json:"posters"`
	Backdrops []imagePayload `json:"backdrops"`
}

func (p imagesPayload) imageSet() provider.ImageSet {
	return provider.ImageSet{
		Posters:   candidates(p.Posters),
		Backdrops: candidates(p.Backdrops),
	}
}

func candidates(payloads []imagePayload) []provider.ImageCandidate {
	out := make([]provider.ImageCandidate, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, provider.ImageCandidate{
			Path:        p.FilePath,
			Width:       p.Width,
			Height:      p.Height,
			VoteAverage: p.VoteAverage,
			Language:    p.ISO6391,
		})
	}
	return out
}

type externalIDs struct {
	IMDBID string `json:"imdb_id"`
	TVDBID int    `json:"tvdb_id"`
}

type movieDetails struct {
	ID                  int             `json:"id"`
	Title               string          `json:"title"`
	OriginalTitle       string          `json:"original_title"`
	Tagline             string          `json:"tagline"`
	Overview            string          `json:"overview"`
	ReleaseDate         string          `json:"release_date"`
	Runtime             int             `json:"runtime"`
	Genres              []namedEntity   `json:"genres"`
	ProductionCompanies []namedEntity   `json:"production_companies"`
	ProductionCountries []countryEntity `json:"production_countries"`
	BelongsToCollection *namedEntity    `json:"belongs_to_collection"`
	Credits             creditsPayload  `json:"credits"`
	Images              imagesPayload   `json:"images"`
	ExternalIDs         externalIDs     `json:"external_ids"`
	ReleaseDates        struct {
		Results []struct {
			ISO31661     string `json:"iso_3166_1"`
			ReleaseDates []struct {
				Certification string `json:"certification"`
			} `json:"release_dates"`
		} `json:"results"`
	} `json:"release_dates"`
}

func (d movieDetails) record() *provider.Record {
	return &provider.Record{
		ID:            d.ID,
		Title:         d.Title,
		OriginalTitle: d.OriginalTitle,
		Tagline:       d.Tagline,
		Overview:      d.Overview,
		ReleaseDate:   d.ReleaseDate,
		Runtime:       d.Runtime,
		ContentRating: d.certification(),
		Genres:        names(d.Genres),
		Studios:       names(d.ProductionCompanies),
		Countries:     countryNames(d.ProductionCountries),
		Collection:    collectionName(d.BelongsToCollection),
		Credits:       d.Credits.credits(),
		MappingID:     strconv.Itoa(d.ID),
		Images:        d.Images.imageSet(),
	}
}

// certification returns the US certification, the rating scheme the
// output consumers expect.
func (d movieDetails) certification() string {
	for _, country := range d.ReleaseDates.Results {
		if country.ISO31661 != "US" {
			continue
		}
		for _, release := range country.ReleaseDates {
			if release.Certification != "" {
				return release.Certification
			}
		}
	}
	return ""
}

type tvDetails struct {
	ID                  int             `json:"id"`
	Name                string          `json:"name"`
	OriginalName        string          `json:"original_name"`
	Tagline             string          `json:"tagline"`
	Overview            string          `json:"overview"`
	FirstAirDate        string          `json:"first_air_date"`
	EpisodeRunTime      []int           `json:"episode_run_time"`
	Genres              []namedEntity   `json:"genres"`
	Networks            []namedEntity   `json:"networks"`
	ProductionCountries []countryEntity `json:"production_countries"`
	Credits             creditsPayload  `json:"credits"`
	Images              imagesPayload   `json:"images"`
	ExternalIDs         externalIDs     `json:"external_ids"`
	ContentRatings      struct {
		Results []struct {
			ISO31661 string `json:"iso_3166_1"`
			Rating   string `json:"rating"`
		} `json:"results"`
	} `json:"content_ratings"`
}

func (d tvDetails) record() *provider.Record {
	runtime := 0
	if len(d.EpisodeRunTime) > 0 {
		runtime = d.EpisodeRunTime[0]
	}

	// TVDB ID is how the output consumers match shows; fall back to the
	// TMDB ID when the provider has no TVDB mapping.
	mappingID := strconv.Itoa(d.ID)
	if d.ExternalIDs.TVDBID > 0 {
		mappingID = strconv.Itoa(d.ExternalIDs.TVDBID)
	}

	return &provider.Record{
		ID:            d.ID,
		Title:         d.Name,
		OriginalTitle: d.OriginalName,
		Tagline:       d.Tagline,
		Overview:      d.Overview,
		ReleaseDate:   d.FirstAirDate,
		Runtime:       runtime,
		ContentRating: d.rating(),
		Genres:        names(d.Genres),
		Studios:       names(d.Networks),
		Countries:     countryNames(d.ProductionCountries),
		Credits:       d.Credits.credits(),
		MappingID:     mappingID,
		Images:        d.Images.imageSet(),
	}
}

func (d tvDetails) rating() string {
	for _, result := range d.ContentRatings.Results {
		if result.ISO31661 == "US" && result.Rating != "" {
			return result.Rating
		}
	}
	return ""
}

type seasonDetails struct {
	SeasonNumber int            `json:"season_number"`
	AirDate      string         `json:"air_date"`
	Credits      creditsPayload `json:"credits"`
	Images       struct {
		Posters []imagePayload `json:"posters"`
	} `json:"images"`
	Episodes []struct {
		EpisodeNumber int            `json:"episode_number"`
		Name          string         `json:"name"`
		AirDate       string         `json:"air_date"`
		Runtime       int            `json:"runtime"`
		Overview      string         `json:"overview"`
		Credits       creditsPayload `json:"credits"`
	} `json:"episodes"`
}

func (d seasonDetails) season() *provider.Season {
	season := &provider.Season{
		Number:  d.SeasonNumber,
		AirDate: d.AirDate,
		Posters: candidates(d.Images.Posters),
	}
	for _, e := range d.Episodes {
		season.Episodes = append(season.Episodes, provider.Episode{
			Number:  e.EpisodeNumber,
			Name:    e.Name,
			AirDate: e.AirDate,
			Runtime: e.Runtime,
			Summary: e.Overview,
			Credits: e.Credits.credits(),
		})
	}
	return season
}

func names(entities []namedEntity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		if e.Name != "" {
			out = append(out, e.Name)
		}
	}
	return out
}

func collectionName(entity *namedEntity) string {
	if entity == nil {
		return ""
	}
	return entity.Name
}

// countryNames expands ISO 3166-1 codes into English display names.
// Unrecognized codes pass through as-is rather than being dropped.
func countryNames(entities []countryEntity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		if e.ISO31661 == "" {
			continue
		}
		region, err := language.ParseRegion(e.ISO31661)
		if err != nil {
			out = append(out, e.ISO31661)
			continue
		}
		if name := display.English.Regions().Name(region); name != "" {
			out = append(out, name)
			continue
		}
		out = append(out, e.ISO31661)
	}
	return out
}
