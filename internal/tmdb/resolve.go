package tmdb

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/metafusion/metafusion/pkg/errors"
	"github.com/metafusion/metafusion/pkg/logging"
	"github.com/metafusion/metafusion/pkg/provider"
)

// parenthetical matches trailing qualifiers like "(Director's Cut)" that
// break title search.
var parenthetical = regexp.MustCompile(`\s*\(.*?\)`)

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	ID         int     `json:"id"`
	VoteCount  int     `json:"vote_count"`
	Popularity float64 `json:"popularity"`
}

// Resolve finds the TMDB ID for a ref without a known ID. It tries the
// exact title with and without the year, then a cleaned title with any
// parenthetical qualifier stripped. ErrNotFound means every attempt came
// back empty; callers record that so later runs skip the item.
func (c *Client) Resolve(ctx context.Context, ref provider.Ref) (int, error) {
	type attempt struct {
		title string
		year  int
	}
	attempts := []attempt{
		{ref.Title, ref.Year},
		{ref.Title, 0},
	}
	cleaned := strings.TrimSpace(parenthetical.ReplaceAllString(ref.Title, ""))
	if cleaned != "" && cleaned != ref.Title {
		attempts = append(attempts, attempt{cleaned, ref.Year}, attempt{cleaned, 0})
	}

	for _, a := range attempts {
		id, err := c.search(ctx, ref.Type, a.title, a.year)
		if err != nil {
			return 0, err
		}
		if id != 0 {
			logging.Ctx(ctx).Debug().
				Str("title", ref.Title).
				Int("year", ref.Year).
				Int("tmdb_id", id).
				Msg("Resolved provider ID by search")
			return id, nil
		}
	}
	return 0, errors.ErrNotFound
}

// search runs one search attempt and returns the strongest result by
// vote count, then popularity. A zero return with nil error means no
// results.
func (c *Client) search(ctx context.Context, mediaType, title string, year int) (int, error) {
	params := url.Values{
		"query":         {title},
		"include_adult": {"false"},
	}
	if year > 0 {
		params.Set("year", strconv.Itoa(year))
	}

	var response searchResponse
	if err := c.get(ctx, "search/"+mediaType, params, &response); err != nil {
		if errors.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	if len(response.Results) == 0 {
		return 0, nil
	}

	results := response.Results
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].VoteCount != results[j].VoteCount {
			return results[i].VoteCount > results[j].VoteCount
		}
		return results[i].Popularity > results[j].Popularity
	})
	return results[0].ID, nil
}
