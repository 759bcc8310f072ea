// Package selector picks the best image among provider candidates under a
// tiered quality policy. The cascade commits to the first tier that any
// candidate satisfies: a preferred-tier image always beats a higher-voted
// image that only clears the relaxed tier.
package selector

import (
	"github.com/metafusion/metafusion/pkg/errors"
	"github.com/metafusion/metafusion/pkg/provider"
)

// Role identifies which asset slot a selection fills. Each role receives
// at most one winner per run.
type Role string

const (
	// RolePoster is the primary poster image.
	RolePoster Role = "poster"
	// RoleSeason is a per-season poster image.
	RoleSeason Role = "season"
	// RoleBackground is the fanart/backdrop image.
	RoleBackground Role = "background"
)

// Tier is one rung of the quality cascade.
type Tier struct {
	MinWidth  int     `yaml:"min_width" mapstructure:"min_width"`
	MinHeight int     `yaml:"min_height" mapstructure:"min_height"`
	MinVote   float64 `yaml:"min_vote" mapstructure:"min_vote"`
}

// meets reports whether a candidate clears the tier.
func (t Tier) meets(c provider.ImageCandidate) bool {
	return c.Width >= t.MinWidth && c.Height >= t.MinHeight && c.VoteAverage >= t.MinVote
}

// looserThan reports whether t accepts everything other accepts.
func (t Tier) looserThan(other Tier) bool {
	return t.MinWidth <= other.MinWidth && t.MinHeight <= other.MinHeight && t.MinVote <= other.MinVote
}

// Policy is the ordered threshold cascade for one asset role.
type Policy struct {
	Preferred Tier `yaml:"preferred" mapstructure:"preferred"`
	Relaxed   Tier `yaml:"relaxed" mapstructure:"relaxed"`
	Minimum   Tier `yaml:"minimum" mapstructure:"minimum"`

	// PreferredLanguage and FallbackLanguages narrow candidates by
	// language before the quality cascade runs. Candidates with no
	// language tag ("null" images) are always considered.
	PreferredLanguage string   `yaml:"language" mapstructure:"language"`
	FallbackLanguages []string `yaml:"fallback_languages" mapstructure:"fallback_languages"`
}

// Validate checks the cascade's strictness ordering: preferred must never
// be looser than relaxed, and relaxed never looser than minimum.
func (p Policy) Validate() error {
	if !p.Relaxed.looserThan(p.Preferred) {
		return errors.NewValidationError("preferred", p.Preferred, "preferred tier is looser than relaxed")
	}
	if !p.Minimum.looserThan(p.Relaxed) {
		return errors.NewValidationError("relaxed", p.Relaxed, "relaxed tier is looser than minimum")
	}
	return nil
}

// IsZero reports whether the policy carries no thresholds or language
// preference at all, i.e. was never configured.
func (p Policy) IsZero() bool {
	return p.Preferred == (Tier{}) && p.Relaxed == (Tier{}) && p.Minimum == (Tier{}) &&
		p.PreferredLanguage == "" && len(p.FallbackLanguages) == 0
}

// Select runs the cascade over the candidates and returns the single
// winner, or ok=false when no candidate meets even the minimum tier.
// Nothing is ever downloaded below the minimum threshold; an empty result
// is a normal outcome, not an error.
func Select(candidates []provider.ImageCandidate, policy Policy) (provider.ImageCandidate, bool) {
	if len(candidates) == 0 {
		return provider.ImageCandidate{}, false
	}

	pool := filterByLanguage(candidates, policy)

	for _, tier := range []Tier{policy.Preferred, policy.Relaxed, policy.Minimum} {
		if winner, ok := bestInTier(pool, tier); ok {
			return winner, true
		}
	}
	return provider.ImageCandidate{}, false
}

// bestInTier picks the highest-voted qualifying candidate, ties broken by
// largest pixel area.
func bestInTier(candidates []provider.ImageCandidate, tier Tier) (provider.ImageCandidate, bool) {
	var best provider.ImageCandidate
	found := false
	for _, c := range candidates {
		if !tier.meets(c) {
			continue
		}
		if !found || c.VoteAverage > best.VoteAverage ||
			(c.VoteAverage == best.VoteAverage && c.Area() > best.Area()) {
			best = c
			found = true
		}
	}
	return best, found
}

// filterByLanguage narrows candidates to the first language in the
// preference chain that has any candidates. Untagged candidates count for
// every language. When no language matches, all candidates remain in play.
func filterByLanguage(candidates []provider.ImageCandidate, policy Policy) []provider.ImageCandidate {
	if policy.PreferredLanguage == "" {
		return candidates
	}

	chain := append([]string{policy.PreferredLanguage}, policy.FallbackLanguages...)
	for _, lang := range chain {
		var matched []provider.ImageCandidate
		for _, c := range candidates {
			if c.Language == lang || c.Language == "" {
				matched = append(matched, c)
			}
		}
		if len(matched) > 0 {
			return matched
		}
	}
	return candidates
}

// DefaultPosterPolicy is the quality cascade for poster and season art.
func DefaultPosterPolicy() Policy {
	return Policy{
		Preferred:         Tier{MinWidth: 2000, MinHeight: 3000, MinVote: 5.0},
		Relaxed:           Tier{MinWidth: 1000, MinHeight: 1500, MinVote: 3.5},
		Minimum:           Tier{},
		PreferredLanguage: "en",
	}
}

// DefaultBackgroundPolicy is the quality cascade for fanart backdrops.
func DefaultBackgroundPolicy() Policy {
	return Policy{
		Preferred:         Tier{MinWidth: 3840, MinHeight: 2160, MinVote: 5.0},
		Relaxed:           Tier{MinWidth: 1920, MinHeight: 1080, MinVote: 3.5},
		Minimum:           Tier{},
		PreferredLanguage: "en",
	}
}
