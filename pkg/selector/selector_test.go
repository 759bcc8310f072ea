package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metafusion/metafusion/pkg/provider"
)

func testPolicy() Policy {
	return Policy{
		Preferred: Tier{MinWidth: 2000, MinHeight: 3000, MinVote: 5.0},
		Relaxed:   Tier{MinWidth: 1000, MinHeight: 1500, MinVote: 3.5},
		Minimum:   Tier{MinWidth: 500, MinHeight: 750, MinVote: 0},
	}
}

func TestSelectCommitsToFirstSatisfiedTier(t *testing.T) {
	candidates := []provider.ImageCandidate{
		{Path: "/a.jpg", Width: 2000, Height: 3000, VoteAverage: 6.0},
		{Path: "/b.jpg", Width: 1200, Height: 1800, VoteAverage: 8.0},
	}

	winner, ok := Select(candidates, testPolicy())
	require.True(t, ok)
	// The preferred-tier candidate wins even though the relaxed-tier
	// candidate has a higher vote: the cascade never compares across tiers.
	assert.Equal(t, "/a.jpg", winner.Path)
}

func TestSelectHighestVoteWithinTier(t *testing.T) {
	candidates := []provider.ImageCandidate{
		{Path: "/a.jpg", Width: 2000, Height: 3000, VoteAverage: 5.2},
		{Path: "/b.jpg", Width: 2000, Height: 3000, VoteAverage: 7.1},
	}

	winner, ok := Select(candidates, testPolicy())
	require.True(t, ok)
	assert.Equal(t, "/b.jpg", winner.Path)
}

func TestSelectTieBrokenByArea(t *testing.T) {
	candidates := []provider.ImageCandidate{
		{Path: "/small.jpg", Width: 2000, Height: 3000, VoteAverage: 6.0},
		{Path: "/large.jpg", Width: 2400, Height: 3600, VoteAverage: 6.0},
	}

	winner, ok := Select(candidates, testPolicy())
	require.True(t, ok)
	assert.Equal(t, "/large.jpg", winner.Path)
}

func TestSelectFallsThroughTiers(t *testing.T) {
	candidates := []provider.ImageCandidate{
		{Path: "/relaxed.jpg", Width: 1000, Height: 1500, VoteAverage: 4.0},
	}

	winner, ok := Select(candidates, testPolicy())
	require.True(t, ok)
	assert.Equal(t, "/relaxed.jpg", winner.Path)
}

func TestSelectBelowMinimumReturnsNone(t *testing.T) {
	candidates := []provider.ImageCandidate{
		{Path: "/tiny.jpg", Width: 100, Height: 150, VoteAverage: 9.9},
	}

	_, ok := Select(candidates, testPolicy())
	assert.False(t, ok)
}

func TestSelectEmptyCandidates(t *testing.T) {
	_, ok := Select(nil, testPolicy())
	assert.False(t, ok)
}

func TestSelectLanguagePreference(t *testing.T) {
	policy := testPolicy()
	policy.PreferredLanguage = "en"
	policy.FallbackLanguages = []string{"ja"}

	t.Run("preferred language wins", func(t *testing.T) {
		candidates := []provider.ImageCandidate{
			{Path: "/ja.jpg", Width: 2000, Height: 3000, VoteAverage: 9.0, Language: "ja"},
			{Path: "/en.jpg", Width: 2000, Height: 3000, VoteAverage: 6.0, Language: "en"},
		}
		winner, ok := Select(candidates, policy)
		require.True(t, ok)
		assert.Equal(t, "/en.jpg", winner.Path)
	})

	t.Run("fallback language when preferred absent", func(t *testing.T) {
		candidates := []provider.ImageCandidate{
			{Path: "/ja.jpg", Width: 2000, Height: 3000, VoteAverage: 5.5, Language: "ja"},
			{Path: "/fr.jpg", Width: 2000, Height: 3000, VoteAverage: 8.0, Language: "fr"},
		}
		winner, ok := Select(candidates, policy)
		require.True(t, ok)
		assert.Equal(t, "/ja.jpg", winner.Path)
	})

	t.Run("untagged candidates always considered", func(t *testing.T) {
		candidates := []provider.ImageCandidate{
			{Path: "/untagged.jpg", Width: 2000, Height: 3000, VoteAverage: 6.0},
		}
		winner, ok := Select(candidates, policy)
		require.True(t, ok)
		assert.Equal(t, "/untagged.jpg", winner.Path)
	})
}

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Policy)
		wantErr bool
	}{
		{
			name:   "valid cascade",
			mutate: func(*Policy) {},
		},
		{
			name: "preferred looser than relaxed",
			mutate: func(p *Policy) {
				p.Preferred.MinVote = 1.0
				p.Relaxed.MinVote = 4.0
			},
			wantErr: true,
		},
		{
			name: "relaxed looser than minimum",
			mutate: func(p *Policy) {
				p.Minimum.MinWidth = 1500
			},
			wantErr: true,
		},
		{
			name: "equal tiers allowed",
			mutate: func(p *Policy) {
				p.Relaxed = p.Preferred
				p.Minimum = p.Preferred
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := testPolicy()
			tt.mutate(&policy)
			err := policy.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
