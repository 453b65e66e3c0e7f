package scoring

import (
	"math"
	"slices"
	"strings"

	"github.com/joelkehle/ideasynth/internal/domain"
)

const (
	neglectedThreshold = 7.0
	neglectedBoost     = 1.0
	newlyViableBoost   = 0.5
	lowFundingBoost    = 0.5
	longHorizonBoost   = 0.3
)

type RankedIdea struct {
	Idea       domain.CandidateIdea `json:"idea"`
	Evaluation Evaluation           `json:"evaluation"`
}

type ContrarianIdea struct {
	Idea                domain.CandidateIdea `json:"idea"`
	Evaluation          Evaluation           `json:"evaluation"`
	ContrarianScore     float64              `json:"contrarian_score"`
	ContrarianReasoning string               `json:"contrarian_reasoning"`
}

// Rank orders ideas by overall score, highest first, keeping input order on
// ties, and stamps PriorityScore. limit <= 0 keeps everything.
func Rank(ideas []RankedIdea, limit int) []RankedIdea {
	out := slices.Clone(ideas)
	slices.SortStableFunc(out, func(a, b RankedIdea) int {
		return cmpDesc(a.Evaluation.OverallScore, b.Evaluation.OverallScore)
	})
	for i := range out {
		out[i].Idea.PriorityScore = out[i].Evaluation.OverallScore
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ContrarianRank is the alternate view that favours neglected, underfunded
// and newly viable ideas. It never changes OverallScore.
func ContrarianRank(tables *domain.Tables, ideas []RankedIdea, limit int) []ContrarianIdea {
	out := make([]ContrarianIdea, 0, len(ideas))
	for _, r := range ideas {
		score, reasoning := Contrarian(tables, r.Idea, r.Evaluation)
		out = append(out, ContrarianIdea{
			Idea:                r.Idea,
			Evaluation:          r.Evaluation,
			ContrarianScore:     score,
			ContrarianReasoning: reasoning,
		})
	}
	slices.SortStableFunc(out, func(a, b ContrarianIdea) int {
		return cmpDesc(a.ContrarianScore, b.ContrarianScore)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Contrarian returns the boosted score, clamped to 10, and the reasons that
// produced it.
func Contrarian(tables *domain.Tables, idea domain.CandidateIdea, ev Evaluation) (float64, string) {
	score := ev.OverallScore
	var reasons []string
	if ev.NeglectednessScore > neglectedThreshold {
		score += neglectedBoost
		reasons = append(reasons, "Highly neglected area with low funding")
	}
	if idea.IdeaType == domain.NewlyViable {
		score += newlyViableBoost
		reasons = append(reasons, "Newly viable opportunity that might be overlooked")
	}
	if ev.AnnualFundingEstimate > 0 && ev.AnnualFundingEstimate < highlyNeglectedFunding {
		score += lowFundingBoost
		reasons = append(reasons, "Low funding suggests potential for high marginal impact")
	}
	if p, ok := tables.Profile(idea.Domain); ok && p.LongHorizon {
		score += longHorizonBoost
		reasons = append(reasons, "Long-term effects might be underestimated")
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "Standard evaluation")
	}
	return math.Min(score, MaxScore), strings.Join(reasons, "; ")
}

func cmpDesc(a, b float64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}
