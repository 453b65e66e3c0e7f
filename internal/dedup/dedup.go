// Package dedup drops candidate ideas whose titles nearly repeat an earlier
// one.
package dedup

import (
	"strings"

	"github.com/joelkehle/ideasynth/internal/domain"
)

// Threshold is the title similarity above which a later idea is discarded.
const Threshold = 0.8

// Discard records one dropped idea and the accepted idea it collided with.
type Discard struct {
	Loser      string  `json:"loser"`
	Survivor   string  `json:"survivor"`
	Similarity float64 `json:"similarity"`
}

type titleWords map[string]struct{}

// Deduplicator keeps an ordered arena of accepted titles. Earlier arrivals
// always win; the survivor is never edited. Not safe for concurrent use.
type Deduplicator struct {
	accepted []titleWords
	titles   []string
	discards []Discard
}

func New() *Deduplicator { return &Deduplicator{} }

// Offer reports whether idea survives against every title accepted so far,
// accepting it when it does.
func (d *Deduplicator) Offer(idea domain.CandidateIdea) bool {
	words := wordSet(idea.Title)
	for i := range d.accepted {
		if sim := jaccard(words, d.accepted[i]); sim > Threshold {
			d.discards = append(d.discards, Discard{Loser: idea.Title, Survivor: d.titles[i], Similarity: sim})
			return false
		}
	}
	d.accepted = append(d.accepted, words)
	d.titles = append(d.titles, idea.Title)
	return true
}

// Filter runs Offer over ideas in order and returns the survivors.
func (d *Deduplicator) Filter(ideas []domain.CandidateIdea) []domain.CandidateIdea {
	out := make([]domain.CandidateIdea, 0, len(ideas))
	for _, idea := range ideas {
		if d.Offer(idea) {
			out = append(out, idea)
		}
	}
	return out
}

func (d *Deduplicator) Discarded() []Discard {
	return append([]Discard(nil), d.discards...)
}

func (d *Deduplicator) Accepted() int { return len(d.accepted) }

// jaccard is |a∩b| / |a∪b|. An empty side scores 0, so two blank titles
// never collide.
func jaccard(a, b titleWords) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for w := range a {
		if _, ok := b[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}

// TitleSimilarity compares two titles as lower-cased whitespace word sets.
func TitleSimilarity(a, b string) float64 {
	return jaccard(wordSet(a), wordSet(b))
}

func wordSet(title string) titleWords {
	fields := strings.Fields(strings.ToLower(title))
	set := make(titleWords, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
