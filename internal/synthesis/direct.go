// Package synthesis turns documents and cross-document insights into
// candidate ideas.
package synthesis

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/joelkehle/ideasynth/internal/concepts"
	"github.com/joelkehle/ideasynth/internal/domain"
	"github.com/joelkehle/ideasynth/internal/result"
)

const (
	MinConfidence       = 0.3
	minSentenceChars    = 20
	minParagraphChars   = 50
	maxTitleChars       = 60
	maxTitlePhraseChars = 50
	maxDescriptionChars = 500
	fallbackTitleWords  = 6
)

// DirectExtractor mines single sentences of one document for ideas.
type DirectExtractor struct {
	tables    *domain.Tables
	extractor concepts.Extractor
	log       *zap.Logger
}

func NewDirectExtractor(tables *domain.Tables, extractor concepts.Extractor, log *zap.Logger) *DirectExtractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &DirectExtractor{tables: tables, extractor: extractor, log: log}
}

// Extract returns one idea per qualifying sentence. Sentences that cannot be
// classified or fall under MinConfidence are dropped silently. A cancelled
// context fails the whole document.
func (x *DirectExtractor) Extract(ctx context.Context, doc domain.Document) result.Result[[]domain.CandidateIdea] {
	var ideas []domain.CandidateIdea
	for _, sentence := range documentSentences(doc) {
		if err := ctx.Err(); err != nil {
			return result.Failedf[[]domain.CandidateIdea]("direct extraction of %s: %v", doc.ID, err)
		}
		d, ok := x.tables.Classify(sentence)
		if !ok {
			continue
		}
		conf := Confidence(x.tables, sentence, d)
		if conf < MinConfidence {
			continue
		}
		ideas = append(ideas, domain.CandidateIdea{
			Title:             x.title(ctx, sentence, d),
			Description:       concepts.Truncate(concepts.CollapseSpace(sentence), maxDescriptionChars),
			Domain:            d,
			PrimaryMetric:     x.tables.ClassifyMetric(sentence, d),
			IdeaType:          x.tables.ClassifyIdeaType(sentence),
			ConfidenceScore:   conf,
			ExtractionMethod:  domain.MethodNLP,
			ProvenanceNotes:   fmt.Sprintf("Extracted from a sentence of %q", concepts.Truncate(doc.Title, 80)),
			SourceDocumentIDs: []string{doc.ID},
			SourceSentence:    sentence,
		})
	}
	return result.Ok(ideas)
}

// documentSentences yields title+abstract sentences, then full-text
// sentences from paragraphs long enough to carry a claim. Full text is only
// read when it is longer than title and abstract together.
func documentSentences(doc domain.Document) []string {
	var out []string
	keep := func(s string) {
		if utf8.RuneCountInString(strings.TrimSpace(s)) >= minSentenceChars {
			out = append(out, s)
		}
	}
	text := doc.Text()
	for _, s := range concepts.SplitSentences(text) {
		keep(s)
	}
	if utf8.RuneCountInString(doc.FullText) <= utf8.RuneCountInString(text) {
		return out
	}
	for _, p := range concepts.Paragraphs(doc.FullText) {
		if utf8.RuneCountInString(p) < minParagraphChars {
			continue
		}
		for _, s := range concepts.SplitSentences(p) {
			keep(s)
		}
	}
	return out
}

// Confidence is the bounded additive quality score of a sentence already
// classified into d, rounded to two decimals.
func Confidence(tables *domain.Tables, sentence string, d domain.Domain) float64 {
	score := 0.2
	switch words := concepts.WordCount(sentence); {
	case words >= 10 && words <= 50:
		score += 0.2
	case words > 50:
		score += 0.1
	}
	score += math.Min(0.1*float64(tables.KeywordHits(sentence, d)), 0.3)
	score += math.Min(0.05*float64(tables.IndicatorHits(sentence)), 0.2)
	if concepts.Positive(sentence) {
		score += 0.1
	}
	return math.Round(math.Min(score, 1)*100) / 100
}

func (x *DirectExtractor) title(ctx context.Context, sentence string, d domain.Domain) string {
	if x.extractor != nil {
		ext, err := x.extractor.Extract(ctx, sentence)
		if err != nil {
			x.log.Debug("title phrase extraction failed, using leading words", zap.Error(err))
		} else {
			for _, p := range ext.Phrases {
				if concepts.WordCount(p) >= 2 && utf8.RuneCountInString(p) < maxTitlePhraseChars {
					return concepts.TitleCase(p) + " for " + d.DisplayName()
				}
			}
		}
	}
	words := strings.Fields(sentence)
	if len(words) > fallbackTitleWords {
		words = words[:fallbackTitleWords]
	}
	return concepts.Truncate(concepts.TitleCase(strings.Join(words, " ")), maxTitleChars)
}
