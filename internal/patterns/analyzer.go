// Package patterns compares concept sets across the documents of one domain
// to find shared themes, rare concepts and complementary pairings.
package patterns

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/joelkehle/ideasynth/internal/concepts"
	"github.com/joelkehle/ideasynth/internal/domain"
	"github.com/joelkehle/ideasynth/internal/result"
)

const (
	MinDocuments    = 2
	MaxConceptChars = 50
	MaxPairs        = 5
	pairSideLimit   = 2
)

var ErrTooFewDocuments = errors.New("cross-document analysis needs at least 2 documents")

// Pair is a complementary pairing: First appears only in one document of the
// pair and Second only in the other.
type Pair struct {
	First       string `json:"first"`
	Second      string `json:"second"`
	FirstDocID  string `json:"first_document_id"`
	SecondDocID string `json:"second_document_id"`
}

type Insights struct {
	Domain             domain.Domain `json:"domain"`
	SourceCount        int           `json:"source_count"`
	TotalConcepts      int           `json:"total_concepts"`
	UniqueConcepts     int           `json:"unique_concepts"`
	CommonThemes       []string      `json:"common_themes"`
	FrequentConcepts   []string      `json:"frequent_concepts"`
	RareConcepts       []string      `json:"rare_concepts"`
	ComplementaryPairs []Pair        `json:"complementary_pairs"`
	SourceDocumentIDs  []string      `json:"source_document_ids"`
}

// DocumentConcepts is the ordered, de-duplicated concept set of one document.
type DocumentConcepts struct {
	DocumentID string
	Concepts   []string
}

type Analyzer struct {
	tables    *domain.Tables
	extractor concepts.Extractor
	log       *zap.Logger
}

func NewAnalyzer(tables *domain.Tables, extractor concepts.Extractor, log *zap.Logger) *Analyzer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Analyzer{tables: tables, extractor: extractor, log: log}
}

// Concepts builds the concept set of doc under domain d. If the extractor
// fails, the keyword matches are still returned alongside the error.
func (a *Analyzer) Concepts(ctx context.Context, d domain.Domain, doc domain.Document) (DocumentConcepts, error) {
	text := doc.Text()
	lowered := concepts.Normalize(text)
	out := DocumentConcepts{DocumentID: doc.ID}
	seen := map[string]struct{}{}
	add := func(c string) {
		c = concepts.Normalize(c)
		if c == "" || utf8.RuneCountInString(c) >= MaxConceptChars {
			return
		}
		if !strings.Contains(lowered, c) {
			return
		}
		if _, dup := seen[c]; dup {
			return
		}
		seen[c] = struct{}{}
		out.Concepts = append(out.Concepts, c)
	}

	var extractErr error
	if a.extractor != nil {
		ext, err := a.extractor.Extract(ctx, text)
		if err != nil {
			extractErr = fmt.Errorf("extract concepts from %s: %w", doc.ID, err)
		} else {
			for _, p := range ext.Phrases {
				if concepts.WordCount(p) >= 2 {
					add(p)
				}
			}
			for _, e := range ext.Entities {
				if concepts.ConceptEntity(e.Type) {
					add(e.Text)
				}
			}
		}
	}
	for _, k := range a.tables.ConceptKeywordMatches(text, d) {
		add(k)
	}
	return out, extractErr
}

// Analyze extracts concepts from every document and summarizes them. An
// extractor failure on one document is logged; that document still
// contributes its keyword matches.
func (a *Analyzer) Analyze(ctx context.Context, d domain.Domain, docs []domain.Document) result.Result[Insights] {
	if len(docs) < MinDocuments {
		return result.Failed[Insights](ErrTooFewDocuments.Error())
	}
	sets := make([]DocumentConcepts, len(docs))
	for i, doc := range docs {
		dc, err := a.Concepts(ctx, d, doc)
		if err != nil {
			a.log.Warn("concept extraction failed", zap.String("domain", string(d)), zap.String("document_id", doc.ID), zap.Error(err))
		}
		sets[i] = dc
	}
	return Summarize(d, sets)
}

// Summarize tallies document frequency over pre-extracted concept sets.
// Lists are ordered by frequency, then by first appearance.
func Summarize(d domain.Domain, docs []DocumentConcepts) result.Result[Insights] {
	if len(docs) < MinDocuments {
		return result.Failed[Insights](ErrTooFewDocuments.Error())
	}
	ins := Insights{Domain: d, SourceCount: len(docs)}
	freq := map[string]int{}
	var order []string
	for _, doc := range docs {
		ins.SourceDocumentIDs = append(ins.SourceDocumentIDs, doc.DocumentID)
		ins.TotalConcepts += len(doc.Concepts)
		for _, c := range doc.Concepts {
			if _, ok := freq[c]; !ok {
				order = append(order, c)
			}
			freq[c]++
		}
	}
	ins.UniqueConcepts = len(order)

	ranked := append([]string(nil), order...)
	sort.SliceStable(ranked, func(i, j int) bool { return freq[ranked[i]] > freq[ranked[j]] })
	for _, c := range ranked {
		multiWord := concepts.WordCount(c) >= 2
		switch {
		case freq[c] >= 2:
			ins.FrequentConcepts = append(ins.FrequentConcepts, c)
			if multiWord {
				ins.CommonThemes = append(ins.CommonThemes, c)
			}
		case multiWord:
			ins.RareConcepts = append(ins.RareConcepts, c)
		}
	}
	ins.ComplementaryPairs = complementaryPairs(docs)
	return result.Ok(ins)
}

// complementaryPairs walks document pairs i<j by index and stops once
// MaxPairs pairs are found.
func complementaryPairs(docs []DocumentConcepts) []Pair {
	sets := make([]map[string]struct{}, len(docs))
	for i, doc := range docs {
		sets[i] = make(map[string]struct{}, len(doc.Concepts))
		for _, c := range doc.Concepts {
			sets[i][c] = struct{}{}
		}
	}
	var pairs []Pair
	for i := 0; i < len(docs); i++ {
		for j := i + 1; j < len(docs); j++ {
			left := complement(docs[i].Concepts, sets[j], pairSideLimit)
			right := complement(docs[j].Concepts, sets[i], pairSideLimit)
			if len(left) == 0 || len(right) == 0 {
				continue
			}
			for _, a := range left {
				for _, b := range right {
					pairs = append(pairs, Pair{First: a, Second: b, FirstDocID: docs[i].DocumentID, SecondDocID: docs[j].DocumentID})
					if len(pairs) == MaxPairs {
						return pairs
					}
				}
			}
		}
	}
	return pairs
}

func complement(list []string, other map[string]struct{}, limit int) []string {
	var out []string
	for _, c := range list {
		if _, shared := other[c]; shared {
			continue
		}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out
}
