package concepts

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jdkato/prose/v2"
)

// ProseExtractor is the model-backed Extractor. prose tokenizes, tags parts
// of speech and labels named entities; phrases are chunked from the tags.
//
// A chunk longer than two words also yields its opening two-word compound,
// so "carbon pricing policy" and "carbon pricing schemes" share "carbon
// pricing".
type ProseExtractor struct {
	once  sync.Once
	model *prose.Model
	err   error
}

func NewProseExtractor() *ProseExtractor { return &ProseExtractor{} }

// load builds the tagger and entity model once. The model is only read
// afterwards, so documents can share it across goroutines.
func (x *ProseExtractor) load() error {
	x.once.Do(func() {
		doc, err := prose.NewDocument("Model warm up.", prose.WithSegmentation(false))
		if err != nil {
			x.err = fmt.Errorf("load prose model: %w", err)
			return
		}
		x.model = doc.Model
	})
	return x.err
}

func (x *ProseExtractor) Extract(ctx context.Context, text string) (Extraction, error) {
	if err := ctx.Err(); err != nil {
		return Extraction{}, err
	}
	if err := x.load(); err != nil {
		return Extraction{}, err
	}
	var out Extraction
	seenPhrase := map[string]struct{}{}
	seenEntity := map[string]struct{}{}
	for _, sentence := range SplitSentences(stripControl(text)) {
		if err := ctx.Err(); err != nil {
			return Extraction{}, err
		}
		doc, err := prose.NewDocument(sentence,
			prose.WithSegmentation(false),
			prose.UsingModel(x.model),
		)
		if err != nil {
			return Extraction{}, fmt.Errorf("tag sentence: %w", err)
		}
		toks := doc.Tokens()
		for _, p := range chunkTagged(toks) {
			if _, dup := seenPhrase[p]; dup {
				continue
			}
			seenPhrase[p] = struct{}{}
			out.Phrases = append(out.Phrases, p)
		}
		for _, e := range taggedEntities(doc.Entities(), toks) {
			key := strings.ToLower(e.Text)
			if _, dup := seenEntity[key]; dup {
				continue
			}
			seenEntity[key] = struct{}{}
			out.Entities = append(out.Entities, e)
		}
	}
	return out, nil
}

func nounTag(tag string) bool {
	switch tag {
	case "NN", "NNS", "NNP", "NNPS":
		return true
	}
	return false
}

func adjectiveTag(tag string) bool {
	switch tag {
	case "JJ", "JJR", "JJS":
		return true
	}
	return false
}

// chunkTagged returns maximal adjective/noun runs that end on a noun. A
// gerund joins a run already in progress ("carbon pricing") but never opens
// one, since a leading gerund is usually the verb of the sentence.
func chunkTagged(toks []prose.Token) []string {
	var out []string
	var run []prose.Token
	flush := func() {
		for len(run) > 0 && !nounTag(run[len(run)-1].Tag) && run[len(run)-1].Tag != "VBG" {
			run = run[:len(run)-1]
		}
		if len(run) >= 2 {
			words := make([]string, len(run))
			for i, t := range run {
				words[i] = t.Text
			}
			out = append(out, Normalize(strings.Join(words, " ")))
			if len(run) > 2 && compoundHead(run[0]) && compoundHead(run[1]) {
				out = append(out, Normalize(run[0].Text+" "+run[1].Text))
			}
		}
		run = run[:0]
	}
	for _, t := range toks {
		lower := strings.ToLower(t.Text)
		if lower == "" || hasDigit(lower) {
			flush()
			continue
		}
		if _, stop := stopwords[lower]; stop {
			flush()
			continue
		}
		switch {
		case nounTag(t.Tag) || adjectiveTag(t.Tag):
			run = append(run, t)
		case t.Tag == "VBG" && len(run) > 0:
			run = append(run, t)
		default:
			flush()
		}
	}
	flush()
	return out
}

func compoundHead(t prose.Token) bool {
	return nounTag(t.Tag) || t.Tag == "VBG"
}

// taggedEntities merges prose's labelled entities with proper-noun runs the
// model left unlabelled. Labels the model does not produce (events,
// products, most organizations) come from the same name heuristics the rule
// extractor uses.
func taggedEntities(labelled []prose.Entity, toks []prose.Token) []Entity {
	var out []Entity
	for _, e := range labelled {
		words := strings.Fields(e.Text)
		if len(words) == 0 {
			continue
		}
		switch e.Label {
		case "GPE":
			out = append(out, Entity{Text: e.Text, Type: EntityGPE})
		case "ORG":
			out = append(out, Entity{Text: e.Text, Type: EntityOrg})
		case "PERSON":
			out = append(out, Entity{Text: e.Text, Type: EntityOther})
		default:
			out = append(out, Entity{Text: e.Text, Type: classifyEntity(words)})
		}
	}

	var run []string
	flush := func() {
		if len(run) > 0 {
			if typ := classifyEntity(run); typ != EntityOther {
				out = append(out, Entity{Text: strings.Join(run, " "), Type: typ})
			}
		}
		run = nil
	}
	for _, t := range toks {
		if t.Tag == "NNP" || t.Tag == "NNPS" || (len(run) > 0 && isProductCode(t.Text)) {
			run = append(run, t.Text)
			continue
		}
		flush()
	}
	flush()
	return out
}
