package concepts

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"
)

// RuleExtractor is the model-free Extractor: a stopword chunker for phrases
// and a capitalization heuristic for entities. It is stateless.
type RuleExtractor struct{}

func NewRuleExtractor() *RuleExtractor { return &RuleExtractor{} }

func (RuleExtractor) Extract(ctx context.Context, text string) (Extraction, error) {
	if err := ctx.Err(); err != nil {
		return Extraction{}, err
	}
	var out Extraction
	seenPhrase := map[string]struct{}{}
	seenEntity := map[string]struct{}{}
	for _, sentence := range SplitSentences(stripControl(text)) {
		toks := tokenize(sentence)
		for _, p := range chunkPhrases(toks) {
			if _, dup := seenPhrase[p]; dup {
				continue
			}
			seenPhrase[p] = struct{}{}
			out.Phrases = append(out.Phrases, p)
		}
		for _, e := range chunkEntities(toks) {
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

// stripControl keeps case, unlike Normalize, since entities need it.
func stripControl(s string) string {
	return CollapseSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s))
}

type token struct {
	text          string
	lower         string
	breakBefore   bool
	breakAfter    bool
	sentenceStart bool
}

func tokenize(sentence string) []token {
	fields := strings.Fields(sentence)
	toks := make([]token, 0, len(fields))
	for i, f := range fields {
		core := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		t := token{
			text:          core,
			lower:         strings.ToLower(core),
			breakBefore:   strings.HasPrefix(f, "(") || strings.HasPrefix(f, "\""),
			breakAfter:    strings.ContainsAny(lastRune(f), ",;:.!?)\""),
			sentenceStart: i == 0,
		}
		toks = append(toks, t)
	}
	return toks
}

func lastRune(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return ""
	}
	return string(r[len(r)-1])
}

func chunkPhrases(toks []token) []string {
	var out []string
	var run []string
	flush := func() {
		if len(run) >= 2 {
			out = append(out, Normalize(strings.Join(run, " ")))
		}
		run = run[:0]
	}
	for _, t := range toks {
		if t.breakBefore {
			flush()
		}
		if phraseWord(t.lower) {
			run = append(run, t.lower)
		} else {
			flush()
		}
		if t.breakAfter {
			flush()
		}
	}
	flush()
	return out
}

func phraseWord(w string) bool {
	if w == "" || hasDigit(w) {
		return false
	}
	if _, ok := stopwords[w]; ok {
		return false
	}
	if _, ok := verbs[w]; ok {
		return false
	}
	// Past-tense and participle forms end most noun phrases.
	if len(w) > 4 && strings.HasSuffix(w, "ed") && !strings.HasSuffix(w, "eed") {
		return false
	}
	return true
}

func chunkEntities(toks []token) []Entity {
	var out []Entity
	var run []string
	flush := func() {
		for len(run) > 0 {
			if _, connector := entityConnectors[strings.ToLower(run[len(run)-1])]; !connector {
				break
			}
			run = run[:len(run)-1]
		}
		if len(run) > 0 {
			out = append(out, Entity{Text: strings.Join(run, " "), Type: classifyEntity(run)})
		}
		run = nil
	}
	for _, t := range toks {
		if t.breakBefore {
			flush()
		}
		switch {
		case t.text == "":
			flush()
		case isAcronym(t.text) || (capitalized(t.text) && !t.sentenceStart) || (len(run) > 0 && capitalized(t.text)):
			run = append(run, t.text)
		case len(run) > 0 && isProductCode(t.text):
			run = append(run, t.text)
		case len(run) > 0 && isConnector(t.lower) && !t.breakAfter:
			run = append(run, t.text)
		default:
			flush()
		}
		if t.breakAfter {
			flush()
		}
	}
	flush()
	return out
}

func classifyEntity(words []string) EntityType {
	lower := strings.ToLower(strings.Join(words, " "))
	last := strings.ToLower(words[len(words)-1])
	if _, ok := places[lower]; ok {
		return EntityGPE
	}
	for _, w := range words {
		lw := strings.ToLower(w)
		if _, ok := eventWords[lw]; ok {
			return EntityEvent
		}
	}
	if _, ok := orgSuffixes[last]; ok {
		return EntityOrg
	}
	if len(words) == 1 && isAcronym(words[0]) {
		return EntityOrg
	}
	for _, w := range words {
		if _, ok := places[strings.ToLower(w)]; ok {
			return EntityGPE
		}
		if isProductCode(w) {
			return EntityProduct
		}
	}
	return EntityOther
}

func capitalized(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}

func isAcronym(s string) bool {
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 2 && len(s) <= 8
}

func isProductCode(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter && hasDigit(s)
}

func isConnector(w string) bool {
	_, ok := entityConnectors[w]
	return ok
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

func set(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

var stopwords = set(
	"a", "an", "the", "and", "or", "but", "of", "in", "on", "at", "to", "for", "from", "by",
	"with", "without", "as", "into", "onto", "over", "under", "than", "then", "that", "this",
	"these", "those", "which", "who", "whom", "whose", "what", "when", "where", "why", "how",
	"it", "its", "they", "their", "them", "we", "our", "us", "you", "your", "he", "she", "his",
	"her", "i", "is", "are", "was", "were", "be", "been", "being", "has", "have", "had", "do",
	"does", "did", "can", "could", "may", "might", "will", "would", "should", "must", "shall",
	"not", "no", "nor", "so", "such", "both", "each", "all", "any", "some", "more", "most",
	"very", "also", "only", "just", "across", "among", "between", "through", "during", "after",
	"before", "about", "against", "within", "while", "per", "via", "if", "there", "here", "up",
	"down", "out", "off", "further", "other", "many", "much", "few", "own", "same", "too",
	"new", "using", "based", "versus", "vs",
)

var verbs = set(
	"find", "finds", "found", "show", "shows", "shown", "suggest", "suggests", "reduce", "reduces",
	"reducing", "increase", "increases", "increasing", "improve", "improves", "improving",
	"lower", "lowers", "lowering", "raise", "raises", "provide", "provides", "providing",
	"offer", "offers", "use", "uses", "make", "makes", "help", "helps", "cut", "cuts", "funds",
	"deliver", "delivers", "enable", "enables", "remain", "remains", "become", "becomes",
	"include", "includes", "including", "lead", "leads", "demonstrate", "demonstrates",
	"achieve", "achieves", "require", "requires", "affect", "affects", "boost", "boosts",
	"prevent", "prevents", "expand", "expands", "scale", "scales", "address", "addresses",
)

var entityConnectors = set("of", "for", "the", "de", "on")

var orgSuffixes = set(
	"foundation", "institute", "university", "organization", "organisation", "agency", "fund",
	"bank", "ministry", "trust", "association", "council", "alliance", "league", "society",
	"department", "commission", "college", "inc", "ltd", "corp", "corporation", "company",
	"network", "centre", "center", "coalition", "programme",
)

var eventWords = set(
	"summit", "conference", "war", "olympics", "pandemic", "cup", "festival", "forum",
	"congress", "earthquake", "famine", "election",
)

var places = set(
	"africa", "sub-saharan africa", "east africa", "west africa", "asia", "south asia",
	"europe", "latin america", "north america", "south america", "india", "china", "kenya",
	"uganda", "nigeria", "ethiopia", "bangladesh", "brazil", "mexico", "indonesia", "pakistan",
	"malawi", "rwanda", "tanzania", "ghana", "united states", "united kingdom", "canada",
	"germany", "france", "japan", "australia", "vietnam", "philippines", "nepal",
)
