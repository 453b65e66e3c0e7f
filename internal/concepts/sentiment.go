package concepts

import "strings"

// Polarity scores text in [-1,1] from a small opinion lexicon. A negator
// flips the next scored word.
func Polarity(text string) float64 {
	var pos, neg int
	negate := false
	for _, f := range strings.Fields(strings.ToLower(text)) {
		w := strings.Trim(f, ".,;:!?()\"'")
		if _, ok := negators[w]; ok {
			negate = true
			continue
		}
		_, isPos := positiveWords[w]
		_, isNeg := negativeWords[w]
		if negate && (isPos || isNeg) {
			isPos, isNeg = isNeg, isPos
			negate = false
		}
		switch {
		case isPos:
			pos++
		case isNeg:
			neg++
		}
	}
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}

func Positive(text string) bool { return Polarity(text) > 0 }

var negators = set("not", "no", "never", "without", "hardly", "cannot", "didn't", "doesn't", "isn't", "wasn't")

var positiveWords = set(
	"good", "great", "better", "best", "effective", "efficient", "successful", "success",
	"improve", "improved", "improves", "improvement", "benefit", "benefits", "beneficial",
	"promising", "positive", "significant", "significantly", "strong", "affordable", "cheap",
	"safe", "robust", "valuable", "helpful", "encouraging", "low-cost", "sustainable", "proven",
)

var negativeWords = set(
	"bad", "poor", "worse", "worst", "ineffective", "failed", "failure", "harmful", "negative",
	"weak", "expensive", "costly", "difficult", "risky", "adverse", "unsafe", "decline",
	"inadequate", "insufficient", "problematic",
)
