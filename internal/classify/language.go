package classify

import "strings"

// LanguageDetector guesses the language of raw intent text. Pluggable so a
// real detector can replace the stop-word heuristic without touching capture.
type LanguageDetector interface {
	Detect(input string) string
}

// StopwordDetector guesses language from common function words. It only needs
// to be good enough to tag the Intent record; classification does not depend
// on it.
type StopwordDetector struct{}

var stopwords = map[string][]string{
	"en": {" the ", " and ", " for ", " with ", " this ", " that "},
	"de": {" der ", " die ", " das ", " und ", " für ", " mit "},
	"fr": {" le ", " la ", " les ", " et ", " pour ", " avec "},
	"es": {" el ", " los ", " las ", " para ", " con ", " una "},
}

// Detect returns an ISO 639-1 code, defaulting to "en".
func (StopwordDetector) Detect(input string) string {
	padded := " " + strings.ToLower(input) + " "
	best := "en"
	bestHits := 0
	for lang, words := range stopwords {
		hits := 0
		for _, w := range words {
			hits += strings.Count(padded, w)
		}
		if hits > bestHits {
			best = lang
			bestHits = hits
		}
	}
	return best
}
