package extractor

import (
	"regexp"
	"strings"

	"github.com/mira-notes/mira/pkg/types"
)

// heuristicConfidence is assigned to matches from the shallow NLP pass. It
// sits below patternConfidence so a pattern match for the same span wins.
const heuristicConfidence = 0.75

// candidateRe finds runs of capitalized words. The heuristic pass filters
// and classifies these by surrounding context.
var candidateRe = regexp.MustCompile(`\b[A-Z][a-z]+(?: [A-Z][a-z]+)*\b`)

// stopwords are capitalized tokens that are almost never entity names,
// mostly sentence starters and calendar words.
var stopwords = map[string]struct{}{
	"i": {}, "the": {}, "a": {}, "an": {}, "my": {}, "our": {}, "this": {},
	"that": {}, "these": {}, "those": {}, "it": {}, "he": {}, "she": {},
	"we": {}, "they": {}, "but": {}, "and": {}, "or": {}, "so": {},
	"then": {}, "when": {}, "if": {}, "also": {}, "today": {},
	"tomorrow": {}, "tonight": {}, "yesterday": {},
	"monday": {}, "tuesday": {}, "wednesday": {}, "thursday": {},
	"friday": {}, "saturday": {}, "sunday": {},
	"january": {}, "february": {}, "march": {}, "april": {}, "may": {},
	"june": {}, "july": {}, "august": {}, "september": {}, "october": {},
	"november": {}, "december": {},
}

// kindCues maps context words to the entity kind they suggest. The window
// around a candidate is checked against these before defaulting to person.
var kindCues = []struct {
	kind types.EntityKind
	cues []string
}{
	{types.KindPet, []string{"dog", "cat", "puppy", "kitten", "pet", "vet", "leash", "walk"}},
	{types.KindOrg, []string{"company", "work", "team", "office", "startup", "employer", "client"}},
	{types.KindPlace, []string{"went", "visit", "visited", "travel", "flight", "drive", "staying", "near"}},
	{types.KindProject, []string{"project", "deadline", "launch", "sprint", "milestone", "ship"}},
}

// contextWindow is how many bytes on each side of a candidate are inspected
// for kind cues.
const contextWindow = 40

// runHeuristics performs the shallow NLP pass: capitalized word runs that
// are not stopwords and not plain sentence starters, classified by nearby
// context words.
func runHeuristics(text string) []types.ExtractedEntity {
	var out []types.ExtractedEntity
	for _, loc := range candidateRe.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		raw := text[start:end]
		norm := normalize(raw)
		if _, skip := stopwords[norm]; skip {
			continue
		}
		// A single capitalized word at the start of a sentence is usually
		// just capitalization, not a name. Multi-word runs are kept.
		if sentenceStart(text, start) && !strings.Contains(raw, " ") {
			continue
		}
		out = append(out, types.ExtractedEntity{
			Text:           raw,
			NormalizedText: norm,
			Kind:           classify(text, start, end),
			Start:          start,
			End:            end,
			Confidence:     heuristicConfidence,
			Method:         types.MethodHeuristic,
		})
	}
	return out
}

// sentenceStart reports whether the byte offset sits at the start of the
// text or right after terminal punctuation.
func sentenceStart(text string, offset int) bool {
	for i := offset - 1; i >= 0; i-- {
		c := text[i]
		switch {
		case c == ' ' || c == '\t':
			continue
		case c == '.' || c == '!' || c == '?' || c == '\n' || c == '\r':
			return true
		default:
			return false
		}
	}
	return true
}

// classify picks an entity kind from cue words around the candidate span,
// defaulting to person.
func classify(text string, start, end int) types.EntityKind {
	lo := start - contextWindow
	if lo < 0 {
		lo = 0
	}
	hi := end + contextWindow
	if hi > len(text) {
		hi = len(text)
	}
	window := strings.ToLower(text[lo:hi])
	for _, kc := range kindCues {
		for _, cue := range kc.cues {
			if strings.Contains(window, cue) {
				return kc.kind
			}
		}
	}
	return types.KindPerson
}

// normalize lowercases and collapses inner whitespace for dedup keys.
func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
