package extractor

import (
	"regexp"

	"github.com/mira-notes/mira/pkg/types"
)

// patternConfidence is assigned to every pattern-based match. Patterns are
// precise by construction so they rank above the heuristic pass.
const patternConfidence = 0.85

// patternRule pairs an entity kind with a compiled expression. Each
// expression has exactly one capture group holding the entity text.
type patternRule struct {
	kind types.EntityKind
	re   *regexp.Regexp
}

var patternRules = []patternRule{
	// People are usually introduced through a relationship word or show up
	// as the subject of a communication verb.
	{types.KindPerson, regexp.MustCompile(`\bmy (?:friend|buddy|brother|sister|mom|mother|dad|father|cousin|aunt|uncle|colleague|coworker|boss|neighbor|wife|husband|partner|girlfriend|boyfriend) ([A-Z][a-z]+(?: [A-Z][a-z]+)?)`)},
	{types.KindPerson, regexp.MustCompile(`\b([A-Z][a-z]+) (?:said|told me|mentioned|asked|called|texted|emailed|suggested)\b`)},
	{types.KindPerson, regexp.MustCompile(`\b(?:met with|meeting with|call with|lunch with|dinner with|coffee with) ([A-Z][a-z]+(?: [A-Z][a-z]+)?)\b`)},

	{types.KindPet, regexp.MustCompile(`\b(?:my|our|the) (?:dog|cat|puppy|kitten|bird|parrot|hamster|rabbit|goldfish|pet),? ([A-Z][a-z]+)\b`)},
	{types.KindPet, regexp.MustCompile(`\b([A-Z][a-z]+) (?:barked|meowed|purred|fetched|chewed|scratched)\b`)},
	{types.KindPet, regexp.MustCompile(`\b(?:walk|walked|walking|feed|fed|groom|groomed) ([A-Z][a-z]+) (?:this|today|tonight|tomorrow|at)\b`)},

	// Places carry a location suffix or follow a travel verb.
	{types.KindPlace, regexp.MustCompile(`\b([A-Z][a-z]+(?: [A-Z][a-z]+)* (?:Park|Street|Avenue|Boulevard|Cafe|Café|Restaurant|Mall|Beach|Airport|Station|Museum|Library|Gym|Hospital|Square|Market))\b`)},
	{types.KindPlace, regexp.MustCompile(`\b(?:flew to|flying to|trip to|traveled to|travelling to|moved to|drove to|visited) ([A-Z][a-z]+(?: [A-Z][a-z]+)?)\b`)},

	// Organizations end with a corporate suffix or follow an employment verb.
	{types.KindOrg, regexp.MustCompile(`\b([A-Z][\w&]*(?: [A-Z][\w&]*)*),? (?:Inc|LLC|Corp|Ltd|GmbH|Co)\b`)},
	{types.KindOrg, regexp.MustCompile(`\b(?:work at|works at|working at|joined|interviewed at|interviewing at|hired by|contract with) ([A-Z][\w&]+(?: [A-Z][\w&]+)*)\b`)},

	{types.KindProject, regexp.MustCompile(`\b[Pp]roject ([A-Z][\w-]+)\b`)},
	{types.KindProject, regexp.MustCompile(`\b(?:the|our|my) ([A-Z][\w-]+) (?:project|initiative|launch|rollout|migration|redesign)\b`)},
}

// runPatterns applies every pattern rule to text and returns the raw matches
// with byte offsets relative to text.
func runPatterns(text string) []types.ExtractedEntity {
	var out []types.ExtractedEntity
	for _, rule := range patternRules {
		for _, m := range rule.re.FindAllStringSubmatchIndex(text, -1) {
			// m[2], m[3] bound the first capture group.
			if len(m) < 4 || m[2] < 0 {
				continue
			}
			raw := text[m[2]:m[3]]
			out = append(out, types.ExtractedEntity{
				Text:           raw,
				NormalizedText: normalize(raw),
				Kind:           rule.kind,
				Start:          m[2],
				End:            m[3],
				Confidence:     patternConfidence,
				Method:         types.MethodPattern,
			})
		}
	}
	return out
}
