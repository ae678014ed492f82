package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/mira-notes/mira/pkg/types"
)

const (
	maxUserIDLen = 100
	maxNoteLen   = 16384

	// maxPromptFacts bounds how many known facts are folded into the
	// system context; maxBioLen bounds the optional profile text.
	maxPromptFacts = 5
	maxBioLen      = 500

	// taskMarker prefixes the machine-readable task line in completions.
	taskMarker = "TASK_JSON:"

	// timingFloor is the minimum task confidence once the text carries a
	// timing hint ("tomorrow", "next week", ...).
	timingFloor = 0.65
)

var (
	userIDRe = regexp.MustCompile(`^[\w.@-]+$`)

	timingHintRe = regexp.MustCompile(`(?i)\b(later|soon|tomorrow|tonight|this (?:afternoon|evening|morning)|next (?:week|month)|in a (?:few|couple of) (?:hours|days))\b`)

	controlCharRe = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")

	sanitizer = bluemonday.StrictPolicy()
)

const systemPrompt = `You are Mira, a thoughtful note-taking companion. The user writes short
personal notes; respond with a brief, warm reflection (2-3 sentences).

If the note contains something actionable, append one extra line:
TASK_JSON: {"title":"...","priority":"low|medium|high","confidence":0.0,"natural_text":"the phrase that implied the task"}
Only emit that line when you are reasonably sure; otherwise omit it entirely.`

// TaskCandidate is the actionable item parsed out of a completion.
type TaskCandidate struct {
	Title       string             `json:"title"`
	Priority    types.TaskPriority `json:"priority"`
	Confidence  float64            `json:"confidence"`
	NaturalText string             `json:"natural_text"`
}

// ValidUserID reports whether the id is non-empty, at most 100 characters
// and limited to word characters, dots, @ and dashes.
func ValidUserID(userID string) bool {
	return userID != "" && len(userID) <= maxUserIDLen && userIDRe.MatchString(userID)
}

// ValidateInput checks the user id and note before any model call.
func ValidateInput(userID, note string) error {
	if !ValidUserID(userID) {
		return fmt.Errorf("%w: bad user id", ErrValidation)
	}
	if strings.TrimSpace(note) == "" {
		return fmt.Errorf("%w: note is empty", ErrValidation)
	}
	if len(note) > maxNoteLen {
		return fmt.Errorf("%w: note exceeds %d bytes", ErrValidation, maxNoteLen)
	}
	return nil
}

// Sanitize strips HTML and control characters from untrusted note text.
func Sanitize(note string) string {
	cleaned := sanitizer.Sanitize(note)
	cleaned = controlCharRe.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// BuildRequest assembles the completion request for a sanitized note,
// folding at most five of the user's known facts and an optional bio into
// the system context. The bio is truncated to 500 characters.
func BuildRequest(note string, facts []*types.Fact, bio string) Request {
	system := systemPrompt
	if len(facts) > maxPromptFacts {
		facts = facts[:maxPromptFacts]
	}
	if len(facts) > 0 {
		var sb strings.Builder
		sb.WriteString("\n\nWhat you already know about this user:\n")
		for _, f := range facts {
			sb.WriteString(fmt.Sprintf("- %s (%s, mentioned %d times)\n", f.Name, f.Kind, f.Frequency))
		}
		system += sb.String()
	}
	if bio = strings.TrimSpace(bio); bio != "" {
		if len(bio) > maxBioLen {
			bio = bio[:maxBioLen]
		}
		system += "\n\nAbout this user:\n" + bio
	}
	return Request{
		System: system,
		Prompt: note,
	}
}

// ExtractTask parses the TASK_JSON line from a completion, if present.
// Malformed JSON or an empty title yields no candidate. A timing hint in
// the title or natural text raises confidence to at least 0.65.
func ExtractTask(completion string) (*TaskCandidate, bool) {
	idx := strings.Index(completion, taskMarker)
	if idx < 0 {
		return nil, false
	}
	line := completion[idx+len(taskMarker):]
	if nl := strings.IndexByte(line, '\n'); nl >= 0 {
		line = line[:nl]
	}
	line = strings.TrimSpace(line)

	var cand TaskCandidate
	if err := json.Unmarshal([]byte(line), &cand); err != nil {
		return nil, false
	}
	cand.Title = strings.TrimSpace(cand.Title)
	if cand.Title == "" {
		return nil, false
	}
	if !types.ValidTaskPriority(cand.Priority) {
		cand.Priority = types.PriorityMedium
	}
	if cand.Confidence < 0 {
		cand.Confidence = 0
	}
	if cand.Confidence > 1 {
		cand.Confidence = 1
	}
	if HasTimingHint(cand.Title) || HasTimingHint(cand.NaturalText) {
		if cand.Confidence < timingFloor {
			cand.Confidence = timingFloor
		}
	}
	return &cand, true
}

// HasTimingHint reports whether the text contains a relative-time phrase.
func HasTimingHint(text string) bool {
	return timingHintRe.MatchString(text)
}

// CleanAnswer removes the machine-readable task line from a completion so
// only the human-facing text remains.
func CleanAnswer(completion string) string {
	idx := strings.Index(completion, taskMarker)
	if idx < 0 {
		return strings.TrimSpace(completion)
	}
	before := completion[:idx]
	after := completion[idx:]
	if nl := strings.IndexByte(after, '\n'); nl >= 0 {
		before += after[nl+1:]
	}
	return strings.TrimSpace(before)
}
