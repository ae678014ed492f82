// Package types defines the core data model shared across the Mira pipeline:
// extracted entities, persisted facts, tasks, and append-only audit records.
package types

// EntityKind classifies an extracted mention.
type EntityKind string

const (
	KindPerson  EntityKind = "person"
	KindPet     EntityKind = "pet"
	KindPlace   EntityKind = "place"
	KindOrg     EntityKind = "org"
	KindProject EntityKind = "project"
)

// ValidEntityKind reports whether k is one of the known entity kinds.
func ValidEntityKind(k EntityKind) bool {
	switch k {
	case KindPerson, KindPet, KindPlace, KindOrg, KindProject:
		return true
	}
	return false
}

// Extraction method tags. Pattern hits carry higher confidence than the
// heuristic pass, so they win when both find the same mention.
const (
	MethodPattern   = "pattern"
	MethodHeuristic = "heuristic-nlp"
)

// ExtractedEntity is an ephemeral typed mention found in free text.
// It is produced per extraction call and is not persisted directly;
// the reasoning engine may promote entities to Facts.
type ExtractedEntity struct {
	ID             string     `json:"id"`
	Text           string     `json:"text"`
	NormalizedText string     `json:"normalizedText"`
	Kind           EntityKind `json:"kind"`
	Start          int        `json:"start"`
	End            int        `json:"end"`
	Confidence     float64    `json:"confidence"`
	Method         string     `json:"method"`
}
