package common

import (
	"fmt"
	"strings"
)

// EntityType is one of the four node categories of the book graph. The
// value doubles as the node label in the persisted graph.
type EntityType string

const (
	EntityTypePerson       EntityType = "person"
	EntityTypePlace        EntityType = "place"
	EntityTypeItem         EntityType = "item"
	EntityTypeOrganization EntityType = "organization"
)

// EntityTypes lists the canonical types in label order. Graph availability
// checks count nodes carrying exactly these labels.
var EntityTypes = []EntityType{
	EntityTypePerson,
	EntityTypePlace,
	EntityTypeItem,
	EntityTypeOrganization,
}

var entityTypeSynonyms = map[string]EntityType{
	"person":       EntityTypePerson,
	"persona":      EntityTypePerson,
	"character":    EntityTypePerson,
	"персонаж":     EntityTypePerson,
	"персона":      EntityTypePerson,
	"place":        EntityTypePlace,
	"location":     EntityTypePlace,
	"место":        EntityTypePlace,
	"item":         EntityTypeItem,
	"object":       EntityTypeItem,
	"thing":        EntityTypeItem,
	"предмет":      EntityTypeItem,
	"organization": EntityTypeOrganization,
	"organisation": EntityTypeOrganization,
	"организация":  EntityTypeOrganization,
}

// NormalizeEntityType maps an extractor label, in English or Russian, onto
// a canonical EntityType. Unknown labels are returned with ok == false.
func NormalizeEntityType(raw string) (EntityType, bool) {
	t, ok := entityTypeSynonyms[strings.ToLower(strings.TrimSpace(raw))]
	return t, ok
}

// IsPersonType reports whether raw names the person category. Only persons
// take part in alias canonicalization.
func IsPersonType(raw string) bool {
	t, ok := NormalizeEntityType(raw)
	return ok && t == EntityTypePerson
}

func (t EntityType) Valid() bool {
	for _, c := range EntityTypes {
		if t == c {
			return true
		}
	}
	return false
}

// NormalizeEntityTypeOr is NormalizeEntityType with a fallback for unknown
// labels.
func NormalizeEntityTypeOr(raw string, fallback EntityType) EntityType {
	if t, ok := NormalizeEntityType(raw); ok {
		return t
	}
	return fallback
}

// Entity is a raw node candidate as produced by chapter extraction.
type Entity struct {
	Name        string `json:"name"`
	Type        string `json:"entity_type"`
	Singular    bool   `json:"singular"`
	Description string `json:"description"`
	Chapter     string `json:"chapter,omitempty"`
}

// Relationship is a raw typed link between two entity names.
type Relationship struct {
	Source      string `json:"entity_1"`
	Target      string `json:"entity_2"`
	Type        string `json:"relationship_type"`
	Description string `json:"description"`
	Chapter     string `json:"chapter,omitempty"`
}

// ChapterExtraction is everything extracted from one chapter file. It is
// the unit written to and read from an extraction store.
type ChapterExtraction struct {
	Chapter       string         `json:"chapter"`
	Summary       string         `json:"summary,omitempty"`
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
}

// Node is a merged graph node. Name is a sanitized identifier.
type Node struct {
	Label       EntityType `json:"label"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Singular    bool       `json:"singular"`
}

// Edge is a normalized relation between two node names. Type is the
// graph-safe relation token and may be backtick-quoted.
type Edge struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Chapter     string `json:"chapter,omitempty"`
}

// GraphHit is one row of a one-hop traversal.
type GraphHit struct {
	Source            string `json:"source"`
	RelationType      string `json:"rel_type"`
	RelationDesc      string `json:"rel_desc"`
	Target            string `json:"target"`
	TargetDescription string `json:"tgt_desc"`
}

// ContextDocument is a traversal row rendered as text for similarity
// search and answer grounding.
type ContextDocument struct {
	Text     string `json:"text"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	Relation string `json:"relation"`
}

// NewContextDocument renders hit as "{source} {relation} {target}. {description}".
func NewContextDocument(hit GraphHit) ContextDocument {
	return ContextDocument{
		Text:     fmt.Sprintf("%s %s %s. %s", hit.Source, hit.RelationType, hit.Target, hit.RelationDesc),
		Source:   hit.Source,
		Target:   hit.Target,
		Relation: hit.RelationType,
	}
}

// Metadata returns the document metadata attached to similarity index rows.
func (d ContextDocument) Metadata() map[string]string {
	return map[string]string{
		"source":   d.Source,
		"target":   d.Target,
		"relation": d.Relation,
	}
}
