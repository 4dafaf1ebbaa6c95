package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/bookgraph/pkg/ai"
	"github.com/OFFIS-RIT/bookgraph/pkg/alias"
	"github.com/OFFIS-RIT/bookgraph/pkg/common"
	"github.com/OFFIS-RIT/bookgraph/pkg/graph"
	"github.com/OFFIS-RIT/bookgraph/pkg/store"
)

type queryEntity struct {
	Entity       string   `json:"entity" jsonschema_description:"Name of the character, place or item as written in the question"`
	Relationship []string `json:"relationship" jsonschema_description:"Verbs or predicates of the question that refer to the entity"`
}

// queryEntities is the structured output of the query-to-entities prompt.
// Models do not always keep to the schema, so decoding accepts every shape
// ParseEntities does.
type queryEntities struct {
	Entities []queryEntity `json:"entities"`
}

func (q *queryEntities) UnmarshalJSON(data []byte) error {
	names, err := ParseEntities(data)
	if err != nil {
		return err
	}
	q.Entities = make([]queryEntity, len(names))
	for i, n := range names {
		q.Entities[i] = queryEntity{Entity: n}
	}
	return nil
}

// ParseEntities flattens the entity list a model returned for a question.
// Accepted shapes are an array of strings, an array of objects with an
// "entity" (or "name") field, either of those under an "entities" key, and
// a single {"entity": ...} object. Order is kept and blank names are
// skipped.
func ParseEntities(data []byte) ([]string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	switch data[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			name, err := parseEntityItem(item)
			if err != nil {
				return nil, err
			}
			if name != "" {
				out = append(out, name)
			}
		}
		return out, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, err
		}
		if list, ok := obj["entities"]; ok {
			return ParseEntities(list)
		}
		name, err := parseEntityItem(data)
		if err != nil {
			return nil, err
		}
		if name == "" {
			return nil, nil
		}
		return []string{name}, nil
	default:
		return nil, fmt.Errorf("unexpected entity list starting with %q", data[0])
	}
}

func parseEntityItem(item json.RawMessage) (string, error) {
	item = bytes.TrimSpace(item)
	if len(item) == 0 {
		return "", nil
	}
	if item[0] == '"' {
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}

	var obj struct {
		Entity string `json:"entity"`
		Name   string `json:"name"`
	}
	if err := json.Unmarshal(item, &obj); err != nil {
		return "", fmt.Errorf("entity item: %w", err)
	}
	if s := strings.TrimSpace(obj.Entity); s != "" {
		return s, nil
	}
	return strings.TrimSpace(obj.Name), nil
}

// EntityResolver turns a question into the graph identifiers it mentions.
type EntityResolver struct {
	client   ai.GraphAIClient
	resolver *alias.Resolver
}

func NewEntityResolver(client ai.GraphAIClient, resolver *alias.Resolver) *EntityResolver {
	return &EntityResolver{client: client, resolver: resolver}
}

// ResolveQuery asks the model for the entities of query and maps each one
// through alias resolution and name sanitization, the same two steps the
// graph build applies. The result is deduplicated in first-seen order.
func (r *EntityResolver) ResolveQuery(ctx context.Context, query string) ([]string, error) {
	var out queryEntities
	err := r.client.GenerateCompletionWithFormat(
		ctx,
		"query_entities",
		"Entities a question about the book refers to",
		fmt.Sprintf(ai.QueryEntitiesPrompt, query),
		&out,
	)
	if err != nil {
		return nil, fmt.Errorf("extract query entities: %w", err)
	}

	raw := make([]string, 0, len(out.Entities))
	for _, e := range out.Entities {
		raw = append(raw, e.Entity)
	}
	return r.Identifiers(raw), nil
}

// Identifiers maps raw names onto graph identifiers.
func (r *EntityResolver) Identifiers(names []string) []string {
	ids := make([]string, 0, len(names))
	for _, n := range names {
		ids = append(ids, graph.SanitizeName(r.resolver.Resolve(n, string(common.EntityTypePerson))))
	}
	return store.DedupeStrings(ids)
}
