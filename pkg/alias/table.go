// Package alias maps the many spellings of a character onto one canonical
// name.
//
// An alias file is YAML or JSON. Each key is a canonical name and each value
// is either a list of aliases, which makes a person group, or an object with
// an explicit category:
//
//	Эдмон_Дантес: [дантес, эдмон, граф монте-кристо]
//	Фернан:
//	  category: person
//	  aliases: [фернан мондего, граф де морсер]
//
// Declaration order is significant. When an alias appears in more than one
// group, the group declared first wins.
package alias

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CategoryPerson is the only category that takes part in resolution.
const CategoryPerson = "person"

// Group is a canonical name plus its known alternate names.
type Group struct {
	Canonical string   `yaml:"-"`
	Category  string   `yaml:"category"`
	Aliases   []string `yaml:"aliases"`
}

// Table is an ordered, read-only set of alias groups.
type Table struct {
	Groups []Group
}

var ErrInvalidAliasFile = errors.New("invalid alias file")

// Load reads and parses the alias file at path.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alias file: %w", err)
	}
	return Parse(data)
}

// Parse decodes an alias document. JSON is accepted because it is valid
// YAML. Aliases are trimmed and lowercased; empty ones are dropped.
func Parse(data []byte) (*Table, error) {
	t := &Table{}
	if len(bytes.TrimSpace(data)) == 0 {
		return t, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAliasFile, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return t, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level must be a mapping, line %d", ErrInvalidAliasFile, root.Line)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		canonical := strings.TrimSpace(key.Value)
		if canonical == "" {
			return nil, fmt.Errorf("%w: empty canonical name, line %d", ErrInvalidAliasFile, key.Line)
		}

		g := Group{Canonical: canonical, Category: CategoryPerson}
		switch value.Kind {
		case yaml.SequenceNode:
			if err := value.Decode(&g.Aliases); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAliasFile, canonical, err)
			}
		case yaml.MappingNode:
			if err := value.Decode(&g); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAliasFile, canonical, err)
			}
			g.Canonical = canonical
			g.Category = strings.ToLower(strings.TrimSpace(g.Category))
			if g.Category == "" {
				g.Category = CategoryPerson
			}
		default:
			return nil, fmt.Errorf("%w: %s: expected list or mapping, line %d", ErrInvalidAliasFile, canonical, value.Line)
		}

		g.Aliases = normalizeAliases(g.Aliases)
		t.Groups = append(t.Groups, g)
	}
	return t, nil
}

func normalizeAliases(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, a := range in {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

// Marshal renders t as YAML in declaration order.
func (t *Table) Marshal() ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, g := range t.Groups {
		key := &yaml.Node{Kind: yaml.ScalarNode, Value: g.Canonical}
		aliases := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, a := range g.Aliases {
			aliases.Content = append(aliases.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: a})
		}

		var value *yaml.Node
		if g.Category == "" || g.Category == CategoryPerson {
			value = aliases
		} else {
			value = &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
				{Kind: yaml.ScalarNode, Value: "category"},
				{Kind: yaml.ScalarNode, Value: g.Category},
				{Kind: yaml.ScalarNode, Value: "aliases"},
				aliases,
			}}
		}
		root.Content = append(root.Content, key, value)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write stores t at path as YAML.
func Write(path string, t *Table) error {
	data, err := t.Marshal()
	if err != nil {
		return fmt.Errorf("encode alias table: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
