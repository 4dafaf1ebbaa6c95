package alias

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/bookgraph/pkg/ai"
	"github.com/OFFIS-RIT/bookgraph/pkg/logger"
)

type suggestedGroup struct {
	CanonicalName string   `json:"canonical_name" jsonschema_description:"Most popular and recognizable full name of the character"`
	Alias         []string `json:"alias" jsonschema_description:"Every other name of the character taken from the list, lowercase"`
}

type suggestion struct {
	Groups []suggestedGroup `json:"groups"`
}

// Suggest asks client to cluster person names into alias groups. The
// result is meant for review before it is written with Write; it is never
// applied automatically. Names are deduplicated case-insensitively and
// sent in sorted order so the prompt is stable between runs.
func Suggest(ctx context.Context, client ai.GraphAIClient, names []string) (*Table, error) {
	seen := make(map[string]struct{}, len(names))
	list := make([]string, 0, len(names))
	for _, n := range names {
		k := strings.ToLower(strings.TrimSpace(n))
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		list = append(list, k)
	}
	slices.Sort(list)
	if len(list) == 0 {
		return &Table{}, nil
	}

	prompt := fmt.Sprintf(ai.CanonicalNamesPrompt, "- "+strings.Join(list, "\n- "))
	var out suggestion
	err := client.GenerateCompletionWithFormat(
		ctx,
		"canonical_names",
		"Groups of names that refer to the same character",
		prompt,
		&out,
	)
	if err != nil {
		return nil, fmt.Errorf("suggest aliases: %w", err)
	}

	t := &Table{}
	index := make(map[string]int)
	for _, g := range out.Groups {
		canonical := strings.TrimSpace(g.CanonicalName)
		if canonical == "" {
			continue
		}
		aliases := normalizeAliases(g.Alias)
		if i, ok := index[canonical]; ok {
			t.Groups[i].Aliases = normalizeAliases(append(t.Groups[i].Aliases, aliases...))
			continue
		}
		index[canonical] = len(t.Groups)
		t.Groups = append(t.Groups, Group{
			Canonical: canonical,
			Category:  CategoryPerson,
			Aliases:   aliases,
		})
	}

	logger.Info("[Alias] Suggested alias groups", "names", len(list), "groups", len(t.Groups))
	return t, nil
}

// Merge returns base followed by every group of extra whose canonical name
// base does not declare yet. base keeps precedence for ambiguous aliases.
func Merge(base, extra *Table) *Table {
	out := &Table{}
	have := make(map[string]struct{})
	for _, src := range []*Table{base, extra} {
		if src == nil {
			continue
		}
		for _, g := range src.Groups {
			if _, ok := have[g.Canonical]; ok {
				continue
			}
			have[g.Canonical] = struct{}{}
			out.Groups = append(out.Groups, g)
		}
	}
	return out
}
