package alias

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/bookgraph/pkg/ai"
	"github.com/OFFIS-RIT/bookgraph/pkg/ai/aitest"
)

func TestSuggest(t *testing.T) {
	stub := &aitest.Stub{
		Format: func(_ context.Context, name, _ string) (string, error) {
			return `{"groups": [
				{"canonical_name": "Эдмон_Дантес", "alias": ["Дантес", "эдмон"]},
				{"canonical_name": "Эдмон_Дантес", "alias": ["граф монте-кристо"]},
				{"canonical_name": " ", "alias": ["x"]},
				{"canonical_name": "Мерседес", "alias": []}
			]}`, nil
		},
	}

	tbl, err := Suggest(context.Background(), stub, []string{"эдмон", "Дантес", "дантес", " ", "граф монте-кристо", "мерседес"})
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	want := &Table{Groups: []Group{
		{Canonical: "Эдмон_Дантес", Category: CategoryPerson, Aliases: []string{"дантес", "эдмон", "граф монте-кристо"}},
		{Canonical: "Мерседес", Category: CategoryPerson, Aliases: []string{}},
	}}
	if !reflect.DeepEqual(tbl, want) {
		t.Errorf("Suggest() = %#v, want %#v", tbl, want)
	}

	calls := stub.CallsTo("GenerateCompletionWithFormat")
	if len(calls) != 1 {
		t.Fatalf("got %d structured calls, want 1", len(calls))
	}
	prompt := calls[0].Prompt
	if strings.Count(prompt, "- дантес") != 1 {
		t.Errorf("names were not deduplicated in prompt:\n%s", prompt)
	}
	if strings.Index(prompt, "- граф монте-кристо") > strings.Index(prompt, "- эдмон") {
		t.Errorf("names are not sorted in prompt")
	}
}

func TestSuggestEmptyInputSkipsModel(t *testing.T) {
	stub := &aitest.Stub{}
	tbl, err := Suggest(context.Background(), stub, []string{"", "  "})
	if err != nil || len(tbl.Groups) != 0 {
		t.Fatalf("Suggest() = %#v, %v", tbl, err)
	}
	if len(stub.Calls()) != 0 {
		t.Errorf("model was called for empty input")
	}
}

func TestSuggestInvalidOutput(t *testing.T) {
	stub := &aitest.Stub{
		Format: func(context.Context, string, string) (string, error) { return "not json at all", nil },
	}
	_, err := Suggest(context.Background(), stub, []string{"фариа"})
	if !errors.Is(err, ai.ErrSchemaValidation) {
		t.Errorf("Suggest() error = %v, want ErrSchemaValidation", err)
	}
}

func TestMergeKeepsBasePrecedence(t *testing.T) {
	base := mustParse(t, "Эдмон_Дантес: [дантес]\n")
	extra := &Table{Groups: []Group{
		{Canonical: "Эдмон_Дантес", Category: CategoryPerson, Aliases: []string{"эдмон"}},
		{Canonical: "Мерседес", Category: CategoryPerson, Aliases: []string{"мерседес"}},
	}}
	got := Merge(base, extra)
	if len(got.Groups) != 2 || !reflect.DeepEqual(got.Groups[0], base.Groups[0]) || got.Groups[1].Canonical != "Мерседес" {
		t.Errorf("Merge() = %#v", got)
	}
}
