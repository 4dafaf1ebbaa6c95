package alias

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/bookgraph/pkg/logger"
)

const sampleYAML = `
Эдмон_Дантес: [Дантес, эдмон, граф Монте-Кристо]
Фернан:
  category: person
  aliases: [фернан мондего, граф де морсер]
Замок_Иф:
  category: place
  aliases: [иф]
Аббат_Фариа: [фариа, аббат]
Аббат_Бузони: [бузони, аббат]
`

func mustParse(t *testing.T, data string) *Table {
	t.Helper()
	tbl, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return tbl
}

func TestParseKeepsOrderAndLowercases(t *testing.T) {
	tbl := mustParse(t, sampleYAML)

	var got []string
	for _, g := range tbl.Groups {
		got = append(got, g.Canonical+"/"+g.Category)
	}
	want := []string{
		"Эдмон_Дантес/person",
		"Фернан/person",
		"Замок_Иф/place",
		"Аббат_Фариа/person",
		"Аббат_Бузони/person",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("groups = %#v, want %#v", got, want)
	}
	wantAliases := []string{"дантес", "эдмон", "граф монте-кристо"}
	if !reflect.DeepEqual(tbl.Groups[0].Aliases, wantAliases) {
		t.Errorf("aliases = %#v, want %#v", tbl.Groups[0].Aliases, wantAliases)
	}
}

func TestParseJSON(t *testing.T) {
	tbl := mustParse(t, `{"Эдмон_Дантес": ["дантес", "эдмон"], "Мерседес": {"category": "person", "aliases": ["мерседес"]}}`)
	if len(tbl.Groups) != 2 || tbl.Groups[1].Canonical != "Мерседес" {
		t.Fatalf("groups = %#v", tbl.Groups)
	}
}

func TestParseRejectsScalars(t *testing.T) {
	for _, in := range []string{"- a\n- b\n", "Дантес: эдмон\n"} {
		if _, err := Parse([]byte(in)); !errors.Is(err, ErrInvalidAliasFile) {
			t.Errorf("Parse(%q) error = %v, want ErrInvalidAliasFile", in, err)
		}
	}
}

func TestResolveEveryAliasAnyCase(t *testing.T) {
	tbl := mustParse(t, sampleYAML)
	r := NewResolver(tbl)
	for _, g := range tbl.Groups {
		if g.Category != CategoryPerson {
			continue
		}
		for _, a := range g.Aliases {
			for _, variant := range []string{a, strings.ToUpper(a), " " + a + "\t"} {
				want := g.Canonical
				if a == "аббат" {
					want = "Аббат_Фариа"
				}
				if got := r.Resolve(variant, "person"); got != want {
					t.Errorf("Resolve(%q) = %q, want %q", variant, got, want)
				}
			}
		}
	}
}

func TestResolve(t *testing.T) {
	r := NewResolver(mustParse(t, sampleYAML))
	tests := []struct {
		name       string
		raw        string
		entityType string
		want       string
	}{
		{name: "russian person label", raw: "Дантес", entityType: "персонаж", want: "Эдмон_Дантес"},
		{name: "canonical itself", raw: "эдмон_дантес", entityType: "person", want: "Эдмон_Дантес"},
		{name: "unknown name", raw: "Кадрусс", entityType: "person", want: "Кадрусс"},
		{name: "place is never resolved", raw: "иф", entityType: "place", want: "иф"},
		{name: "item with person alias", raw: "дантес", entityType: "предмет", want: "дантес"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Resolve(tt.raw, tt.entityType); got != tt.want {
				t.Errorf("Resolve(%q, %q) = %q, want %q", tt.raw, tt.entityType, got, tt.want)
			}
		})
	}
}

func TestResolveAmbiguousFirstGroupWins(t *testing.T) {
	rec := &logger.Recorder{}
	logger.Init(rec)
	defer logger.Init()

	r := NewResolver(mustParse(t, sampleYAML))
	if got := r.Resolve("Аббат", "person"); got != "Аббат_Фариа" {
		t.Errorf("Resolve(аббат) = %q, want %q", got, "Аббат_Фариа")
	}
	if n := rec.Count("warn", "Ambiguous"); n != 1 {
		t.Errorf("ambiguity warnings = %d, want 1", n)
	}
	want := map[string][]string{"аббат": {"Аббат_Фариа", "Аббат_Бузони"}}
	if got := r.Ambiguous(); !reflect.DeepEqual(got, want) {
		t.Errorf("Ambiguous() = %#v, want %#v", got, want)
	}
}

func TestNilResolver(t *testing.T) {
	var r *Resolver
	if got := r.Resolve("Дантес", "person"); got != "Дантес" {
		t.Errorf("nil Resolve() = %q, want identity", got)
	}
	if got := NewResolver(nil).Resolve("Дантес", "person"); got != "Дантес" {
		t.Errorf("empty Resolve() = %q, want identity", got)
	}
}

func TestContextFirstIdentifierKept(t *testing.T) {
	c := NewContext(nil)
	c.Remember("Дантес", "Эдмон_Дантес")
	c.Remember(" дантес ", "Другой")
	if id, ok := c.Identifier("ДАНТЕС"); !ok || id != "Эдмон_Дантес" {
		t.Errorf("Identifier() = %q, %v, want %q, true", id, ok, "Эдмон_Дантес")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestWriteRoundTrip(t *testing.T) {
	tbl := mustParse(t, sampleYAML)
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	if err := Write(path, tbl); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(back, tbl) {
		raw, _ := os.ReadFile(path)
		t.Errorf("round trip mismatch:\n%s", raw)
	}
}
