package graph

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"

	"github.com/OFFIS-RIT/bookgraph/pkg/alias"
	"github.com/OFFIS-RIT/bookgraph/pkg/common"
	"github.com/OFFIS-RIT/bookgraph/pkg/logger"
	"github.com/OFFIS-RIT/bookgraph/pkg/store/memory"
)

func dantesContext(t *testing.T) *alias.Context {
	t.Helper()
	tbl, err := alias.Parse([]byte(`{"Эдмон_Дантес": ["дантес", "эдмон"]}`))
	if err != nil {
		t.Fatalf("alias.Parse() error = %v", err)
	}
	return alias.NewContext(alias.NewResolver(tbl))
}

func TestMergeCollapsesAliases(t *testing.T) {
	rc := dantesContext(t)
	entities := []common.Entity{
		{Name: "Дантес", Type: "персонаж", Description: "молодой моряк"},
		{Name: "эдмон", Type: "персонаж", Description: "жених Мерседес"},
	}

	nodes, stats := MergeEntities(Canonicalize(rc, entities))
	want := []common.Node{
		{Label: common.EntityTypePerson, Name: "Эдмон_Дантес", Description: "молодой моряк"},
	}
	if !reflect.DeepEqual(nodes, want) {
		t.Errorf("MergeEntities() = %#v, want %#v", nodes, want)
	}
	if stats.Duplicates != 1 || stats.Nodes != 1 {
		t.Errorf("stats = %#v", stats)
	}
}

func TestMergeFirstSeenWins(t *testing.T) {
	const n = 5
	entities := make([]common.Entity, 0, n)
	for i := range n {
		entities = append(entities, common.Entity{
			Name:        "Мерседес",
			Type:        "person",
			Description: string(rune('a' + i)),
			Singular:    i == 0,
		})
	}
	nodes, _ := MergeEntities(entities)
	if len(nodes) != 1 {
		t.Fatalf("MergeEntities() returned %d nodes, want 1", len(nodes))
	}
	if nodes[0].Description != "a" || !nodes[0].Singular {
		t.Errorf("kept %#v, want the first record", nodes[0])
	}
}

func TestMergeTypeConflictIsWarning(t *testing.T) {
	rec := &logger.Recorder{}
	logger.Init(rec)
	defer logger.Init()

	nodes, stats := MergeEntities([]common.Entity{
		{Name: "Фараон", Type: "предмет", Description: "корабль"},
		{Name: "фараон", Type: "организация"},
		{Name: "Фараон", Type: "организация"},
	})
	if len(nodes) != 2 {
		t.Fatalf("got %d nodes, want 2 (names differ in case)", len(nodes))
	}
	if nodes[0].Label != common.EntityTypeItem {
		t.Errorf("label = %q, want %q", nodes[0].Label, common.EntityTypeItem)
	}
	if stats.TypeConflicts != 1 {
		t.Errorf("TypeConflicts = %d, want 1", stats.TypeConflicts)
	}
	if rec.Count("warn", "type conflict") != 1 {
		t.Errorf("expected one type conflict warning, got %#v", rec.Entries())
	}
}

func TestMergeDropsUnnamedAndMapsUnknownTypes(t *testing.T) {
	nodes, stats := MergeEntities([]common.Entity{
		{Name: "---", Type: "person"},
		{Name: "Марсель", Type: "city"},
	})
	if stats.Unnamed != 1 || stats.UnknownTypes != 1 {
		t.Errorf("stats = %#v", stats)
	}
	if len(nodes) != 1 || nodes[0].Label != common.EntityTypeItem {
		t.Errorf("nodes = %#v", nodes)
	}
}

func TestNormalizeRelationships(t *testing.T) {
	rc := dantesContext(t)
	entities := Canonicalize(rc, []common.Entity{
		{Name: "Дантес", Type: "персонаж"},
		{Name: "Вильфор", Type: "персонаж"},
		{Name: "Замок Иф", Type: "место"},
	})
	nodes, _ := MergeEntities(entities)

	rels := []common.Relationship{
		{Source: "Вильфор", Target: "дантес", Type: "арестовал!", Description: "арест", Chapter: "1-08"},
		{Source: "Дантес", Target: "Замок Иф", Type: "заключён в"},
		{Source: "Дантес", Target: "Фариа", Type: "друг"},
		{Source: "Кадрусс", Target: "Данглар", Type: "пьёт с"},
		{Source: "!!!", Target: "Вильфор", Type: "x"},
	}
	kept, dropped := NormalizeRelationships(rc, rels, nodes)

	if dropped != 3 {
		t.Errorf("dropped = %d, want 3", dropped)
	}
	if len(kept)+dropped != len(rels) {
		t.Errorf("len(kept)+dropped = %d, want %d", len(kept)+dropped, len(rels))
	}
	want := []common.Edge{
		{Source: "Вильфор", Target: "Эдмон_Дантес", Type: "`арестовал!`", Description: "арест", Chapter: "1-08"},
		{Source: "Эдмон_Дантес", Target: "Замок_Иф", Type: "`заключён_в`"},
	}
	if !reflect.DeepEqual(kept, want) {
		t.Errorf("NormalizeRelationships() = %#v, want %#v", kept, want)
	}
}

func TestNormalizeUnseenEndpointFallsBackToSanitizedName(t *testing.T) {
	rc := alias.NewContext(nil)
	nodes := []common.Node{{Name: "Морель"}, {Name: "Жюли_Морель"}}
	kept, dropped := NormalizeRelationships(rc, []common.Relationship{
		{Source: "Морель", Target: "Жюли Морель", Type: "отец"},
	}, nodes)
	if dropped != 0 || len(kept) != 1 || kept[0].Target != "Жюли_Морель" {
		t.Errorf("kept = %#v, dropped = %d", kept, dropped)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	// stale content that must not survive the rebuild
	if _, err := s.CreateNodes(ctx, []common.Node{{Label: common.EntityTypePerson, Name: "Старый"}}); err != nil {
		t.Fatal(err)
	}

	nodes := []common.Node{
		{Label: common.EntityTypePerson, Name: "A", Description: "a"},
		{Label: common.EntityTypePerson, Name: "B", Description: "b"},
		{Label: common.EntityTypePlace, Name: "C", Description: "c"},
	}
	edges := []common.Edge{
		{Source: "A", Target: "B", Type: "KNOWS", Description: "ab"},
		{Source: "C", Target: "A", Type: "`живёт`", Description: "ca"},
		{Source: "B", Target: "C", Type: "VISITS", Description: "bc"},
		{Source: "A", Target: "Z", Type: "KNOWS"},
	}
	res, err := Load(ctx, s, nodes, edges)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := LoadResult{NodesCreated: 3, EdgesCreated: 3, EdgesSkipped: 1}
	if res != want {
		t.Errorf("Load() = %#v, want %#v", res, want)
	}

	if n, _ := s.CountNodes(ctx, common.EntityTypes); n != 3 {
		t.Errorf("CountNodes() = %d, want 3", n)
	}

	hits, err := s.Neighbors(ctx, []string{"A"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, h := range hits {
		got = append(got, h.Source+"-"+h.RelationType+"-"+h.Target)
	}
	sort.Strings(got)
	wantHits := []string{"A-KNOWS-B", "C-живёт-A"}
	if !reflect.DeepEqual(got, wantHits) {
		t.Errorf("Neighbors(A) = %#v, want %#v", got, wantHits)
	}
}

type failingStore struct {
	*memory.Store
	failAt LoadStep
}

var errBoom = errors.New("boom")

func (f *failingStore) Wipe(ctx context.Context) error {
	if f.failAt == LoadStepWipe {
		return errBoom
	}
	return f.Store.Wipe(ctx)
}

func (f *failingStore) CreateNodes(ctx context.Context, n []common.Node) (int, error) {
	if f.failAt == LoadStepNodes {
		return 0, errBoom
	}
	return f.Store.CreateNodes(ctx, n)
}

func (f *failingStore) CreateEdges(ctx context.Context, e []common.Edge) (int, error) {
	if f.failAt == LoadStepEdges {
		return 0, errBoom
	}
	return f.Store.CreateEdges(ctx, e)
}

func TestLoadInterrupted(t *testing.T) {
	for _, step := range []LoadStep{LoadStepWipe, LoadStepNodes, LoadStepEdges} {
		t.Run(string(step), func(t *testing.T) {
			s := &failingStore{Store: memory.New(), failAt: step}
			_, err := Load(context.Background(), s, []common.Node{{Label: common.EntityTypePerson, Name: "A"}}, nil)
			if !errors.Is(err, ErrLoadInterrupted) || !errors.Is(err, errBoom) {
				t.Fatalf("Load() error = %v, want ErrLoadInterrupted wrapping cause", err)
			}
			var le *LoadError
			if !errors.As(err, &le) || le.Step != step {
				t.Errorf("LoadError step = %v, want %v", le, step)
			}
		})
	}
}
