package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/OFFIS-RIT/bookgraph/pkg/ai"
	"github.com/OFFIS-RIT/bookgraph/pkg/ai/aitest"
	"github.com/OFFIS-RIT/bookgraph/pkg/alias"
	"github.com/OFFIS-RIT/bookgraph/pkg/common"
	"github.com/OFFIS-RIT/bookgraph/pkg/graph"
	"github.com/OFFIS-RIT/bookgraph/pkg/store/memory"
	vmemory "github.com/OFFIS-RIT/bookgraph/pkg/vector/memory"
)

func dantesResolver(t *testing.T) *alias.Resolver {
	t.Helper()
	tbl, err := alias.Parse([]byte(`{"Эдмон_Дантес": ["дантес", "эдмон"]}`))
	if err != nil {
		t.Fatal(err)
	}
	return alias.NewResolver(tbl)
}

// bookStore holds a small graph around Эдмон_Дантес.
func bookStore(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	_, err := s.CreateNodes(ctx, []common.Node{
		{Label: common.EntityTypePerson, Name: "Эдмон_Дантес", Description: "моряк"},
		{Label: common.EntityTypePerson, Name: "Вильфор", Description: "прокурор"},
		{Label: common.EntityTypePerson, Name: "Мерседес", Description: "невеста"},
		{Label: common.EntityTypePlace, Name: "Замок_Иф", Description: "тюрьма"},
		{Label: common.EntityTypePerson, Name: "Данглар", Description: "бухгалтер"},
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.CreateEdges(ctx, []common.Edge{
		{Source: "Вильфор", Target: "Эдмон_Дантес", Type: graph.RelationType("арестовал!"), Description: "арест на свадьбе"},
		{Source: "Эдмон_Дантес", Target: "Мерседес", Type: graph.RelationType("жених"), Description: "помолвка"},
		{Source: "Эдмон_Дантес", Target: "Замок_Иф", Type: graph.RelationType("заключён в"), Description: "четырнадцать лет"},
		{Source: "Данглар", Target: "Эдмон_Дантес", Type: graph.RelationType("донёс на"), Description: "письмо"},
		{Source: "Данглар", Target: "Вильфор", Type: "KNOWS"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// flatEmbedder gives every text the same vector, so ranking keeps
// traversal order.
func flatEmbedder(context.Context, string) ([]float32, error) {
	return []float32{1, 1}, nil
}

func entitiesReply(names ...string) func(context.Context, string, string) (string, error) {
	return func(context.Context, string, string) (string, error) {
		items := make([]string, len(names))
		for i, n := range names {
			items[i] = fmt.Sprintf(`{"entity": %q, "relationship": []}`, n)
		}
		return `{"entities": [` + strings.Join(items, ",") + `]}`, nil
	}
}

func newPipeline(t *testing.T, stub *aitest.Stub, s *memory.Store, opts ...QueryOption) *Pipeline {
	t.Helper()
	return NewPipeline(stub, s, NewEntityResolver(stub, dantesResolver(t)), vmemory.NewBuilder(stub, 2), opts...)
}

func TestRunEntitiesMatched(t *testing.T) {
	stub := &aitest.Stub{
		Format: entitiesReply("Дантес"),
		Embed:  flatEmbedder,
		Chat: func(context.Context, []ai.ChatMessage, []string) (string, error) {
			return "Вильфор.", nil
		},
	}
	trace := NewQueryTrace()
	p := newPipeline(t, stub, bookStore(t), WithTracer(trace))

	res := p.Run(context.Background(), "Кто арестовал Эдмона Дантеса?", nil)

	if res.State != StateEntitiesMatched {
		t.Fatalf("State = %q, want %q", res.State, StateEntitiesMatched)
	}
	if !reflect.DeepEqual(res.EntitiesFound, []string{"Эдмон_Дантес"}) {
		t.Errorf("EntitiesFound = %#v", res.EntitiesFound)
	}
	if res.Answer != "Вильфор." {
		t.Errorf("Answer = %q", res.Answer)
	}

	wantUsed := []string{
		"Вильфор арестовал! Эдмон_Дантес. арест на свадьбе",
		"Эдмон_Дантес жених Мерседес. помолвка",
		"Эдмон_Дантес заключён_в Замок_Иф. четырнадцать лет",
	}
	if !reflect.DeepEqual(res.ContextUsed, wantUsed) {
		t.Errorf("ContextUsed = %#v, want %#v", res.ContextUsed, wantUsed)
	}
	wantMeta := map[string]string{"source": "Вильфор", "target": "Эдмон_Дантес", "relation": "арестовал!"}
	if len(res.GraphMetadata) != 3 || !reflect.DeepEqual(res.GraphMetadata[0], wantMeta) {
		t.Errorf("GraphMetadata = %#v", res.GraphMetadata)
	}

	chats := stub.CallsTo("GenerateChat")
	if len(chats) != 1 {
		t.Fatalf("got %d chat calls, want 1", len(chats))
	}
	system := strings.Join(chats[0].System, "\n")
	if !strings.Contains(system, "Действующее лицо: Вильфор\n Содержание: Вильфор арестовал! Эдмон_Дантес. арест на свадьбе") {
		t.Errorf("answer context misses the first document:\n%s", system)
	}
	if strings.Contains(system, "Данглар") {
		t.Errorf("document beyond top-K leaked into context:\n%s", system)
	}

	snap := trace.Snapshot()
	if snap.State != StateEntitiesMatched || snap.Retrieved != 4 || len(snap.Selected) != 3 || len(snap.Degraded) != 0 {
		t.Errorf("trace = %#v", snap)
	}
}

func TestRunRetrievalSearchesSourceAndTarget(t *testing.T) {
	stub := &aitest.Stub{
		Format: entitiesReply("дантес"),
		Embed:  flatEmbedder,
		Chat:   func(context.Context, []ai.ChatMessage, []string) (string, error) { return "ok", nil },
	}
	trace := NewQueryTrace()
	p := newPipeline(t, stub, bookStore(t), WithTracer(trace), WithTopK(10))
	res := p.Run(context.Background(), "Что случилось с Дантесом?", nil)

	// Дантес is the target of two relations and the source of two.
	if len(res.ContextUsed) != 4 {
		t.Fatalf("ContextUsed = %#v, want 4 documents", res.ContextUsed)
	}
	for _, c := range res.ContextUsed {
		if !strings.Contains(c, "Эдмон_Дантес") {
			t.Errorf("unrelated document %q", c)
		}
	}
}

func TestRunNoGraphData(t *testing.T) {
	stub := &aitest.Stub{
		Chat: func(_ context.Context, msgs []ai.ChatMessage, _ []string) (string, error) {
			return "Граф книги ещё не построен.", nil
		},
	}
	p := newPipeline(t, stub, memory.New())

	history := make([]ai.ChatMessage, 0, 14)
	for i := range 14 {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		history = append(history, ai.ChatMessage{Role: role, Message: fmt.Sprintf("turn %d", i)})
	}

	res := p.Run(context.Background(), "Кто такой Фариа?", history)
	if res.State != StateNoGraphData {
		t.Fatalf("State = %q, want %q", res.State, StateNoGraphData)
	}
	if res.Answer == "" {
		t.Error("Answer is empty")
	}
	if res.GraphMetadata == nil || len(res.GraphMetadata) != 0 || len(res.EntitiesFound) != 0 || len(res.ContextUsed) != 0 {
		t.Errorf("result = %#v, want empty grounding", res)
	}
	if n := len(stub.CallsTo("GenerateCompletionWithFormat")); n != 0 {
		t.Errorf("entity extraction called %d times without a graph", n)
	}

	chats := stub.CallsTo("GenerateChat")
	if len(chats) != 1 {
		t.Fatalf("got %d chat calls, want 1", len(chats))
	}
	msgs := chats[0].Messages
	if len(msgs) != 11 {
		t.Fatalf("sent %d messages, want 10 history turns plus the question", len(msgs))
	}
	if msgs[0].Message != "turn 4" || msgs[10].Message != "Кто такой Фариа?" {
		t.Errorf("messages = %#v", msgs)
	}
	if chats[0].System[0] != ai.ConversationPrompt {
		t.Errorf("system prompt is not the conversation prompt")
	}

	raw, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"graph_metadata":[]`) || strings.Contains(string(raw), "State") {
		t.Errorf("json = %s", raw)
	}
}

type unreachableStore struct {
	*memory.Store
}

func (unreachableStore) CountNodes(context.Context, []common.EntityType) (int, error) {
	return 0, errors.New("connection refused")
}

func TestRunGraphUnavailable(t *testing.T) {
	stub := &aitest.Stub{
		Chat: func(context.Context, []ai.ChatMessage, []string) (string, error) { return "ok", nil },
	}
	trace := NewQueryTrace()
	s := unreachableStore{bookStore(t)}
	p := NewPipeline(stub, s, NewEntityResolver(stub, nil), nil, WithTracer(trace))

	res := p.Run(context.Background(), "q", nil)
	if res.State != StateNoGraphData || res.Answer != "ok" {
		t.Errorf("result = %#v", res)
	}
	if got := trace.Snapshot().Degraded; !reflect.DeepEqual(got, []string{"count_nodes"}) {
		t.Errorf("degraded = %#v", got)
	}
}

func TestRunNoEntitiesMatched(t *testing.T) {
	tests := []struct {
		name         string
		format       func(context.Context, string, string) (string, error)
		wantEntities []string
	}{
		{"unknown entity", entitiesReply("Монте-Кристо"), []string{"Монте_Кристо"}},
		{"no entity", entitiesReply(), []string{}},
		{"extraction fails", func(context.Context, string, string) (string, error) {
			return "", errors.New("model overloaded")
		}, []string{}},
		{"unparseable output", func(context.Context, string, string) (string, error) {
			return "I cannot answer that", nil
		}, []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := &aitest.Stub{
				Format: tc.format,
				Chat:   func(context.Context, []ai.ChatMessage, []string) (string, error) { return "Ничего не найдено.", nil },
			}
			p := newPipeline(t, stub, bookStore(t))
			history := []ai.ChatMessage{{Role: "user", Message: "Привет"}, {Role: "assistant", Message: "Здравствуйте"}}

			res := p.Run(context.Background(), "Кто такой Монте-Кристо?", history)
			if res.State != StateNoEntitiesMatched {
				t.Fatalf("State = %q, want %q", res.State, StateNoEntitiesMatched)
			}
			if !reflect.DeepEqual(res.EntitiesFound, tc.wantEntities) {
				t.Errorf("EntitiesFound = %#v, want %#v", res.EntitiesFound, tc.wantEntities)
			}
			if len(res.GraphMetadata) != 0 || len(res.ContextUsed) != 0 {
				t.Errorf("result = %#v", res)
			}
			system := stub.CallsTo("GenerateChat")[0].System[0]
			if !strings.Contains(system, ai.NotFoundContext) {
				t.Errorf("system prompt lacks not-found marker:\n%s", system)
			}
			if !strings.Contains(system, "Пользователь: Привет\nАссистент: Здравствуйте") {
				t.Errorf("system prompt lacks history:\n%s", system)
			}
		})
	}
}

func TestRunIndexFailureUsesTraversalOrder(t *testing.T) {
	stub := &aitest.Stub{
		Format: entitiesReply("Вильфор"),
		Embed: func(context.Context, string) ([]float32, error) {
			return nil, errors.New("embedding service down")
		},
		Chat: func(context.Context, []ai.ChatMessage, []string) (string, error) { return "ok", nil },
	}
	trace := NewQueryTrace()
	p := newPipeline(t, stub, bookStore(t), WithTracer(trace), WithTopK(1))

	res := p.Run(context.Background(), "Кого арестовал Вильфор?", nil)
	if res.State != StateEntitiesMatched {
		t.Fatalf("State = %q", res.State)
	}
	if !reflect.DeepEqual(res.ContextUsed, []string{"Вильфор арестовал! Эдмон_Дантес. арест на свадьбе"}) {
		t.Errorf("ContextUsed = %#v", res.ContextUsed)
	}
	if got := trace.Snapshot().Degraded; !reflect.DeepEqual(got, []string{"similarity_index"}) {
		t.Errorf("degraded = %#v", got)
	}
}

func TestRunAnswerFailureReturnsFallback(t *testing.T) {
	tests := []struct {
		name string
		chat func(context.Context, []ai.ChatMessage, []string) (string, error)
	}{
		{"error", func(context.Context, []ai.ChatMessage, []string) (string, error) {
			return "", errors.New("500")
		}},
		{"blank", func(context.Context, []ai.ChatMessage, []string) (string, error) {
			return "  \n", nil
		}},
		{"hangs", func(ctx context.Context, _ []ai.ChatMessage, _ []string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := &aitest.Stub{Format: entitiesReply("дантес"), Embed: flatEmbedder, Chat: tc.chat}
			p := newPipeline(t, stub, bookStore(t), WithTimeout(50*time.Millisecond))

			done := make(chan Result, 1)
			go func() { done <- p.Run(context.Background(), "Кто такой Дантес?", nil) }()
			select {
			case res := <-done:
				if res.Answer != ai.FallbackAnswer {
					t.Errorf("Answer = %q, want fallback", res.Answer)
				}
				if len(res.ContextUsed) == 0 {
					t.Errorf("grounding lost on answer failure: %#v", res)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("Run did not honour the collaborator deadline")
			}
		})
	}
}

func TestRunRecoversFromPanic(t *testing.T) {
	stub := &aitest.Stub{
		Format: func(context.Context, string, string) (string, error) { panic("bad collaborator") },
	}
	p := newPipeline(t, stub, bookStore(t))
	res := p.Run(context.Background(), "q", nil)
	if res.Answer != ai.FallbackAnswer || res.GraphMetadata == nil {
		t.Errorf("result = %#v", res)
	}
}

func TestParseEntities(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"array of strings", `["Дантес", " ", "Фариа"]`, []string{"Дантес", "Фариа"}},
		{"array of objects", `[{"entity": "Дантес", "relationship": ["арестовал"]}, {"name": "Фариа"}]`, []string{"Дантес", "Фариа"}},
		{"wrapped strings", `{"entities": ["Мерседес"]}`, []string{"Мерседес"}},
		{"wrapped objects", `{"entities": [{"entity": "Мерседес"}], "relations": ["любит"]}`, []string{"Мерседес"}},
		{"single object", `{"entity": "Вильфор", "relationship": []}`, []string{"Вильфор"}},
		{"mixed", `["Дантес", {"entity": "Фариа"}]`, []string{"Дантес", "Фариа"}},
		{"null", `null`, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseEntities([]byte(tc.input))
			if err != nil {
				t.Fatalf("ParseEntities() error = %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("ParseEntities() = %#v, want %#v", got, tc.want)
			}
		})
	}

	if _, err := ParseEntities([]byte(`42`)); err == nil {
		t.Error("ParseEntities(42) expected error")
	}
}

func TestResolveQueryMatchesBuildIdentifiers(t *testing.T) {
	stub := &aitest.Stub{
		Format: func(context.Context, string, string) (string, error) {
			return `["Дантес", "ЭДМОН", "Замок Иф", "Дантес"]`, nil
		},
	}
	r := NewEntityResolver(stub, dantesResolver(t))
	got, err := r.ResolveQuery(context.Background(), "Где сидел Дантес?")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Эдмон_Дантес", "Замок_Иф"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ResolveQuery() = %#v, want %#v", got, want)
	}

	// build-time identifiers for the same raw names
	rc := alias.NewContext(dantesResolver(t))
	nodes, _ := graph.MergeEntities(graph.Canonicalize(rc, []common.Entity{
		{Name: "Дантес", Type: "персонаж"},
		{Name: "Замок Иф", Type: "место"},
	}))
	if nodes[0].Name != got[0] || nodes[1].Name != got[1] {
		t.Errorf("build identifiers %q, %q differ from query identifiers %#v", nodes[0].Name, nodes[1].Name, got)
	}
}
