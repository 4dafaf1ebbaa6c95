// Package aitest provides a scripted ai.GraphAIClient for tests.
package aitest

import (
	"context"
	"errors"
	"sync"

	"github.com/OFFIS-RIT/bookgraph/pkg/ai"
)

// ErrNotScripted is returned by Stub methods that have no handler.
var ErrNotScripted = errors.New("aitest: call not scripted")

// Call records one request made to a Stub.
type Call struct {
	Method   string
	Name     string
	Prompt   string
	System   []string
	Messages []ai.ChatMessage
}

// Stub answers each request with the matching handler. Structured
// completions return raw JSON that goes through ai.UnmarshalFlexible,
// exactly like a real adapter. Handlers run under the caller's context,
// so a handler that blocks on ctx.Done() simulates a hung collaborator.
type Stub struct {
	Completion func(ctx context.Context, prompt string) (string, error)
	Format     func(ctx context.Context, name, prompt string) (string, error)
	Chat       func(ctx context.Context, messages []ai.ChatMessage, system []string) (string, error)
	Embed      func(ctx context.Context, text string) ([]float32, error)

	mu    sync.Mutex
	calls []Call
}

var _ ai.GraphAIClient = (*Stub)(nil)

func (s *Stub) record(c Call) {
	s.mu.Lock()
	s.calls = append(s.calls, c)
	s.mu.Unlock()
}

// Calls returns a copy of every recorded request.
func (s *Stub) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsTo returns the recorded requests of one method.
func (s *Stub) CallsTo(method string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func options(opts []ai.GenerateOption) ai.GenerateOptions {
	var o ai.GenerateOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func (s *Stub) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	s.record(Call{Method: "GenerateCompletion", Prompt: prompt, System: options(opts).SystemPrompts})
	if s.Completion == nil {
		return "", ErrNotScripted
	}
	return s.Completion(ctx, prompt)
}

func (s *Stub) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	s.record(Call{Method: "GenerateCompletionWithFormat", Name: name, Prompt: prompt, System: options(opts).SystemPrompts})
	if s.Format == nil {
		return ErrNotScripted
	}
	raw, err := s.Format(ctx, name, prompt)
	if err != nil {
		return err
	}
	return ai.UnmarshalFlexible(raw, out)
}

func (s *Stub) GenerateChat(ctx context.Context, messages []ai.ChatMessage, opts ...ai.GenerateOption) (string, error) {
	system := options(opts).SystemPrompts
	s.record(Call{
		Method:   "GenerateChat",
		System:   system,
		Messages: append([]ai.ChatMessage(nil), messages...),
	})
	if s.Chat == nil {
		return "", ErrNotScripted
	}
	return s.Chat(ctx, messages, system)
}

func (s *Stub) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	s.record(Call{Method: "GenerateEmbedding", Prompt: string(input)})
	if s.Embed == nil {
		return nil, ErrNotScripted
	}
	return s.Embed(ctx, string(input))
}

func (s *Stub) ResetMetrics() {}

func (s *Stub) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }
