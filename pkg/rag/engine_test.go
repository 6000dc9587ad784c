package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"repochat-be/internal/pkg/logger"
	"repochat-be/pkg/apperror"
	"repochat-be/pkg/llm"
	"repochat-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLLM answers rewrite prompts with rewriteOut and everything else with answerOut.
type fakeLLM struct {
	mu         sync.Mutex
	prompts    []string
	rewriteOut string
	rewriteErr error
	answerOut  string
	answerErr  error
}

func (f *fakeLLM) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	return f.Generate(ctx, history[len(history)-1].Content, opts...)
}

func (f *fakeLLM) Generate(ctx context.Context, p string, opts ...llm.Option) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, p)
	f.mu.Unlock()

	if strings.HasSuffix(p, "Search Query:") {
		return f.rewriteOut, f.rewriteErr
	}
	return f.answerOut, f.answerErr
}

type fakeRetriever struct {
	docs    []store.Document
	err     error
	queries []string
}

func (r *fakeRetriever) Retrieve(ctx context.Context, query string) ([]store.Document, error) {
	r.queries = append(r.queries, query)
	return r.docs, r.err
}

func newTestEngine(model llm.LLMProvider, fallback bool) *Engine {
	return NewEngine(model, logger.NewNopLogger(), Options{MaxHistoryTurns: 40, RewriteFallback: fallback})
}

func TestEngine_Answer_ThreeSteps(t *testing.T) {
	model := &fakeLLM{rewriteOut: "  widgets entrypoint main function \n", answerOut: "<think>look</think>The entrypoint is cmd/main.go."}
	retriever := &fakeRetriever{docs: []store.Document{{Content: "package main"}, {Content: "func main() {}"}}}

	transcript := []store.Turn{
		store.UserTurn("What does this repo do?"),
		store.AssistantTurn("It builds widgets."),
		store.UserTurn("Where is the entrypoint?"),
	}

	answer, err := newTestEngine(model, true).Answer(context.Background(), transcript, retriever)

	require.NoError(t, err)
	assert.Equal(t, "The entrypoint is cmd/main.go.", answer)
	assert.Equal(t, []string{"widgets entrypoint main function"}, retriever.queries)

	require.Len(t, model.prompts, 2)
	history := "USER: What does this repo do?\nASSISTANT: It builds widgets.\nUSER: Where is the entrypoint?"
	assert.Contains(t, model.prompts[0], history)
	assert.Contains(t, model.prompts[1], history)
	assert.Contains(t, model.prompts[1], "Relevant repository context:\npackage main\n\nfunc main() {}\n")
}

func TestEngine_Answer_EmptyIndexStillAnswers(t *testing.T) {
	model := &fakeLLM{rewriteOut: "query", answerOut: "I could not find that in the repository."}

	answer, err := newTestEngine(model, true).Answer(context.Background(), []store.Turn{store.UserTurn("hi")}, &fakeRetriever{})

	require.NoError(t, err)
	assert.NotEmpty(t, answer)
	assert.Contains(t, model.prompts[1], "Relevant repository context:\n\n\n")
}

func TestEngine_RewriteFallback(t *testing.T) {
	transcript := []store.Turn{store.UserTurn("How are widgets painted?")}

	tests := []struct {
		name       string
		rewriteOut string
		rewriteErr error
		fallback   bool
		wantQuery  string
		wantErr    error
	}{
		{name: "model error falls back", rewriteErr: errors.New("503"), fallback: true, wantQuery: "How are widgets painted?"},
		{name: "empty output falls back", rewriteOut: "   ", fallback: true, wantQuery: "How are widgets painted?"},
		{name: "reasoning only output falls back", rewriteOut: "<think>hmm</think>", fallback: true, wantQuery: "How are widgets painted?"},
		{name: "fallback disabled propagates", rewriteErr: errors.New("503"), fallback: false, wantErr: apperror.ErrModelCallFailed},
		{name: "cancellation is never masked", rewriteErr: context.Canceled, fallback: true, wantErr: context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &fakeLLM{rewriteOut: tt.rewriteOut, rewriteErr: tt.rewriteErr, answerOut: "answer"}
			retriever := &fakeRetriever{}

			_, err := newTestEngine(model, tt.fallback).Answer(context.Background(), transcript, retriever)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, retriever.queries)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{tt.wantQuery}, retriever.queries)
		})
	}
}

func TestEngine_Failures(t *testing.T) {
	transcript := []store.Turn{store.UserTurn("q")}

	t.Run("retrieval failure is internal", func(t *testing.T) {
		model := &fakeLLM{rewriteOut: "q", answerOut: "a"}
		_, err := newTestEngine(model, true).Answer(context.Background(), transcript, &fakeRetriever{err: errors.New("embedder down")})
		assert.ErrorIs(t, err, apperror.ErrInternal)
		assert.Len(t, model.prompts, 1, "generation is skipped")
	})

	t.Run("generation failure is a model failure", func(t *testing.T) {
		model := &fakeLLM{rewriteOut: "q", answerErr: errors.New("boom")}
		_, err := newTestEngine(model, true).Answer(context.Background(), transcript, &fakeRetriever{})
		assert.ErrorIs(t, err, apperror.ErrModelCallFailed)
	})
}

func TestEngine_HistoryWindow(t *testing.T) {
	var transcript []store.Turn
	for i := 0; i < 10; i++ {
		transcript = append(transcript, store.UserTurn("old question"), store.AssistantTurn("old answer"))
	}
	transcript = append(transcript, store.UserTurn("newest question"))

	model := &fakeLLM{rewriteOut: "q", answerOut: "a"}
	e := NewEngine(model, logger.NewNopLogger(), Options{MaxHistoryTurns: 3, RewriteFallback: true})

	_, err := e.Answer(context.Background(), transcript, &fakeRetriever{})
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(model.prompts[0], "old question"))
	assert.Contains(t, model.prompts[0], "newest question")
	assert.Len(t, transcript, 21, "caller transcript is untouched")
}
