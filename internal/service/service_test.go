package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"repochat-be/internal/config"
	"repochat-be/internal/pkg/logger"
	"repochat-be/internal/repository/memory"
	"repochat-be/pkg/embedding"
	"repochat-be/pkg/events"
	"repochat-be/pkg/llm"
	"repochat-be/pkg/rag"
	"repochat-be/pkg/vectorstore"

	"github.com/google/go-github/v66/github"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	mu      sync.Mutex
	answers int
	fail    error
}

func (f *fakeLLM) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	return f.Generate(ctx, history[len(history)-1].Content, opts...)
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	if f.fail != nil {
		return "", f.fail
	}
	if strings.HasSuffix(prompt, "Search Query:") {
		return "widgets source", nil
	}
	f.mu.Lock()
	f.answers++
	f.mu.Unlock()
	return "The widgets are built in main.go.", nil
}

// wordEmbedder maps text onto a tiny bag-of-words space.
type wordEmbedder struct {
	fail error
}

func (e *wordEmbedder) Generate(ctx context.Context, text string, taskType string) (*embedding.EmbeddingResponse, error) {
	if e.fail != nil {
		return nil, e.fail
	}
	lower := strings.ToLower(text)
	vec := []float32{0.01, 0.01, 0.01}
	for i, word := range []string{"widget", "main", "readme"} {
		vec[i] += float32(strings.Count(lower, word))
	}
	return &embedding.EmbeddingResponse{Embedding: embedding.EmbeddingResponseEmbedding{Values: vec}}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	fail   error
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	if p.fail != nil {
		return p.fail
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

type fixture struct {
	repo      *memory.SessionRepository
	factory   *vectorstore.MemoryFactory
	model     *fakeLLM
	embedder  *wordEmbedder
	publisher *recordingPublisher
	ingest    IIngestService
	chat      IChatbotService
}

func newFixture(t *testing.T, githubClient *github.Client) *fixture {
	t.Helper()

	f := &fixture{
		repo:      memory.NewSessionRepository(time.Hour, 10*time.Minute),
		factory:   vectorstore.NewMemoryFactory(),
		model:     &fakeLLM{},
		embedder:  &wordEmbedder{},
		publisher: &recordingPublisher{},
	}

	log := logger.NewNopLogger()
	ingestCfg := config.IngestConfig{
		RepoChunkSize:    200,
		RepoChunkOverlap: 20,
		DocChunkSize:     500,
		DocChunkOverlap:  50,
		DefaultBranch:    "main",
		MaxFileBytes:     64 * 1024,
		EmbedConcurrency: 4,
		FetchConcurrency: 4,
	}
	ragCfg := config.RagConfig{RetrievalK: 15, MaxHistoryTurns: 40, RewriteFallback: true, ChatTimeout: 5 * time.Second}

	engine := rag.NewEngine(f.model, log, rag.Options{MaxHistoryTurns: ragCfg.MaxHistoryTurns, RewriteFallback: true})
	f.ingest = NewIngestService(f.repo, f.factory, f.embedder, githubClient, f.publisher, ingestCfg, log)
	f.chat = NewChatbotService(f.repo, engine, f.embedder, f.factory, f.publisher, ragCfg, log)
	return f
}

// fakeGitHub serves acme/widgets with two text files and one image.
func fakeGitHub(t *testing.T) *github.Client {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"widgets","default_branch":"main"}`))
	})
	mux.HandleFunc("/repos/acme/widgets/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sha":"t","tree":[
			{"path":"main.go","type":"blob","sha":"m1","size":64},
			{"path":"README.md","type":"blob","sha":"r1","size":64},
			{"path":"logo.png","type":"blob","sha":"p1","size":64}
		]}`))
	})
	mux.HandleFunc("/repos/acme/widgets/git/blobs/m1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("package main\n\n// main builds widgets\nfunc main() {}\n"))
	})
	mux.HandleFunc("/repos/acme/widgets/git/blobs/r1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# Widgets\n\nThe readme of the widget factory.\n"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base
	return client
}

var errBoom = errors.New("boom")
