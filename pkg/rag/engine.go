package rag

import (
	"context"
	"errors"
	"strings"

	"repochat-be/internal/pkg/logger"
	"repochat-be/pkg/apperror"
	"repochat-be/pkg/llm"
	"repochat-be/pkg/rag/prompt"
	"repochat-be/pkg/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Retriever returns the chunks most relevant to a query, already bound to one session's index.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]store.Document, error)
}

type Options struct {
	// MaxHistoryTurns bounds how many trailing turns are rendered into prompts. 0 = all.
	MaxHistoryTurns int
	// RewriteFallback searches with the latest user message when the rewrite step fails.
	RewriteFallback bool
	// PromptLogger receives every prompt and completion. Optional.
	PromptLogger logger.ILogger
}

// Engine runs one conversational retrieval turn: rewrite, retrieve, answer.
// It keeps no state between calls.
type Engine struct {
	llm       llm.LLMProvider
	logger    logger.ILogger
	promptLog logger.ILogger
	opts      Options
	tracer    trace.Tracer
}

func NewEngine(llmProvider llm.LLMProvider, log logger.ILogger, opts Options) *Engine {
	promptLog := opts.PromptLogger
	if promptLog == nil {
		promptLog = logger.NewNopLogger()
	}
	return &Engine{
		llm:       llmProvider,
		logger:    log,
		promptLog: promptLog,
		opts:      opts,
		tracer:    otel.Tracer("repochat-be/rag"),
	}
}

// Answer expects transcript to end with the user's new question.
func (e *Engine) Answer(ctx context.Context, transcript []store.Turn, retriever Retriever) (string, error) {
	history := prompt.FormatTranscript(prompt.Window(transcript, e.opts.MaxHistoryTurns))

	query, err := e.rewrite(ctx, history, transcript)
	if err != nil {
		return "", err
	}

	docs, err := e.retrieve(ctx, retriever, query)
	if err != nil {
		return "", err
	}

	return e.generate(ctx, history, prompt.JoinContext(docs))
}

func (e *Engine) rewrite(ctx context.Context, history string, transcript []store.Turn) (string, error) {
	ctx, span := e.tracer.Start(ctx, "rag.rewrite")
	defer span.End()

	p := prompt.NewRewriteBuilder(history).Build()
	e.promptLog.Debug("RAG", "Rewrite prompt", map[string]interface{}{"prompt": p})

	out, err := e.llm.Generate(ctx, p)
	query := strings.TrimSpace(llm.StripReasoning(out))
	if err == nil && query != "" {
		span.SetAttributes(attribute.String("rag.query", query))
		return query, nil
	}

	if err != nil && (isCanceled(err) || ctx.Err() != nil) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "canceled")
		return "", err
	}

	if err == nil {
		err = apperror.ModelCallFailed("query rewrite returned no text", nil)
	}

	fallback := latestUserMessage(transcript)
	if !e.opts.RewriteFallback || fallback == "" {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", asModelError("query rewrite", err)
	}

	e.logger.Warn("RAG", "Query rewrite failed, searching with the latest user message", map[string]interface{}{
		"error": err.Error(),
	})
	span.SetAttributes(attribute.Bool("rag.rewrite_fallback", true), attribute.String("rag.query", fallback))
	return fallback, nil
}

func (e *Engine) retrieve(ctx context.Context, retriever Retriever, query string) ([]store.Document, error) {
	ctx, span := e.tracer.Start(ctx, "rag.retrieve")
	defer span.End()

	docs, err := retriever.Retrieve(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if isCanceled(err) {
			return nil, err
		}
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperror.Internal("retrieve context", err)
	}

	span.SetAttributes(attribute.Int("rag.chunks", len(docs)))
	e.logger.Debug("RAG", "Retrieved context", map[string]interface{}{
		"query":  query,
		"chunks": len(docs),
	})
	return docs, nil
}

func (e *Engine) generate(ctx context.Context, history, contextText string) (string, error) {
	ctx, span := e.tracer.Start(ctx, "rag.generate")
	defer span.End()

	p := prompt.NewAnswerBuilder(history, contextText).Build()
	e.promptLog.Debug("RAG", "Answer prompt", map[string]interface{}{"prompt": p})

	out, err := e.llm.Generate(ctx, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if isCanceled(err) {
			return "", err
		}
		return "", asModelError("answer generation", err)
	}

	answer := llm.StripReasoning(out)
	e.promptLog.Debug("RAG", "Answer", map[string]interface{}{"answer": answer})
	return answer, nil
}

func latestUserMessage(transcript []store.Turn) string {
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Role == store.RoleUser {
			return strings.TrimSpace(transcript[i].Content)
		}
	}
	return ""
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// asModelError keeps classified errors and tags the rest as model failures.
func asModelError(step string, err error) error {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.ModelCallFailed(step, err)
}
