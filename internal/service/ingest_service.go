package service

import (
	"context"
	"errors"

	"repochat-be/internal/config"
	"repochat-be/internal/constant"
	"repochat-be/internal/dto"
	"repochat-be/internal/pkg/logger"
	"repochat-be/internal/repository/memory"
	"repochat-be/pkg/apperror"
	"repochat-be/pkg/embedding"
	"repochat-be/pkg/events"
	"repochat-be/pkg/ingest"
	"repochat-be/pkg/vectorstore"

	"github.com/google/go-github/v66/github"
)

type IIngestService interface {
	IngestRepository(ctx context.Context, req *dto.IngestRepositoryRequest) (*dto.IngestResponse, error)
	IngestFile(ctx context.Context, req *dto.IngestFileRequest) (*dto.IngestResponse, error)
}

type ingestService struct {
	sessionRepo  *memory.SessionRepository
	indexFactory vectorstore.Factory
	embedder     embedding.EmbeddingProvider
	github       *github.Client
	publisher    IPublisherService
	cfg          config.IngestConfig
	logger       logger.ILogger
}

func NewIngestService(
	sessionRepo *memory.SessionRepository,
	indexFactory vectorstore.Factory,
	embedder embedding.EmbeddingProvider,
	githubClient *github.Client,
	publisher IPublisherService,
	cfg config.IngestConfig,
	log logger.ILogger,
) IIngestService {
	return &ingestService{
		sessionRepo:  sessionRepo,
		indexFactory: indexFactory,
		embedder:     embedder,
		github:       githubClient,
		publisher:    publisher,
		cfg:          cfg,
		logger:       log,
	}
}

func (s *ingestService) IngestRepository(ctx context.Context, req *dto.IngestRepositoryRequest) (*dto.IngestResponse, error) {
	loader, err := ingest.NewGitHubLoader(s.github, req.Repo, req.Branch, ingest.GitHubOptions{
		DefaultBranch:    s.cfg.DefaultBranch,
		MaxFileBytes:     s.cfg.MaxFileBytes,
		FetchConcurrency: s.cfg.FetchConcurrency,
	})
	if err != nil {
		return nil, err
	}

	splitter := ingest.NewSplitter(s.cfg.RepoChunkSize, s.cfg.RepoChunkOverlap)
	return s.build(ctx, loader, splitter, loader.Repository(), constant.IngestRepositorySuccessMessage)
}

func (s *ingestService) IngestFile(ctx context.Context, req *dto.IngestFileRequest) (*dto.IngestResponse, error) {
	loader := ingest.NewFileLoader(req.FileName, req.Data, s.cfg.MaxFileBytes)
	splitter := ingest.NewSplitter(s.cfg.DocChunkSize, s.cfg.DocChunkOverlap)
	return s.build(ctx, loader, splitter, req.FileName, constant.IngestFileSuccessMessage)
}

// build runs load → split → embed → index and registers the session last, so a
// failed ingestion never leaves a session behind.
func (s *ingestService) build(ctx context.Context, loader ingest.Loader, splitter *ingest.Splitter, source, message string) (*dto.IngestResponse, error) {
	chunks, err := ingest.Run(ctx, loader, splitter)
	if err != nil {
		s.logger.Warn("IngestService", "Ingestion failed", map[string]interface{}{
			"source": source,
			"error":  err.Error(),
		})
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := embedding.GenerateBatch(ctx, s.embedder, texts, embedding.TaskRetrievalDocument, s.cfg.EmbedConcurrency)
	if err != nil {
		return nil, s.internal("embed chunks", source, err)
	}

	index, err := s.indexFactory.NewIndex(ctx)
	if err != nil {
		return nil, s.internal("create index", source, err)
	}

	if err := index.Add(ctx, chunks, vectors); err != nil {
		s.release(index)
		return nil, s.internal("populate index", source, err)
	}

	session, err := s.sessionRepo.Create(index, source)
	if err != nil {
		s.release(index)
		return nil, err
	}

	s.logger.Info("IngestService", "Session created", map[string]interface{}{
		"session_id": session.ID,
		"source":     source,
		"chunks":     len(chunks),
	})

	evt := events.NewSessionEvent(events.SessionCreated, session.ID, map[string]interface{}{
		events.KeyCollectionID: index.ID(),
		events.KeySource:       source,
		events.KeyChunks:       len(chunks),
	})
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("IngestService", "Failed to publish session.created", map[string]interface{}{"error": err.Error()})
	}

	return &dto.IngestResponse{
		SessionId: session.ID,
		Message:   message,
		Chunks:    len(chunks),
	}, nil
}

func (s *ingestService) internal(step, source string, err error) error {
	s.logger.Error("IngestService", "Ingestion step failed", map[string]interface{}{
		"step":   step,
		"source": source,
		"error":  err,
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperror.Internal(step+" interrupted", err)
	}
	return apperror.Internal(step, err)
}

// release drops a half-built index. It must outlive the request context.
func (s *ingestService) release(index vectorstore.Index) {
	if err := s.indexFactory.Release(context.Background(), index.ID()); err != nil {
		s.logger.Warn("IngestService", "Failed to release index", map[string]interface{}{
			"collection_id": index.ID(),
			"error":         err.Error(),
		})
	}
}
