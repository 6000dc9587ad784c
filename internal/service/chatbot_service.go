package service

import (
	"context"
	"strings"

	"repochat-be/internal/config"
	"repochat-be/internal/dto"
	"repochat-be/internal/pkg/logger"
	"repochat-be/internal/repository/memory"
	"repochat-be/pkg/apperror"
	"repochat-be/pkg/embedding"
	"repochat-be/pkg/events"
	"repochat-be/pkg/rag"
	"repochat-be/pkg/store"
	"repochat-be/pkg/vectorstore"
)

// IChatbotService defines the chatbot service interface
type IChatbotService interface {
	SendChat(ctx context.Context, request *dto.SendChatRequest) (*dto.SendChatResponse, error)
	GetChatHistory(ctx context.Context, sessionId string) ([]*dto.ChatTurnResponse, error)
	DeleteSession(ctx context.Context, sessionId string) error
	SessionCount() int
}

// AnswerEngine produces the assistant reply for a transcript ending with the user's question.
type AnswerEngine interface {
	Answer(ctx context.Context, transcript []store.Turn, retriever rag.Retriever) (string, error)
}

type chatbotService struct {
	sessionRepo  *memory.SessionRepository
	engine       AnswerEngine
	embedder     embedding.EmbeddingProvider
	indexFactory vectorstore.Factory
	publisher    IPublisherService
	cfg          config.RagConfig
	logger       logger.ILogger
}

func NewChatbotService(
	sessionRepo *memory.SessionRepository,
	engine AnswerEngine,
	embedder embedding.EmbeddingProvider,
	indexFactory vectorstore.Factory,
	publisher IPublisherService,
	cfg config.RagConfig,
	log logger.ILogger,
) IChatbotService {
	return &chatbotService{
		sessionRepo:  sessionRepo,
		engine:       engine,
		embedder:     embedder,
		indexFactory: indexFactory,
		publisher:    publisher,
		cfg:          cfg,
		logger:       log,
	}
}

// SendChat runs one turn under the session's turn lock. The user and assistant
// turns are recorded together, and only when an answer was produced.
func (cs *chatbotService) SendChat(ctx context.Context, request *dto.SendChatRequest) (*dto.SendChatResponse, error) {
	query := strings.TrimSpace(request.Query)
	if query == "" {
		return nil, apperror.InvalidRequest("query must not be empty", nil)
	}

	if cs.cfg.ChatTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cs.cfg.ChatTimeout)
		defer cancel()
	}

	var answer string
	var turns int
	err := cs.sessionRepo.WithTurn(ctx, request.SessionId, func(tx *memory.TurnTx) error {
		userTurn := store.UserTurn(query)
		transcript := append(tx.Transcript(), userTurn)
		retriever := vectorstore.NewRetriever(tx.Session().Index, cs.embedder, cs.cfg.RetrievalK)

		out, err := cs.engine.Answer(ctx, transcript, retriever)
		if err != nil {
			return err
		}

		answer = out
		turns = len(transcript) + 1
		tx.Append(userTurn, store.AssistantTurn(out))
		return nil
	})
	if err != nil {
		return nil, cs.chatError(request.SessionId, err)
	}

	evt := events.NewSessionEvent(events.ChatTurnCompleted, request.SessionId, map[string]interface{}{
		events.KeyTurns: turns,
	})
	if err := cs.publisher.Publish(ctx, evt); err != nil {
		cs.logger.Warn("ChatbotService", "Failed to publish chat.turn_completed", map[string]interface{}{"error": err.Error()})
	}

	return &dto.SendChatResponse{
		SessionId: request.SessionId,
		Answer:    answer,
	}, nil
}

func (cs *chatbotService) chatError(sessionId string, err error) error {
	kind := apperror.KindOf(err)
	if kind == apperror.KindSessionNotFound {
		return err
	}

	cs.logger.Error("ChatbotService", "Chat turn failed", map[string]interface{}{
		"session_id": sessionId,
		"kind":       string(kind),
		"error":      err,
	})

	if _, ok := apperror.As(err); ok {
		return err
	}
	return apperror.Internal("chat turn", err)
}

func (cs *chatbotService) GetChatHistory(ctx context.Context, sessionId string) ([]*dto.ChatTurnResponse, error) {
	transcript, err := cs.sessionRepo.Transcript(sessionId)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.ChatTurnResponse, len(transcript))
	for i, turn := range transcript {
		res[i] = &dto.ChatTurnResponse{Role: turn.Role, Content: turn.Content}
	}
	return res, nil
}

// DeleteSession removes the session now; its index is released by the event consumer.
func (cs *chatbotService) DeleteSession(ctx context.Context, sessionId string) error {
	session, err := cs.sessionRepo.Delete(sessionId)
	if err != nil {
		return err
	}

	evt := events.NewSessionEvent(events.SessionClosed, session.ID, map[string]interface{}{
		events.KeyCollectionID: session.Index.ID(),
	})
	if err := cs.publisher.Publish(ctx, evt); err != nil {
		cs.logger.Warn("ChatbotService", "Publishing session.closed failed, releasing index inline", map[string]interface{}{
			"session_id": session.ID,
			"error":      err.Error(),
		})
		if err := cs.indexFactory.Release(context.Background(), session.Index.ID()); err != nil {
			return apperror.Internal("release index", err)
		}
	}
	return nil
}

func (cs *chatbotService) SessionCount() int {
	return cs.sessionRepo.Count()
}
