package service

import (
	"context"
	"time"

	"repochat-be/internal/pkg/logger"
	"repochat-be/pkg/events"
	"repochat-be/pkg/vectorstore"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/cenkalti/backoff/v5"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// EventForwarder ships events outside the process (NATS JetStream).
type EventForwarder interface {
	Publish(ctx context.Context, event events.Event) error
}

// SessionNotifier pushes a frame to every websocket watching a session.
type SessionNotifier interface {
	Send(sessionID string, data []byte)
}

type consumerService struct {
	pubSub       *gochannel.GoChannel
	topicName    string
	indexFactory vectorstore.Factory
	forwarder    EventForwarder
	notifier     SessionNotifier
	logger       logger.ILogger
}

// NewConsumerService wires the session event handlers. forwarder and notifier may be nil.
func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	indexFactory vectorstore.Factory,
	forwarder EventForwarder,
	notifier SessionNotifier,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		pubSub:       pubSub,
		topicName:    topicName,
		indexFactory: indexFactory,
		forwarder:    forwarder,
		notifier:     notifier,
		logger:       log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	evt, err := events.Unmarshal(msg.Payload)
	if err != nil {
		cs.logger.Error("Consumer", "Dropping undecodable event", map[string]interface{}{"error": err})
		msg.Ack() // never redeliver garbage
		return
	}

	switch evt.EventType() {
	case events.SessionExpired, events.SessionClosed:
		if err := cs.releaseIndex(ctx, evt); err != nil {
			cs.logger.Error("Consumer", "Failed to release index", map[string]interface{}{
				"session_id": events.String(evt, events.KeySessionID),
				"error":      err,
			})
		}
	case events.ChatTurnCompleted:
		cs.notify(evt)
	}

	cs.forward(ctx, evt)
	msg.Ack()
}

func (cs *consumerService) releaseIndex(ctx context.Context, evt events.Event) error {
	collectionID := events.String(evt, events.KeyCollectionID)
	if collectionID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, cs.indexFactory.Release(ctx, collectionID)
	}, backoff.WithMaxTries(3))
	if err != nil {
		return err
	}

	cs.logger.Info("Consumer", "Released session index", map[string]interface{}{
		"session_id":    events.String(evt, events.KeySessionID),
		"collection_id": collectionID,
		"reason":        evt.EventType(),
	})
	return nil
}

func (cs *consumerService) notify(evt events.Event) {
	if cs.notifier == nil {
		return
	}
	frame, err := events.Marshal(evt)
	if err != nil {
		return
	}
	cs.notifier.Send(events.String(evt, events.KeySessionID), frame)
}

// forward is best effort: the in-process handling already happened.
func (cs *consumerService) forward(ctx context.Context, evt events.Event) {
	if cs.forwarder == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := cs.forwarder.Publish(ctx, evt); err != nil {
		cs.logger.Warn("Consumer", "Failed to forward event to NATS", map[string]interface{}{
			"type":  evt.EventType(),
			"error": err.Error(),
		})
	}
}
