package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
	"github.com/kirillkom/candidate-rag/internal/infrastructure/resilience"
)

const recorderQueueGroup = "run-recorders"

type Subjects struct {
	QueryCompleted string
	IndexUpdated   string
}

type Queue struct {
	conn     *nats.Conn
	subjects Subjects
	executor *resilience.Executor
	logger   *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url string, subjects Subjects) (*Queue, error) {
	return NewWithOptions(url, subjects, Options{})
}

func NewWithOptions(url string, subjects Subjects, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("candidate-rag"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subjects: subjects,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishQueryCompleted(ctx context.Context, event domain.QueryCompletedEvent) error {
	return q.publish(ctx, q.subjects.QueryCompleted, event)
}

func (q *Queue) PublishIndexUpdated(ctx context.Context, event domain.IndexUpdatedEvent) error {
	return q.publish(ctx, q.subjects.IndexUpdated, event)
}

func (q *Queue) publish(ctx context.Context, subject string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", subject, err)
	}
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyPublishError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return publishFailure(subject, err)
	}
	return nil
}

// SubscribeQueryCompleted load-balances completed runs across recorder workers.
func (q *Queue) SubscribeQueryCompleted(ctx context.Context, handler func(context.Context, domain.QueryCompletedEvent) error) error {
	return q.subscribe(ctx, q.subjects.QueryCompleted, recorderQueueGroup, func(handlerCtx context.Context, data []byte) error {
		event, err := decodeQueryCompleted(data)
		if err != nil {
			return err
		}
		return handler(handlerCtx, event)
	})
}

// SubscribeIndexUpdated delivers every event to every subscriber, so each API
// replica can drop its own cache entries.
func (q *Queue) SubscribeIndexUpdated(ctx context.Context, handler func(context.Context, domain.IndexUpdatedEvent) error) error {
	return q.subscribe(ctx, q.subjects.IndexUpdated, "", func(handlerCtx context.Context, data []byte) error {
		var event domain.IndexUpdatedEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return fmt.Errorf("decode index updated event: %w", err)
		}
		return handler(handlerCtx, event)
	})
}

func (q *Queue) subscribe(ctx context.Context, subject, group string, handle func(context.Context, []byte) error) error {
	callback := func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handle(handlerCtx, msg.Data); err != nil {
			q.logger.Error("event_handler_failed", "subject", subject, "error", err)
		}
	}

	var (
		sub *nats.Subscription
		err error
	)
	if group != "" {
		sub, err = q.conn.QueueSubscribe(subject, group, callback)
	} else {
		sub, err = q.conn.Subscribe(subject, callback)
	}
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func decodeQueryCompleted(data []byte) (domain.QueryCompletedEvent, error) {
	var event domain.QueryCompletedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.QueryCompletedEvent{}, fmt.Errorf("decode query completed event: %w", err)
	}
	if event.Run.ID == "" {
		return domain.QueryCompletedEvent{}, domain.WrapError(domain.ErrInvalidInput, "decode query completed event", fmt.Errorf("missing run id"))
	}
	return event, nil
}
