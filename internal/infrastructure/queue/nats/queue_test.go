package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

func TestClassifyPublishError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		record    bool
	}{
		{name: "no servers", err: fmt.Errorf("nats publish: %w", nats.ErrNoServers), retryable: true, record: true},
		{name: "reconnect buffer", err: nats.ErrReconnectBufExceeded, retryable: true, record: true},
		{name: "canceled", err: context.Canceled},
		{name: "bad subject", err: nats.ErrBadSubject, record: true},
		{name: "max payload", err: fmt.Errorf("nats publish: %w", nats.ErrMaxPayload), record: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			class := classifyPublishError(tc.err)
			if class.Retryable != tc.retryable || class.RecordFailure != tc.record {
				t.Fatalf("unexpected classification %+v", class)
			}
		})
	}
}

func TestPublishFailureMarksBrokerOutagesTemporary(t *testing.T) {
	err := publishFailure("cvrag.index.updated", nats.ErrTimeout)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary kind, got %v", err)
	}
	permanent := errors.New("permission denied")
	if got := publishFailure("cvrag.index.updated", permanent); got != permanent {
		t.Fatalf("expected permanent error unchanged, got %v", got)
	}
}

func TestDecodeQueryCompletedRequiresRunID(t *testing.T) {
	raw, _ := json.Marshal(domain.QueryCompletedEvent{Run: domain.QueryRun{ID: "run-1", Decision: domain.DecisionSend}})
	event, err := decodeQueryCompleted(raw)
	if err != nil || event.Run.ID != "run-1" || event.Run.Decision != domain.DecisionSend {
		t.Fatalf("unexpected decode %+v %v", event, err)
	}

	if _, err := decodeQueryCompleted([]byte(`{"run":{}}`)); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := decodeQueryCompleted([]byte(`not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
}
