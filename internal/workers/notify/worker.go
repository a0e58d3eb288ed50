// Package notify consumes issue events from the Redis stream and POSTs
// them to the configured notification webhook.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type Logger interface {
	Info(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)
}

type Worker struct {
	rdb      *redis.Client
	stream   string
	group    string
	consumer string

	httpClient *http.Client
	targetURL  string

	dedupeTTL time.Duration
	log       Logger
}

func New(rdb *redis.Client, stream, group, consumer, targetURL string, log Logger) *Worker {
	return &Worker{
		rdb:      rdb,
		stream:   stream,
		group:    group,
		consumer: consumer,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		targetURL: targetURL,
		dedupeTTL: 24 * time.Hour,
		log:       log,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	_ = w.rdb.XGroupCreateMkStream(ctx, w.stream, w.group, "0").Err()

	w.log.Info(ctx, "notify worker started")
	for {
		select {
		case <-ctx.Done():
			w.log.Info(ctx, "notify worker stopped")
			return ctx.Err()
		default:
		}

		streams, err := w.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    w.group,
			Consumer: w.consumer,
			Streams:  []string{w.stream, ">"},
			Count:    10,
			Block:    2 * time.Second,
		}).Result()
		if err == redis.Nil || err == nil && len(streams) == 0 {
			continue
		}
		if err != nil {
			w.log.Error(ctx, "redis read failed", "error", err)
			continue
		}

		for _, st := range streams {
			for _, msg := range st.Messages {
				if err := w.handle(ctx, msg.Values); err == nil {
					_ = w.rdb.XAck(ctx, w.stream, w.group, msg.ID).Err()
				} else {
					w.log.Error(ctx, "notify handle failed", "error", err)
				}
			}
		}
	}
}

// handle posts one event. The SetNX key makes redelivery after a crash
// between POST and XAck a no-op.
func (w *Worker) handle(ctx context.Context, values map[string]any) error {
	eventType, ok := values["type"].(string)
	if !ok {
		return fmt.Errorf("missing type")
	}

	body, ok := values["body"].(string)
	if !ok {
		return fmt.Errorf("missing body")
	}

	outboxIDStr, ok := values["outbox_id"].(string)
	if !ok {
		return fmt.Errorf("missing outbox_id")
	}
	outboxID, err := strconv.ParseInt(outboxIDStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid outbox_id")
	}

	dedupeKey := fmt.Sprintf("processed:%d", outboxID)
	okNX, err := w.rdb.SetNX(ctx, dedupeKey, "1", w.dedupeTTL).Result()
	if err != nil {
		return err
	}
	if !okNX {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.targetURL, bytes.NewBufferString(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", eventType)
	req.Header.Set("Idempotency-Key", strconv.FormatInt(outboxID, 10))

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook non-2xx: %d", resp.StatusCode)
	}

	w.log.Info(ctx, "notification sent", "event_type", eventType, "outbox_id", outboxID)
	return nil
}
