// Package notify handles background work for users with no live socket:
// when a message lands and the recipient is offline, a task recounts their
// unread messages and refreshes the badge counter cached in Redis, where a
// push/badge service can pick it up.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const TypeUnreadNotify = "chat:unread_notify"

const badgeTTL = 24 * time.Hour

type unreadPayload struct {
	UserID         int `json:"user_id"`
	ConversationID int `json:"conversation_id"`
}

// Client enqueues notification tasks.
type Client struct {
	client *asynq.Client
}

func NewClient(opt asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(opt)}
}

func (c *Client) NotifyUnread(ctx context.Context, userID, conversationID int) error {
	payload, err := json.Marshal(unreadPayload{UserID: userID, ConversationID: conversationID})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeUnreadNotify, payload)
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue("chat"), asynq.MaxRetry(3))
	return err
}

func (c *Client) Close() error {
	return c.client.Close()
}

// UnreadCounter is the storage surface the worker needs.
type UnreadCounter interface {
	TotalUnread(ctx context.Context, userID int) (int, error)
}

// Worker consumes notification tasks in-process with the API server.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewWorker(opt asynq.RedisClientOpt, concurrency int, counts UnreadCounter, cache *redis.Client) *Worker {
	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{"chat": 1, "default": 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Printf("notify: task %s failed: %v", task.Type(), err)
		}),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeUnreadNotify, func(ctx context.Context, task *asynq.Task) error {
		var p unreadPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			// Malformed payload: retrying cannot help.
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}

		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		count, err := counts.TotalUnread(ctx, p.UserID)
		if err != nil {
			return err
		}
		return cache.Set(ctx, badgeKey(p.UserID), count, badgeTTL).Err()
	})

	return &Worker{server: server, mux: mux}
}

func (w *Worker) Start() error {
	return w.server.Start(w.mux)
}

func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

func badgeKey(userID int) string {
	return fmt.Sprintf("unread:%d", userID)
}
