package thumbnail

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/thumbnailer/internal/model"
	thumbsvc "github.com/aliskhannn/thumbnailer/internal/service/thumbnail"
)

// service defines the interface for processing render tasks.
type service interface {
	ProcessTask(ctx context.Context, task model.Task) (model.Result, error)
}

// TaskHandler handles Kafka messages carrying render tasks.
type TaskHandler struct {
	service service
}

// NewTaskHandler creates a new handler with the given service.
func NewTaskHandler(s service) *TaskHandler {
	return &TaskHandler{service: s}
}

// Handle decodes the task and renders it. Tasks that can never succeed
// (bad payload, missing or broken source, bad operations) are logged and
// acknowledged so they do not block the partition; other errors are
// returned so the consumer retries the message.
func (h *TaskHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var task model.Task
	if err := json.Unmarshal(msg.Value, &task); err != nil {
		zlog.Logger.Error().Err(err).Msg("dropping malformed render task")
		return nil
	}

	res, err := h.service.ProcessTask(ctx, task)
	if err != nil {
		if thumbsvc.IsPermanent(err) {
			zlog.Logger.Error().Err(err).Str("id", task.ID.String()).Msg("render task failed")
			return nil
		}

		return fmt.Errorf("process task %s: %w", task.ID, err)
	}

	zlog.Logger.Info().
		Str("id", task.ID.String()).
		Str("cache", res.CacheFile).
		Msg("render task processed")

	return nil
}
