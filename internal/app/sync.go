package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SyncClient persists status changes through the remote task service.
type SyncClient struct {
	writer StatusWriter
	cache  *BoardCache
	logger Logger
}

// NewSyncClient constructs a sync client.
func NewSyncClient(writer StatusWriter, cache *BoardCache, logger Logger) *SyncClient {
	return &SyncClient{
		writer: writer,
		cache:  cache,
		logger: loggerOrNop(logger),
	}
}

// UpdateStatus sends one status change. It never retries.
func (c *SyncClient) UpdateStatus(ctx context.Context, taskID, statusID string) (Receipt, error) {
	taskID = strings.TrimSpace(taskID)
	statusID = strings.TrimSpace(statusID)
	if taskID == "" || statusID == "" {
		return Receipt{}, fmt.Errorf("%w: task id and status id are required", ErrValidation)
	}
	if c.cache != nil {
		if current, ok := c.cache.StatusOf(taskID); ok && current == statusID {
			c.logger.Info("status change skipped", "task_id", taskID, "to", statusID, "err", ErrSameState)
			return Receipt{TaskID: taskID, StatusID: statusID, NoOp: true}, nil
		}
	}
	if c.writer == nil {
		return Receipt{}, fmt.Errorf("%w: status writer is not configured", ErrValidation)
	}

	receipt, err := c.writer.UpdateTaskStatus(ctx, taskID, statusID)
	if err != nil {
		err = classify(err)
		c.logger.Warn("status change failed", "task_id", taskID, "to", statusID, "request_id", receipt.RequestID, "err", err)
		return receipt, err
	}
	if receipt.TaskID == "" {
		receipt.TaskID = taskID
	}
	if receipt.StatusID == "" {
		receipt.StatusID = statusID
	}
	c.logger.Info("status change confirmed", "task_id", taskID, "to", statusID, "request_id", receipt.RequestID)
	return receipt, nil
}

// classify makes sure every failure carries one taxonomy sentinel.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrServerRejected),
		errors.Is(err, ErrNetwork),
		errors.Is(err, ErrMalformedResponse),
		errors.Is(err, ErrValidation):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
}
