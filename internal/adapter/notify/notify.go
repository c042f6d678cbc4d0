// Package notify delivers failure events to operators.
package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/repository"
)

var (
	_ repository.Notifier = (*LogNotifier)(nil)
	_ repository.Notifier = Multi(nil)
)

// LogNotifier writes every event to the structured log at error level.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, ev *entity.FailureEvent) error {
	n.logger.Error("Stage failed",
		zap.String("run_id", ev.RunID),
		zap.String("stage", string(ev.Stage)),
		zap.String("hash", ev.Hash),
		zap.String("kind", ev.Kind),
		zap.String("message", ev.Message),
		zap.Time("occurred_at", ev.OccurredAt))
	return nil
}

// Multi fans an event out to every sink and joins their errors.
type Multi []repository.Notifier

func (m Multi) Notify(ctx context.Context, ev *entity.FailureEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
