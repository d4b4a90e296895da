package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/openprocure/procure-api/internal/models"
)

// LoggingNotifier is the default Notifier. It records transition events in
// the structured log; real delivery channels replace it at wiring time.
type LoggingNotifier struct {
	logger *zap.Logger
}

// NewLoggingNotifier constructs a notifier writing to the given logger.
func NewLoggingNotifier(logger *zap.Logger) *LoggingNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingNotifier{logger: logger}
}

// NotifyTransition logs the lifecycle event.
func (n *LoggingNotifier) NotifyTransition(ctx context.Context, request *models.Request, from, to models.RequestStatus, actor *models.User) {
	n.logger.Info("request transitioned",
		zap.String("request_id", request.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor_id", actor.ID),
		zap.String("actor_role", string(actor.Role)),
	)
}
