// Package notify delivers operator alerts. Every implementation swallows
// its own failures; callers never branch on delivery.
package notify

import (
	"context"
	"log/slog"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
)

type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(ctx context.Context, n domain.Notification) {
	log := l.logger
	if log == nil {
		log = logging.FromContext(ctx)
	}
	attrs := []any{"topic", n.Topic}
	for k, v := range n.Fields {
		attrs = append(attrs, k, v)
	}
	log.WarnContext(ctx, n.Message, attrs...)
}

// Multi fans an alert out to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n domain.Notification) {
	for _, nt := range m {
		if nt != nil {
			nt.Notify(ctx, n)
		}
	}
}
