package simpleinventory

import (
	"context"
	"log/slog"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) ItemRegistered(ctx context.Context, item *Item) error { return nil }

func (n *NoopEventSink) ItemUpdated(ctx context.Context, item *Item) error { return nil }

func (n *NoopEventSink) PhotoReplaced(ctx context.Context, item *Item, previousRef *string) error {
	return nil
}

func (n *NoopEventSink) ItemDeleted(ctx context.Context, item *Item) error { return nil }

// LogEventSink writes every lifecycle event to a structured logger at INFO.
type LogEventSink struct {
	logger *slog.Logger
}

// NewLogEventSink creates an event sink backed by logger. A nil logger uses
// slog.Default().
func NewLogEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEventSink{logger: logger}
}

func (l *LogEventSink) ItemRegistered(ctx context.Context, item *Item) error {
	l.logger.InfoContext(ctx, "item registered", "item_id", item.ID, "name", item.Name, "has_photo", item.HasPhoto())
	return nil
}

func (l *LogEventSink) ItemUpdated(ctx context.Context, item *Item) error {
	l.logger.InfoContext(ctx, "item updated", "item_id", item.ID)
	return nil
}

func (l *LogEventSink) PhotoReplaced(ctx context.Context, item *Item, previousRef *string) error {
	l.logger.InfoContext(ctx, "item photo replaced", "item_id", item.ID, "had_photo", previousRef != nil)
	return nil
}

func (l *LogEventSink) ItemDeleted(ctx context.Context, item *Item) error {
	l.logger.InfoContext(ctx, "item deleted", "item_id", item.ID)
	return nil
}
