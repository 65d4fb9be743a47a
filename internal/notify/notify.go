// Package notify delivers in-app notifications to business owners:
// "invoice sent", "quote accepted", "payment recorded". Delivery is
// best-effort through the side-effect queue.
package notify

import (
	"context"
	"log/slog"
)

// Notification is one owner-facing event.
type Notification struct {
	UserID   string
	Category string
	Title    string
	Body     string
	Data     map[string]string
}

// Notifier pushes a notification to the owner's devices.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier records notifications in the log instead of pushing
// them. Used until a push provider is wired in deployment.
type LogNotifier struct {
	Log *slog.Logger
}

func (l *LogNotifier) Notify(ctx context.Context, n Notification) error {
	l.Log.InfoContext(ctx, "owner notification",
		slog.String("user_id", n.UserID),
		slog.String("category", n.Category),
		slog.String("title", n.Title),
	)
	return nil
}
