package ingest

import (
	"context"
	"log/slog"
	"time"

	"dupguard/internal/model"
)

func SendNonBlocking(ctx context.Context, out chan<- model.ContentItem, item model.ContentItem, logger *slog.Logger) bool {
	select {
	case out <- item:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("item channel full, dropping item", "source", item.Source, "title", item.Title)
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
