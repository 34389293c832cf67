package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/mmcdole/gofeed"

	"dupguard/internal/config"
	"dupguard/internal/model"
)

// StartRSS polls the configured RSS/Atom feeds and emits their entries as
// content items tagged with the feed's name.
func StartRSS(ctx context.Context, cfg *config.Manager, out chan<- model.ContentItem, logger *slog.Logger) {
	current := cfg.Get().Ingest.RSS
	if !current.Enabled {
		if logger != nil {
			logger.Info("rss ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("rss ingest enabled", "feeds", len(current.Feeds), "poll_interval", current.PollInterval.String())
	}
	go func() {
		parser := gofeed.NewParser()
		poll := func() {
			feeds := cfg.Get().Ingest.RSS.Feeds
			for _, feed := range feeds {
				pollFeed(ctx, parser, feed, out, logger)
				select {
				case <-ctx.Done():
					return
				default:
				}
			}
		}
		poll()
		ticker := time.NewTicker(current.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				poll()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func pollFeed(ctx context.Context, parser *gofeed.Parser, feed config.FeedConfig, out chan<- model.ContentItem, logger *slog.Logger) {
	parsed, err := parser.ParseURLWithContext(feed.URL, ctx)
	if err != nil {
		if logger != nil {
			logger.Warn("rss fetch failed", "feed", feed.Name, "url", feed.URL, "err", err)
		}
		return
	}
	now := time.Now().UTC()
	for _, entry := range parsed.Items {
		if entry.Link == "" && entry.Title == "" {
			continue
		}
		published := now
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC()
		} else if entry.UpdatedParsed != nil {
			published = entry.UpdatedParsed.UTC()
		}
		author := ""
		if entry.Author != nil {
			author = entry.Author.Name
		}
		item := model.ContentItem{
			Title:       entry.Title,
			URL:         entry.Link,
			Source:      feed.Name,
			PublishedAt: published,
			Description: entry.Description,
			Content:     entry.Content,
			Author:      author,
		}
		SendNonBlocking(ctx, out, item, logger)
	}
}
