package normalize

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"dupguard/internal/config"
	"dupguard/internal/model"
)

const (
	excerptMax  = 500
	excerptEdge = 200
)

// Text canonicalizes a raw string for comparison: lower-case, strip
// everything outside word and whitespace classes, collapse whitespace runs,
// trim. Idempotent.
func Text(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Excerpt builds the bounded comparison excerpt for an item: description
// when present, otherwise content. Text longer than 500 runes is reduced to
// its first and last 200 runes, keeping lede and conclusion while bounding
// comparison cost.
func Excerpt(item model.ContentItem) string {
	text := item.Description
	if text == "" {
		text = item.Content
	}
	if text == "" {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= excerptMax {
		return text
	}
	return string(runes[:excerptEdge]) + " ... " + string(runes[len(runes)-excerptEdge:])
}

// ItemFields carries raw string fields from any ingest source before they
// become a ContentItem.
type ItemFields struct {
	Title       string
	URL         string
	Source      string
	PublishedAt string
	Description string
	Content     string
	Author      string
	Extras      map[string]string
	Raw         string
}

// Item validates and converts raw fields into a ContentItem. The URL must
// parse as an absolute URL; a missing timestamp defaults to now.
func Item(fields ItemFields, cfg *config.Config) (model.ContentItem, error) {
	title := strings.TrimSpace(fields.Title)
	rawURL := strings.TrimSpace(fields.URL)
	if title == "" && rawURL == "" {
		return model.ContentItem{}, errors.New("item has neither title nor url")
	}
	if rawURL != "" {
		u, err := url.Parse(rawURL)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return model.ContentItem{}, fmt.Errorf("url is not absolute: %q", rawURL)
		}
	}

	source := strings.ToLower(strings.TrimSpace(fields.Source))
	if source == "" {
		source = cfg.Ingest.Parser.DefaultSource
	}

	loc := time.UTC
	if cfg.Ingest.Parser.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Ingest.Parser.Timezone); err == nil {
			loc = l
		}
	}

	ts := time.Now().UTC()
	if fields.PublishedAt != "" {
		parsed, err := ParseTimestamp(fields.PublishedAt, loc)
		if err != nil {
			return model.ContentItem{}, fmt.Errorf("parse published_at: %w", err)
		}
		ts = parsed.UTC()
	}

	return model.ContentItem{
		Title:       title,
		URL:         rawURL,
		Source:      source,
		PublishedAt: ts,
		Description: strings.TrimSpace(fields.Description),
		Content:     fields.Content,
		Author:      strings.TrimSpace(fields.Author),
	}, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	if len(value) >= 13 {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(0, ms*int64(time.Millisecond)).UTC(), nil
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
