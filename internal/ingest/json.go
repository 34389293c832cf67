package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"dupguard/internal/normalize"
)

func ParseJSONBytes(data []byte) (*normalize.ItemFields, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return ParseJSONMap(obj), nil
}

func ParseJSONMap(obj map[string]interface{}) *normalize.ItemFields {
	fields := &normalize.ItemFields{Extras: map[string]string{}}
	for key, val := range obj {
		fields.Extras[strings.ToLower(key)] = fmt.Sprint(val)
	}
	fields.Title = firstNonEmpty(fields.Extras, "title", "headline")
	fields.URL = firstNonEmpty(fields.Extras, "url", "link", "href")
	fields.Source = firstNonEmpty(fields.Extras, "source", "feed", "site")
	fields.PublishedAt = firstNonEmpty(fields.Extras, "published_at", "published", "pubdate", "date", "time", "timestamp")
	fields.Description = firstNonEmpty(fields.Extras, "description", "summary", "excerpt")
	fields.Content = firstNonEmpty(fields.Extras, "content", "body", "text")
	fields.Author = firstNonEmpty(fields.Extras, "author", "byline", "creator")
	return fields
}
