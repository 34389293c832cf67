package ingest

import (
	"encoding/csv"
	"strings"

	"dupguard/internal/normalize"
)

// Parser turns one raw line into raw item fields. JSON objects and CSV rows
// (with or without a header) are supported; anything else is skipped.
type Parser struct {
	csv *CSVParser
}

func NewParser() *Parser {
	return &Parser{csv: NewCSVParser()}
}

func (p *Parser) ParseLine(line string) (*normalize.ItemFields, error) {
	trim := strings.TrimSpace(line)
	if trim == "" {
		return nil, nil
	}
	if looksLikeJSON(trim) {
		if fields, err := ParseJSONBytes([]byte(trim)); err == nil {
			fields.Raw = line
			return fields, nil
		}
	}
	if strings.Contains(trim, ",") {
		fields, err := p.csv.Parse(trim)
		if err == nil {
			if fields == nil {
				return nil, nil
			}
			fields.Raw = line
			return fields, nil
		}
	}
	return nil, nil
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func firstNonEmpty(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(m[k]); v != "" {
			return v
		}
	}
	return ""
}

type CSVParser struct {
	header []string
}

func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

func (p *CSVParser) Parse(line string) (*normalize.ItemFields, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.TrimLeadingSpace = true
	record, err := r.Read()
	if err != nil {
		return nil, err
	}
	if len(record) == 0 {
		return nil, nil
	}
	if p.header == nil && looksLikeHeader(record) {
		p.header = normalizeHeader(record)
		return nil, nil
	}
	fields := &normalize.ItemFields{Extras: map[string]string{}}
	if p.header != nil {
		for i, name := range p.header {
			if i >= len(record) {
				break
			}
			assignField(fields, name, record[i])
		}
	} else {
		// Positional fallback: title,url,source,published_at,description
		if len(record) >= 1 {
			fields.Title = record[0]
		}
		if len(record) >= 2 {
			fields.URL = record[1]
		}
		if len(record) >= 3 {
			fields.Source = record[2]
		}
		if len(record) >= 4 {
			fields.PublishedAt = record[3]
		}
		if len(record) >= 5 {
			fields.Description = record[4]
		}
	}
	return fields, nil
}

func looksLikeHeader(record []string) bool {
	for _, v := range record {
		v = strings.ToLower(strings.TrimSpace(v))
		switch v {
		case "title", "headline", "url", "link", "source", "feed",
			"published_at", "published", "pubdate", "date",
			"description", "summary", "author":
			return true
		}
	}
	return false
}

func normalizeHeader(record []string) []string {
	out := make([]string, len(record))
	for i, v := range record {
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

func assignField(fields *normalize.ItemFields, name string, value string) {
	name = strings.ToLower(strings.TrimSpace(name))
	value = strings.TrimSpace(value)
	switch name {
	case "title", "headline":
		fields.Title = value
	case "url", "link", "href":
		fields.URL = value
	case "source", "feed", "site":
		fields.Source = value
	case "published_at", "published", "pubdate", "date", "time", "timestamp":
		fields.PublishedAt = value
	case "description", "summary", "excerpt":
		fields.Description = value
	case "content", "body", "text":
		fields.Content = value
	case "author", "byline", "creator":
		fields.Author = value
	default:
		if fields.Extras != nil {
			fields.Extras[name] = value
		}
	}
}
