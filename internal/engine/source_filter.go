package engine

import (
	"strings"

	"dupguard/internal/config"
)

// SourceFilter gates ingestion by source tag: blocked tags are always
// rejected, and in allow-only mode anything outside the allow list is
// rejected too.
type SourceFilter struct {
	Enabled   bool
	AllowOnly bool
	Allow     map[string]struct{}
	Block     map[string]struct{}
}

func buildSourceFilter(cfg *config.Config) *SourceFilter {
	f := &SourceFilter{Enabled: cfg.Sources.Enabled, AllowOnly: cfg.Sources.AllowOnly}
	if !f.Enabled {
		return f
	}
	f.Allow = buildTagSet(cfg.Sources.Allow)
	f.Block = buildTagSet(cfg.Sources.Block)
	return f
}

func buildTagSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		tag := normalizeTag(v)
		if tag == "" {
			continue
		}
		set[tag] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

func (f *SourceFilter) Allowed(source string) bool {
	if f == nil || !f.Enabled {
		return true
	}
	tag := normalizeTag(source)
	if f.Block != nil {
		if _, ok := f.Block[tag]; ok {
			return false
		}
	}
	if f.AllowOnly {
		if f.Allow == nil {
			return false
		}
		_, ok := f.Allow[tag]
		return ok
	}
	return true
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}
