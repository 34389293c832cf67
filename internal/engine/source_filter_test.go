package engine

import (
	"testing"

	"dupguard/internal/config"
)

func filterFor(sources config.SourcesConfig) *SourceFilter {
	cfg := config.DefaultConfig()
	cfg.Sources = sources
	return buildSourceFilter(cfg)
}

func TestSourceFilterDisabled(t *testing.T) {
	f := filterFor(config.SourcesConfig{Enabled: false, Block: []string{"spam"}})
	if !f.Allowed("spam") {
		t.Fatalf("disabled filter must allow everything")
	}
}

func TestSourceFilterBlocklist(t *testing.T) {
	f := filterFor(config.SourcesConfig{Enabled: true, Block: []string{"SpamFeed"}})
	if f.Allowed("spamfeed") {
		t.Fatalf("blocked tag allowed")
	}
	if f.Allowed(" SPAMFEED ") {
		t.Fatalf("tag matching must be case and space insensitive")
	}
	if !f.Allowed("reuters") {
		t.Fatalf("unlisted tag rejected")
	}
}

func TestSourceFilterAllowOnly(t *testing.T) {
	f := filterFor(config.SourcesConfig{Enabled: true, AllowOnly: true, Allow: []string{"reuters"}})
	if !f.Allowed("reuters") {
		t.Fatalf("allowed tag rejected")
	}
	if f.Allowed("random") {
		t.Fatalf("allow-only mode must reject unlisted tags")
	}
}

func TestSourceFilterBlockBeatsAllow(t *testing.T) {
	f := filterFor(config.SourcesConfig{
		Enabled:   true,
		AllowOnly: true,
		Allow:     []string{"reuters"},
		Block:     []string{"reuters"},
	})
	if f.Allowed("reuters") {
		t.Fatalf("block list must win over allow list")
	}
}

func TestNilSourceFilter(t *testing.T) {
	var f *SourceFilter
	if !f.Allowed("anything") {
		t.Fatalf("nil filter must allow")
	}
}
