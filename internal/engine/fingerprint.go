package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"dupguard/internal/model"
	"dupguard/internal/normalize"
)

// Fingerprint derives the exact-match key for an item: sha256 over the
// normalized title, the normalized bounded excerpt and the source tag.
// Identical inputs always produce the identical key across restarts.
func Fingerprint(item model.ContentItem) string {
	parts := []string{
		normalize.Text(item.Title),
		normalize.Text(normalize.Excerpt(item)),
		item.Source,
	}
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h[:])
}
