package engine

import (
	"net/url"
	"strings"

	"github.com/agnivade/levenshtein"

	"dupguard/internal/config"
	"dupguard/internal/model"
	"dupguard/internal/normalize"
)

// Scorer computes the weighted similarity between an incoming item and a
// stored record. Headline phrasing is the strongest signal, URL structure
// the weakest; syndication partners reuse URLs inconsistently.
type Scorer struct {
	weights config.WeightsConfig
}

func NewScorer(weights config.WeightsConfig) *Scorer {
	if weights == (config.WeightsConfig{}) {
		weights = config.WeightsConfig{Title: 0.6, Excerpt: 0.3, URL: 0.1}
	}
	return &Scorer{weights: weights}
}

// Score returns a similarity in [0,1]. An item scored against a record built
// from itself is exactly 1.0; summing the weighted components would lose that
// to float rounding.
func (s *Scorer) Score(item model.ContentItem, record *model.ProcessedRecord) float64 {
	title := textSimilarity(normalize.Text(item.Title), normalize.Text(record.Title))
	excerpt := textSimilarity(normalize.Text(normalize.Excerpt(item)), normalize.Text(record.Excerpt))
	u := urlSimilarity(item.URL, record.URL)
	if title == 1.0 && excerpt == 1.0 && u == 1.0 {
		return 1.0
	}
	return s.weights.Title*title + s.weights.Excerpt*excerpt + s.weights.URL*u
}

// textSimilarity is the normalized Levenshtein ratio:
// 1 - distance/max(len(a), len(b)). Two empty strings are identical;
// one empty side scores zero.
func textSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	if a == b {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	return 1.0 - float64(dist)/float64(maxLen)
}

// urlSimilarity compares hostnames and path structure. Parse failures
// degrade to zero, never to an error.
func urlSimilarity(rawA, rawB string) float64 {
	if rawA == "" || rawB == "" {
		return 0.0
	}
	ua, err := url.Parse(rawA)
	if err != nil || ua.Host == "" {
		return 0.0
	}
	ub, err := url.Parse(rawB)
	if err != nil || ub.Host == "" {
		return 0.0
	}
	if !strings.EqualFold(ua.Hostname(), ub.Hostname()) {
		return 0.0
	}
	pathA := strings.Trim(ua.Path, "/")
	pathB := strings.Trim(ub.Path, "/")
	if pathA == pathB {
		return 1.0
	}
	segsA := splitPath(pathA)
	segsB := splitPath(pathB)
	if len(segsA) == 0 {
		return 0.0
	}
	setB := make(map[string]struct{}, len(segsB))
	for _, seg := range segsB {
		setB[seg] = struct{}{}
	}
	shared := 0
	for _, seg := range segsA {
		if _, ok := setB[seg]; ok {
			shared++
		}
	}
	return 0.8 * float64(shared) / float64(len(segsA))
}

func splitPath(p string) []string {
	if p == "" {
		return nil
	}
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, seg := range parts {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}
