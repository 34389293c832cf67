package model

import "time"

// ContentItem is a single piece of incoming content: a news article, a
// repository entry or a generated post. The source tag names where the
// item came from; syndicated copies arrive under different tags.
type ContentItem struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	Description string    `json:"description,omitempty"`
	Content     string    `json:"content,omitempty"`
	Author      string    `json:"author,omitempty"`
}

// ProcessedRecord is the durable trace of an accepted item, keyed by its
// content fingerprint. Item fields are denormalized so later comparisons
// never need the original.
type ProcessedRecord struct {
	Fingerprint      string    `json:"fingerprint"`
	Title            string    `json:"title"`
	URL              string    `json:"url"`
	Source           string    `json:"source"`
	PublishedAt      time.Time `json:"published_at"`
	Excerpt          string    `json:"excerpt,omitempty"`
	FirstProcessedAt time.Time `json:"first_processed_at"`
	LastSeenAt       time.Time `json:"last_seen_at"`
	TimesProcessed   int       `json:"times_processed"`
	Sources          []string  `json:"sources"`
}

// HasSource reports whether tag is already in the record's source set.
func (r *ProcessedRecord) HasSource(tag string) bool {
	for _, s := range r.Sources {
		if s == tag {
			return true
		}
	}
	return false
}

// AddSource appends tag to the source set if not already present. The set
// only ever grows over a record's lifetime.
func (r *ProcessedRecord) AddSource(tag string) {
	if tag == "" || r.HasSource(tag) {
		return
	}
	r.Sources = append(r.Sources, tag)
}

type DetectionResult struct {
	IsDuplicate    bool             `json:"is_duplicate"`
	ExistingRecord *ProcessedRecord `json:"existing_record,omitempty"`
	Similarity     float64          `json:"similarity"`
	Reason         string           `json:"reason"`
}

type DuplicateEntry struct {
	Timestamp  time.Time        `json:"timestamp"`
	Item       ContentItem      `json:"item"`
	Similarity float64          `json:"similarity"`
	Reason     string           `json:"reason"`
	Matched    *ProcessedRecord `json:"matched,omitempty"`
}

type FilterResult struct {
	UniqueItems []ContentItem    `json:"unique_items"`
	Duplicates  []DuplicateEntry `json:"duplicates"`
}

type DetectionStats struct {
	TotalProcessed     int            `json:"total_processed"`
	DuplicatesDetected int            `json:"duplicates_detected"`
	Sources            []string       `json:"sources"`
	AvgTimesProcessed  float64        `json:"avg_times_processed"`
	DailyActivity      map[string]int `json:"daily_activity"`
}
