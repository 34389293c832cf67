package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel   string           `json:"log_level" yaml:"log_level"`
	Ingest     IngestConfig     `json:"ingest" yaml:"ingest"`
	Detection  DetectionConfig  `json:"detection" yaml:"detection"`
	Sources    SourcesConfig    `json:"sources" yaml:"sources"`
	API        APIConfig        `json:"api" yaml:"api"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics"`
	Duplicates DuplicatesConfig `json:"duplicates" yaml:"duplicates"`
}

type IngestConfig struct {
	ChannelBuffer int             `json:"channel_buffer" yaml:"channel_buffer"`
	REST          RESTConfig      `json:"rest" yaml:"rest"`
	Kafka         KafkaConfig     `json:"kafka" yaml:"kafka"`
	FileTail      FileTailConfig  `json:"file_tail" yaml:"file_tail"`
	TCPStream     TCPStreamConfig `json:"tcp_stream" yaml:"tcp_stream"`
	RSS           RSSConfig       `json:"rss" yaml:"rss"`
	Parser        ParserConfig    `json:"parser" yaml:"parser"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type FileTailConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	StartAtEnd bool     `json:"start_at_end" yaml:"start_at_end"`
	Files      []string `json:"files" yaml:"files"`
}

type TCPStreamConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type RSSConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`
	Feeds        []FeedConfig  `json:"feeds" yaml:"feeds"`
}

type FeedConfig struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

type ParserConfig struct {
	Timezone      string `json:"timezone" yaml:"timezone"`
	DefaultSource string `json:"default_source" yaml:"default_source"`
}

type DetectionConfig struct {
	TitleSimilarityThreshold   float64       `json:"title_similarity_threshold" yaml:"title_similarity_threshold"`
	ContentSimilarityThreshold float64       `json:"content_similarity_threshold" yaml:"content_similarity_threshold"`
	TimeWindow                 time.Duration `json:"time_window" yaml:"time_window"`
	CacheTTL                   time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	RetentionDays              int           `json:"retention_days" yaml:"retention_days"`
	CleanupInterval            time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`
	MaxCandidates              int           `json:"max_candidates" yaml:"max_candidates"`
	LogCooldown                time.Duration `json:"log_cooldown" yaml:"log_cooldown"`
	Weights                    WeightsConfig `json:"weights" yaml:"weights"`
}

type WeightsConfig struct {
	Title   float64 `json:"title" yaml:"title"`
	Excerpt float64 `json:"excerpt" yaml:"excerpt"`
	URL     float64 `json:"url" yaml:"url"`
}

type SourcesConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	AllowOnly bool     `json:"allow_only" yaml:"allow_only"`
	Allow     []string `json:"allow" yaml:"allow"`
	Block     []string `json:"block" yaml:"block"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type MetricsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

type DuplicatesConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			REST:          RESTConfig{Enabled: true, Addr: ":8080"},
			Kafka:         KafkaConfig{Enabled: false},
			FileTail:      FileTailConfig{Enabled: false, StartAtEnd: true},
			TCPStream:     TCPStreamConfig{Enabled: false, Addr: ":9000"},
			RSS:           RSSConfig{Enabled: false, PollInterval: 15 * time.Minute},
			Parser:        ParserConfig{Timezone: "UTC", DefaultSource: "unknown"},
		},
		Detection: DetectionConfig{
			TitleSimilarityThreshold:   0.85,
			ContentSimilarityThreshold: 0.70,
			TimeWindow:                 24 * time.Hour,
			CacheTTL:                   10 * time.Minute,
			RetentionDays:              30,
			CleanupInterval:            1 * time.Hour,
			MaxCandidates:              1000,
			LogCooldown:                30 * time.Second,
			Weights:                    WeightsConfig{Title: 0.6, Excerpt: 0.3, URL: 0.1},
		},
		Sources: SourcesConfig{
			Enabled:   false,
			AllowOnly: false,
		},
		API:        APIConfig{Enabled: true, Addr: ":8081"},
		Storage:    StorageConfig{Enabled: true, Driver: "sqlite", DSN: "file:dupguard.db?_pragma=busy_timeout(5000)"},
		Metrics:    MetricsConfig{StoreLimit: 5000},
		Duplicates: DuplicatesConfig{StoreLimit: 1000},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
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

func applyDefaults(cfg *Config) {
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10000
	}
	if cfg.Ingest.Parser.Timezone == "" {
		cfg.Ingest.Parser.Timezone = "UTC"
	}
	if cfg.Ingest.Parser.DefaultSource == "" {
		cfg.Ingest.Parser.DefaultSource = "unknown"
	}
	if cfg.Ingest.RSS.PollInterval <= 0 {
		cfg.Ingest.RSS.PollInterval = 15 * time.Minute
	}
	if cfg.Detection.TitleSimilarityThreshold <= 0 {
		cfg.Detection.TitleSimilarityThreshold = 0.85
	}
	if cfg.Detection.ContentSimilarityThreshold <= 0 {
		cfg.Detection.ContentSimilarityThreshold = 0.70
	}
	if cfg.Detection.TimeWindow <= 0 {
		cfg.Detection.TimeWindow = 24 * time.Hour
	}
	if cfg.Detection.CacheTTL <= 0 {
		cfg.Detection.CacheTTL = 10 * time.Minute
	}
	if cfg.Detection.RetentionDays <= 0 {
		cfg.Detection.RetentionDays = 30
	}
	if cfg.Detection.MaxCandidates <= 0 {
		cfg.Detection.MaxCandidates = 1000
	}
	if cfg.Detection.Weights == (WeightsConfig{}) {
		cfg.Detection.Weights = WeightsConfig{Title: 0.6, Excerpt: 0.3, URL: 0.1}
	}
	if cfg.Metrics.StoreLimit <= 0 {
		cfg.Metrics.StoreLimit = 5000
	}
	if cfg.Duplicates.StoreLimit <= 0 {
		cfg.Duplicates.StoreLimit = 1000
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.TCPStream.Enabled && cfg.Ingest.TCPStream.Addr == "" {
		return errors.New("ingest.tcp_stream.addr required when ingest.tcp_stream.enabled is true")
	}
	if cfg.Ingest.FileTail.Enabled && len(cfg.Ingest.FileTail.Files) == 0 {
		return errors.New("ingest.file_tail.files required when ingest.file_tail.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Ingest.RSS.Enabled && len(cfg.Ingest.RSS.Feeds) == 0 {
		return errors.New("ingest.rss.feeds required when ingest.rss.enabled is true")
	}
	for _, feed := range cfg.Ingest.RSS.Feeds {
		if feed.Name == "" || feed.URL == "" {
			return errors.New("ingest.rss.feeds entries require name and url")
		}
	}
	if cfg.Detection.TitleSimilarityThreshold <= 0 || cfg.Detection.TitleSimilarityThreshold > 1 {
		return errors.New("detection.title_similarity_threshold must be in (0,1]")
	}
	if cfg.Detection.ContentSimilarityThreshold <= 0 || cfg.Detection.ContentSimilarityThreshold > 1 {
		return errors.New("detection.content_similarity_threshold must be in (0,1]")
	}
	w := cfg.Detection.Weights
	sum := w.Title + w.Excerpt + w.URL
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("detection.weights must sum to 1.0, got %.3f", sum)
	}
	if cfg.Detection.TimeWindow <= 0 {
		return errors.New("detection.time_window must be > 0")
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps an in-memory config with no backing file. Used when
// the process runs on defaults and by tests.
func NewStaticManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if m.path != "" {
		if err := Save(m.path, cfg); err != nil {
			return err
		}
	}
	m.cfg.Store(cfg)
	if m.path != "" {
		if info, err := os.Stat(m.path); err == nil {
			m.modTime = info.ModTime()
		}
	}
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
