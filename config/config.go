// Package config defines the JSON settings file for the mailsage service.
//
// The settings file is decoded into a defaults-initialized Config, so keys
// absent from the file keep their default values. Durations are expressed
// as strings ("15s", "2m") and parsed through Get* accessors that fall back
// to a documented default when the field is empty.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mailsage/mailsage/helpers"
)

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Addr          string `json:"addr"`            // Listen address (default: ":8080")
	SoftBudget    string `json:"soft_budget"`     // Soft end-to-end time budget per webhook (default: "60s")
	ShutdownGrace string `json:"shutdown_grace"`  // Graceful shutdown timeout (default: "5s")
	EnableMetrics bool   `json:"enable_metrics"`  // Expose /metrics (default: true via NewDefaultConfig)
}

// GetAddr returns the listen address.
func (s *ServerConfig) GetAddr() string {
	if s.Addr == "" {
		return ":8080"
	}
	return s.Addr
}

// GetSoftBudget parses the soft per-request time budget.
func (s *ServerConfig) GetSoftBudget() (time.Duration, error) {
	if s.SoftBudget == "" {
		return 60 * time.Second, nil
	}
	return helpers.ParseDuration(s.SoftBudget)
}

// GetShutdownGrace parses the graceful shutdown timeout.
func (s *ServerConfig) GetShutdownGrace() (time.Duration, error) {
	if s.ShutdownGrace == "" {
		return 5 * time.Second, nil
	}
	return helpers.ParseDuration(s.ShutdownGrace)
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Output string `json:"output"` // "stdout", "stderr", or a file path
	Format string `json:"format"` // "console" or "json"
	Level  string `json:"level"`  // "debug", "info", "warn", "error"
}

// WhitelistConfig holds sender authorization configuration.
type WhitelistConfig struct {
	Path     string `json:"path"`     // Path to the allowlist JSON file (required)
	Debounce string `json:"debounce"` // Quiet period before a file change triggers a reload (default: "500ms")
}

// GetDebounce parses the reload debounce window.
func (w *WhitelistConfig) GetDebounce() (time.Duration, error) {
	if w.Debounce == "" {
		return 500 * time.Millisecond, nil
	}
	return helpers.ParseDuration(w.Debounce)
}

// ContentConfig holds attachment processing configuration.
type ContentConfig struct {
	DownloadTimeout   string `json:"download_timeout"`    // Per-attachment download timeout (default: "15s")
	MaxAttachmentSize int64  `json:"max_attachment_size"` // Size ceiling in bytes (default: 10 MiB)
	RasterizerCommand string `json:"rasterizer_command"`  // External document rasterizer (default: "pdftoppm")
	RasterizerTimeout string `json:"rasterizer_timeout"`  // Rasterizer invocation timeout (default: "30s")
	MaxPagesPerDoc    int    `json:"max_pages_per_doc"`   // Page cap per rasterized document (default: 4)
}

// GetDownloadTimeout parses the per-attachment download timeout.
func (c *ContentConfig) GetDownloadTimeout() (time.Duration, error) {
	if c.DownloadTimeout == "" {
		return 15 * time.Second, nil
	}
	return helpers.ParseDuration(c.DownloadTimeout)
}

// GetMaxAttachmentSize returns the attachment size ceiling in bytes.
func (c *ContentConfig) GetMaxAttachmentSize() int64 {
	if c.MaxAttachmentSize <= 0 {
		return 10 * 1024 * 1024
	}
	return c.MaxAttachmentSize
}

// GetRasterizerCommand returns the external rasterizer binary.
func (c *ContentConfig) GetRasterizerCommand() string {
	if c.RasterizerCommand == "" {
		return "pdftoppm"
	}
	return c.RasterizerCommand
}

// GetRasterizerTimeout parses the rasterizer invocation timeout.
func (c *ContentConfig) GetRasterizerTimeout() (time.Duration, error) {
	if c.RasterizerTimeout == "" {
		return 30 * time.Second, nil
	}
	return helpers.ParseDuration(c.RasterizerTimeout)
}

// GetMaxPagesPerDoc returns the page cap for rasterized documents.
func (c *ContentConfig) GetMaxPagesPerDoc() int {
	if c.MaxPagesPerDoc <= 0 {
		return 4
	}
	return c.MaxPagesPerDoc
}

// AnalysisConfig holds the multimodal analysis endpoint configuration.
type AnalysisConfig struct {
	Endpoint  string `json:"endpoint"`   // Chat-completion endpoint URL (required)
	Model     string `json:"model"`      // Target model identifier (required)
	APIKey    string `json:"api_key"`    // Optional bearer token
	Timeout   string `json:"timeout"`    // Request timeout (default: "120s")
	MaxTokens int    `json:"max_tokens"` // Completion token ceiling (default: 2048)
}

// GetTimeout parses the analysis request timeout.
func (a *AnalysisConfig) GetTimeout() (time.Duration, error) {
	if a.Timeout == "" {
		return 120 * time.Second, nil
	}
	return helpers.ParseDuration(a.Timeout)
}

// GetMaxTokens returns the completion token ceiling.
func (a *AnalysisConfig) GetMaxTokens() int {
	if a.MaxTokens <= 0 {
		return 2048
	}
	return a.MaxTokens
}

// DeliveryConfig holds the transactional email provider configuration.
type DeliveryConfig struct {
	Endpoint     string `json:"endpoint"`      // Provider send URL (required)
	APIKey       string `json:"api_key"`       // Provider bearer token
	FromAddress  string `json:"from_address"`  // Envelope sender for feedback emails (required)
	Timeout      string `json:"timeout"`       // Per-attempt send timeout (default: "10s")
	RetryBackoff string `json:"retry_backoff"` // Fixed delay before the single retry (default: "2s")
}

// GetTimeout parses the per-attempt delivery timeout.
func (d *DeliveryConfig) GetTimeout() (time.Duration, error) {
	if d.Timeout == "" {
		return 10 * time.Second, nil
	}
	return helpers.ParseDuration(d.Timeout)
}

// GetRetryBackoff parses the fixed retry backoff delay.
func (d *DeliveryConfig) GetRetryBackoff() (time.Duration, error) {
	if d.RetryBackoff == "" {
		return 2 * time.Second, nil
	}
	return helpers.ParseDuration(d.RetryBackoff)
}

// DatabaseConfig holds the optional analytics persistence configuration.
// When the section is absent, persistence is disabled.
type DatabaseConfig struct {
	URL          string `json:"url"`           // pgx connection URL
	WriteTimeout string `json:"write_timeout"` // Timeout for the fire-and-forget insert (default: "5s")
}

// GetWriteTimeout parses the analytics write timeout.
func (d *DatabaseConfig) GetWriteTimeout() (time.Duration, error) {
	if d.WriteTimeout == "" {
		return 5 * time.Second, nil
	}
	return helpers.ParseDuration(d.WriteTimeout)
}

// DedupeConfig holds the duplicate-event lookup cache configuration.
type DedupeConfig struct {
	Enabled       bool   `json:"enabled"`
	TTL           string `json:"ttl"`            // Entry lifetime (default: "10m")
	SweepInterval string `json:"sweep_interval"` // Expired-entry sweep interval (default: "1m")
	MaxEntries    int    `json:"max_entries"`    // Cache size cap (default: 10000)
}

// GetTTL parses the dedupe entry lifetime.
func (d *DedupeConfig) GetTTL() (time.Duration, error) {
	if d.TTL == "" {
		return 10 * time.Minute, nil
	}
	return helpers.ParseDuration(d.TTL)
}

// GetSweepInterval parses the expired-entry sweep interval.
func (d *DedupeConfig) GetSweepInterval() (time.Duration, error) {
	if d.SweepInterval == "" {
		return time.Minute, nil
	}
	return helpers.ParseDuration(d.SweepInterval)
}

// GetMaxEntries returns the cache size cap.
func (d *DedupeConfig) GetMaxEntries() int {
	if d.MaxEntries <= 0 {
		return 10000
	}
	return d.MaxEntries
}

// Config is the root settings document.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Logging   LoggingConfig   `json:"logging"`
	Whitelist WhitelistConfig `json:"whitelist"`
	Content   ContentConfig   `json:"content"`
	Analysis  AnalysisConfig  `json:"analysis"`
	Delivery  DeliveryConfig  `json:"delivery"`
	Database  *DatabaseConfig `json:"database,omitempty"`
	Dedupe    DedupeConfig    `json:"dedupe"`
}

// NewDefaultConfig returns a Config populated with defaults.
func NewDefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			EnableMetrics: true,
		},
		Logging: LoggingConfig{
			Output: "stderr",
			Format: "console",
			Level:  "info",
		},
		Dedupe: DedupeConfig{
			Enabled: true,
		},
	}
}

// Load reads the JSON settings file at path into cfg. Keys absent from the
// file keep their current (default) values; unknown keys are ignored so
// newer files keep working with older binaries.
func Load(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read settings file '%s': %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse settings file '%s': %w", path, err)
	}
	return nil
}

// Validate checks the fields the pipeline cannot run without. Duration
// strings are parsed eagerly so a typo surfaces at startup, not on the
// first webhook.
func (c *Config) Validate() error {
	if c.Whitelist.Path == "" {
		return fmt.Errorf("whitelist.path is required")
	}
	if c.Analysis.Endpoint == "" {
		return fmt.Errorf("analysis.endpoint is required")
	}
	if c.Analysis.Model == "" {
		return fmt.Errorf("analysis.model is required")
	}
	if c.Delivery.Endpoint == "" {
		return fmt.Errorf("delivery.endpoint is required")
	}
	if c.Delivery.FromAddress == "" {
		return fmt.Errorf("delivery.from_address is required")
	}

	type durationField struct {
		name  string
		parse func() (time.Duration, error)
	}
	fields := []durationField{
		{"server.soft_budget", c.Server.GetSoftBudget},
		{"server.shutdown_grace", c.Server.GetShutdownGrace},
		{"whitelist.debounce", c.Whitelist.GetDebounce},
		{"content.download_timeout", c.Content.GetDownloadTimeout},
		{"content.rasterizer_timeout", c.Content.GetRasterizerTimeout},
		{"analysis.timeout", c.Analysis.GetTimeout},
		{"delivery.timeout", c.Delivery.GetTimeout},
		{"delivery.retry_backoff", c.Delivery.GetRetryBackoff},
		{"dedupe.ttl", c.Dedupe.GetTTL},
		{"dedupe.sweep_interval", c.Dedupe.GetSweepInterval},
	}
	if c.Database != nil {
		fields = append(fields, durationField{"database.write_timeout", c.Database.GetWriteTimeout})
	}
	for _, f := range fields {
		if _, err := f.parse(); err != nil {
			return fmt.Errorf("invalid %s: %w", f.name, err)
		}
	}
	return nil
}
