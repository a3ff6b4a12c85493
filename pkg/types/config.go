package types

import "time"

// HTTPConfig holds shared HTTP settings used by clients that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "citation-manager/1.2 (mailto:ops@example.org)").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// CrossrefConfig holds settings for the Crossref registry client.
type CrossrefConfig struct {
	HTTPConfig `yaml:",inline"`

	// BaseURL is the registry API root (default "https://api.crossref.org").
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Mailto identifies the caller for Crossref's polite pool.
	Mailto string `json:"mailto,omitempty" yaml:"mailto,omitempty"`

	// RateLimit caps registry requests per second (default 5).
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit"`

	// CacheTTL is how long DOI lookups are cached in memory (default 1h).
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
}

// LLMProvider selects the backend used for LLM-assisted parsing.
type LLMProvider string

const (
	LLMNone    LLMProvider = ""
	LLMWrapper LLMProvider = "wrapper"
	LLMOpenAI  LLMProvider = "openai"
)

// LLMConfig holds settings for LLM-assisted citation parsing and style
// auditing.
type LLMConfig struct {
	// Provider selects the backend: wrapper (platform LLM agent) or openai.
	Provider LLMProvider `json:"provider" yaml:"provider"`

	// WrapperHost and WrapperPort locate the platform's LLM wrapper agent.
	WrapperHost string `json:"wrapper_host" yaml:"wrapper_host"`
	WrapperPort int    `json:"wrapper_port" yaml:"wrapper_port"`

	// Model is the model identifier for the openai backend (default gpt-4o-mini).
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// APIKey authenticates against the openai backend.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BaseURL overrides the openai endpoint for compatible servers.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Timeout bounds a single-citation parse (default 10s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// ReferenceTimeout bounds a per-reference parse during PDF uploads (default 4s).
	ReferenceTimeout time.Duration `json:"reference_timeout" yaml:"reference_timeout"`
}

// RenderConfig holds settings for CSL rendering.
type RenderConfig struct {
	// StyleDir is searched first for .csl files (CSL_STYLE_DIR).
	StyleDir string `json:"style_dir,omitempty" yaml:"style_dir,omitempty"`

	// BuiltinStyleDir is the bundled style directory (default "csl").
	BuiltinStyleDir string `json:"builtin_style_dir" yaml:"builtin_style_dir"`

	// PandocBinary is the citeproc processor on PATH (default "pandoc").
	PandocBinary string `json:"pandoc_binary" yaml:"pandoc_binary"`

	// PandocImage is the container image used when no local binary exists
	// (default "pandoc/core"). Empty disables the container fallback.
	PandocImage string `json:"pandoc_image" yaml:"pandoc_image"`

	// Timeout bounds one processor invocation (default 20s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// StoreConfig holds settings for the long-term citation store.
type StoreConfig struct {
	// Path is the SQLite database file (default "data/citation_ltm.db").
	Path string `json:"path" yaml:"path"`

	// DefaultLimit caps search results when the caller sets no limit (default 50).
	DefaultLimit int `json:"default_limit" yaml:"default_limit"`
}

// PDFConfig holds settings for reference extraction from uploaded PDFs.
type PDFConfig struct {
	// TimeBudget stops processing further references once exceeded
	// (PDF_PROCESS_TIME_BUDGET, default 150s).
	TimeBudget time.Duration `json:"time_budget" yaml:"time_budget"`

	// MaxUploadBytes rejects larger uploads (default 32 MiB).
	MaxUploadBytes int64 `json:"max_upload_bytes" yaml:"max_upload_bytes"`
}

// ServerConfig holds settings for the HTTP agent.
type ServerConfig struct {
	// Addr is the listen address (default ":5006").
	Addr string `json:"addr" yaml:"addr"`

	// APIKey, when set, is required in the X-API-KEY header.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Version is reported in response metadata.
	Version string `json:"version" yaml:"version"`
}

// BackupConfig holds settings for uploading store snapshots to S3-compatible
// object storage.
type BackupConfig struct {
	Bucket    string `json:"bucket" yaml:"bucket"`
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Region    string `json:"region" yaml:"region"`
	AccessKey string `json:"access_key,omitempty" yaml:"access_key,omitempty"`
	SecretKey string `json:"secret_key,omitempty" yaml:"secret_key,omitempty"`

	// Prefix is prepended to object keys (default "citation-ltm/").
	Prefix string `json:"prefix" yaml:"prefix"`

	// Keep is the number of snapshots retained after rotation (default 4).
	Keep int `json:"keep" yaml:"keep"`
}

// AgentConfig groups every component configuration for the agent.
type AgentConfig struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Crossref CrossrefConfig `json:"crossref" yaml:"crossref"`
	LLM      LLMConfig      `json:"llm" yaml:"llm"`
	Render   RenderConfig   `json:"render" yaml:"render"`
	Store    StoreConfig    `json:"store" yaml:"store"`
	PDF      PDFConfig      `json:"pdf" yaml:"pdf"`
	Backup   BackupConfig   `json:"backup" yaml:"backup"`
}
