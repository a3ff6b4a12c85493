// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/citation-manager/internal/agent"
	"github.com/pdiddy/citation-manager/pkg/types"
)

// legacyEnv maps config keys to the environment names older deployments
// set without the CITATION_MANAGER_ prefix.
var legacyEnv = map[string]string{
	"render.style_dir": "CSL_STYLE_DIR",
	"llm.wrapper_host": "GEMINI_WRAPPER_HOST",
	"llm.wrapper_port": "GEMINI_WRAPPER_PORT",
	"pdf.time_budget":  "PDF_PROCESS_TIME_BUDGET",
}

func setDefaults(v *viper.Viper) {
	v.SetEnvPrefix("CITATION_MANAGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		prefixed := "CITATION_MANAGER_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, prefixed, env)
	}

	v.SetDefault("server.addr", ":5006")
	v.SetDefault("server.version", agent.Version)

	v.SetDefault("crossref.base_url", "https://api.crossref.org")
	v.SetDefault("crossref.timeout", "10s")
	v.SetDefault("crossref.user_agent", "citation-manager/"+agent.Version)
	v.SetDefault("crossref.rate_limit", 5.0)
	v.SetDefault("crossref.cache_ttl", "1h")

	v.SetDefault("llm.provider", string(types.LLMWrapper))
	v.SetDefault("llm.wrapper_host", "127.0.0.1")
	v.SetDefault("llm.wrapper_port", 5010)
	v.SetDefault("llm.timeout", "10s")
	v.SetDefault("llm.reference_timeout", "4s")

	v.SetDefault("render.builtin_style_dir", "csl")
	v.SetDefault("render.pandoc_binary", "pandoc")
	v.SetDefault("render.pandoc_image", "pandoc/core")
	v.SetDefault("render.timeout", "20s")

	v.SetDefault("store.path", "data/citation_ltm.db")
	v.SetDefault("store.default_limit", 50)

	v.SetDefault("pdf.time_budget", "150s")
	v.SetDefault("pdf.max_upload_bytes", 32<<20)

	v.SetDefault("backup.region", "us-east-1")
	v.SetDefault("backup.prefix", "citation-ltm/")
	v.SetDefault("backup.keep", 4)
}

// loadConfig reads the agent configuration from v, filling credentials
// from the secrets directory when config and environment leave them empty.
func loadConfig(v *viper.Viper) types.AgentConfig {
	cfg := types.AgentConfig{
		Server: types.ServerConfig{
			Addr:    v.GetString("server.addr"),
			APIKey:  loadedSecrets.Or("citation-manager-api-key", v.GetString("server.api_key")),
			Version: v.GetString("server.version"),
		},
		Crossref: types.CrossrefConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   durationOf(v, "crossref.timeout"),
				UserAgent: v.GetString("crossref.user_agent"),
			},
			BaseURL:   v.GetString("crossref.base_url"),
			Mailto:    loadedSecrets.Or("crossref-mailto", v.GetString("crossref.mailto")),
			RateLimit: v.GetFloat64("crossref.rate_limit"),
			CacheTTL:  durationOf(v, "crossref.cache_ttl"),
		},
		LLM: types.LLMConfig{
			Provider:         llmProvider(v.GetString("llm.provider")),
			WrapperHost:      v.GetString("llm.wrapper_host"),
			WrapperPort:      v.GetInt("llm.wrapper_port"),
			Model:            v.GetString("llm.model"),
			APIKey:           loadedSecrets.Or("openai-api-key", v.GetString("llm.api_key")),
			BaseURL:          v.GetString("llm.base_url"),
			Timeout:          durationOf(v, "llm.timeout"),
			ReferenceTimeout: durationOf(v, "llm.reference_timeout"),
		},
		Render: types.RenderConfig{
			StyleDir:        v.GetString("render.style_dir"),
			BuiltinStyleDir: v.GetString("render.builtin_style_dir"),
			PandocBinary:    v.GetString("render.pandoc_binary"),
			PandocImage:     v.GetString("render.pandoc_image"),
			Timeout:         durationOf(v, "render.timeout"),
		},
		Store: types.StoreConfig{
			Path:         v.GetString("store.path"),
			DefaultLimit: v.GetInt("store.default_limit"),
		},
		PDF: types.PDFConfig{
			TimeBudget:     durationOf(v, "pdf.time_budget"),
			MaxUploadBytes: v.GetInt64("pdf.max_upload_bytes"),
		},
		Backup: types.BackupConfig{
			Bucket:    v.GetString("backup.bucket"),
			Endpoint:  v.GetString("backup.endpoint"),
			Region:    v.GetString("backup.region"),
			AccessKey: loadedSecrets.Or("backup-access-key", v.GetString("backup.access_key")),
			SecretKey: loadedSecrets.Or("backup-secret-key", v.GetString("backup.secret_key")),
			Prefix:    v.GetString("backup.prefix"),
			Keep:      v.GetInt("backup.keep"),
		},
	}
	return cfg
}

// durationOf reads a duration. Bare numbers are seconds, matching the
// legacy PDF_PROCESS_TIME_BUDGET format.
func durationOf(v *viper.Viper, key string) time.Duration {
	s := strings.TrimSpace(v.GetString(key))
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return v.GetDuration(key)
}

func llmProvider(s string) types.LLMProvider {
	switch p := strings.ToLower(strings.TrimSpace(s)); p {
	case "", "none", "off":
		return types.LLMNone
	default:
		return types.LLMProvider(p)
	}
}
