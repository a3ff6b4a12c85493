// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pdiddy/citation-manager/internal/agent"
	"github.com/pdiddy/citation-manager/internal/secrets"
	"github.com/pdiddy/citation-manager/pkg/types"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	setDefaults(v)
	return v
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := loadConfig(newViper(t))

	assert.Equal(t, ":5006", cfg.Server.Addr)
	assert.Equal(t, agent.Version, cfg.Server.Version)
	assert.Equal(t, "https://api.crossref.org", cfg.Crossref.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Crossref.Timeout)
	assert.Equal(t, time.Hour, cfg.Crossref.CacheTTL)
	assert.InDelta(t, 5.0, cfg.Crossref.RateLimit, 0.001)
	assert.Equal(t, types.LLMWrapper, cfg.LLM.Provider)
	assert.Equal(t, "127.0.0.1", cfg.LLM.WrapperHost)
	assert.Equal(t, 5010, cfg.LLM.WrapperPort)
	assert.Equal(t, 4*time.Second, cfg.LLM.ReferenceTimeout)
	assert.Equal(t, "csl", cfg.Render.BuiltinStyleDir)
	assert.Equal(t, 20*time.Second, cfg.Render.Timeout)
	assert.Equal(t, "data/citation_ltm.db", cfg.Store.Path)
	assert.Equal(t, 150*time.Second, cfg.PDF.TimeBudget)
	assert.Equal(t, int64(32<<20), cfg.PDF.MaxUploadBytes)
	assert.Equal(t, 4, cfg.Backup.Keep)
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("CITATION_MANAGER_SERVER_ADDR", ":7000")
	t.Setenv("CITATION_MANAGER_LLM_PROVIDER", "none")
	t.Setenv("CSL_STYLE_DIR", "/legacy/styles")
	t.Setenv("GEMINI_WRAPPER_HOST", "wrapper.internal")
	t.Setenv("GEMINI_WRAPPER_PORT", "6000")
	t.Setenv("PDF_PROCESS_TIME_BUDGET", "30")

	cfg := loadConfig(newViper(t))
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, types.LLMNone, cfg.LLM.Provider)
	assert.Equal(t, "/legacy/styles", cfg.Render.StyleDir)
	assert.Equal(t, "wrapper.internal", cfg.LLM.WrapperHost)
	assert.Equal(t, 6000, cfg.LLM.WrapperPort)
	assert.Equal(t, 30*time.Second, cfg.PDF.TimeBudget)
}

func TestLoadConfig_PrefixedEnvWinsOverLegacy(t *testing.T) {
	t.Setenv("CSL_STYLE_DIR", "/legacy")
	t.Setenv("CITATION_MANAGER_RENDER_STYLE_DIR", "/current")

	assert.Equal(t, "/current", loadConfig(newViper(t)).Render.StyleDir)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "citation-manager.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  api_key: from-file
llm:
  provider: openai
  model: gpt-4o
pdf:
  time_budget: 45s
backup:
  bucket: snapshots
  keep: 7
`), 0o644))

	v := newViper(t)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg := loadConfig(v)
	assert.Equal(t, "from-file", cfg.Server.APIKey)
	assert.Equal(t, types.LLMOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 45*time.Second, cfg.PDF.TimeBudget)
	assert.Equal(t, "snapshots", cfg.Backup.Bucket)
	assert.Equal(t, 7, cfg.Backup.Keep)
}

func TestLoadConfig_Secrets(t *testing.T) {
	saved := loadedSecrets
	t.Cleanup(func() { loadedSecrets = saved })
	loadedSecrets = secrets.Secrets{
		"openai-api-key":    "sk-secret",
		"backup-access-key": "AKIA",
		"backup-secret-key": "shh",
		"crossref-mailto":   "ops@example.org",
	}
	t.Setenv("CITATION_MANAGER_BACKUP_ACCESS_KEY", "from-env")

	cfg := loadConfig(newViper(t))
	assert.Equal(t, "sk-secret", cfg.LLM.APIKey)
	assert.Equal(t, "from-env", cfg.Backup.AccessKey)
	assert.Equal(t, "shh", cfg.Backup.SecretKey)
	assert.Equal(t, "ops@example.org", cfg.Crossref.Mailto)
}

func TestBuild_CreatesStoreDirectory(t *testing.T) {
	cfg := loadConfig(newViper(t))
	cfg.Store.Path = filepath.Join(t.TempDir(), "nested", "data", "ltm.db")

	d, m, err := build(cfg, zap.NewNop(), nil, buildOpts{offline: true})
	require.NoError(t, err)
	t.Cleanup(d.Close)

	assert.Nil(t, m)
	require.NotNil(t, d.store)
	assert.Equal(t, cfg.Store.Path, d.store.Path())
	assert.FileExists(t, cfg.Store.Path)
}

func TestLLMProvider(t *testing.T) {
	assert.Equal(t, types.LLMNone, llmProvider(""))
	assert.Equal(t, types.LLMNone, llmProvider(" None "))
	assert.Equal(t, types.LLMWrapper, llmProvider("Wrapper"))
	assert.Equal(t, types.LLMOpenAI, llmProvider("openai"))
}

func TestParseDate(t *testing.T) {
	got, err := parseDate("since", "2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), got)

	got, err = parseDate("since", "")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = parseDate("until", "tomorrow")
	assert.ErrorContains(t, err, "--until")
}

func TestValidateCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"validate", "--json", "--secrets-dir", t.TempDir(),
		"--metadata", `{"title":"Deep learning","year":2015,"authors":["Yann LeCun"],"doi":"10.1038/nature14539"}`})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())

	var got struct {
		Metadata   types.Citation `json:"metadata"`
		Errors     []string       `json:"errors"`
		Confidence float64        `json:"confidence"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "Deep learning", got.Metadata.Title)
	assert.Empty(t, got.Errors)
	assert.Greater(t, got.Confidence, 0.0)
}
