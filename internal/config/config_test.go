package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archscore/internal/config"
	"archscore/internal/domain"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/v0", cfg.Server.BasePath)
	assert.Equal(t, "BALANCED", cfg.Evaluation.Preset)

	w, err := cfg.Weights()
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultWeights().Map(), w.Map())
}

func TestWeightsPresetThenOverrides(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
evaluation:
  preset: performance-focused
  weights:
    security: 3
`))
	require.NoError(t, err)
	w, err := cfg.Weights()
	require.NoError(t, err)
	assert.Equal(t, 2.0, w.Weight(domain.Latency))
	assert.Equal(t, 3.0, w.Weight(domain.Security))
	assert.Equal(t, 1.3, w.Weight(domain.Availability))
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"preset":        "evaluation:\n  preset: FASTEST\n",
		"weight":        "evaluation:\n  weights:\n    LATENCY: -1\n",
		"parameter":     "evaluation:\n  weights:\n    SPEED: 1\n",
		"level":         "log:\n  level: loud\n",
		"format":        "log:\n  format: xml\n",
		"watch":         "heuristics:\n  watch: true\n",
		"webhook url":   "webhooks:\n  - url: ftp://example.com\n",
		"webhook empty": "webhooks:\n  - url: \"\"\n",
		"base path":     "server:\n  base_path: v0\n",
	}
	for name, body := range cases {
		_, err := config.FromYAML([]byte(body))
		assert.Error(t, err, name)
	}
}

func TestLoadOptionalAndLoad(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	_, err = config.Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archscore init")

	require.NoError(t, os.WriteFile(config.Path(dir), []byte("heuristics:\n  file: table.yml\n"), 0o644))
	cfg, err = config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "table.yml"), cfg.HeuristicsPath(dir))
	assert.Equal(t, "", config.Default().HeuristicsPath(dir))
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"
	var buf bytes.Buffer
	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	out := buf.String()
	assert.False(t, strings.Contains(out, "hidden"))
	assert.Contains(t, out, `"msg":"shown"`)
}
