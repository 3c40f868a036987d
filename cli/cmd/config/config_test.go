package config

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	pkgconfig "github.com/briefcase-hq/briefcase/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestFlattenConfig(t *testing.T) {
	t.Run("Should redact the API token and format durations", func(t *testing.T) {
		cfg := pkgconfig.Default()
		cfg.API.Token = "secret-token"
		flat, err := flattenConfig(cfg)
		require.NoError(t, err)
		assert.Equal(t, "[REDACTED]", flat["api.token"])
		assert.Equal(t, "3s", flat["monitor.poll_interval"])
		assert.Equal(t, "5", flat["monitor.stream.max_attempts"])
		assert.NotContains(t, flat, "monitor.stream")
	})
}

func TestFormatConfigOutput(t *testing.T) {
	cfg := pkgconfig.Default()
	cfg.Monitor.StallThreshold = 90 * time.Second
	t.Run("Should write JSON with sources", func(t *testing.T) {
		var buf bytes.Buffer
		sources := map[string]pkgconfig.SourceType{"monitor.stall_threshold": pkgconfig.SourceCLI}
		require.NoError(t, formatConfigOutput(&buf, cfg, sources, "json"))
		var out struct {
			Config  map[string]string `json:"config"`
			Sources map[string]string `json:"sources"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
		assert.Equal(t, "1m30s", out.Config["monitor.stall_threshold"])
		assert.Equal(t, "cli", out.Sources["monitor.stall_threshold"])
	})
	t.Run("Should write YAML", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, formatConfigOutput(&buf, cfg, nil, "yaml"))
		var out map[string]map[string]string
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))
		assert.Equal(t, "memory", out["config"]["bus.driver"])
	})
	t.Run("Should write a sorted table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, formatConfigOutput(&buf, cfg, nil, "table"))
		out := buf.String()
		assert.Contains(t, out, "KEY")
		assert.Less(t, bytes.Index(buf.Bytes(), []byte("api.base_url")), bytes.Index(buf.Bytes(), []byte("runtime.log_level")))
		assert.Contains(t, out, "http://localhost:8080")
	})
	t.Run("Should reject unknown formats", func(t *testing.T) {
		assert.ErrorContains(t, formatConfigOutput(&bytes.Buffer{}, cfg, nil, "xml"), "unsupported format")
	})
}

func TestCollectSources(t *testing.T) {
	t.Run("Should report where values came from", func(t *testing.T) {
		t.Setenv("MONITOR_POLL_INTERVAL", "7s")
		svc := pkgconfig.NewService()
		cfg, err := svc.Load(t.Context())
		require.NoError(t, err)
		sources := collectSources(svc, cfg)
		assert.Equal(t, pkgconfig.SourceEnv, sources["monitor.poll_interval"])
		assert.Equal(t, pkgconfig.SourceDefault, sources["monitor.recent_limit"])
	})
}

func TestOutputValidationJSON(t *testing.T) {
	t.Run("Should report a valid configuration", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, outputValidationJSON(&buf, nil))
		assert.JSONEq(t, `{"valid":true}`, buf.String())
	})
}
