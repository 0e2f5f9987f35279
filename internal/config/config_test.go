package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Note: t.Parallel() is intentionally omitted in this package.
// These tests share process-global environment variables.

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("PINECONE_API_KEY", "pc-test-key")
	t.Setenv("PINECONE_INDEX_NAME", "docs")
	t.Setenv("PORT", "")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "pc-test-key", cfg.Pinecone.APIKey)
	assert.Equal(t, "docs", cfg.Pinecone.IndexName)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.True(t, cfg.Server.Debug)
	assert.Equal(t, int32(768), cfg.Pinecone.Index.Dimension)
	assert.Equal(t, "cosine", cfg.Pinecone.Index.Metric)
	assert.Equal(t, "aws", cfg.Pinecone.Index.Cloud)
	assert.Equal(t, "us-east-1", cfg.Pinecone.Index.Region)
	assert.True(t, cfg.Pinecone.WaitReady)
	assert.Equal(t, 5*time.Minute, cfg.Bootstrap.Timeout)
	assert.Equal(t, "vectorgate:bootstrap:docs", cfg.Bootstrap.LockKey)
	assert.False(t, cfg.Bootstrap.Redis.Enabled())
	assert.False(t, cfg.Bootstrap.NATS.Enabled())
	assert.Equal(t, "vectorgate.index.ready", cfg.Bootstrap.NATS.Subject)
	assert.Equal(t, "vectorgate", cfg.Telemetry.ServiceName)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRatio)
	assert.Equal(t, 30*time.Second, cfg.Telemetry.MetricInterval)
	assert.GreaterOrEqual(t, cfg.Bootstrap.LockTTL, cfg.Bootstrap.Timeout,
		"the default lock must outlive a full bootstrap run")
}

func TestLoad_LockTTLShorterThanTimeout(t *testing.T) {
	setRequired(t)
	t.Setenv("VECTORGATE_BOOTSTRAP_REDIS_HOST", "redis.internal")
	t.Setenv("VECTORGATE_BOOTSTRAP_LOCK_TTL", "1m")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock_ttl 1m0s is shorter than bootstrap timeout 5m0s")
}

func TestLoad_Port(t *testing.T) {
	tests := []struct {
		name    string
		port    string
		want    int
		wantErr bool
	}{
		{name: "empty falls back to 8000", port: "", want: 8000},
		{name: "numeric", port: "9090", want: 9090},
		{name: "another numeric", port: "3000", want: 3000},
		{name: "not a number", port: "notanumber", wantErr: true},
		{name: "out of range", port: "70000", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv("PORT", tc.port)

			cfg, err := Load("")
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, cfg.Server.Port)
		})
	}
}

func TestLoad_PortUnset(t *testing.T) {
	setRequired(t)
	// t.Setenv restores the original value on cleanup; unset it for this test.
	require.NoError(t, os.Unsetenv("PORT"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("PINECONE_API_KEY", "")
	t.Setenv("PINECONE_INDEX_NAME", "")
	t.Setenv("PORT", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PINECONE_API_KEY is required")
	assert.Contains(t, err.Error(), "PINECONE_INDEX_NAME is required")
}

func TestLoad_PrefixedEnvOverride(t *testing.T) {
	setRequired(t)
	t.Setenv("VECTORGATE_BOOTSTRAP_REDIS_HOST", "redis.internal")
	t.Setenv("VECTORGATE_BOOTSTRAP_NATS_URL", "nats://nats.internal:4222")
	t.Setenv("VECTORGATE_SERVER_DEBUG", "false")
	t.Setenv("VECTORGATE_PINECONE_STRICT_SPEC", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "redis.internal", cfg.Bootstrap.Redis.Host)
	assert.True(t, cfg.Bootstrap.Redis.Enabled())
	assert.Equal(t, "nats://nats.internal:4222", cfg.Bootstrap.NATS.URL)
	assert.False(t, cfg.Server.Debug)
	assert.True(t, cfg.Pinecone.StrictSpec)
}

func TestLoad_File(t *testing.T) {
	setRequired(t)

	path := filepath.Join(t.TempDir(), "vectorgate.yaml")
	body := `
pinecone:
  index:
    metric: dotproduct
    region: eu-west-1
bootstrap:
  lock_key: custom-lock
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dotproduct", cfg.Pinecone.Index.Metric)
	assert.Equal(t, "eu-west-1", cfg.Pinecone.Index.Region)
	assert.Equal(t, "custom-lock", cfg.Bootstrap.LockKey)
	assert.Equal(t, int32(768), cfg.Pinecone.Index.Dimension)
}

func TestLoad_InvalidFile(t *testing.T) {
	setRequired(t)
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 8000},
			Pinecone: PineconeConfig{
				APIKey:    "key",
				IndexName: "docs",
				Index:     IndexSpec{Dimension: 768, Metric: "cosine", Cloud: "aws", Region: "us-east-1"},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantSub string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad metric", mutate: func(c *Config) { c.Pinecone.Index.Metric = "manhattan" }, wantSub: "unsupported index metric"},
		{name: "bad cloud", mutate: func(c *Config) { c.Pinecone.Index.Cloud = "onprem" }, wantSub: "unsupported cloud"},
		{name: "zero dimension", mutate: func(c *Config) { c.Pinecone.Index.Dimension = 0 }, wantSub: "dimension must be positive"},
		{name: "empty region", mutate: func(c *Config) { c.Pinecone.Index.Region = "" }, wantSub: "region is required"},
		{name: "zero port", mutate: func(c *Config) { c.Server.Port = 0 }, wantSub: "out of range"},
		{name: "sample ratio above one", mutate: func(c *Config) { c.Telemetry.SampleRatio = 1.5 }, wantSub: "sample ratio"},
		{name: "negative sample ratio", mutate: func(c *Config) { c.Telemetry.SampleRatio = -0.1 }, wantSub: "sample ratio"},
		{
			name: "lock expires before bootstrap timeout",
			mutate: func(c *Config) {
				c.Bootstrap.Redis.Host = "redis"
				c.Bootstrap.Timeout = 5 * time.Minute
				c.Bootstrap.LockTTL = time.Minute
			},
			wantSub: "shorter than bootstrap timeout",
		},
		{
			name: "short lock ignored without redis",
			mutate: func(c *Config) {
				c.Bootstrap.Timeout = 5 * time.Minute
				c.Bootstrap.LockTTL = time.Minute
			},
		},
		{
			name: "lock matches timeout",
			mutate: func(c *Config) {
				c.Bootstrap.Redis.Host = "redis"
				c.Bootstrap.Timeout = 5 * time.Minute
				c.Bootstrap.LockTTL = 5 * time.Minute
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(c)
			err := c.Validate()
			if tc.wantSub == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantSub)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	t.Run("missing file is ignored", func(t *testing.T) {
		assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))
	})

	t.Run("empty path is ignored", func(t *testing.T) {
		assert.NoError(t, LoadDotEnv(""))
	})

	t.Run("does not override existing variables", func(t *testing.T) {
		t.Setenv("PINECONE_API_KEY", "from-env")
		t.Setenv("PINECONE_INDEX_NAME", "")
		require.NoError(t, os.Unsetenv("PINECONE_INDEX_NAME"))

		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("PINECONE_API_KEY=from-file\nPINECONE_INDEX_NAME=reports\n"), 0o600))

		require.NoError(t, LoadDotEnv(path))
		assert.Equal(t, "from-env", os.Getenv("PINECONE_API_KEY"))
		assert.Equal(t, "reports", os.Getenv("PINECONE_INDEX_NAME"))
	})
}
