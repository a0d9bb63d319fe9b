package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"romrando/engine"
)

func parse(t *testing.T, args ...string) (config, error) {
	t.Helper()
	flags := pflag.NewFlagSet("randod", pflag.ContinueOnError)
	addFlags(flags)
	require.NoError(t, flags.Parse(args))

	v, err := newViper(flags)
	require.NoError(t, err)
	return loadConfig(v)
}

func TestDefaults(t *testing.T) {
	cfg, err := parse(t)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:5000", cfg.Listen)
	assert.Equal(t, "uploads", cfg.UploadsDir)
	assert.Equal(t, "outputs", cfg.OutputsDir)
	assert.Equal(t, "randomizer/presets", cfg.PresetsDir)
	assert.Equal(t, "rnqs", cfg.PresetExt)
	assert.Equal(t, engine.DefaultEngine, cfg.Engine)
	assert.Equal(t, int64(1<<20), cfg.HashBytes)
	assert.Equal(t, int64(512<<20), cfg.MaxUpload)
	assert.Equal(t, []string{"gba", "gbc", "nds"}, cfg.Extensions)
	assert.Empty(t, cfg.CORSOrigins)
	assert.Empty(t, cfg.GRPCListen)
	assert.True(t, cfg.Metrics)
	assert.False(t, cfg.OpenBrowser)
	assert.False(t, cfg.Tray)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Contains(t, filepath.Base(cfg.LogFile), "randod-")
}

func TestFlagsAndEnvironment(t *testing.T) {
	t.Setenv("RANDOD_UPLOADS_DIR", "/srv/uploads")
	t.Setenv("RANDOD_JAVA_HEAP", "4096M")
	t.Setenv("RANDOD_CORS_ORIGINS", "http://a.example, http://b.example")

	cfg, err := parse(t, "--listen", "127.0.0.1:8080", "--hash-bytes", "64KiB", "--extensions", "gba", "--metrics=false", "--log-level", "DEBUG")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, "/srv/uploads", cfg.UploadsDir)
	assert.Equal(t, "4096M", cfg.Engine.Heap)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, int64(64<<10), cfg.HashBytes)
	assert.Equal(t, []string{"gba"}, cfg.Extensions)
	assert.False(t, cfg.Metrics)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestInvalidConfig(t *testing.T) {
	tests := map[string][]string{
		"listen":      {"--listen", "nope"},
		"hash bytes":  {"--hash-bytes", "lots"},
		"zero upload": {"--max-upload", "0"},
		"extensions":  {"--extensions", " , "},
		"uploads dir": {"--uploads-dir", ""},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parse(t, args...)
			assert.Error(t, err)
		})
	}
}

func TestBrowserURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:5000/", browserURL("0.0.0.0:5000"))
	assert.Equal(t, "http://127.0.0.1:80/", browserURL(":80"))
	assert.Equal(t, "http://[::1]:5000/", browserURL("[::1]:5000"))
	assert.Equal(t, "http://localhost:9000/", browserURL("localhost:9000"))
}

func TestHealthReflectsProvisioning(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg, err := parse(t)
	require.NoError(t, err)

	status := func() healthpb.HealthCheckResponse_ServingStatus {
		rsp, err := newHealthServer(fs, cfg).Check(context.Background(), &healthpb.HealthCheckRequest{Service: healthService})
		require.NoError(t, err)
		return rsp.Status
	}

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status())

	require.NoError(t, afero.WriteFile(fs, cfg.Engine.Jar, []byte("PK"), 0644))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status())

	require.NoError(t, fs.MkdirAll(cfg.PresetsDir, 0755))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status())
}
