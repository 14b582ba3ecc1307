package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseVars() map[string]string {
	return map[string]string{
		"PARAM_PREFIX": "/claims-agent",
		"POLICY_TABLE": "policies",
		"STATE_TABLE":  "claim-turns",
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(baseVars())
	require.NoError(t, err)

	require.Equal(t, "/api/v1", cfg.APIPrefix)
	require.Equal(t, BackendDynamoDB, cfg.MemoryBackend)
	require.Equal(t, "uploads/claims", cfg.UploadDir)
	require.Equal(t, "https://api.aimlapi.com/v1", cfg.LLMBaseURL)
	require.Equal(t, "openai/gpt-5-chat-latest", cfg.LLMModel)
	require.InDelta(t, 0.4, cfg.LLMTemperature, 1e-6)
	require.Equal(t, 2048, cfg.LLMMaxTokens)
	require.Equal(t, 3, cfg.MemoryMaxTurns)
	require.Equal(t, 15*time.Minute, cfg.MemoryMaxAge)
	require.Equal(t, 5*time.Second, cfg.StoreTimeout)
	require.Equal(t, 1, cfg.StoreRetries)
	require.Equal(t, 0, cfg.PersistRetries)
	require.Equal(t, 60*time.Second, cfg.CompletionTimeout)
	require.Equal(t, 1, cfg.CompletionRetries)
	require.Equal(t, 200*time.Millisecond, cfg.RetryBackoff)
	require.Equal(t, 5*time.Second, cfg.PolicyTimeout)
	require.False(t, cfg.SerializeTurns)
	require.False(t, cfg.ModerationEnabled)
	require.Equal(t, 2000, cfg.MaxMessageLength)
	require.Equal(t, 10<<20, cfg.MaxDocumentBytes)
	require.Equal(t, ":8080", cfg.DevAddr)
}

func TestLoadFrom_RequiredVariables(t *testing.T) {
	for _, key := range []string{"PARAM_PREFIX", "POLICY_TABLE"} {
		vars := baseVars()
		delete(vars, key)
		_, err := LoadFrom(vars)
		require.Error(t, err, key)
		require.Contains(t, err.Error(), key)
	}
}

func TestLoadFrom_BackendRequirements(t *testing.T) {
	vars := baseVars()
	delete(vars, "STATE_TABLE")
	_, err := LoadFrom(vars)
	require.ErrorContains(t, err, "STATE_TABLE")

	vars["MEMORY_BACKEND"] = "Postgres"
	_, err = LoadFrom(vars)
	require.ErrorContains(t, err, "DATABASE_URL")

	vars["DATABASE_URL"] = "postgres://localhost/claims"
	cfg, err := LoadFrom(vars)
	require.NoError(t, err)
	require.Equal(t, BackendPostgres, cfg.MemoryBackend)

	vars["MEMORY_BACKEND"] = "memory"
	_, err = LoadFrom(vars)
	require.NoError(t, err)

	vars["MEMORY_BACKEND"] = "redis"
	_, err = LoadFrom(vars)
	require.ErrorContains(t, err, "unknown MEMORY_BACKEND")
}

func TestLoadFrom_Overrides(t *testing.T) {
	vars := baseVars()
	vars["API_PREFIX"] = "claims/"
	vars["MEMORY_MAX_AGE"] = "1m"
	vars["SERIALIZE_TURNS"] = "true"
	vars["LLM_TEMPERATURE"] = "0"
	vars["DOCUMENTS_BUCKET"] = "  claim-docs "

	cfg, err := LoadFrom(vars)
	require.NoError(t, err)
	require.Equal(t, "/claims", cfg.APIPrefix)
	require.Equal(t, time.Minute, cfg.MemoryMaxAge)
	require.True(t, cfg.SerializeTurns)
	require.Zero(t, cfg.LLMTemperature)
	require.Equal(t, "claim-docs", cfg.DocumentsBucket)
}

func TestLoadFrom_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"LLM_MAX_TOKENS":     "0",
		"LLM_TEMPERATURE":    "3",
		"MEMORY_MAX_TURNS":   "0",
		"STORE_RETRIES":      "-1",
		"MAX_MESSAGE_LENGTH": "0",
		"MAX_DOCUMENT_BYTES": "-1",
		"MEMORY_MAX_AGE":     "soon",
	}
	for key, val := range cases {
		vars := baseVars()
		vars[key] = val
		_, err := LoadFrom(vars)
		require.Error(t, err, key)
	}
}

func TestCapForLambda(t *testing.T) {
	cfg, err := LoadFrom(baseVars())
	require.NoError(t, err)
	require.True(t, cfg.CapForLambda())
	require.Equal(t, LambdaMaxDocumentBytes, cfg.MaxDocumentBytes)
	require.False(t, cfg.CapForLambda())

	vars := baseVars()
	vars["MAX_DOCUMENT_BYTES"] = "1048576"
	cfg, err = LoadFrom(vars)
	require.NoError(t, err)
	require.False(t, cfg.CapForLambda())
	require.Equal(t, 1<<20, cfg.MaxDocumentBytes)
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		require.Equal(t, want, (&Config{LogLevel: in}).SlogLevel(), in)
	}
}
