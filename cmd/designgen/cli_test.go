package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signifo/designgen/internal/config"
	"github.com/signifo/designgen/internal/failure"
	"github.com/signifo/designgen/internal/testutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeConfig(t *testing.T, baseURL, apiKey string) string {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf("base-url: %q\napi-key: %q\nauth-dir: %q\nrequest-retry: 2\nretry-backoff: 1ms\ndefault-model: test/model\n",
		baseURL, apiKey, filepath.Join(dir, "auth"))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRepairCommand(t *testing.T) {
	response := "Here is your design:\n```json\n{\"metadata\": {\"theme_name\": \"Tide\"}, \"product\": {\"name\": \"Tote\",}}\n```"
	input := filepath.Join(t.TempDir(), "response.txt")
	require.NoError(t, os.WriteFile(input, []byte(response), 0o600))
	cfgPath := writeConfig(t, "https://openrouter.ai/api/v1", "")

	stdout, stderr, err := runCLI(t, "", "repair", "--config", cfgPath, input)
	require.NoError(t, err)
	assert.Contains(t, stdout, `"name": "Tote"`)
	assert.Contains(t, stderr, "strategy sections")

	stdout, _, err = runCLI(t, response, "repair", "--config", cfgPath, "-")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"theme_name": "Tide"`)
}

func TestRepairCommandKeepsArrayRoot(t *testing.T) {
	cfgPath := writeConfig(t, "https://openrouter.ai/api/v1", "")
	stdout, stderr, err := runCLI(t, `[{"metadata": {"theme_name": "A"}}, 2]`, "repair", "--config", cfgPath, "-")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "["))
	assert.Contains(t, stdout, `"theme_name": "A"`)
	assert.Contains(t, stderr, "strategy direct")
}

func TestApplyFlagOverridesKeepsDebugOnReload(t *testing.T) {
	previous := debugMode
	defer func() { debugMode = previous }()

	debugMode = true
	reloaded := config.Default()
	reloaded.Debug = false
	applyFlagOverrides(reloaded)
	assert.True(t, reloaded.Debug)

	debugMode = false
	fromFile := config.Default()
	fromFile.Debug = true
	applyFlagOverrides(fromFile)
	assert.True(t, fromFile.Debug)
}

func TestRepairCommandUnparsable(t *testing.T) {
	cfgPath := writeConfig(t, "https://openrouter.ai/api/v1", "")
	_, _, err := runCLI(t, "no json here at all", "repair", "--config", cfgPath, "-")
	require.Error(t, err)
	assert.Equal(t, failure.UnparsableResponse, failure.KindOf(err))
	assert.Equal(t, failure.UnparsableUserMessage(), renderError(err))
}

func TestGenerateCommandWritesThemeFile(t *testing.T) {
	var gotModel, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		if strings.Contains(buf.String(), `"model":"test/model"`) {
			gotModel = "test/model"
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(testutil.CompletionBody(`{"metadata":{"theme_name_romanized":"Tidal Pools"},"product":{"name":"Tote"}}`)))
	}))
	defer srv.Close()

	cfgPath := writeConfig(t, srv.URL, "sk-or-test-key")
	outDir := t.TempDir()
	_, stderr, err := runCLI(t, "", "generate", "--config", cfgPath,
		"--system", "You are a designer.", "--user", "A tote bag", "--out", outDir)
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-or-test-key", gotAuth)
	assert.Equal(t, "test/model", gotModel)
	assert.Contains(t, stderr, "Filename: tidal-pools.json")

	data, err := os.ReadFile(filepath.Join(outDir, "tidal-pools.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"theme_name_romanized": "Tidal Pools"`)
}

func TestGenerateCommandClientError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"No auth credentials found","code":401}}`))
	}))
	defer srv.Close()

	cfgPath := writeConfig(t, srv.URL, "sk-or-bad")
	_, _, err := runCLI(t, "", "generate", "--config", cfgPath, "--system", "s", "--user", "u")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, renderError(err), "Authentication failed")
	assert.NotContains(t, renderError(err), "No auth credentials found")
}

func TestGenerateCommandRequiresPrompts(t *testing.T) {
	cfgPath := writeConfig(t, "https://openrouter.ai/api/v1", "sk-or-test-key")
	_, _, err := runCLI(t, "", "generate", "--config", cfgPath, "--user", "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a system prompt is required")
}

func TestModelsCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/models/user":
			_, _ = w.Write([]byte(`{"data":[{"id":"vendor/paid","context_length":8192},{"id":"vendor/free:free","context_length":4096}]}`))
		default:
			_, _ = w.Write([]byte(`{"data":[{"id":"vendor/paid","pricing":{"prompt":"0.000003","completion":"0.000015"}},{"id":"vendor/free:free","pricing":{"prompt":"0","completion":"0"}}]}`))
		}
	}))
	defer srv.Close()

	cfgPath := writeConfig(t, srv.URL, "sk-or-test-key")
	stdout, _, err := runCLI(t, "", "models", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "vendor/paid")
	assert.Contains(t, stdout, "3.00")
	assert.Contains(t, stdout, "15.00")

	stdout, _, err = runCLI(t, "", "models", "--config", cfgPath, "--free")
	require.NoError(t, err)
	assert.NotContains(t, stdout, "vendor/paid")
	assert.Contains(t, stdout, "vendor/free:free")
}

func TestLoginCommandStoresVerifiedKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"vendor/model"}]}`))
	}))
	defer srv.Close()

	cfgPath := writeConfig(t, srv.URL, "")
	stdout, stderr, err := runCLI(t, "sk-or-v1-abcd6789\n", "login", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, stderr, "API key")
	assert.Contains(t, stdout, "sk-or********6789")
	assert.NotContains(t, stdout, "sk-or-v1-abcd6789")

	_, err = os.Stat(filepath.Join(filepath.Dir(cfgPath), "auth", "openrouter-key.json"))
	assert.NoError(t, err)
}

func TestRenderError(t *testing.T) {
	assert.Equal(t, "boom", renderError(fmt.Errorf("boom")))
	assert.Equal(t, "The generation was cancelled.", renderError(context.Canceled))
	assert.Contains(t, renderError(failure.NewClientError(http.StatusForbidden, "API call failed with status: 403")), "Permission Denied")
}

func TestPerMillion(t *testing.T) {
	assert.Equal(t, "free", perMillion("0"))
	assert.Equal(t, "free", perMillion(""))
	assert.Equal(t, "0.50", perMillion("0.0000005"))
}
