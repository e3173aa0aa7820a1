package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cozy-crashes/crashlens/internal/report"
)

const crashFixture = "---- Minecraft Crash Report ----\r\n" +
	"[12:00:00] [main/INFO]: Loading Minecraft 1.20.1 with Fabric Loader 0.15.7\r\n" +
	"[12:00:01] [main/ERROR]: Could not execute entrypoint stage 'main' due to errors, provided by 'examplemod' at 'net.example.Init'!\r\n"

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func runRoot(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	cfg := writeFile(t, dir, "config.yaml", "general:\n  log_level: error\ntelemetry:\n  metrics_enabled: false\n")

	cmd := analyzeCMD(&cfg)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAnalyzeFileAndStdinJSON(t *testing.T) {
	dir := t.TempDir()
	crash := writeFile(t, dir, "crash.log", crashFixture)

	out, err := runRoot(t, "[12:00:00] [main/INFO]: Loading Minecraft 1.19.2 with Quilt Loader 0.17.6\n", "--json", crash, "-")
	require.NoError(t, err)

	var r report.Report
	require.NoError(t, json.Unmarshal([]byte(out), &r), out)
	assert.Equal(t, "cli", r.Source)
	require.Len(t, r.Logs, 2)

	stdinLog, fileLog := r.Logs[0], r.Logs[1]
	assert.Empty(t, stdinLog.URL)
	assert.Equal(t, "1.19.2", stdinLog.MinecraftVersion)
	assert.Equal(t, report.StatusOK, stdinLog.Status)

	assert.True(t, strings.HasPrefix(fileLog.URL, "file://"), fileLog.URL)
	assert.Equal(t, "Crash Log: Problems Found", fileLog.Title)
	require.Len(t, fileLog.Messages, 1)
	assert.Contains(t, fileLog.Messages[0], "examplemod")
	assert.Empty(t, fileLog.Content)
}

func TestAnalyzeTerminalOutput(t *testing.T) {
	dir := t.TempDir()
	crash := writeFile(t, dir, "crash.log", crashFixture)

	out, err := runRoot(t, "", "--no-color", crash)
	require.NoError(t, err)
	assert.Contains(t, out, "Crash Log: Problems Found file://")
	assert.Contains(t, out, "**Loader:** Fabric (`0.15.7`)")
	assert.Contains(t, out, "__**Messages**__")
}

func TestAnalyzeNothingInteresting(t *testing.T) {
	dir := t.TempDir()
	plain := writeFile(t, dir, "plain.txt", "hello\n")

	out, err := runRoot(t, "", "--no-color", plain)
	require.NoError(t, err)
	assert.Equal(t, "No logs with anything to report.\n", out)
}

func TestAnalyzeMissingFile(t *testing.T) {
	_, err := runRoot(t, "", filepath.Join(t.TempDir(), "missing.log"))
	assert.Error(t, err)
}
