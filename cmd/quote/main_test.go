package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"MarketHarvest/internal/model"
	"MarketHarvest/internal/recorder"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// writeConfig writes an offline config whose news feed points at feedURL.
func writeConfig(t *testing.T, feedURL string) (cfgPath, dbPath string) {
	t.Helper()
	t.Setenv("CONFIG_PATH", "")
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "harvest.db")
	cfgPath = filepath.Join(dir, "config.yaml")
	body := "quotes:\n  offline: true\n" +
		"news:\n  dir: " + filepath.Join(dir, "news") + "\n  timezone: UTC\n  feed_url: " + feedURL + "\n" +
		"database:\n  sqlite_path: " + dbPath + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))
	return cfgPath, dbPath
}

func TestRunQuote(t *testing.T) {
	cfgPath, _ := writeConfig(t, "http://127.0.0.1:0")
	var stdout, stderr bytes.Buffer

	code := run([]string{"-config", cfgPath, "-code", "600519", "-days", "10"}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	var series model.PriceSeries
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &series))
	assert.Equal(t, "static", series.Source)
	assert.Equal(t, model.MarketA, series.Market)
	assert.NotEmpty(t, series.Records)
}

func TestRunUsageAndBadInput(t *testing.T) {
	cfgPath, _ := writeConfig(t, "http://127.0.0.1:0")
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 2, run([]string{"-config", cfgPath}, &stdout, &stderr))
	assert.Equal(t, 2, run([]string{"-nope"}, &stdout, &stderr))
	assert.Equal(t, 1, run([]string{"-config", cfgPath, "-code", "???"}, &stdout, &stderr))
	assert.Empty(t, stdout.String())
}

func TestRunNewsClosesRecorder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":0,"data":{"roll_data":[{"title":"t","content":"one story","ctime":1760837400}]}}`))
	}))
	defer srv.Close()
	cfgPath, dbPath := writeConfig(t, srv.URL)
	var stdout, stderr bytes.Buffer

	require.Equal(t, 0, run([]string{"-config", cfgPath, "-news"}, &stdout, &stderr), stderr.String())

	var cycle struct {
		Outcome string
		Saved   int
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &cycle))
	assert.Equal(t, "ok", cycle.Outcome)
	assert.Equal(t, 1, cycle.Saved)

	rec, err := recorder.NewSQLiteRecorder(dbPath, zap.NewNop())
	require.NoError(t, err)
	defer rec.Close()
	cycles, err := rec.RecentNewsCycles(5)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.Equal(t, "ok", cycles[0].Outcome)
}
