package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/speedtrack/internal/model"
)

func TestRunIngest_FromFile(t *testing.T) {
	wh := openTestWarehouse(t, testConfig(t))
	p := offlinePipeline(t, wh)

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, os.WriteFile(path, reportJSON("r-1", "2024-03-01T10:00:00Z", 12_500_000), 0o644))

	var out bytes.Buffer
	require.NoError(t, runIngest(context.Background(), &out, p, path))
	assert.Contains(t, out.String(), "result r-1")
	assert.Contains(t, out.String(), "download 100.00 Mbps")
	assert.Contains(t, out.String(), "fact stored=true")

	// Same report again is a no-op.
	out.Reset()
	require.NoError(t, runIngest(context.Background(), &out, p, path))
	assert.Contains(t, out.String(), "fact stored=false")

	latest, err := wh.LatestMeasurement(context.Background())
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "r-1", latest.ResultID)
}

func TestRunIngest_MissingFile(t *testing.T) {
	wh := openTestWarehouse(t, testConfig(t))

	err := runIngest(context.Background(), &bytes.Buffer{}, offlinePipeline(t, wh), filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestRunIngest_NoSource(t *testing.T) {
	wh := openTestWarehouse(t, testConfig(t))

	err := runIngest(context.Background(), &bytes.Buffer{}, offlinePipeline(t, wh), "")
	assert.True(t, errors.Is(err, model.ErrSourceUnavailable))
}

func TestRunIngest_MalformedReport(t *testing.T) {
	wh := openTestWarehouse(t, testConfig(t))

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"result"`), 0o644))

	err := runIngest(context.Background(), &bytes.Buffer{}, offlinePipeline(t, wh), path)
	assert.True(t, errors.Is(err, model.ErrMalformedReport))
}
