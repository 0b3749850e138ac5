package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedian(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want float64
	}{
		{"empty", nil, 0},
		{"single", []float64{42}, 42},
		{"odd", []float64{100, 50, 80}, 80},
		{"even interpolates", []float64{10, 20}, 15},
		{"unsorted even", []float64{4, 1, 3, 2}, 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, median(tt.in), 1e-9)
		})
	}
}

func TestMedian_DoesNotReorderInput(t *testing.T) {
	in := []float64{3, 1, 2}
	median(in)
	assert.Equal(t, []float64{3, 1, 2}, in)
}

func TestBucketMedians(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	samples := []hourSample{
		{at: base.Add(11 * time.Hour / 10), download: 10, upload: 1, latency: 30},
		{at: base.Add(5 * time.Minute), download: 100, upload: 10, latency: 20},
		{at: base.Add(59 * time.Minute), download: 50, upload: 30, latency: 10},
		{at: base.Add(30 * time.Minute), download: 80, upload: 20, latency: 40},
		{at: base.Add(70 * time.Minute), download: 20, upload: 3, latency: 50},
	}

	got := bucketMedians(samples)
	require.Len(t, got, 2)

	assert.True(t, got[0].HourBucket.Equal(base))
	assert.Equal(t, 3, got[0].Samples)
	assert.InDelta(t, 80.0, got[0].MedianDownloadMbps, 1e-9)
	assert.InDelta(t, 20.0, got[0].MedianUploadMbps, 1e-9)
	assert.InDelta(t, 20.0, got[0].MedianLatencyMs, 1e-9)

	assert.True(t, got[1].HourBucket.Equal(base.Add(time.Hour)))
	assert.Equal(t, 2, got[1].Samples)
	assert.InDelta(t, 15.0, got[1].MedianDownloadMbps, 1e-9)
	assert.InDelta(t, 2.0, got[1].MedianUploadMbps, 1e-9)
	assert.InDelta(t, 40.0, got[1].MedianLatencyMs, 1e-9)
}

func TestBucketMedians_Empty(t *testing.T) {
	got := bucketMedians(nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
