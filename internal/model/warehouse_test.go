package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeoStatus_Retryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status GeoStatus
		want   bool
	}{
		{GeoStatusPending, true},
		{GeoStatusFailed, true},
		{GeoStatusEnriched, false},
		{GeoStatusRejected, false},
		{GeoStatusSkipped, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.status.Retryable())
		})
	}
}

func TestServerDimension_HasCoordinates(t *testing.T) {
	t.Parallel()

	lat, lon := -29.31, 27.48
	assert.False(t, ServerDimension{}.HasCoordinates())
	assert.False(t, ServerDimension{Latitude: &lat}.HasCoordinates())
	assert.True(t, ServerDimension{Latitude: &lat, Longitude: &lon}.HasCoordinates())
}
