package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/speedtrack/internal/model"
)

func TestNewScheduler_BadSpec(t *testing.T) {
	_, err := NewScheduler(NewPipeline(nil, nil), "every hour")
	assert.Error(t, err)

	_, err = NewScheduler(NewPipeline(nil, nil), "@every 1h")
	assert.NoError(t, err)

	_, err = NewScheduler(NewPipeline(nil, nil), "0 * * * *")
	assert.NoError(t, err)
}

func TestScheduler_RunImmediateSurvivesFailure(t *testing.T) {
	called := make(chan struct{})
	src := &mockSource{}
	src.On("Measure", mock.Anything).
		Run(func(mock.Arguments) { close(called) }).
		Return(nil, model.ErrSourceUnavailable).Once()

	p := NewPipeline(src, NewWriter(newTestWarehouse(t), maseruResolver(t), nil))
	s, err := NewScheduler(p, "@every 1h")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, true) }()

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("immediate cycle did not run")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	src.AssertExpectations(t)
}
