package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/commit-streaks/internal/domain"
	apperrors "github.com/kurihiro0119/commit-streaks/internal/errors"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) TrackToday(ctx context.Context) (*domain.TrackResult, error) {
	j.runs.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("run without deadline")
	}
	if j.err != nil {
		return nil, j.err
	}
	return &domain.TrackResult{Date: domain.Day(time.Now())}, nil
}

func TestRunOnce(t *testing.T) {
	job := &countingJob{}
	s := New(job, "@daily", time.Second, nil)

	s.RunOnce()
	assert.Equal(t, int32(1), job.runs.Load())

	job.err = errors.New("source down")
	s.RunOnce()
	assert.Equal(t, int32(2), job.runs.Load())
}

func TestStartRejectsInvalidSpec(t *testing.T) {
	s := New(&countingJob{}, "every tuesday", 0, nil)
	err := s.Start()
	assert.True(t, apperrors.IsValidation(err))
}

func TestScheduledRuns(t *testing.T) {
	job := &countingJob{}
	s := New(job, "@every 1s", time.Second, nil)
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return job.runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}
