package scheduler

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	runs int
	err  error
}

func (j *stubJob) Name() string { return "stub" }

func (j *stubJob) Run() error {
	j.runs++
	return j.err
}

func TestAddJobRejectsBadSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	assert.Error(t, s.AddJob("not a schedule", &stubJob{}))
}

func TestAddJobAcceptsCronAndDescriptors(t *testing.T) {
	s := New(zerolog.Nop())
	require.NoError(t, s.AddJob(SnapshotSchedule, &stubJob{}))
	require.NoError(t, s.AddJob(PriceUpdateSchedule, &stubJob{}))
}

func TestRunNow(t *testing.T) {
	s := New(zerolog.Nop())

	job := &stubJob{}
	require.NoError(t, s.RunNow(job))
	assert.Equal(t, 1, job.runs)

	job.err = errors.New("boom")
	assert.Error(t, s.RunNow(job))
}
