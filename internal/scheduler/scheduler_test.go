package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aristath/treasury/internal/pipeline"
	testingpkg "github.com/aristath/treasury/internal/testing"
)

type countingJob struct {
	runs  atomic.Int32
	delay time.Duration
	err   error
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run() error {
	j.runs.Add(1)
	time.Sleep(j.delay)
	return j.err
}

func TestScheduler_AddJob(t *testing.T) {
	s := New(zerolog.Nop())

	require.NoError(t, s.AddJob("@every 1s", &countingJob{}))
	assert.Equal(t, 1, s.Len())

	err := s.AddJob("not a schedule", &countingJob{})
	assert.Error(t, err)
	assert.Equal(t, 1, s.Len())
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{err: errors.New("boom")}

	err := s.RunNow(job)
	assert.EqualError(t, err, "boom")
	assert.Equal(t, int32(1), job.runs.Load())
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{delay: 2500 * time.Millisecond}
	require.NoError(t, s.AddJob("* * * * * *", job))

	s.Start()
	time.Sleep(2200 * time.Millisecond)
	s.Stop()

	assert.Equal(t, int32(1), job.runs.Load())
}

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, doc string) (*pipeline.Result, error) {
	args := m.Called(ctx, doc)
	res, _ := args.Get(0).(*pipeline.Result)
	return res, args.Error(1)
}

type mockBackuper struct {
	mock.Mock
}

func (m *mockBackuper) Backup(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestIngestJob_Run(t *testing.T) {
	t.Run("committed period triggers backup", func(t *testing.T) {
		src := testingpkg.NewMockSource("doc")
		runner := &mockRunner{}
		runner.On("Run", mock.Anything, "doc").Return(&pipeline.Result{Period: "2024-01-02"}, nil)
		backup := &mockBackuper{}
		backup.On("Backup", mock.Anything).Return(errors.New("bucket gone"))

		job := NewIngestJob(src, runner, backup)
		assert.Equal(t, "ingest_holdings", job.Name())
		assert.NoError(t, job.Run(), "backup failure does not fail a committed run")

		runner.AssertExpectations(t)
		backup.AssertExpectations(t)
	})

	t.Run("duplicate period skips backup", func(t *testing.T) {
		runner := &mockRunner{}
		runner.On("Run", mock.Anything, "doc").Return(&pipeline.Result{Duplicate: true}, nil)
		backup := &mockBackuper{}

		job := NewIngestJob(testingpkg.NewMockSource("doc"), runner, backup)
		require.NoError(t, job.Run())
		backup.AssertNotCalled(t, "Backup", mock.Anything)
	})

	t.Run("fetch failure", func(t *testing.T) {
		src := testingpkg.NewMockSource("")
		src.SetError(errors.New("timeout"))
		runner := &mockRunner{}

		err := NewIngestJob(src, runner, nil).Run()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timeout")
		runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
	})

	t.Run("pipeline failure", func(t *testing.T) {
		runner := &mockRunner{}
		runner.On("Run", mock.Anything, "doc").Return(nil, errors.New("start marker not found"))

		err := NewIngestJob(testingpkg.NewMockSource("doc"), runner, nil).Run()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ingest failed")
	})
}

func TestIngestJob_RejectsOverlappingRun(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	runner := &mockRunner{}
	runner.On("Run", mock.Anything, "doc").
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(&pipeline.Result{Duplicate: true}, nil).Once()

	job := NewIngestJob(testingpkg.NewMockSource("doc"), runner, nil)
	assert.False(t, job.Running())

	done := make(chan error, 1)
	go func() { done <- job.Run() }()
	<-started

	assert.True(t, job.Running())
	assert.ErrorIs(t, job.Run(), ErrAlreadyRunning)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, job.Running())
	runner.AssertNumberOfCalls(t, "Run", 1)
}

func TestCheckHistoryDatabaseJob(t *testing.T) {
	job := NewCheckHistoryDatabaseJob(nil)
	assert.Equal(t, "check_history_database", job.Name())
	assert.NoError(t, job.Run())

	db := testingpkg.NewHistoryDB(t)
	job = NewCheckHistoryDatabaseJob(db)
	job.SetLogger(zerolog.Nop())
	assert.NoError(t, job.Run())
}

func TestCheckWALCheckpointsJob(t *testing.T) {
	job := NewCheckWALCheckpointsJob(nil)
	assert.Equal(t, "check_wal_checkpoints", job.Name())
	assert.NoError(t, job.Run())

	db := testingpkg.NewHistoryDB(t)
	job = NewCheckWALCheckpointsJob(db)
	job.SetLogger(zerolog.Nop())
	assert.NoError(t, job.Run())
}
