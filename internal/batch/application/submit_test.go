package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claim-batch/internal/batch/application"
	batch "claim-batch/internal/batch/domain"
)

type stubRunner struct {
	mu   sync.Mutex
	cmds []application.RunCommand
	err  error
}

func (r *stubRunner) Run(ctx context.Context, cmd application.RunCommand) (*application.RunSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd)
	if r.err != nil {
		return nil, r.err
	}
	return &application.RunSummary{}, nil
}

func TestLegacySubmitError_Format(t *testing.T) {
	assert.Equal(t, "ProcessBatchSubmitError 1: General fault", application.NewLegacySubmitError(1, "").Error())
	assert.Equal(t, "ProcessBatchSubmitError 2: Already run before", application.NewLegacySubmitError(2, "").Error())
	assert.Equal(t, "ProcessBatchSubmitError -1: boom", application.NewLegacySubmitError(-1, "boom").Error())
}

func TestSubmit_MapsOutcomes(t *testing.T) {
	ctx := context.Background()
	key := batch.NewRunKey(2024, 3, nil)

	cases := []struct {
		name string
		err  error
		want []string
	}{
		{name: "success", want: []string{}},
		{name: "already run", err: batch.NewAlreadyRun(key), want: []string{"ProcessBatchSubmitError 2: Already run before"}},
		{name: "processing", err: batch.NewProcessingError(errors.New("db down")), want: []string{"ProcessBatchSubmitError 1: General fault"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runner := &stubRunner{err: tc.err}
			got := application.NewSubmitService(runner).Submit(ctx, 7, nil, 2024, 3)
			assert.Equal(t, tc.want, got)
			require.Len(t, runner.cmds, 1)
			assert.Equal(t, int64(7), runner.cmds[0].AuditUserID)
		})
	}

	runner := &stubRunner{err: batch.NewInvalidCommand("month %d out of range", 13)}
	got := application.NewSubmitService(runner).Submit(ctx, 7, nil, 2024, 13)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "ProcessBatchSubmitError -1:")
	assert.Contains(t, got[0], "month 13 out of range")
}

func TestScheduler_RunOnceTargetsPreviousMonth(t *testing.T) {
	runner := &stubRunner{}
	sched := application.NewScheduler(runner, application.SchedulerConfig{
		DayOfMonth:  5,
		At:          "02:00",
		Locations:   []int64{0, 7},
		AuditUserID: 1,
	}, nil)

	completed := sched.RunOnce(context.Background(), time.Date(2024, time.January, 5, 2, 0, 0, 0, time.UTC))
	assert.Equal(t, 2, completed)
	require.Len(t, runner.cmds, 2)

	assert.Nil(t, runner.cmds[0].LocationID)
	assert.Equal(t, 2023, runner.cmds[0].Year)
	assert.Equal(t, 12, runner.cmds[0].Month)
	require.NotNil(t, runner.cmds[1].LocationID)
	assert.Equal(t, int64(7), *runner.cmds[1].LocationID)
}

func TestScheduler_AlreadyRunIsNotCounted(t *testing.T) {
	runner := &stubRunner{err: batch.NewAlreadyRun(batch.NewRunKey(2024, 2, nil))}
	sched := application.NewScheduler(runner, application.SchedulerConfig{DayOfMonth: 1, At: "00:30"}, nil)

	completed := sched.RunOnce(context.Background(), time.Date(2024, time.March, 1, 0, 30, 0, 0, time.UTC))
	assert.Zero(t, completed)
	require.Len(t, runner.cmds, 1)
	assert.Equal(t, 2, runner.cmds[0].Month)
}

func TestSubmitCommand_ReturnsSummary(t *testing.T) {
	runner := &stubRunner{}
	loc := int64(5)
	summary, errs := application.NewSubmitService(runner).SubmitCommand(context.Background(), application.RunCommand{
		AuditUserID: 3,
		LocationID:  &loc,
		Month:       4,
		Year:        2024,
	})
	assert.Empty(t, errs)
	require.NotNil(t, summary)
	require.Len(t, runner.cmds, 1)
	assert.Equal(t, &loc, runner.cmds[0].LocationID)

	summary, errs = application.NewSubmitService(nil).SubmitCommand(context.Background(), application.RunCommand{})
	assert.Nil(t, summary)
	assert.Equal(t, []string{"ProcessBatchSubmitError -1: batch runner not configured"}, errs)
}
