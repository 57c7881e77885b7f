package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingTasks(n int, counter *atomic.Int32, fail func(i int) error) []task {
	tasks := make([]task, n)
	for i := range tasks {
		tasks[i] = task{label: fmt.Sprint(i), run: func(context.Context) error {
			counter.Add(1)
			if fail != nil {
				return fail(i)
			}
			return nil
		}}
	}
	return tasks
}

func TestRunStage_InlineKeepsOrderAndStopsOnFailure(t *testing.T) {
	var order []int
	tasks := make([]task, 5)
	for i := range tasks {
		tasks[i] = task{label: fmt.Sprint(i), run: func(context.Context) error {
			order = append(order, i)
			if i == 2 {
				return errors.New("boom")
			}
			return nil
		}}
	}

	err := runStage(context.Background(), StageRecognize, 1, tasks)

	var batch *ErrStageBatch
	require.True(t, errors.As(err, &batch))
	assert.Equal(t, []int{0, 1, 2}, order)
	assert.Equal(t, []string{"boom"}, batch.Details)
}

func TestRunStage_PoolRunsAllTasks(t *testing.T) {
	var n atomic.Int32
	require.NoError(t, runStage(context.Background(), StageSynth, 4, countingTasks(20, &n, nil)))
	assert.EqualValues(t, 20, n.Load())
}

func TestRunStage_PoolCollectsFailures(t *testing.T) {
	var n atomic.Int32
	start := make(chan struct{})
	tasks := make([]task, 3)
	for i := range tasks {
		tasks[i] = task{label: fmt.Sprint(i), run: func(context.Context) error {
			n.Add(1)
			<-start
			return fmt.Errorf("task %d failed", i)
		}}
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(start)
	}()

	err := runStage(context.Background(), StageSynth, 3, tasks)

	var batch *ErrStageBatch
	require.True(t, errors.As(err, &batch))
	assert.EqualValues(t, 3, n.Load(), "開始済みのタスクは中断しない")
	assert.Equal(t, 3, batch.TotalErrors)
	assert.Len(t, batch.Unwrap(), 3)
}

func TestRunStage_Empty(t *testing.T) {
	assert.NoError(t, runStage(context.Background(), StageSetup, 4, nil))
}

func TestReport_ErrorChain(t *testing.T) {
	var buf bytes.Buffer
	rep := NewReport(&buf)
	rep.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	inner := errors.New("connection refused")
	rep.Error("set volume to 1", &ErrRecognition{Resolved: "set volume to 1", WrappedErr: inner})

	out := buf.String()
	assert.Contains(t, out, "2026-01-02 03:04:05 ERROR: set volume to 1")
	assert.Contains(t, out, "*pipeline.ErrRecognition")
	assert.Contains(t, out, "  *errors.errorString: connection refused")
}
