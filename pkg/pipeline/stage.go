package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gammazero/workerpool"
)

// task はフェーズ内の1件の処理です。label はログと進捗表示に使います。
type task struct {
	label string
	run   func(ctx context.Context) error
}

// runStage は tasks を最大 size 並列で実行し、全ての結果を集めます。
// size が 1 の場合は投入順にその場で実行します。
// 失敗が起きた時点でまだ開始していないタスクは実行されません。実行中のタスクは中断しません。
func runStage(ctx context.Context, stage string, size int, tasks []task) error {
	if len(tasks) == 0 {
		return nil
	}
	slog.InfoContext(ctx, "フェーズを開始します", "stage", stage, "tasks", len(tasks), "workers", size)

	var (
		mu     sync.Mutex
		errs   []error
		failed atomic.Bool
	)
	exec := func(t task) {
		if failed.Load() || ctx.Err() != nil {
			slog.DebugContext(ctx, "先行タスクの失敗によりスキップします", "stage", stage, "task", t.label)
			return
		}
		if err := t.run(ctx); err != nil {
			failed.Store(true)
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	}

	if size <= 1 {
		for _, t := range tasks {
			exec(t)
		}
	} else {
		wp := workerpool.New(size)
		for _, t := range tasks {
			wp.Submit(func() { exec(t) })
		}
		wp.StopWait()
	}

	if len(errs) > 0 {
		return newStageBatch(stage, errs)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}
