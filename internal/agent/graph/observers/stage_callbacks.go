package observers

import (
	"context"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"

	"github.com/lessonforge/server/internal/agent/model"
	logx "github.com/lessonforge/server/pkg/logger"
)

type startKey struct{ name string }

// newStageHandler logs every pipeline stage node with its run, stage and elapsed time.
func newStageHandler() einocb.Handler {
	return einocb.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *einocb.RunInfo, input einocb.CallbackInput) context.Context {
			ev := logx.Info().Str("node", info.Name)
			if run, ok := input.(*model.PipelineRun); ok && run != nil {
				ev = ev.Str("run_id", run.RunID).Str("stage", string(run.Stage()))
			}
			ev.Msg("stage start")
			return context.WithValue(ctx, startKey{info.Name}, time.Now())
		}).
		OnEndFn(func(ctx context.Context, info *einocb.RunInfo, output einocb.CallbackOutput) context.Context {
			ev := logx.Info().Str("node", info.Name)
			if start, ok := ctx.Value(startKey{info.Name}).(time.Time); ok {
				ev = ev.Dur("elapsed", time.Since(start))
			}
			if run, ok := output.(*model.PipelineRun); ok && run != nil {
				ev = ev.Str("run_id", run.RunID).
					Str("stage", string(run.Stage())).
					Int("tokens", run.TokenUsageTotal)
			}
			ev.Msg("stage end")
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().Err(err).Str("node", info.Name).Msg("stage failed")
			return ctx
		}).
		Build()
}

func newGraphHandler() einocb.Handler {
	return einocb.NewHandlerBuilder().
		OnErrorFn(func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().Err(err).Str("graph", info.Name).Msg("pipeline graph aborted")
			return ctx
		}).
		Build()
}
