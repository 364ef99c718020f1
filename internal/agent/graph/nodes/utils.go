package nodes

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lessonforge/server/internal/agent/model"
	errx "github.com/lessonforge/server/internal/core/error"
	logx "github.com/lessonforge/server/pkg/logger"
)

const (
	DefaultMaxInFlight      = 4
	DefaultSceneMaxAttempts = 1
)

var tracer = otel.Tracer("github.com/lessonforge/server/internal/agent/graph/nodes")

// normalizeMaxInFlight returns a sane default when the provided value is invalid.
func normalizeMaxInFlight(n int) int {
	if n <= 0 {
		return DefaultMaxInFlight
	}
	return n
}

func normalizeAttempts(n int) uint {
	if n <= 0 {
		return DefaultSceneMaxAttempts
	}
	return uint(n)
}

func normalizeTolerance(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func (d *Deps) backOff() backoff.BackOff {
	if d.NewBackOff != nil {
		return d.NewBackOff()
	}
	return backoff.NewExponentialBackOff()
}

func startStage(ctx context.Context, node string, run *model.PipelineRun) (context.Context, trace.Span) {
	return tracer.Start(ctx, "pipeline."+node, trace.WithAttributes(
		attribute.String("run.id", run.RunID),
		attribute.String("lesson.id", run.LessonID),
	))
}

// fail marks the run Failed with err, or with PipelineCancelled when ctx is done.
func fail(ctx context.Context, span trace.Span, run *model.PipelineRun, err error) (*model.PipelineRun, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = errx.PipelineCancelled(ctxErr)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	run.Fail(err)
	return run, err
}

func advance(ctx context.Context, span trace.Span, run *model.PipelineRun, to model.Stage) (*model.PipelineRun, error) {
	if err := run.Advance(to); err != nil {
		return fail(ctx, span, run, err)
	}
	span.SetAttributes(attribute.String("run.stage", string(to)))
	return run, nil
}

// recordTurn keeps the turn on the run and appends it to the conversation.
// Persisting history is best effort: the run does not depend on it.
func recordTurn[T any](ctx context.Context, d *Deps, run *model.PipelineRun, res *model.InteractionResult[T]) {
	run.AddUsage(res.TokenUsage, res.CostUSD)
	run.AppendHistory(res.History)
	if err := d.Windows.AppendTurn(ctx, run.Request.ConversationID, res.History); err != nil {
		logTurnError(run, err)
	}
}

func sceneKey(runID string, scene int, kind, ext string) string {
	return fmt.Sprintf("%s/scene-%03d-%s%s", runID, scene, kind, ext)
}

func logTurnError(run *model.PipelineRun, err error) {
	logx.Warn().Err(err).
		Str("run_id", run.RunID).
		Str("conversation_id", run.Request.ConversationID).
		Msg("Failed to append conversation turn")
}
