package nodes

import (
	"context"

	"github.com/cloudwego/eino/compose"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lessonforge/server/internal/agent/graph/conversations"
	"github.com/lessonforge/server/internal/agent/graph/parsers"
	"github.com/lessonforge/server/internal/agent/graph/prompts"
	"github.com/lessonforge/server/internal/agent/interaction"
	"github.com/lessonforge/server/internal/agent/model"
	logx "github.com/lessonforge/server/pkg/logger"
)

// NewStoryboardGeneratorNode turns the concatenated script into scenes
// numbered 1..N and registers them as pending on the run.
func NewStoryboardGeneratorNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, run *model.PipelineRun) (*model.PipelineRun, error) {
		ctx, span := startStage(ctx, NodeStoryboardGenerator, run)
		defer span.End()

		if _, err := advance(ctx, span, run, model.StageStoryboardPending); err != nil {
			return run, err
		}

		system, err := prompts.RenderStoryboardSystem(ctx, run.Request.LessonTitle)
		if err != nil {
			return fail(ctx, span, run, err)
		}
		input := model.ScriptInput{
			LessonTitle: run.Request.LessonTitle,
			Script:      parsers.JoinScript(run.Sections),
		}
		ictx, err := conversations.BuildContext(ctx, d.Windows, run.Request.ConversationID, input)
		if err != nil {
			return fail(ctx, span, run, err)
		}

		res, err := interaction.Interact[model.ScriptInput, model.Storyboard](
			ctx, d.Agent, ictx, parsers.StoryboardSchema, system,
			interaction.WithTimeout(d.callTimeout()),
			interaction.WithLabel("storyboard"),
		)
		if err != nil {
			return fail(ctx, span, run, err)
		}
		recordTurn(ctx, d, run, res)

		scenes, err := parsers.ValidateStoryboard(res.Content)
		if err != nil {
			return fail(ctx, span, run, err)
		}
		run.InitScenes(scenes)
		span.SetAttributes(attribute.Int("storyboard.scenes", len(scenes)))

		logx.Debug().Str("run_id", run.RunID).Int("scenes", len(scenes)).Msg("Storyboard ready")
		return advance(ctx, span, run, model.StageStoryboardReady)
	})
}
