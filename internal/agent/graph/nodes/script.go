package nodes

import (
	"context"

	"github.com/cloudwego/eino/compose"

	"github.com/lessonforge/server/internal/agent/graph/conversations"
	"github.com/lessonforge/server/internal/agent/graph/parsers"
	"github.com/lessonforge/server/internal/agent/graph/prompts"
	"github.com/lessonforge/server/internal/agent/interaction"
	"github.com/lessonforge/server/internal/agent/model"
	logx "github.com/lessonforge/server/pkg/logger"
)

// NewScriptGeneratorNode asks the structured agent for the lesson script,
// normalizes section order and persists the sections when a store is set.
func NewScriptGeneratorNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, run *model.PipelineRun) (*model.PipelineRun, error) {
		ctx, span := startStage(ctx, NodeScriptGenerator, run)
		defer span.End()

		system, err := prompts.RenderScriptSystem(ctx, run.Request)
		if err != nil {
			return fail(ctx, span, run, err)
		}
		ictx, err := conversations.BuildContext(ctx, d.Windows, run.Request.ConversationID, run.Request)
		if err != nil {
			return fail(ctx, span, run, err)
		}

		res, err := interaction.Interact[model.LessonRequest, model.ScriptDraft](
			ctx, d.Agent, ictx, parsers.ScriptSchema, system,
			interaction.WithTimeout(d.callTimeout()),
			interaction.WithLabel("script"),
		)
		if err != nil {
			return fail(ctx, span, run, err)
		}
		recordTurn(ctx, d, run, res)

		sections, err := parsers.NormalizeScript(run.LessonID, res.Content, d.NewID)
		if err != nil {
			return fail(ctx, span, run, err)
		}
		if d.Sections != nil && run.LessonID != "" {
			if err := d.Sections.ReplaceForLesson(ctx, run.LessonID, sections); err != nil {
				return fail(ctx, span, run, err)
			}
		}
		run.Sections = sections

		logx.Debug().Str("run_id", run.RunID).Int("sections", len(sections)).Msg("Script ready")
		return advance(ctx, span, run, model.StageScriptReady)
	})
}
