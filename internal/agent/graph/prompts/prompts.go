package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/lessonforge/server/internal/agent/model"
)

// Template versions move together with the schemas in graph/parsers.
const (
	ScriptPromptVersion     = "script.v1"
	StoryboardPromptVersion = "storyboard.v1"
)

//go:embed template/script_prompt.txt
var scriptSystemPrompt string

//go:embed template/storyboard_prompt.txt
var storyboardSystemPrompt string

// RenderScriptSystem renders the script generation system prompt via the
// Eino prompt component, which also emits prompt callbacks.
func RenderScriptSystem(ctx context.Context, req model.LessonRequest) (string, error) {
	return render(ctx, "script", scriptSystemPrompt, map[string]any{
		"CourseTitle":  strings.TrimSpace(req.CourseTitle),
		"ModuleTitle":  strings.TrimSpace(req.ModuleTitle),
		"LessonTitle":  strings.TrimSpace(req.LessonTitle),
		"SectionWords": 120,
	})
}

// RenderStoryboardSystem renders the storyboard generation system prompt.
func RenderStoryboardSystem(ctx context.Context, lessonTitle string) (string, error) {
	return render(ctx, "storyboard", storyboardSystemPrompt, map[string]any{
		"LessonTitle":     strings.TrimSpace(lessonTitle),
		"MinSceneSeconds": 5,
		"MaxSceneSeconds": 20,
		"VisualTypes": strings.Join([]string{
			string(model.VisualStockVideo),
			string(model.VisualGeneratedImage),
			string(model.VisualTitleCard),
		}, ", "),
	})
}

func render(ctx context.Context, name, tpl string, vars map[string]any) (string, error) {
	t := prompt.FromMessages(schema.GoTemplate, schema.SystemMessage(tpl))
	msgs, err := t.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("%s prompt render: %w", name, err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("%s prompt render: empty result", name)
	}
	return strings.TrimSpace(msgs[0].Content), nil
}
