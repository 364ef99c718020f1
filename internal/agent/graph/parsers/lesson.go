package parsers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lessonforge/server/internal/agent/model"
	errx "github.com/lessonforge/server/internal/core/error"
)

// Schema versions move together with the prompt templates in graph/prompts.
const (
	ScriptSchemaVersion     = "script.v1"
	StoryboardSchemaVersion = "storyboard.v1"
)

// ScriptSchema is reflected from model.ScriptDraft.
var ScriptSchema = SchemaFor[model.ScriptDraft](
	"lesson_script",
	ScriptSchemaVersion,
	"Narration script of one lesson split into ordered sections",
)

// StoryboardSchema is written by hand: textOverlay must be nullable and the
// visual type enumerated, which reflection does not express.
var StoryboardSchema = NewSchema(
	"lesson_storyboard",
	StoryboardSchemaVersion,
	"Ordered scenes pairing narration with a visual directive",
	map[string]any{
		"type": "object",
		"properties": map[string]any{
			"scenes": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"sceneNumber": map[string]any{
							"type":        "integer",
							"minimum":     1,
							"description": "1-based, contiguous scene number",
						},
						"audioText": map[string]any{
							"type":        "string",
							"minLength":   1,
							"description": "Narration spoken during the scene",
						},
						"visual": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"type": map[string]any{
									"type": "string",
									"enum": []any{
										string(model.VisualStockVideo),
										string(model.VisualGeneratedImage),
										string(model.VisualTitleCard),
									},
								},
								"searchQuery": map[string]any{
									"type":        "string",
									"minLength":   1,
									"description": "Prompt used to generate or find the visual",
								},
							},
							"required":             []any{"type", "searchQuery"},
							"additionalProperties": false,
						},
						"textOverlay": map[string]any{
							"type":        []any{"string", "null"},
							"description": "Optional on-screen text",
						},
					},
					"required":             []any{"sceneNumber", "audioText", "visual", "textOverlay"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"scenes"},
		"additionalProperties": false,
	},
)

// ValidateStoryboard checks that the payload lists scenes in order, numbered
// exactly 1..N. Out-of-order, duplicate and missing numbers are rejected
// with the path of the first offending scene.
func ValidateStoryboard(sb model.Storyboard) ([]model.StoryboardScene, error) {
	if len(sb.Scenes) == 0 {
		return nil, errx.SchemaValidation("/scenes", fmt.Errorf("storyboard has no scenes"))
	}
	for i, s := range sb.Scenes {
		want := i + 1
		if s.SceneNumber == want {
			continue
		}
		field := fmt.Sprintf("/scenes/%d/sceneNumber", i)
		if i > 0 && s.SceneNumber == sb.Scenes[i-1].SceneNumber {
			return nil, errx.SchemaValidation(field, fmt.Errorf("duplicate scene number %d", s.SceneNumber))
		}
		return nil, errx.SchemaValidation(field,
			fmt.Errorf("scenes must be ordered and contiguous from 1: expected %d, got %d", want, s.SceneNumber))
	}
	return append([]model.StoryboardScene(nil), sb.Scenes...), nil
}

// NormalizeScript turns a validated draft into persisted sections with
// unique, ordered positions. newID supplies section identifiers.
func NormalizeScript(lessonID string, draft model.ScriptDraft, newID func() string) ([]model.ScriptSection, error) {
	if len(draft.Sections) == 0 {
		return nil, errx.SchemaValidation("/sections", fmt.Errorf("script has no sections"))
	}
	drafts := append([]model.ScriptSectionDraft(nil), draft.Sections...)
	sort.SliceStable(drafts, func(i, j int) bool { return drafts[i].Order < drafts[j].Order })

	out := make([]model.ScriptSection, 0, len(drafts))
	for i, d := range drafts {
		if i > 0 && d.Order == drafts[i-1].Order {
			return nil, errx.SchemaValidation(fmt.Sprintf("/sections/%d/order", i), fmt.Errorf("duplicate section order %d", d.Order))
		}
		content := strings.TrimSpace(d.Content)
		if content == "" {
			return nil, errx.SchemaValidation(fmt.Sprintf("/sections/%d/content", i), fmt.Errorf("empty section content"))
		}
		out = append(out, model.ScriptSection{
			ID:       newID(),
			LessonID: lessonID,
			Content:  content,
			Order:    i + 1,
		})
	}
	return out, nil
}

// JoinScript concatenates sections in order for the storyboard call.
func JoinScript(sections []model.ScriptSection) string {
	ordered := append([]model.ScriptSection(nil), sections...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })
	var b strings.Builder
	for i, s := range ordered {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(s.Content)
	}
	return b.String()
}
