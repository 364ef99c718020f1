package parsers

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonforge/server/internal/agent/model"
	errx "github.com/lessonforge/server/internal/core/error"
)

func strPtr(s string) *string { return &s }

func sampleStoryboard() model.Storyboard {
	return model.Storyboard{Scenes: []model.StoryboardScene{
		{
			SceneNumber: 1,
			AudioText:   "Photosynthesis turns light into sugar.",
			Visual:      model.Visual{Type: model.VisualGeneratedImage, SearchQuery: "a leaf in sunlight"},
			TextOverlay: strPtr("Photosynthesis"),
		},
		{
			SceneNumber: 2,
			AudioText:   "Chlorophyll absorbs red and blue light.",
			Visual:      model.Visual{Type: model.VisualTitleCard, SearchQuery: "green gradient"},
		},
	}}
}

func TestParseStoryboardRoundTrip(t *testing.T) {
	want := sampleStoryboard()
	b, err := json.Marshal(want)
	require.NoError(t, err)

	got, err := Parse[model.Storyboard](string(b), StoryboardSchema)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParseRejectsInvalidPayloads(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantField string
	}{
		{
			name:      "enum violation",
			raw:       `{"scenes":[{"sceneNumber":1,"audioText":"a","visual":{"type":"hologram","searchQuery":"q"},"textOverlay":null}]}`,
			wantField: "/scenes/0/visual/type",
		},
		{
			name:      "missing required field",
			raw:       `{"scenes":[{"sceneNumber":1,"visual":{"type":"titleCard","searchQuery":"q"},"textOverlay":null}]}`,
			wantField: "/scenes/0",
		},
		{
			name:      "unknown field on closed object",
			raw:       `{"scenes":[{"sceneNumber":1,"audioText":"a","visual":{"type":"titleCard","searchQuery":"q"},"textOverlay":null,"mood":"calm"}]}`,
			wantField: "/scenes/0",
		},
		{
			name:      "wrong type",
			raw:       `{"scenes":[{"sceneNumber":"one","audioText":"a","visual":{"type":"titleCard","searchQuery":"q"},"textOverlay":null}]}`,
			wantField: "/scenes/0/sceneNumber",
		},
		{
			name:      "not json",
			raw:       `scenes: 1`,
			wantField: "/",
		},
		{
			name:      "trailing data",
			raw:       `{"scenes":[]} {"scenes":[]}`,
			wantField: "/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse[model.Storyboard](tt.raw, StoryboardSchema)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errx.ErrSchemaValidation), "got %v", err)
			assert.Equal(t, errx.KindSchemaValidation, errx.KindOf(err))
			assert.Contains(t, errx.FieldPath(err), tt.wantField)
			assert.Equal(t, model.Storyboard{}, got, "no partially populated value")
		})
	}
}

func TestParseEmptyPayload(t *testing.T) {
	for _, raw := range []string{"", "   \n\t"} {
		_, err := Parse[model.Storyboard](raw, StoryboardSchema)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errx.ErrEmptyProviderResponse))
	}
}

func TestParseStripsCodeFence(t *testing.T) {
	raw := "```json\n{\"sections\":[{\"order\":1,\"content\":\"Intro\"}]}\n```"
	got, err := Parse[model.ScriptDraft](raw, ScriptSchema)
	require.NoError(t, err)
	require.Len(t, got.Sections, 1)
	assert.Equal(t, "Intro", got.Sections[0].Content)
}

func TestReflectedScriptSchema(t *testing.T) {
	assert.True(t, ScriptSchema.Closed())
	assert.NotContains(t, ScriptSchema.Definition, "$schema")

	_, err := Parse[model.ScriptDraft](`{"sections":[{"order":1}]}`, ScriptSchema)
	require.Error(t, err)
	assert.Contains(t, errx.FieldPath(err), "/sections/0")

	_, err = Parse[model.ScriptDraft](`{"sections":[]}`, ScriptSchema)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrSchemaValidation))
}

func TestOpenSchemaAcceptsUnknownFields(t *testing.T) {
	open := NewSchema("open", "v1", "", map[string]any{
		"type":       "object",
		"properties": map[string]any{"title": map[string]any{"type": "string"}},
		"required":   []any{"title"},
	})
	assert.False(t, open.Closed())

	type titled struct {
		Title string `json:"title"`
	}
	got, err := Parse[titled](`{"title":"Cells","extra":true}`, open)
	require.NoError(t, err)
	assert.Equal(t, "Cells", got.Title)
}

func TestValidateStoryboard(t *testing.T) {
	mk := func(nums ...int) model.Storyboard {
		sb := model.Storyboard{}
		for _, n := range nums {
			sb.Scenes = append(sb.Scenes, model.StoryboardScene{SceneNumber: n, AudioText: "x"})
		}
		return sb
	}

	t.Run("ordered and contiguous is accepted", func(t *testing.T) {
		scenes, err := ValidateStoryboard(mk(1, 2, 3))
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, []int{scenes[0].SceneNumber, scenes[1].SceneNumber, scenes[2].SceneNumber})
	})

	t.Run("out of order is rejected", func(t *testing.T) {
		_, err := ValidateStoryboard(mk(2, 1))
		require.Error(t, err)
		assert.True(t, errors.Is(err, errx.ErrSchemaValidation))
		assert.Equal(t, "/scenes/0/sceneNumber", errx.FieldPath(err))
	})

	t.Run("gap is rejected", func(t *testing.T) {
		_, err := ValidateStoryboard(mk(1, 2, 4))
		require.Error(t, err)
		assert.True(t, errors.Is(err, errx.ErrSchemaValidation))
		assert.Equal(t, "/scenes/2/sceneNumber", errx.FieldPath(err))
	})

	t.Run("duplicate is rejected", func(t *testing.T) {
		_, err := ValidateStoryboard(mk(1, 2, 2))
		require.Error(t, err)
		assert.Equal(t, "/scenes/2/sceneNumber", errx.FieldPath(err))
	})

	t.Run("not starting at one is rejected", func(t *testing.T) {
		_, err := ValidateStoryboard(mk(2, 3))
		require.Error(t, err)
	})

	t.Run("empty is rejected", func(t *testing.T) {
		_, err := ValidateStoryboard(model.Storyboard{})
		require.Error(t, err)
	})
}

func TestNormalizeScript(t *testing.T) {
	n := 0
	newID := func() string { n++; return string(rune('a' + n - 1)) }

	sections, err := NormalizeScript("lesson-1", model.ScriptDraft{Sections: []model.ScriptSectionDraft{
		{Order: 5, Content: " second "},
		{Order: 2, Content: "first"},
	}}, newID)
	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.Equal(t, "first", sections[0].Content)
	assert.Equal(t, 1, sections[0].Order)
	assert.Equal(t, "second", sections[1].Content)
	assert.Equal(t, 2, sections[1].Order)
	assert.Equal(t, "lesson-1", sections[1].LessonID)
	assert.Equal(t, "first\n\nsecond", JoinScript(sections))

	_, err = NormalizeScript("lesson-1", model.ScriptDraft{Sections: []model.ScriptSectionDraft{
		{Order: 1, Content: "a"}, {Order: 1, Content: "b"},
	}}, newID)
	assert.Error(t, err)
}
