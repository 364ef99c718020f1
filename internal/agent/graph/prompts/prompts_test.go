package prompts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonforge/server/internal/agent/model"
)

func TestRenderScriptSystem(t *testing.T) {
	out, err := RenderScriptSystem(context.Background(), model.LessonRequest{
		CourseTitle: "Biology 101",
		LessonTitle: "Photosynthesis",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Course: Biology 101")
	assert.Contains(t, out, "Lesson: Photosynthesis")
	assert.NotContains(t, out, "Module:")
	assert.NotContains(t, out, "{{")
}

func TestRenderStoryboardSystem(t *testing.T) {
	out, err := RenderStoryboardSystem(context.Background(), "Photosynthesis")
	require.NoError(t, err)
	assert.Contains(t, out, "stockVideo, generatedImage, titleCard")
	assert.Contains(t, out, "between 5 and 20 seconds")
}
