package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func advanceTo(t *testing.T, r *PipelineRun, stages ...Stage) {
	t.Helper()
	for _, s := range stages {
		require.NoError(t, r.Advance(s), "advance to %s", s)
	}
}

func TestAdvanceRejectsSkippedStages(t *testing.T) {
	r := NewPipelineRun("run-1", LessonRequest{})
	assert.Error(t, r.Advance(StageStoryboardReady))
	assert.Equal(t, StageScriptPending, r.Stage())
}

func TestPartiallyCompletedOnlyAfterDegradedAssembly(t *testing.T) {
	r := NewPipelineRun("run-1", LessonRequest{})
	r.InitScenes([]StoryboardScene{{SceneNumber: 1}, {SceneNumber: 2}})
	advanceTo(t, r, StageScriptReady, StageStoryboardPending, StageStoryboardReady, StageScenesPending)

	r.RecordScene(SceneResult{SceneNumber: 1, Status: SceneCompleted}, nil)
	r.RecordScene(SceneResult{SceneNumber: 2, Status: SceneFailed}, errors.New("tts down"))
	r.Degraded = true

	assert.Error(t, r.Advance(StagePartiallyCompleted), "not reachable straight from ScenesPending")
	advanceTo(t, r, StageScenesReady, StageAssemblyPending)
	assert.Error(t, r.Advance(StageCompleted), "a degraded run never reports Completed")
	advanceTo(t, r, StagePartiallyCompleted)
	assert.True(t, r.Stage().Terminal())
}

func TestScenesReadyRequiresNoPendingScene(t *testing.T) {
	r := NewPipelineRun("run-1", LessonRequest{})
	r.InitScenes([]StoryboardScene{{SceneNumber: 1}, {SceneNumber: 2}})
	advanceTo(t, r, StageScriptReady, StageStoryboardPending, StageStoryboardReady, StageScenesPending)
	r.RecordScene(SceneResult{SceneNumber: 1, Status: SceneCompleted}, nil)

	assert.Error(t, r.Advance(StageScenesReady))
}

func TestFailKeepsFirstError(t *testing.T) {
	r := NewPipelineRun("run-1", LessonRequest{})
	first := errors.New("first")
	r.Fail(first)
	r.Fail(errors.New("second"))
	assert.Equal(t, StageFailed, r.Stage())
	assert.Equal(t, first, r.Err)
}

func TestFirstFailureIsLowestScene(t *testing.T) {
	r := NewPipelineRun("run-1", LessonRequest{})
	r.RecordScene(SceneResult{SceneNumber: 3, Status: SceneFailed}, errors.New("three"))
	r.RecordScene(SceneResult{SceneNumber: 1, Status: SceneFailed}, errors.New("one"))
	f, ok := r.FirstFailure()
	require.True(t, ok)
	assert.Equal(t, 1, f.SceneNumber)
}
