package nodes

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cloudwego/eino/compose"

	"github.com/lessonforge/server/internal/agent/graph/conversations"
	"github.com/lessonforge/server/internal/agent/model"
	"github.com/lessonforge/server/internal/agent/providers"
	"github.com/lessonforge/server/internal/media"
	"github.com/lessonforge/server/internal/storage"
	logx "github.com/lessonforge/server/pkg/logger"
)

const (
	NodeScriptGenerator     = "ScriptGenerator"
	NodeStoryboardGenerator = "StoryboardGenerator"
	NodeSceneGenerator      = "SceneGenerator"
	NodeAssembler           = "Assembler"
)

// SectionStore persists the normalized script of a lesson.
type SectionStore interface {
	ReplaceForLesson(ctx context.Context, lessonID string, sections []model.ScriptSection) error
}

// Deps are the collaborators shared by every pipeline node. Adapters are
// resolved from the registry once, when the pipeline is built.
type Deps struct {
	Agent     providers.StructuredAgent
	Images    providers.ImageGenerator
	Narration providers.NarrationGenerator

	Windows  *conversations.WindowManager
	Sections SectionStore

	Engine media.Engine
	// Scratch holds per-run scene assets and intermediate renders on local
	// disk, where ffmpeg can read them.
	Scratch *storage.LocalStore
	// Store receives the final video and manifest.
	Store storage.AssetStore

	Config model.PipelineConfig

	NewID func() string
	// NewBackOff paces scene retries; defaults to exponential.
	NewBackOff func() backoff.BackOff
}

// NewSceneGeneratorCondition routes a run whose scene stage failed straight to END.
func NewSceneGeneratorCondition() func(context.Context, *model.PipelineRun) (string, error) {
	return func(ctx context.Context, run *model.PipelineRun) (string, error) {
		if run.Stage() == model.StageFailed {
			logx.Debug().Str("run_id", run.RunID).Msg("Routing to END - scene stage failed")
			return compose.END, nil
		}
		return NodeAssembler, nil
	}
}

func (d *Deps) callTimeout() time.Duration {
	return d.Config.CallTimeout
}
