package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/lessonforge/server/internal/agent/graph/conversations"
	"github.com/lessonforge/server/internal/agent/graph/nodes"
	"github.com/lessonforge/server/internal/agent/graph/observers"
	"github.com/lessonforge/server/internal/agent/model"
	"github.com/lessonforge/server/internal/agent/providers"
	errx "github.com/lessonforge/server/internal/core/error"
	"github.com/lessonforge/server/internal/media"
	"github.com/lessonforge/server/internal/storage"
	logx "github.com/lessonforge/server/pkg/logger"
)

const graphName = "lesson_pipeline"

var tracer = otel.Tracer("github.com/lessonforge/server/internal/agent/graph")

// Runner executes one lesson generation per call. A Runner is safe for
// concurrent use; every call owns its own PipelineRun.
type Runner interface {
	Run(ctx context.Context, req model.LessonRequest) (*model.PipelineResult, error)
}

// LessonStatusStore records the outcome of a run on its lesson.
type LessonStatusStore interface {
	SetVideo(ctx context.Context, lessonID, status, videoRef string) error
}

// Config holds everything needed to compose the pipeline end-to-end.
// Registry, Engine and Store are required; the rest is optional.
type Config struct {
	Registry     *providers.Registry
	Pipeline     model.PipelineConfig
	Media        model.MediaConfig
	Conversation model.ConversationConfig

	ConversationRepo model.ConversationRepository
	Sections         nodes.SectionStore
	Lessons          LessonStatusStore

	Engine media.Engine
	Store  storage.AssetStore

	NewID      func() string
	NewBackOff func() backoff.BackOff
}

// GraphBuilder handles the construction of the lesson pipeline graph.
type GraphBuilder struct {
	deps  *nodes.Deps
	graph *compose.Graph[*model.PipelineRun, *model.PipelineRun]
}

type pipelineRunner struct {
	runnable   compose.Runnable[*model.PipelineRun, *model.PipelineRun]
	lessons    LessonStatusStore
	newID      func() string
	runTimeout time.Duration
}

// BuildPipeline resolves the configured providers, builds the graph and
// returns a Runner. Unknown provider names fail here, before any run.
func BuildPipeline(ctx context.Context, cfg Config) (Runner, error) {
	deps, err := newDeps(cfg)
	if err != nil {
		return nil, err
	}
	runnable, err := BuildGraph(ctx, deps)
	if err != nil {
		return nil, err
	}
	logx.Debug().
		Str("agent", cfg.Pipeline.AgentProvider).
		Str("image", cfg.Pipeline.ImageProvider).
		Str("narration", cfg.Pipeline.NarrationProvider).
		Msg("Lesson pipeline built successfully")
	return &pipelineRunner{
		runnable:   runnable,
		lessons:    cfg.Lessons,
		newID:      deps.NewID,
		runTimeout: cfg.Pipeline.RunTimeout,
	}, nil
}

func newDeps(cfg Config) (*nodes.Deps, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("provider registry is nil")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("media engine is nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("asset store is nil")
	}

	agent, err := providers.ResolveOrDefault[providers.StructuredAgent](cfg.Registry, providers.CapabilityStructuredAgent, cfg.Pipeline.AgentProvider)
	if err != nil {
		return nil, err
	}
	images, err := providers.ResolveOrDefault[providers.ImageGenerator](cfg.Registry, providers.CapabilityImageGeneration, cfg.Pipeline.ImageProvider)
	if err != nil {
		return nil, err
	}
	narration, err := providers.ResolveOrDefault[providers.NarrationGenerator](cfg.Registry, providers.CapabilityNarrationGeneration, cfg.Pipeline.NarrationProvider)
	if err != nil {
		return nil, err
	}

	scratch, err := storage.NewLocalStore(filepath.Join(cfg.Media.WorkDir, "runs"), "")
	if err != nil {
		return nil, err
	}

	var windows *conversations.WindowManager
	if cfg.ConversationRepo != nil {
		windows = conversations.NewWindowManager(cfg.ConversationRepo, cfg.Conversation)
	}

	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return &nodes.Deps{
		Agent:      agent,
		Images:     images,
		Narration:  narration,
		Windows:    windows,
		Sections:   cfg.Sections,
		Engine:     cfg.Engine,
		Scratch:    scratch,
		Store:      cfg.Store,
		Config:     cfg.Pipeline,
		NewID:      newID,
		NewBackOff: cfg.NewBackOff,
	}, nil
}

// BuildGraph constructs and returns the compiled pipeline graph.
func BuildGraph(ctx context.Context, deps *nodes.Deps) (compose.Runnable[*model.PipelineRun, *model.PipelineRun], error) {
	if deps == nil {
		return nil, fmt.Errorf("pipeline deps are nil")
	}
	if deps.Agent == nil || deps.Images == nil || deps.Narration == nil {
		return nil, fmt.Errorf("pipeline providers are not properly initialized")
	}

	builder := &GraphBuilder{
		deps:  deps,
		graph: compose.NewGraph[*model.PipelineRun, *model.PipelineRun](),
	}
	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}
	return builder.compile(ctx)
}

// addNodes adds the four stage nodes to the graph.
func (b *GraphBuilder) addNodes() error {
	stages := []struct {
		key    string
		lambda *compose.Lambda
	}{
		{nodes.NodeScriptGenerator, nodes.NewScriptGeneratorNode(b.deps)},
		{nodes.NodeStoryboardGenerator, nodes.NewStoryboardGeneratorNode(b.deps)},
		{nodes.NodeSceneGenerator, nodes.NewSceneGeneratorNode(b.deps)},
		{nodes.NodeAssembler, nodes.NewAssemblerNode(b.deps)},
	}
	for _, s := range stages {
		if err := b.graph.AddLambdaNode(s.key, s.lambda, compose.WithNodeName(s.key)); err != nil {
			logx.Error().Err(err).Str("node", s.key).Msg("Error adding node")
			return fmt.Errorf("error adding node %s: %w", s.key, err)
		}
	}
	return nil
}

// addEdges creates the main flow connections between nodes.
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeScriptGenerator},
		{nodes.NodeScriptGenerator, nodes.NodeStoryboardGenerator},
		{nodes.NodeStoryboardGenerator, nodes.NodeSceneGenerator},
		{nodes.NodeAssembler, compose.END},
	}
	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			logx.Error().Err(err).Str("from", edge[0]).Str("to", edge[1]).Msg("Error adding edge")
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches routes a run whose scene stage failed past the assembler.
func (b *GraphBuilder) addBranches() error {
	sceneBranch := compose.NewGraphBranch(
		nodes.NewSceneGeneratorCondition(),
		map[string]bool{
			nodes.NodeAssembler: true,
			compose.END:         true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeSceneGenerator, sceneBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding scene branch")
		return fmt.Errorf("error adding scene branch: %w", err)
	}
	return nil
}

// compile finalizes and compiles the graph.
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[*model.PipelineRun, *model.PipelineRun], error) {
	// four stages plus START and END; anything beyond is a wiring bug
	runnable, err := b.graph.Compile(ctx, compose.WithGraphName(graphName), compose.WithMaxRunSteps(10))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}
	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}

// Run drives one lesson through the pipeline. The returned result is never
// nil; for a Failed run the error is also returned.
func (r *pipelineRunner) Run(ctx context.Context, req model.LessonRequest) (*model.PipelineResult, error) {
	if strings.TrimSpace(req.LessonTitle) == "" && strings.TrimSpace(req.Outline) == "" {
		err := errx.New(errors.New("lesson title or outline required"), http.StatusBadRequest, "invalid lesson request")
		return &model.PipelineResult{Status: model.StageFailed, Err: err}, err
	}

	var cancel context.CancelFunc = func() {}
	if r.runTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.runTimeout)
	}
	defer cancel()

	run := model.NewPipelineRun(r.newID(), req)
	ctx, span := tracer.Start(ctx, "pipeline.run")
	span.SetAttributes(attribute.String("run.id", run.RunID), attribute.String("lesson.id", run.LessonID))
	defer span.End()

	log := logx.With("run_id", run.RunID, "lesson_id", run.LessonID)
	log.Info().Str("lesson_title", req.LessonTitle).Msg("Pipeline run started")

	_, err := r.runnable.Invoke(ctx, run, compose.WithCallbacks(observers.NewAllCallbacks()))
	if ctxErr := ctx.Err(); ctxErr != nil {
		run.Fail(errx.PipelineCancelled(ctxErr))
	}
	if err != nil {
		run.Fail(err)
	}
	if !run.Stage().Terminal() {
		run.Fail(fmt.Errorf("pipeline stopped at stage %s", run.Stage()))
	}

	result := &model.PipelineResult{Status: run.Stage(), Err: run.Err, Run: run}
	if result.Status != model.StageFailed {
		result.Manifest = run.Manifest()
	}
	r.recordLesson(context.WithoutCancel(ctx), run)

	span.SetAttributes(
		attribute.String("run.status", string(result.Status)),
		attribute.Int("run.tokens", run.TokenUsageTotal),
		attribute.Float64("run.cost_usd", run.CostUSD),
	)
	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Err.Error())
		log.Error().Err(result.Err).Str("status", string(result.Status)).Msg("Pipeline run failed")
		return result, result.Err
	}
	log.Info().
		Str("status", string(result.Status)).
		Str("video_ref", run.VideoRef).
		Int("tokens", run.TokenUsageTotal).
		Float64("cost_usd", run.CostUSD).
		Int("failed_scenes", len(run.Failures)).
		Msg("Pipeline run finished")
	return result, nil
}

// recordLesson writes the run outcome to the lesson row. Best effort: the
// run result stands even when the status cannot be stored.
func (r *pipelineRunner) recordLesson(ctx context.Context, run *model.PipelineRun) {
	if r.lessons == nil || run.LessonID == "" {
		return
	}
	if err := r.lessons.SetVideo(ctx, run.LessonID, string(run.Stage()), run.VideoRef); err != nil {
		logx.Warn().Err(err).Str("run_id", run.RunID).Str("lesson_id", run.LessonID).Msg("Failed to record lesson video status")
	}
}
