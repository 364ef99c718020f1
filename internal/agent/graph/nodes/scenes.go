package nodes

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cloudwego/eino/compose"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/lessonforge/server/internal/agent/model"
	"github.com/lessonforge/server/internal/agent/providers"
	errx "github.com/lessonforge/server/internal/core/error"
	logx "github.com/lessonforge/server/pkg/logger"
)

// NewSceneGeneratorNode generates an image and a narration track for every
// storyboard scene, at most MaxInFlight scenes at a time. A scene failure is
// recorded on the run and does not stop its siblings; the failure tolerance
// decides afterwards whether the run continues degraded or fails.
func NewSceneGeneratorNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, run *model.PipelineRun) (*model.PipelineRun, error) {
		ctx, span := startStage(ctx, NodeSceneGenerator, run)
		defer span.End()

		if _, err := advance(ctx, span, run, model.StageScenesPending); err != nil {
			return run, err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(normalizeMaxInFlight(d.Config.MaxInFlight))
		for _, scene := range run.Scenes {
			g.Go(func() error {
				res, err := d.generateScene(gctx, run.RunID, scene)
				if err != nil {
					res = model.SceneResult{SceneNumber: scene.SceneNumber, Status: model.SceneFailed}
					err = errx.SceneGeneration(scene.SceneNumber, err)
				}
				run.RecordScene(res, err)
				return nil
			})
		}
		_ = g.Wait()

		if ctx.Err() != nil {
			return fail(ctx, span, run, ctx.Err())
		}

		total := len(run.Scenes)
		failed := run.FailedCount()
		span.SetAttributes(attribute.Int("scenes.total", total), attribute.Int("scenes.failed", failed))
		if failed > 0 {
			first, _ := run.FirstFailure()
			if failed == total || failed > normalizeTolerance(d.Config.FailureTolerance) {
				logx.Error().Err(first.Err).
					Str("run_id", run.RunID).
					Int("failed", failed).
					Int("total", total).
					Int("tolerance", d.Config.FailureTolerance).
					Msg("Scene failures exceed tolerance")
				span.SetStatus(codes.Error, first.Reason)
				run.Fail(first.Err)
				return run, nil
			}
			logx.Warn().
				Str("run_id", run.RunID).
				Int("failed", failed).
				Int("total", total).
				Msg("Continuing with tolerated scene failures")
			run.Degraded = true
		}
		return advance(ctx, span, run, model.StageScenesReady)
	})
}

// generateScene produces the image and the narration of one scene
// concurrently. Each call is retried on its own up to SceneMaxAttempts times,
// so a narration retry never regenerates an image that already succeeded.
func (d *Deps) generateScene(ctx context.Context, runID string, scene model.StoryboardScene) (model.SceneResult, error) {
	ctx, span := tracer.Start(ctx, "pipeline.scene")
	span.SetAttributes(attribute.Int("scene.number", scene.SceneNumber), attribute.String("scene.visual", string(scene.Visual.Type)))
	defer span.End()

	var imageRef, audioRef string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ref, err := d.retryAsset(gctx, runID, scene, "image", d.generateImage)
		imageRef = ref
		return err
	})
	g.Go(func() error {
		ref, err := d.retryAsset(gctx, runID, scene, "narration", d.generateNarration)
		audioRef = ref
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.SceneResult{}, err
	}
	return model.SceneResult{
		SceneNumber: scene.SceneNumber,
		ImageRef:    imageRef,
		AudioRef:    audioRef,
		Status:      model.SceneCompleted,
	}, nil
}

type assetFunc func(ctx context.Context, runID string, scene model.StoryboardScene) (string, error)

func (d *Deps) retryAsset(ctx context.Context, runID string, scene model.StoryboardScene, kind string, gen assetFunc) (string, error) {
	attempt := 0
	ref, err := backoff.Retry(ctx, func() (string, error) {
		attempt++
		return gen(ctx, runID, scene)
	},
		backoff.WithBackOff(d.backOff()),
		backoff.WithMaxTries(normalizeAttempts(d.Config.SceneMaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logx.Warn().Err(err).
				Str("run_id", runID).
				Int("scene", scene.SceneNumber).
				Str("asset", kind).
				Int("attempt", attempt).
				Dur("retry_in", next).
				Msg("Scene asset generation failed, retrying")
		}),
	)
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("scene."+kind+".attempts", attempt))
	if err != nil {
		return "", fmt.Errorf("%s: %w", kind, err)
	}
	return ref, nil
}

func (d *Deps) generateImage(ctx context.Context, runID string, scene model.StoryboardScene) (string, error) {
	asset, err := d.Images.Generate(ctx, imagePrompt(scene), d.Config.ImageSize)
	if err != nil {
		return "", err
	}
	if asset == nil || len(asset.Data) == 0 {
		return "", errx.EmptyProviderResponse("image")
	}
	key := sceneKey(runID, scene.SceneNumber, "image", providers.ExtensionFor(asset.MIMEType))
	return d.Scratch.Put(ctx, key, bytes.NewReader(asset.Data))
}

func (d *Deps) generateNarration(ctx context.Context, runID string, scene model.StoryboardScene) (string, error) {
	asset, err := d.Narration.Generate(ctx, scene.AudioText, d.Config.Voice)
	if err != nil {
		return "", err
	}
	if asset == nil || len(asset.Data) == 0 {
		return "", errx.EmptyProviderResponse("narration")
	}
	key := sceneKey(runID, scene.SceneNumber, "narration", providers.ExtensionFor(asset.MIMEType))
	return d.Scratch.Put(ctx, key, bytes.NewReader(asset.Data))
}

// imagePrompt derives the image prompt of a scene. Title cards get a plain
// background; their text is burned in during assembly.
func imagePrompt(scene model.StoryboardScene) string {
	query := strings.TrimSpace(scene.Visual.SearchQuery)
	if query == "" {
		query = strings.TrimSpace(scene.AudioText)
	}
	switch scene.Visual.Type {
	case model.VisualTitleCard:
		return fmt.Sprintf("Clean, uncluttered title card background without any text, evoking: %s", query)
	case model.VisualStockVideo:
		return fmt.Sprintf("Photorealistic still frame, documentary footage style: %s", query)
	default:
		return query
	}
}
