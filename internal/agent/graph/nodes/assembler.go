package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino/compose"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lessonforge/server/internal/agent/model"
	errx "github.com/lessonforge/server/internal/core/error"
	"github.com/lessonforge/server/internal/media"
	"github.com/lessonforge/server/internal/storage"
	logx "github.com/lessonforge/server/pkg/logger"
)

// NewAssemblerNode renders one clip per completed scene in scene order,
// concatenates them, lays the merged narration over the result and stores
// the final video. Every media error is fatal.
func NewAssemblerNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, run *model.PipelineRun) (*model.PipelineRun, error) {
		ctx, span := startStage(ctx, NodeAssembler, run)
		defer span.End()

		if _, err := advance(ctx, span, run, model.StageAssemblyPending); err != nil {
			return run, err
		}

		finalPath, err := d.assemble(ctx, run)
		if err != nil {
			return fail(ctx, span, run, err)
		}

		base := fmt.Sprintf("videos/%s/%s", lessonKey(run), run.RunID)
		ref, err := storage.PutFile(ctx, d.Store, base+".mp4", finalPath)
		if err != nil {
			return fail(ctx, span, run, err)
		}
		run.VideoRef = ref
		span.SetAttributes(attribute.String("video.ref", ref))

		manifest, err := json.MarshalIndent(run.Manifest(), "", "  ")
		if err != nil {
			return fail(ctx, span, run, err)
		}
		if _, err := d.Store.Put(ctx, base+".manifest.json", bytes.NewReader(manifest)); err != nil {
			return fail(ctx, span, run, err)
		}

		to := model.StageCompleted
		if run.Degraded {
			to = model.StagePartiallyCompleted
		}
		logx.Info().Str("run_id", run.RunID).Str("video_ref", ref).Str("status", string(to)).Msg("Lesson video stored")
		return advance(ctx, span, run, to)
	})
}

func (d *Deps) assemble(ctx context.Context, run *model.PipelineRun) (string, error) {
	scenes := run.CompletedScenes()
	if len(scenes) == 0 {
		return "", errx.MediaAssembly("assemble", fmt.Errorf("no completed scenes"))
	}
	work := func(name string) (string, error) {
		p, err := d.Scratch.Path(run.RunID + "/" + name)
		if err != nil {
			return "", err
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return "", errx.WrapStorage(err)
		}
		return p, nil
	}

	render := d.Engine.ImageToVideo
	if d.Config.DynamicScenes {
		render = d.Engine.CreateDynamicScene
	}
	quality := media.ParseQuality(d.Config.Quality)

	clips := make([]string, 0, len(scenes))
	narrations := make([]string, 0, len(scenes))
	for _, sr := range scenes {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		scene, _ := run.SceneFor(sr.SceneNumber)
		duration, err := d.Engine.GetAudioDuration(ctx, sr.AudioRef)
		if err != nil {
			return "", err
		}
		out, err := work(fmt.Sprintf("scene-%03d-clip.mp4", sr.SceneNumber))
		if err != nil {
			return "", err
		}
		clip, err := render(ctx, sr.ImageRef, out, duration, media.SceneOptions{
			Quality: quality,
			Overlay: overlayText(scene),
		})
		if err != nil {
			return "", err
		}
		run.SetClipRef(sr.SceneNumber, clip)
		clips = append(clips, clip)
		narrations = append(narrations, sr.AudioRef)
	}

	videoOut, err := work("video.mp4")
	if err != nil {
		return "", err
	}
	video, err := d.Engine.ConcatVideos(ctx, clips, videoOut)
	if err != nil {
		return "", err
	}
	narrationOut, err := work("narration.m4a")
	if err != nil {
		return "", err
	}
	narration, err := d.Engine.MergeAudios(ctx, narrations, narrationOut)
	if err != nil {
		return "", err
	}
	syncedOut, err := work("synced.mp4")
	if err != nil {
		return "", err
	}
	final, err := d.Engine.SyncVideoWithAudio(ctx, video, narration, syncedOut)
	if err != nil {
		return "", err
	}

	if music := strings.TrimSpace(d.Config.BackgroundMusic); music != "" {
		musicOut, err := work("final.mp4")
		if err != nil {
			return "", err
		}
		if final, err = d.Engine.AddBackgroundMusic(ctx, final, music, musicOut, d.Config.MusicVolume); err != nil {
			return "", err
		}
	}
	return final, nil
}

// overlayText is the text burned into a scene: its explicit overlay, or the
// lesson wording of a title card.
func overlayText(scene model.StoryboardScene) string {
	if scene.TextOverlay != nil {
		if s := strings.TrimSpace(*scene.TextOverlay); s != "" {
			return s
		}
	}
	if scene.Visual.Type == model.VisualTitleCard {
		return strings.TrimSpace(scene.Visual.SearchQuery)
	}
	return ""
}

func lessonKey(run *model.PipelineRun) string {
	if run.LessonID == "" {
		return "adhoc"
	}
	return run.LessonID
}
