package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lessonforge/server/internal/agent/model"
	errx "github.com/lessonforge/server/internal/core/error"
	logx "github.com/lessonforge/server/pkg/logger"
)

// Quality selects the encoder trade-off of rendered scenes.
type Quality string

const (
	QualityFast     Quality = "fast"
	QualityBalanced Quality = "balanced"
	QualityHigh     Quality = "high"
)

// ParseQuality maps configuration text onto a Quality, defaulting to balanced.
func ParseQuality(s string) Quality {
	switch Quality(strings.ToLower(strings.TrimSpace(s))) {
	case QualityFast:
		return QualityFast
	case QualityHigh:
		return QualityHigh
	default:
		return QualityBalanced
	}
}

// SceneOptions tunes CreateDynamicScene and ImageToVideo.
type SceneOptions struct {
	Quality Quality
	// Overlay is burned into the bottom third when non-empty.
	Overlay string
}

// Engine is the media assembly surface the pipeline drives. Every operation
// writes outPath and returns it; failures are errx.MediaAssembly errors.
type Engine interface {
	ImageToVideo(ctx context.Context, imagePath, outPath string, duration time.Duration, opts SceneOptions) (string, error)
	CreateDynamicScene(ctx context.Context, imagePath, outPath string, duration time.Duration, opts SceneOptions) (string, error)
	SyncVideoWithAudio(ctx context.Context, videoPath, audioPath, outPath string) (string, error)
	ConcatVideos(ctx context.Context, videoPaths []string, outPath string) (string, error)
	MergeAudios(ctx context.Context, audioPaths []string, outPath string) (string, error)
	AddBackgroundMusic(ctx context.Context, videoPath, musicPath, outPath string, volume float64) (string, error)
	CutMedia(ctx context.Context, inPath, outPath string, start, duration time.Duration) (string, error)
	GetAudioDuration(ctx context.Context, path string) (time.Duration, error)
}

// Runner executes an external binary and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

const (
	frameWidth  = 1280
	frameHeight = 720
	frameRate   = 30
)

// FFmpeg implements Engine with the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	workDir     string
	timeout     time.Duration
	runner      Runner
}

type Option func(*FFmpeg)

// WithRunner replaces process execution, mainly for tests.
func WithRunner(r Runner) Option {
	return func(f *FFmpeg) { f.runner = r }
}

func NewFFmpeg(cfg model.MediaConfig, opts ...Option) *FFmpeg {
	f := &FFmpeg{
		ffmpegPath:  cfg.FFmpegPath,
		ffprobePath: cfg.FFprobePath,
		workDir:     cfg.WorkDir,
		timeout:     cfg.Timeout,
		runner:      execRunner{},
	}
	if f.ffmpegPath == "" {
		f.ffmpegPath = "ffmpeg"
	}
	if f.ffprobePath == "" {
		f.ffprobePath = "ffprobe"
	}
	if f.workDir == "" {
		f.workDir = filepath.Join(os.TempDir(), "lessonforge-media")
	}
	if f.timeout <= 0 {
		f.timeout = 10 * time.Minute
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// AssertReady checks that both binaries are on PATH and the work dir exists.
func (f *FFmpeg) AssertReady() error {
	for _, bin := range []string{f.ffmpegPath, f.ffprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q in PATH: %w", bin, err)
		}
	}
	if err := os.MkdirAll(f.workDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	return nil
}

func (f *FFmpeg) ImageToVideo(ctx context.Context, imagePath, outPath string, duration time.Duration, opts SceneOptions) (string, error) {
	const op = "image_to_video"
	if err := requireInputs(op, imagePath, outPath); err != nil {
		return "", err
	}
	if duration <= 0 {
		return "", errx.MediaAssembly(op, fmt.Errorf("non-positive duration %s", duration))
	}
	vf := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1",
		frameWidth, frameHeight, frameWidth, frameHeight)
	vf = withOverlay(vf, opts.Overlay) + ",format=yuv420p"
	args := []string{
		"-y",
		"-loop", "1",
		"-i", imagePath,
		"-t", seconds(duration),
		"-vf", vf,
		"-r", strconv.Itoa(frameRate),
	}
	args = append(args, encoderArgs(opts.Quality)...)
	args = append(args, "-an", outPath)
	return outPath, f.ffmpeg(ctx, op, args...)
}

// CreateDynamicScene renders a slow pan and zoom over a still image.
func (f *FFmpeg) CreateDynamicScene(ctx context.Context, imagePath, outPath string, duration time.Duration, opts SceneOptions) (string, error) {
	const op = "create_dynamic_scene"
	if err := requireInputs(op, imagePath, outPath); err != nil {
		return "", err
	}
	if duration <= 0 {
		return "", errx.MediaAssembly(op, fmt.Errorf("non-positive duration %s", duration))
	}
	frames := int(duration.Seconds()*frameRate + 0.5)
	if frames < 1 {
		frames = 1
	}
	vf := fmt.Sprintf(
		"scale=%d:-2,zoompan=z='min(zoom+0.0012,1.4)':d=%d:x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':s=%dx%d:fps=%d",
		frameWidth*2, frames, frameWidth, frameHeight, frameRate,
	)
	vf = withOverlay(vf, opts.Overlay) + ",format=yuv420p"
	args := []string{
		"-y",
		"-i", imagePath,
		"-vf", vf,
		"-t", seconds(duration),
	}
	args = append(args, encoderArgs(opts.Quality)...)
	args = append(args, "-an", outPath)
	return outPath, f.ffmpeg(ctx, op, args...)
}

func (f *FFmpeg) SyncVideoWithAudio(ctx context.Context, videoPath, audioPath, outPath string) (string, error) {
	const op = "sync_video_with_audio"
	if err := requireInputs(op, videoPath, audioPath, outPath); err != nil {
		return "", err
	}
	return outPath, f.ffmpeg(ctx, op,
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		outPath,
	)
}

// ConcatVideos joins clips that share one encoding, in the given order.
func (f *FFmpeg) ConcatVideos(ctx context.Context, videoPaths []string, outPath string) (string, error) {
	const op = "concat_videos"
	if len(videoPaths) == 0 {
		return "", errx.MediaAssembly(op, fmt.Errorf("no input videos"))
	}
	if err := requireInputs(op, append(append([]string(nil), videoPaths...), outPath)...); err != nil {
		return "", err
	}
	list, cleanup, err := f.writeConcatList(videoPaths)
	if err != nil {
		return "", errx.MediaAssembly(op, err)
	}
	defer cleanup()
	return outPath, f.ffmpeg(ctx, op,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", list,
		"-c", "copy",
		outPath,
	)
}

// MergeAudios plays the inputs back to back into one track.
func (f *FFmpeg) MergeAudios(ctx context.Context, audioPaths []string, outPath string) (string, error) {
	const op = "merge_audios"
	if len(audioPaths) == 0 {
		return "", errx.MediaAssembly(op, fmt.Errorf("no input audio"))
	}
	if err := requireInputs(op, append(append([]string(nil), audioPaths...), outPath)...); err != nil {
		return "", err
	}
	args := []string{"-y"}
	var filter strings.Builder
	for i, p := range audioPaths {
		args = append(args, "-i", p)
		fmt.Fprintf(&filter, "[%d:a]", i)
	}
	fmt.Fprintf(&filter, "concat=n=%d:v=0:a=1[a]", len(audioPaths))
	args = append(args,
		"-filter_complex", filter.String(),
		"-map", "[a]",
		"-c:a", "aac",
		"-b:a", "192k",
		outPath,
	)
	return outPath, f.ffmpeg(ctx, op, args...)
}

// AddBackgroundMusic loops musicPath under the video's narration at volume.
func (f *FFmpeg) AddBackgroundMusic(ctx context.Context, videoPath, musicPath, outPath string, volume float64) (string, error) {
	const op = "add_background_music"
	if err := requireInputs(op, videoPath, musicPath, outPath); err != nil {
		return "", err
	}
	if volume <= 0 || volume > 1 {
		volume = 0.15
	}
	filter := fmt.Sprintf("[1:a]volume=%s[bg];[0:a][bg]amix=inputs=2:duration=first:dropout_transition=2[a]",
		strconv.FormatFloat(volume, 'f', -1, 64))
	return outPath, f.ffmpeg(ctx, op,
		"-y",
		"-i", videoPath,
		"-stream_loop", "-1",
		"-i", musicPath,
		"-filter_complex", filter,
		"-map", "0:v",
		"-map", "[a]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		outPath,
	)
}

func (f *FFmpeg) CutMedia(ctx context.Context, inPath, outPath string, start, duration time.Duration) (string, error) {
	const op = "cut_media"
	if err := requireInputs(op, inPath, outPath); err != nil {
		return "", err
	}
	if start < 0 || duration <= 0 {
		return "", errx.MediaAssembly(op, fmt.Errorf("invalid range start=%s duration=%s", start, duration))
	}
	return outPath, f.ffmpeg(ctx, op,
		"-y",
		"-ss", seconds(start),
		"-i", inPath,
		"-t", seconds(duration),
		"-c", "copy",
		outPath,
	)
}

func (f *FFmpeg) GetAudioDuration(ctx context.Context, path string) (time.Duration, error) {
	const op = "get_audio_duration"
	if err := requireInputs(op, path); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	out, err := f.runner.Run(ctx, f.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, errx.MediaAssembly(op, fmt.Errorf("ffprobe failed: %w; out=%s", err, snippet(out)))
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || secs <= 0 {
		return 0, errx.MediaAssembly(op, fmt.Errorf("unexpected ffprobe duration %q", strings.TrimSpace(string(out))))
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// ---------- helpers ----------

func (f *FFmpeg) ffmpeg(ctx context.Context, op string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	start := time.Now()
	out, err := f.runner.Run(ctx, f.ffmpegPath, args...)
	if err != nil {
		logx.Error().Err(err).Str("op", op).Str("output", snippet(out)).Msg("ffmpeg failed")
		return errx.MediaAssembly(op, fmt.Errorf("ffmpeg failed: %w; out=%s", err, snippet(out)))
	}
	logx.Debug().Str("op", op).Dur("elapsed", time.Since(start)).Msg("ffmpeg done")
	return nil
}

func (f *FFmpeg) writeConcatList(paths []string) (string, func(), error) {
	if err := os.MkdirAll(f.workDir, 0o755); err != nil {
		return "", func() {}, fmt.Errorf("mkdir work dir: %w", err)
	}
	var b strings.Builder
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", func() {}, err
		}
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	path := filepath.Join(f.workDir, "concat-"+uuid.NewString()+".txt")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", func() {}, fmt.Errorf("write concat list: %w", err)
	}
	return path, func() { _ = os.Remove(path) }, nil
}

func requireInputs(op string, paths ...string) error {
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			return errx.MediaAssembly(op, fmt.Errorf("empty path"))
		}
	}
	return nil
}

func encoderArgs(q Quality) []string {
	preset, crf := "medium", "23"
	switch q {
	case QualityFast:
		preset, crf = "veryfast", "28"
	case QualityHigh:
		preset, crf = "slow", "18"
	}
	return []string{"-c:v", "libx264", "-preset", preset, "-crf", crf, "-pix_fmt", "yuv420p"}
}

func withOverlay(vf, text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return vf
	}
	return vf + fmt.Sprintf(
		",drawtext=text='%s':fontcolor=white:fontsize=54:box=1:boxcolor=black@0.55:boxborderw=24:x=(w-text_w)/2:y=h-text_h-90",
		escapeDrawtext(text),
	)
}

// escapeDrawtext quotes text for a single-quoted drawtext value inside a filter graph.
func escapeDrawtext(s string) string {
	r := strings.NewReplacer(
		`\`, `\\\\`,
		`'`, `'\\\''`,
		`:`, `\:`,
		`%`, `\%`,
		",", `\,`,
	)
	return r.Replace(s)
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func snippet(b []byte) string {
	const max = 500
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[len(s)-max:]
	}
	return s
}

var _ Engine = (*FFmpeg)(nil)
