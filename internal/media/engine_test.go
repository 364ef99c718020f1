package media

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonforge/server/internal/agent/model"
	errx "github.com/lessonforge/server/internal/core/error"
)

type call struct {
	name string
	args []string
}

type recordingRunner struct {
	calls  []call
	out    []byte
	err    error
	onCall func(args []string)
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, call{name: name, args: args})
	if r.onCall != nil {
		r.onCall(args)
	}
	return r.out, r.err
}

func newTestEngine(t *testing.T, r *recordingRunner) *FFmpeg {
	t.Helper()
	return NewFFmpeg(model.MediaConfig{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		WorkDir:     t.TempDir(),
		Timeout:     time.Minute,
	}, WithRunner(r))
}

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func TestImageToVideoArgs(t *testing.T) {
	r := &recordingRunner{}
	e := newTestEngine(t, r)

	out, err := e.ImageToVideo(context.Background(), "scene1.png", "clip1.mp4", 2500*time.Millisecond, SceneOptions{Quality: QualityHigh, Overlay: "Step 1: light"})
	require.NoError(t, err)
	assert.Equal(t, "clip1.mp4", out)
	require.Len(t, r.calls, 1)
	args := r.calls[0].args
	assert.Equal(t, "ffmpeg", r.calls[0].name)
	assert.Equal(t, "scene1.png", argAfter(args, "-i"))
	assert.Equal(t, "2.500", argAfter(args, "-t"))
	assert.Equal(t, "slow", argAfter(args, "-preset"))
	assert.Contains(t, argAfter(args, "-vf"), `drawtext=text='Step 1\: light'`)
	assert.Equal(t, "clip1.mp4", args[len(args)-1])
}

func TestCreateDynamicScene(t *testing.T) {
	r := &recordingRunner{}
	e := newTestEngine(t, r)
	_, err := e.CreateDynamicScene(context.Background(), "s.png", "s.mp4", 4*time.Second, SceneOptions{Quality: ParseQuality("FAST")})
	require.NoError(t, err)
	vf := argAfter(r.calls[0].args, "-vf")
	assert.Contains(t, vf, "zoompan=")
	assert.Contains(t, vf, ":d=120:")
	assert.Equal(t, "veryfast", argAfter(r.calls[0].args, "-preset"))

	_, err = e.CreateDynamicScene(context.Background(), "s.png", "s.mp4", 0, SceneOptions{})
	assert.True(t, errors.Is(err, errx.ErrMediaAssembly))
}

func TestConcatVideosWritesOrderedList(t *testing.T) {
	var list string
	r := &recordingRunner{}
	r.onCall = func(args []string) {
		b, err := os.ReadFile(argAfter(args, "-i"))
		require.NoError(t, err)
		list = string(b)
	}
	e := newTestEngine(t, r)

	_, err := e.ConcatVideos(context.Background(), []string{"/w/clip1.mp4", "/w/clip2.mp4", "/w/it's.mp4"}, "/w/video.mp4")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(list), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "file '/w/clip1.mp4'", lines[0])
	assert.Equal(t, "file '/w/clip2.mp4'", lines[1])
	assert.Equal(t, `file '/w/it'\''s.mp4'`, lines[2])

	// the list file is removed afterwards
	_, statErr := os.Stat(argAfter(r.calls[0].args, "-i"))
	assert.True(t, os.IsNotExist(statErr))

	_, err = e.ConcatVideos(context.Background(), nil, "/w/video.mp4")
	assert.True(t, errors.Is(err, errx.ErrMediaAssembly))
}

func TestMergeAudiosFilter(t *testing.T) {
	r := &recordingRunner{}
	e := newTestEngine(t, r)
	_, err := e.MergeAudios(context.Background(), []string{"a1.mp3", "a2.mp3"}, "narration.m4a")
	require.NoError(t, err)
	assert.Equal(t, "[0:a][1:a]concat=n=2:v=0:a=1[a]", argAfter(r.calls[0].args, "-filter_complex"))
}

func TestBackgroundMusicAndSync(t *testing.T) {
	r := &recordingRunner{}
	e := newTestEngine(t, r)
	_, err := e.SyncVideoWithAudio(context.Background(), "v.mp4", "a.m4a", "synced.mp4")
	require.NoError(t, err)
	assert.Contains(t, r.calls[0].args, "-shortest")

	_, err = e.AddBackgroundMusic(context.Background(), "synced.mp4", "music.mp3", "final.mp4", 0.2)
	require.NoError(t, err)
	assert.Contains(t, argAfter(r.calls[1].args, "-filter_complex"), "volume=0.2")
	assert.Equal(t, "-1", argAfter(r.calls[1].args, "-stream_loop"))
}

func TestCutMedia(t *testing.T) {
	r := &recordingRunner{}
	e := newTestEngine(t, r)
	_, err := e.CutMedia(context.Background(), "in.mp4", "out.mp4", time.Second, 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "1.000", argAfter(r.calls[0].args, "-ss"))

	_, err = e.CutMedia(context.Background(), "in.mp4", "out.mp4", 0, 0)
	assert.Error(t, err)
}

func TestGetAudioDuration(t *testing.T) {
	r := &recordingRunner{out: []byte("12.480000\n")}
	e := newTestEngine(t, r)
	d, err := e.GetAudioDuration(context.Background(), "a.mp3")
	require.NoError(t, err)
	assert.Equal(t, 12480*time.Millisecond, d)
	assert.Equal(t, "ffprobe", r.calls[0].name)

	r.out = []byte("N/A")
	_, err = e.GetAudioDuration(context.Background(), "a.mp3")
	assert.True(t, errors.Is(err, errx.ErrMediaAssembly))
}

func TestFFmpegFailure(t *testing.T) {
	r := &recordingRunner{out: []byte("Invalid data found"), err: errors.New("exit status 1")}
	e := newTestEngine(t, r)
	_, err := e.SyncVideoWithAudio(context.Background(), "v.mp4", "a.m4a", "o.mp4")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrMediaAssembly))
	assert.Contains(t, err.Error(), "Invalid data found")
}
