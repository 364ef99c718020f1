package model

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cloudwego/eino/schema"
)

// Stage is a state of the lesson generation state machine.
type Stage string

const (
	StageScriptPending      Stage = "ScriptPending"
	StageScriptReady        Stage = "ScriptReady"
	StageStoryboardPending  Stage = "StoryboardPending"
	StageStoryboardReady    Stage = "StoryboardReady"
	StageScenesPending      Stage = "ScenesPending"
	StageScenesReady        Stage = "ScenesReady"
	StageAssemblyPending    Stage = "AssemblyPending"
	StageCompleted          Stage = "Completed"
	StagePartiallyCompleted Stage = "PartiallyCompleted"
	StageFailed             Stage = "Failed"
)

// A degraded run still assembles its surviving scenes, so PartiallyCompleted
// is entered from AssemblyPending; the decision to degrade is taken while
// leaving ScenesPending and carried by PipelineRun.Degraded.
var transitions = map[Stage][]Stage{
	StageScriptPending:     {StageScriptReady},
	StageScriptReady:       {StageStoryboardPending},
	StageStoryboardPending: {StageStoryboardReady},
	StageStoryboardReady:   {StageScenesPending},
	StageScenesPending:     {StageScenesReady},
	StageScenesReady:       {StageAssemblyPending},
	StageAssemblyPending:   {StageCompleted, StagePartiallyCompleted},
}

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StagePartiallyCompleted || s == StageFailed
}

type SceneStatus string

const (
	ScenePending   SceneStatus = "Pending"
	SceneCompleted SceneStatus = "Completed"
	SceneFailed    SceneStatus = "Failed"
)

// SceneResult tracks the generated assets of one storyboard scene.
type SceneResult struct {
	SceneNumber int         `json:"scene_number"`
	ImageRef    string      `json:"image_ref,omitempty"`
	AudioRef    string      `json:"audio_ref,omitempty"`
	ClipRef     string      `json:"clip_ref,omitempty"`
	Status      SceneStatus `json:"status"`
}

// SceneFailure records why a scene could not be generated.
type SceneFailure struct {
	SceneNumber int    `json:"scene_number"`
	Err         error  `json:"-"`
	Reason      string `json:"reason"`
}

// PipelineRun is the ephemeral aggregate of one lesson generation.
// It is owned by a single Run call; scene writes go through RecordScene.
type PipelineRun struct {
	RunID    string
	LessonID string
	Request  LessonRequest

	Sections []ScriptSection
	Scenes   []StoryboardScene

	SceneResults    map[int]*SceneResult
	Failures        []SceneFailure
	TokenUsageTotal int
	CostUSD         float64

	// History accumulates the turns produced by this run's interactions.
	History []*schema.Message

	// Degraded is set when the run left ScenesPending with tolerated failures.
	Degraded bool
	VideoRef string
	Err      error

	stage Stage
	mu    sync.Mutex
}

func NewPipelineRun(runID string, req LessonRequest) *PipelineRun {
	return &PipelineRun{
		RunID:        runID,
		LessonID:     req.LessonID,
		Request:      req,
		SceneResults: map[int]*SceneResult{},
		stage:        StageScriptPending,
	}
}

func (r *PipelineRun) Stage() Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage
}

// Advance moves the run to the next stage, rejecting transitions the state
// machine does not allow.
func (r *PipelineRun) Advance(to Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	allowed := false
	for _, s := range transitions[r.stage] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("illegal stage transition %s -> %s", r.stage, to)
	}
	switch to {
	case StageScenesReady, StageCompleted, StagePartiallyCompleted:
		for n, sr := range r.SceneResults {
			if sr.Status == ScenePending {
				return fmt.Errorf("cannot enter %s: scene %d still pending", to, n)
			}
		}
	}
	if to == StageCompleted && r.Degraded {
		return fmt.Errorf("cannot enter %s: run has tolerated scene failures", to)
	}
	if to == StagePartiallyCompleted && !r.Degraded {
		return fmt.Errorf("cannot enter %s: run has no tolerated scene failures", to)
	}
	r.stage = to
	return nil
}

// Fail moves the run to Failed, keeping the first fatal error.
func (r *PipelineRun) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stage.Terminal() {
		return
	}
	if r.Err == nil {
		r.Err = err
	}
	r.stage = StageFailed
}

// InitScenes registers every storyboard scene as pending.
func (r *PipelineRun) InitScenes(scenes []StoryboardScene) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Scenes = scenes
	for _, s := range scenes {
		r.SceneResults[s.SceneNumber] = &SceneResult{SceneNumber: s.SceneNumber, Status: ScenePending}
	}
}

// RecordScene stores a finished scene result and, on failure, its cause.
func (r *PipelineRun) RecordScene(res SceneResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := res
	r.SceneResults[res.SceneNumber] = &cp
	if err != nil {
		r.Failures = append(r.Failures, SceneFailure{SceneNumber: res.SceneNumber, Err: err, Reason: err.Error()})
	}
}

// SetClipRef records the rendered clip of a completed scene.
func (r *PipelineRun) SetClipRef(n int, ref string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sr, ok := r.SceneResults[n]; ok {
		sr.ClipRef = ref
	}
}

// FirstFailure returns the failure of the lowest numbered failed scene.
func (r *PipelineRun) FirstFailure() (SceneFailure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Failures) == 0 {
		return SceneFailure{}, false
	}
	first := r.Failures[0]
	for _, f := range r.Failures[1:] {
		if f.SceneNumber < first.SceneNumber {
			first = f
		}
	}
	return first, true
}

// AddUsage accumulates token and cost telemetry of one interaction.
func (r *PipelineRun) AddUsage(u *TokenUsage, costUSD float64) {
	if u == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.TokenUsageTotal += u.TotalTokens
	r.CostUSD += costUSD
}

func (r *PipelineRun) AppendHistory(msgs []*schema.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.History = append(r.History, msgs...)
}

// FailedCount returns the number of scenes recorded as failed.
func (r *PipelineRun) FailedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, sr := range r.SceneResults {
		if sr.Status == SceneFailed {
			n++
		}
	}
	return n
}

// CompletedScenes returns completed scene results ordered by scene number.
func (r *PipelineRun) CompletedScenes() []SceneResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SceneResult, 0, len(r.SceneResults))
	for _, sr := range r.SceneResults {
		if sr.Status == SceneCompleted {
			out = append(out, *sr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SceneNumber < out[j].SceneNumber })
	return out
}

// SceneFor returns the storyboard scene with the given number.
func (r *PipelineRun) SceneFor(n int) (StoryboardScene, bool) {
	for _, s := range r.Scenes {
		if s.SceneNumber == n {
			return s, true
		}
	}
	return StoryboardScene{}, false
}

// Manifest lists the produced assets of a finished run.
type Manifest struct {
	RunID           string         `json:"run_id"`
	LessonID        string         `json:"lesson_id"`
	VideoRef        string         `json:"video_ref"`
	Scenes          []SceneResult  `json:"scenes"`
	FailedScenes    []SceneFailure `json:"failed_scenes,omitempty"`
	TokenUsageTotal int            `json:"token_usage_total"`
	CostUSD         float64        `json:"cost_usd"`
}

// Manifest snapshots the run into a manifest with scenes in order.
func (r *PipelineRun) Manifest() *Manifest {
	r.mu.Lock()
	defer r.mu.Unlock()
	scenes := make([]SceneResult, 0, len(r.SceneResults))
	for _, sr := range r.SceneResults {
		scenes = append(scenes, *sr)
	}
	sort.Slice(scenes, func(i, j int) bool { return scenes[i].SceneNumber < scenes[j].SceneNumber })
	failures := append([]SceneFailure(nil), r.Failures...)
	sort.Slice(failures, func(i, j int) bool { return failures[i].SceneNumber < failures[j].SceneNumber })
	return &Manifest{
		RunID:           r.RunID,
		LessonID:        r.LessonID,
		VideoRef:        r.VideoRef,
		Scenes:          scenes,
		FailedScenes:    failures,
		TokenUsageTotal: r.TokenUsageTotal,
		CostUSD:         r.CostUSD,
	}
}

// PipelineResult is what a caller of the orchestrator receives.
// Manifest is nil when Status is Failed.
type PipelineResult struct {
	Status   Stage
	Manifest *Manifest
	Err      error
	Run      *PipelineRun
}
