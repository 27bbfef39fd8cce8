// Package pipeline is the sequencer: it drives matching and synthesis
// for every scene, conforms each clip to its measured audio duration,
// muxes, and concatenates the scene artifacts into the final video in
// storyboard order.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ryanfish1/mindvideo/config"
	"github.com/ryanfish1/mindvideo/synthesis"
	"github.com/ryanfish1/mindvideo/types"
)

// Matcher finds and downloads a stock clip for a scene.
type Matcher interface {
	Match(ctx context.Context, scene types.Scene) (*types.MatchResult, error)
	Download(ctx context.Context, match *types.MatchResult, destPath string) error
}

// Synthesizer produces narration audio and reports service readiness.
type Synthesizer interface {
	Health(ctx context.Context) error
	Synthesize(ctx context.Context, text string, voice synthesis.VoiceParams, outPath string) (*types.SynthesisResult, error)
}

// Media is the toolchain slice the sequencer drives.
type Media interface {
	Conform(ctx context.Context, rawPath string, target float64, outPath string) error
	Mux(ctx context.Context, videoPath, audioPath, outPath string) error
	Concat(ctx context.Context, parts []string, outPath string) error
	Duration(ctx context.Context, path string) (float64, error)
}

// Runner executes pipeline runs.
type Runner struct {
	cfg     config.PipelineConfig
	profile config.EncodingProfile
	scratch string
	output  string
	retries int

	matcher Matcher
	synth   Synthesizer
	media   Media

	// OnProgress, when set, receives advisory per-scene progress events.
	// It may be called from multiple goroutines.
	OnProgress func(types.Progress)

	// encodeSem bounds concurrent ffmpeg work so scene fan-out cannot
	// oversubscribe the local encoder.
	encodeSem chan struct{}
}

func NewRunner(cfg *config.Config, matcher Matcher, synth Synthesizer, med Media) *Runner {
	return &Runner{
		cfg:       cfg.Pipeline,
		profile:   cfg.Encoding,
		scratch:   cfg.Paths.Scratch,
		output:    cfg.Paths.Output,
		retries:   cfg.Synthesis.MaxRetries,
		matcher:   matcher,
		synth:     synth,
		media:     med,
		encodeSem: NewEncodeSlots(cfg.Pipeline.EncodeWorkers),
	}
}

// NewEncodeSlots builds a semaphore bounding concurrent ffmpeg work.
// Each runner gets its own by default; a process serving several runs at
// once should build one and hand it to every runner via SetEncodeSlots,
// otherwise each run brings its own encoder budget and the host is
// oversubscribed by their sum.
func NewEncodeSlots(n int) chan struct{} {
	if n < 1 {
		n = 1
	}
	return make(chan struct{}, n)
}

// SetEncodeSlots replaces the runner's private encoder bound with a
// shared one. Call before Run.
func (r *Runner) SetEncodeSlots(sem chan struct{}) {
	r.encodeSem = sem
}

// Run processes all scenes and produces the final concatenated video.
// Scene order in the result always equals storyboard order. On failure
// the returned *types.PipelineRun still describes the partial run and the
// error is a *RunError carrying the first fatal scene error; scratch
// files are preserved for diagnosis.
func (r *Runner) Run(ctx context.Context, scenes []types.Scene, voice synthesis.VoiceParams) (*types.PipelineRun, error) {
	if len(scenes) == 0 {
		return nil, fmt.Errorf("pipeline run needs at least one scene")
	}
	// Indices always follow storyboard position; they are what keeps the
	// final concat in script order.
	scenes = append([]types.Scene(nil), scenes...)
	for i := range scenes {
		scenes[i].Index = i
		if scenes[i].Narration == "" {
			return nil, fmt.Errorf("scene %d has empty narration", i)
		}
	}
	// Reject bad voice parameters before any external call is made.
	if err := voice.Validate(); err != nil {
		return nil, err
	}

	// Fail fast when the synthesis service is down or still loading its
	// model, instead of timing out scene by scene.
	if err := r.synth.Health(ctx); err != nil {
		return nil, err
	}

	runID := uuid.NewString()[:8]
	runDir := filepath.Join(r.scratch, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	if err := os.MkdirAll(r.output, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	run := &types.PipelineRun{
		RunID:     runID,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}
	log.Printf("[pipeline] run %s: %d scenes, voice emotion=%s speed=%.2f volume=%.2f",
		runID, len(scenes), voice.Emotion, voice.Speed, voice.Volume)

	artifacts := make([]*types.SceneArtifact, len(scenes))
	var mu sync.Mutex // guards artifacts writes for the final read below

	g, gctx := errgroup.WithContext(ctx)
	workers := r.cfg.SceneWorkers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	for i := range scenes {
		scene := scenes[i]
		g.Go(func() error {
			artifact, err := r.processScene(gctx, runDir, scene, voice, len(scenes))
			if err != nil {
				if r.cfg.SkipFailedScenes && gctx.Err() == nil {
					log.Printf("[pipeline] run %s: skipping scene %d: %v", runID, scene.Index, err)
					return nil
				}
				return err
			}
			mu.Lock()
			artifacts[scene.Index] = artifact
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()

	mu.Lock()
	for i, a := range artifacts {
		if a != nil {
			run.Finished = append(run.Finished, i)
			run.Artifacts = append(run.Artifacts, *a)
		} else {
			run.Unfinished = append(run.Unfinished, i)
		}
	}
	mu.Unlock()

	if err != nil {
		run.CompletedAt = time.Now().UTC().Format(time.RFC3339)
		run.Error = err.Error()
		r.saveState(run, runDir)
		log.Printf("[pipeline] run %s failed: %v (scratch preserved at %s)", runID, err, runDir)
		return run, &RunError{First: err, Finished: run.Finished, Unfinished: run.Unfinished}
	}

	// All scenes done; join in storyboard order.
	r.emit(types.Progress{Scene: len(scenes), Total: len(scenes), Stage: types.StageConcat, Message: "concatenating scenes"})
	outputFile := filepath.Join(r.output, fmt.Sprintf("video_%s.mp4", runID))
	var parts []string
	var expected float64
	for _, a := range run.Artifacts {
		parts = append(parts, a.VideoFile)
		expected += a.Duration
	}
	if err := r.media.Concat(ctx, parts, outputFile); err != nil {
		run.Error = err.Error()
		r.saveState(run, runDir)
		return run, &RunError{First: &SceneError{Scene: -1, Stage: types.StageConcat, Err: err}, Finished: run.Finished}
	}

	total, err := r.media.Duration(ctx, outputFile)
	if err != nil {
		log.Printf("[pipeline] run %s: warning: could not measure final duration: %v", runID, err)
		total = expected
	} else {
		tolerance := float64(len(parts)) * r.profile.FrameInterval()
		if diff := total - expected; diff > tolerance || diff < -tolerance {
			run.Error = fmt.Sprintf("final duration %.3fs drifted from expected %.3fs (tolerance %.3fs)", total, expected, tolerance)
			r.saveState(run, runDir)
			return run, &RunError{First: &SceneError{Scene: -1, Stage: types.StageConcat, Err: errors.New(run.Error)}, Finished: run.Finished}
		}
	}

	run.OutputFile = outputFile
	run.TotalSec = total
	run.CompletedAt = time.Now().UTC().Format(time.RFC3339)
	// The state snapshot outlives the scratch purge below.
	r.saveState(run, r.output)

	if !r.cfg.KeepScratch {
		if err := os.RemoveAll(runDir); err != nil {
			log.Printf("[pipeline] run %s: warning: could not purge scratch: %v", runID, err)
		}
	}

	log.Printf("[pipeline] run %s complete: %s (%.1fs, %d scenes)", runID, outputFile, total, len(parts))
	return run, nil
}

// processScene runs one scene end to end inside its scratch subdir:
// match and synthesize concurrently, then download, conform and mux.
func (r *Runner) processScene(ctx context.Context, runDir string, scene types.Scene, voice synthesis.VoiceParams, total int) (*types.SceneArtifact, error) {
	if r.cfg.SceneTimeout() > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.SceneTimeout())
		defer cancel()
	}

	sceneDir := filepath.Join(runDir, fmt.Sprintf("scene_%03d", scene.Index))
	if err := os.MkdirAll(sceneDir, 0755); err != nil {
		return nil, &SceneError{Scene: scene.Index, Stage: types.StageMatch, Err: err}
	}

	// Matching and synthesis have no data dependency; run them together.
	// The conformer needs both, so it waits for the pair.
	var match *types.MatchResult
	var synthRes *types.SynthesisResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.emit(types.Progress{Scene: scene.Index, Total: total, Stage: types.StageMatch, Message: "searching footage"})
		m, err := r.matcher.Match(gctx, scene)
		if err != nil {
			return &SceneError{Scene: scene.Index, Stage: types.StageMatch, Err: err}
		}
		match = m
		return nil
	})
	g.Go(func() error {
		r.emit(types.Progress{Scene: scene.Index, Total: total, Stage: types.StageSynth, Message: "synthesizing narration"})
		audioPath := filepath.Join(sceneDir, "narration.wav")
		res, err := r.synthesizeWithRetry(gctx, scene.Narration, voice, audioPath)
		if err != nil {
			return &SceneError{Scene: scene.Index, Stage: types.StageSynth, Err: err}
		}
		synthRes = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rawPath := filepath.Join(sceneDir, "raw.mp4")
	if err := r.matcher.Download(ctx, match, rawPath); err != nil {
		return nil, &SceneError{Scene: scene.Index, Stage: types.StageMatch, Err: err}
	}

	r.emit(types.Progress{Scene: scene.Index, Total: total, Stage: types.StageConform, Message: "conforming clip"})
	segmentPath := filepath.Join(sceneDir, "segment.mp4")
	if err := r.withEncodeSlot(ctx, func() error {
		return r.media.Conform(ctx, rawPath, synthRes.Duration, segmentPath)
	}); err != nil {
		return nil, &SceneError{Scene: scene.Index, Stage: types.StageConform, Err: err}
	}

	r.emit(types.Progress{Scene: scene.Index, Total: total, Stage: types.StageMux, Message: "muxing audio"})
	finalPath := filepath.Join(sceneDir, "final.mp4")
	if err := r.withEncodeSlot(ctx, func() error {
		return r.media.Mux(ctx, segmentPath, synthRes.AudioFile, finalPath)
	}); err != nil {
		return nil, &SceneError{Scene: scene.Index, Stage: types.StageMux, Err: err}
	}

	return &types.SceneArtifact{
		Index:     scene.Index,
		VideoFile: finalPath,
		AudioFile: synthRes.AudioFile,
		Duration:  synthRes.Duration,
	}, nil
}

// synthesizeWithRetry retries timed-out synthesis a bounded number of
// times with exponential backoff. Unavailability and validation errors
// are not retried; they cannot heal on their own.
func (r *Runner) synthesizeWithRetry(ctx context.Context, text string, voice synthesis.VoiceParams, outPath string) (*types.SynthesisResult, error) {
	attempts := r.retries
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var res *types.SynthesisResult
		res, err = r.synth.Synthesize(ctx, text, voice, outPath)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, synthesis.ErrTimeout) || ctx.Err() != nil {
			return nil, err
		}
		backoff := time.Duration(1<<uint(attempt-1)) * time.Second
		log.Printf("[synth] attempt %d/%d timed out: %v, retrying in %s", attempt, attempts, err, backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, err
}

func (r *Runner) withEncodeSlot(ctx context.Context, fn func() error) error {
	select {
	case r.encodeSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-r.encodeSem }()
	return fn()
}

func (r *Runner) emit(p types.Progress) {
	if r.OnProgress != nil {
		r.OnProgress(p)
	}
}

// Cleanup removes a run's scratch directory on explicit operator request
// (failed runs keep their scratch for diagnosis otherwise).
func (r *Runner) Cleanup(runID string) error {
	if runID == "" {
		return fmt.Errorf("empty run id")
	}
	return os.RemoveAll(filepath.Join(r.scratch, runID))
}

func (r *Runner) saveState(run *types.PipelineRun, dir string) {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		log.Printf("[pipeline] warning: could not marshal run state: %v", err)
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("run_%s.json", run.RunID))
	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Printf("[pipeline] warning: could not save run state: %v", err)
	}
}
