package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ryanfish1/mindvideo/config"
	"github.com/ryanfish1/mindvideo/keywords"
	"github.com/ryanfish1/mindvideo/matching"
	"github.com/ryanfish1/mindvideo/media"
	"github.com/ryanfish1/mindvideo/pipeline"
	"github.com/ryanfish1/mindvideo/storyboard"
	"github.com/ryanfish1/mindvideo/synthesis"
	"github.com/ryanfish1/mindvideo/types"
)

func main() {
	// .env is for local dev; real deployments set the environment directly.
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to config file")
	storyboardPath := flag.String("storyboard", "", "path to storyboard file")
	scriptPath := flag.String("script", "", "path to a raw narration script to split into scenes")
	outputDir := flag.String("output", "", "output directory (overrides config)")
	emotion := flag.String("emotion", "neutral", "voice emotion")
	speed := flag.Float64("speed", 1.0, "speech speed, 0.5 to 2.0")
	volume := flag.Float64("volume", 1.0, "speech volume, 0.5 to 2.0")
	keepScratch := flag.Bool("keep-scratch", false, "keep per-run scratch files")
	flag.Parse()

	if (*storyboardPath == "") == (*scriptPath == "") {
		log.Fatal("usage: mindvideo -storyboard scenes.yaml | -script script.txt [-config config.yaml]")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *keepScratch {
		cfg.Pipeline.KeepScratch = true
	}
	if *outputDir != "" {
		cfg.Paths.Output = *outputDir
	}

	sb, err := loadScenes(cfg, *storyboardPath, *scriptPath)
	if err != nil {
		log.Fatalf("Failed to load scenes: %v", err)
	}
	log.Printf("[main] storyboard %q: %d scenes", sb.Title, len(sb.Scenes))

	voice := synthesis.VoiceParams{Emotion: *emotion, Speed: *speed, Volume: *volume}
	if err := voice.Validate(); err != nil {
		log.Fatalf("Bad voice parameters: %v", err)
	}

	runner := buildRunner(cfg, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, err := runner.Run(ctx, sb.Scenes, voice)
	if err != nil {
		var runErr *pipeline.RunError
		if errors.As(err, &runErr) && run != nil {
			log.Fatalf("Run %s failed: %v (finished scenes: %v, unfinished: %v)",
				run.RunID, runErr.First, runErr.Finished, runErr.Unfinished)
		}
		log.Fatalf("Run failed: %v", err)
	}

	log.Printf("Done: %s (%.1fs, %d scenes)", run.OutputFile, run.TotalSec, len(run.Artifacts))
}

// loadScenes reads a pre-split storyboard file, or splits a raw script
// into one through the analyzer.
func loadScenes(cfg *config.Config, storyboardPath, scriptPath string) (*storyboard.Storyboard, error) {
	if storyboardPath != "" {
		return storyboard.Load(storyboardPath)
	}
	data, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, err
	}
	return storyboard.NewAnalyzer(cfg.Keywords).Analyze(context.Background(), string(data))
}

// buildRunner wires the production dependency graph.
func buildRunner(cfg *config.Config, onProgress func(types.Progress)) *pipeline.Runner {
	gen := keywords.NewGenerator(cfg.Keywords)
	matcher := matching.New(cfg.Matcher, gen)
	toolchain := media.NewToolchain(cfg.Encoding, cfg.Pipeline.LoopShortClips)
	synth := synthesis.NewClient(cfg.Synthesis, toolchain)

	runner := pipeline.NewRunner(cfg, matcher, synth, toolchain)
	runner.OnProgress = onProgress
	return runner
}
