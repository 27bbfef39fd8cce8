package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ryanfish1/mindvideo/config"
	"github.com/ryanfish1/mindvideo/keywords"
	"github.com/ryanfish1/mindvideo/matching"
	"github.com/ryanfish1/mindvideo/media"
	"github.com/ryanfish1/mindvideo/pipeline"
	"github.com/ryanfish1/mindvideo/server"
	"github.com/ryanfish1/mindvideo/storyboard"
	"github.com/ryanfish1/mindvideo/synthesis"
	"github.com/ryanfish1/mindvideo/types"
)

func main() {
	_ = godotenv.Load()

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	analyzer := storyboard.NewAnalyzer(cfg.Keywords)

	// The external resources are process-wide: one synthesis client (its
	// mutex serializes /tts across ALL runs, the endpoint is a single local
	// model), one matcher (one Pexels rate limit), one toolchain, and one
	// encoder bound shared by every runner.
	gen := keywords.NewGenerator(cfg.Keywords)
	matcher := matching.New(cfg.Matcher, gen)
	toolchain := media.NewToolchain(cfg.Encoding, cfg.Pipeline.LoopShortClips)
	synth := synthesis.NewClient(cfg.Synthesis, toolchain)
	encodeSlots := pipeline.NewEncodeSlots(cfg.Pipeline.EncodeWorkers)

	// Each generation task still gets its own runner so progress callbacks
	// from concurrent tasks never cross.
	runners := func(onProgress func(types.Progress)) server.Generator {
		runner := pipeline.NewRunner(cfg, matcher, synth, toolchain)
		runner.SetEncodeSlots(encodeSlots)
		runner.OnProgress = onProgress
		return runner
	}

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.New(cfg, analyzer, runners).Router(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()
	log.Printf("[server] listening on %s", cfg.Server.Addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[server] shutting down")

	// In-flight requests get a grace period; background generation tasks
	// run to completion or die with the process.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[server] shutdown: %v", err)
	}
}
