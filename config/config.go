package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Matcher   MatcherConfig   `yaml:"matcher"`
	Keywords  KeywordsConfig  `yaml:"keywords"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Encoding  EncodingProfile `yaml:"encoding"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Server    ServerConfig    `yaml:"server"`
	Paths     PathsConfig     `yaml:"paths"`
}

type MatcherConfig struct {
	PexelsURL         string       `yaml:"pexels_url"`
	MinWidth          int          `yaml:"min_width"`
	PerPage           int          `yaml:"per_page"`
	MaxAttempts       int          `yaml:"max_attempts"`
	MinDurationFloor  float64      `yaml:"min_duration_floor"`
	MinDurationFactor float64      `yaml:"min_duration_factor"`
	RequestsPerSecond float64      `yaml:"requests_per_second"`
	TimeoutSec        int          `yaml:"timeout_sec"`
	Weights           ScoreWeights `yaml:"weights"`
}

func (m MatcherConfig) Timeout() time.Duration { return time.Duration(m.TimeoutSec) * time.Second }

// ScoreWeights are the candidate scoring tunables. The defaults reproduce
// the scoring the system has always used: a flat base plus bonuses for
// resolution, duration closeness and frame rate, capped at 100.
type ScoreWeights struct {
	Base           float64 `yaml:"base"`
	ResolutionFull float64 `yaml:"resolution_full"` // width >= 1920
	ResolutionHD   float64 `yaml:"resolution_hd"`   // width >= 1280
	DurationClose  float64 `yaml:"duration_close"`  // |duration-target| < 2s
	DurationNear   float64 `yaml:"duration_near"`   // |duration-target| < 5s
	SmoothFPS      float64 `yaml:"smooth_fps"`      // fps >= 24
	Cap            float64 `yaml:"cap"`
}

type KeywordsConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxQueries  int     `yaml:"max_queries"`
	TimeoutSec  int     `yaml:"timeout_sec"`
}

func (k KeywordsConfig) Timeout() time.Duration { return time.Duration(k.TimeoutSec) * time.Second }

type SynthesisConfig struct {
	URL            string `yaml:"url"`
	ReferenceAudio string `yaml:"reference_audio"`
	TimeoutSec     int    `yaml:"timeout_sec"`
	MaxRetries     int    `yaml:"max_retries"`
}

func (s SynthesisConfig) Timeout() time.Duration { return time.Duration(s.TimeoutSec) * time.Second }

// EncodingProfile is the single canonical output profile every scene is
// conformed to. All scene artifacts sharing one profile is what makes the
// final concat a lossless stream copy; mixed source frame rates are the
// main cause of playback stutter.
type EncodingProfile struct {
	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	FPS          int    `yaml:"fps"`
	VideoCodec   string `yaml:"video_codec"`
	Preset       string `yaml:"preset"`
	CRF          int    `yaml:"crf"`
	PixelFormat  string `yaml:"pixel_format"`
	AudioCodec   string `yaml:"audio_codec"`
	AudioBitrate string `yaml:"audio_bitrate"`
}

// FrameInterval is the duration of one frame at the profile's frame rate,
// used as the per-scene duration tolerance.
func (p EncodingProfile) FrameInterval() float64 {
	if p.FPS <= 0 {
		return 1.0 / 30.0
	}
	return 1.0 / float64(p.FPS)
}

type PipelineConfig struct {
	SceneWorkers     int  `yaml:"scene_workers"`
	EncodeWorkers    int  `yaml:"encode_workers"`
	SceneTimeoutSec  int  `yaml:"scene_timeout_sec"`
	SkipFailedScenes bool `yaml:"skip_failed_scenes"`
	LoopShortClips   bool `yaml:"loop_short_clips"`
	KeepScratch      bool `yaml:"keep_scratch"`
}

func (p PipelineConfig) SceneTimeout() time.Duration {
	return time.Duration(p.SceneTimeoutSec) * time.Second
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type PathsConfig struct {
	Scratch string `yaml:"scratch"`
	Output  string `yaml:"output"`
}

// Default returns the built-in configuration. Load starts from this, so a
// partial config file only overrides what it names.
func Default() *Config {
	return &Config{
		Matcher: MatcherConfig{
			PexelsURL:         "https://api.pexels.com/videos",
			MinWidth:          1280,
			PerPage:           10,
			MaxAttempts:       3,
			MinDurationFloor:  1.0,
			MinDurationFactor: 0.5,
			RequestsPerSecond: 1,
			TimeoutSec:        30,
			Weights: ScoreWeights{
				Base:           50,
				ResolutionFull: 20,
				ResolutionHD:   10,
				DurationClose:  20,
				DurationNear:   10,
				SmoothFPS:      5,
				Cap:            100,
			},
		},
		Keywords: KeywordsConfig{
			BaseURL:     "https://api.deepseek.com/v1",
			Model:       "deepseek-chat",
			Temperature: 0.7,
			MaxQueries:  5,
			TimeoutSec:  60,
		},
		Synthesis: SynthesisConfig{
			URL:        "http://127.0.0.1:7861",
			TimeoutSec: 300,
			MaxRetries: 3,
		},
		Encoding: EncodingProfile{
			Width:        1920,
			Height:       1080,
			FPS:          30,
			VideoCodec:   "libx264",
			Preset:       "medium",
			CRF:          23,
			PixelFormat:  "yuv420p",
			AudioCodec:   "aac",
			AudioBitrate: "192k",
		},
		Pipeline: PipelineConfig{
			SceneWorkers:    3,
			EncodeWorkers:   2,
			SceneTimeoutSec: 600,
		},
		Server: ServerConfig{Addr: ":8000"},
		Paths: PathsConfig{
			Scratch: "storage/cache",
			Output:  "storage/output",
		},
	}
}

// Load reads a yaml config file over the defaults. Environment variables
// hold only secrets and service URLs (PEXELS_API_KEY, DEEPSEEK_API_KEY,
// INDEXTTS_URL); the TTS ones are applied here so call sites never read
// the environment themselves.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if url := os.Getenv("INDEXTTS_URL"); url != "" {
		cfg.Synthesis.URL = url
	}
	if ref := os.Getenv("INDEXTTS_REFERENCE_AUDIO"); ref != "" {
		cfg.Synthesis.ReferenceAudio = ref
	}
	return cfg, nil
}
