package types

// Scene is one storyboard entry: the narration to speak and hints for
// finding matching footage. Scenes are created once by the storyboard
// author (or the analyzer) and read-only from then on.
type Scene struct {
	Index          int      `json:"index" yaml:"-"`
	Narration      string   `json:"narration" yaml:"narration"`
	KeywordHint    []string `json:"keyword_hint" yaml:"keyword_hint"`
	TargetDuration float64  `json:"target_duration" yaml:"duration"`
}

// MatchResult is a stock clip selected for one scene.
type MatchResult struct {
	AssetID     string  `json:"asset_id"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Duration    float64 `json:"duration"`
	FPS         float64 `json:"fps"`
	DownloadURL string  `json:"download_url"`
	Score       float64 `json:"score"`
	Query       string  `json:"query"` // the search query that found it
}

// SynthesisResult is one scene's narration audio. Duration is measured
// from the produced file, never the service's predicted value, and is
// the duration authority for the whole scene.
type SynthesisResult struct {
	AudioFile string  `json:"audio_file"`
	Duration  float64 `json:"duration"`
	Emotion   string  `json:"emotion"`
	Speed     float64 `json:"speed"`
	Volume    float64 `json:"volume"`
}

// SceneArtifact is the finished per-scene file: conformed silent video
// muxed with the synthesized narration.
type SceneArtifact struct {
	Index     int     `json:"index"`
	VideoFile string  `json:"video_file"`
	AudioFile string  `json:"audio_file"`
	Duration  float64 `json:"duration"`
}

// Stage names used in progress events and error reports.
const (
	StageMatch   = "match"
	StageSynth   = "synthesize"
	StageConform = "conform"
	StageMux     = "mux"
	StageConcat  = "concat"
)

// Progress is an advisory per-scene progress event (scene N of M at stage X).
type Progress struct {
	Scene   int    `json:"scene"`
	Total   int    `json:"total"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// PipelineRun records one full run: the ordered scene artifacts and the
// final concatenated output. Artifact order always equals storyboard order.
type PipelineRun struct {
	RunID       string          `json:"run_id"`
	StartedAt   string          `json:"started_at"`
	CompletedAt string          `json:"completed_at"`
	Artifacts   []SceneArtifact `json:"artifacts"`
	OutputFile  string          `json:"output_file"`
	TotalSec    float64         `json:"total_sec"`
	Finished    []int           `json:"finished_scenes"`
	Unfinished  []int           `json:"unfinished_scenes,omitempty"`
	Error       string          `json:"error,omitempty"`
}
