// Package synthesis is the client for the local IndexTTS HTTP service.
// The service is a long-lived process the operator starts separately; the
// client health-checks it before a run, serializes requests (the model
// serves one synthesis at a time), and always measures the produced
// audio's real duration; downstream trimming depends on it.
package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ryanfish1/mindvideo/config"
	"github.com/ryanfish1/mindvideo/types"
)

var (
	// ErrUnavailable means the synthesis service refused the connection or
	// reports itself not ready. This is an expected operational failure
	// (service not started yet), not a bug.
	ErrUnavailable = errors.New("speech synthesis service unavailable")
	// ErrTimeout means a synthesis request exceeded its deadline. The
	// scene may be retried a bounded number of times.
	ErrTimeout = errors.New("speech synthesis timed out")
)

// AudioTools is the slice of the media toolchain synthesis needs:
// measuring durations and applying speed/volume filters.
type AudioTools interface {
	Duration(ctx context.Context, path string) (float64, error)
	ApplyAudioFilter(ctx context.Context, inPath, outPath, filter string) error
}

// Client talks to one IndexTTS endpoint.
type Client struct {
	cfg        config.SynthesisConfig
	httpClient *http.Client
	tools      AudioTools

	// The endpoint is backed by a single model process that serves one
	// request at a time; the mutex makes that serialization explicit
	// instead of relying on queuing inside the service.
	mu sync.Mutex
}

func NewClient(cfg config.SynthesisConfig, tools AudioTools) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		tools:      tools,
	}
}

type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

type ttsRequest struct {
	Text           string `json:"text"`
	ReferenceAudio string `json:"reference_audio,omitempty"`
	Emotion        string `json:"emotion"`
}

type ttsResponse struct {
	AudioPath string  `json:"audio_path"`
	Duration  float64 `json:"duration"`
}

// Health checks the service before a run starts. A failure here should
// abort the run immediately rather than letting every scene time out.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.cfg.URL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: cannot reach %s (%v); start the IndexTTS service before running the pipeline", ErrUnavailable, c.cfg.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check returned HTTP %d", ErrUnavailable, resp.StatusCode)
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("%w: parse health response: %v", ErrUnavailable, err)
	}
	if health.Status != "healthy" || !health.ModelLoaded {
		return fmt.Errorf("%w: service at %s reports status=%q model_loaded=%v; wait for the model to finish loading", ErrUnavailable, c.cfg.URL, health.Status, health.ModelLoaded)
	}
	return nil
}

// Synthesize produces narration audio for one scene into outPath and
// returns the measured result. Parameters are validated before any
// network traffic.
func (c *Client) Synthesize(ctx context.Context, text string, voice VoiceParams, outPath string) (*types.SynthesisResult, error) {
	if err := voice.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty narration text", ErrInvalidVoice)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return nil, err
	}

	// Speed/volume are applied as a local post-filter; the service only
	// understands emotion.
	needsPost := voice.Speed != 1.0 || voice.Volume != 1.0
	rawPath := outPath
	if needsPost {
		rawPath = strings.TrimSuffix(outPath, filepath.Ext(outPath)) + "_raw" + filepath.Ext(outPath)
	}

	if err := c.requestAndDownload(ctx, text, voice.Emotion, rawPath); err != nil {
		return nil, err
	}

	if needsPost {
		filter := buildAudioFilter(voice.Speed, voice.Volume)
		if err := c.tools.ApplyAudioFilter(ctx, rawPath, outPath, filter); err != nil {
			return nil, fmt.Errorf("apply voice effects: %w", err)
		}
		if err := os.Remove(rawPath); err != nil {
			log.Printf("[synth] warning: could not remove temp file %s: %v", rawPath, err)
		}
	}

	// Measure the file we actually produced; the service's predicted
	// duration drifts and speed changes it anyway.
	measured, err := c.tools.Duration(ctx, outPath)
	if err != nil {
		return nil, fmt.Errorf("measure synthesized audio: %w", err)
	}

	return &types.SynthesisResult{
		AudioFile: outPath,
		Duration:  measured,
		Emotion:   voice.Emotion,
		Speed:     voice.Speed,
		Volume:    voice.Volume,
	}, nil
}

func (c *Client) requestAndDownload(ctx context.Context, text, emotion, destPath string) error {
	body, err := json.Marshal(ttsRequest{
		Text:           text,
		ReferenceAudio: c.cfg.ReferenceAudio,
		Emotion:        emotion,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.URL+"/tts", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err, c.cfg.URL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("tts returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var tts ttsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tts); err != nil {
		return fmt.Errorf("parse tts response: %w", err)
	}
	if tts.AudioPath == "" {
		return fmt.Errorf("tts response carried no audio path")
	}

	// The service stores the audio on its side; fetch it by file name.
	audioURL := fmt.Sprintf("%s/audio/%s", c.cfg.URL, path.Base(tts.AudioPath))
	dlReq, err := http.NewRequestWithContext(ctx, "GET", audioURL, nil)
	if err != nil {
		return err
	}
	dlResp, err := c.httpClient.Do(dlReq)
	if err != nil {
		return classifyTransportError(err, c.cfg.URL)
	}
	defer dlResp.Body.Close()

	if dlResp.StatusCode != http.StatusOK {
		return fmt.Errorf("download audio: HTTP %d", dlResp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, dlResp.Body); err != nil {
		return err
	}
	return nil
}

// classifyTransportError splits transport failures into the two classes
// the sequencer treats differently: not-running (fail fast, tell the
// operator) and timeout (retry a bounded number of times).
func classifyTransportError(err error, url string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: cannot reach %s (%v); start the IndexTTS service before running the pipeline", ErrUnavailable, url, err)
}

// buildAudioFilter assembles the ffmpeg -af chain for speed and volume.
// atempo only accepts [0.5, 2.0], so larger adjustments chain multiple
// filters.
func buildAudioFilter(speed, volume float64) string {
	var filters []string
	if speed != 1.0 {
		filters = append(filters, atempoChain(speed)...)
	}
	if volume != 1.0 {
		filters = append(filters, fmt.Sprintf("volume=%g", volume))
	}
	return strings.Join(filters, ",")
}

func atempoChain(speed float64) []string {
	var filters []string
	remaining := speed
	for remaining < 0.5 || remaining > 2.0 {
		if remaining > 2.0 {
			filters = append(filters, "atempo=2.0")
			remaining /= 2.0
		} else {
			filters = append(filters, "atempo=0.5")
			remaining /= 0.5
		}
	}
	if remaining != 1.0 {
		filters = append(filters, fmt.Sprintf("atempo=%g", remaining))
	}
	return filters
}
