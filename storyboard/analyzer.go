package storyboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/ryanfish1/mindvideo/config"
	"github.com/ryanfish1/mindvideo/types"
)

const analyzeSystemPrompt = `You split a narration script into video scenes. ` +
	`Each scene is one spoken beat of 3-6 seconds with search hints for stock footage. ` +
	`Respond with ONLY valid JSON: {"scenes":[{"narration":"...","keyword_hint":["...","..."],"duration":4.0}]}. ` +
	`Keep the narration text verbatim from the script, in order, covering all of it.`

// Analyzer splits a raw script into a storyboard via the same
// chat-completions contract the keyword generator uses. It is an
// authoring helper: the pipeline itself only ever sees the result.
type Analyzer struct {
	cfg        config.KeywordsConfig
	apiKey     string
	httpClient *http.Client
}

func NewAnalyzer(cfg config.KeywordsConfig) *Analyzer {
	return &Analyzer{
		cfg:        cfg,
		apiKey:     os.Getenv("DEEPSEEK_API_KEY"),
		httpClient: &http.Client{Timeout: cfg.Timeout()},
	}
}

type analyzeRequest struct {
	Model          string           `json:"model"`
	Messages       []analyzeMessage `json:"messages"`
	Temperature    float64          `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type analyzeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type analyzeResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type analyzedScenes struct {
	Scenes []struct {
		Narration   string   `json:"narration"`
		KeywordHint []string `json:"keyword_hint"`
		Duration    float64  `json:"duration"`
	} `json:"scenes"`
}

// Analyze splits the script into scenes.
func (a *Analyzer) Analyze(ctx context.Context, script string) (*Storyboard, error) {
	if a.apiKey == "" {
		return nil, fmt.Errorf("DEEPSEEK_API_KEY not set")
	}
	if strings.TrimSpace(script) == "" {
		return nil, fmt.Errorf("empty script")
	}

	log.Printf("[storyboard] analyzing script (%d chars)", len(script))

	reqBody := analyzeRequest{
		Model: a.cfg.Model,
		Messages: []analyzeMessage{
			{Role: "system", Content: analyzeSystemPrompt},
			{Role: "user", Content: script},
		},
		Temperature: a.cfg.Temperature,
	}
	reqBody.ResponseFormat.Type = "json_object"

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.cfg.BaseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analyze request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var chat analyzeResponse
	if err := json.Unmarshal(respBytes, &chat); err != nil {
		return nil, fmt.Errorf("parse analyze response: %w", err)
	}
	if chat.Error != nil {
		return nil, fmt.Errorf("llm error: %s", chat.Error.Message)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("llm returned no choices")
	}

	content := strings.TrimSpace(chat.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var parsed analyzedScenes
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &parsed); err != nil {
		return nil, fmt.Errorf("parse scene JSON: %w", err)
	}

	sb := &Storyboard{}
	for _, s := range parsed.Scenes {
		sb.Scenes = append(sb.Scenes, types.Scene{
			Narration:      s.Narration,
			KeywordHint:    s.KeywordHint,
			TargetDuration: s.Duration,
		})
	}
	if err := sb.validate(); err != nil {
		return nil, err
	}
	log.Printf("[storyboard] script split into %d scenes", len(sb.Scenes))
	return sb, nil
}
