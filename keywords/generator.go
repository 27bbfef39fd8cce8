// Package keywords turns scene narration into English stock-footage
// search queries via a chat-completions endpoint (DeepSeek or any
// compatible service). The service is best-effort: any failure falls back
// to the scene's literal keyword hints, so a run never dies here.
package keywords

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/ryanfish1/mindvideo/config"
)

const systemPrompt = `You are a professional video stock footage search expert. ` +
	`Given scene narration, produce 3-5 concrete English search queries describing ` +
	`visual scenes (subject + action/state, e.g. "person counting coins worried", ` +
	`not "money"). Vary the angle across queries: people, objects, environment, abstract. ` +
	`Respond with ONLY valid JSON: {"queries":[{"query":"...","reason":"...","priority":1}]}`

// Generator produces prioritized search queries for a scene.
type Generator struct {
	cfg        config.KeywordsConfig
	apiKey     string
	httpClient *http.Client
}

func NewGenerator(cfg config.KeywordsConfig) *Generator {
	return &Generator{
		cfg:        cfg,
		apiKey:     os.Getenv("DEEPSEEK_API_KEY"),
		httpClient: &http.Client{Timeout: cfg.Timeout()},
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type queryJSON struct {
	Queries []struct {
		Query    string `json:"query"`
		Reason   string `json:"reason"`
		Priority int    `json:"priority"`
	} `json:"queries"`
}

// Queries returns search queries for the narration, highest priority
// first, capped at the configured maximum. On any LLM failure it returns
// the fallback built from the scene's literal keyword hints.
func (g *Generator) Queries(ctx context.Context, narration string, hints []string) []string {
	queries, err := g.generate(ctx, narration, hints)
	if err != nil {
		log.Printf("[keywords] generation failed: %v, falling back to literal hints", err)
		return Fallback(hints)
	}
	if len(queries) == 0 {
		return Fallback(hints)
	}
	return queries
}

func (g *Generator) generate(ctx context.Context, narration string, hints []string) ([]string, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("DEEPSEEK_API_KEY not set")
	}

	userPrompt := fmt.Sprintf("Narration:\n%s\n\nKeyword hints: %s\n\nRespond ONLY with valid JSON.",
		narration, strings.Join(hints, ", "))

	reqBody := chatRequest{
		Model: g.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    g.cfg.Temperature,
		ResponseFormat: &respFormat{Type: "json_object"},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.cfg.BaseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("keyword request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var chat chatResponse
	if err := json.Unmarshal(respBytes, &chat); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if chat.Error != nil {
		return nil, fmt.Errorf("llm error: %s", chat.Error.Message)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("llm returned no choices")
	}

	var parsed queryJSON
	content := cleanJSON(chat.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("parse query JSON: %w", err)
	}

	sort.SliceStable(parsed.Queries, func(i, j int) bool {
		return parsed.Queries[i].Priority < parsed.Queries[j].Priority
	})

	var out []string
	for _, q := range parsed.Queries {
		q.Query = strings.TrimSpace(q.Query)
		if q.Query == "" {
			continue
		}
		out = append(out, q.Query)
		if g.cfg.MaxQueries > 0 && len(out) >= g.cfg.MaxQueries {
			break
		}
	}
	return out, nil
}

// Fallback builds the literal-hint query used when generation is
// unavailable: all hints joined as one query, preserving hint order.
func Fallback(hints []string) []string {
	joined := strings.TrimSpace(strings.Join(hints, " "))
	if joined == "" {
		return []string{"abstract concept"}
	}
	return []string{joined}
}

// cleanJSON strips markdown fences if the model wraps its response in
// ```json ... ```
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
