package keywords

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryanfish1/mindvideo/config"
)

func testGenerator(t *testing.T, srvURL string) *Generator {
	t.Helper()
	return &Generator{
		cfg: config.KeywordsConfig{
			BaseURL:     srvURL,
			Model:       "deepseek-chat",
			Temperature: 0.7,
			MaxQueries:  3,
			TimeoutSec:  5,
		},
		apiKey:     "test-key",
		httpClient: &http.Client{},
	}
}

func chatReply(content string) []byte {
	var resp chatResponse
	resp.Choices = make([]struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}, 1)
	resp.Choices[0].Message.Content = content
	out, _ := json.Marshal(resp)
	return out
}

func TestQueriesSortedByPriorityAndCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(chatReply(`{"queries":[
			{"query":"d","priority":4},
			{"query":"b","priority":2},
			{"query":"a","priority":1},
			{"query":"c","priority":3}
		]}`))
	}))
	defer srv.Close()

	g := testGenerator(t, srv.URL)
	qs := g.Queries(context.Background(), "some narration", nil)
	assert.Equal(t, []string{"a", "b", "c"}, qs)
}

func TestQueriesStripsMarkdownFences(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(chatReply("```json\n{\"queries\":[{\"query\":\"ocean waves\",\"priority\":1}]}\n```"))
	}))
	defer srv.Close()

	g := testGenerator(t, srv.URL)
	qs := g.Queries(context.Background(), "the sea", nil)
	assert.Equal(t, []string{"ocean waves"}, qs)
}

func TestQueriesFallsBackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	}))
	defer srv.Close()

	g := testGenerator(t, srv.URL)
	qs := g.Queries(context.Background(), "narration", []string{"city", "night"})
	assert.Equal(t, []string{"city night"}, qs)
}

func TestQueriesFallsBackWithoutAPIKey(t *testing.T) {
	g := testGenerator(t, "http://unused")
	g.apiKey = ""
	qs := g.Queries(context.Background(), "narration", []string{"forest"})
	assert.Equal(t, []string{"forest"}, qs)
}

func TestQueriesFallsBackOnEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(chatReply(`{"queries":[]}`))
	}))
	defer srv.Close()

	g := testGenerator(t, srv.URL)
	qs := g.Queries(context.Background(), "narration", []string{"rain"})
	assert.Equal(t, []string{"rain"}, qs)
}

func TestFallback(t *testing.T) {
	assert.Equal(t, []string{"city night traffic"}, Fallback([]string{"city", "night", "traffic"}))
	// No hints at all still yields something searchable.
	assert.Equal(t, []string{"abstract concept"}, Fallback(nil))
	assert.Equal(t, []string{"abstract concept"}, Fallback([]string{"  "}))
}

func TestGenerateSendsAuthAndModel(t *testing.T) {
	var auth, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		body = req.Model
		_, _ = w.Write(chatReply(`{"queries":[{"query":"x","priority":1}]}`))
	}))
	defer srv.Close()

	g := testGenerator(t, srv.URL)
	_, err := g.generate(context.Background(), "narration", nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-key", auth)
	assert.Equal(t, "deepseek-chat", body)
}

func TestCleanJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, cleanJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanJSON(`{"a":1}`))
}
