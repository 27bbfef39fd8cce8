package matching

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryanfish1/mindvideo/config"
	"github.com/ryanfish1/mindvideo/types"
)

func testMatcherConfig() config.MatcherConfig {
	return config.MatcherConfig{
		MinWidth:          1280,
		PerPage:           10,
		MaxAttempts:       3,
		MinDurationFloor:  1.0,
		MinDurationFactor: 0.5,
		RequestsPerSecond: 100,
		TimeoutSec:        5,
		Weights: config.ScoreWeights{
			Base:           50,
			ResolutionFull: 20,
			ResolutionHD:   10,
			DurationClose:  20,
			DurationNear:   10,
			SmoothFPS:      5,
			Cap:            100,
		},
	}
}

type stubQueries struct {
	queries []string
}

func (s stubQueries) Queries(ctx context.Context, narration string, hints []string) []string {
	return s.queries
}

func makeVideo(id, width int, duration, fps float64) pexelsVideo {
	v := pexelsVideo{ID: id, Width: width, Duration: duration}
	v.VideoFiles = []struct {
		Width  int     `json:"width"`
		Height int     `json:"height"`
		FPS    float64 `json:"fps"`
		Link   string  `json:"link"`
	}{
		{Width: width, Height: width * 9 / 16, FPS: fps, Link: "https://example.com/clip.mp4"},
	}
	return v
}

func TestScoreWeighting(t *testing.T) {
	m := &Matcher{cfg: testMatcherConfig()}

	// Full HD, duration within 2s of target, smooth fps: every bonus fires
	// and the cap kicks in.
	assert.Equal(t, 95.0, m.score(1920, 5.5, 30, 5.0))

	// 1280 wide, duration 4s off target, low fps: base + HD + near.
	assert.Equal(t, 70.0, m.score(1280, 9.0, 15, 5.0))

	// Below both resolution tiers, far from target.
	assert.Equal(t, 50.0, m.score(640, 30.0, 15, 5.0))

	// No target means no duration bonus at all.
	assert.Equal(t, 75.0, m.score(1920, 3.0, 30, 0))
}

func TestSelectBestPrefersCloserDuration(t *testing.T) {
	m := &Matcher{cfg: testMatcherConfig()}

	// Target 5.0s: the 6.0s clip lands in the close band, the 12.0s clip
	// gets no duration bonus. Same resolution, same fps.
	videos := []pexelsVideo{
		makeVideo(1, 1920, 12.0, 30),
		makeVideo(2, 1920, 6.0, 30),
	}
	best := m.selectBest(videos, 5.0)
	require.NotNil(t, best)
	assert.Equal(t, "pexels-2", best.AssetID)
}

func TestSelectBestEqualScoreKeepsAPIOrder(t *testing.T) {
	m := &Matcher{cfg: testMatcherConfig()}

	// Both candidates score identically; the first returned wins so a
	// re-run with the same API response picks the same clip.
	videos := []pexelsVideo{
		makeVideo(7, 1920, 5.5, 30),
		makeVideo(8, 1920, 6.0, 30),
	}
	best := m.selectBest(videos, 5.0)
	require.NotNil(t, best)
	assert.Equal(t, "pexels-7", best.AssetID)
}

func TestSelectBestDurationFloor(t *testing.T) {
	cfg := testMatcherConfig()
	m := &Matcher{cfg: cfg}

	// Target 8.0s makes the floor 4.0s; a 3.0s clip is filtered out even
	// though it is the only candidate.
	videos := []pexelsVideo{makeVideo(1, 1920, 3.0, 30)}
	assert.Nil(t, m.selectBest(videos, 8.0))

	// A clip right at the floor survives.
	videos = []pexelsVideo{makeVideo(2, 1920, 4.0, 30)}
	best := m.selectBest(videos, 8.0)
	require.NotNil(t, best)
	assert.Equal(t, "pexels-2", best.AssetID)
}

func TestSelectBestFiltersNarrowFiles(t *testing.T) {
	m := &Matcher{cfg: testMatcherConfig()}

	videos := []pexelsVideo{makeVideo(1, 640, 10.0, 30)}
	assert.Nil(t, m.selectBest(videos, 5.0))
}

func TestMatchTriesQueriesInOrder(t *testing.T) {
	var queriesSeen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("query")
		queriesSeen = append(queriesSeen, q)
		resp := pexelsSearchResponse{}
		if q == "city night traffic" {
			resp.Videos = []pexelsVideo{makeVideo(42, 1920, 6.0, 30)}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	cfg := testMatcherConfig()
	m := &Matcher{
		cfg:        cfg,
		queries:    stubQueries{queries: []string{"empty query", "city night traffic", "never reached"}},
		pexels:     newPexelsClient(srv.URL, "test-key", cfg.PerPage, cfg.RequestsPerSecond, time.Second),
		httpClient: srv.Client(),
	}

	res, err := m.Match(context.Background(), types.Scene{Index: 0, Narration: "cars at night", TargetDuration: 5.0})
	require.NoError(t, err)
	assert.Equal(t, "pexels-42", res.AssetID)
	assert.Equal(t, "city night traffic", res.Query)
	assert.Equal(t, []string{"empty query", "city night traffic"}, queriesSeen)
}

func TestMatchExhaustedQueriesIsNoCandidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(pexelsSearchResponse{})
	}))
	defer srv.Close()

	cfg := testMatcherConfig()
	m := &Matcher{
		cfg:     cfg,
		queries: stubQueries{queries: []string{"a", "b"}},
		pexels:  newPexelsClient(srv.URL, "test-key", cfg.PerPage, cfg.RequestsPerSecond, time.Second),
	}

	_, err := m.Match(context.Background(), types.Scene{Index: 3})
	assert.True(t, errors.Is(err, ErrNoCandidate))
}

func TestMatchCapsQueryAttempts(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(pexelsSearchResponse{})
	}))
	defer srv.Close()

	cfg := testMatcherConfig()
	cfg.MaxAttempts = 2
	m := &Matcher{
		cfg:     cfg,
		queries: stubQueries{queries: []string{"a", "b", "c", "d", "e"}},
		pexels:  newPexelsClient(srv.URL, "test-key", cfg.PerPage, cfg.RequestsPerSecond, time.Second),
	}

	_, err := m.Match(context.Background(), types.Scene{})
	assert.True(t, errors.Is(err, ErrNoCandidate))
	assert.Equal(t, 2, calls)
}

func TestMatchAuthFailureIsFatal(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := testMatcherConfig()
	m := &Matcher{
		cfg:     cfg,
		queries: stubQueries{queries: []string{"a", "b", "c"}},
		pexels:  newPexelsClient(srv.URL, "bad-key", cfg.PerPage, cfg.RequestsPerSecond, time.Second),
	}

	_, err := m.Match(context.Background(), types.Scene{})
	assert.True(t, errors.Is(err, ErrAuth))
	// No point burning the remaining queries on rejected credentials.
	assert.Equal(t, 1, calls)
}
