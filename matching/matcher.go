// Package matching finds the best stock clip for a scene: it turns the
// scene into search queries, asks the video search service for candidates
// and picks the top one by a weighted resolution/duration score.
package matching

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/ryanfish1/mindvideo/config"
	"github.com/ryanfish1/mindvideo/types"
)

// ErrNoCandidate reports that no clip passed the minimum-duration filter
// across all attempted queries. The caller decides whether to relax and
// retry or abort the run.
var ErrNoCandidate = errors.New("no candidate video found")

// QueryGenerator produces prioritized search queries for a scene's
// narration. Failures inside the generator never surface here; it always
// returns at least a literal-hint fallback.
type QueryGenerator interface {
	Queries(ctx context.Context, narration string, hints []string) []string
}

// Matcher selects and downloads stock clips.
type Matcher struct {
	cfg        config.MatcherConfig
	queries    QueryGenerator
	pexels     *pexelsClient
	httpClient *http.Client
}

func New(cfg config.MatcherConfig, gen QueryGenerator) *Matcher {
	return &Matcher{
		cfg:        cfg,
		queries:    gen,
		pexels:     newPexelsClient(cfg.PexelsURL, os.Getenv("PEXELS_API_KEY"), cfg.PerPage, cfg.RequestsPerSecond, cfg.Timeout()),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Match finds the best clip for the scene. Queries are tried in priority
// order up to the configured attempt limit; the first query yielding a
// candidate that passes the duration floor wins. Exhausting all queries
// is ErrNoCandidate.
func (m *Matcher) Match(ctx context.Context, scene types.Scene) (*types.MatchResult, error) {
	qs := m.queries.Queries(ctx, scene.Narration, scene.KeywordHint)
	if m.cfg.MaxAttempts > 0 && len(qs) > m.cfg.MaxAttempts {
		qs = qs[:m.cfg.MaxAttempts]
	}

	for i, q := range qs {
		log.Printf("[match] scene %d attempt %d/%d: %q", scene.Index, i+1, len(qs), q)

		videos, err := m.pexels.search(ctx, q)
		if err != nil {
			if errors.Is(err, ErrAuth) || ctx.Err() != nil {
				return nil, err
			}
			log.Printf("[match] scene %d query %q failed: %v", scene.Index, q, err)
			continue
		}
		if len(videos) == 0 {
			continue
		}

		if best := m.selectBest(videos, scene.TargetDuration); best != nil {
			best.Query = q
			log.Printf("[match] scene %d: picked %s (%dx%d, %.1fs, score %.0f)",
				scene.Index, best.AssetID, best.Width, best.Height, best.Duration, best.Score)
			return best, nil
		}
	}

	return nil, fmt.Errorf("%w: scene %d after %d queries", ErrNoCandidate, scene.Index, len(qs))
}

// selectBest filters and ranks candidates. Each video contributes its
// first file at or above the minimum width. Candidates shorter than the
// duration floor are dropped; the floor is a fallback guess since the
// exact audio duration is not known until synthesis runs. The sort is
// stable, so equal scores keep API order and the first-returned wins.
func (m *Matcher) selectBest(videos []pexelsVideo, target float64) *types.MatchResult {
	floor := m.cfg.MinDurationFloor
	if f := m.cfg.MinDurationFactor * target; f > floor {
		floor = f
	}

	var candidates []types.MatchResult
	for _, v := range videos {
		for _, f := range v.VideoFiles {
			if f.Width < m.cfg.MinWidth {
				continue
			}
			if v.Duration < floor {
				break
			}
			fps := f.FPS
			if fps == 0 {
				fps = v.AvgFPS
			}
			candidates = append(candidates, types.MatchResult{
				AssetID:     fmt.Sprintf("pexels-%d", v.ID),
				Width:       f.Width,
				Height:      f.Height,
				Duration:    v.Duration,
				FPS:         fps,
				DownloadURL: f.Link,
				Score:       m.score(f.Width, v.Duration, fps, target),
			})
			break // one file per video, first acceptable resolution
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	best := candidates[0]
	return &best
}

// score is the weighted candidate rank: resolution and closeness of the
// clip's duration to the target, plus a small frame-rate bonus.
func (m *Matcher) score(width int, duration, fps, target float64) float64 {
	w := m.cfg.Weights
	score := w.Base

	switch {
	case width >= 1920:
		score += w.ResolutionFull
	case width >= 1280:
		score += w.ResolutionHD
	}

	if target > 0 {
		diff := duration - target
		if diff < 0 {
			diff = -diff
		}
		switch {
		case diff < 2:
			score += w.DurationClose
		case diff < 5:
			score += w.DurationNear
		}
	}

	if fps >= 24 {
		score += w.SmoothFPS
	}

	if w.Cap > 0 && score > w.Cap {
		score = w.Cap
	}
	return score
}

// Download fetches the matched asset into the scene's scratch area,
// retrying transient failures.
func (m *Matcher) Download(ctx context.Context, match *types.MatchResult, destPath string) error {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		err = m.download(ctx, match.DownloadURL, destPath)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[match] download attempt %d for %s failed: %v", attempt, match.AssetID, err)
		select {
		case <-time.After(time.Duration(attempt) * 2 * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("download %s after 3 attempts: %w", match.AssetID, err)
}

func (m *Matcher) download(ctx context.Context, rawURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return err
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d downloading asset", resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return err
	}
	return nil
}
