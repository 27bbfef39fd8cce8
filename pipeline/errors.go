package pipeline

import (
	"fmt"
	"strings"
)

// SceneError is a per-scene failure tagged with the stage that produced
// it. The wrapped error carries the class (matching.ErrNoCandidate,
// synthesis.ErrTimeout, media.ErrConform, ...) so callers can still use
// errors.Is on the chain.
type SceneError struct {
	Scene int
	Stage string
	Err   error
}

func (e *SceneError) Error() string {
	return fmt.Sprintf("scene %d failed at %s: %v", e.Scene, e.Stage, e.Err)
}

func (e *SceneError) Unwrap() error { return e.Err }

// RunError aggregates a failed run: the first fatal scene error plus
// which scenes finished before the run stopped.
type RunError struct {
	First      error
	Finished   []int
	Unfinished []int
}

func (e *RunError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pipeline run failed: %v", e.First)
	if len(e.Unfinished) > 0 {
		fmt.Fprintf(&b, " (finished scenes: %v, unfinished: %v)", e.Finished, e.Unfinished)
	}
	return b.String()
}

func (e *RunError) Unwrap() error { return e.First }
