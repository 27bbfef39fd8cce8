package server

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Polling a project while a background generation updates its status is
// the normal usage pattern; serializing must only ever see copies. Run
// with the race detector to verify.
func TestProjectSnapshotSafeDuringUpdates(t *testing.T) {
	st := newStore()
	p := st.createProject("demo", "", "script")

	const iterations = 500
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			st.updateProject(p.ID, func(p *Project) {
				p.Status = StatusGenerating
				p.Script = "updated"
			})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			snap, ok := st.projectSnapshot(p.ID)
			if !ok {
				continue
			}
			_, err := json.Marshal(snap)
			assert.NoError(t, err)
		}
	}()
	wg.Wait()
}

func TestTaskSnapshotSafeDuringUpdates(t *testing.T) {
	st := newStore()
	task := st.createTask("project-1", 3)

	const iterations = 500
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			st.updateTask(task.ID, func(t *Task) {
				t.Stage = TaskRunning
				t.Progress = float64(i) / iterations
			})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			snap, ok := st.taskSnapshot(task.ID)
			if !ok {
				continue
			}
			_, err := json.Marshal(snap)
			assert.NoError(t, err)
		}
	}()
	wg.Wait()
}

func TestListProjectsReturnsCopies(t *testing.T) {
	st := newStore()
	p := st.createProject("demo", "", "")

	list := st.listProjects()
	require.Len(t, list, 1)

	// Mutating the returned record must not leak into the store.
	list[0].Status = StatusFailed
	snap, _ := st.projectSnapshot(p.ID)
	assert.Equal(t, StatusDraft, snap.Status)
}

func TestUpdateMissingRecords(t *testing.T) {
	st := newStore()
	assert.False(t, st.updateProject("nope", func(*Project) {}))
	assert.False(t, st.updateTask("nope", func(*Task) {}))
}
