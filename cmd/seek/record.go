package main

import (
	"time"

	"github.com/google/uuid"

	"github.com/brensch/seek/game"
	"github.com/brensch/seek/store"
)

// recorder buffers the rows of the episode in progress and hands finished
// episodes to a BatchWriter.
type recorder struct {
	w    *store.BatchWriter
	seed int64

	meta store.Meta
	step int
	rows []store.ActionRow
}

func newRecorder(dir string, seed int64) (*recorder, error) {
	w, err := store.NewBatchWriter(dir)
	if err != nil {
		return nil, err
	}
	return &recorder{w: w, seed: seed}, nil
}

// start begins a new episode from the controller's current state.
func (r *recorder) start(g *game.Game) {
	r.meta = store.Meta{
		EpisodeID: uuid.NewString(),
		Source:    "interactive",
		Seed:      r.seed,
		StartedNs: time.Now().UnixNano(),
	}
	r.step = 0
	r.rows = r.rows[:0]
	r.rows = append(r.rows, store.NewActionRow(r.meta, 0, store.ActionStart, 0, 0, g.Snapshot()))
}

func (r *recorder) action(g *game.Game, action string, dx, dy int) {
	r.step++
	r.rows = append(r.rows, store.NewActionRow(r.meta, r.step, action, dx, dy, g.Snapshot()))
}

// flush writes the buffered episode, filling in the target when the episode
// has ended.
func (r *recorder) flush(g *game.Game) error {
	if len(r.rows) == 0 {
		return nil
	}
	if t, ok := g.Target(); ok {
		for i := range r.rows {
			r.rows[i].SetTarget(t)
		}
	}
	err := r.w.WriteEpisode(r.rows)
	r.rows = r.rows[:0]
	return err
}

func (r *recorder) close(g *game.Game) (string, int, error) {
	if err := r.flush(g); err != nil {
		return "", 0, err
	}
	path, _, episodes, err := r.w.Finalize()
	return path, episodes, err
}
