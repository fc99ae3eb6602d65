// Package render draws game state for the terminal, the replay viewer and
// episode thumbnails.
package render

import (
	"fmt"

	"github.com/brensch/seek/belief"
	"github.com/brensch/seek/game"
	"github.com/brensch/seek/store"
)

// Frame is everything needed to draw one moment of an episode.
type Frame struct {
	GridSize      int
	Step          int
	Action        string
	Phase         string
	Player        game.Point
	Target        game.Point
	TargetVisible bool
	Score         int
	Moves         int
	Certainty     float64
	// Mass is the belief mass per cell, indexed [y][x].
	Mass         [][]float64
	Observations []belief.Observation
}

// FromSnapshot builds a frame from live controller state.
func FromSnapshot(s game.Snapshot) Frame {
	cloud := &belief.State{Particles: s.Particles}
	return Frame{
		GridSize:      s.Config.GridSize,
		Step:          s.Moves,
		Phase:         s.Phase.String(),
		Player:        s.Player,
		Target:        s.Target,
		TargetVisible: s.TargetVisible,
		Score:         s.Score,
		Moves:         s.Moves,
		Certainty:     s.Certainty,
		Mass:          belief.MassGrid(cloud, s.Config.GridSize),
		Observations:  s.Observations,
	}
}

// FromRows rebuilds the frame at step from the rows of one recorded episode.
// Rows must be ordered by step, as returned by store.EpisodeRows. The target
// is drawn on every frame when the recording knows it.
func FromRows(rows []store.ActionRow, step int) (Frame, error) {
	idx := -1
	for i := range rows {
		if int(rows[i].Step) == step {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Frame{}, fmt.Errorf("step %d not in episode (%d rows)", step, len(rows))
	}

	r := &rows[idx]
	size := int(r.GridSize)
	f := Frame{
		GridSize:     size,
		Step:         step,
		Action:       r.Action,
		Phase:        r.Phase,
		Player:       game.Point{X: int(r.PlayerX), Y: int(r.PlayerY)},
		Score:        int(r.Score),
		Moves:        int(r.Moves),
		Certainty:    r.Certainty,
		Mass:         belief.MassGrid(r.Belief(), size),
		Observations: store.Observations(rows[:idx+1], step),
	}
	if t, ok := r.Target(); ok {
		f.Target = t
		f.TargetVisible = true
	}
	return f, nil
}

// MaxMass is the heaviest cell of the frame, used to normalise the heat map.
func (f Frame) MaxMass() float64 {
	best := 0.0
	for _, row := range f.Mass {
		for _, m := range row {
			if m > best {
				best = m
			}
		}
	}
	return best
}
