// Package agent plays search episodes through the public game API.
package agent

import (
	"fmt"

	"github.com/brensch/seek/belief"
	"github.com/brensch/seek/game"
	"github.com/brensch/seek/store"
)

// Kind names a controller action. Values match the store action column.
type Kind string

const (
	Sense Kind = store.ActionSense
	Move  Kind = store.ActionMove
	Check Kind = store.ActionCheck
)

// Action is one decision of a policy. DX and DY are only used by Move.
type Action struct {
	Kind   Kind
	DX, DY int
}

func (a Action) String() string {
	if a.Kind == Move {
		return fmt.Sprintf("move(%d,%d)", a.DX, a.DY)
	}
	return string(a.Kind)
}

// Apply runs a on g and reports whether the controller accepted it.
func Apply(g *game.Game, a Action) bool {
	switch a.Kind {
	case Sense:
		return g.Sense()
	case Move:
		return g.Move(a.DX, a.DY)
	case Check:
		_, ok := g.CheckLocation()
		return ok
	default:
		return false
	}
}

// Policy chooses the next action for a game in PhasePlaying.
type Policy interface {
	// Reset clears per-episode memory.
	Reset()
	Next(g *game.Game) Action
}

// Seeker senses a few times at every stop and walks toward the most likely
// cell. It checks once the controller allows it and the most likely cell
// holds at least MinModeMass of the belief, unless that cell has already
// been guessed wrong.
type Seeker struct {
	SensesPerStop int
	MinModeMass   float64

	sensed  int
	refuted map[game.Point]bool
}

// Defaults for zero Seeker fields.
const (
	DefaultSensesPerStop = 2
	DefaultMinModeMass   = 0.5
)

func NewSeeker(sensesPerStop int, minModeMass float64) *Seeker {
	s := &Seeker{SensesPerStop: sensesPerStop, MinModeMass: minModeMass}
	s.Reset()
	return s
}

func (s *Seeker) Reset() {
	s.sensed = 0
	s.refuted = make(map[game.Point]bool)
}

func (s *Seeker) Next(g *game.Game) Action {
	if s.refuted == nil {
		s.refuted = make(map[game.Point]bool)
	}
	if guess, ok := g.LastGuess(); ok && !guess.Correct {
		s.refuted[guess.Cell] = true
	}

	player := g.Player()
	grid := g.MassGrid()

	minMass := s.MinModeMass
	if minMass <= 0 {
		minMass = DefaultMinModeMass
	}
	if g.CanCheck() {
		// CheckLocation always guesses the unfiltered mode.
		mode, mass, ok := heaviest(grid, nil)
		if ok && mass >= minMass && mode != player && !s.refuted[mode] {
			return Action{Kind: Check}
		}
	}

	perStop := s.SensesPerStop
	if perStop <= 0 {
		perStop = DefaultSensesPerStop
	}
	if s.sensed < perStop {
		s.sensed++
		return Action{Kind: Sense}
	}

	skip := func(p game.Point) bool { return p == player || s.refuted[p] }
	goal, _, ok := heaviest(grid, skip)
	if !ok {
		goal = firstCell(len(grid), skip)
	}
	s.sensed = 0
	return Action{Kind: Move, DX: sign(goal.X - player.X), DY: sign(goal.Y - player.Y)}
}

// Wanderer is a baseline that senses or steps at random and checks whenever
// checking is enabled.
type Wanderer struct {
	Rng        belief.Source
	SenseRatio float64
}

func (w *Wanderer) Reset() {}

func (w *Wanderer) Next(g *game.Game) Action {
	if g.CanCheck() {
		return Action{Kind: Check}
	}
	if w.Rng.Float64() < w.SenseRatio {
		return Action{Kind: Sense}
	}
	for {
		dx := int(w.Rng.Float64()*3) - 1
		dy := int(w.Rng.Float64()*3) - 1
		if dx != 0 || dy != 0 {
			return Action{Kind: Move, DX: dx, DY: dy}
		}
	}
}

// heaviest returns the cell with the most mass in row-major order, ignoring
// cells for which skip is true. Cells without mass never win.
func heaviest(grid [][]float64, skip func(game.Point) bool) (game.Point, float64, bool) {
	best := game.Point{}
	bestMass := 0.0
	found := false
	for y := range grid {
		for x, m := range grid[y] {
			p := game.Point{X: x, Y: y}
			if skip != nil && skip(p) {
				continue
			}
			if m > bestMass {
				best, bestMass, found = p, m, true
			}
		}
	}
	return best, bestMass, found
}

func firstCell(size int, skip func(game.Point) bool) game.Point {
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			p := game.Point{X: x, Y: y}
			if !skip(p) {
				return p
			}
		}
	}
	return game.Point{}
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
