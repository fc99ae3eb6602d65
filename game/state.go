// Package game is the controller for the search game.
//
// A Game owns one episode at a time: the player and hidden target positions,
// score, move count, observation history and the particle belief. It is
// mutated only through Sense, Move, CheckLocation and Restart. A Game is not
// safe for concurrent use; run one per goroutine.
package game

import "github.com/brensch/seek/belief"

// Point is a grid coordinate.
// (0,0) is the top-left cell; y grows downward, matching row-major scans.
type Point = belief.Cell

// Phase is the controller state.
type Phase int

const (
	PhaseSetup Phase = iota
	PhasePlaying
	PhaseOver
)

func (p Phase) String() string {
	switch p {
	case PhaseSetup:
		return "setup"
	case PhasePlaying:
		return "playing"
	case PhaseOver:
		return "over"
	default:
		return "unknown"
	}
}

// FoundBy records how an episode ended.
type FoundBy int

const (
	FoundNone FoundBy = iota
	FoundByContact
	FoundByGuess
)

func (f FoundBy) String() string {
	switch f {
	case FoundByContact:
		return "contact"
	case FoundByGuess:
		return "guess"
	default:
		return "none"
	}
}

// Guess is the result of a CheckLocation call.
type Guess struct {
	Cell    Point
	Mass    float64
	Correct bool
}

// Scoring constants.
const (
	StartScore       = 100
	SenseCost        = 1
	MoveCost         = 2
	WrongGuessCost   = 10
	CorrectGuessGain = 20

	// CheckThreshold is the certainty at which CheckLocation is enabled.
	CheckThreshold = 0.5
)

// Snapshot is a read-only copy of everything a renderer may show.
// Target is the zero Point unless TargetVisible is set, which happens only
// once the episode is over.
type Snapshot struct {
	Config        Config
	Phase         Phase
	Player        Point
	Target        Point
	TargetVisible bool
	Score         int
	Moves         int
	Certainty     float64
	Found         FoundBy
	Observations  []belief.Observation
	Particles     []belief.Particle
	LastGuess     *Guess
}
