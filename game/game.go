package game

import (
	"errors"
	"fmt"
	"math"

	"github.com/brensch/seek/belief"
)

var (
	// ErrBeliefSize is returned by LoadBelief when the cloud size does not
	// match the episode's particle count.
	ErrBeliefSize = errors.New("belief size does not match particle count")
	// ErrInvalidPlacement is returned by Place for out-of-bounds or
	// coincident positions.
	ErrInvalidPlacement = errors.New("invalid placement")
	// ErrNotPlaying is returned by the episode hooks outside PhasePlaying.
	ErrNotPlaying = errors.New("episode is not in progress")
)

// Game is the controller for one player's episodes.
type Game struct {
	rng belief.Source

	cfg          Config
	phase        Phase
	player       Point
	target       Point
	belief       *belief.State
	observations []belief.Observation
	score        int
	moves        int
	certainty    float64
	found        FoundBy
	lastGuess    *Guess
}

// New returns a controller in PhaseSetup drawing all randomness from rng.
func New(rng belief.Source) *Game {
	if rng == nil {
		panic("game: nil random source")
	}
	return &Game{rng: rng, phase: PhaseSetup}
}

// NewEpisode validates cfg and starts a fresh episode, replacing any
// previous one. On a config error nothing changes.
func (g *Game) NewEpisode(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	player := g.randomCell(cfg.GridSize)
	target := g.randomCell(cfg.GridSize)
	for target == player {
		target = g.randomCell(cfg.GridSize)
	}

	g.cfg = cfg
	g.player = player
	g.target = target
	g.belief = belief.InitializeUniform(cfg.GridSize, cfg.ParticleCount, g.rng)
	g.observations = nil
	g.score = StartScore
	g.moves = 0
	g.certainty = 0
	g.found = FoundNone
	g.lastGuess = nil
	g.phase = PhasePlaying
	return nil
}

// Restart starts a new episode. A nil cfg reuses the current config.
func (g *Game) Restart(cfg *Config) error {
	next := g.cfg
	if cfg != nil {
		next = *cfg
	}
	return g.NewEpisode(next)
}

func (g *Game) randomCell(size int) Point {
	x := int(g.rng.Float64() * float64(size))
	y := int(g.rng.Float64() * float64(size))
	return Point{X: x, Y: y}
}

// Sense takes a noisy range reading from the player's cell and folds it into
// the belief. It reports whether the action was applied.
func (g *Game) Sense() bool {
	if g.phase != PhasePlaying {
		return false
	}

	trueDist := distance(g.player, g.target)
	noise := (g.rng.Float64()*2 - 1) * g.cfg.SensorNoise
	obs := belief.Observation{
		Origin:   g.player,
		Distance: math.Max(0, trueDist+noise),
	}
	g.observations = append(g.observations, obs)

	step := belief.Update(g.belief, obs, g.cfg.filterParams(), g.rng)
	g.belief = step.Next
	g.certainty = belief.Certainty(step.Posterior, g.cfg.ParticleCount)

	g.moves++
	g.charge(SenseCost)
	return true
}

// Move steps the player by (dx, dy), each in {-1, 0, 1}, clamped to the grid.
// Landing on the target ends the episode. Out-of-range deltas are rejected.
func (g *Game) Move(dx, dy int) bool {
	if g.phase != PhasePlaying {
		return false
	}
	if dx < -1 || dx > 1 || dy < -1 || dy > 1 {
		return false
	}

	hi := g.cfg.GridSize - 1
	g.player = Point{
		X: clampInt(g.player.X+dx, 0, hi),
		Y: clampInt(g.player.Y+dy, 0, hi),
	}
	g.moves++
	g.charge(MoveCost)

	if g.player == g.target {
		g.found = FoundByContact
		g.phase = PhaseOver
	}
	return true
}

// CanCheck reports whether CheckLocation is currently enabled.
func (g *Game) CanCheck() bool {
	return g.phase == PhasePlaying && g.certainty >= CheckThreshold
}

// CheckLocation commits to the belief's most massive cell. A correct guess
// ends the episode with a bonus; a wrong one costs points and play goes on.
// When checking is not enabled the call is ignored.
func (g *Game) CheckLocation() (Guess, bool) {
	if !g.CanCheck() {
		return Guess{}, false
	}

	cell, mass := belief.Mode(g.belief, g.cfg.GridSize)
	guess := Guess{Cell: cell, Mass: mass, Correct: cell == g.target}
	if guess.Correct {
		g.score += CorrectGuessGain
		g.found = FoundByGuess
		g.phase = PhaseOver
	} else {
		g.charge(WrongGuessCost)
	}
	g.lastGuess = &guess
	return guess, true
}

// LoadBelief replaces the belief with a copy of s and recomputes certainty
// from its weights. Used to replay recorded clouds and to set up scenarios.
func (g *Game) LoadBelief(s *belief.State) error {
	if g.phase != PhasePlaying {
		return ErrNotPlaying
	}
	if s.Len() != g.cfg.ParticleCount {
		return fmt.Errorf("%w: got %d want %d", ErrBeliefSize, s.Len(), g.cfg.ParticleCount)
	}
	g.belief = s.Clone()
	g.certainty = belief.Certainty(g.belief, g.cfg.ParticleCount)
	return nil
}

// Place moves the player and target. Used to set up scenarios.
func (g *Game) Place(player, target Point) error {
	if g.phase != PhasePlaying {
		return ErrNotPlaying
	}
	if !g.inBounds(player) || !g.inBounds(target) {
		return fmt.Errorf("%w: %v / %v outside %dx%d grid", ErrInvalidPlacement, player, target, g.cfg.GridSize, g.cfg.GridSize)
	}
	if player == target {
		return fmt.Errorf("%w: player and target share %v", ErrInvalidPlacement, player)
	}
	g.player = player
	g.target = target
	return nil
}

func (g *Game) charge(cost int) {
	g.score -= cost
	if g.score < 0 {
		g.score = 0
	}
}

func (g *Game) inBounds(p Point) bool {
	return p.X >= 0 && p.X < g.cfg.GridSize && p.Y >= 0 && p.Y < g.cfg.GridSize
}

func (g *Game) Phase() Phase       { return g.phase }
func (g *Game) Score() int         { return g.score }
func (g *Game) Moves() int         { return g.moves }
func (g *Game) Certainty() float64 { return g.certainty }
func (g *Game) Config() Config     { return g.cfg }
func (g *Game) Player() Point      { return g.player }
func (g *Game) Found() FoundBy     { return g.found }

// CertaintyPercent is certainty rounded to a 0-100 display value.
func (g *Game) CertaintyPercent() int {
	return int(math.Round(g.certainty * 100))
}

// LastGuess returns the most recent CheckLocation result of this episode.
func (g *Game) LastGuess() (Guess, bool) {
	if g.lastGuess == nil {
		return Guess{}, false
	}
	return *g.lastGuess, true
}

// Target returns the target position once the episode is over.
func (g *Game) Target() (Point, bool) {
	if g.phase != PhaseOver {
		return Point{}, false
	}
	return g.target, true
}

// Observations returns a copy of the reading history in order.
func (g *Game) Observations() []belief.Observation {
	return append([]belief.Observation(nil), g.observations...)
}

// Particles returns a copy of the current particle cloud.
func (g *Game) Particles() []belief.Particle {
	if g.belief == nil {
		return nil
	}
	return append([]belief.Particle(nil), g.belief.Particles...)
}

// MassHistogram returns the belief mass per cell.
func (g *Game) MassHistogram() map[Point]float64 {
	if g.belief == nil {
		return map[Point]float64{}
	}
	return belief.MassHistogram(g.belief, g.cfg.GridSize)
}

// MassGrid returns the belief mass as a dense [y][x] grid.
func (g *Game) MassGrid() [][]float64 {
	return belief.MassGrid(g.belief, g.cfg.GridSize)
}

// Snapshot copies the externally visible state.
func (g *Game) Snapshot() Snapshot {
	s := Snapshot{
		Config:       g.cfg,
		Phase:        g.phase,
		Player:       g.player,
		Score:        g.score,
		Moves:        g.moves,
		Certainty:    g.certainty,
		Found:        g.found,
		Observations: g.Observations(),
		Particles:    g.Particles(),
	}
	if t, ok := g.Target(); ok {
		s.Target = t
		s.TargetVisible = true
	}
	if g.lastGuess != nil {
		guess := *g.lastGuess
		s.LastGuess = &guess
	}
	return s
}

func distance(a, b Point) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
