// Package store persists finished episodes as Parquet.
//
// One ActionRow is written per controller action, including the episode
// start, so a file can be replayed frame by frame. Rows are model-agnostic:
// the particle cloud after each action is stored as three parallel columns.
package store

import (
	"sort"

	"github.com/brensch/seek/belief"
	"github.com/brensch/seek/game"
)

// Action names stored in ActionRow.Action.
const (
	ActionStart = "start"
	ActionSense = "sense"
	ActionMove  = "move"
	ActionCheck = "check"
)

// Schema is written as Parquet key/value metadata on every file.
const Schema = "seek_action_v1"

// ActionRow is a single (episode, step) snapshot.
//
// Distance is set on sense rows, the Guess columns on check rows. The target
// columns hold the true target and are only filled once it is known, which is
// when the episode reached PhaseOver.
type ActionRow struct {
	EpisodeID string `parquet:"episode_id,dict"`
	Step      int32  `parquet:"step"`
	Action    string `parquet:"action,dict"`
	DX        int32  `parquet:"dx"`
	DY        int32  `parquet:"dy"`

	GridSize      int32   `parquet:"grid_size"`
	ParticleCount int32   `parquet:"particle_count"`
	SensorNoise   float64 `parquet:"sensor_noise"`

	PlayerX int32  `parquet:"player_x"`
	PlayerY int32  `parquet:"player_y"`
	TargetX *int32 `parquet:"target_x,optional"`
	TargetY *int32 `parquet:"target_y,optional"`

	Distance     *float64 `parquet:"distance,optional"`
	GuessX       *int32   `parquet:"guess_x,optional"`
	GuessY       *int32   `parquet:"guess_y,optional"`
	GuessCorrect bool     `parquet:"guess_correct"`

	Score     int32   `parquet:"score"`
	Moves     int32   `parquet:"moves"`
	Certainty float64 `parquet:"certainty"`
	Phase     string  `parquet:"phase,dict"`
	Found     string  `parquet:"found,dict"`

	ParticleX []float32 `parquet:"particle_x"`
	ParticleY []float32 `parquet:"particle_y"`
	ParticleW []float32 `parquet:"particle_w"`

	Source    string `parquet:"source,dict"`
	Seed      int64  `parquet:"seed"`
	StartedNs int64  `parquet:"started_ns"`
}

// Meta is the per-episode information repeated on every row.
type Meta struct {
	EpisodeID string
	Source    string
	Seed      int64
	StartedNs int64
}

// NewActionRow captures snap after the action named by action. dx and dy are
// only meaningful for moves.
func NewActionRow(meta Meta, step int, action string, dx, dy int, snap game.Snapshot) ActionRow {
	row := ActionRow{
		EpisodeID:     meta.EpisodeID,
		Step:          int32(step),
		Action:        action,
		DX:            int32(dx),
		DY:            int32(dy),
		GridSize:      int32(snap.Config.GridSize),
		ParticleCount: int32(snap.Config.ParticleCount),
		SensorNoise:   snap.Config.SensorNoise,
		PlayerX:       int32(snap.Player.X),
		PlayerY:       int32(snap.Player.Y),
		Score:         int32(snap.Score),
		Moves:         int32(snap.Moves),
		Certainty:     snap.Certainty,
		Phase:         snap.Phase.String(),
		Found:         snap.Found.String(),
		Source:        meta.Source,
		Seed:          meta.Seed,
		StartedNs:     meta.StartedNs,
	}

	if action == ActionSense && len(snap.Observations) > 0 {
		d := snap.Observations[len(snap.Observations)-1].Distance
		row.Distance = &d
	}
	if action == ActionCheck && snap.LastGuess != nil {
		gx, gy := int32(snap.LastGuess.Cell.X), int32(snap.LastGuess.Cell.Y)
		row.GuessX, row.GuessY = &gx, &gy
		row.GuessCorrect = snap.LastGuess.Correct
	}
	if snap.TargetVisible {
		row.SetTarget(snap.Target)
	}

	row.ParticleX = make([]float32, len(snap.Particles))
	row.ParticleY = make([]float32, len(snap.Particles))
	row.ParticleW = make([]float32, len(snap.Particles))
	for i, p := range snap.Particles {
		row.ParticleX[i] = float32(p.X)
		row.ParticleY[i] = float32(p.Y)
		row.ParticleW[i] = float32(p.Weight)
	}
	return row
}

// SetTarget fills the target columns.
func (r *ActionRow) SetTarget(p game.Point) {
	x, y := int32(p.X), int32(p.Y)
	r.TargetX, r.TargetY = &x, &y
}

// Target returns the recorded target, if any.
func (r *ActionRow) Target() (game.Point, bool) {
	if r.TargetX == nil || r.TargetY == nil {
		return game.Point{}, false
	}
	return game.Point{X: int(*r.TargetX), Y: int(*r.TargetY)}, true
}

// Belief rebuilds the particle cloud stored on the row.
func (r *ActionRow) Belief() *belief.State {
	n := len(r.ParticleX)
	if len(r.ParticleY) < n {
		n = len(r.ParticleY)
	}
	if len(r.ParticleW) < n {
		n = len(r.ParticleW)
	}
	s := &belief.State{Particles: make([]belief.Particle, n)}
	for i := 0; i < n; i++ {
		s.Particles[i] = belief.Particle{
			X:      float64(r.ParticleX[i]),
			Y:      float64(r.ParticleY[i]),
			Weight: float64(r.ParticleW[i]),
		}
	}
	return s
}

// Config returns the game config the row was recorded under.
func (r *ActionRow) Config() game.Config {
	return game.Config{
		GridSize:      int(r.GridSize),
		ParticleCount: int(r.ParticleCount),
		SensorNoise:   r.SensorNoise,
	}
}

// Observations replays the sense readings recorded up to and including step.
// rows must belong to a single episode.
func Observations(rows []ActionRow, step int) []belief.Observation {
	var out []belief.Observation
	for _, r := range rows {
		if int(r.Step) > step {
			continue
		}
		if r.Action == ActionSense && r.Distance != nil {
			out = append(out, belief.Observation{
				Origin:   game.Point{X: int(r.PlayerX), Y: int(r.PlayerY)},
				Distance: *r.Distance,
			})
		}
	}
	return out
}

// EpisodeRows returns the rows of one episode ordered by step.
func EpisodeRows(rows []ActionRow, episodeID string) []ActionRow {
	var out []ActionRow
	for _, r := range rows {
		if r.EpisodeID == episodeID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out
}
