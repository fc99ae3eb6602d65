package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brensch/seek/game"
	"github.com/brensch/seek/store"
)

// ErrRejected is returned when a policy picks an action the controller
// refuses, which would otherwise stall the episode.
var ErrRejected = errors.New("action rejected by controller")

// DefaultMaxActions caps episodes when Options.MaxActions is zero.
const DefaultMaxActions = 500

type Options struct {
	// MaxActions bounds the number of actions taken. Zero means DefaultMaxActions.
	MaxActions int
	// EpisodeID is stamped on recorded rows. Empty means a fresh UUID.
	EpisodeID string
	Source    string
	Seed      int64
	// Record enables per-action rows in the outcome.
	Record bool

	OnAction      func(Action)
	StopRequested func() bool
}

// Outcome summarises one episode.
type Outcome struct {
	EpisodeID string
	// Completed is set when the episode reached PhaseOver.
	Completed bool
	// Truncated is set when MaxActions ran out first.
	Truncated   bool
	Found       game.FoundBy
	Target      game.Point
	Score       int
	Moves       int
	Actions     int
	Senses      int
	Checks      int
	WrongChecks int
	Duration    time.Duration

	Rows []store.ActionRow
}

// PlayEpisode drives g with p until the episode is over, the action cap is
// hit, StopRequested fires or ctx is done. g must be in PhasePlaying.
//
// When recording, the target columns of every row are filled in once the
// episode has ended, since the controller only reveals it then.
func PlayEpisode(ctx context.Context, g *game.Game, p Policy, opts Options) (Outcome, error) {
	if g.Phase() != game.PhasePlaying {
		return Outcome{}, fmt.Errorf("play episode: %w", game.ErrNotPlaying)
	}
	maxActions := opts.MaxActions
	if maxActions <= 0 {
		maxActions = DefaultMaxActions
	}
	stopRequested := opts.StopRequested
	if stopRequested == nil {
		stopRequested = func() bool { return false }
	}

	out := Outcome{EpisodeID: opts.EpisodeID}
	if out.EpisodeID == "" {
		out.EpisodeID = uuid.NewString()
	}
	meta := store.Meta{
		EpisodeID: out.EpisodeID,
		Source:    opts.Source,
		Seed:      opts.Seed,
		StartedNs: time.Now().UnixNano(),
	}
	start := time.Now()

	p.Reset()
	if opts.Record {
		out.Rows = make([]store.ActionRow, 0, 64)
		out.Rows = append(out.Rows, store.NewActionRow(meta, 0, store.ActionStart, 0, 0, g.Snapshot()))
	}

	finish := func() Outcome {
		out.Score = g.Score()
		out.Moves = g.Moves()
		out.Found = g.Found()
		out.Duration = time.Since(start)
		if t, ok := g.Target(); ok {
			out.Completed = true
			out.Target = t
			for i := range out.Rows {
				out.Rows[i].SetTarget(t)
			}
		}
		return out
	}

	for g.Phase() == game.PhasePlaying {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return finish(), ctx.Err()
			default:
			}
		}
		if stopRequested() {
			return finish(), nil
		}
		if out.Actions >= maxActions {
			out.Truncated = true
			break
		}

		a := p.Next(g)
		if !Apply(g, a) {
			return finish(), fmt.Errorf("%w: %s at action %d", ErrRejected, a, out.Actions)
		}
		out.Actions++
		switch a.Kind {
		case Sense:
			out.Senses++
		case Check:
			out.Checks++
			if guess, ok := g.LastGuess(); ok && !guess.Correct {
				out.WrongChecks++
			}
		}
		if opts.OnAction != nil {
			opts.OnAction(a)
		}
		if opts.Record {
			out.Rows = append(out.Rows, store.NewActionRow(meta, out.Actions, string(a.Kind), a.DX, a.DY, g.Snapshot()))
		}
	}

	return finish(), nil
}
