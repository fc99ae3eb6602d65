package main

import (
	"fmt"
	"log"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/seek/game"
	"github.com/brensch/seek/render"
	"github.com/brensch/seek/store"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	playerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3498db"))
	targetStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2ecc71"))
	massStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#e74c3c"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#2ecc71"))
	badStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#e74c3c"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// moveKeys maps keys to (dx, dy). y grows downward.
var moveKeys = map[string][2]int{
	"up": {0, -1}, "k": {0, -1},
	"down": {0, 1}, "j": {0, 1},
	"left": {-1, 0}, "h": {-1, 0},
	"right": {1, 0}, "l": {1, 0},
	"y": {-1, -1}, "u": {1, -1},
	"b": {-1, 1}, "n": {1, 1},
}

type model struct {
	g   *game.Game
	cfg game.Config
	rec *recorder

	message string
	err     error
}

func newModel(g *game.Game, cfg game.Config, rec *recorder) (model, error) {
	if err := g.NewEpisode(cfg); err != nil {
		return model{}, err
	}
	m := model{g: g, cfg: cfg, rec: rec, message: "Take a reading with s."}
	if rec != nil {
		rec.start(g)
	}
	return m, nil
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch k := key.String(); k {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "r":
		m.flushEpisode()
		if err := m.g.Restart(nil); err != nil {
			m.err = err
			return m, nil
		}
		if m.rec != nil {
			m.rec.start(m.g)
		}
		m.message = "New episode."
	case "s":
		if m.g.Sense() {
			obs := m.g.Observations()
			m.message = fmt.Sprintf("Reading: target is about %.2f cells away.", obs[len(obs)-1].Distance)
			m.record(store.ActionSense, 0, 0)
		}
	case "c":
		guess, ok := m.g.CheckLocation()
		if !ok {
			if m.g.Phase() == game.PhasePlaying {
				m.message = fmt.Sprintf("Not sure enough yet (need %d%% certainty).", int(game.CheckThreshold*100))
			}
			return m, nil
		}
		if guess.Correct {
			m.message = fmt.Sprintf("Found it at (%d,%d)! +%d", guess.Cell.X, guess.Cell.Y, game.CorrectGuessGain)
		} else {
			m.message = fmt.Sprintf("Nothing at (%d,%d). -%d", guess.Cell.X, guess.Cell.Y, game.WrongGuessCost)
		}
		m.record(store.ActionCheck, 0, 0)
	default:
		d, ok := moveKeys[k]
		if !ok {
			return m, nil
		}
		if m.g.Move(d[0], d[1]) {
			m.message = ""
			if m.g.Found() == game.FoundByContact {
				m.message = "You walked into the target!"
			}
			m.record(store.ActionMove, d[0], d[1])
		}
	}

	if m.g.Phase() == game.PhaseOver {
		m.flushEpisode()
	}
	return m, nil
}

func (m *model) record(action string, dx, dy int) {
	if m.rec == nil {
		return
	}
	m.rec.action(m.g, action, dx, dy)
}

func (m *model) flushEpisode() {
	if m.rec == nil {
		return
	}
	if err := m.rec.flush(m.g); err != nil {
		log.Printf("Recording failed: %v", err)
		m.err = err
	}
}

func (m model) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("seek") + dimStyle.Render(fmt.Sprintf("  %dx%d grid, %d particles, noise %.2f", m.cfg.GridSize, m.cfg.GridSize, m.cfg.ParticleCount, m.cfg.SensorNoise)))
	sb.WriteString("\n\n")

	frame := render.FromSnapshot(m.g.Snapshot())
	sb.WriteString(board(frame))
	sb.WriteString("\n")

	check := badStyle.Render("locked")
	if m.g.CanCheck() {
		check = okStyle.Render("ready")
	}
	sb.WriteString(fmt.Sprintf("Score %d   Moves %d   Certainty %d%%   Check %s\n",
		m.g.Score(), m.g.Moves(), m.g.CertaintyPercent(), check))

	if m.g.Phase() == game.PhaseOver {
		t, _ := m.g.Target()
		sb.WriteString(okStyle.Render(fmt.Sprintf("Episode over: target at (%d,%d), found by %s. Final score %d.", t.X, t.Y, m.g.Found(), m.g.Score())))
		sb.WriteString("\n")
	}
	if m.message != "" {
		sb.WriteString(m.message + "\n")
	}
	if m.err != nil {
		sb.WriteString(badStyle.Render("error: "+m.err.Error()) + "\n")
	}

	sb.WriteString(dimStyle.Render("\ns sense · arrows/hjkl move · y u b n diagonal · c check · r restart · q quit"))
	sb.WriteString("\n")
	return sb.String()
}

// board colours render.Text output cell by cell.
func board(f render.Frame) string {
	lines := strings.Split(strings.TrimSuffix(render.Text(f), "\n"), "\n")
	var sb strings.Builder
	for _, line := range lines {
		for i, ch := range line {
			switch {
			case ch == 'P':
				sb.WriteString(playerStyle.Render("P"))
			case ch == 'T':
				sb.WriteString(targetStyle.Render("T"))
			case ch == ' ' && i%2 == 1:
				sb.WriteRune(ch)
			case ch == ' ':
				sb.WriteString(dimStyle.Render("·"))
			default:
				sb.WriteString(massStyle.Render(string(ch)))
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
