package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type model struct {
	episodes    int
	wins        int
	truncated   int
	scoreSum    int
	actions     int64
	startTime   time.Time
	recentGames []string
	updates     chan EpisodeUpdate
}

func initialModel(updates chan EpisodeUpdate) model {
	return model{
		startTime: time.Now(),
		updates:   updates,
	}
}

type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), tickCmd())
}

func waitForUpdate(updates chan EpisodeUpdate) tea.Cmd {
	return func() tea.Msg {
		return <-updates
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case TickMsg:
		m.actions = totalActions.Load()
		return m, tickCmd()
	case EpisodeUpdate:
		o := msg.Outcome
		m.episodes++
		m.scoreSum += o.Score
		if o.Completed {
			m.wins++
		}
		if o.Truncated {
			m.truncated++
		}
		line := fmt.Sprintf("Worker %d: %s found=%s score=%d actions=%d", msg.WorkerID, o.EpisodeID[:8], o.Found, o.Score, o.Actions)
		m.recentGames = append([]string{line}, m.recentGames...)
		if len(m.recentGames) > 10 {
			m.recentGames = m.recentGames[:10]
		}
		return m, waitForUpdate(m.updates)
	}
	return m, nil
}

func (m model) View() string {
	duration := time.Since(m.startTime)
	episodesPerSec := float64(m.episodes) / duration.Seconds()
	actionsPerSec := float64(m.actions) / duration.Seconds()
	if duration.Seconds() < 1 {
		episodesPerSec = 0
		actionsPerSec = 0
	}
	winRate, meanScore := 0.0, 0.0
	if m.episodes > 0 {
		winRate = float64(m.wins) / float64(m.episodes)
		meanScore = float64(m.scoreSum) / float64(m.episodes)
	}

	s := titleStyle.Render("seek self-play") + "\n\n"
	s += fmt.Sprintf("Episodes:       %d\n", m.episodes)
	s += fmt.Sprintf("Win rate:       %.3f\n", winRate)
	s += fmt.Sprintf("Truncated:      %d\n", m.truncated)
	s += fmt.Sprintf("Mean score:     %.1f\n", meanScore)
	s += fmt.Sprintf("Total Actions:  %d\n", m.actions)
	s += fmt.Sprintf("Duration:       %s\n", duration.Round(time.Second))
	s += fmt.Sprintf("Episodes/Sec:   %.2f\n", episodesPerSec)
	s += fmt.Sprintf("Actions/Sec:    %.2f\n\n", actionsPerSec)

	s += "Recent Episodes:\n"
	for _, g := range m.recentGames {
		s += g + "\n"
	}

	s += dimStyle.Render("\nPress q to quit.") + "\n"
	return s
}
