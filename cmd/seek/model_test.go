package main

import (
	"math/rand"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/seek/game"
	"github.com/brensch/seek/store"
)

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func press(t *testing.T, m model, msgs ...tea.Msg) model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(model)
	}
	return m
}

func newTestModel(t *testing.T, rec *recorder) model {
	t.Helper()
	m, err := newModel(game.New(rand.New(rand.NewSource(3))), game.DefaultConfig, rec)
	if err != nil {
		t.Fatalf("newModel: %v", err)
	}
	return m
}

func TestSenseAndMoveKeys(t *testing.T) {
	m := newTestModel(t, nil)

	m = press(t, m, runeKey('s'))
	if m.g.Moves() != 1 || m.g.Score() != game.StartScore-game.SenseCost {
		t.Fatalf("after sense moves=%d score=%d", m.g.Moves(), m.g.Score())
	}
	if !strings.Contains(m.message, "Reading") {
		t.Fatalf("message=%q", m.message)
	}

	before := m.g.Player()
	m = press(t, m, tea.KeyMsg{Type: tea.KeyRight})
	if m.g.Phase() == game.PhasePlaying {
		want := before
		if want.X < game.DefaultConfig.GridSize-1 {
			want.X++
		}
		if m.g.Player() != want {
			t.Fatalf("player=%v want=%v", m.g.Player(), want)
		}
	}
	if m.g.Moves() != 2 {
		t.Fatalf("moves=%d want=2", m.g.Moves())
	}

	// Unknown keys do nothing.
	m = press(t, m, runeKey('x'))
	if m.g.Moves() != 2 {
		t.Fatalf("unknown key changed moves to %d", m.g.Moves())
	}
}

func TestDiagonalKeys(t *testing.T) {
	cases := map[rune][2]int{'y': {-1, -1}, 'u': {1, -1}, 'b': {-1, 1}, 'n': {1, 1}}
	for r, d := range cases {
		m := newTestModel(t, nil)
		start := game.Point{X: 3, Y: 3}
		target := game.Point{X: 0, Y: 6}
		if err := m.g.Place(start, target); err != nil {
			t.Fatalf("Place: %v", err)
		}
		m = press(t, m, runeKey(r))
		want := game.Point{X: start.X + d[0], Y: start.Y + d[1]}
		if m.g.Player() != want {
			t.Fatalf("key %c: player=%v want=%v", r, m.g.Player(), want)
		}
	}
}

func TestCheckLockedMessage(t *testing.T) {
	m := newTestModel(t, nil)
	m = press(t, m, runeKey('c'))
	if m.g.Score() != game.StartScore {
		t.Fatalf("locked check changed score to %d", m.g.Score())
	}
	if !strings.Contains(m.message, "Not sure") {
		t.Fatalf("message=%q", m.message)
	}
}

func TestQuitAndRestart(t *testing.T) {
	m := newTestModel(t, nil)
	if _, cmd := m.Update(runeKey('q')); cmd == nil {
		t.Fatalf("q did not return a command")
	}

	m = press(t, m, runeKey('s'), runeKey('s'), runeKey('r'))
	if m.g.Moves() != 0 || m.g.Score() != game.StartScore || m.g.Phase() != game.PhasePlaying {
		t.Fatalf("after restart moves=%d score=%d phase=%s", m.g.Moves(), m.g.Score(), m.g.Phase())
	}
}

func TestViewShowsBoardAndStatus(t *testing.T) {
	m := newTestModel(t, nil)
	v := m.View()
	for _, want := range []string{"Score 100", "Moves 0", "P", "q quit"} {
		if !strings.Contains(v, want) {
			t.Fatalf("view missing %q:\n%s", want, v)
		}
	}
}

func TestRecordingWritesEpisodes(t *testing.T) {
	dir := t.TempDir()
	rec, err := newRecorder(dir, 3)
	if err != nil {
		t.Fatalf("newRecorder: %v", err)
	}
	m := newTestModel(t, rec)

	// Finish the first episode by walking onto the target.
	target := game.Point{X: 1, Y: 0}
	if err := m.g.Place(game.Point{X: 0, Y: 0}, target); err != nil {
		t.Fatalf("Place: %v", err)
	}
	m = press(t, m, runeKey('s'), tea.KeyMsg{Type: tea.KeyRight})
	if m.g.Phase() != game.PhaseOver {
		t.Fatalf("phase=%s want over", m.g.Phase())
	}

	// Second episode is left unfinished.
	m = press(t, m, runeKey('r'), runeKey('s'))

	path, episodes, err := rec.close(m.g)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if episodes != 2 {
		t.Fatalf("episodes=%d want=2", episodes)
	}
	rows, err := store.ReadActionRows(path)
	if err != nil {
		t.Fatalf("ReadActionRows: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("rows=%d want=5", len(rows))
	}
	first := store.EpisodeRows(rows, rows[0].EpisodeID)
	if len(first) != 3 {
		t.Fatalf("first episode rows=%d want=3", len(first))
	}
	for _, r := range first {
		if p, ok := r.Target(); !ok || p != target {
			t.Fatalf("step %d target=%v ok=%v", r.Step, p, ok)
		}
	}
	if first[2].Found != game.FoundByContact.String() {
		t.Fatalf("found=%q", first[2].Found)
	}
}
