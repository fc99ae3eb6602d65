package belief

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"testing"
)

// seqSource replays a fixed sequence of values, wrapping around.
type seqSource struct {
	vals []float64
	i    int
}

func (s *seqSource) Float64() float64 {
	v := s.vals[s.i%len(s.vals)]
	s.i++
	return v
}

func dumpCloud(s *State, gridSize int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Particles(%d) sum=%.6f\n", s.Len(), s.WeightSum())
	grid := MassGrid(s, gridSize)
	for y := 0; y < gridSize; y++ {
		for x := 0; x < gridSize; x++ {
			fmt.Fprintf(&b, " %.2f", grid[y][x])
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func inBounds(t *testing.T, s *State, gridSize int) {
	t.Helper()
	hi := float64(gridSize - 1)
	for i, p := range s.Particles {
		if p.X < 0 || p.X > hi || p.Y < 0 || p.Y > hi {
			t.Fatalf("particle[%d]=(%v,%v) outside [0,%v]", i, p.X, p.Y, hi)
		}
	}
}

func TestInitializeUniform(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s := InitializeUniform(7, 200, rng)
	if s.Len() != 200 {
		t.Fatalf("len=%d want=200", s.Len())
	}
	inBounds(t, s, 7)
	for i, p := range s.Particles {
		if p.Weight != 1.0/200 {
			t.Fatalf("particle[%d].Weight=%v want=%v", i, p.Weight, 1.0/200)
		}
	}
}

func TestInitializeUniform_DrawOrder(t *testing.T) {
	src := &seqSource{vals: []float64{0.5, 0.25, 0, 0.75}}
	s := InitializeUniform(5, 2, src)
	want := []Particle{{X: 2, Y: 1, Weight: 0.5}, {X: 0, Y: 3, Weight: 0.5}}
	for i := range want {
		if s.Particles[i] != want[i] {
			t.Fatalf("particle[%d]=%+v want=%+v", i, s.Particles[i], want[i])
		}
	}
}

func TestLikelihoodWeight(t *testing.T) {
	obs := Observation{Origin: Cell{X: 0, Y: 0}, Distance: 5}

	if got := LikelihoodWeight(Particle{X: 3, Y: 4}, obs, 1); got != 1 {
		t.Fatalf("exact range weight=%v want=1", got)
	}

	got := LikelihoodWeight(Particle{X: 0, Y: 3}, obs, 2)
	want := math.Exp(-4.0 / 8.0)
	if math.Abs(got-want) > 1e-15 {
		t.Fatalf("weight=%v want=%v", got, want)
	}

	near := LikelihoodWeight(Particle{X: 0, Y: 4.5}, obs, 1)
	far := LikelihoodWeight(Particle{X: 0, Y: 1}, obs, 1)
	if near <= far {
		t.Fatalf("closer to observed range should weigh more: near=%v far=%v", near, far)
	}
}

func TestUpdate_NormalizesWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	p := Params{GridSize: 9, ParticleCount: 300, NoiseScale: 1}
	s := InitializeUniform(p.GridSize, p.ParticleCount, rng)

	obs := Observation{Origin: Cell{X: 2, Y: 3}, Distance: 3.2}
	step := Update(s, obs, p, rng)
	if step.Degenerate {
		t.Fatalf("unexpected degenerate step")
	}
	if got := step.Posterior.WeightSum(); math.Abs(got-1) > 1e-9 {
		t.Fatalf("posterior sum=%v want=1", got)
	}
	if got := step.Next.WeightSum(); math.Abs(got-1) > 1e-9 {
		t.Fatalf("next sum=%v want=1", got)
	}
	for i, pt := range step.Next.Particles {
		if pt.Weight != 1.0/300 {
			t.Fatalf("next[%d].Weight=%v want=%v", i, pt.Weight, 1.0/300)
		}
	}
	t.Logf("posterior:\n%s", dumpCloud(step.Posterior, p.GridSize))
}

func TestUpdate_DegenerateResetsUniform(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	p := Params{GridSize: 6, ParticleCount: 40, NoiseScale: 1e-3}
	s := InitializeUniform(p.GridSize, p.ParticleCount, rng)

	obs := Observation{Origin: Cell{X: 0, Y: 0}, Distance: 1e6}
	step := Update(s, obs, p, rng)
	if !step.Degenerate {
		t.Fatalf("expected degenerate step, raw sum=%v", step.WeightSum)
	}
	if step.WeightSum != 0 {
		t.Fatalf("raw sum=%v want=0", step.WeightSum)
	}
	for i, pt := range step.Posterior.Particles {
		if pt.Weight != 1.0/40 {
			t.Fatalf("posterior[%d].Weight=%v want exactly %v", i, pt.Weight, 1.0/40)
		}
	}
	if step.Next.Len() != 40 {
		t.Fatalf("next len=%d want=40", step.Next.Len())
	}
	inBounds(t, step.Next, p.GridSize)
}

func TestUpdate_CountAndBoundsAcrossManySteps(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	p := Params{GridSize: 5, ParticleCount: 17, NoiseScale: 0.3}
	s := InitializeUniform(p.GridSize, p.ParticleCount, rng)
	inBounds(t, s, p.GridSize)

	for i := 0; i < 200; i++ {
		obs := Observation{
			Origin:   Cell{X: rng.Intn(p.GridSize), Y: rng.Intn(p.GridSize)},
			Distance: rng.Float64() * 8,
		}
		step := Update(s, obs, p, rng)
		if step.Next.Len() != p.ParticleCount {
			t.Fatalf("step %d: len=%d want=%d", i, step.Next.Len(), p.ParticleCount)
		}
		inBounds(t, step.Next, p.GridSize)
		s = step.Next
	}
}

func TestUpdate_DoesNotMutateInput(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	p := Params{GridSize: 7, ParticleCount: 25, NoiseScale: 1}
	s := InitializeUniform(p.GridSize, p.ParticleCount, rng)
	before := s.Clone()

	step := Update(s, Observation{Origin: Cell{X: 3, Y: 3}, Distance: 2}, p, rng)
	for i := range before.Particles {
		if s.Particles[i] != before.Particles[i] {
			t.Fatalf("input particle[%d] changed: %+v -> %+v", i, before.Particles[i], s.Particles[i])
		}
	}
	step.Next.Particles[0].X = -100
	if s.Particles[0].X == -100 || step.Posterior.Particles[0].X == -100 {
		t.Fatalf("next state aliases another state")
	}
}

func TestUpdate_ClampsJitter(t *testing.T) {
	// One particle sitting on the corner, jitter pushes it outward.
	p := Params{GridSize: 4, ParticleCount: 1, NoiseScale: 1}
	s := &State{Particles: []Particle{{X: 0, Y: 3, Weight: 1}}}
	src := &seqSource{vals: []float64{0.5, 0, 0.999}}

	step := Update(s, Observation{Origin: Cell{X: 0, Y: 0}, Distance: 3}, p, src)
	got := step.Next.Particles[0]
	if got.X != 0 || got.Y != 3 {
		t.Fatalf("particle=(%v,%v) want=(0,3)", got.X, got.Y)
	}
}

func TestSelectIndex(t *testing.T) {
	cases := []struct {
		name string
		cum  []float64
		r    float64
		want int
	}{
		{"first", []float64{0.2, 0.5, 1}, 0.1, 0},
		{"boundary inclusive", []float64{0.2, 0.5, 1}, 0.2, 0},
		{"middle", []float64{0.2, 0.5, 1}, 0.3, 1},
		{"last", []float64{0.2, 0.5, 1}, 0.99, 2},
		{"short total clamps", []float64{0.3, 0.6, 0.9999}, 0.99995, 2},
		{"zero r", []float64{0, 0, 0.5, 1}, 0, 0},
		{"skips zero weights", []float64{0, 0, 0.5, 1}, 0.25, 2},
	}
	for _, tc := range cases {
		if got := selectIndex(tc.cum, tc.r); got != tc.want {
			t.Fatalf("%s: selectIndex(%v, %v)=%d want=%d", tc.name, tc.cum, tc.r, got, tc.want)
		}
	}
}

// linearSelect is the cumulative-sum scan the binary search must agree with.
func linearSelect(weights []float64, r float64) int {
	index := 0
	sum := weights[0]
	for sum < r && index < len(weights)-1 {
		index++
		sum += weights[index]
	}
	return index
}

func TestSelectIndex_MatchesLinearScan(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for trial := 0; trial < 50; trial++ {
		n := 1 + rng.Intn(60)
		weights := make([]float64, n)
		total := 0.0
		for i := range weights {
			if rng.Intn(4) == 0 {
				continue
			}
			weights[i] = rng.Float64()
			total += weights[i]
		}
		if total == 0 {
			weights[0], total = 1, 1
		}
		cum := make([]float64, n)
		acc := 0.0
		for i := range weights {
			weights[i] /= total
			acc += weights[i]
			cum[i] = acc
		}
		for k := 0; k < 200; k++ {
			r := rng.Float64()
			if got, want := selectIndex(cum, r), linearSelect(weights, r); got != want {
				t.Fatalf("trial %d: r=%v got=%d want=%d", trial, r, got, want)
			}
		}
	}
}

func TestCertainty(t *testing.T) {
	peaked := &State{Particles: []Particle{{Weight: 0}, {Weight: 1}, {Weight: 0}, {Weight: 0}}}
	if got := Certainty(peaked, 4); got != 1 {
		t.Fatalf("peaked certainty=%v want=1", got)
	}

	// Equal weights give max weight 1/N, so certainty is 1/N * N.
	uniform := InitializeUniform(5, 100, rand.New(rand.NewSource(2)))
	if got := Certainty(uniform, 100); math.Abs(got-1) > 1e-12 {
		t.Fatalf("uniform certainty=%v want≈1", got)
	}

	half := &State{Particles: []Particle{{Weight: 0.125}, {Weight: 0.125}, {Weight: 0.75}}}
	if got := Certainty(half, 3); got != 1 {
		t.Fatalf("capped certainty=%v want=1", got)
	}

	low := &State{Particles: []Particle{{Weight: 0.1}, {Weight: 0.1}}}
	if got := Certainty(low, 2); math.Abs(got-0.2) > 1e-12 {
		t.Fatalf("certainty=%v want=0.2", got)
	}

	if got := Certainty(&State{}, 10); got != 0 {
		t.Fatalf("empty certainty=%v want=0", got)
	}
}

func TestCertainty_RangeAfterUpdates(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	p := Params{GridSize: 8, ParticleCount: 120, NoiseScale: 0.5}
	s := InitializeUniform(p.GridSize, p.ParticleCount, rng)
	for i := 0; i < 30; i++ {
		step := Update(s, Observation{Origin: Cell{X: i % 8, Y: (i * 3) % 8}, Distance: rng.Float64() * 6}, p, rng)
		c := Certainty(step.Posterior, p.ParticleCount)
		if c < 0 || c > 1 {
			t.Fatalf("step %d: certainty=%v outside [0,1]", i, c)
		}
		s = step.Next
	}
}

func TestMassHistogramAndMode(t *testing.T) {
	s := &State{Particles: []Particle{
		{X: 1.2, Y: 0.9, Weight: 0.25},
		{X: 1.7, Y: 0.1, Weight: 0.25},
		{X: 3.0, Y: 2.5, Weight: 0.4},
		{X: 0.5, Y: 3.99, Weight: 0.1},
		{X: 2.5, Y: 2.5, Weight: 0},
	}}
	h := MassHistogram(s, 4)
	if len(h) != 3 {
		t.Fatalf("histogram cells=%d want=3: %v", len(h), h)
	}
	if got := h[Cell{X: 1, Y: 0}]; math.Abs(got-0.5) > 1e-12 {
		t.Fatalf("mass(1,0)=%v want=0.5", got)
	}
	if _, ok := h[Cell{X: 2, Y: 2}]; ok {
		t.Fatalf("zero-mass cell present in histogram")
	}

	cell, mass := Mode(s, 4)
	if cell != (Cell{X: 1, Y: 0}) || math.Abs(mass-0.5) > 1e-12 {
		t.Fatalf("mode=%v mass=%v want=(1,0) 0.5", cell, mass)
	}
}

func TestMode_TiesGoRowMajor(t *testing.T) {
	s := &State{Particles: []Particle{
		{X: 2.5, Y: 1.5, Weight: 0.5},
		{X: 0.5, Y: 2.5, Weight: 0.5},
	}}
	cell, _ := Mode(s, 3)
	if cell != (Cell{X: 2, Y: 1}) {
		t.Fatalf("mode=%v want=(2,1)", cell)
	}

	s = &State{Particles: []Particle{
		{X: 2.5, Y: 0.5, Weight: 0.5},
		{X: 1.5, Y: 0.5, Weight: 0.5},
	}}
	cell, _ = Mode(s, 3)
	if cell != (Cell{X: 1, Y: 0}) {
		t.Fatalf("mode=%v want=(1,0)", cell)
	}

	cell, mass := Mode(&State{}, 3)
	if cell != (Cell{}) || mass != 0 {
		t.Fatalf("empty mode=%v mass=%v want=(0,0) 0", cell, mass)
	}
}

func TestUpdate_Deterministic(t *testing.T) {
	run := func() *State {
		rng := rand.New(rand.NewSource(1234))
		p := Params{GridSize: 10, ParticleCount: 64, NoiseScale: 0.8}
		s := InitializeUniform(p.GridSize, p.ParticleCount, rng)
		for i := 0; i < 10; i++ {
			s = Update(s, Observation{Origin: Cell{X: i, Y: 9 - i}, Distance: float64(i) / 2}, p, rng).Next
		}
		return s
	}
	a, b := run(), run()
	for i := range a.Particles {
		if a.Particles[i] != b.Particles[i] {
			t.Fatalf("particle[%d] differs: %+v vs %+v", i, a.Particles[i], b.Particles[i])
		}
	}
}

func TestUpdate_ConcentratesNearTarget(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	p := Params{GridSize: 7, ParticleCount: 400, NoiseScale: 0.5}
	target := Cell{X: 5, Y: 2}
	s := InitializeUniform(p.GridSize, p.ParticleCount, rng)

	origins := []Cell{{0, 0}, {6, 6}, {0, 6}, {6, 0}, {3, 3}, {0, 0}, {6, 6}, {0, 6}}
	for _, o := range origins {
		d := math.Hypot(float64(o.X-target.X), float64(o.Y-target.Y))
		s = Update(s, Observation{Origin: o, Distance: d}, p, rng).Next
	}
	cell, mass := Mode(s, p.GridSize)
	t.Logf("after readings:\n%s", dumpCloud(s, p.GridSize))
	if abs(cell.X-target.X) > 1 || abs(cell.Y-target.Y) > 1 {
		t.Fatalf("mode=%v (mass %.2f) not near target %v", cell, mass, target)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
