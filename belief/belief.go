// Package belief implements the particle filter that tracks where the hidden
// target might be.
//
// A State is a fixed-size weighted particle cloud over the continuous square
// [0, gridSize-1]². Each sensor reading reweights the cloud with a Gaussian
// range kernel, normalizes, resamples with replacement and jitters the
// survivors. The package has no dependencies on the rest of the module.
package belief

import (
	"math"
	"sort"
)

// Source is the random number source used by every stochastic step.
// *math/rand.Rand satisfies it.
type Source interface {
	// Float64 returns a uniform value in [0, 1).
	Float64() float64
}

// Cell is an integer grid coordinate.
type Cell struct {
	X int
	Y int
}

// Particle is one hypothesis about the target location.
type Particle struct {
	X      float64
	Y      float64
	Weight float64
}

// Observation is a range reading taken from Origin.
type Observation struct {
	Origin   Cell
	Distance float64
}

// Params are the filter settings for one episode.
type Params struct {
	GridSize      int
	ParticleCount int
	NoiseScale    float64
}

// JitterScale is the half-width of the uniform noise added to each resampled
// coordinate.
const JitterScale = 0.5

// State is an ordered particle cloud.
type State struct {
	Particles []Particle
}

// Len returns the number of particles.
func (s *State) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Particles)
}

// Clone performs a deep copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := &State{Particles: make([]Particle, len(s.Particles))}
	copy(out.Particles, s.Particles)
	return out
}

// WeightSum returns the sum of all particle weights.
func (s *State) WeightSum() float64 {
	sum := 0.0
	for _, p := range s.Particles {
		sum += p.Weight
	}
	return sum
}

// InitializeUniform scatters count particles uniformly over [0, gridSize-1]²
// with equal weights. Callers validate count > 0 and gridSize >= 2.
func InitializeUniform(gridSize, count int, rng Source) *State {
	span := float64(gridSize - 1)
	w := 1 / float64(count)
	s := &State{Particles: make([]Particle, count)}
	for i := range s.Particles {
		x := rng.Float64() * span
		y := rng.Float64() * span
		s.Particles[i] = Particle{X: x, Y: y, Weight: w}
	}
	return s
}

// LikelihoodWeight is the unnormalized importance weight of p given obs: a
// Gaussian kernel in range error with standard deviation noiseScale.
func LikelihoodWeight(p Particle, obs Observation, noiseScale float64) float64 {
	d := math.Hypot(float64(obs.Origin.X)-p.X, float64(obs.Origin.Y)-p.Y)
	diff := d - obs.Distance
	return math.Exp(-(diff * diff) / (2 * noiseScale * noiseScale))
}

// Step is the result of one filter update.
type Step struct {
	// Posterior is the reweighted, normalized cloud before resampling. After a
	// degeneracy reset every weight is exactly 1/ParticleCount.
	Posterior *State
	// Next is the resampled and jittered cloud that replaces the input state.
	Next *State
	// Degenerate reports that every raw weight was zero.
	Degenerate bool
	// WeightSum is the raw likelihood sum used for normalization.
	WeightSum float64
}

// Update runs reweight, normalize, resample and jitter against obs. The input
// state is left untouched and shares no memory with the returned states.
//
// For every resampled particle the draws are taken in the order: selection,
// x jitter, y jitter.
func Update(s *State, obs Observation, p Params, rng Source) Step {
	n := p.ParticleCount
	posterior := &State{Particles: make([]Particle, n)}

	// Reweight. Prior weights are discarded, not multiplied in.
	sum := 0.0
	for i := 0; i < n; i++ {
		src := s.Particles[i]
		w := LikelihoodWeight(src, obs, p.NoiseScale)
		posterior.Particles[i] = Particle{X: src.X, Y: src.Y, Weight: w}
		sum += w
	}

	degenerate := sum == 0
	if degenerate {
		uniform := 1 / float64(n)
		for i := range posterior.Particles {
			posterior.Particles[i].Weight = uniform
		}
	} else {
		for i := range posterior.Particles {
			posterior.Particles[i].Weight /= sum
		}
	}

	next := resample(posterior, p, rng)

	return Step{
		Posterior:  posterior,
		Next:       next,
		Degenerate: degenerate,
		WeightSum:  sum,
	}
}

// resample draws ParticleCount particles with replacement, selecting for each
// draw the first particle whose cumulative weight reaches r.
func resample(posterior *State, p Params, rng Source) *State {
	n := p.ParticleCount
	cumulative := make([]float64, n)
	acc := 0.0
	for i, pt := range posterior.Particles {
		acc += pt.Weight
		cumulative[i] = acc
	}

	hi := float64(p.GridSize - 1)
	w := 1 / float64(n)
	next := &State{Particles: make([]Particle, n)}
	for i := 0; i < n; i++ {
		idx := selectIndex(cumulative, rng.Float64())
		src := posterior.Particles[idx]
		jx := (rng.Float64()*2 - 1) * JitterScale
		jy := (rng.Float64()*2 - 1) * JitterScale
		next.Particles[i] = Particle{
			X:      clamp(src.X+jx, 0, hi),
			Y:      clamp(src.Y+jy, 0, hi),
			Weight: w,
		}
	}
	return next
}

// selectIndex returns the smallest i with cumulative[i] >= r, clamped to the
// last index when rounding leaves the total short of r.
func selectIndex(cumulative []float64, r float64) int {
	idx := sort.SearchFloat64s(cumulative, r)
	if idx >= len(cumulative) {
		idx = len(cumulative) - 1
	}
	return idx
}

// Certainty measures how peaked the cloud is: max weight times particleCount,
// capped at 1.
func Certainty(s *State, particleCount int) float64 {
	if s == nil || len(s.Particles) == 0 {
		return 0
	}
	maxW := 0.0
	for _, p := range s.Particles {
		if p.Weight > maxW {
			maxW = p.Weight
		}
	}
	return clamp(maxW*float64(particleCount), 0, 1)
}

// MassHistogram accumulates particle weight per grid cell. Cells without mass
// are omitted.
func MassHistogram(s *State, gridSize int) map[Cell]float64 {
	out := make(map[Cell]float64)
	for _, p := range s.Particles {
		c, ok := cellOf(p, gridSize)
		if !ok || p.Weight == 0 {
			continue
		}
		out[c] += p.Weight
	}
	return out
}

// MassGrid is MassHistogram as a dense grid indexed [y][x].
func MassGrid(s *State, gridSize int) [][]float64 {
	grid := make([][]float64, gridSize)
	for y := range grid {
		grid[y] = make([]float64, gridSize)
	}
	if s == nil {
		return grid
	}
	for _, p := range s.Particles {
		c, ok := cellOf(p, gridSize)
		if !ok {
			continue
		}
		grid[c.Y][c.X] += p.Weight
	}
	return grid
}

// Mode returns the cell with the most mass. Ties go to the first cell in a
// row-major scan; an empty grid yields (0,0) with zero mass.
func Mode(s *State, gridSize int) (Cell, float64) {
	grid := MassGrid(s, gridSize)
	best := Cell{}
	bestMass := 0.0
	for y := 0; y < gridSize; y++ {
		for x := 0; x < gridSize; x++ {
			if grid[y][x] > bestMass {
				bestMass = grid[y][x]
				best = Cell{X: x, Y: y}
			}
		}
	}
	return best, bestMass
}

func cellOf(p Particle, gridSize int) (Cell, bool) {
	x := int(math.Floor(p.X))
	y := int(math.Floor(p.Y))
	if x < 0 || x >= gridSize || y < 0 || y >= gridSize {
		return Cell{}, false
	}
	return Cell{X: x, Y: y}, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
