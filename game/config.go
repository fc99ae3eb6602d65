package game

import (
	"errors"
	"fmt"
	"math"

	"github.com/brensch/seek/belief"
)

// ErrInvalidConfig is returned when an episode is started with settings the
// filter cannot run with. The episode is not started.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds the per-episode tunables.
//
// SensorNoise is used twice: as the half-width of the uniform noise added to
// every range reading, and as the standard deviation of the Gaussian kernel
// the filter weights particles with. The filter is therefore always
// calibrated to the sensor it is reading from.
type Config struct {
	GridSize      int
	ParticleCount int
	SensorNoise   float64
}

// DefaultConfig is the board new sessions start on.
var DefaultConfig = Config{GridSize: 7, ParticleCount: 50, SensorNoise: 1}

// Validate rejects configs the engine cannot run with.
func (c Config) Validate() error {
	if c.GridSize < 2 {
		return fmt.Errorf("%w: grid size %d < 2", ErrInvalidConfig, c.GridSize)
	}
	if c.ParticleCount < 1 {
		return fmt.Errorf("%w: particle count %d < 1", ErrInvalidConfig, c.ParticleCount)
	}
	// Written as a negation so NaN is rejected too.
	if !(c.SensorNoise > 0) || math.IsInf(c.SensorNoise, 0) {
		return fmt.Errorf("%w: sensor noise %v must be finite and > 0", ErrInvalidConfig, c.SensorNoise)
	}
	return nil
}

func (c Config) filterParams() belief.Params {
	return belief.Params{
		GridSize:      c.GridSize,
		ParticleCount: c.ParticleCount,
		NoiseScale:    c.SensorNoise,
	}
}
