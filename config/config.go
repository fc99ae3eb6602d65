// Package config reads command line settings with environment fallbacks.
//
// Every flag default comes from an environment variable when it is set, so
// the same binaries run unchanged under a shell, a container or a test.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brensch/seek/game"
)

// Environment variables for the game tunables.
const (
	EnvGridSize      = "SEEK_GRID"
	EnvParticleCount = "SEEK_PARTICLES"
	EnvSensorNoise   = "SEEK_NOISE"
	EnvSeed          = "SEEK_SEED"
)

// EnvOrDefault returns the value of key, or defaultVal when unset or empty.
func EnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func EnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		var i int
		if _, err := fmt.Sscanf(val, "%d", &i); err == nil {
			return i
		}
	}
	return defaultVal
}

func EnvInt64OrDefault(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func EnvFloatOrDefault(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func EnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func EnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

// GameFlags registers -grid, -particles and -noise on fs and returns a getter
// for the parsed config. Call the getter after fs.Parse.
func GameFlags(fs *flag.FlagSet) func() game.Config {
	def := game.DefaultConfig
	grid := fs.Int("grid", EnvIntOrDefault(EnvGridSize, def.GridSize), "Grid side length (suggested 5-15)")
	particles := fs.Int("particles", EnvIntOrDefault(EnvParticleCount, def.ParticleCount), "Number of particles in the belief (suggested 10-500)")
	noise := fs.Float64("noise", EnvFloatOrDefault(EnvSensorNoise, def.SensorNoise), "Sensor noise scale, also the filter's assumed std dev (suggested 0.1-5.0)")
	return func() game.Config {
		return game.Config{
			GridSize:      *grid,
			ParticleCount: *particles,
			SensorNoise:   *noise,
		}
	}
}

// SeedFlag registers -seed. Zero means seed from the clock.
func SeedFlag(fs *flag.FlagSet) *int64 {
	return fs.Int64("seed", EnvInt64OrDefault(EnvSeed, 0), "Random seed (0 = time based)")
}

// ResolveSeed turns a zero seed into a time based one.
func ResolveSeed(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	return time.Now().UnixNano()
}
