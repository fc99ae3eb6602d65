// Command debuggame plays one episode with the autonomous seeker, prints
// every frame and writes the episode to a parquet file the viewer can open.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/brensch/seek/agent"
	"github.com/brensch/seek/config"
	"github.com/brensch/seek/game"
	"github.com/brensch/seek/logging"
	"github.com/brensch/seek/render"
	"github.com/brensch/seek/store"
)

func main() {
	getGameConfig := config.GameFlags(flag.CommandLine)
	seedFlag := config.SeedFlag(flag.CommandLine)
	outDir := flag.String("out-dir", filepath.Join("data", "debug_episodes"), "Output directory for debug episodes")
	maxActions := flag.Int("max-actions", agent.DefaultMaxActions, "Action cap for the episode")
	sensesPerStop := flag.Int("senses-per-stop", agent.DefaultSensesPerStop, "Readings taken before each step")
	minModeMass := flag.Float64("min-mode-mass", agent.DefaultMinModeMass, "Belief mass the best cell needs before checking")
	pngDir := flag.String("png-dir", "", "If set, also write every frame as a PNG here")
	quiet := flag.Bool("quiet", false, "Do not print frames")
	frontendHost := flag.String("frontend", "http://localhost:8080", "Viewer base URL")
	flag.Parse()

	logging.Setup(os.Stderr, nil)

	cfg := getGameConfig()
	seed := config.ResolveSeed(*seedFlag)
	g := game.New(rand.New(rand.NewSource(seed)))
	if err := g.NewEpisode(cfg); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	log.Printf("Playing debug episode (seed=%d grid=%d particles=%d noise=%.2f)", seed, cfg.GridSize, cfg.ParticleCount, cfg.SensorNoise)

	step := 0
	onAction := func(a agent.Action) {
		step++
		if *quiet {
			return
		}
		f := render.FromSnapshot(g.Snapshot())
		fmt.Printf("  Step %3d | %-11s | %s\n%s\n", step, a, render.Status(f), render.Text(f))
	}

	out, err := agent.PlayEpisode(ctx, g, agent.NewSeeker(*sensesPerStop, *minModeMass), agent.Options{
		MaxActions: *maxActions,
		Source:     "debug",
		Seed:       seed,
		Record:     true,
		OnAction:   onAction,
	})
	if err != nil {
		log.Fatalf("Failed to play debug episode: %v", err)
	}

	log.Printf("Episode complete: %d actions, found by %s, score %d (truncated=%v)", out.Actions, out.Found, out.Score, out.Truncated)

	parquetPath := filepath.Join(*outDir, out.EpisodeID+".parquet")
	if err := store.WriteActionsParquet(parquetPath, out.Rows); err != nil {
		log.Fatalf("Failed to write debug episode: %v", err)
	}
	log.Printf("Debug episode written to: %s", parquetPath)

	if *pngDir != "" {
		if err := writeFrames(*pngDir, out); err != nil {
			log.Fatalf("Failed to write frames: %v", err)
		}
		log.Printf("Frames written to: %s", *pngDir)
	}

	fmt.Println()
	fmt.Printf("View it at %s/api/episodes/%s (run the viewer with -data-dirs %s)\n", *frontendHost, out.EpisodeID, *outDir)
}

func writeFrames(dir string, out agent.Outcome) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, r := range out.Rows {
		f, err := render.FromRows(out.Rows, int(r.Step))
		if err != nil {
			return err
		}
		name := fmt.Sprintf("%s_%04d.png", out.EpisodeID, r.Step)
		if err := render.SavePNG(filepath.Join(dir, name), f, render.Options{Blur: 2}); err != nil {
			return err
		}
	}
	return nil
}
