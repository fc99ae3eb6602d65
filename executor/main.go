package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/seek/agent"
	"github.com/brensch/seek/config"
	"github.com/brensch/seek/game"
	"github.com/brensch/seek/logging"
	"github.com/brensch/seek/render"
	"github.com/brensch/seek/store"
)

var totalActions atomic.Int64
var totalEpisodes atomic.Int64
var totalWins atomic.Int64

type EpisodeUpdate struct {
	WorkerID int
	Outcome  agent.Outcome
}

type episodeWriteRequest struct {
	rows []store.ActionRow
}

// maxConsecutiveRejects stops a worker whose policy keeps picking actions the
// controller refuses.
const maxConsecutiveRejects = 5

var totalRejected atomic.Int64

type workerConfig struct {
	game          game.Config
	policy        string
	// newPolicy overrides policy when set.
	newPolicy     func(seed int64) agent.Policy
	maxActions    int
	sensesPerStop int
	minModeMass   float64
	pngDir        string
	baseSeed      int64
}

func main() {
	getGameConfig := config.GameFlags(flag.CommandLine)
	seed := config.SeedFlag(flag.CommandLine)
	outDir := flag.String("out-dir", config.EnvOrDefault("SEEK_OUT_DIR", "data/episodes"), "Output directory for recorded parquet batches")
	workers := flag.Int("workers", config.EnvIntOrDefault("SEEK_WORKERS", runtime.NumCPU()), "Number of self-play workers")
	gamesPerFlush := flag.Int("games-per-flush", config.EnvIntOrDefault("SEEK_GAMES_PER_FLUSH", 50), "Number of episodes to buffer per parquet flush")
	maxGames := flag.Int64("max-games", config.EnvInt64OrDefault("SEEK_MAX_GAMES", 0), "If > 0, stop after this many episodes (across all workers)")
	maxActions := flag.Int("max-actions", config.EnvIntOrDefault("SEEK_MAX_ACTIONS", agent.DefaultMaxActions), "Action cap per episode")
	policy := flag.String("policy", config.EnvOrDefault("SEEK_POLICY", "seeker"), "Policy to play with: seeker or wanderer")
	sensesPerStop := flag.Int("senses-per-stop", config.EnvIntOrDefault("SEEK_SENSES_PER_STOP", agent.DefaultSensesPerStop), "Seeker: readings taken before each step")
	minModeMass := flag.Float64("min-mode-mass", config.EnvFloatOrDefault("SEEK_MIN_MODE_MASS", agent.DefaultMinModeMass), "Seeker: belief mass the best cell needs before checking")
	pngDir := flag.String("png-dir", config.EnvOrDefault("SEEK_PNG_DIR", ""), "If set, write a PNG of every finished episode's last frame here")
	useTUI := flag.Bool("tui", config.EnvBoolOrDefault("SEEK_TUI", false), "Show a progress dashboard instead of periodic stats lines")
	logFile := flag.String("log-file", config.EnvOrDefault("SEEK_LOG_FILE", ""), "Write logs to this file instead of stderr")
	logLevel := flag.String("log-level", config.EnvOrDefault("SEEK_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "bad -log-level %q: %v\n", *logLevel, err)
		os.Exit(2)
	}
	logOut := os.Stderr
	if *logFile != "" {
		f, err := logging.OpenFile(*logFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	} else if *useTUI {
		fmt.Fprintln(os.Stderr, "-tui needs -log-file so logs do not draw over the dashboard")
		os.Exit(2)
	}
	logging.Setup(logOut, &logging.Options{Level: level})

	gameCfg := getGameConfig()
	if err := gameCfg.Validate(); err != nil {
		log.Fatalf("Invalid game config: %v", err)
	}
	if *policy != "seeker" && *policy != "wanderer" {
		log.Fatalf("Unknown policy %q", *policy)
	}
	if *pngDir != "" {
		if err := os.MkdirAll(*pngDir, 0o755); err != nil {
			log.Fatalf("Failed to create png dir: %v", err)
		}
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	wc := workerConfig{
		game:          gameCfg,
		policy:        *policy,
		maxActions:    *maxActions,
		sensesPerStop: *sensesPerStop,
		minModeMass:   *minModeMass,
		pngDir:        *pngDir,
		baseSeed:      config.ResolveSeed(*seed),
	}

	log.Printf("Starting self-play with %d workers", *workers)
	slog.Info("config",
		"grid", gameCfg.GridSize,
		"particles", gameCfg.ParticleCount,
		"noise", gameCfg.SensorNoise,
		"policy", wc.policy,
		"seed", wc.baseSeed,
		"out_dir", *outDir,
	)

	updates := make(chan EpisodeUpdate, *workers)
	writeReqs := make(chan episodeWriteRequest, (*workers)*4)

	writerDone := make(chan struct{})
	go func() {
		parquetWriterLoop(*outDir, *gamesPerFlush, writeReqs)
		close(writerDone)
	}()

	var workerWG sync.WaitGroup
	for i := 0; i < *workers; i++ {
		workerWG.Add(1)
		go func(workerID int) {
			defer workerWG.Done()
			runWorker(ctx, workerID, wc, func(out agent.Outcome) {
				total := totalEpisodes.Add(1)
				if *maxGames > 0 && total >= *maxGames {
					cancel()
				}
				if len(out.Rows) > 0 {
					writeReqs <- episodeWriteRequest{rows: out.Rows}
				}
				select {
				case updates <- EpisodeUpdate{WorkerID: workerID, Outcome: out}:
				default:
				}
			})
		}(i)
	}

	shutdown := func() {
		log.Printf("Shutdown requested; waiting for workers to finish current episodes...")
		workerWG.Wait()
		close(writeReqs)
		<-writerDone
		log.Printf("Shutdown complete: final parquet flush done (episodes=%d)", totalEpisodes.Load())
	}

	if *useTUI {
		p := tea.NewProgram(initialModel(updates), tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && ctx.Err() == nil {
			log.Printf("Dashboard error: %v", err)
		}
		cancel()
		shutdown()
		return
	}

	startTime := time.Now()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdown()
			return
		case update := <-updates:
			o := update.Outcome
			slog.Debug("episode finished",
				"worker", update.WorkerID,
				"episode", o.EpisodeID,
				"found", o.Found.String(),
				"score", o.Score,
				"actions", o.Actions,
				"truncated", o.Truncated,
			)
		case <-ticker.C:
			secs := time.Since(startTime).Seconds()
			episodes := totalEpisodes.Load()
			winRate := 0.0
			if episodes > 0 {
				winRate = float64(totalWins.Load()) / float64(episodes)
			}
			log.Printf("Stats: Episodes/s: %.2f, Actions/s: %.2f, Win rate: %.3f (episodes=%d rejected=%d)",
				float64(episodes)/secs, float64(totalActions.Load())/secs, winRate, episodes, totalRejected.Load())
		}
	}
}

// runWorker plays episodes until ctx is done. Each worker owns its Game and
// random source. Episodes cut short by cancellation are dropped.
func runWorker(ctx context.Context, workerID int, wc workerConfig, done func(agent.Outcome)) {
	seed := wc.baseSeed + int64(workerID)*1000003
	rng := rand.New(rand.NewSource(seed))
	g := game.New(rng)

	var policy agent.Policy
	switch {
	case wc.newPolicy != nil:
		policy = wc.newPolicy(seed)
	case wc.policy == "wanderer":
		policy = &agent.Wanderer{Rng: rand.New(rand.NewSource(seed + 1)), SenseRatio: 0.5}
	default:
		policy = agent.NewSeeker(wc.sensesPerStop, wc.minModeMass)
	}
	rejects := 0

	log.Printf("Worker %d started (seed=%d)", workerID, seed)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := g.NewEpisode(wc.game); err != nil {
			log.Printf("Worker %d: %v", workerID, err)
			return
		}
		out, err := agent.PlayEpisode(ctx, g, policy, agent.Options{
			MaxActions: wc.maxActions,
			Source:     "selfplay_" + wc.policy,
			Seed:       seed,
			Record:     true,
			OnAction:   func(agent.Action) { totalActions.Add(1) },
		})
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			if errors.Is(err, agent.ErrRejected) {
				totalRejected.Add(1)
				rejects++
				if rejects >= maxConsecutiveRejects {
					log.Printf("Worker %d: stopping after %d rejected episodes in a row: %v", workerID, rejects, err)
					return
				}
			}
			log.Printf("Worker %d: episode aborted: %v", workerID, err)
			continue
		}
		rejects = 0
		if out.Found != game.FoundNone {
			totalWins.Add(1)
		}
		if wc.pngDir != "" {
			if err := writeFinalFrame(wc.pngDir, out); err != nil {
				log.Printf("Worker %d: %v", workerID, err)
			}
		}
		done(out)
	}
}

func writeFinalFrame(dir string, out agent.Outcome) error {
	if len(out.Rows) == 0 {
		return nil
	}
	last := int(out.Rows[len(out.Rows)-1].Step)
	f, err := render.FromRows(out.Rows, last)
	if err != nil {
		return fmt.Errorf("final frame %s: %w", out.EpisodeID, err)
	}
	return render.SavePNG(filepath.Join(dir, out.EpisodeID+".png"), f, render.Options{})
}

func parquetWriterLoop(outDir string, gamesPerFlush int, in <-chan episodeWriteRequest) {
	if gamesPerFlush <= 0 {
		gamesPerFlush = 50
	}

	pendingRows := make([]store.ActionRow, 0, 64*gamesPerFlush)
	pendingGames := 0

	for req := range in {
		if len(req.rows) == 0 {
			continue
		}
		pendingRows = append(pendingRows, req.rows...)
		pendingGames++

		if pendingGames < gamesPerFlush {
			continue
		}

		outPath, err := store.WriteBatchParquetAtomic(outDir, pendingRows)
		if err != nil {
			log.Printf("Parquet flush failed (episodes=%d rows=%d): %v", pendingGames, len(pendingRows), err)
		} else {
			log.Printf("Parquet flush ok: %s (episodes=%d rows=%d)", outPath, pendingGames, len(pendingRows))
		}

		pendingRows = pendingRows[:0]
		pendingGames = 0
	}

	if pendingGames > 0 && len(pendingRows) > 0 {
		outPath, err := store.WriteBatchParquetAtomic(outDir, pendingRows)
		if err != nil {
			log.Printf("Parquet final flush failed (episodes=%d rows=%d): %v", pendingGames, len(pendingRows), err)
			return
		}
		log.Printf("Parquet final flush ok: %s (episodes=%d rows=%d)", outPath, pendingGames, len(pendingRows))
	}
}
