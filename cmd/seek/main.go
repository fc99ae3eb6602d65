// Command seek is the interactive terminal version of the search game.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/seek/config"
	"github.com/brensch/seek/game"
	"github.com/brensch/seek/logging"
)

func main() {
	getGameConfig := config.GameFlags(flag.CommandLine)
	seedFlag := config.SeedFlag(flag.CommandLine)
	recordDir := flag.String("record", config.EnvOrDefault("SEEK_RECORD_DIR", ""), "If set, record every episode to a parquet batch in this directory")
	logFile := flag.String("log-file", config.EnvOrDefault("SEEK_LOG_FILE", ""), "Write logs to this file (logs are discarded otherwise)")
	flag.Parse()

	var logOut io.Writer = io.Discard
	if *logFile != "" {
		f, err := logging.OpenFile(*logFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	logging.Setup(logOut, nil)

	cfg := getGameConfig()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	seed := config.ResolveSeed(*seedFlag)
	g := game.New(rand.New(rand.NewSource(seed)))
	log.Printf("Starting seek (seed=%d grid=%d particles=%d noise=%.2f)", seed, cfg.GridSize, cfg.ParticleCount, cfg.SensorNoise)

	var rec *recorder
	if *recordDir != "" {
		r, err := newRecorder(*recordDir, seed)
		if err != nil {
			fmt.Fprintf(os.Stderr, "recording: %v\n", err)
			os.Exit(1)
		}
		rec = r
	}

	m, err := newModel(g, cfg, rec)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		log.Printf("TUI error: %v", err)
	}

	if rec != nil {
		path, episodes, err := rec.close(g)
		switch {
		case err != nil:
			fmt.Fprintf(os.Stderr, "recording: %v\n", err)
			os.Exit(1)
		case path != "":
			fmt.Printf("Recorded %d episode(s) to %s\n", episodes, path)
		}
	}
}
