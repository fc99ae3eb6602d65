package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/brensch/seek/config"
	"github.com/brensch/seek/logging"
	"github.com/brensch/seek/stats"
)

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	listen := fs.String("listen", config.EnvOrDefault("SEEK_LISTEN", "127.0.0.1:8080"), "HTTP listen address")
	dataDirs := fs.String("data-dirs", config.EnvOrDefault("SEEK_DATA_DIRS", strings.Join(defaultDataDirs(), ",")), "Comma-separated list of directories containing episode parquet batches")
	refreshEvery := fs.Duration("refresh-every", config.EnvDurationOrDefault("SEEK_REFRESH_EVERY", 30*time.Second), "Rebuild the DuckDB view at least this often")
	watch := fs.Bool("watch", config.EnvBoolOrDefault("SEEK_WATCH", true), "Refresh as soon as new parquet files land")
	debug := fs.Bool("debug", config.EnvBoolOrDefault("SEEK_DEBUG", false), "Debug logging and gin debug mode")
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatalf("flag parse: %v", err)
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	logging.Setup(os.Stderr, &logging.Options{Level: level})

	roots := parseDataRoots(*dataDirs)
	log.Printf("Viewer data roots: %s", strings.Join(roots, ","))

	cache := stats.NewDBCache(roots, *refreshEvery)
	defer cache.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *watch {
		go func() {
			if err := watchRoots(ctx, roots, 500*time.Millisecond, cache.Refresh); err != nil {
				log.Printf("File watch disabled: %v", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              *listen,
		Handler:           newRouter(cache),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Viewer listening on http://%s", *listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("listen: %v", err)
	}
}
