// Package stats answers aggregate questions about recorded episodes by
// running DuckDB over the Parquet files written by package store.
package stats

import (
	"context"
	"database/sql"
	"io/fs"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

// DBCache keeps a DuckDB connection whose view is rebuilt at most every
// refreshRate, or on Refresh.
type DBCache struct {
	roots       []string
	refreshRate time.Duration

	mu          sync.RWMutex
	db          *sql.DB
	lastRefresh time.Time

	episodes []EpisodeSummary
}

func NewDBCache(roots []string, refreshRate time.Duration) *DBCache {
	return &DBCache{
		roots:       roots,
		refreshRate: refreshRate,
	}
}

// Roots returns the directories the cache reads from.
func (c *DBCache) Roots() []string { return c.roots }

// Get returns the cached DB connection, refreshing if needed.
func (c *DBCache) Get() (*sql.DB, error) {
	c.mu.RLock()
	if c.db != nil && time.Since(c.lastRefresh) < c.refreshRate {
		db := c.db
		c.mu.RUnlock()
		return db, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil && time.Since(c.lastRefresh) < c.refreshRate {
		return c.db, nil
	}
	return c.refreshLocked()
}

// Refresh rebuilds the view now, picking up new batch files.
func (c *DBCache) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.refreshLocked()
	return err
}

func (c *DBCache) refreshLocked() (*sql.DB, error) {
	start := time.Now()

	newDB, err := Open(c.roots)
	if err != nil {
		return nil, err
	}
	if c.db != nil {
		_ = c.db.Close()
	}
	c.db = newDB
	c.lastRefresh = time.Now()
	c.episodes = nil

	log.Printf("DBCache refreshed in %v", time.Since(start))
	return c.db, nil
}

// Episodes returns the cached episode index. It is rebuilt only after the
// view has been refreshed.
func (c *DBCache) Episodes(ctx context.Context) ([]EpisodeSummary, error) {
	c.mu.RLock()
	if c.episodes != nil && c.db != nil {
		idx := c.episodes
		c.mu.RUnlock()
		return idx, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.episodes != nil && c.db != nil {
		return c.episodes, nil
	}
	if c.db == nil {
		if _, err := c.refreshLocked(); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	eps, err := QueryEpisodes(ctx, c.db, c.roots)
	if err != nil {
		return nil, err
	}
	c.episodes = eps
	log.Printf("Episode index rebuilt: %d episodes in %v", len(eps), time.Since(start))
	return c.episodes, nil
}

func (c *DBCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		err := c.db.Close()
		c.db = nil
		return err
	}
	return nil
}

// Open creates an in-memory DuckDB with an `actions` view over every
// *.parquet file below roots, skipping files still being written under tmp/.
// When no files exist yet the view is empty but has the same columns.
func Open(roots []string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, err
	}
	_, _ = db.Exec("PRAGMA threads=4")

	globs := make([]string, 0, len(roots))
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" || !hasParquet(root) {
			continue
		}
		glob := filepath.Join(root, "**", "*.parquet")
		globs = append(globs, "'"+escapeSQLString(glob)+"'")
	}

	if len(globs) == 0 {
		_, err := db.Exec(`CREATE OR REPLACE VIEW actions AS
			SELECT * FROM (
				SELECT
					NULL::VARCHAR AS episode_id,
					NULL::INTEGER AS step,
					NULL::VARCHAR AS action,
					NULL::INTEGER AS dx,
					NULL::INTEGER AS dy,
					NULL::INTEGER AS grid_size,
					NULL::INTEGER AS particle_count,
					NULL::DOUBLE AS sensor_noise,
					NULL::INTEGER AS player_x,
					NULL::INTEGER AS player_y,
					NULL::INTEGER AS target_x,
					NULL::INTEGER AS target_y,
					NULL::DOUBLE AS distance,
					NULL::INTEGER AS guess_x,
					NULL::INTEGER AS guess_y,
					NULL::BOOLEAN AS guess_correct,
					NULL::INTEGER AS score,
					NULL::INTEGER AS moves,
					NULL::DOUBLE AS certainty,
					NULL::VARCHAR AS phase,
					NULL::VARCHAR AS found,
					NULL::FLOAT[] AS particle_x,
					NULL::FLOAT[] AS particle_y,
					NULL::FLOAT[] AS particle_w,
					NULL::VARCHAR AS source,
					NULL::BIGINT AS seed,
					NULL::BIGINT AS started_ns,
					NULL::VARCHAR AS filename
			) WHERE 1=0`)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	sqlText := `CREATE OR REPLACE VIEW actions AS
		SELECT * FROM read_parquet([` + strings.Join(globs, ",") + `], filename=true, union_by_name=true)
		WHERE NOT contains(filename, '/tmp/')`
	if _, err := db.Exec(sqlText); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// hasParquet reports whether root holds at least one finished parquet file.
// read_parquet fails on a glob with no matches.
func hasParquet(root string) bool {
	found := false
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == "tmp" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".parquet") {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// makeRelativeToRoots shortens an absolute file name to root/relative form.
func makeRelativeToRoots(filename string, roots []string) string {
	fn := strings.TrimSpace(filename)
	if fn == "" {
		return ""
	}
	best := fn
	bestLen := len(best)
	for _, r := range roots {
		root := strings.TrimSpace(r)
		if root == "" {
			continue
		}
		rel, err := filepath.Rel(root, fn)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		cand := filepath.ToSlash(filepath.Join(root, rel))
		if len(cand) < bestLen {
			best = cand
			bestLen = len(cand)
		}
	}
	return best
}
